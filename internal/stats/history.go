package stats

import (
	"sort"
	"strings"
	"time"

	"medprep-study-service/internal/domain"
)

// Result filters history items by outcome.
type Result string

const (
	ResultAll       Result = "all"
	ResultCorrect   Result = "correct"
	ResultIncorrect Result = "incorrect"
)

// HistoryFilter narrows the question history. Zero values match everything.
type HistoryFilter struct {
	Search    string
	Mode      domain.Mode
	Result    Result
	Specialty string
}

// HistorySummary counts outcomes over a set of history items.
type HistorySummary struct {
	Total     int `json:"total"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
	Accuracy  int `json:"accuracy"`
}

// FilterHistory returns matching items, newest first. The record's own
// history keeps its insertion order.
func FilterHistory(rec domain.ProgressRecord, f HistoryFilter) []domain.QuestionHistoryItem {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]domain.QuestionHistoryItem, 0, len(rec.QuestionHistory))
	for _, item := range rec.QuestionHistory {
		if search != "" &&
			!strings.Contains(strings.ToLower(item.Question), search) &&
			!strings.Contains(strings.ToLower(item.Answer), search) {
			continue
		}
		if f.Mode != "" && item.Mode != f.Mode {
			continue
		}
		if f.Result == ResultCorrect && !item.Correct {
			continue
		}
		if f.Result == ResultIncorrect && item.Correct {
			continue
		}
		if f.Specialty != "" && f.Specialty != "all" && item.Specialty != f.Specialty {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Summarize counts outcomes over items.
func Summarize(items []domain.QuestionHistoryItem) HistorySummary {
	s := HistorySummary{Total: len(items)}
	for _, item := range items {
		if item.Correct {
			s.Correct++
		}
	}
	s.Incorrect = s.Total - s.Correct
	s.Accuracy = roundedPercent(s.Correct, s.Total)
	return s
}

// HistorySpecialties lists every specialty present in the history, sorted.
func HistorySpecialties(rec domain.ProgressRecord) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, item := range rec.QuestionHistory {
		if _, ok := seen[item.Specialty]; ok {
			continue
		}
		seen[item.Specialty] = struct{}{}
		out = append(out, item.Specialty)
	}
	sort.Strings(out)
	return out
}

// Dashboard bundles the views shown on the study overview.
type Dashboard struct {
	TotalQuestions int                    `json:"totalQuestions"`
	CorrectAnswers int                    `json:"correctAnswers"`
	AccuracyRate   int                    `json:"accuracyRate"`
	StreakDays     int                    `json:"streakDays"`
	Level          int                    `json:"level"`
	Experience     int                    `json:"experience"`
	DailyGoal      GoalProgress           `json:"dailyGoal"`
	WeeklyGoal     GoalProgress           `json:"weeklyGoal"`
	Weekly         []DayBucket            `json:"weekly"`
	Monthly        []MonthBucket          `json:"monthly"`
	Specialties    []SpecialtyPerformance `json:"specialties"`
	CurrentSession *domain.StudySession   `json:"currentSession,omitempty"`
}

// BuildDashboard computes every dashboard view at now.
func BuildDashboard(rec domain.ProgressRecord, now time.Time) Dashboard {
	d := Dashboard{
		TotalQuestions: rec.TotalQuestions,
		CorrectAnswers: rec.CorrectAnswers,
		AccuracyRate:   AccuracyRate(rec),
		StreakDays:     rec.StreakDays,
		Level:          rec.Level,
		Experience:     rec.Experience,
		DailyGoal:      DailyGoalProgress(rec, now),
		WeeklyGoal:     WeeklyGoalProgress(rec, now),
		Weekly:         WeeklySeries(rec, now),
		Monthly:        MonthlySeries(rec, now, DefaultMonthsBack),
		Specialties:    SpecialtyBreakdown(rec, DefaultTopSpecialties),
	}
	if session, ok := rec.ActiveSession(); ok {
		s := *session
		d.CurrentSession = &s
	}
	return d
}
