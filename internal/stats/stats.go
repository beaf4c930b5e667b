// Package stats derives read-only views from a progress record.
// Every function is pure: records are never mutated and nothing is cached.
package stats

import (
	"math"
	"sort"
	"time"

	"medprep-study-service/internal/domain"
)

const (
	// DefaultMonthsBack is the number of monthly buckets when none is requested.
	DefaultMonthsBack = 6
	// DefaultTopSpecialties is the breakdown size when none is requested.
	DefaultTopSpecialties = 5

	weekWindow = 7 * 24 * time.Hour
)

var (
	weekdayLabels = [...]string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}
	monthLabels   = [...]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}
)

// GoalProgress reports how far a user is towards a question-count target.
type GoalProgress struct {
	Current    int     `json:"current"`
	Target     int     `json:"target"`
	Percentage float64 `json:"percentage"`
}

// DayBucket aggregates one calendar day of answers.
type DayBucket struct {
	Day            string    `json:"day"`
	Date           time.Time `json:"date"`
	QuestionsCount int       `json:"questionsCount"`
	CorrectCount   int       `json:"correctCount"`
}

// MonthBucket aggregates answers whose month-of-year matches Month.
type MonthBucket struct {
	Month          string `json:"month"`
	QuestionsCount int    `json:"questionsCount"`
	CorrectCount   int    `json:"correctCount"`
}

// SpecialtyPerformance is one row of the specialty breakdown.
type SpecialtyPerformance struct {
	Name            string `json:"name"`
	AccuracyPercent int    `json:"accuracyPercent"`
	Total           int    `json:"total"`
}

// AccuracyRate is the rounded overall percentage of correct answers, 0 without answers.
func AccuracyRate(rec domain.ProgressRecord) int {
	return roundedPercent(rec.CorrectAnswers, rec.TotalQuestions)
}

// SpecialtyAccuracy is the unrounded accuracy of one specialty tally.
func SpecialtyAccuracy(st domain.SpecialtyStats) float64 {
	return ratio(st.Correct, st.Total) * 100
}

// DailyGoalProgress counts answers given on today's calendar date (in today's location).
func DailyGoalProgress(rec domain.ProgressRecord, today time.Time) GoalProgress {
	day := civilDay(today, today.Location())
	current := 0
	for _, item := range rec.QuestionHistory {
		if civilDay(item.Timestamp, today.Location()) == day {
			current++
		}
	}
	return goal(current, rec.Goals.DailyQuestions)
}

// WeeklyGoalProgress counts answers in the rolling seven days ending at now.
func WeeklyGoalProgress(rec domain.ProgressRecord, now time.Time) GoalProgress {
	cutoff := now.Add(-weekWindow)
	current := 0
	for _, item := range rec.QuestionHistory {
		if !item.Timestamp.Before(cutoff) {
			current++
		}
	}
	return goal(current, rec.Goals.WeeklyQuestions)
}

// WeeklySeries returns exactly seven buckets, today-6 through today.
func WeeklySeries(rec domain.ProgressRecord, today time.Time) []DayBucket {
	loc := today.Location()
	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)

	buckets := make([]DayBucket, 7)
	for i := range buckets {
		date := start.AddDate(0, 0, i-6)
		buckets[i] = DayBucket{Day: weekdayLabels[date.Weekday()], Date: date}
	}

	todayIdx := civilDay(today, loc)
	for _, item := range rec.QuestionHistory {
		diff := todayIdx - civilDay(item.Timestamp, loc)
		if diff < 0 || diff >= 7 {
			continue
		}
		b := &buckets[6-diff]
		b.QuestionsCount++
		if item.Correct {
			b.CorrectCount++
		}
	}
	return buckets
}

// MonthlySeries returns monthsBack buckets ending with now's month. Items are
// matched on month-of-year only, so the same month of different years shares
// a bucket.
func MonthlySeries(rec domain.ProgressRecord, now time.Time, monthsBack int) []MonthBucket {
	if monthsBack <= 0 {
		monthsBack = DefaultMonthsBack
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	buckets := make([]MonthBucket, monthsBack)
	targets := make([]time.Month, monthsBack)
	for i := range buckets {
		month := first.AddDate(0, i-(monthsBack-1), 0).Month()
		targets[i] = month
		buckets[i].Month = monthLabels[month-1]
	}

	for _, item := range rec.QuestionHistory {
		month := item.Timestamp.In(now.Location()).Month()
		for i, target := range targets {
			if target != month {
				continue
			}
			buckets[i].QuestionsCount++
			if item.Correct {
				buckets[i].CorrectCount++
			}
		}
	}
	return buckets
}

// SpecialtyBreakdown aggregates the history per specialty, most practised first.
func SpecialtyBreakdown(rec domain.ProgressRecord, topN int) []SpecialtyPerformance {
	if topN <= 0 {
		topN = DefaultTopSpecialties
	}

	type tally struct{ total, correct int }
	bySpecialty := make(map[string]*tally)
	for _, item := range rec.QuestionHistory {
		t, ok := bySpecialty[item.Specialty]
		if !ok {
			t = &tally{}
			bySpecialty[item.Specialty] = t
		}
		t.total++
		if item.Correct {
			t.correct++
		}
	}

	rows := make([]SpecialtyPerformance, 0, len(bySpecialty))
	for name, t := range bySpecialty {
		rows = append(rows, SpecialtyPerformance{
			Name:            name,
			AccuracyPercent: roundedPercent(t.correct, t.total),
			Total:           t.total,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Name < rows[j].Name
	})
	if len(rows) > topN {
		rows = rows[:topN]
	}
	return rows
}

// StreakTransition computes the streak and last-login date after a login at now.
// A gap of one calendar day extends the streak, a longer gap restarts it at 1,
// and a same-day login changes nothing. A record that never logged in keeps
// its streak and gets now as its baseline.
func StreakTransition(rec domain.ProgressRecord, now time.Time) (streakDays int, lastLogin time.Time) {
	if rec.LastLoginDate.IsZero() {
		return rec.StreakDays, now
	}
	gap := civilDay(now, now.Location()) - civilDay(rec.LastLoginDate, now.Location())
	switch {
	case gap == 1:
		return rec.StreakDays + 1, now
	case gap > 1:
		return 1, now
	default:
		return rec.StreakDays, rec.LastLoginDate
	}
}

func goal(current, target int) GoalProgress {
	pct := 0.0
	if target > 0 {
		pct = math.Min(100, float64(current)/float64(target)*100)
	}
	return GoalProgress{Current: current, Target: target, Percentage: pct}
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func roundedPercent(num, den int) int {
	pct := int(math.Round(ratio(num, den) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// civilDay numbers calendar days in loc so that subtraction is immune to DST shifts.
func civilDay(t time.Time, loc *time.Location) int {
	y, m, d := t.In(loc).Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
