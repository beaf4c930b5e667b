// Package tracker implements the study-session state machine
// (no session, active, completed) on top of a progress record.
//
// Every operation validates first and mutates second, so an error always
// leaves the record untouched.
package tracker

import (
	"math"
	"strings"
	"time"

	"medprep-study-service/internal/domain"

	"github.com/google/uuid"
)

const (
	// EssayPassScore is the grade from which an essay answer counts as correct.
	EssayPassScore = 70

	objectiveCorrectXP   = 10
	objectiveIncorrectXP = 5
)

// StartParams describes a new study session.
type StartParams struct {
	Specialty   string
	Difficulty  domain.Difficulty
	Mode        domain.Mode
	TargetCount int
}

// Answer is a graded response submitted within the active session.
// Score is only set for essay answers.
type Answer struct {
	ID       string
	Question string
	Answer   string
	Correct  bool
	Score    *int
}

// Start opens a new active session. It is rejected while another session is active.
func Start(rec *domain.ProgressRecord, p StartParams, now time.Time) (*domain.StudySession, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if _, ok := rec.ActiveSession(); ok {
		return nil, &domain.ConsistencyError{Op: "start session", Err: domain.ErrSessionActive}
	}

	session := &domain.StudySession{
		ID:                 uuid.NewString(),
		Specialty:          strings.TrimSpace(p.Specialty),
		Difficulty:         p.Difficulty,
		Mode:               p.Mode,
		QuestionsCompleted: 0,
		QuestionsTotal:     p.TargetCount,
		StartedAt:          now,
		LastUpdated:        now,
		IsActive:           true,
	}
	rec.CurrentSession = session
	rec.LastActivity = now
	return session, nil
}

// Resume returns the active session unchanged.
func Resume(rec *domain.ProgressRecord) (*domain.StudySession, error) {
	session, ok := rec.ActiveSession()
	if !ok {
		return nil, domain.ErrNothingToResume
	}
	return session, nil
}

// Abandon deactivates the active session so a new one can be started.
func Abandon(rec *domain.ProgressRecord, now time.Time) (*domain.StudySession, error) {
	session, ok := rec.ActiveSession()
	if !ok {
		return nil, domain.ErrNothingToResume
	}
	session.IsActive = false
	session.LastUpdated = now
	rec.LastActivity = now
	return session, nil
}

// RecordAnswer applies an answer to the active session and the record as one
// unit: history append, totals, specialty tally, experience and session counters.
func RecordAnswer(rec *domain.ProgressRecord, a Answer, now time.Time) (domain.QuestionHistoryItem, error) {
	session := rec.CurrentSession
	switch {
	case session == nil:
		return domain.QuestionHistoryItem{}, &domain.ConsistencyError{Op: "record answer", Err: domain.ErrNothingToResume}
	case session.QuestionsCompleted >= session.QuestionsTotal:
		return domain.QuestionHistoryItem{}, &domain.ConsistencyError{Op: "record answer", Err: domain.ErrSessionComplete}
	case !session.IsActive:
		return domain.QuestionHistoryItem{}, &domain.ConsistencyError{Op: "record answer", Err: domain.ErrNothingToResume}
	}
	if err := validateAnswer(session.Mode, a); err != nil {
		return domain.QuestionHistoryItem{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if rec.HasAnswer(a.ID) {
		return domain.QuestionHistoryItem{}, &domain.ConsistencyError{Op: "record answer", Err: domain.ErrDuplicateAnswer}
	}

	item := domain.QuestionHistoryItem{
		ID:         a.ID,
		Question:   a.Question,
		Answer:     a.Answer,
		Correct:    a.Correct,
		Specialty:  session.Specialty,
		Mode:       session.Mode,
		Timestamp:  now,
		Difficulty: session.Difficulty,
	}
	if a.Score != nil {
		score := *a.Score
		item.Score = &score
	}

	rec.QuestionHistory = append(rec.QuestionHistory, item)
	rec.TotalQuestions++
	if item.Correct {
		rec.CorrectAnswers++
	}

	if rec.Specialties == nil {
		rec.Specialties = map[string]domain.SpecialtyStats{}
	}
	tally := rec.Specialties[item.Specialty]
	tally.Total++
	if item.Correct {
		tally.Correct++
	}
	studied := now
	tally.LastStudied = &studied
	rec.Specialties[item.Specialty] = tally

	rec.Experience += experienceFor(item)
	rec.Level = domain.LevelForExperience(rec.Experience)
	rec.LastActivity = now

	session.QuestionsCompleted++
	session.LastUpdated = now
	if session.QuestionsCompleted >= session.QuestionsTotal {
		session.IsActive = false
	}
	return item, nil
}

// EssayCorrect reports whether an essay grade counts as a correct answer.
func EssayCorrect(score int) bool {
	return score >= EssayPassScore
}

func experienceFor(item domain.QuestionHistoryItem) int {
	if item.Mode == domain.ModeEssay && item.Score != nil {
		return int(math.Round(float64(*item.Score) / 10))
	}
	if item.Correct {
		return objectiveCorrectXP
	}
	return objectiveIncorrectXP
}

func (p StartParams) validate() error {
	if strings.TrimSpace(p.Specialty) == "" {
		return domain.Invalid("specialty", "must not be empty")
	}
	if p.TargetCount <= 0 {
		return domain.Invalid("targetCount", "must be greater than zero")
	}
	if !p.Mode.Valid() {
		return domain.Invalid("mode", "must be objective or essay")
	}
	if !p.Difficulty.Valid() {
		return domain.Invalid("difficulty", "must be easy, medium or hard")
	}
	return nil
}

func validateAnswer(mode domain.Mode, a Answer) error {
	if strings.TrimSpace(a.Question) == "" {
		return domain.Invalid("question", "must not be empty")
	}
	if mode == domain.ModeEssay {
		if a.Score == nil {
			return domain.Invalid("score", "essay answers need a grade")
		}
		if *a.Score < 0 || *a.Score > 100 {
			return domain.Invalid("score", "must be between 0 and 100")
		}
	}
	return nil
}
