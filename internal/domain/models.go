package domain

import "time"

// Mode tags how a question was answered.
type Mode string

const (
	ModeObjective Mode = "objective"
	ModeEssay     Mode = "essay"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeObjective || m == ModeEssay
}

// Difficulty is the requested difficulty of generated questions.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Priority ranks a suggested topic.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority tier.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// User is the authenticated identity record persisted next to the progress record.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// SpecialtyStats is the running tally for one specialty. Correct never exceeds Total.
type SpecialtyStats struct {
	Total       int        `json:"total"`
	Correct     int        `json:"correct"`
	LastStudied *time.Time `json:"lastStudied,omitempty"`
}

// QuestionHistoryItem is one answered question. Items are appended and never modified.
type QuestionHistoryItem struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Correct    bool       `json:"correct"`
	Specialty  string     `json:"specialty"`
	Mode       Mode       `json:"mode"`
	Timestamp  time.Time  `json:"timestamp"`
	Score      *int       `json:"score,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}

// StudySession is a bounded, resumable run of questions in one specialty.
type StudySession struct {
	ID                 string     `json:"id"`
	Specialty          string     `json:"specialty"`
	Difficulty         Difficulty `json:"difficulty"`
	Mode               Mode       `json:"mode"`
	QuestionsCompleted int        `json:"questionsCompleted"`
	QuestionsTotal     int        `json:"questionsTotal"`
	StartedAt          time.Time  `json:"startedAt"`
	LastUpdated        time.Time  `json:"lastUpdated"`
	IsActive           bool       `json:"isActive"`
}

// Goals are user-editable target thresholds.
type Goals struct {
	DailyQuestions    int      `json:"dailyQuestions"`
	WeeklyQuestions   int      `json:"weeklyQuestions"`
	TargetSpecialties []string `json:"targetSpecialties"`
	TargetLevel       string   `json:"targetLevel"`
}

// Preferences drive question defaults and the suggestion engine.
type Preferences struct {
	FavoriteSpecialties  []string   `json:"favoriteSpecialties"`
	PreferredDifficulty  Difficulty `json:"preferredDifficulty"`
	StudyReminders       bool       `json:"studyReminders"`
	NotificationsEnabled bool       `json:"notificationsEnabled"`
}

// SuggestedTopic is a specialty recommended for study.
type SuggestedTopic struct {
	Specialty string   `json:"specialty"`
	Reason    string   `json:"reason"`
	Priority  Priority `json:"priority"`
	Accuracy  float64  `json:"accuracy"`
}

// ProgressRecord aggregates everything tracked for one user.
type ProgressRecord struct {
	TotalQuestions  int                       `json:"totalQuestions"`
	CorrectAnswers  int                       `json:"correctAnswers"`
	StreakDays      int                       `json:"streakDays"`
	Level           int                       `json:"level"`
	Experience      int                       `json:"experience"`
	Specialties     map[string]SpecialtyStats `json:"specialties"`
	Achievements    []string                  `json:"achievements"`
	StudyTime       int                       `json:"studyTime"`
	LastActivity    time.Time                 `json:"lastActivity"`
	QuestionHistory []QuestionHistoryItem     `json:"questionHistory"`
	CurrentSession  *StudySession             `json:"currentSession"`
	Goals           Goals                     `json:"goals"`
	Preferences     Preferences               `json:"preferences"`
	SuggestedTopics []SuggestedTopic          `json:"suggestedTopics"`
	LastLoginDate   time.Time                 `json:"lastLoginDate"`
}

// ObjectiveQuestion is a generated multiple-choice question.
type ObjectiveQuestion struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
}

// EssayFeedback is the grader's verdict on a free-text answer.
type EssayFeedback struct {
	Score            int    `json:"score"`
	Strengths        string `json:"strengths"`
	Improvements     string `json:"improvements"`
	DetailedFeedback string `json:"detailedFeedback"`
}

// StudyMaterialSection is one chapter of generated study material.
type StudyMaterialSection struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	KeyPoints []string `json:"keyPoints"`
}

// StudyMaterial is adaptive reading material for a specialty.
type StudyMaterial struct {
	Title        string                 `json:"title"`
	Introduction string                 `json:"introduction"`
	Sections     []StudyMaterialSection `json:"sections"`
	Summary      string                 `json:"summary"`
	References   []string               `json:"references"`
}
