package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// experiencePerLevel is how much experience separates two levels.
const experiencePerLevel = 100

// DefaultGoals returns the targets a new user starts with.
func DefaultGoals() Goals {
	return Goals{
		DailyQuestions:    10,
		WeeklyQuestions:   50,
		TargetSpecialties: []string{},
		TargetLevel:       "intermediário",
	}
}

// DefaultPreferences returns the preferences a new user starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		FavoriteSpecialties:  []string{},
		PreferredDifficulty:  DifficultyMedium,
		StudyReminders:       true,
		NotificationsEnabled: true,
	}
}

// NewProgressRecord returns a zeroed record for a freshly registered user.
func NewProgressRecord(now time.Time) ProgressRecord {
	return ProgressRecord{
		Level:           1,
		Specialties:     map[string]SpecialtyStats{},
		Achievements:    []string{},
		LastActivity:    now,
		QuestionHistory: []QuestionHistoryItem{},
		Goals:           DefaultGoals(),
		Preferences:     DefaultPreferences(),
		SuggestedTopics: []SuggestedTopic{},
		LastLoginDate:   now,
	}
}

// LevelForExperience derives the advisory level from accumulated experience.
func LevelForExperience(xp int) int {
	if xp < 0 {
		return 1
	}
	return xp/experiencePerLevel + 1
}

// HasAnswer reports whether a history item with the given id was already recorded.
func (r *ProgressRecord) HasAnswer(id string) bool {
	for i := range r.QuestionHistory {
		if r.QuestionHistory[i].ID == id {
			return true
		}
	}
	return false
}

// ActiveSession returns the current session when it is still active.
func (r *ProgressRecord) ActiveSession() (*StudySession, bool) {
	if r.CurrentSession == nil || !r.CurrentSession.IsActive {
		return nil, false
	}
	return r.CurrentSession, true
}

// Clone returns a deep copy so mutations can be staged before they are persisted.
func (r ProgressRecord) Clone() ProgressRecord {
	out := r

	if r.Specialties != nil {
		out.Specialties = make(map[string]SpecialtyStats, len(r.Specialties))
		for name, st := range r.Specialties {
			if st.LastStudied != nil {
				ts := *st.LastStudied
				st.LastStudied = &ts
			}
			out.Specialties[name] = st
		}
	}
	if r.QuestionHistory != nil {
		out.QuestionHistory = make([]QuestionHistoryItem, len(r.QuestionHistory))
		for i, item := range r.QuestionHistory {
			if item.Score != nil {
				score := *item.Score
				item.Score = &score
			}
			out.QuestionHistory[i] = item
		}
	}
	if r.CurrentSession != nil {
		session := *r.CurrentSession
		out.CurrentSession = &session
	}
	out.Achievements = cloneStrings(r.Achievements)
	out.Goals.TargetSpecialties = cloneStrings(r.Goals.TargetSpecialties)
	out.Preferences.FavoriteSpecialties = cloneStrings(r.Preferences.FavoriteSpecialties)
	if r.SuggestedTopics != nil {
		out.SuggestedTopics = make([]SuggestedTopic, len(r.SuggestedTopics))
		copy(out.SuggestedTopics, r.SuggestedTopics)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// EncodeProgress serializes a record to its persisted JSON shape.
func EncodeProgress(r ProgressRecord) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	return data, nil
}

// DecodeProgress parses a persisted record. Records written before goals,
// preferences or suggestions existed get the defaults filled in.
func DecodeProgress(data []byte) (ProgressRecord, error) {
	var rec ProgressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ProgressRecord{}, fmt.Errorf("decode progress: %w", err)
	}

	var probe struct {
		Goals       json.RawMessage `json:"goals"`
		Preferences json.RawMessage `json:"preferences"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ProgressRecord{}, fmt.Errorf("decode progress: %w", err)
	}
	if isAbsent(probe.Goals) {
		rec.Goals = DefaultGoals()
	}
	if isAbsent(probe.Preferences) {
		rec.Preferences = DefaultPreferences()
	}

	if rec.Specialties == nil {
		rec.Specialties = map[string]SpecialtyStats{}
	}
	if rec.QuestionHistory == nil {
		rec.QuestionHistory = []QuestionHistoryItem{}
	}
	if rec.SuggestedTopics == nil {
		rec.SuggestedTopics = []SuggestedTopic{}
	}
	if rec.Achievements == nil {
		rec.Achievements = []string{}
	}
	if rec.Level < 1 {
		rec.Level = LevelForExperience(rec.Experience)
	}
	return rec, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// EncodeUser serializes the identity record.
func EncodeUser(u User) ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	return data, nil
}

// DecodeUser parses the identity record.
func DecodeUser(data []byte) (User, error) {
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}
