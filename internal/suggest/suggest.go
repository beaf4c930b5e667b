// Package suggest ranks the specialties a user should study next.
//
// The Engine asks a TopicSuggester first and falls back to deterministic
// rules whenever the suggester fails, panics, times out or returns nothing
// usable. Suggest never returns an error.
package suggest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"medprep-study-service/internal/domain"

	"go.uber.org/zap"
)

const (
	// MaxSuggestions caps every suggestion list.
	MaxSuggestions = 5
	// MinQuestions is the history size from which suggestions are generated.
	MinQuestions = 3

	weakMinTotal     = 3
	weakAccuracy     = 70.0
	maxWeak          = 2
	maxFavorites     = 2
	backfillTarget   = 3
	defaultTimeout   = 15 * time.Second
	reasonFavorite   = "Continue explorando suas especialidades favoritas"
	reasonEssential  = "Expandir conhecimento em especialidade essencial"
	reasonWeakFormat = "Reforçar conhecimento - sua taxa de acerto é %.0f%%"
)

// CommonSpecialties backfills short suggestion lists, in order.
var CommonSpecialties = []string{
	"Cardiologia",
	"Clínica Médica",
	"Pediatria",
	"Cirurgia Geral",
	"Neurologia",
}

// Source tells where a suggestion list came from.
type Source string

const (
	SourceCollaborator Source = "collaborator"
	SourceFallback     Source = "fallback"
)

// SpecialtySnapshot is the per-specialty input to ranking.
type SpecialtySnapshot struct {
	Name        string     `json:"name"`
	Total       int        `json:"total"`
	Correct     int        `json:"correct"`
	Accuracy    float64    `json:"accuracy"`
	LastStudied *time.Time `json:"lastStudied,omitempty"`
}

// Context is everything a ranking may look at.
type Context struct {
	TotalQuestions int                 `json:"totalQuestions"`
	CorrectAnswers int                 `json:"correctAnswers"`
	StreakDays     int                 `json:"streakDays"`
	Specialties    []SpecialtySnapshot `json:"specialties"`
	Favorites      []string            `json:"favorites"`
	Goals          domain.Goals        `json:"goals"`
}

// TopicSuggester produces a ranked list from a Context.
type TopicSuggester interface {
	SuggestTopics(ctx context.Context, in Context) ([]domain.SuggestedTopic, error)
}

// ShouldSuggest reports whether suggestions should be generated now: the
// cache is empty and there is enough history to rank.
func ShouldSuggest(rec domain.ProgressRecord) bool {
	return len(rec.SuggestedTopics) == 0 && rec.TotalQuestions >= MinQuestions
}

// ContextFor snapshots rec. Specialties are sorted by name.
func ContextFor(rec domain.ProgressRecord) Context {
	in := Context{
		TotalQuestions: rec.TotalQuestions,
		CorrectAnswers: rec.CorrectAnswers,
		StreakDays:     rec.StreakDays,
		Specialties:    make([]SpecialtySnapshot, 0, len(rec.Specialties)),
		Favorites:      append([]string(nil), rec.Preferences.FavoriteSpecialties...),
		Goals:          rec.Goals,
	}
	for name, st := range rec.Specialties {
		acc := 0.0
		if st.Total > 0 {
			acc = float64(st.Correct) / float64(st.Total) * 100
		}
		in.Specialties = append(in.Specialties, SpecialtySnapshot{
			Name:        name,
			Total:       st.Total,
			Correct:     st.Correct,
			Accuracy:    acc,
			LastStudied: st.LastStudied,
		})
	}
	sort.Slice(in.Specialties, func(i, j int) bool {
		return in.Specialties[i].Name < in.Specialties[j].Name
	})
	return in
}

// Engine combines a TopicSuggester with the rule-based fallback.
type Engine struct {
	suggester TopicSuggester
	timeout   time.Duration
	logger    *zap.Logger
}

// NewEngine builds an engine. A nil suggester always uses the fallback.
func NewEngine(suggester TopicSuggester, timeout time.Duration, logger *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{suggester: suggester, timeout: timeout, logger: logger.Named("suggest")}
}

// Suggest ranks topics for rec.
func (e *Engine) Suggest(ctx context.Context, rec domain.ProgressRecord) ([]domain.SuggestedTopic, Source) {
	in := ContextFor(rec)
	if e.suggester == nil {
		return Fallback(in), SourceFallback
	}

	topics, err := e.ask(ctx, in)
	if err != nil {
		e.logger.Warn("topic suggester failed, using fallback", zap.Error(err))
		return Fallback(in), SourceFallback
	}
	topics = Sanitize(topics)
	if len(topics) == 0 {
		e.logger.Warn("topic suggester returned no usable topics, using fallback")
		return Fallback(in), SourceFallback
	}
	return topics, SourceCollaborator
}

func (e *Engine) ask(ctx context.Context, in Context) ([]domain.SuggestedTopic, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		topics []domain.SuggestedTopic
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("topic suggester panicked: %v", r)}
			}
		}()
		topics, err := e.suggester.SuggestTopics(ctx, in)
		done <- result{topics: topics, err: err}
	}()

	select {
	case r := <-done:
		return r.topics, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sanitize cleans a collaborator list: entries without a specialty are
// dropped, unknown priorities become medium, accuracy is clamped to
// [0,100], repeated specialties keep their first entry and the list is
// capped at MaxSuggestions.
func Sanitize(in []domain.SuggestedTopic) []domain.SuggestedTopic {
	out := make([]domain.SuggestedTopic, 0, MaxSuggestions)
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t.Specialty = strings.TrimSpace(t.Specialty)
		if t.Specialty == "" {
			continue
		}
		if _, dup := seen[t.Specialty]; dup {
			continue
		}
		if !t.Priority.Valid() {
			t.Priority = domain.PriorityMedium
		}
		switch {
		case t.Accuracy < 0:
			t.Accuracy = 0
		case t.Accuracy > 100:
			t.Accuracy = 100
		}
		t.Reason = strings.TrimSpace(t.Reason)
		seen[t.Specialty] = struct{}{}
		out = append(out, t)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

// Fallback ranks topics without a collaborator:
// weak specialties first (high), then unattempted favorites (medium), then
// common specialties not attempted yet until the list has three entries.
func Fallback(in Context) []domain.SuggestedTopic {
	out := make([]domain.SuggestedTopic, 0, MaxSuggestions)
	used := make(map[string]struct{})
	attempted := make(map[string]struct{}, len(in.Specialties))
	for _, s := range in.Specialties {
		attempted[s.Name] = struct{}{}
	}
	add := func(t domain.SuggestedTopic) {
		if _, ok := used[t.Specialty]; ok || len(out) >= MaxSuggestions {
			return
		}
		used[t.Specialty] = struct{}{}
		out = append(out, t)
	}

	weak := make([]SpecialtySnapshot, 0, len(in.Specialties))
	for _, s := range in.Specialties {
		if s.Total >= weakMinTotal && s.Accuracy < weakAccuracy {
			weak = append(weak, s)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool {
		if weak[i].Accuracy != weak[j].Accuracy {
			return weak[i].Accuracy < weak[j].Accuracy
		}
		return weak[i].Name < weak[j].Name
	})
	for i := 0; i < len(weak) && i < maxWeak; i++ {
		add(domain.SuggestedTopic{
			Specialty: weak[i].Name,
			Reason:    fmt.Sprintf(reasonWeakFormat, weak[i].Accuracy),
			Priority:  domain.PriorityHigh,
			Accuracy:  weak[i].Accuracy,
		})
	}

	favorites := 0
	for _, fav := range in.Favorites {
		fav = strings.TrimSpace(fav)
		if fav == "" || favorites == maxFavorites {
			continue
		}
		if _, ok := attempted[fav]; ok {
			continue
		}
		if _, ok := used[fav]; ok {
			continue
		}
		add(domain.SuggestedTopic{Specialty: fav, Reason: reasonFavorite, Priority: domain.PriorityMedium})
		favorites++
	}

	for _, name := range CommonSpecialties {
		if len(out) >= backfillTarget {
			break
		}
		if _, ok := attempted[name]; ok {
			continue
		}
		add(domain.SuggestedTopic{Specialty: name, Reason: reasonEssential, Priority: domain.PriorityMedium})
	}
	return out
}
