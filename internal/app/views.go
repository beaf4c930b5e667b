package app

import (
	"context"
	"errors"
	"strings"

	"medprep-study-service/internal/domain"
	"medprep-study-service/internal/metrics"
	"medprep-study-service/internal/stats"
	"medprep-study-service/internal/suggest"

	"go.uber.org/zap"
)

var errSuggestionsCached = errors.New("suggestions already cached")

// HistoryView is a filtered slice of the question history.
type HistoryView struct {
	Items       []domain.QuestionHistoryItem `json:"items"`
	Summary     stats.HistorySummary         `json:"summary"`
	Specialties []string                     `json:"specialties"`
}

// Dashboard computes the overview at the current time.
func (s *StudyService) Dashboard(ctx context.Context, userID string) (stats.Dashboard, error) {
	rec, err := s.progress.Get(ctx, userID)
	if err != nil {
		return stats.Dashboard{}, err
	}
	return stats.BuildDashboard(rec, s.now()), nil
}

// History returns the matching history items, newest first, with a summary
// over the matches and every specialty present in the full history.
func (s *StudyService) History(ctx context.Context, userID string, f stats.HistoryFilter) (HistoryView, error) {
	if f.Mode != "" && !f.Mode.Valid() {
		return HistoryView{}, domain.Invalid("mode", "must be objective or essay")
	}
	switch f.Result {
	case "", stats.ResultAll, stats.ResultCorrect, stats.ResultIncorrect:
	default:
		return HistoryView{}, domain.Invalid("result", "must be all, correct or incorrect")
	}

	rec, err := s.progress.Get(ctx, userID)
	if err != nil {
		return HistoryView{}, err
	}
	items := stats.FilterHistory(rec, f)
	return HistoryView{
		Items:       items,
		Summary:     stats.Summarize(items),
		Specialties: stats.HistorySpecialties(rec),
	}, nil
}

// UpdateGoals replaces the user's goals. An empty target level keeps the current one.
func (s *StudyService) UpdateGoals(ctx context.Context, userID string, g domain.Goals) (domain.Goals, error) {
	if g.DailyQuestions < 0 {
		return domain.Goals{}, domain.Invalid("dailyQuestions", "must not be negative")
	}
	if g.WeeklyQuestions < 0 {
		return domain.Goals{}, domain.Invalid("weeklyQuestions", "must not be negative")
	}
	g.TargetSpecialties = cleanNames(g.TargetSpecialties)
	g.TargetLevel = strings.TrimSpace(g.TargetLevel)

	rec, err := s.progress.Update(ctx, userID, func(r *domain.ProgressRecord) error {
		if g.TargetLevel == "" {
			g.TargetLevel = r.Goals.TargetLevel
		}
		r.Goals = g
		return nil
	})
	if err != nil {
		return domain.Goals{}, err
	}
	return rec.Goals, nil
}

// UpdatePreferences replaces the user's preferences. Favorites drive the
// fallback ranking, so a change to them drops the cached suggestions.
func (s *StudyService) UpdatePreferences(ctx context.Context, userID string, p domain.Preferences) (domain.Preferences, error) {
	if p.PreferredDifficulty == "" {
		p.PreferredDifficulty = domain.DifficultyMedium
	}
	if !p.PreferredDifficulty.Valid() {
		return domain.Preferences{}, domain.Invalid("preferredDifficulty", "must be easy, medium or hard")
	}
	p.FavoriteSpecialties = cleanNames(p.FavoriteSpecialties)

	rec, err := s.progress.Update(ctx, userID, func(r *domain.ProgressRecord) error {
		if !sameNames(r.Preferences.FavoriteSpecialties, p.FavoriteSpecialties) {
			r.SuggestedTopics = []domain.SuggestedTopic{}
		}
		r.Preferences = p
		return nil
	})
	if err != nil {
		return domain.Preferences{}, err
	}
	return rec.Preferences, nil
}

// Suggestions returns the cached suggestion list, generating it first when
// the cache is empty and the history is long enough.
func (s *StudyService) Suggestions(ctx context.Context, userID string) ([]domain.SuggestedTopic, error) {
	rec, err := s.progress.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec = s.refreshSuggestions(ctx, userID, rec)
	return rec.SuggestedTopics, nil
}

// RefreshSuggestions drops the cache and ranks again. Below the history
// threshold the list stays empty.
func (s *StudyService) RefreshSuggestions(ctx context.Context, userID string) ([]domain.SuggestedTopic, error) {
	rec, err := s.clearSuggestions(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec = s.refreshSuggestions(ctx, userID, rec)
	return rec.SuggestedTopics, nil
}

// ClearSuggestions invalidates the cached suggestion list.
func (s *StudyService) ClearSuggestions(ctx context.Context, userID string) error {
	_, err := s.clearSuggestions(ctx, userID)
	return err
}

func (s *StudyService) clearSuggestions(ctx context.Context, userID string) (domain.ProgressRecord, error) {
	return s.progress.Update(ctx, userID, func(r *domain.ProgressRecord) error {
		r.SuggestedTopics = []domain.SuggestedTopic{}
		return nil
	})
}

// refreshSuggestions ranks and caches topics when rec calls for it. The
// ranking runs outside the user's lock; a write that filled the cache in the
// meantime wins. Failures are logged and leave rec as it was.
func (s *StudyService) refreshSuggestions(ctx context.Context, userID string, rec domain.ProgressRecord) domain.ProgressRecord {
	if !suggest.ShouldSuggest(rec) {
		return rec
	}

	topics, source := s.suggestions.Suggest(ctx, rec)
	metrics.ObserveSuggestion(string(source))
	if len(topics) == 0 {
		return rec
	}

	updated, err := s.progress.Update(ctx, userID, func(r *domain.ProgressRecord) error {
		if !suggest.ShouldSuggest(*r) {
			return errSuggestionsCached
		}
		r.SuggestedTopics = topics
		return nil
	})
	switch {
	case errors.Is(err, errSuggestionsCached):
		current, err := s.progress.Get(ctx, userID)
		if err != nil {
			return rec
		}
		return current
	case err != nil:
		s.logger.Warn("storing suggestions failed", zap.String("user_id", userID), zap.Error(err))
		return rec
	}

	s.logger.Debug("suggestions refreshed",
		zap.String("user_id", userID),
		zap.String("source", string(source)),
		zap.Int("count", len(topics)),
	)
	return updated
}

func cleanNames(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, name := range in {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
