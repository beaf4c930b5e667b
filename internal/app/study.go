package app

import (
	"context"
	"errors"
	"strings"

	"medprep-study-service/internal/domain"
	"medprep-study-service/internal/metrics"
	"medprep-study-service/internal/suggest"
	"medprep-study-service/internal/tracker"

	"go.uber.org/zap"
)

var errNotConfigured = errors.New("collaborator not configured")

// StartRequest opens a session. Zero TargetCount uses the configured session
// size and an empty Difficulty the user's preferred one.
type StartRequest struct {
	Specialty   string            `json:"specialty"`
	Difficulty  domain.Difficulty `json:"difficulty"`
	Mode        domain.Mode       `json:"mode"`
	TargetCount int               `json:"targetCount"`
}

// ObjectiveAnswer is the choice made on a generated multiple-choice question.
// The answer is graded against the answer key the caller sends along, so the
// result is only as trustworthy as the caller.
type ObjectiveAnswer struct {
	ID       string                   `json:"id"`
	Question domain.ObjectiveQuestion `json:"question"`
	Selected int                      `json:"selected"`
}

// EssayAnswer is a free-text answer, graded by the AnswerGrader.
type EssayAnswer struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AnswerResult reports what recording an answer changed.
type AnswerResult struct {
	Item        domain.QuestionHistoryItem `json:"item"`
	Session     domain.StudySession        `json:"session"`
	Completed   bool                       `json:"completed"`
	Experience  int                        `json:"experience"`
	Level       int                        `json:"level"`
	Feedback    *domain.EssayFeedback      `json:"feedback,omitempty"`
	Explanation string                     `json:"explanation,omitempty"`
}

// QuestionRequest asks for a new question. Empty fields are taken from the
// active session, then from the user's preferences.
type QuestionRequest struct {
	Specialty  string            `json:"specialty"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Mode       domain.Mode       `json:"mode"`
}

// Question is a generated question of either mode.
type Question struct {
	Mode       domain.Mode               `json:"mode"`
	Specialty  string                    `json:"specialty"`
	Difficulty domain.Difficulty         `json:"difficulty"`
	Objective  *domain.ObjectiveQuestion `json:"objective,omitempty"`
	Essay      string                    `json:"essay,omitempty"`
}

// StartSession opens a study session. It fails with a ConsistencyError while
// another session is active.
func (s *StudyService) StartSession(ctx context.Context, userID string, req StartRequest) (domain.StudySession, error) {
	if req.TargetCount == 0 {
		req.TargetCount = s.sessionSize
	}

	var started domain.StudySession
	_, err := s.progress.Update(ctx, userID, func(r *domain.ProgressRecord) error {
		difficulty := req.Difficulty
		if difficulty == "" {
			difficulty = r.Preferences.PreferredDifficulty
		}
		session, err := tracker.Start(r, tracker.StartParams{
			Specialty:   req.Specialty,
			Difficulty:  difficulty,
			Mode:        req.Mode,
			TargetCount: req.TargetCount,
		}, s.now())
		if err != nil {
			return err
		}
		started = *session
		return nil
	})
	if err != nil {
		return domain.StudySession{}, err
	}

	metrics.ObserveSession(metrics.SessionStarted)
	s.logger.Info("study session started",
		zap.String("user_id", userID),
		zap.String("session_id", started.ID),
		zap.String("specialty", started.Specialty),
		zap.String("mode", string(started.Mode)),
		zap.Int("questions", started.QuestionsTotal),
	)
	return started, nil
}

// ResumeSession returns the active session, or domain.ErrNothingToResume.
func (s *StudyService) ResumeSession(ctx context.Context, userID string) (domain.StudySession, error) {
	rec, err := s.progress.Get(ctx, userID)
	if err != nil {
		return domain.StudySession{}, err
	}
	session, err := tracker.Resume(&rec)
	if err != nil {
		return domain.StudySession{}, err
	}
	return *session, nil
}

// AbandonSession deactivates the active session.
func (s *StudyService) AbandonSession(ctx context.Context, userID string) (domain.StudySession, error) {
	var abandoned domain.StudySession
	_, err := s.progress.Update(ctx, userID, func(r *domain.ProgressRecord) error {
		session, err := tracker.Abandon(r, s.now())
		if err != nil {
			return err
		}
		abandoned = *session
		return nil
	})
	if err != nil {
		return domain.StudySession{}, err
	}

	metrics.ObserveSession(metrics.SessionAbandoned)
	s.logger.Info("study session abandoned",
		zap.String("user_id", userID),
		zap.String("session_id", abandoned.ID),
		zap.Int("completed", abandoned.QuestionsCompleted),
	)
	return abandoned, nil
}

// SubmitObjective records the selected option of a multiple-choice question.
func (s *StudyService) SubmitObjective(ctx context.Context, userID string, a ObjectiveAnswer) (AnswerResult, error) {
	q := a.Question
	if strings.TrimSpace(q.Question) == "" {
		return AnswerResult{}, domain.Invalid("question", "must not be empty")
	}
	if len(q.Options) == 0 {
		return AnswerResult{}, domain.Invalid("options", "must not be empty")
	}
	if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= len(q.Options) {
		return AnswerResult{}, domain.Invalid("correctAnswerIndex", "out of range")
	}
	if a.Selected < 0 || a.Selected >= len(q.Options) {
		return AnswerResult{}, domain.Invalid("selected", "out of range")
	}

	rec, err := s.progress.Get(ctx, userID)
	if err != nil {
		return AnswerResult{}, err
	}
	if session, ok := rec.ActiveSession(); ok && session.Mode != domain.ModeObjective {
		return AnswerResult{}, domain.Invalid("mode", "active session is not an objective session")
	}

	res, err := s.record(ctx, userID, tracker.Answer{
		ID:       a.ID,
		Question: q.Question,
		Answer:   q.Options[a.Selected],
		Correct:  a.Selected == q.CorrectAnswerIndex,
	})
	if err != nil {
		return AnswerResult{}, err
	}
	res.Explanation = q.Explanation
	return res, nil
}

// SubmitEssay grades a free-text answer and records it. Answers scoring
// tracker.EssayPassScore or more count as correct. Grading happens before
// the record is touched, so a grader failure changes nothing.
func (s *StudyService) SubmitEssay(ctx context.Context, userID string, a EssayAnswer) (AnswerResult, error) {
	if strings.TrimSpace(a.Question) == "" {
		return AnswerResult{}, domain.Invalid("question", "must not be empty")
	}
	if strings.TrimSpace(a.Answer) == "" {
		return AnswerResult{}, domain.Invalid("answer", "must not be empty")
	}

	rec, err := s.progress.Get(ctx, userID)
	if err != nil {
		return AnswerResult{}, err
	}
	session, err := tracker.Resume(&rec)
	if err != nil {
		return AnswerResult{}, &domain.ConsistencyError{Op: "record answer", Err: err}
	}
	if session.Mode != domain.ModeEssay {
		return AnswerResult{}, domain.Invalid("mode", "active session is not an essay session")
	}
	if a.ID != "" && rec.HasAnswer(a.ID) {
		return AnswerResult{}, &domain.ConsistencyError{Op: "record answer", Err: domain.ErrDuplicateAnswer}
	}

	if s.grader == nil {
		return AnswerResult{}, s.collaboratorFailed("grade essay", errNotConfigured)
	}
	fb, err := s.grader.GradeEssay(ctx, a.Question, a.Answer, session.Specialty)
	if err != nil {
		return AnswerResult{}, s.collaboratorFailed("grade essay", err)
	}

	score := fb.Score
	res, err := s.record(ctx, userID, tracker.Answer{
		ID:       a.ID,
		Question: a.Question,
		Answer:   a.Answer,
		Correct:  tracker.EssayCorrect(score),
		Score:    &score,
	})
	if err != nil {
		return AnswerResult{}, err
	}
	res.Feedback = &fb
	return res, nil
}

func (s *StudyService) record(ctx context.Context, userID string, a tracker.Answer) (AnswerResult, error) {
	var item domain.QuestionHistoryItem
	rec, err := s.progress.Update(ctx, userID, func(r *domain.ProgressRecord) error {
		var err error
		item, err = tracker.RecordAnswer(r, a, s.now())
		return err
	})
	if err != nil {
		return AnswerResult{}, err
	}

	res := AnswerResult{
		Item:       item,
		Session:    *rec.CurrentSession,
		Experience: rec.Experience,
		Level:      rec.Level,
	}
	res.Completed = !res.Session.IsActive && res.Session.QuestionsCompleted >= res.Session.QuestionsTotal

	metrics.ObserveAnswer(string(item.Mode), item.Correct)
	s.logger.Debug("answer recorded",
		zap.String("user_id", userID),
		zap.String("answer_id", item.ID),
		zap.Bool("correct", item.Correct),
		zap.Int("completed", res.Session.QuestionsCompleted),
	)
	if res.Completed {
		metrics.ObserveSession(metrics.SessionCompleted)
		s.logger.Info("study session completed",
			zap.String("user_id", userID),
			zap.String("session_id", res.Session.ID),
		)
	}

	s.refreshSuggestions(ctx, userID, rec)
	return res, nil
}

// GenerateQuestion asks the QuestionGenerator for a new question.
func (s *StudyService) GenerateQuestion(ctx context.Context, userID string, req QuestionRequest) (Question, error) {
	rec, err := s.progress.Get(ctx, userID)
	if err != nil {
		return Question{}, err
	}
	if session, ok := rec.ActiveSession(); ok {
		if req.Specialty == "" {
			req.Specialty = session.Specialty
		}
		if req.Difficulty == "" {
			req.Difficulty = session.Difficulty
		}
		if req.Mode == "" {
			req.Mode = session.Mode
		}
	}
	if req.Difficulty == "" {
		req.Difficulty = rec.Preferences.PreferredDifficulty
	}
	if req.Mode == "" {
		req.Mode = domain.ModeObjective
	}

	switch {
	case strings.TrimSpace(req.Specialty) == "":
		return Question{}, domain.Invalid("specialty", "must not be empty")
	case !req.Mode.Valid():
		return Question{}, domain.Invalid("mode", "must be objective or essay")
	case !req.Difficulty.Valid():
		return Question{}, domain.Invalid("difficulty", "must be easy, medium or hard")
	}

	out := Question{Mode: req.Mode, Specialty: req.Specialty, Difficulty: req.Difficulty}
	if s.questions == nil {
		return Question{}, s.collaboratorFailed("generate question", errNotConfigured)
	}
	if req.Mode == domain.ModeEssay {
		text, err := s.questions.GenerateEssayQuestion(ctx, req.Specialty, req.Difficulty)
		if err != nil {
			return Question{}, s.collaboratorFailed("generate essay question", err)
		}
		out.Essay = text
		return out, nil
	}
	q, err := s.questions.GenerateObjectiveQuestion(ctx, req.Specialty, req.Difficulty)
	if err != nil {
		return Question{}, s.collaboratorFailed("generate objective question", err)
	}
	out.Objective = &q
	return out, nil
}

// StudyMaterial generates reading material. Without a specialty the top
// suggested topic is used, falling back to the rule-based ranking.
func (s *StudyService) StudyMaterial(ctx context.Context, userID, specialty string, topics []string) (domain.StudyMaterial, error) {
	specialty = strings.TrimSpace(specialty)
	if specialty == "" {
		rec, err := s.progress.Get(ctx, userID)
		if err != nil {
			return domain.StudyMaterial{}, err
		}
		ranked := rec.SuggestedTopics
		if len(ranked) == 0 {
			ranked = suggest.Fallback(suggest.ContextFor(rec))
		}
		if len(ranked) == 0 {
			return domain.StudyMaterial{}, domain.Invalid("specialty", "must not be empty")
		}
		specialty = ranked[0].Specialty
	}

	if s.material == nil {
		return domain.StudyMaterial{}, s.collaboratorFailed("generate study material", errNotConfigured)
	}
	m, err := s.material.GenerateStudyMaterial(ctx, specialty, topics)
	if err != nil {
		return domain.StudyMaterial{}, s.collaboratorFailed("generate study material", err)
	}
	return m, nil
}

// collaboratorFailed passes validation errors through and reports anything
// else as a CollaboratorError.
func (s *StudyService) collaboratorFailed(op string, err error) error {
	if domain.IsValidation(err) {
		return err
	}
	metrics.ObserveCollaboratorFailure(op)
	s.logger.Warn("collaborator failed", zap.String("op", op), zap.Error(err))
	if domain.IsCollaborator(err) {
		return err
	}
	return &domain.CollaboratorError{Op: op, Err: err}
}
