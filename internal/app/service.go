package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"medprep-study-service/internal/domain"
	"medprep-study-service/internal/stats"
	"medprep-study-service/internal/suggest"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSessionSize is the question count of a session when none is requested.
const DefaultSessionSize = 10

const (
	demoEmail    = "demo@medmaster.com"
	demoPassword = "demo123"
	demoUserID   = "1"
	demoUserName = "Dr. Usuário Demo"
)

// QuestionGenerator creates study questions.
type QuestionGenerator interface {
	GenerateObjectiveQuestion(ctx context.Context, specialty string, difficulty domain.Difficulty) (domain.ObjectiveQuestion, error)
	GenerateEssayQuestion(ctx context.Context, specialty string, difficulty domain.Difficulty) (string, error)
}

// AnswerGrader scores free-text answers.
type AnswerGrader interface {
	GradeEssay(ctx context.Context, question, answer, specialty string) (domain.EssayFeedback, error)
}

// StudyMaterialGenerator writes reading material.
type StudyMaterialGenerator interface {
	GenerateStudyMaterial(ctx context.Context, specialty string, topics []string) (domain.StudyMaterial, error)
}

// TopicRanker produces suggestion lists. *suggest.Engine implements it.
type TopicRanker interface {
	Suggest(ctx context.Context, rec domain.ProgressRecord) ([]domain.SuggestedTopic, suggest.Source)
}

// Deps wires a StudyService. Blobs is required; nil collaborators make the
// matching operations fail with a CollaboratorError.
type Deps struct {
	Blobs       BlobStore
	Questions   QuestionGenerator
	Grader      AnswerGrader
	Material    StudyMaterialGenerator
	Suggestions TopicRanker
	Logger      *zap.Logger
	SessionSize int
	Now         func() time.Time
}

// StudyService contains the study use cases: identity, sessions, answers,
// goals, suggestions and the read views over a user's progress.
type StudyService struct {
	blobs       BlobStore
	progress    *ProgressStore
	questions   QuestionGenerator
	grader      AnswerGrader
	material    StudyMaterialGenerator
	suggestions TopicRanker
	logger      *zap.Logger
	sessionSize int
	now         func() time.Time
}

func NewStudyService(d Deps) *StudyService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.SessionSize <= 0 {
		d.SessionSize = DefaultSessionSize
	}
	if d.Suggestions == nil {
		d.Suggestions = suggest.NewEngine(nil, 0, d.Logger)
	}
	return &StudyService{
		blobs:       d.Blobs,
		progress:    NewProgressStore(d.Blobs),
		questions:   d.Questions,
		grader:      d.Grader,
		material:    d.Material,
		suggestions: d.Suggestions,
		logger:      d.Logger.Named("study"),
		sessionSize: d.SessionSize,
		now:         d.Now,
	}
}

// LoginResult is what a successful login hands back.
type LoginResult struct {
	User       domain.User           `json:"user"`
	Progress   domain.ProgressRecord `json:"progress"`
	FirstLogin bool                  `json:"firstLogin"`
}

// Login authenticates against the demo account, creating its progress record
// on first use and applying the daily streak transition otherwise.
func (s *StudyService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return LoginResult{}, domain.Invalid("email", "must not be empty")
	}
	if password == "" {
		return LoginResult{}, domain.Invalid("password", "must not be empty")
	}
	if !strings.EqualFold(email, demoEmail) || password != demoPassword {
		return LoginResult{}, domain.ErrInvalidCredentials
	}

	user := domain.User{ID: demoUserID, Name: demoUserName, Email: demoEmail}
	if err := s.saveUser(ctx, user); err != nil {
		return LoginResult{}, err
	}

	now := s.now()
	rec, created, err := s.progress.Create(ctx, user.ID, domain.NewProgressRecord(now))
	if err != nil {
		return LoginResult{}, err
	}
	if !created {
		rec, err = s.progress.Update(ctx, user.ID, func(r *domain.ProgressRecord) error {
			r.StreakDays, r.LastLoginDate = stats.StreakTransition(*r, now)
			return nil
		})
		if err != nil {
			return LoginResult{}, err
		}
	}

	first := created || rec.TotalQuestions == 0
	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.Bool("first_login", first),
		zap.Int("streak_days", rec.StreakDays),
	)
	return LoginResult{User: user, Progress: rec, FirstLogin: first}, nil
}

// Register creates a new identity with a default progress record.
func (s *StudyService) Register(ctx context.Context, name, email string) (LoginResult, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return LoginResult{}, domain.Invalid("name", "must not be empty")
	}
	if email == "" || !strings.Contains(email, "@") {
		return LoginResult{}, domain.Invalid("email", "must be an email address")
	}

	user := domain.User{ID: uuid.NewString(), Name: name, Email: email}
	if err := s.saveUser(ctx, user); err != nil {
		return LoginResult{}, err
	}
	rec, _, err := s.progress.Create(ctx, user.ID, domain.NewProgressRecord(s.now()))
	if err != nil {
		return LoginResult{}, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return LoginResult{User: user, Progress: rec, FirstLogin: true}, nil
}

// Logout forgets the identity. The progress record is kept for the next login.
func (s *StudyService) Logout(ctx context.Context, userID string) error {
	if err := s.blobs.Delete(ctx, UserKey(userID)); err != nil {
		return err
	}
	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}

// CurrentUser returns the stored identity, or domain.ErrUserNotFound once logged out.
func (s *StudyService) CurrentUser(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, domain.ErrUserNotFound
	}
	data, err := s.blobs.Load(ctx, UserKey(userID))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return domain.DecodeUser(data)
}

// Progress returns the user's full record.
func (s *StudyService) Progress(ctx context.Context, userID string) (domain.ProgressRecord, error) {
	return s.progress.Get(ctx, userID)
}

// Subscribe streams the user's record: the current one first, then one per write.
// The caller must invoke cancel.
func (s *StudyService) Subscribe(ctx context.Context, userID string) (<-chan domain.ProgressRecord, func(), error) {
	return s.progress.Subscribe(ctx, userID)
}

func (s *StudyService) saveUser(ctx context.Context, user domain.User) error {
	data, err := domain.EncodeUser(user)
	if err != nil {
		return err
	}
	return s.blobs.Save(ctx, UserKey(user.ID), data)
}
