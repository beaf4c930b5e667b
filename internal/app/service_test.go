package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"medprep-study-service/internal/app"
	"medprep-study-service/internal/domain"
	"medprep-study-service/internal/generator"
	"medprep-study-service/internal/infra/memory"
	"medprep-study-service/internal/llm"
	"medprep-study-service/internal/stats"
)

type fixture struct {
	svc  *app.StudyService
	mock *llm.MockProvider

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewBlobStore())
}

func newFixtureWithStore(t *testing.T, blobs app.BlobStore) *fixture {
	t.Helper()
	f := &fixture{
		mock: llm.NewMockProvider(),
		now:  time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC),
	}
	gen := generator.New(f.mock)
	f.svc = app.NewStudyService(app.Deps{
		Blobs:       blobs,
		Questions:   gen,
		Grader:      gen,
		Material:    gen,
		SessionSize: 3,
		Now:         f.clock,
	})
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	res, err := f.svc.Login(context.Background(), "demo@medmaster.com", "demo123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res.User.ID
}

func sampleQuestion() domain.ObjectiveQuestion {
	return domain.ObjectiveQuestion{
		Question:           "Qual o tratamento inicial do IAM com supra de ST?",
		Options:            []string{"AAS", "Heparina", "Angioplastia primária", "Betabloqueador", "Observação"},
		CorrectAnswerIndex: 2,
		Explanation:        "Reperfusão em até 90 minutos.",
	}
}

func TestLoginCreatesRecordOnFirstUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Login(ctx, "demo@medmaster.com", "demo123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.User.ID != "1" || res.User.Name != "Dr. Usuário Demo" || !res.FirstLogin {
		t.Fatalf("unexpected login result %+v", res)
	}
	if res.Progress.Level != 1 || res.Progress.Goals.DailyQuestions != 10 {
		t.Fatalf("expected default record, got %+v", res.Progress)
	}
	if _, err := f.svc.CurrentUser(ctx, "1"); err != nil {
		t.Fatalf("current user: %v", err)
	}

	if _, err := f.svc.Login(ctx, "demo@medmaster.com", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "", "demo123"); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoginAppliesStreakTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t)

	steps := []struct {
		after time.Duration
		want  int
	}{
		{0, 0},
		{24 * time.Hour, 1},
		{24 * time.Hour, 2},
		{2 * time.Hour, 2},
		{3 * 24 * time.Hour, 1},
	}
	for i, step := range steps {
		f.advance(step.after)
		res, err := f.svc.Login(ctx, "demo@medmaster.com", "demo123")
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		if res.Progress.StreakDays != step.want {
			t.Fatalf("step %d: expected streak %d, got %d", i, step.want, res.Progress.StreakDays)
		}
	}

	rec, _ := f.svc.Progress(ctx, "1")
	if rec.StreakDays != 1 || !rec.LastLoginDate.Equal(f.clock()) {
		t.Fatalf("streak not persisted: %d %v", rec.StreakDays, rec.LastLoginDate)
	}
}

func TestLogoutKeepsProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	if _, err := f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Cardiologia", Mode: domain.ModeObjective}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.svc.Logout(ctx, id); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.svc.CurrentUser(ctx, id); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}

	res, err := f.svc.Login(ctx, "demo@medmaster.com", "demo123")
	if err != nil {
		t.Fatalf("login again: %v", err)
	}
	if res.Progress.CurrentSession == nil || !res.Progress.CurrentSession.IsActive {
		t.Fatalf("expected session to survive logout")
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.svc.Register(ctx, "Ana", "ana@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	b, err := f.svc.Register(ctx, "Bruno", "bruno@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.User.ID == "" || a.User.ID == b.User.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.User.ID, b.User.ID)
	}
	if _, err := f.svc.Progress(ctx, a.User.ID); err != nil {
		t.Fatalf("expected default record: %v", err)
	}

	if _, err := f.svc.Register(ctx, " ", "x@example.com"); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.Register(ctx, "Caio", "not-an-email"); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestObjectiveSessionFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	session, err := f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Cardiologia", Mode: domain.ModeObjective})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.QuestionsTotal != 3 || session.Difficulty != domain.DifficultyMedium {
		t.Fatalf("expected configured size and preferred difficulty, got %+v", session)
	}

	selections := []int{2, 0, 1}
	var last app.AnswerResult
	for i, sel := range selections {
		f.advance(time.Minute)
		last, err = f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: sel})
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	if !last.Completed || last.Session.IsActive || last.Session.QuestionsCompleted != 3 {
		t.Fatalf("expected completed session, got %+v", last.Session)
	}
	if last.Experience != 20 || last.Explanation == "" {
		t.Fatalf("expected 20 xp and an explanation, got %+v", last)
	}

	_, err = f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: 2})
	if !domain.IsConsistency(err) {
		t.Fatalf("expected consistency error past completion, got %v", err)
	}

	rec, _ := f.svc.Progress(ctx, id)
	if rec.TotalQuestions != 3 || rec.CorrectAnswers != 1 {
		t.Fatalf("expected 1/3, got %d/%d", rec.CorrectAnswers, rec.TotalQuestions)
	}
	if st := rec.Specialties["Cardiologia"]; st.Total != 3 || st.Correct != 1 {
		t.Fatalf("specialty tally %+v", st)
	}
	if rec.QuestionHistory[0].Answer != "Angioplastia primária" || !rec.QuestionHistory[0].Correct {
		t.Fatalf("first history item %+v", rec.QuestionHistory[0])
	}
	if len(rec.SuggestedTopics) == 0 || rec.SuggestedTopics[0].Specialty != "Cardiologia" || rec.SuggestedTopics[0].Priority != domain.PriorityHigh {
		t.Fatalf("expected weak specialty suggested after three answers, got %+v", rec.SuggestedTopics)
	}
}

func TestSubmitObjectiveValidatesSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)
	_, _ = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Pediatria", Mode: domain.ModeObjective})

	var verr *domain.ValidationError
	_, err := f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: 5})
	if !errors.As(err, &verr) || verr.Field != "selected" {
		t.Fatalf("expected selected validation error, got %v", err)
	}

	_, err = f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{ID: "q-1", Question: sampleQuestion(), Selected: 1})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	_, err = f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{ID: "q-1", Question: sampleQuestion(), Selected: 1})
	if !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer, got %v", err)
	}
}

func TestStartSessionRejectsActiveSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	first, err := f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Cardiologia", Mode: domain.ModeObjective})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Pediatria", Mode: domain.ModeEssay})
	if !errors.Is(err, domain.ErrSessionActive) || !domain.IsConsistency(err) {
		t.Fatalf("expected active session conflict, got %v", err)
	}

	resumed, err := f.svc.ResumeSession(ctx, id)
	if err != nil || resumed.ID != first.ID {
		t.Fatalf("resume = %+v, %v", resumed, err)
	}

	if _, err := f.svc.AbandonSession(ctx, id); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, err := f.svc.ResumeSession(ctx, id); !errors.Is(err, domain.ErrNothingToResume) {
		t.Fatalf("expected nothing to resume, got %v", err)
	}
	if _, err := f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Pediatria", Mode: domain.ModeEssay, TargetCount: 5}); err != nil {
		t.Fatalf("start after abandon: %v", err)
	}
}

func TestStartSessionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	tests := []app.StartRequest{
		{Specialty: "", Mode: domain.ModeObjective},
		{Specialty: "Cardiologia", Mode: "oral"},
		{Specialty: "Cardiologia", Mode: domain.ModeObjective, Difficulty: "extreme"},
		{Specialty: "Cardiologia", Mode: domain.ModeObjective, TargetCount: -1},
	}
	for _, req := range tests {
		if _, err := f.svc.StartSession(ctx, id, req); !domain.IsValidation(err) {
			t.Fatalf("%+v: expected validation error, got %v", req, err)
		}
	}
	rec, _ := f.svc.Progress(ctx, id)
	if rec.CurrentSession != nil {
		t.Fatalf("rejected start left a session behind")
	}
}

func TestSubmitEssayGrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)
	_, _ = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Pediatria", Mode: domain.ModeEssay})

	_ = f.mock.PushJSON(map[string]any{
		"score":            85,
		"strengths":        "Hipótese correta",
		"improvements":     "Detalhar conduta",
		"detailedFeedback": "Boa resposta.",
	})
	res, err := f.svc.SubmitEssay(ctx, id, app.EssayAnswer{Question: "Conduta na bronquiolite?", Answer: "Suporte e oxigênio."})
	if err != nil {
		t.Fatalf("essay: %v", err)
	}
	if !res.Item.Correct || res.Item.Score == nil || *res.Item.Score != 85 || res.Feedback == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Experience != 9 {
		t.Fatalf("expected round(85/10)=9 xp, got %d", res.Experience)
	}

	calls := f.mock.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Messages[0].Content, "Pediatria") {
		t.Fatalf("grader not called with the session specialty")
	}
}

func TestSubmitEssayGraderFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)
	_, _ = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Pediatria", Mode: domain.ModeEssay})

	_, err := f.svc.SubmitEssay(ctx, id, app.EssayAnswer{Question: "q", Answer: "a"})
	if !domain.IsCollaborator(err) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	rec, _ := f.svc.Progress(ctx, id)
	if rec.TotalQuestions != 0 || len(rec.QuestionHistory) != 0 || rec.CurrentSession.QuestionsCompleted != 0 {
		t.Fatalf("record changed after grader failure: %+v", rec)
	}
}

func TestSubmitObjectiveNeedsObjectiveSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)
	_, _ = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Pediatria", Mode: domain.ModeEssay})

	_, err := f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: 1})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "mode" {
		t.Fatalf("expected mode validation error in essay session, got %v", err)
	}
	rec, _ := f.svc.Progress(ctx, id)
	if rec.TotalQuestions != 0 || rec.CurrentSession.QuestionsCompleted != 0 {
		t.Fatalf("record changed after rejected answer: %+v", rec)
	}
}

func TestSubmitEssayNeedsActiveEssaySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	_, err := f.svc.SubmitEssay(ctx, id, app.EssayAnswer{Question: "q", Answer: "a"})
	if !domain.IsConsistency(err) {
		t.Fatalf("expected consistency error without session, got %v", err)
	}

	_, _ = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Pediatria", Mode: domain.ModeObjective})
	if _, err := f.svc.SubmitEssay(ctx, id, app.EssayAnswer{Question: "q", Answer: "a"}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error in objective session, got %v", err)
	}
	if len(f.mock.Calls()) != 0 {
		t.Fatalf("grader called for a rejected answer")
	}
}

func TestConcurrentAnswersAreSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)
	if _, err := f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Cardiologia", Mode: domain.ModeObjective, TargetCount: 20}); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(sel int) {
			defer wg.Done()
			_, err := f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: sel % 5})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("answer: %v", err)
		}
	}

	rec, _ := f.svc.Progress(ctx, id)
	if rec.TotalQuestions != 20 || len(rec.QuestionHistory) != 20 || rec.CurrentSession.QuestionsCompleted != 20 {
		t.Fatalf("lost updates: total=%d history=%d completed=%d",
			rec.TotalQuestions, len(rec.QuestionHistory), rec.CurrentSession.QuestionsCompleted)
	}
	if rec.CorrectAnswers != 4 {
		t.Fatalf("expected 4 correct answers, got %d", rec.CorrectAnswers)
	}
}

func TestFailedPersistLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{BlobStore: memory.NewBlobStore()}
	f := newFixtureWithStore(t, store)
	id := f.login(t)
	_, _ = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Cardiologia", Mode: domain.ModeObjective})

	store.fail(errors.New("connection reset"))
	if _, err := f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: 2}); err == nil {
		t.Fatalf("expected persist error")
	}
	store.fail(nil)

	rec, err := f.svc.Progress(ctx, id)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if rec.TotalQuestions != 0 || rec.CurrentSession.QuestionsCompleted != 0 {
		t.Fatalf("failed write leaked into the record: %+v", rec)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	ch, cancel, err := f.svc.Subscribe(ctx, id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	<-ch // initial snapshot

	if _, err := f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Cardiologia", Mode: domain.ModeObjective}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: 2}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// The channel keeps only the newest record.
	update := <-ch
	if update.TotalQuestions != 1 {
		t.Fatalf("expected latest record with one answer, got %d", update.TotalQuestions)
	}

	if _, _, err := f.svc.Subscribe(ctx, "unknown"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected unknown user error, got %v", err)
	}
}

func TestGoalsAndPreferences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	if _, err := f.svc.UpdateGoals(ctx, id, domain.Goals{DailyQuestions: -1}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	g, err := f.svc.UpdateGoals(ctx, id, domain.Goals{
		DailyQuestions:    20,
		WeeklyQuestions:   100,
		TargetSpecialties: []string{" Cardiologia ", "Cardiologia", ""},
	})
	if err != nil {
		t.Fatalf("goals: %v", err)
	}
	if g.TargetLevel != "intermediário" || len(g.TargetSpecialties) != 1 || g.TargetSpecialties[0] != "Cardiologia" {
		t.Fatalf("goals = %+v", g)
	}

	if _, err := f.svc.UpdatePreferences(ctx, id, domain.Preferences{PreferredDifficulty: "brutal"}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	p, err := f.svc.UpdatePreferences(ctx, id, domain.Preferences{
		FavoriteSpecialties: []string{"Neurologia"},
		PreferredDifficulty: domain.DifficultyHard,
	})
	if err != nil {
		t.Fatalf("preferences: %v", err)
	}
	if p.PreferredDifficulty != domain.DifficultyHard {
		t.Fatalf("preferences = %+v", p)
	}

	session, err := f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Neurologia", Mode: domain.ModeObjective})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Difficulty != domain.DifficultyHard {
		t.Fatalf("expected preferred difficulty, got %s", session.Difficulty)
	}
}

func TestSuggestionsLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	topics, err := f.svc.Suggestions(ctx, id)
	if err != nil || len(topics) != 0 {
		t.Fatalf("expected no suggestions below threshold, got %+v, %v", topics, err)
	}

	_, _ = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Cardiologia", Mode: domain.ModeObjective})
	for i := 0; i < 3; i++ {
		if _, err := f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: 2}); err != nil {
			t.Fatalf("answer: %v", err)
		}
	}
	topics, _ = f.svc.Suggestions(ctx, id)
	if len(topics) == 0 {
		t.Fatalf("expected cached suggestions")
	}

	if err := f.svc.ClearSuggestions(ctx, id); err != nil {
		t.Fatalf("clear: %v", err)
	}
	rec, _ := f.svc.Progress(ctx, id)
	if len(rec.SuggestedTopics) != 0 {
		t.Fatalf("expected cleared cache")
	}

	topics, err = f.svc.RefreshSuggestions(ctx, id)
	if err != nil || len(topics) == 0 || len(topics) > 5 {
		t.Fatalf("refresh = %+v, %v", topics, err)
	}
	seen := map[string]bool{}
	for _, tp := range topics {
		if seen[tp.Specialty] {
			t.Fatalf("duplicate specialty %s", tp.Specialty)
		}
		seen[tp.Specialty] = true
	}

	if _, err := f.svc.UpdatePreferences(ctx, id, domain.Preferences{FavoriteSpecialties: []string{"Dermatologia"}}); err != nil {
		t.Fatalf("preferences: %v", err)
	}
	rec, _ = f.svc.Progress(ctx, id)
	if len(rec.SuggestedTopics) != 0 {
		t.Fatalf("expected favorites change to drop cached suggestions")
	}
}

func TestGenerateQuestionUsesSessionDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	if _, err := f.svc.GenerateQuestion(ctx, id, app.QuestionRequest{}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error without specialty, got %v", err)
	}

	_, _ = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Neurologia", Mode: domain.ModeEssay, Difficulty: domain.DifficultyHard})
	_ = f.mock.PushJSON(map[string]any{"question": "Paciente de 72 anos com afasia súbita..."})

	q, err := f.svc.GenerateQuestion(ctx, id, app.QuestionRequest{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if q.Mode != domain.ModeEssay || q.Specialty != "Neurologia" || q.Difficulty != domain.DifficultyHard || q.Essay == "" {
		t.Fatalf("question = %+v", q)
	}

	if _, err := f.svc.GenerateQuestion(ctx, id, app.QuestionRequest{Mode: domain.ModeObjective}); !domain.IsCollaborator(err) {
		t.Fatalf("expected collaborator error on empty provider, got %v", err)
	}
}

func TestStudyMaterialDefaultsToTopSuggestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	_ = f.mock.PushJSON(map[string]any{
		"title":        "Cardiologia essencial",
		"introduction": "Introdução",
		"sections": []map[string]any{
			{"title": "Síndromes coronarianas", "content": "Texto", "keyPoints": []string{"ECG em 10 minutos"}},
		},
		"summary":    "Resumo",
		"references": []string{"Diretriz SBC"},
	})
	m, err := f.svc.StudyMaterial(ctx, id, "", nil)
	if err != nil {
		t.Fatalf("material: %v", err)
	}
	if m.Title != "Cardiologia essencial" {
		t.Fatalf("material = %+v", m)
	}
	if !strings.Contains(f.mock.Calls()[0].Messages[0].Content, "Cardiologia") {
		t.Fatalf("expected first common specialty as default")
	}
}

func TestDashboardAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.login(t)

	_, _ = f.svc.StartSession(ctx, id, app.StartRequest{Specialty: "Cardiologia", Mode: domain.ModeObjective})
	_, _ = f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: 2})
	f.advance(time.Minute)
	_, _ = f.svc.SubmitObjective(ctx, id, app.ObjectiveAnswer{Question: sampleQuestion(), Selected: 0})

	d, err := f.svc.Dashboard(ctx, id)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.TotalQuestions != 2 || d.AccuracyRate != 50 || d.DailyGoal.Current != 2 || len(d.Weekly) != 7 {
		t.Fatalf("dashboard = %+v", d)
	}

	view, err := f.svc.History(ctx, id, stats.HistoryFilter{Result: stats.ResultIncorrect})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Answer != "AAS" || view.Summary.Incorrect != 1 {
		t.Fatalf("history = %+v", view)
	}
	if len(view.Specialties) != 1 || view.Specialties[0] != "Cardiologia" {
		t.Fatalf("specialties = %+v", view.Specialties)
	}

	if _, err := f.svc.History(ctx, id, stats.HistoryFilter{Result: "maybe"}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type flakyStore struct {
	*memory.BlobStore
	mu  sync.Mutex
	err error
}

func (s *flakyStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *flakyStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.BlobStore.Save(ctx, key, data)
}
