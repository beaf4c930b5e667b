// Package generator implements the question, grading, study material and
// topic suggestion collaborators on top of an llm.Provider.
//
// Every response is schema-validated by the provider and then decoded into
// domain types; any failure on the way is returned as a
// *domain.CollaboratorError. Nothing is retried.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medprep-study-service/internal/domain"
	"medprep-study-service/internal/llm"
	"medprep-study-service/internal/suggest"
)

const (
	optionCount = 5

	questionTokens   = 2000
	gradingTokens    = 1500
	materialTokens   = 4000
	suggestionTokens = 1000
)

// Generator serves every collaborator interface with one provider.
type Generator struct {
	provider llm.Provider
}

// New returns a Generator backed by p.
func New(p llm.Provider) *Generator {
	return &Generator{provider: p}
}

// GenerateObjectiveQuestion returns a five-option multiple-choice question.
func (g *Generator) GenerateObjectiveQuestion(ctx context.Context, specialty string, difficulty domain.Difficulty) (domain.ObjectiveQuestion, error) {
	const op = "generate objective question"
	if err := checkTopic(specialty, difficulty); err != nil {
		return domain.ObjectiveQuestion{}, err
	}

	req := llm.UserPrompt(systemQuestions, objectivePrompt(specialty, difficulty), objectiveQuestionSchema, questionTokens)
	req.Temperature = 0.8

	var q domain.ObjectiveQuestion
	if err := g.call(ctx, op, "objective-question", req, &q); err != nil {
		return domain.ObjectiveQuestion{}, err
	}
	if len(q.Options) != optionCount || q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= len(q.Options) {
		return domain.ObjectiveQuestion{}, &domain.CollaboratorError{
			Op:  op,
			Err: fmt.Errorf("answer index %d outside %d options", q.CorrectAnswerIndex, len(q.Options)),
		}
	}
	return q, nil
}

// GenerateEssayQuestion returns the statement of a free-text question.
func (g *Generator) GenerateEssayQuestion(ctx context.Context, specialty string, difficulty domain.Difficulty) (string, error) {
	if err := checkTopic(specialty, difficulty); err != nil {
		return "", err
	}

	req := llm.UserPrompt(systemQuestions, essayPrompt(specialty, difficulty), essayQuestionSchema, questionTokens)
	req.Temperature = 0.9

	var out struct {
		Question string `json:"question"`
	}
	if err := g.call(ctx, "generate essay question", "essay-question", req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Question), nil
}

// GradeEssay scores a free-text answer from 0 to 100.
func (g *Generator) GradeEssay(ctx context.Context, question, answer, specialty string) (domain.EssayFeedback, error) {
	if strings.TrimSpace(question) == "" {
		return domain.EssayFeedback{}, domain.Invalid("question", "must not be empty")
	}
	if strings.TrimSpace(answer) == "" {
		return domain.EssayFeedback{}, domain.Invalid("answer", "must not be empty")
	}

	req := llm.UserPrompt(systemGrader, gradingPrompt(question, answer, specialty), essayFeedbackSchema, gradingTokens)
	req.Temperature = 0.7

	var fb domain.EssayFeedback
	if err := g.call(ctx, "grade essay", "essay-grading", req, &fb); err != nil {
		return domain.EssayFeedback{}, err
	}
	return fb, nil
}

// GenerateStudyMaterial builds reading material for specialty focused on topics.
func (g *Generator) GenerateStudyMaterial(ctx context.Context, specialty string, topics []string) (domain.StudyMaterial, error) {
	if strings.TrimSpace(specialty) == "" {
		return domain.StudyMaterial{}, domain.Invalid("specialty", "must not be empty")
	}

	req := llm.UserPrompt(systemMaterial, materialPrompt(specialty, topics), studyMaterialSchema, materialTokens)
	req.Temperature = 0.7

	var m domain.StudyMaterial
	if err := g.call(ctx, "generate study material", "study-material", req, &m); err != nil {
		return domain.StudyMaterial{}, err
	}
	if m.References == nil {
		m.References = []string{}
	}
	return m, nil
}

// SuggestTopics asks the model for a ranked topic list. Sanitizing the
// result is left to the suggestion engine.
func (g *Generator) SuggestTopics(ctx context.Context, in suggest.Context) ([]domain.SuggestedTopic, error) {
	req := llm.UserPrompt(systemMentor, suggestionPrompt(in), suggestedTopicsSchema, suggestionTokens)
	req.Temperature = 0.8

	var out struct {
		Topics []domain.SuggestedTopic `json:"topics"`
	}
	if err := g.call(ctx, "suggest topics", "topic-suggestion", req, &out); err != nil {
		return nil, err
	}
	return out.Topics, nil
}

func (g *Generator) call(ctx context.Context, op, purpose string, req llm.Request, out any) error {
	resp, err := g.provider.Generate(llm.WithPurpose(ctx, purpose), req)
	if err != nil {
		return &domain.CollaboratorError{Op: op, Err: err}
	}
	if err := json.Unmarshal(resp.Content, out); err != nil {
		return &domain.CollaboratorError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func checkTopic(specialty string, difficulty domain.Difficulty) error {
	if strings.TrimSpace(specialty) == "" {
		return domain.Invalid("specialty", "must not be empty")
	}
	if !difficulty.Valid() {
		return domain.Invalid("difficulty", "must be easy, medium or hard")
	}
	return nil
}
