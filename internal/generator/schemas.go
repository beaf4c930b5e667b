package generator

import "medprep-study-service/internal/llm"

func object(props map[string]any) map[string]any {
	required := make([]any, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func str() map[string]any { return map[string]any{"type": "string", "minLength": 1} }

func strList() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

var objectiveQuestionSchema = &llm.Schema{
	Name:        "objective-question",
	Description: "Questão de múltipla escolha com cinco alternativas e uma correta",
	Definition: object(map[string]any{
		"question": str(),
		"options": map[string]any{
			"type":     "array",
			"items":    str(),
			"minItems": optionCount,
			"maxItems": optionCount,
		},
		"correctAnswerIndex": map[string]any{"type": "integer", "minimum": 0, "maximum": optionCount - 1},
		"explanation":        str(),
	}),
}

var essayQuestionSchema = &llm.Schema{
	Name:        "essay-question",
	Description: "Enunciado de questão dissertativa",
	Definition:  object(map[string]any{"question": str()}),
}

var essayFeedbackSchema = &llm.Schema{
	Name:        "essay-feedback",
	Description: "Correção de resposta dissertativa com nota de 0 a 100",
	Definition: object(map[string]any{
		"score":            map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		"strengths":        map[string]any{"type": "string"},
		"improvements":     map[string]any{"type": "string"},
		"detailedFeedback": map[string]any{"type": "string"},
	}),
}

var studyMaterialSchema = &llm.Schema{
	Name:        "study-material",
	Description: "Material de estudo estruturado em seções",
	Definition: object(map[string]any{
		"title":        str(),
		"introduction": map[string]any{"type": "string"},
		"sections": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": object(map[string]any{
				"title":     str(),
				"content":   str(),
				"keyPoints": strList(),
			}),
		},
		"summary":    map[string]any{"type": "string"},
		"references": strList(),
	}),
}

var suggestedTopicsSchema = &llm.Schema{
	Name:        "suggested-topics",
	Description: "Lista ordenada de especialidades recomendadas para estudo",
	Definition: object(map[string]any{
		"topics": map[string]any{
			"type": "array",
			"items": object(map[string]any{
				"specialty": str(),
				"reason":    map[string]any{"type": "string"},
				"priority":  map[string]any{"type": "string", "enum": []any{"high", "medium", "low"}},
				"accuracy":  map[string]any{"type": "number"},
			}),
		},
	}),
}
