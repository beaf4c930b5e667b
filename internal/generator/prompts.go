package generator

import (
	"fmt"
	"strings"

	"medprep-study-service/internal/domain"
	"medprep-study-service/internal/suggest"
)

const (
	systemQuestions = "Você é um especialista em educação médica e criação de questões para residência médica. Responda apenas com JSON válido, sem texto adicional."
	systemGrader    = "Você é um professor experiente de medicina especializado em avaliar respostas dissertativas. Responda apenas com JSON válido, sem texto adicional."
	systemMaterial  = "Você é um professor de medicina especialista em criar materiais didáticos para residência médica. Responda apenas com JSON válido, sem texto adicional."
	systemMentor    = "Você é um mentor de estudos médicos que cria planos personalizados. Responda apenas com JSON válido."
)

var objectiveLevels = map[domain.Difficulty]string{
	domain.DifficultyEasy: `nível BÁSICO:
- Foco em conceitos fundamentais e definições
- Casos clínicos simples e diretos
- Alternativas claras, sem pegadinhas`,
	domain.DifficultyMedium: `nível INTERMEDIÁRIO:
- Aplicação clínica prática
- Casos com dados clínicos relevantes
- Diferenciação entre opções plausíveis`,
	domain.DifficultyHard: `nível DIFÍCIL (estilo ENARE/USP/UNIFESP):
- Caso clínico complexo, com comorbidades e apresentação atípica
- Dados conflitantes que exigem análise crítica
- Alternativas muito próximas, uma delas mais adequada
- Raciocínio clínico avançado, não apenas memorização`,
}

var essayLevels = map[domain.Difficulty]string{
	domain.DifficultyEasy: `BÁSICO:
- Caso clínico simples e direto
- Diagnóstico mais comum da especialidade
- Conduta bem estabelecida em diretrizes`,
	domain.DifficultyMedium: `INTERMEDIÁRIO:
- Apresentação usual que exige raciocínio
- Diagnósticos diferenciais e interpretação de exames
- Escolha entre opções terapêuticas válidas`,
	domain.DifficultyHard: `DIFÍCIL (grandes centros):
- Paciente com múltiplas comorbidades e apresentação rara
- Dados incompletos ou conflitantes
- Priorização em situação crítica com recursos limitados`,
}

func objectivePrompt(specialty string, difficulty domain.Difficulty) string {
	return fmt.Sprintf(`Gere uma questão de múltipla escolha sobre %s de %s

REQUISITOS:
- Caso clínico realista com história, exame físico e exames complementares
- Exatamente %d alternativas, apenas uma correta
- Formato das principais bancas brasileiras (ENARE, USP, UNIFESP, SUS-SP)

Campos: "question" (enunciado), "options" (alternativas), "correctAnswerIndex" (índice 0-%d da correta) e "explanation" (por que a correta é a melhor escolha e as demais não).`,
		specialty, levelOf(objectiveLevels, difficulty), optionCount, optionCount-1)
}

func essayPrompt(specialty string, difficulty domain.Difficulty) string {
	return fmt.Sprintf(`Gere uma questão dissertativa sobre %s de nível %s

ESTRUTURA:
1. Caso clínico detalhado: queixa principal, HDA, antecedentes, medicações
2. Exame físico com sinais vitais e exames complementares pertinentes
3. Perguntas sobre hipótese diagnóstica, diagnósticos diferenciais, propedêutica e conduta

Retorne apenas o enunciado no campo "question", sem gabarito.`,
		specialty, levelOf(essayLevels, difficulty))
}

func gradingPrompt(question, answer, specialty string) string {
	return fmt.Sprintf(`Corrija a seguinte resposta dissertativa.

QUESTÃO:
%s

RESPOSTA DO ALUNO:
%s

Avalie correção dos conceitos, completude, organização, aplicação prática e adequação à especialidade de %s.
Campos: "score" (0 a 100), "strengths", "improvements" e "detailedFeedback".`,
		question, answer, specialty)
}

func materialPrompt(specialty string, topics []string) string {
	focus := "os tópicos mais cobrados em provas de residência"
	if len(topics) > 0 {
		focus = strings.Join(topics, ", ")
	}
	return fmt.Sprintf(`Crie um material de estudo completo sobre %s, focando em: %s.

O material deve ser didático, com exemplos clínicos, adequado para residência médica e com pontos-chave destacados.
Crie de 3 a 5 seções, cada uma com "title", "content" (3-4 parágrafos) e "keyPoints".
Inclua também "title", "introduction", "summary" e "references".`,
		specialty, focus)
}

func suggestionPrompt(in suggest.Context) string {
	var b strings.Builder
	accuracy := 0.0
	if in.TotalQuestions > 0 {
		accuracy = float64(in.CorrectAnswers) / float64(in.TotalQuestions) * 100
	}

	b.WriteString("Analise o desempenho do estudante e sugira de 3 a 5 especialidades para estudar.\n\n")
	b.WriteString("ESTATÍSTICAS:\n")
	fmt.Fprintf(&b, "- Total de questões: %d\n", in.TotalQuestions)
	fmt.Fprintf(&b, "- Taxa de acerto geral: %.1f%%\n", accuracy)
	fmt.Fprintf(&b, "- Especialidades estudadas: %d\n", len(in.Specialties))
	fmt.Fprintf(&b, "- Sequência: %d dias\n\n", in.StreakDays)

	b.WriteString("DESEMPENHO POR ESPECIALIDADE:\n")
	for _, s := range in.Specialties {
		last := "nunca"
		if s.LastStudied != nil {
			last = s.LastStudied.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "- %s: %d questões, %.1f%% de acerto, última vez: %s\n", s.Name, s.Total, s.Accuracy, last)
	}

	favorites := "Nenhuma definida"
	if len(in.Favorites) > 0 {
		favorites = strings.Join(in.Favorites, ", ")
	}
	fmt.Fprintf(&b, "\nESPECIALIDADES FAVORITAS: %s\n", favorites)
	fmt.Fprintf(&b, "METAS: %d questões/dia, foco em %s\n\n", in.Goals.DailyQuestions, in.Goals.TargetLevel)

	b.WriteString(`Priorize especialidades com menor desempenho, depois não estudadas e favoritas, equilibrando revisão e conteúdo novo.
Retorne "topics" com "specialty", "reason" (motivadora), "priority" (high, medium ou low) e "accuracy" (taxa de acerto atual, 0 se nunca estudada).`)
	return b.String()
}

func levelOf(levels map[domain.Difficulty]string, d domain.Difficulty) string {
	if text, ok := levels[d]; ok {
		return text
	}
	return levels[domain.DifficultyMedium]
}
