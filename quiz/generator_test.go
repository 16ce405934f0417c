package quiz

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nala-server/llm"
	"nala-server/models"
)

func validQuestionJSON(answer string) string {
	return fmt.Sprintf(`{"question": "What is a synapse?", "options": {"A": "a", "B": "b", "C": "c", "D": "d"}, "answer": %q, "bloom_level": "Remember"}`, answer)
}

func TestParseGeneratedTagsTopic(t *testing.T) {
	reply := "[" + validQuestionJSON("A") + "]"
	questions := parseGenerated(reply, "3")
	require.Len(t, questions, 1)
	assert.Equal(t, "3", questions[0].TopicID)
	assert.Equal(t, "A", questions[0].Answer)
}

func TestParseGeneratedDropsMalformed(t *testing.T) {
	reply := `[
		` + validQuestionJSON("B") + `,
		{"question": "", "options": {"A": "a", "B": "b", "C": "c", "D": "d"}, "answer": "A", "bloom_level": "Apply"},
		{"question": "missing option", "options": {"A": "a", "B": "b", "C": "c"}, "answer": "A", "bloom_level": "Apply"},
		{"question": "bad answer", "options": {"A": "a", "B": "b", "C": "c", "D": "d"}, "answer": "E", "bloom_level": "Apply"},
		{"question": "bad level", "options": {"A": "a", "B": "b", "C": "c", "D": "d"}, "answer": "A", "bloom_level": "apply"}
	]`
	questions := parseGenerated(reply, "1")
	require.Len(t, questions, 1)
	assert.Equal(t, "B", questions[0].Answer)
}

func TestParseGeneratedSurroundingProse(t *testing.T) {
	reply := "Here you go:\n[" + validQuestionJSON("C") + "]\nEnjoy!"
	questions := parseGenerated(reply, "1")
	assert.Len(t, questions, 1)
}

func TestParseGeneratedNoArray(t *testing.T) {
	assert.Nil(t, parseGenerated("sorry, I cannot do that", "1"))
	assert.Nil(t, parseGenerated(`{"question": "not an array"}`, "1"))
}

func TestGenerateQuestionsPartitionsAcrossTopics(t *testing.T) {
	topics := []models.Topic{{ID: "1", Name: "Alpha"}, {ID: "2", Name: "Beta"}}
	mock := llm.NewMock(
		llm.MockResponse{Text: "[" + validQuestionJSON("A") + "," + validQuestionJSON("B") + "]"},
		llm.MockResponse{Text: "[" + validQuestionJSON("C") + "," + validQuestionJSON("D") + "]"},
	)
	engine := NewEngine(nil, mock, nil)

	questions := engine.generateQuestions(context.Background(), topics, "Neuroscience", []string{"Remember"}, 4)
	require.Len(t, questions, 4)
	assert.Equal(t, "1", questions[0].TopicID)
	assert.Equal(t, "2", questions[2].TopicID)
	require.Len(t, mock.Calls, 2)
	assert.Contains(t, mock.Calls[0].System, "exactly 2 multiple choice questions")
}

func TestGenerateQuestionsDiscardsFailedTopics(t *testing.T) {
	topics := []models.Topic{{ID: "1", Name: "Alpha"}, {ID: "2", Name: "Beta"}}
	mock := llm.NewMock(
		llm.MockResponse{Err: fmt.Errorf("upstream error")},
		llm.MockResponse{Text: "[" + validQuestionJSON("A") + "]"},
	)
	engine := NewEngine(nil, mock, nil)

	questions := engine.generateQuestions(context.Background(), topics, "Neuroscience", []string{"Remember"}, 2)
	require.Len(t, questions, 1)
	assert.Equal(t, "2", questions[0].TopicID)
}

func TestGenerateQuestionsTrimsToTotal(t *testing.T) {
	topics := []models.Topic{{ID: "1", Name: "Alpha"}}
	mock := llm.NewMock(
		llm.MockResponse{Text: "[" + validQuestionJSON("A") + "," + validQuestionJSON("B") + "," + validQuestionJSON("C") + "]"},
	)
	engine := NewEngine(nil, mock, nil)

	questions := engine.generateQuestions(context.Background(), topics, "Neuroscience", []string{"Remember"}, 2)
	assert.Len(t, questions, 2)
}

func TestGenerateQuestionsMinOnePerTopic(t *testing.T) {
	topics := []models.Topic{{ID: "1", Name: "Alpha"}, {ID: "2", Name: "Beta"}, {ID: "3", Name: "Gamma"}}
	mock := llm.NewMock(
		llm.MockResponse{Text: "[" + validQuestionJSON("A") + "]"},
		llm.MockResponse{Text: "[" + validQuestionJSON("B") + "]"},
		llm.MockResponse{Text: "[" + validQuestionJSON("C") + "]"},
	)
	engine := NewEngine(nil, mock, nil)

	// 2 requested across 3 topics: each topic still gets one question, then
	// the combined result is trimmed back to the requested total.
	questions := engine.generateQuestions(context.Background(), topics, "Neuroscience", []string{"Remember"}, 2)
	assert.Len(t, questions, 2)
	require.Len(t, mock.Calls, 3)
	assert.Contains(t, mock.Calls[0].System, "exactly 1 multiple choice")
}

func TestGenerationPromptNamesTopicAndLevels(t *testing.T) {
	prompt := generationPrompt("Synaptic Transmission", "Neuroscience", []string{"Apply", "Analyze"}, 5)
	assert.Contains(t, prompt, "exactly 5 multiple choice questions")
	assert.Contains(t, prompt, "'Synaptic Transmission'")
	assert.Contains(t, prompt, "'Neuroscience'")
	assert.Contains(t, prompt, "[Apply, Analyze]")
}
