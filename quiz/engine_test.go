package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nala-server/models"
)

func twoQuestionQuiz() []models.QuizQuestion {
	return []models.QuizQuestion{
		{
			Question:   "What is the resting membrane potential?",
			Options:    map[string]string{"A": "-70mV", "B": "0mV", "C": "+40mV", "D": "-20mV"},
			Answer:     "A",
			BloomLevel: "Remember",
			TopicID:    "1",
		},
		{
			Question:   "Which ion influx triggers depolarization?",
			Options:    map[string]string{"A": "K+", "B": "Na+", "C": "Cl-", "D": "Ca2+"},
			Answer:     "B",
			BloomLevel: "Understand",
			TopicID:    "2",
		},
	}
}

func TestScoreHalfCorrect(t *testing.T) {
	answers := map[string]string{"0": "A", "1": "C"}
	score, correct := Score(twoQuestionQuiz(), answers)
	assert.Equal(t, 50.0, score)
	assert.Equal(t, 1, correct)
}

func TestScoreAllCorrect(t *testing.T) {
	answers := map[string]string{"0": "A", "1": "B"}
	score, correct := Score(twoQuestionQuiz(), answers)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, 2, correct)
}

func TestScoreNoAnswers(t *testing.T) {
	score, correct := Score(twoQuestionQuiz(), map[string]string{})
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 0, correct)
}

func TestScoreZeroQuestions(t *testing.T) {
	score, correct := Score(nil, map[string]string{"0": "A"})
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 0, correct)
}

func TestScoreRoundsToTwoDecimals(t *testing.T) {
	questions := []models.QuizQuestion{
		{Question: "q1", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}, Answer: "A"},
		{Question: "q2", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}, Answer: "A"},
		{Question: "q3", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}, Answer: "A"},
	}
	score, correct := Score(questions, map[string]string{"0": "A"})
	assert.Equal(t, 33.33, score)
	assert.Equal(t, 1, correct)

	score, correct = Score(questions, map[string]string{"0": "A", "1": "A"})
	assert.Equal(t, 66.67, score)
	assert.Equal(t, 2, correct)
}

func TestScoreIgnoresExtraAnswers(t *testing.T) {
	answers := map[string]string{"0": "A", "1": "B", "7": "D", "-1": "C"}
	score, correct := Score(twoQuestionQuiz(), answers)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, 2, correct)
}

func TestScoreWithinRange(t *testing.T) {
	questions := twoQuestionQuiz()
	combos := []map[string]string{
		{},
		{"0": "A"},
		{"0": "D", "1": "D"},
		{"0": "A", "1": "B"},
	}
	for _, answers := range combos {
		score, _ := Score(questions, answers)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	}
}

func TestFilterTopics(t *testing.T) {
	topics := []models.Topic{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	filtered := filterTopics(topics, []string{"3", "1", "9"})
	assert.Len(t, filtered, 2)
	assert.Equal(t, "1", filtered[0].ID)
	assert.Equal(t, "3", filtered[1].ID)

	assert.Empty(t, filterTopics(topics, []string{"9"}))
}
