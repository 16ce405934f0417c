package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nala-server/bloom"
	"nala-server/models"
	"nala-server/quiz"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestQuizErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{quiz.ErrNotFound, http.StatusNotFound},
		{quiz.ErrForbidden, http.StatusForbidden},
		{quiz.ErrCompleted, http.StatusConflict},
		{quiz.ErrBadIndex, http.StatusBadRequest},
		{quiz.ErrNoQuestions, http.StatusBadGateway},
		{bloom.ErrNoTopics, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			quizError(c, tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestSanitizeQuizStripsAnswerKeys(t *testing.T) {
	attempt := &models.QuizAttempt{
		ID:        7,
		StudentID: "s1",
		ModuleID:  "m1",
		QuizType:  "weekly",
		Questions: []models.QuizQuestion{
			{
				Question:   "What insulates an axon?",
				Options:    map[string]string{"A": "Myelin", "B": "Dendrite", "C": "Soma", "D": "Synapse"},
				Answer:     "A",
				BloomLevel: "Remember",
				TopicID:    "1",
			},
		},
	}

	out := sanitizeQuiz(attempt)

	assert.Equal(t, 7, out["quiz_history_id"])
	questions, ok := out["questions"].([]gin.H)
	require.True(t, ok)
	require.Len(t, questions, 1)
	assert.Equal(t, "What insulates an axon?", questions[0]["question"])
	_, hasAnswer := questions[0]["answer"]
	assert.False(t, hasAnswer)
	_, hasLevel := questions[0]["bloom_level"]
	assert.False(t, hasLevel)
}
