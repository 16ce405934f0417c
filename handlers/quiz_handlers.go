// --- nala-server/handlers/quiz_handlers.go ---
package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"nala-server/bloom"
	"nala-server/models"
	"nala-server/quiz"
)

// quizError translates quiz engine sentinels into HTTP responses.
func quizError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Quiz not found"})
	case errors.Is(err, quiz.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Quiz belongs to another student"})
	case errors.Is(err, quiz.ErrCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "Quiz already completed"})
	case errors.Is(err, quiz.ErrBadIndex):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question index out of range"})
	case errors.Is(err, quiz.ErrNoQuestions):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Quiz generation produced no valid questions"})
	case errors.Is(err, bloom.ErrNoTopics):
		c.JSON(http.StatusNotFound, gin.H{"error": "No topics available for quiz generation"})
	default:
		log.Printf("Quiz operation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Quiz operation failed"})
	}
}

// sanitizeQuiz strips answer keys and bloom metadata before handing a quiz
// to a student.
func sanitizeQuiz(attempt *models.QuizAttempt) gin.H {
	questions := make([]gin.H, 0, len(attempt.Questions))
	for i, q := range attempt.Questions {
		questions = append(questions, gin.H{
			"index":    i,
			"question": q.Question,
			"options":  q.Options,
		})
	}
	return gin.H{
		"quiz_history_id": attempt.ID,
		"student_id":      attempt.StudentID,
		"module_id":       attempt.ModuleID,
		"quiz_type":       attempt.QuizType,
		"completed":       attempt.Completed,
		"score":           attempt.Score,
		"student_answers": attempt.StudentAnswers,
		"questions":       questions,
	}
}

// GetWeeklyQuiz returns (or lazily generates) the weekly quiz for a
// (student, module) pair.
// GET /api/module/:module_id/quiz/weekly/?student_id
func GetWeeklyQuiz(pool *pgxpool.Pool, engine *quiz.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Param("module_id")
		studentID := c.Query("student_id")
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id query parameter is required"})
			return
		}
		if !requireStudentAndModule(c, pool, studentID, moduleID) {
			return
		}

		attempt, err := engine.GetOrCreateWeekly(c.Request.Context(), studentID, moduleID)
		if err != nil {
			quizError(c, err)
			return
		}
		c.JSON(http.StatusOK, sanitizeQuiz(attempt))
	}
}

// GenerateQuiz creates a custom quiz for a module.
// POST /api/module/:module_id/quiz/generate/
func GenerateQuiz(pool *pgxpool.Pool, engine *quiz.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Param("module_id")

		var req models.QuizGenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for _, lvl := range req.BloomLevels {
			if !bloom.IsLevel(lvl) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid bloom level %q", lvl)})
				return
			}
		}
		if !requireStudentAndModule(c, pool, req.StudentID, moduleID) {
			return
		}

		attempt, err := engine.Generate(c.Request.Context(), moduleID, req)
		if err != nil {
			quizError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sanitizeQuiz(attempt))
	}
}

// AnswerQuiz saves one answer incrementally.
// PATCH /api/quiz/:quiz_id/answer/
func AnswerQuiz(engine *quiz.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		quizID, err := strconv.Atoi(c.Param("quiz_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quiz_id must be an integer"})
			return
		}

		var req models.QuizAnswerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := engine.SaveAnswer(c.Request.Context(), quizID, req.StudentID, req.QuestionIndex, req.Answer); err != nil {
			quizError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Answer saved", "question_index": req.QuestionIndex})
	}
}

// SubmitQuiz finalizes a quiz and reports the score plus the merged bloom
// summary.
// POST /api/quiz/:quiz_id/submit/
func SubmitQuiz(engine *quiz.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		quizID, err := strconv.Atoi(c.Param("quiz_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quiz_id must be an integer"})
			return
		}

		var req models.QuizSubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := engine.Submit(c.Request.Context(), quizID, req.StudentID, req.Answers)
		if err != nil {
			quizError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
