package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nala-server/bloom"
	"nala-server/db"
	"nala-server/llm"
	"nala-server/models"
)

var (
	// ErrNotFound means the quiz id does not exist.
	ErrNotFound = errors.New("quiz not found")
	// ErrForbidden means the quiz belongs to another student.
	ErrForbidden = errors.New("quiz belongs to another student")
	// ErrCompleted means a terminal quiz was submitted or answered again.
	ErrCompleted = errors.New("quiz already completed")
	// ErrBadIndex means an answer targeted a question outside the quiz.
	ErrBadIndex = errors.New("question index out of range")
	// ErrNoQuestions means generation produced no valid questions at all.
	ErrNoQuestions = errors.New("no valid questions generated")
)

// Engine owns the quiz lifecycle: generation, incremental answers, scoring
// and the hand-off of correct answers to the bloom aggregation engine.
type Engine struct {
	pool   *pgxpool.Pool
	client llm.Invoker
	blooms *bloom.Engine
}

// NewEngine creates a quiz engine.
func NewEngine(pool *pgxpool.Pool, client llm.Invoker, blooms *bloom.Engine) *Engine {
	return &Engine{pool: pool, client: client, blooms: blooms}
}

// Score computes 100 * correct / total rounded to two decimal places, and
// the correct count. A quiz with zero questions scores 0.
func Score(questions []models.QuizQuestion, answers map[string]string) (float64, int) {
	total := len(questions)
	if total == 0 {
		return 0, 0
	}

	correct := 0
	for idx, q := range questions {
		if q.Answer == "" {
			continue
		}
		if answers[strconv.Itoa(idx)] == q.Answer {
			correct++
		}
	}
	score := math.Round(100*float64(correct)/float64(total)*100) / 100
	return score, correct
}

// Generate builds a custom quiz for a module from LLM-generated questions
// and persists it as an uncompleted attempt.
func (e *Engine) Generate(ctx context.Context, moduleID string, req models.QuizGenerateRequest) (*models.QuizAttempt, error) {
	moduleName, err := e.moduleName(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	topics, err := e.blooms.LoadTopics(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if len(req.TopicIDs) > 0 {
		topics = filterTopics(topics, req.TopicIDs)
	}
	if len(topics) == 0 {
		return nil, bloom.ErrNoTopics
	}

	levels := req.BloomLevels
	if len(levels) == 0 {
		levels = []string{"Remember", "Understand"}
	}
	for _, lvl := range levels {
		if !bloom.IsLevel(lvl) {
			return nil, fmt.Errorf("invalid bloom level: %s", lvl)
		}
	}

	questions := e.generateQuestions(ctx, topics, moduleName, levels, req.NumQuestions)
	if len(questions) == 0 {
		db.LogError(e.pool, "quiz_generation", moduleID, "custom", "generator returned no valid questions")
		return nil, ErrNoQuestions
	}

	return e.createAttempt(ctx, req.StudentID, moduleID, questions, "custom")
}

// GetOrCreateWeekly returns the student's weekly quiz for a module,
// generating and persisting one from the module's full topic set when none
// exists yet. Weekly quizzes are retryable, so a completed weekly quiz is
// still returned rather than replaced.
func (e *Engine) GetOrCreateWeekly(ctx context.Context, studentID, moduleID string) (*models.QuizAttempt, error) {
	attempt, err := e.latestWeekly(ctx, studentID, moduleID)
	if err == nil {
		return attempt, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	moduleName, err := e.moduleName(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	topics, err := e.blooms.LoadTopics(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, bloom.ErrNoTopics
	}

	count := 10
	if v, err := db.GetSetting(e.pool, "weekly_quiz_question_count"); err == nil {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}
	levels := []string{"Remember", "Understand", "Apply"}
	if v, err := db.GetSetting(e.pool, "weekly_quiz_bloom_levels"); err == nil && v != "" {
		var configured []string
		for _, lvl := range strings.Split(v, ",") {
			lvl = strings.TrimSpace(lvl)
			if bloom.IsLevel(lvl) {
				configured = append(configured, lvl)
			}
		}
		if len(configured) > 0 {
			levels = configured
		}
	}

	questions := e.generateQuestions(ctx, topics, moduleName, levels, count)
	if len(questions) == 0 {
		db.LogError(e.pool, "quiz_generation", moduleID, "weekly", "generator returned no valid questions")
		return nil, ErrNoQuestions
	}

	return e.createAttempt(ctx, studentID, moduleID, questions, "weekly")
}

// Get loads a quiz attempt by id.
func (e *Engine) Get(ctx context.Context, quizID int) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	var quizJSON, answersJSON []byte
	err := e.pool.QueryRow(ctx, `
		SELECT id, student_id, module_id, quiz_data, student_answers, score, completed, quiz_type, created_at, updated_at
		FROM quiz_attempts WHERE id = $1
	`, quizID).Scan(
		&attempt.ID, &attempt.StudentID, &attempt.ModuleID, &quizJSON, &answersJSON,
		&attempt.Score, &attempt.Completed, &attempt.QuizType, &attempt.CreatedAt, &attempt.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz %d: %w", quizID, err)
	}

	if err := json.Unmarshal(quizJSON, &attempt.Questions); err != nil {
		return nil, fmt.Errorf("corrupt quiz_data for quiz %d: %w", quizID, err)
	}
	if err := json.Unmarshal(answersJSON, &attempt.StudentAnswers); err != nil {
		return nil, fmt.Errorf("corrupt student_answers for quiz %d: %w", quizID, err)
	}
	return &attempt, nil
}

// SaveAnswer stores one answer incrementally for an uncompleted quiz.
func (e *Engine) SaveAnswer(ctx context.Context, quizID int, studentID string, questionIndex int, answer string) error {
	attempt, err := e.Get(ctx, quizID)
	if err != nil {
		return err
	}
	if attempt.StudentID != studentID {
		return ErrForbidden
	}
	if attempt.Completed {
		return ErrCompleted
	}
	if questionIndex < 0 || questionIndex >= len(attempt.Questions) {
		return ErrBadIndex
	}

	if attempt.StudentAnswers == nil {
		attempt.StudentAnswers = make(map[string]string)
	}
	attempt.StudentAnswers[strconv.Itoa(questionIndex)] = answer

	answersJSON, err := json.Marshal(attempt.StudentAnswers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	_, err = e.pool.Exec(ctx, `
		UPDATE quiz_attempts SET student_answers = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`, answersJSON, quizID)
	if err != nil {
		return fmt.Errorf("failed to save answer for quiz %d: %w", quizID, err)
	}
	return nil
}

// Submit finalizes a quiz: stores the submitted answer map, computes the
// score, flags completion, and feeds correct answers into the bloom engine.
// Completion and the bloom merge run in one transaction so a failed merge
// leaves the quiz resubmittable. Completed custom quizzes reject
// re-submission; weekly quizzes may be retried, which recomputes the score
// and merges increments again.
func (e *Engine) Submit(ctx context.Context, quizID int, studentID string, answers map[string]string) (*models.QuizSubmitResponse, error) {
	attempt, err := e.Get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, ErrForbidden
	}
	if attempt.Completed && attempt.QuizType != "weekly" {
		return nil, ErrCompleted
	}

	score, correct := Score(attempt.Questions, answers)

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal answers: %w", err)
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin submit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE quiz_attempts
		SET student_answers = $1, score = $2, completed = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`, answersJSON, score, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize quiz %d: %w", quizID, err)
	}

	summary, err := e.blooms.UpdateFromQuiz(ctx, tx, studentID, attempt.ModuleID, attempt.Questions, answers)
	if err != nil {
		return nil, fmt.Errorf("failed to merge quiz results into bloom record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quiz submission: %w", err)
	}

	return &models.QuizSubmitResponse{
		Score:          score,
		CorrectCount:   correct,
		TotalQuestions: len(attempt.Questions),
		BloomSummary:   summary.ToMap(),
	}, nil
}

func (e *Engine) createAttempt(ctx context.Context, studentID, moduleID string, questions []models.QuizQuestion, quizType string) (*models.QuizAttempt, error) {
	quizJSON, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal questions: %w", err)
	}

	var id int
	err = e.pool.QueryRow(ctx, `
		INSERT INTO quiz_attempts (student_id, module_id, quiz_data, quiz_type)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, studentID, moduleID, quizJSON, quizType).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create quiz attempt: %w", err)
	}

	return e.Get(ctx, id)
}

func (e *Engine) latestWeekly(ctx context.Context, studentID, moduleID string) (*models.QuizAttempt, error) {
	var id int
	err := e.pool.QueryRow(ctx, `
		SELECT id FROM quiz_attempts
		WHERE student_id = $1 AND module_id = $2 AND quiz_type = 'weekly'
		ORDER BY created_at DESC LIMIT 1
	`, studentID, moduleID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up weekly quiz: %w", err)
	}
	return e.Get(ctx, id)
}

func (e *Engine) moduleName(ctx context.Context, moduleID string) (string, error) {
	var name string
	err := e.pool.QueryRow(ctx, `SELECT COALESCE(name, '') FROM modules WHERE id = $1`, moduleID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("module %s not found", moduleID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load module %s: %w", moduleID, err)
	}
	return name, nil
}

func filterTopics(topics []models.Topic, ids []string) []models.Topic {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	var filtered []models.Topic
	for _, t := range topics {
		if keep[t.ID] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
