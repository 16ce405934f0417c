package bloom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nala-server/llm"
	"nala-server/models"
)

// ErrNoTopics is returned when a module has no topics configured; the batch
// is aborted before any state is written.
var ErrNoTopics = errors.New("no topics configured for module")

// BatchStats reports what a classification batch lost along the way.
type BatchStats struct {
	Processed int
	Skipped   int
	Errors    int
}

// Engine converts classified messages and quiz results into monotonic
// per-topic, per-level increments merged into the persisted record for a
// (student, module) pair.
type Engine struct {
	pool   *pgxpool.Pool
	client llm.Invoker
}

// NewEngine creates an aggregation engine with an injected classifier client.
func NewEngine(pool *pgxpool.Pool, client llm.Invoker) *Engine {
	return &Engine{pool: pool, client: client}
}

// LoadTopics fetches the topic set (id, name, summary) for a module.
func (e *Engine) LoadTopics(ctx context.Context, moduleID string) ([]models.Topic, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(summary, '')
		FROM nodes
		WHERE module_id = $1 AND node_type = 'topic'
		ORDER BY id
	`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics for module %s: %w", moduleID, err)
	}
	defer rows.Close()

	var topics []models.Topic
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// classificationPrompt builds the exactly-one-topic, exactly-one-level
// system prompt for a module's topic set.
func classificationPrompt(topics []models.Topic) string {
	parts := make([]string, 0, len(topics))
	for _, t := range topics {
		parts = append(parts, fmt.Sprintf("topic_id_%s: %s", t.ID, t.Name))
	}
	return "You are a strict classifier. " +
		"Classify the student's message into ONE topic from this list: [" + strings.Join(parts, ", ") + "] " +
		"and ONE Bloom's Taxonomy level from [Remember, Understand, Apply, Analyze, Evaluate, Create]. " +
		"Return ONLY a JSON object with 'topic_id' (as a number) and 'bloom_level' (exact spelling). " +
		`Example: {"topic_id": 1, "bloom_level": "Apply"}`
}

// firstJSONObject returns the substring from the first '{' through the last
// '}', or "" when no object is present.
func firstJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

// parseClassification validates a classifier reply against the known topic
// set. topic_id must be an integer-valued JSON number matching a known id;
// bloom_level must be one of the canonical labels, exact spelling. Nothing
// is guessed or coerced.
func parseClassification(reply string, known Summary) (topicID, level string, err error) {
	obj := firstJSONObject(reply)
	if obj == "" {
		return "", "", fmt.Errorf("no JSON object in reply")
	}

	var parsed struct {
		TopicID    json.Number `json:"topic_id"`
		BloomLevel string      `json:"bloom_level"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return "", "", fmt.Errorf("invalid JSON in reply: %w", err)
	}

	if parsed.TopicID.String() == "" || parsed.BloomLevel == "" {
		return "", "", fmt.Errorf("missing topic_id or bloom_level")
	}
	if _, err := strconv.ParseInt(parsed.TopicID.String(), 10, 64); err != nil {
		return "", "", fmt.Errorf("topic_id is not an integer: %s", parsed.TopicID)
	}

	tid := parsed.TopicID.String()
	if _, ok := known[tid]; !ok {
		return "", "", fmt.Errorf("unknown topic_id: %s", tid)
	}
	if !IsLevel(parsed.BloomLevel) {
		return "", "", fmt.Errorf("invalid bloom_level: %s", parsed.BloomLevel)
	}
	return tid, parsed.BloomLevel, nil
}

// ClassifyBatch runs the classifier over a message batch in input order and
// returns the per-topic increment counters. Non-user messages and empty
// texts are skipped; classifier failures and invalid replies are counted as
// errors and contribute nothing. The batch never aborts on a bad message.
func (e *Engine) ClassifyBatch(ctx context.Context, messages []models.TranscriptMessage, topics []models.Topic) (Summary, BatchStats) {
	topicIDs := make([]string, 0, len(topics))
	for _, t := range topics {
		topicIDs = append(topicIDs, t.ID)
	}
	batch := NewSummary(topicIDs)
	system := classificationPrompt(topics)

	var stats BatchStats
	for _, msg := range messages {
		if msg.MsgSender != "user" {
			stats.Skipped++
			continue
		}

		text := ExtractText(msg.MsgText)
		if strings.TrimSpace(text) == "" {
			stats.Skipped++
			continue
		}

		reply, err := e.client.Classify(ctx, text, system)
		if err != nil {
			log.Printf("Classification call failed for message %d: %v", msg.MsgID, err)
			stats.Errors++
			continue
		}

		topicID, level, err := parseClassification(reply, batch)
		if err != nil {
			log.Printf("Discarding classification for message %d: %v", msg.MsgID, err)
			stats.Errors++
			continue
		}

		batch[topicID][level]++
		stats.Processed++
	}
	return batch, stats
}

// UpdateFromTranscript classifies a message batch for a (student, module)
// pair and merges the increments into the persisted record. Aborts with
// ErrNoTopics before any write when the module has no topics.
func (e *Engine) UpdateFromTranscript(ctx context.Context, studentID, moduleID string, messages []models.TranscriptMessage) (Summary, BatchStats, error) {
	topics, err := e.LoadTopics(ctx, moduleID)
	if err != nil {
		return nil, BatchStats{}, err
	}
	if len(topics) == 0 {
		return nil, BatchStats{}, ErrNoTopics
	}

	batch, stats := e.ClassifyBatch(ctx, messages, topics)

	merged, err := e.mergeLocked(ctx, studentID, moduleID, batch)
	if err != nil {
		return nil, stats, err
	}
	return merged, stats, nil
}

// QuizIncrements selects the increments a quiz submission earns. Unlike the
// chat path, which counts attempts regardless of correctness, this only
// counts demonstrated mastery: a question contributes exactly when the
// submitted choice equals the recorded answer. Questions missing an answer
// key, a topic id or a canonical bloom level are skipped.
func QuizIncrements(questions []models.QuizQuestion, answers map[string]string) Summary {
	increments := make(Summary)
	for idx, q := range questions {
		submitted, ok := answers[strconv.Itoa(idx)]
		if !ok || submitted != q.Answer || q.Answer == "" {
			continue
		}
		if q.TopicID == "" || !IsLevel(q.BloomLevel) {
			continue
		}
		if _, ok := increments[q.TopicID]; !ok {
			increments[q.TopicID] = NewCounter()
		}
		increments[q.TopicID][q.BloomLevel]++
	}
	return increments
}

// UpdateFromQuiz merges increments for correctly answered questions into the
// persisted record inside the caller's transaction, so quiz completion and
// the bloom merge commit or roll back together.
func (e *Engine) UpdateFromQuiz(ctx context.Context, tx pgx.Tx, studentID, moduleID string, questions []models.QuizQuestion, answers map[string]string) (Summary, error) {
	return e.mergeTx(ctx, tx, studentID, moduleID, QuizIncrements(questions, answers))
}

// mergeLocked wraps mergeTx in its own transaction for callers without one.
func (e *Engine) mergeLocked(ctx context.Context, studentID, moduleID string, increments Summary) (Summary, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	merged, err := e.mergeTx(ctx, tx, studentID, moduleID, increments)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}
	return merged, nil
}

// mergeTx is the single mutation routine for persisted summaries: a
// read-merge-write cycle holding a row lock on the (student, module) record
// so concurrent submissions cannot clobber each other's increments. The
// caller owns the transaction and its commit.
func (e *Engine) mergeTx(ctx context.Context, tx pgx.Tx, studentID, moduleID string, increments Summary) (Summary, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO bloom_records (student_id, module_id, bloom_summary)
		VALUES ($1, $2, '{}'::jsonb)
		ON CONFLICT (student_id, module_id) DO NOTHING
	`, studentID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure bloom record: %w", err)
	}

	var summaryJSON []byte
	err = tx.QueryRow(ctx, `
		SELECT bloom_summary FROM bloom_records
		WHERE student_id = $1 AND module_id = $2
		FOR UPDATE
	`, studentID, moduleID).Scan(&summaryJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to lock bloom record: %w", err)
	}

	var persisted map[string]map[string]int
	if err := json.Unmarshal(summaryJSON, &persisted); err != nil {
		return nil, fmt.Errorf("corrupt bloom_summary for student %s module %s: %w", studentID, moduleID, err)
	}

	merged := FromMap(persisted)
	Merge(merged, increments)

	updatedJSON, err := json.Marshal(merged.ToMap())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged summary: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE bloom_records SET bloom_summary = $1
		WHERE student_id = $2 AND module_id = $3
	`, updatedJSON, studentID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to write merged summary: %w", err)
	}
	return merged, nil
}

// AdvanceLastProcessed records the newest message id a caller has fed
// through the pipeline. Callers own this bookkeeping; the engine itself
// performs no dedup of already-processed ids.
func (e *Engine) AdvanceLastProcessed(ctx context.Context, studentID, moduleID, msgID string) error {
	_, err := e.pool.Exec(ctx, `
		UPDATE bloom_records SET last_processed_msg_id = $1
		WHERE student_id = $2 AND module_id = $3
	`, msgID, studentID, moduleID)
	if err != nil {
		return fmt.Errorf("failed to advance last processed msg id: %w", err)
	}
	return nil
}

// Summary returns the persisted summary for a (student, module) pair, or an
// empty summary when no record exists yet.
func (e *Engine) Summary(ctx context.Context, studentID, moduleID string) (Summary, error) {
	var summaryJSON []byte
	err := e.pool.QueryRow(ctx, `
		SELECT bloom_summary FROM bloom_records
		WHERE student_id = $1 AND module_id = $2
	`, studentID, moduleID).Scan(&summaryJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bloom record: %w", err)
	}

	var persisted map[string]map[string]int
	if err := json.Unmarshal(summaryJSON, &persisted); err != nil {
		return nil, fmt.Errorf("corrupt bloom_summary for student %s module %s: %w", studentID, moduleID, err)
	}
	return FromMap(persisted), nil
}

// TopicSummary returns the counter for a single topic, or an empty counter
// when the topic has no entry yet.
func (e *Engine) TopicSummary(ctx context.Context, studentID, moduleID, topicID string) (Counter, error) {
	summary, err := e.Summary(ctx, studentID, moduleID)
	if err != nil {
		return nil, err
	}
	if counts, ok := summary[topicID]; ok {
		return counts, nil
	}
	return Counter{}, nil
}

// Restore fully replaces the persisted summary with a snapshot. This is an
// idempotent overwrite, not a merge.
func (e *Engine) Restore(ctx context.Context, studentID, moduleID string, snapshot map[string]map[string]int) (Summary, error) {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = e.pool.Exec(ctx, `
		INSERT INTO bloom_records (student_id, module_id, bloom_summary)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, module_id) DO UPDATE SET bloom_summary = EXCLUDED.bloom_summary
	`, studentID, moduleID, snapshotJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to restore bloom record: %w", err)
	}
	return FromMap(snapshot), nil
}

// Progression lists, per topic a student has counts for, the highest
// non-zero Bloom level. moduleID narrows the view to one module when set.
func (e *Engine) Progression(ctx context.Context, studentID, moduleID string) ([]models.TopicProgression, error) {
	query := `
		SELECT br.module_id, COALESCE(m.name, ''), br.bloom_summary
		FROM bloom_records br
		JOIN modules m ON br.module_id = m.id
		WHERE br.student_id = $1
	`
	args := []any{studentID}
	if moduleID != "" {
		query += " AND br.module_id = $2"
		args = append(args, moduleID)
	}
	query += " ORDER BY br.module_id"

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bloom records: %w", err)
	}
	defer rows.Close()

	type record struct {
		moduleID   string
		moduleName string
		summary    map[string]map[string]int
	}
	var records []record
	for rows.Next() {
		var r record
		var summaryJSON []byte
		if err := rows.Scan(&r.moduleID, &r.moduleName, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan bloom record: %w", err)
		}
		if err := json.Unmarshal(summaryJSON, &r.summary); err != nil {
			return nil, fmt.Errorf("corrupt bloom_summary in module %s: %w", r.moduleID, err)
		}
		records = append(records, r)
	}
	rows.Close()

	progression := []models.TopicProgression{}
	for _, r := range records {
		topics, err := e.LoadTopics(ctx, r.moduleID)
		if err != nil {
			return nil, err
		}
		names := make(map[string]string, len(topics))
		for _, t := range topics {
			names[t.ID] = t.Name
		}

		for _, t := range topics {
			counts, ok := r.summary[t.ID]
			if !ok {
				continue
			}
			c := FromMap(map[string]map[string]int{t.ID: counts})[t.ID]
			highest := HighestLevel(c)
			if highest == "" {
				continue
			}
			progression = append(progression, models.TopicProgression{
				ModuleID:     r.moduleID,
				ModuleName:   r.moduleName,
				TopicID:      t.ID,
				TopicName:    names[t.ID],
				HighestLevel: highest,
				TotalCount:   Total(c),
			})
		}
	}
	return progression, nil
}
