package bloom

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nala-server/llm"
	"nala-server/models"
)

func testTopics() []models.Topic {
	return []models.Topic{
		{ID: "1", Name: "Neuron Structure"},
		{ID: "2", Name: "Action Potentials"},
	}
}

func TestParseClassificationValid(t *testing.T) {
	known := NewSummary([]string{"1", "2"})

	topicID, level, err := parseClassification(`{"topic_id": 1, "bloom_level": "Apply"}`, known)
	require.NoError(t, err)
	assert.Equal(t, "1", topicID)
	assert.Equal(t, "Apply", level)
}

func TestParseClassificationSurroundingProse(t *testing.T) {
	known := NewSummary([]string{"2"})

	reply := `Sure! Here is the classification: {"topic_id": 2, "bloom_level": "Create"} Hope that helps.`
	topicID, level, err := parseClassification(reply, known)
	require.NoError(t, err)
	assert.Equal(t, "2", topicID)
	assert.Equal(t, "Create", level)
}

func TestParseClassificationRejects(t *testing.T) {
	known := NewSummary([]string{"1"})

	cases := []string{
		`no json here`,
		`{"topic_id": 99, "bloom_level": "Apply"}`,
		`{"topic_id": 1.5, "bloom_level": "Apply"}`,
		`{"topic_id": 1, "bloom_level": "apply"}`,
		`{"topic_id": 1, "bloom_level": "Remembering"}`,
		`{"topic_id": 1}`,
		`{"bloom_level": "Apply"}`,
	}
	for _, reply := range cases {
		_, _, err := parseClassification(reply, known)
		assert.Error(t, err, "reply %q should be rejected", reply)
	}
}

func TestClassifyBatchSingleMessage(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Text: `{"topic_id": 1, "bloom_level": "Apply"}`})
	engine := NewEngine(nil, mock)

	messages := []models.TranscriptMessage{
		{MsgSender: "user", MsgText: "how do I apply this to a reflex arc?"},
	}
	batch, stats := engine.ClassifyBatch(context.Background(), messages, testTopics())

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 1, batch["1"]["Apply"])
	assert.Equal(t, 0, batch["2"]["Apply"])
}

func TestClassifyBatchSkipsNonUserAndEmpty(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Text: `{"topic_id": 2, "bloom_level": "Remember"}`})
	engine := NewEngine(nil, mock)

	messages := []models.TranscriptMessage{
		{MsgSender: "assistant", MsgText: "here is an explanation"},
		{MsgSender: "user", MsgText: "   "},
		{MsgSender: "user", MsgText: "what is an axon?"},
	}
	batch, stats := engine.ClassifyBatch(context.Background(), messages, testTopics())

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 1, batch["2"]["Remember"])
	// only the user message reached the classifier
	require.Len(t, mock.Calls, 1)
	assert.Equal(t, "what is an axon?", mock.Calls[0].Text)
}

func TestClassifyBatchCountsErrorsAndContinues(t *testing.T) {
	mock := llm.NewMock(
		llm.MockResponse{Err: fmt.Errorf("upstream timeout")},
		llm.MockResponse{Text: `{"topic_id": 42, "bloom_level": "Apply"}`},
		llm.MockResponse{Text: `{"topic_id": 1, "bloom_level": "Understand"}`},
	)
	engine := NewEngine(nil, mock)

	messages := []models.TranscriptMessage{
		{MsgSender: "user", MsgText: "first"},
		{MsgSender: "user", MsgText: "second"},
		{MsgSender: "user", MsgText: "third"},
	}
	batch, stats := engine.ClassifyBatch(context.Background(), messages, testTopics())

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 2, stats.Errors)
	assert.Equal(t, 1, batch["1"]["Understand"])
	assert.Equal(t, 0, Total(batch["2"]))
}

func TestClassifyBatchExtractsRichText(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Text: `{"topic_id": 1, "bloom_level": "Remember"}`})
	engine := NewEngine(nil, mock)

	messages := []models.TranscriptMessage{
		{MsgSender: "user", MsgText: `[{"type": "text", "text": "name the parts of a neuron"}]`},
	}
	_, stats := engine.ClassifyBatch(context.Background(), messages, testTopics())

	assert.Equal(t, 1, stats.Processed)
	require.Len(t, mock.Calls, 1)
	assert.Equal(t, "name the parts of a neuron", mock.Calls[0].Text)
}

func TestClassificationPromptListsTopics(t *testing.T) {
	prompt := classificationPrompt(testTopics())
	assert.Contains(t, prompt, "topic_id_1: Neuron Structure")
	assert.Contains(t, prompt, "topic_id_2: Action Potentials")
	for _, lvl := range Levels {
		assert.Contains(t, prompt, lvl)
	}
}

func TestQuizIncrementsCountsOnlyCorrectAnswers(t *testing.T) {
	questions := []models.QuizQuestion{
		{Question: "q0", Answer: "A", BloomLevel: "Remember", TopicID: "1"},
		{Question: "q1", Answer: "C", BloomLevel: "Apply", TopicID: "2"},
	}
	answers := map[string]string{"0": "A", "1": "B"}

	inc := QuizIncrements(questions, answers)

	assert.Equal(t, 1, inc["1"]["Remember"])
	_, ok := inc["2"]
	assert.False(t, ok, "wrong answer must contribute nothing")
}

func TestQuizIncrementsSkipsMalformedQuestions(t *testing.T) {
	tests := []struct {
		name     string
		question models.QuizQuestion
		answers  map[string]string
	}{
		{"empty answer key", models.QuizQuestion{Question: "q", Answer: "", BloomLevel: "Apply", TopicID: "1"}, map[string]string{"0": ""}},
		{"missing topic id", models.QuizQuestion{Question: "q", Answer: "B", BloomLevel: "Apply", TopicID: ""}, map[string]string{"0": "B"}},
		{"invalid bloom level", models.QuizQuestion{Question: "q", Answer: "B", BloomLevel: "apply", TopicID: "1"}, map[string]string{"0": "B"}},
		{"unanswered", models.QuizQuestion{Question: "q", Answer: "B", BloomLevel: "Apply", TopicID: "1"}, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := QuizIncrements([]models.QuizQuestion{tt.question}, tt.answers)
			assert.Empty(t, inc)
		})
	}
}

func TestQuizIncrementsAccumulatesPerTopicAndLevel(t *testing.T) {
	questions := []models.QuizQuestion{
		{Question: "q0", Answer: "A", BloomLevel: "Remember", TopicID: "1"},
		{Question: "q1", Answer: "B", BloomLevel: "Remember", TopicID: "1"},
		{Question: "q2", Answer: "C", BloomLevel: "Create", TopicID: "2"},
	}
	answers := map[string]string{"0": "A", "1": "B", "2": "C"}

	inc := QuizIncrements(questions, answers)

	assert.Equal(t, 2, inc["1"]["Remember"])
	assert.Equal(t, 1, inc["2"]["Create"])
}

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

// fakeTx satisfies pgx.Tx for exercising the merge cycle without a database.
type fakeTx struct {
	summary   []byte
	execArgs  [][]any
	committed bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(ctx context.Context) error          { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error        { return nil }
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execArgs = append(t.execArgs, args)
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{data: t.summary}
}
func (t *fakeTx) Conn() *pgx.Conn { return nil }

func TestUpdateFromQuizMergesWithinCallerTransaction(t *testing.T) {
	engine := NewEngine(nil, nil)
	tx := &fakeTx{summary: []byte(`{"1": {"Remember": 2}}`)}

	questions := []models.QuizQuestion{
		{Question: "q0", Answer: "A", BloomLevel: "Remember", TopicID: "1"},
		{Question: "q1", Answer: "C", BloomLevel: "Apply", TopicID: "2"},
	}
	answers := map[string]string{"0": "A", "1": "B"}

	merged, err := engine.UpdateFromQuiz(context.Background(), tx, "s1", "m1", questions, answers)
	require.NoError(t, err)

	assert.Equal(t, 3, merged["1"]["Remember"])
	assert.Equal(t, 0, merged["2"]["Apply"])
	assert.False(t, tx.committed, "commit belongs to the caller")

	// The last exec writes the merged summary back.
	require.NotEmpty(t, tx.execArgs)
	last := tx.execArgs[len(tx.execArgs)-1]
	var persisted map[string]map[string]int
	require.NoError(t, json.Unmarshal(last[0].([]byte), &persisted))
	assert.Equal(t, 3, persisted["1"]["Remember"])
}

func TestUpdateFromQuizFailedMergeReturnsError(t *testing.T) {
	engine := NewEngine(nil, nil)
	tx := &fakeTx{summary: []byte(`not json`)}

	questions := []models.QuizQuestion{
		{Question: "q0", Answer: "A", BloomLevel: "Remember", TopicID: "1"},
	}
	_, err := engine.UpdateFromQuiz(context.Background(), tx, "s1", "m1", questions, map[string]string{"0": "A"})
	require.Error(t, err)
	assert.False(t, tx.committed)
}
