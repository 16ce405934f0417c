package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nala-server/llm"
	"nala-server/models"
)

func analyticsTopics() []models.Topic {
	return []models.Topic{
		{ID: "1", Name: "Neuron Structure"},
		{ID: "2", Name: "Action Potentials"},
	}
}

func userMsg(text string, at time.Time) models.TranscriptMessage {
	return models.TranscriptMessage{MsgSender: "user", MsgText: text, MsgTimestamp: at}
}

func TestClassifyHistory(t *testing.T) {
	mock := llm.NewMock(
		llm.MockResponse{Text: `{"labels": ["Apply"], "scores": {"Apply": 0.92}, "reasoning": "applies a concept"}`},
	)
	messages := []models.TranscriptMessage{
		{MsgSender: "assistant", MsgText: "let me explain"},
		userMsg("how would I apply this to a reflex arc?", time.Time{}),
	}

	results := ClassifyHistory(context.Background(), mock, messages)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"Apply"}, results[0].Tier)
	assert.Equal(t, 0.92, results[0].Confidence["Apply"])
	assert.Equal(t, "applies a concept", results[0].Reasoning)
	require.Len(t, mock.Calls, 1)
}

func TestClassifyHistorySkipsFailures(t *testing.T) {
	mock := llm.NewMock(
		llm.MockResponse{Err: fmt.Errorf("upstream down")},
		llm.MockResponse{Text: "not json at all"},
		llm.MockResponse{Text: `{"labels": ["Remember"], "scores": {"Remember": 0.8}, "reasoning": "recall"}`},
	)
	messages := []models.TranscriptMessage{
		userMsg("first", time.Time{}),
		userMsg("second", time.Time{}),
		userMsg("third", time.Time{}),
	}

	results := ClassifyHistory(context.Background(), mock, messages)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"Remember"}, results[0].Tier)
}

func TestPercentagePerTopic(t *testing.T) {
	mock := llm.NewMock(
		llm.MockResponse{Text: `{"topic_id": 1}`},
		llm.MockResponse{Text: `{"topic_id": 1}`},
		llm.MockResponse{Text: `{"topic_id": 2}`},
	)
	messages := []models.TranscriptMessage{
		userMsg("a", time.Time{}),
		userMsg("b", time.Time{}),
		userMsg("c", time.Time{}),
	}

	results, err := PercentagePerTopic(context.Background(), mock, messages, analyticsTopics())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "1", results[0].TopicID)
	assert.Equal(t, 2, results[0].Count)
	assert.Equal(t, 66.67, results[0].Percentage)

	assert.Equal(t, "2", results[1].TopicID)
	assert.Equal(t, 1, results[1].Count)
	assert.Equal(t, 33.33, results[1].Percentage)
}

func TestPercentagePerTopicDropsUnknownTopics(t *testing.T) {
	mock := llm.NewMock(
		llm.MockResponse{Text: `{"topic_id": 99}`},
		llm.MockResponse{Text: `{"topic_id": 2}`},
	)
	messages := []models.TranscriptMessage{
		userMsg("a", time.Time{}),
		userMsg("b", time.Time{}),
	}

	results, err := PercentagePerTopic(context.Background(), mock, messages, analyticsTopics())
	require.NoError(t, err)
	assert.Equal(t, 0, results[0].Count)
	assert.Equal(t, 1, results[1].Count)
	assert.Equal(t, 100.0, results[1].Percentage)
}

func TestPercentagePerTopicNoUserMessages(t *testing.T) {
	mock := llm.NewMock()
	messages := []models.TranscriptMessage{
		{MsgSender: "assistant", MsgText: "hello"},
	}
	_, err := PercentagePerTopic(context.Background(), mock, messages, analyticsTopics())
	assert.Error(t, err)
}

func TestTimeSpentPerTopicBucketsGaps(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mock := llm.NewMock(
		llm.MockResponse{Text: `{"topic_id": 1}`},
		llm.MockResponse{Text: `{"topic_id": 1}`},
		llm.MockResponse{Text: `{"topic_id": 2}`},
	)
	messages := []models.TranscriptMessage{
		userMsg("a", base),
		userMsg("b", base.Add(10*time.Minute)),
		userMsg("c", base.Add(15*time.Minute)),
	}

	results, err := TimeSpentPerTopic(context.Background(), mock, messages, analyticsTopics())
	require.NoError(t, err)
	require.Len(t, results, 2)

	// 10 min between the two topic-1 messages, then 5 min attributed to
	// topic 1 again since it owns the earlier endpoint of the second gap.
	assert.Equal(t, 15.0, results[0].Minutes)
	assert.Equal(t, 100.0, results[0].Percentage)
	assert.Equal(t, 0.0, results[1].Minutes)
}

func TestTimeSpentPerTopicIgnoresLongBreaks(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mock := llm.NewMock(
		llm.MockResponse{Text: `{"topic_id": 1}`},
		llm.MockResponse{Text: `{"topic_id": 1}`},
		llm.MockResponse{Text: `{"topic_id": 1}`},
	)
	messages := []models.TranscriptMessage{
		userMsg("a", base),
		userMsg("b", base.Add(2*time.Hour)), // lunch break, not study time
		userMsg("c", base.Add(2*time.Hour+5*time.Minute)),
	}

	results, err := TimeSpentPerTopic(context.Background(), mock, messages, analyticsTopics())
	require.NoError(t, err)
	assert.Equal(t, 5.0, results[0].Minutes)
}

func TestClassifyTopicsPromptListsTopicSet(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Text: `{"topic_id": 1}`})
	messages := []models.TranscriptMessage{userMsg("a", time.Time{})}

	classifyTopics(context.Background(), mock, messages, analyticsTopics())
	require.Len(t, mock.Calls, 1)
	assert.Contains(t, mock.Calls[0].System, "topic_id_1: Neuron Structure")
	assert.Contains(t, mock.Calls[0].System, "topic_id_2: Action Potentials")
}
