package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"nala-server/bloom"
	"nala-server/llm"
	"nala-server/models"
)

// maxAttributableGap bounds how much idle time between two messages still
// counts as engagement with the earlier message's topic.
const maxAttributableGap = 30 * time.Minute

const tierPrompt = "You are a strict classifier. Classify the user's text into one Bloom's taxonomy level " +
	"from this set: [Remember, Understand, Apply, Analyze, Evaluate, Create]. Choose EXACTLY ONE best label. " +
	`Return ONLY a compact JSON string with keys: "labels" (array with one element), ` +
	`"scores" (object with a confidence for the chosen label in [0,1]), and "reasoning" (very short).`

// ClassifyHistory classifies every user message of a transcript into a
// single Bloom tier with confidence and reasoning. Messages the classifier
// cannot handle are omitted from the result, never fabricated.
func ClassifyHistory(ctx context.Context, client llm.Invoker, messages []models.TranscriptMessage) []models.MessageClassification {
	var results []models.MessageClassification
	for _, msg := range messages {
		if msg.MsgSender != "user" {
			continue
		}
		text := bloom.ExtractText(msg.MsgText)
		if strings.TrimSpace(text) == "" {
			continue
		}

		reply, err := client.Classify(ctx, text, tierPrompt)
		if err != nil {
			log.Printf("Tier classification failed: %v", err)
			continue
		}

		obj := jsonObject(reply)
		if obj == "" {
			continue
		}
		var parsed struct {
			Labels    []string           `json:"labels"`
			Scores    map[string]float64 `json:"scores"`
			Reasoning string             `json:"reasoning"`
		}
		if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
			continue
		}

		results = append(results, models.MessageClassification{
			Text:       text,
			Tier:       parsed.Labels,
			Confidence: parsed.Scores,
			Reasoning:  parsed.Reasoning,
		})
	}
	return results
}

// PercentagePerTopic reports each topic's share of a transcript's user
// messages, percentages rounded to two decimal places.
func PercentagePerTopic(ctx context.Context, client llm.Invoker, messages []models.TranscriptMessage, topics []models.Topic) ([]models.TopicPercentage, error) {
	counts, _, total := classifyTopics(ctx, client, messages, topics)
	if total == 0 {
		return nil, fmt.Errorf("no user messages found")
	}

	results := make([]models.TopicPercentage, 0, len(topics))
	for _, t := range topics {
		results = append(results, models.TopicPercentage{
			TopicID:    t.ID,
			TopicName:  t.Name,
			Count:      counts[t.ID],
			Percentage: round2(100 * float64(counts[t.ID]) / float64(total)),
		})
	}
	return results, nil
}

// TimeSpentPerTopic buckets the gaps between consecutive classified user
// messages under the earlier message's topic. Gaps above the attribution
// threshold are treated as breaks and ignored.
func TimeSpentPerTopic(ctx context.Context, client llm.Invoker, messages []models.TranscriptMessage, topics []models.Topic) ([]models.TopicTimeSpent, error) {
	_, assignments, total := classifyTopics(ctx, client, messages, topics)
	if total == 0 {
		return nil, fmt.Errorf("no user messages found")
	}

	minutes := make(map[string]float64, len(topics))
	for i := 0; i < len(assignments)-1; i++ {
		gap := assignments[i+1].at.Sub(assignments[i].at)
		if gap <= 0 || gap > maxAttributableGap {
			continue
		}
		minutes[assignments[i].topicID] += gap.Minutes()
	}

	var totalMinutes float64
	for _, m := range minutes {
		totalMinutes += m
	}

	results := make([]models.TopicTimeSpent, 0, len(topics))
	for _, t := range topics {
		entry := models.TopicTimeSpent{
			TopicID:   t.ID,
			TopicName: t.Name,
			Minutes:   round2(minutes[t.ID]),
		}
		if totalMinutes > 0 {
			entry.Percentage = round2(100 * minutes[t.ID] / totalMinutes)
		}
		results = append(results, entry)
	}
	return results, nil
}

type topicAssignment struct {
	topicID string
	at      time.Time
}

// classifyTopics assigns each user message of a transcript to exactly one
// topic. Unclassifiable messages are skipped; the returned total counts
// only successfully classified messages.
func classifyTopics(ctx context.Context, client llm.Invoker, messages []models.TranscriptMessage, topics []models.Topic) (map[string]int, []topicAssignment, int) {
	known := make(map[string]bool, len(topics))
	parts := make([]string, 0, len(topics))
	for _, t := range topics {
		known[t.ID] = true
		parts = append(parts, fmt.Sprintf("topic_id_%s: %s", t.ID, t.Name))
	}
	system := "You are a strict classifier. Classify the user's text into one topic from this set: [" +
		strings.Join(parts, ", ") + "]. Choose EXACTLY ONE best label, unclassifiable is NOT ALLOWED. " +
		"Return ONLY a compact JSON object with 'topic_id' (as a number)."

	counts := make(map[string]int, len(topics))
	var assignments []topicAssignment
	total := 0

	for _, msg := range messages {
		if msg.MsgSender != "user" {
			continue
		}
		text := bloom.ExtractText(msg.MsgText)
		if strings.TrimSpace(text) == "" {
			continue
		}

		reply, err := client.Classify(ctx, text, system)
		if err != nil {
			log.Printf("Topic classification failed: %v", err)
			continue
		}

		obj := jsonObject(reply)
		if obj == "" {
			continue
		}
		var parsed struct {
			TopicID json.Number `json:"topic_id"`
		}
		if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
			continue
		}
		tid := parsed.TopicID.String()
		if _, err := strconv.ParseInt(tid, 10, 64); err != nil || !known[tid] {
			continue
		}

		counts[tid]++
		assignments = append(assignments, topicAssignment{topicID: tid, at: msg.MsgTimestamp})
		total++
	}
	return counts, assignments, total
}

func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
