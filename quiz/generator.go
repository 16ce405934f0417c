// Package quiz generates, stores and scores multiple-choice quizzes and
// feeds correct answers into the bloom aggregation engine.
package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"nala-server/bloom"
	"nala-server/models"
	"nala-server/utils"
)

var optionLetters = []string{"A", "B", "C", "D"}

// generationPrompt builds the per-topic system prompt for the LLM generator.
func generationPrompt(topicName, moduleName string, bloomLevels []string, numQuestions int) string {
	levelsStr := strings.Join(bloomLevels, ", ")
	return fmt.Sprintf(
		"You are an educational quiz generator. Generate exactly %d multiple choice questions "+
			"about '%s', which is a topic of the subject '%s' with Bloom's taxonomy levels only from: [%s]. "+
			"Each question should have 4 options labeled A-D, with the correct answer indicated. "+
			`Return ONLY a JSON array of objects like [{"question": "...", "options": {"A": "...", "B": "...", "C": "...", "D": "..."}, "answer": "A", "bloom_level": "Apply"}].`,
		numQuestions, topicName, moduleName, levelsStr)
}

// firstJSONArray returns the substring from the first '[' through the last
// ']', or "" when no array is present.
func firstJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

// validQuestion checks one generated entry: exactly four options keyed A-D,
// a correct-answer letter among them, and a canonical bloom level. Malformed
// entries are dropped by the caller, never repaired.
func validQuestion(q models.QuizQuestion) bool {
	if strings.TrimSpace(q.Question) == "" {
		return false
	}
	if len(q.Options) != len(optionLetters) {
		return false
	}
	for _, letter := range optionLetters {
		if _, ok := q.Options[letter]; !ok {
			return false
		}
	}
	if !utils.ContainsString(optionLetters, q.Answer) {
		return false
	}
	if !bloom.IsLevel(q.BloomLevel) {
		return false
	}
	return true
}

// parseGenerated extracts and validates the question array from an LLM
// reply, tagging every surviving question with the topic id.
func parseGenerated(reply, topicID string) []models.QuizQuestion {
	arr := firstJSONArray(reply)
	if arr == "" {
		return nil
	}

	var raw []models.QuizQuestion
	if err := json.Unmarshal([]byte(arr), &raw); err != nil {
		return nil
	}

	var questions []models.QuizQuestion
	for _, q := range raw {
		if !validQuestion(q) {
			continue
		}
		q.TopicID = topicID
		questions = append(questions, q)
	}
	return questions
}

// generateQuestions partitions the requested count evenly across the topic
// set, invokes the generator once per topic, and trims the combined result
// to the exact requested total. Topics whose generation call yields no valid
// questions are discarded, not substituted.
func (e *Engine) generateQuestions(ctx context.Context, topics []models.Topic, moduleName string, bloomLevels []string, total int) []models.QuizQuestion {
	perTopic := total / len(topics)
	if perTopic < 1 {
		perTopic = 1
	}

	var questions []models.QuizQuestion
	for _, topic := range topics {
		system := generationPrompt(topic.Name, moduleName, bloomLevels, perTopic)
		text := fmt.Sprintf("Generate a %d-question quiz for %s, a topic of '%s'.", perTopic, topic.Name, moduleName)

		reply, err := e.client.Generate(ctx, text, system)
		if err != nil {
			log.Printf("Quiz generation failed for topic %s: %v", topic.ID, err)
			continue
		}

		generated := parseGenerated(reply, topic.ID)
		if len(generated) == 0 {
			log.Printf("No valid questions generated for topic %s", topic.ID)
			continue
		}
		questions = append(questions, generated...)
	}

	if len(questions) > total {
		questions = questions[:total]
	}
	return questions
}
