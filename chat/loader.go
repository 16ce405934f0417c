// Package chat loads conversation transcript files and computes the
// chat-history analytics views (classification, topic share, time spent).
package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nala-server/models"
)

// ResolvePath joins a caller-supplied transcript name with the configured
// chat history directory, rejecting traversal outside it.
func ResolvePath(historyDir, name string) (string, error) {
	cleaned := filepath.Clean("/" + name)
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid transcript path: %s", name)
	}
	return filepath.Join(historyDir, cleaned), nil
}

// LoadTranscript reads a conversation JSON file. The file may hold a list of
// messages, an object with a "messages" list, or a single message object.
func LoadTranscript(path string) ([]models.TranscriptMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript %s: %w", path, err)
	}
	return ParseTranscript(data)
}

// ParseTranscript decodes transcript JSON into a message list.
func ParseTranscript(data []byte) ([]models.TranscriptMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("transcript is empty")
	}

	var messages []models.TranscriptMessage
	if err := json.Unmarshal([]byte(trimmed), &messages); err == nil {
		return messages, nil
	}

	var wrapper struct {
		Messages []models.TranscriptMessage `json:"messages"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err == nil && wrapper.Messages != nil {
		return wrapper.Messages, nil
	}

	var single models.TranscriptMessage
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil && single.MsgText != "" {
		return []models.TranscriptMessage{single}, nil
	}

	return nil, fmt.Errorf("transcript has no recognizable message shape")
}
