// --- nala-server/models/models.go ---
package models

import (
	"time"
)

// Module struct represents a course module
type Module struct {
	ID         string    `json:"id"`
	IndexLabel string    `json:"index"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	TopicCount int       `json:"topic_count,omitempty"` // For API response
}

// Node struct represents a threadmap node (topic or concept)
type Node struct {
	ID             string  `json:"id"`
	NodeType       string  `json:"node_type"` // "topic" or "concept"
	Name           string  `json:"name"`
	Summary        string  `json:"summary"`
	ModuleID       string  `json:"module_id"`
	WeekNo         *string `json:"week_no"`
	RelatedTopicID *string `json:"related_topic_id,omitempty"` // For concepts only
}

// Relationship struct links two nodes in the threadmap
type Relationship struct {
	ID           string  `json:"id"`
	FirstNodeID  string  `json:"first_node_id"`
	SecondNodeID string  `json:"second_node_id"`
	RsType       string  `json:"rs_type"`
	WeekNo       *string `json:"week_no"`
}

// Topic is the abridged topic view handed to the classifier prompt builder.
type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Student struct represents a student
type Student struct {
	ID                     string             `json:"id"`
	Name                   string             `json:"name"`
	Email                  string             `json:"email"`
	LearningStyle          string             `json:"learning_style"`
	LearningStyleBreakdown map[string]float64 `json:"learning_style_breakdown"`
	LearningStyleDesc      string             `json:"learning_style_description,omitempty"`
	EnrolledModules        []string           `json:"enrolled_modules,omitempty"`
}

// Conversation groups messages between a student and the chatbot
type Conversation struct {
	ConvoID          int       `json:"convo_id"`
	StudentID        string    `json:"student_id"`
	ModuleID         string    `json:"module_id"`
	ConvoTitle       string    `json:"convo_title"`
	ConvoCreatedDate time.Time `json:"convo_created_date"`
	ConvoDuration    *int      `json:"convo_duration"`
}

// Message struct represents a single chat message
type Message struct {
	MsgID          int       `json:"msg_id"`
	ConversationID int       `json:"conversation_id"`
	StudentID      string    `json:"student_id"`
	ModuleID       string    `json:"module_id"`
	MsgSender      string    `json:"msg_sender"` // "user" or "assistant"
	MsgText        string    `json:"msg_text"`
	MsgTimestamp   time.Time `json:"msg_timestamp"`
}

// TranscriptMessage is the shape consumed by the bloom aggregation engine.
// It covers both DB-backed messages and messages loaded from transcript files.
type TranscriptMessage struct {
	MsgID        int       `json:"msg_id,omitempty"`
	MsgSender    string    `json:"msg_sender"`
	MsgText      string    `json:"msg_text"`
	MsgTimestamp time.Time `json:"msg_timestamp,omitempty"`
}

// StudentNote holds a student's free-form notes for a topic
type StudentNote struct {
	ID        int       `json:"id"`
	StudentID string    `json:"student_id"`
	TopicID   string    `json:"topic_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuizQuestion is a single generated multiple-choice question.
// Options are keyed by letter (A-D); Answer holds the correct letter.
type QuizQuestion struct {
	Question   string            `json:"question"`
	Options    map[string]string `json:"options"`
	Answer     string            `json:"answer"`
	BloomLevel string            `json:"bloom_level"`
	TopicID    string            `json:"topic_id"`
}

// QuizAttempt tracks a quiz through generation, answering and scoring
type QuizAttempt struct {
	ID             int               `json:"quiz_history_id"`
	StudentID      string            `json:"student_id"`
	ModuleID       string            `json:"module_id"`
	Questions      []QuizQuestion    `json:"questions"`
	StudentAnswers map[string]string `json:"student_answers"` // question index -> letter
	Score          *float64          `json:"score"`
	Completed      bool              `json:"completed"`
	QuizType       string            `json:"quiz_type"` // "weekly" or "custom"
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// BloomRecord is the persisted per-(student, module) taxonomy histogram
type BloomRecord struct {
	ID                 int                       `json:"id"`
	StudentID          string                    `json:"student_id"`
	ModuleID           string                    `json:"module_id"`
	BloomSummary       map[string]map[string]int `json:"bloom_summary"`
	LastProcessedMsgID *string                   `json:"last_processed_msg_id"`
}

// BloomInitializeRequest triggers classification of a transcript file
type BloomInitializeRequest struct {
	StudentID    string `json:"student_id" binding:"required"`
	ModuleID     string `json:"module_id" binding:"required"`
	ChatFilepath string `json:"chat_filepath" binding:"required"`
}

// BloomMessagesRequest triggers classification of stored messages
type BloomMessagesRequest struct {
	StudentID  string `json:"student_id" binding:"required"`
	ModuleID   string `json:"module_id" binding:"required"`
	MessageIDs []int  `json:"message_ids" binding:"required"`
}

// BloomRestoreRequest fully replaces a persisted bloom summary.
// An empty or omitted summary resets the record to all-zero.
type BloomRestoreRequest struct {
	StudentID    string                    `json:"student_id" binding:"required"`
	ModuleID     string                    `json:"module_id" binding:"required"`
	BloomSummary map[string]map[string]int `json:"bloom_summary"`
}

// BloomUpdateResponse reports the merged summary and what the batch lost
type BloomUpdateResponse struct {
	BloomSummary map[string]map[string]int `json:"bloom_summary"`
	Processed    int                       `json:"processed"`
	Skipped      int                       `json:"skipped"`
	Errors       int                       `json:"errors"`
}

// TopicProgression is one entry of the bloom progression view
type TopicProgression struct {
	ModuleID     string `json:"module_id"`
	ModuleName   string `json:"module_name"`
	TopicID      string `json:"topic_id"`
	TopicName    string `json:"topic_name"`
	HighestLevel string `json:"highest_level"`
	TotalCount   int    `json:"total_count"`
}

// QuizGenerateRequest asks for a custom LLM-generated quiz
type QuizGenerateRequest struct {
	StudentID    string   `json:"student_id" binding:"required"`
	NumQuestions int      `json:"num_questions" binding:"required,min=1"`
	BloomLevels  []string `json:"bloom_levels"`
	TopicIDs     []string `json:"topic_ids"`
}

// QuizAnswerRequest saves one answer incrementally
type QuizAnswerRequest struct {
	StudentID     string `json:"student_id" binding:"required"`
	QuestionIndex int    `json:"question_index"`
	Answer        string `json:"answer" binding:"required"`
}

// QuizSubmitRequest finalizes a quiz with the full answer map
type QuizSubmitRequest struct {
	StudentID string            `json:"student_id" binding:"required"`
	Answers   map[string]string `json:"answers" binding:"required"`
}

// QuizSubmitResponse reports the score and the merged bloom summary
type QuizSubmitResponse struct {
	Score          float64                   `json:"score"`
	CorrectCount   int                       `json:"correct_count"`
	TotalQuestions int                       `json:"total_questions"`
	BloomSummary   map[string]map[string]int `json:"bloom_summary"`
}

// PredictRequest carries the study-hours predictor features
type PredictRequest struct {
	BloomLevel      string `json:"bloom_level" binding:"required"`
	TopicDifficulty int    `json:"topic_difficulty"`
	PreviousGrade   int    `json:"previous_grade"`
}

// PredictResponse carries the predicted study hours
type PredictResponse struct {
	PredictedHours float64 `json:"predicted_hours"`
}

// AdminModuleCreateRequest for the admin module CRUD surface
type AdminModuleCreateRequest struct {
	ID         string `json:"id" binding:"required"`
	IndexLabel string `json:"index"`
	Name       string `json:"name" binding:"required"`
}

// MessageClassification is the per-message result of the chat-history
// classification view (single label plus confidence and reasoning).
type MessageClassification struct {
	Text       string             `json:"text"`
	Tier       []string           `json:"tier"`
	Confidence map[string]float64 `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
}

// TopicPercentage is one row of the percentage-per-topic analytics view
type TopicPercentage struct {
	TopicID    string  `json:"topic_id"`
	TopicName  string  `json:"topic"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// TopicTimeSpent is one row of the time-spent-per-topic analytics view
type TopicTimeSpent struct {
	TopicID    string  `json:"topic_id"`
	TopicName  string  `json:"topic"`
	Minutes    float64 `json:"minutes"`
	Percentage float64 `json:"percentage"`
}

// ErrorLog represents an entry in the error_logs table
type ErrorLog struct {
	ID           int       `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
	ModuleID     string    `json:"module_id"`
	Detail       string    `json:"detail"`
	ErrorMessage string    `json:"error_message"`
}

// AdminEvent represents an entry in the admin_events table
type AdminEvent struct {
	ID        int       `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Target    string    `json:"target"`
	Notes     string    `json:"notes"`
}

// Setting represents an entry in the settings table
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedBy   string    `json:"updated_by"`
}

// ModuleYAML for parsing module.yaml fixture metadata
type ModuleYAML struct {
	ID         string `yaml:"id"`
	IndexLabel string `yaml:"index"`
	Name       string `yaml:"name"`
}
