// --- nala-server/handlers/bloom_handlers.go ---
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"nala-server/bloom"
	"nala-server/chat"
	"nala-server/db"
	"nala-server/models"
)

// requireStudentAndModule answers 404 when either side of a (student, module)
// pair does not exist. Returns false after writing the response.
func requireStudentAndModule(c *gin.Context, pool *pgxpool.Pool, studentID, moduleID string) bool {
	exists, err := db.StudentExists(pool, studentID)
	if err != nil {
		log.Printf("Error checking student %s: %v", studentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify student"})
		return false
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Student %s not found", studentID)})
		return false
	}
	exists, err = db.ModuleExists(pool, moduleID)
	if err != nil {
		log.Printf("Error checking module %s: %v", moduleID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify module"})
		return false
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Module %s not found", moduleID)})
		return false
	}
	return true
}

// BloomInitialize classifies a transcript file and merges the result into
// the student's persisted summary.
// POST /api/bloom/initialize/
func BloomInitialize(pool *pgxpool.Pool, engine *bloom.Engine, historyDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BloomInitializeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !requireStudentAndModule(c, pool, req.StudentID, req.ModuleID) {
			return
		}

		path, err := chat.ResolvePath(historyDir, req.ChatFilepath)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		messages, err := chat.LoadTranscript(path)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Failed to load chat history file: %v", err)})
			return
		}

		summary, stats, err := engine.UpdateFromTranscript(c.Request.Context(), req.StudentID, req.ModuleID, messages)
		if err != nil {
			if errors.Is(err, bloom.ErrNoTopics) {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No topics configured for module %s", req.ModuleID)})
				return
			}
			log.Printf("Bloom initialize failed for student %s module %s: %v", req.StudentID, req.ModuleID, err)
			db.LogError(pool, "classification", req.ModuleID, req.ChatFilepath, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update bloom summary"})
			return
		}

		if last := lastMessageID(messages); last != "" {
			if err := engine.AdvanceLastProcessed(c.Request.Context(), req.StudentID, req.ModuleID, last); err != nil {
				log.Printf("Failed to advance last processed msg id: %v", err)
			}
		}

		c.JSON(http.StatusOK, models.BloomUpdateResponse{
			BloomSummary: summary.ToMap(),
			Processed:    stats.Processed,
			Skipped:      stats.Skipped,
			Errors:       stats.Errors,
		})
	}
}

// BloomMessages classifies stored chat messages by id and merges the result
// into the student's persisted summary.
// POST /api/bloom/messages/
func BloomMessages(pool *pgxpool.Pool, engine *bloom.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BloomMessagesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(req.MessageIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message_ids must not be empty"})
			return
		}
		if !requireStudentAndModule(c, pool, req.StudentID, req.ModuleID) {
			return
		}

		rows, err := pool.Query(context.Background(), `
			SELECT msg_id, msg_sender, msg_text, msg_timestamp
			FROM messages
			WHERE msg_id = ANY($1) AND student_id = $2 AND module_id = $3
			ORDER BY msg_timestamp, msg_id
		`, req.MessageIDs, req.StudentID, req.ModuleID)
		if err != nil {
			log.Printf("Error querying messages: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
			return
		}
		defer rows.Close()

		var messages []models.TranscriptMessage
		for rows.Next() {
			var m models.TranscriptMessage
			if err := rows.Scan(&m.MsgID, &m.MsgSender, &m.MsgText, &m.MsgTimestamp); err != nil {
				log.Printf("Error scanning message row: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process messages"})
				return
			}
			messages = append(messages, m)
		}
		if len(messages) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "No matching messages found"})
			return
		}

		summary, stats, err := engine.UpdateFromTranscript(c.Request.Context(), req.StudentID, req.ModuleID, messages)
		if err != nil {
			if errors.Is(err, bloom.ErrNoTopics) {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No topics configured for module %s", req.ModuleID)})
				return
			}
			log.Printf("Bloom message update failed for student %s module %s: %v", req.StudentID, req.ModuleID, err)
			db.LogError(pool, "classification", req.ModuleID, "stored messages", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update bloom summary"})
			return
		}

		if last := lastMessageID(messages); last != "" {
			if err := engine.AdvanceLastProcessed(c.Request.Context(), req.StudentID, req.ModuleID, last); err != nil {
				log.Printf("Failed to advance last processed msg id: %v", err)
			}
		}

		c.JSON(http.StatusOK, models.BloomUpdateResponse{
			BloomSummary: summary.ToMap(),
			Processed:    stats.Processed,
			Skipped:      stats.Skipped,
			Errors:       stats.Errors,
		})
	}
}

// BloomSummary returns the persisted summary, or a single topic's counter
// when topic_id is given.
// GET /api/bloom/summary/?student_id&module_id[&topic_id]
func BloomSummary(engine *bloom.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		studentID := c.Query("student_id")
		moduleID := c.Query("module_id")
		if studentID == "" || moduleID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id and module_id query parameters are required"})
			return
		}

		if topicID := c.Query("topic_id"); topicID != "" {
			counter, err := engine.TopicSummary(c.Request.Context(), studentID, moduleID, topicID)
			if err != nil {
				log.Printf("Error reading topic summary: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve bloom summary"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"topic_id": topicID, "bloom_summary": counter})
			return
		}

		summary, err := engine.Summary(c.Request.Context(), studentID, moduleID)
		if err != nil {
			log.Printf("Error reading bloom summary: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve bloom summary"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"bloom_summary": summary.ToMap()})
	}
}

// BloomRestore fully replaces a student's persisted summary with a snapshot.
// POST /api/bloom/restore/
func BloomRestore(pool *pgxpool.Pool, engine *bloom.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BloomRestoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for topicID, counts := range req.BloomSummary {
			for level, count := range counts {
				if !bloom.IsLevel(level) {
					c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid bloom level %q for topic %s", level, topicID)})
					return
				}
				if count < 0 {
					c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Negative count for level %q of topic %s", level, topicID)})
					return
				}
			}
		}
		if req.BloomSummary == nil {
			req.BloomSummary = map[string]map[string]int{}
		}
		if !requireStudentAndModule(c, pool, req.StudentID, req.ModuleID) {
			return
		}

		restored, err := engine.Restore(c.Request.Context(), req.StudentID, req.ModuleID, req.BloomSummary)
		if err != nil {
			log.Printf("Bloom restore failed for student %s module %s: %v", req.StudentID, req.ModuleID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restore bloom summary"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":       "Bloom summary restored",
			"bloom_summary": restored.ToMap(),
		})
	}
}

// BloomProgression lists the highest non-zero level per topic.
// GET /api/bloom/progression/?student_id[&module_id]
func BloomProgression(engine *bloom.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		studentID := c.Query("student_id")
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id query parameter is required"})
			return
		}
		progression, err := engine.Progression(c.Request.Context(), studentID, c.Query("module_id"))
		if err != nil {
			log.Printf("Error reading bloom progression: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve bloom progression"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": progression})
	}
}

// lastMessageID returns the highest msg_id of a batch as a string, or ""
// when the batch carries no ids (file transcripts).
func lastMessageID(messages []models.TranscriptMessage) string {
	last := 0
	for _, m := range messages {
		if m.MsgID > last {
			last = m.MsgID
		}
	}
	if last == 0 {
		return ""
	}
	return strconv.Itoa(last)
}
