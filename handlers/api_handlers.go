// --- nala-server/handlers/api_handlers.go ---
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nala-server/bloom"
	"nala-server/chat"
	"nala-server/llm"
	"nala-server/models"
	"nala-server/predictor"
)

var learningStyleDescriptions = map[string]string{
	"RETRIEVAL":    "Testing yourself to strengthen memory and recall",
	"SPACED":       "Spreading study sessions out over time",
	"ELABORATION":  "Explaining discrete ideas with many details",
	"CONCRETE":     "Use specific examples to understand abstract ideas",
	"INTERLEAVING": "Mixing different topics or skills during study sessions",
	"DUAL_CODING":  "Using both visual and verbal information processing",
}

// GetStudents lists all students.
// GET /api/students/
func GetStudents(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := pool.Query(context.Background(), `
			SELECT id, name, email, learning_style, learning_style_breakdown
			FROM students ORDER BY name
		`)
		if err != nil {
			log.Printf("Error querying students: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve students"})
			return
		}
		defer rows.Close()

		var students []models.Student
		for rows.Next() {
			var s models.Student
			var breakdownJSON []byte
			if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.LearningStyle, &breakdownJSON); err != nil {
				log.Printf("Error scanning student row: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process student data"})
				return
			}
			if err := json.Unmarshal(breakdownJSON, &s.LearningStyleBreakdown); err != nil {
				log.Printf("Error unmarshaling learning style breakdown for %s: %v", s.ID, err)
			}
			students = append(students, s)
		}
		c.JSON(http.StatusOK, students)
	}
}

// GetStudent returns one student with learning style description and
// enrolled modules.
// GET /api/student/:id
func GetStudent(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		studentID := c.Param("id")

		var s models.Student
		var breakdownJSON []byte
		err := pool.QueryRow(context.Background(), `
			SELECT id, name, email, learning_style, learning_style_breakdown
			FROM students WHERE id = $1
		`, studentID).Scan(&s.ID, &s.Name, &s.Email, &s.LearningStyle, &breakdownJSON)
		if err != nil {
			if err == pgx.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Student %s not found", studentID)})
				return
			}
			log.Printf("Error fetching student %s: %v", studentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve student"})
			return
		}
		if err := json.Unmarshal(breakdownJSON, &s.LearningStyleBreakdown); err != nil {
			log.Printf("Error unmarshaling learning style breakdown for %s: %v", s.ID, err)
		}
		s.LearningStyleDesc = learningStyleDescriptions[s.LearningStyle]

		modRows, err := pool.Query(context.Background(),
			`SELECT module_id FROM student_modules WHERE student_id = $1 ORDER BY module_id`, studentID)
		if err == nil {
			defer modRows.Close()
			for modRows.Next() {
				var m string
				if err := modRows.Scan(&m); err == nil {
					s.EnrolledModules = append(s.EnrolledModules, m)
				}
			}
		}

		c.JSON(http.StatusOK, s)
	}
}

// GetModules lists modules with topic counts.
// GET /api/module/
func GetModules(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := pool.Query(context.Background(), `
			SELECT m.id, m.index_label, m.name, m.created_at,
				COUNT(n.id) FILTER (WHERE n.node_type = 'topic') AS topic_count
			FROM modules m
			LEFT JOIN nodes n ON n.module_id = m.id
			GROUP BY m.id
			ORDER BY m.index_label, m.id
		`)
		if err != nil {
			log.Printf("Error querying modules: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve modules"})
			return
		}
		defer rows.Close()

		var modules []models.Module
		for rows.Next() {
			var m models.Module
			if err := rows.Scan(&m.ID, &m.IndexLabel, &m.Name, &m.CreatedAt, &m.TopicCount); err != nil {
				log.Printf("Error scanning module row: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process module data"})
				return
			}
			modules = append(modules, m)
		}
		c.JSON(http.StatusOK, modules)
	}
}

// GetModule returns one module.
// GET /api/module/:module_id
func GetModule(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Param("module_id")

		var m models.Module
		err := pool.QueryRow(context.Background(), `
			SELECT id, index_label, name, created_at FROM modules WHERE id = $1
		`, moduleID).Scan(&m.ID, &m.IndexLabel, &m.Name, &m.CreatedAt)
		if err != nil {
			if err == pgx.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Module %s not found", moduleID)})
				return
			}
			log.Printf("Error fetching module %s: %v", moduleID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve module"})
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

// GetNodes lists threadmap nodes, optionally scoped to a module.
// GET /api/nodes/?module_id=
func GetNodes(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Query("module_id")

		query := `
			SELECT id, node_type, name, summary, module_id, week_no, related_topic_id
			FROM nodes
		`
		args := []interface{}{}
		if moduleID != "" {
			query += " WHERE module_id = $1"
			args = append(args, moduleID)
		}
		query += " ORDER BY id"

		rows, err := pool.Query(context.Background(), query, args...)
		if err != nil {
			log.Printf("Error querying nodes: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve nodes"})
			return
		}
		defer rows.Close()

		var nodes []models.Node
		for rows.Next() {
			var n models.Node
			if err := rows.Scan(&n.ID, &n.NodeType, &n.Name, &n.Summary, &n.ModuleID, &n.WeekNo, &n.RelatedTopicID); err != nil {
				log.Printf("Error scanning node row: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process node data"})
				return
			}
			nodes = append(nodes, n)
		}
		c.JSON(http.StatusOK, nodes)
	}
}

// GetRelationships lists relationships touching a module's nodes.
// GET /api/relationships/?module_id=
func GetRelationships(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Query("module_id")

		query := `
			SELECT DISTINCT r.id, r.first_node_id, r.second_node_id, r.rs_type, r.week_no
			FROM relationships r
		`
		args := []interface{}{}
		if moduleID != "" {
			query += `
			JOIN nodes n ON n.id = r.first_node_id OR n.id = r.second_node_id
			WHERE n.module_id = $1`
			args = append(args, moduleID)
		}
		query += " ORDER BY r.id"

		rows, err := pool.Query(context.Background(), query, args...)
		if err != nil {
			log.Printf("Error querying relationships: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve relationships"})
			return
		}
		defer rows.Close()

		var rels []models.Relationship
		for rows.Next() {
			var r models.Relationship
			if err := rows.Scan(&r.ID, &r.FirstNodeID, &r.SecondNodeID, &r.RsType, &r.WeekNo); err != nil {
				log.Printf("Error scanning relationship row: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process relationship data"})
				return
			}
			rels = append(rels, r)
		}
		c.JSON(http.StatusOK, rels)
	}
}

// loadHistoryFile resolves and parses a transcript file named by the
// "file" query parameter.
func loadHistoryFile(c *gin.Context, historyDir string) ([]models.TranscriptMessage, bool) {
	name := c.Query("file")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file query parameter is required"})
		return nil, false
	}
	path, err := chat.ResolvePath(historyDir, name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	messages, err := chat.LoadTranscript(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Failed to load chat history file: %v", err)})
		return nil, false
	}
	return messages, true
}

// DisplayChatHistory returns the parsed messages of a transcript file.
// GET /api/display-chat-history/?file=
func DisplayChatHistory(historyDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		messages, ok := loadHistoryFile(c, historyDir)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": messages, "total_messages": len(messages)})
	}
}

// PercentageLearningStyle returns a student's stored learning-style breakdown.
// GET /api/percentage-learning-style/?student_id=
func PercentageLearningStyle(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		studentID := c.Query("student_id")
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id query parameter is required"})
			return
		}

		var style string
		var breakdownJSON []byte
		err := pool.QueryRow(context.Background(), `
			SELECT learning_style, learning_style_breakdown FROM students WHERE id = $1
		`, studentID).Scan(&style, &breakdownJSON)
		if err != nil {
			if err == pgx.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Student %s not found", studentID)})
				return
			}
			log.Printf("Error fetching learning style for %s: %v", studentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve learning style"})
			return
		}

		breakdown := map[string]float64{}
		if err := json.Unmarshal(breakdownJSON, &breakdown); err != nil {
			log.Printf("Error unmarshaling learning style breakdown for %s: %v", studentID, err)
		}
		c.JSON(http.StatusOK, gin.H{
			"student_id":                 studentID,
			"learning_style":             style,
			"learning_style_description": learningStyleDescriptions[style],
			"breakdown":                  breakdown,
		})
	}
}

// Health reports service liveness and database reachability.
// GET /health
func Health(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// ClassifyChatHistory classifies each user message of a transcript file
// into a bloom tier.
// GET /api/classify-chat-history/?file=
func ClassifyChatHistory(client llm.Invoker, historyDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		messages, ok := loadHistoryFile(c, historyDir)
		if !ok {
			return
		}
		results := chat.ClassifyHistory(c.Request.Context(), client, messages)
		c.JSON(http.StatusOK, gin.H{"results": results, "total_messages": len(results)})
	}
}

// PercentageChatHistory reports per-topic shares of user messages.
// GET /api/percentage-chat-history/?file=&module_id=
func PercentageChatHistory(pool *pgxpool.Pool, blooms *bloom.Engine, client llm.Invoker, historyDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Query("module_id")
		if moduleID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "module_id query parameter is required"})
			return
		}
		messages, ok := loadHistoryFile(c, historyDir)
		if !ok {
			return
		}
		topics, err := blooms.LoadTopics(c.Request.Context(), moduleID)
		if err != nil {
			log.Printf("Error loading topics for module %s: %v", moduleID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load module topics"})
			return
		}
		if len(topics) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No topics found for module %s", moduleID)})
			return
		}
		results, err := chat.PercentagePerTopic(c.Request.Context(), client, messages, topics)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		total := 0
		for _, r := range results {
			total += r.Count
		}
		c.JSON(http.StatusOK, gin.H{"results": results, "total_messages": total})
	}
}

// TimeSpentPerTopic reports estimated minutes spent per topic.
// GET /api/time-spent-per-topic/?file=&module_id=
func TimeSpentPerTopic(pool *pgxpool.Pool, blooms *bloom.Engine, client llm.Invoker, historyDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Query("module_id")
		if moduleID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "module_id query parameter is required"})
			return
		}
		messages, ok := loadHistoryFile(c, historyDir)
		if !ok {
			return
		}
		topics, err := blooms.LoadTopics(c.Request.Context(), moduleID)
		if err != nil {
			log.Printf("Error loading topics for module %s: %v", moduleID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load module topics"})
			return
		}
		if len(topics) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No topics found for module %s", moduleID)})
			return
		}
		results, err := chat.TimeSpentPerTopic(c.Request.Context(), client, messages, topics)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// Predict returns predicted study hours for one feature row.
// POST /api/predict
func Predict(model *predictor.Model) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.PredictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hours, err := model.Predict(req.BloomLevel, req.TopicDifficulty, req.PreviousGrade)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.PredictResponse{PredictedHours: hours})
	}
}
