// --- nala-server/handlers/admin_handlers.go ---
package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"nala-server/db"
	"nala-server/ingestion"
	"nala-server/models"
)

// AdminDashboard renders the admin dashboard with metrics and recent activity.
// GET /admin/dashboard
func AdminDashboard(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var totalStudents int
		_ = pool.QueryRow(context.Background(), `SELECT COUNT(id) FROM students`).Scan(&totalStudents)

		var totalQuizzesTaken int
		_ = pool.QueryRow(context.Background(), `SELECT COUNT(id) FROM quiz_attempts WHERE completed = TRUE`).Scan(&totalQuizzesTaken)

		var ingestionFailures int
		_ = pool.QueryRow(context.Background(), `SELECT COUNT(id) FROM error_logs WHERE source = 'ingestion'`).Scan(&ingestionFailures)

		var classificationFailures int
		_ = pool.QueryRow(context.Background(), `SELECT COUNT(id) FROM error_logs WHERE source = 'classification'`).Scan(&classificationFailures)

		adminEventsQuery := `SELECT id, timestamp, action, actor, target, notes FROM admin_events ORDER BY timestamp DESC LIMIT 5`
		adminEventsRows, err := pool.Query(context.Background(), adminEventsQuery)
		var recentAdminEvents []models.AdminEvent
		if err == nil {
			for adminEventsRows.Next() {
				var ae models.AdminEvent
				_ = adminEventsRows.Scan(&ae.ID, &ae.Timestamp, &ae.Action, &ae.Actor, &ae.Target, &ae.Notes)
				recentAdminEvents = append(recentAdminEvents, ae)
			}
			adminEventsRows.Close()
		} else {
			log.Printf("Error fetching recent admin events: %v", err)
		}

		recentModulesQuery := `SELECT id, index_label, name FROM modules ORDER BY created_at DESC LIMIT 5`
		recentModulesRows, err := pool.Query(context.Background(), recentModulesQuery)
		var recentModules []models.Module
		if err == nil {
			for recentModulesRows.Next() {
				var m models.Module
				_ = recentModulesRows.Scan(&m.ID, &m.IndexLabel, &m.Name)
				recentModules = append(recentModules, m)
			}
			recentModulesRows.Close()
		} else {
			log.Printf("Error fetching recent modules: %v", err)
		}

		c.HTML(http.StatusOK, "admin_dashboard", gin.H{
			"Title":                  "NALA Admin Dashboard",
			"TotalStudents":          totalStudents,
			"TotalQuizzesTaken":      totalQuizzesTaken,
			"IngestionFailures":      ingestionFailures,
			"ClassificationFailures": classificationFailures,
			"RecentAdminEvents":      recentAdminEvents,
			"RecentModules":          recentModules,
			"UserSubject":            c.GetString("user_subject"),
		})
	}
}

// AdminCreateModule handles creating a new module.
// POST /admin/modules
func AdminCreateModule(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AdminModuleCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		exists, err := db.ModuleExists(pool, req.ID)
		if err != nil {
			log.Printf("Error checking module %s: %v", req.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify module"})
			return
		}
		if exists {
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Module %s already exists", req.ID)})
			return
		}

		_, err = pool.Exec(context.Background(), `
			INSERT INTO modules (id, index_label, name) VALUES ($1, $2, $3)
		`, req.ID, req.IndexLabel, req.Name)
		if err != nil {
			log.Printf("Error creating module: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create module"})
			return
		}

		db.LogAdminEvent(pool, c.GetString("user_subject"), "create_module", req.ID, fmt.Sprintf("New module: %s (%s)", req.Name, req.ID))
		c.JSON(http.StatusCreated, gin.H{"message": "Module created successfully", "module_id": req.ID})
	}
}

// AdminUpdateModule handles updating an existing module.
// PUT /admin/modules/:module_id
func AdminUpdateModule(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Param("module_id")
		var req models.AdminModuleCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := pool.Exec(context.Background(), `
			UPDATE modules SET index_label = $1, name = $2 WHERE id = $3
		`, req.IndexLabel, req.Name, moduleID)
		if err != nil {
			log.Printf("Error updating module %s: %v", moduleID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update module"})
			return
		}
		if res.RowsAffected() == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Module %s not found", moduleID)})
			return
		}

		db.LogAdminEvent(pool, c.GetString("user_subject"), "update_module", moduleID, fmt.Sprintf("Updated module: %s", req.Name))
		c.JSON(http.StatusOK, gin.H{"message": "Module updated successfully", "module_id": moduleID})
	}
}

// AdminDeleteModule handles deleting a module.
// DELETE /admin/modules/:module_id
func AdminDeleteModule(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Param("module_id")

		res, err := pool.Exec(context.Background(), `DELETE FROM modules WHERE id = $1`, moduleID)
		if err != nil {
			log.Printf("Error deleting module %s: %v", moduleID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete module"})
			return
		}
		if res.RowsAffected() == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Module %s not found", moduleID)})
			return
		}

		db.LogAdminEvent(pool, c.GetString("user_subject"), "delete_module", moduleID, fmt.Sprintf("Deleted module: %s", moduleID))
		c.JSON(http.StatusOK, gin.H{"message": "Module deleted successfully", "module_id": moduleID})
	}
}

// AdminErrorLogs lists error log entries with optional filters.
// GET /admin/error_logs
func AdminErrorLogs(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		searchQuery := c.Query("search")
		searchSource := c.Query("source")

		query := `
			SELECT id, timestamp, source, COALESCE(module_id, ''), COALESCE(detail, ''), error_message
			FROM error_logs
			WHERE (module_id ILIKE $1 OR error_message ILIKE $1)
			AND ($2 = '' OR source = $2)
			ORDER BY timestamp DESC
			LIMIT 200
		`
		rows, err := pool.Query(context.Background(), query, "%"+searchQuery+"%", searchSource)
		if err != nil {
			log.Printf("Error querying error logs: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve error logs"})
			return
		}
		defer rows.Close()

		var logs []models.ErrorLog
		for rows.Next() {
			var entry models.ErrorLog
			if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Source, &entry.ModuleID, &entry.Detail, &entry.ErrorMessage); err != nil {
				log.Printf("Error scanning error log row: %v", err)
				continue
			}
			logs = append(logs, entry)
		}
		c.JSON(http.StatusOK, gin.H{"error_logs": logs})
	}
}

// AdminUserActivity lists recent quiz attempts per student.
// GET /admin/user_activity
func AdminUserActivity(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		searchStudent := c.Query("search")

		query := `
			SELECT qa.id, qa.student_id, COALESCE(s.name, ''), qa.module_id, qa.quiz_type,
				qa.score, qa.completed, qa.created_at, qa.updated_at
			FROM quiz_attempts qa
			LEFT JOIN students s ON qa.student_id = s.id
			WHERE qa.student_id ILIKE $1 OR s.name ILIKE $1
			ORDER BY qa.updated_at DESC
			LIMIT 200
		`
		rows, err := pool.Query(context.Background(), query, "%"+searchStudent+"%")
		if err != nil {
			log.Printf("Error querying user activity: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user activity"})
			return
		}
		defer rows.Close()

		type activityRow struct {
			ID          int       `json:"id"`
			StudentID   string    `json:"student_id"`
			StudentName string    `json:"student_name"`
			ModuleID    string    `json:"module_id"`
			QuizType    string    `json:"quiz_type"`
			Score       *float64  `json:"score"`
			Completed   bool      `json:"completed"`
			CreatedAt   time.Time `json:"created_at"`
			UpdatedAt   time.Time `json:"updated_at"`
		}
		var attempts []activityRow
		for rows.Next() {
			var a activityRow
			if err := rows.Scan(&a.ID, &a.StudentID, &a.StudentName, &a.ModuleID, &a.QuizType,
				&a.Score, &a.Completed, &a.CreatedAt, &a.UpdatedAt); err != nil {
				log.Printf("Error scanning user activity row: %v", err)
				continue
			}
			attempts = append(attempts, a)
		}
		c.JSON(http.StatusOK, gin.H{"attempts": attempts})
	}
}

// AdminSettings lists server settings.
// GET /admin/settings
func AdminSettings(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := pool.Query(context.Background(),
			`SELECT key, value, COALESCE(description, '') FROM settings ORDER BY key`)
		if err != nil {
			log.Printf("Error querying settings: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve settings"})
			return
		}
		defer rows.Close()

		var settings []models.Setting
		for rows.Next() {
			var s models.Setting
			if err := rows.Scan(&s.Key, &s.Value, &s.Description); err != nil {
				log.Printf("Error scanning setting row: %v", err)
				continue
			}
			settings = append(settings, s)
		}
		c.JSON(http.StatusOK, gin.H{"settings": settings})
	}
}

// AdminUpdateSettings updates server settings from a key-value map.
// POST /admin/settings
func AdminUpdateSettings(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var updates map[string]string
		if err := c.ShouldBindJSON(&updates); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(updates) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No settings provided"})
			return
		}

		tx, err := pool.Begin(context.Background())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction for settings update"})
			return
		}
		defer tx.Rollback(context.Background())

		actor := c.GetString("user_subject")
		for key, value := range updates {
			res, err := tx.Exec(context.Background(), `
				UPDATE settings SET value = $1, updated_at = NOW(), updated_by = $2 WHERE key = $3
			`, value, actor, key)
			if err != nil {
				log.Printf("Error updating setting %s: %v", key, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to update setting %s", key)})
				return
			}
			if res.RowsAffected() == 0 {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Unknown setting %s", key)})
				return
			}
			db.LogAdminEvent(pool, actor, "update_setting", key, fmt.Sprintf("Set to: %s", value))
		}

		if err := tx.Commit(context.Background()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit settings updates"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully"})
	}
}

// TriggerIngestion allows admin to manually trigger ingestion for a module.
// POST /admin/ingest/:module_id
func TriggerIngestion(pool *pgxpool.Pool, fixturesPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleID := c.Param("module_id")
		actor := c.GetString("user_subject")

		err := ingestion.ProcessModuleData(pool, moduleID, fixturesPath)
		if err != nil {
			log.Printf("Manual ingestion failed for %s: %v", moduleID, err)
			db.LogAdminEvent(pool, actor, "manual_ingestion_failed", moduleID, fmt.Sprintf("Error: %v", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Ingestion failed: %v", err)})
			return
		}

		db.LogAdminEvent(pool, actor, "manual_ingestion_success", moduleID, "Knowledge graph ingestion completed.")
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Ingestion for module '%s' completed", moduleID)})
	}
}
