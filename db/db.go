// --- nala-server/db/db.go ---
package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InitDB initializes the PostgreSQL database connection pool
func InitDB(connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Ping the database to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL database!")
	return pool, nil
}

// CreateSchema sets up the necessary tables for NALA.
// In a production environment, use a proper migration tool (e.g., golang-migrate).
func CreateSchema(pool *pgxpool.Pool) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS modules (
		id VARCHAR(255) PRIMARY KEY,
		index_label VARCHAR(255),
		name VARCHAR(255),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id VARCHAR(255) PRIMARY KEY,
		node_type VARCHAR(50) NOT NULL CHECK (node_type IN ('topic', 'concept')),
		name VARCHAR(255),
		summary TEXT,
		module_id VARCHAR(255),
		week_no VARCHAR(50),
		related_topic_id VARCHAR(255),
		FOREIGN KEY (module_id) REFERENCES modules(id) ON DELETE CASCADE,
		FOREIGN KEY (related_topic_id) REFERENCES nodes(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS relationships (
		id VARCHAR(255) PRIMARY KEY,
		first_node_id VARCHAR(255) NOT NULL,
		second_node_id VARCHAR(255) NOT NULL,
		rs_type VARCHAR(255) NOT NULL CHECK (rs_type IN (
			'is_subtopic_of', 'is_prerequisite_of', 'is_corequisite_of',
			'is_contrasted_with', 'is_applied_in')),
		week_no VARCHAR(50),
		FOREIGN KEY (first_node_id) REFERENCES nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (second_node_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS students (
		id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		learning_style VARCHAR(20) DEFAULT 'RETRIEVAL',
		learning_style_breakdown JSONB DEFAULT '{}'::jsonb
	);

	CREATE TABLE IF NOT EXISTS student_modules (
		student_id VARCHAR(255) NOT NULL,
		module_id VARCHAR(255) NOT NULL,
		PRIMARY KEY (student_id, module_id),
		FOREIGN KEY (student_id) REFERENCES students(id) ON DELETE CASCADE,
		FOREIGN KEY (module_id) REFERENCES modules(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS conversations (
		convo_id SERIAL PRIMARY KEY,
		student_id VARCHAR(255) NOT NULL,
		module_id VARCHAR(255) NOT NULL,
		convo_title VARCHAR(500),
		convo_created_date TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		convo_duration INT,
		FOREIGN KEY (student_id) REFERENCES students(id) ON DELETE CASCADE,
		FOREIGN KEY (module_id) REFERENCES modules(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		msg_id SERIAL PRIMARY KEY,
		conversation_id INT,
		student_id VARCHAR(255) NOT NULL,
		module_id VARCHAR(255) NOT NULL,
		msg_sender VARCHAR(20) NOT NULL,
		msg_text TEXT NOT NULL,
		msg_timestamp TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		msg_context JSONB,
		FOREIGN KEY (conversation_id) REFERENCES conversations(convo_id) ON DELETE CASCADE,
		FOREIGN KEY (student_id) REFERENCES students(id) ON DELETE CASCADE,
		FOREIGN KEY (module_id) REFERENCES modules(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_student_module ON messages (student_id, module_id);
	CREATE INDEX IF NOT EXISTS idx_messages_convo_ts ON messages (conversation_id, msg_timestamp);

	CREATE TABLE IF NOT EXISTS student_notes (
		id SERIAL PRIMARY KEY,
		student_id VARCHAR(255) NOT NULL,
		topic_id VARCHAR(255) NOT NULL,
		content TEXT DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (student_id) REFERENCES students(id) ON DELETE CASCADE,
		FOREIGN KEY (topic_id) REFERENCES nodes(id) ON DELETE CASCADE,
		UNIQUE (student_id, topic_id)
	);

	CREATE TABLE IF NOT EXISTS bloom_records (
		id SERIAL PRIMARY KEY,
		student_id VARCHAR(255) NOT NULL,
		module_id VARCHAR(255) NOT NULL,
		bloom_summary JSONB NOT NULL DEFAULT '{}'::jsonb,
		last_processed_msg_id VARCHAR(255),
		FOREIGN KEY (student_id) REFERENCES students(id) ON DELETE CASCADE,
		FOREIGN KEY (module_id) REFERENCES modules(id) ON DELETE CASCADE,
		UNIQUE (student_id, module_id)
	);

	CREATE TABLE IF NOT EXISTS quiz_attempts (
		id SERIAL PRIMARY KEY,
		student_id VARCHAR(255) NOT NULL,
		module_id VARCHAR(255) NOT NULL,
		quiz_data JSONB NOT NULL DEFAULT '[]'::jsonb,
		student_answers JSONB NOT NULL DEFAULT '{}'::jsonb,
		score FLOAT,
		completed BOOLEAN DEFAULT FALSE,
		quiz_type VARCHAR(20) NOT NULL DEFAULT 'weekly' CHECK (quiz_type IN ('weekly', 'custom')),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (student_id) REFERENCES students(id) ON DELETE CASCADE,
		FOREIGN KEY (module_id) REFERENCES modules(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS error_logs (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		source TEXT NOT NULL, -- e.g., "classification", "quiz_generation", "ingestion"
		module_id VARCHAR(255),
		detail TEXT,
		error_message TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS admin_events (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		action VARCHAR(255),
		actor VARCHAR(255), -- User email or 'system'
		target TEXT,        -- e.g., module_id, quiz id, student id
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS settings (
		key VARCHAR(255) PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		updated_by VARCHAR(255)
	);
	`
	_, err := pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	// Insert default settings if not already present
	defaultSettings := map[string]string{
		"weekly_quiz_question_count": "10",
		"weekly_quiz_bloom_levels":   "Remember,Understand,Apply",
		"classification_batch_size":  "10",
	}

	for key, value := range defaultSettings {
		_, err := pool.Exec(context.Background(), `
			INSERT INTO settings (key, value, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO NOTHING;
		`, key, value, fmt.Sprintf("Default setting for %s", key))
		if err != nil {
			log.Printf("Warning: Failed to insert default setting %s: %v", key, err)
		}
	}

	return nil
}

// LogError adds an entry to the error_logs table
func LogError(pool *pgxpool.Pool, source, moduleID, detail, errMsg string) {
	_, err := pool.Exec(context.Background(), `
		INSERT INTO error_logs (source, module_id, detail, error_message)
		VALUES ($1, $2, $3, $4)
	`, source, moduleID, detail, errMsg)
	if err != nil {
		log.Printf("ERROR: Failed to log error to database: %v. Original error: %s", err, errMsg)
	}
}

// LogAdminEvent adds an entry to the admin_events table
func LogAdminEvent(pool *pgxpool.Pool, actor, action, target, notes string) {
	_, err := pool.Exec(context.Background(), `
		INSERT INTO admin_events (action, actor, target, notes)
		VALUES ($1, $2, $3, $4)
	`, action, actor, target, notes)
	if err != nil {
		log.Printf("ERROR: Failed to log admin event to database: %v. Event: %s by %s on %s", err, action, actor, target)
	}
}

// GetSetting fetches a setting value from the settings table
func GetSetting(pool *pgxpool.Pool, key string) (string, error) {
	var value string
	err := pool.QueryRow(context.Background(), "SELECT value FROM settings WHERE key = $1", key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("setting %s not found: %w", key, err)
	}
	return value, nil
}

// GetAllModuleIDs fetches all module ids from the modules table.
func GetAllModuleIDs(pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(context.Background(), "SELECT id FROM modules")
	if err != nil {
		return nil, fmt.Errorf("failed to query module ids: %w", err)
	}
	defer rows.Close()

	var moduleIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan module id: %w", err)
		}
		moduleIDs = append(moduleIDs, id)
	}
	return moduleIDs, nil
}

// ModuleExists reports whether a module row exists.
func ModuleExists(pool *pgxpool.Pool, moduleID string) (bool, error) {
	var exists bool
	err := pool.QueryRow(context.Background(),
		"SELECT EXISTS (SELECT 1 FROM modules WHERE id = $1)", moduleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check module %s: %w", moduleID, err)
	}
	return exists, nil
}

// StudentExists reports whether a student row exists.
func StudentExists(pool *pgxpool.Pool, studentID string) (bool, error) {
	var exists bool
	err := pool.QueryRow(context.Background(),
		"SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)", studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check student %s: %w", studentID, err)
	}
	return exists, nil
}
