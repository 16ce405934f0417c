package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"nala-server/db"
	"nala-server/models"
	"nala-server/utils"
)

const sourceName = "ingestion"

var validRelationshipTypes = map[string]bool{
	"is_subtopic_of":     true,
	"is_prerequisite_of": true,
	"is_corequisite_of":  true,
	"is_contrasted_with": true,
	"is_applied_in":      true,
}

// ProcessModuleData reads module.yaml, nodes.csv, and relationships.csv for
// one module directory and upserts the knowledge graph. Malformed rows are
// logged to error_logs and skipped; only file-level failures abort.
func ProcessModuleData(pool *pgxpool.Pool, moduleID, fixturesPath string) error {
	modulePath := filepath.Join(fixturesPath, moduleID)
	moduleYAMLPath := filepath.Join(modulePath, "module.yaml")
	nodesCSVPath := filepath.Join(modulePath, "nodes.csv")
	relationshipsCSVPath := filepath.Join(modulePath, "relationships.csv")

	// 1. Read module.yaml
	moduleYAMLData, err := os.ReadFile(moduleYAMLPath)
	if err != nil {
		db.LogError(pool, sourceName, moduleID, moduleYAMLPath, fmt.Sprintf("Failed to read module.yaml: %v", err))
		return fmt.Errorf("failed to read module.yaml for %s: %w", moduleID, err)
	}

	var moduleMeta models.ModuleYAML
	if err := yaml.Unmarshal(moduleYAMLData, &moduleMeta); err != nil {
		db.LogError(pool, sourceName, moduleID, moduleYAMLPath, fmt.Sprintf("Failed to parse module.yaml: %v", err))
		return fmt.Errorf("failed to unmarshal module.yaml for %s: %w", moduleID, err)
	}

	if moduleMeta.ID != moduleID {
		db.LogError(pool, sourceName, moduleID, moduleYAMLPath,
			fmt.Sprintf("id in module.yaml (%s) must match directory name (%s)", moduleMeta.ID, moduleID))
		return fmt.Errorf("module id mismatch in module.yaml for %s", moduleID)
	}

	_, err = pool.Exec(context.Background(), `
		INSERT INTO modules (id, index_label, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			index_label = EXCLUDED.index_label,
			name = EXCLUDED.name
	`, moduleMeta.ID, moduleMeta.IndexLabel, moduleMeta.Name)
	if err != nil {
		db.LogError(pool, sourceName, moduleID, "", fmt.Sprintf("Failed to upsert module: %v", err))
		return fmt.Errorf("failed to upsert module %s: %w", moduleID, err)
	}

	// 2. Nodes
	nodeRows, err := readCSV(nodesCSVPath)
	if err != nil {
		db.LogError(pool, sourceName, moduleID, nodesCSVPath, fmt.Sprintf("Failed to read nodes.csv: %v", err))
		return fmt.Errorf("failed to read nodes.csv for %s: %w", moduleID, err)
	}

	nodeWeeks := make(map[string]string)
	ingested := 0
	for _, row := range nodeRows {
		nodeID := strings.TrimSpace(row.get("node_id"))
		name := strings.TrimSpace(row.get("node_name"))
		summary := strings.TrimSpace(row.get("node_description"))
		nodeType := strings.ToLower(strings.TrimSpace(row.get("node_type")))
		parentID := strings.TrimSpace(row.get("parent_node_id"))
		weekNo := strings.TrimSpace(row.get("week_no"))

		if nodeID == "" || name == "" {
			db.LogError(pool, sourceName, moduleID, nodesCSVPath,
				fmt.Sprintf("Line %d: node_id and node_name are required", row.line))
			continue
		}
		if _, err := strconv.Atoi(nodeID); err != nil {
			db.LogError(pool, sourceName, moduleID, nodesCSVPath,
				fmt.Sprintf("Line %d: node_id %q must be an integer", row.line, nodeID))
			continue
		}
		if nodeType != "topic" && nodeType != "concept" {
			db.LogError(pool, sourceName, moduleID, nodesCSVPath,
				fmt.Sprintf("Line %d: unknown node_type %q", row.line, nodeType))
			continue
		}

		var relatedTopicID *string
		if nodeType == "concept" {
			relatedTopicID = utils.StringPtr(parentID)
		}
		if weekNo != "" {
			nodeWeeks[nodeID] = weekNo
		}

		_, err := pool.Exec(context.Background(), `
			INSERT INTO nodes (id, node_type, name, summary, module_id, week_no, related_topic_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				node_type = EXCLUDED.node_type,
				name = EXCLUDED.name,
				summary = EXCLUDED.summary,
				module_id = EXCLUDED.module_id,
				week_no = EXCLUDED.week_no,
				related_topic_id = EXCLUDED.related_topic_id
		`, nodeID, nodeType, name, summary, moduleID, utils.StringPtr(weekNo), relatedTopicID)
		if err != nil {
			db.LogError(pool, sourceName, moduleID, nodesCSVPath,
				fmt.Sprintf("Line %d: failed to upsert node %s: %v", row.line, nodeID, err))
			continue
		}
		ingested++
	}

	// 3. Relationships
	relRows, err := readCSV(relationshipsCSVPath)
	if err != nil {
		db.LogError(pool, sourceName, moduleID, relationshipsCSVPath, fmt.Sprintf("Failed to read relationships.csv: %v", err))
		return fmt.Errorf("failed to read relationships.csv for %s: %w", moduleID, err)
	}

	for _, row := range relRows {
		relID := strings.TrimSpace(row.get("relationship_id"))
		firstID := strings.TrimSpace(row.get("node_id_1"))
		secondID := strings.TrimSpace(row.get("node_id_2"))
		rsType := strings.TrimSpace(row.get("relationship_type"))

		if relID == "" || firstID == "" || secondID == "" {
			db.LogError(pool, sourceName, moduleID, relationshipsCSVPath,
				fmt.Sprintf("Line %d: relationship_id, node_id_1, and node_id_2 are required", row.line))
			continue
		}
		if !validRelationshipTypes[rsType] {
			db.LogError(pool, sourceName, moduleID, relationshipsCSVPath,
				fmt.Sprintf("Line %d: unknown relationship_type %q", row.line, rsType))
			continue
		}

		// Relationship week is the later of its endpoints' weeks.
		weekNo := maxWeek(nodeWeeks[firstID], nodeWeeks[secondID])

		_, err := pool.Exec(context.Background(), `
			INSERT INTO relationships (id, first_node_id, second_node_id, rs_type, week_no)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				first_node_id = EXCLUDED.first_node_id,
				second_node_id = EXCLUDED.second_node_id,
				rs_type = EXCLUDED.rs_type,
				week_no = EXCLUDED.week_no
		`, relID, firstID, secondID, rsType, utils.StringPtr(weekNo))
		if err != nil {
			db.LogError(pool, sourceName, moduleID, relationshipsCSVPath,
				fmt.Sprintf("Line %d: failed to upsert relationship %s: %v", row.line, relID, err))
			continue
		}
	}

	log.Printf("Ingested module %s: %d nodes, %d relationships", moduleID, ingested, len(relRows))
	return nil
}

// ProcessAllModules ingests every module directory under the fixtures path.
// Per-module failures are logged and do not stop the sweep.
func ProcessAllModules(pool *pgxpool.Pool, fixturesPath string) {
	entries, err := os.ReadDir(fixturesPath)
	if err != nil {
		log.Printf("Skipping ingestion, cannot read fixtures dir %s: %v", fixturesPath, err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ProcessModuleData(pool, entry.Name(), fixturesPath); err != nil {
			log.Printf("Ingestion failed for module %s: %v", entry.Name(), err)
		}
	}
}

type csvRow struct {
	fields map[string]string
	line   int
}

func (r csvRow) get(key string) string {
	return r.fields[key]
}

// readCSV returns the data rows of a headered CSV keyed by column name.
func readCSV(path string) ([]csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("empty CSV file %s", path)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]csvRow, 0, len(records)-1)
	for i, record := range records[1:] {
		fields := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(record) {
				fields[h] = record[j]
			}
		}
		rows = append(rows, csvRow{fields: fields, line: i + 2})
	}
	return rows, nil
}

// maxWeek compares week labels numerically when possible, lexically otherwise.
func maxWeek(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		if na >= nb {
			return a
		}
		return b
	}
	if a >= b {
		return a
	}
	return b
}
