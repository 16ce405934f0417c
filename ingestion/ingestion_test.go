package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxWeek(t *testing.T) {
	assert.Equal(t, "3", maxWeek("", "3"))
	assert.Equal(t, "3", maxWeek("3", ""))
	assert.Equal(t, "", maxWeek("", ""))
	assert.Equal(t, "3", maxWeek("2", "3"))
	assert.Equal(t, "10", maxWeek("10", "9")) // numeric, not lexical
	assert.Equal(t, "wk2", maxWeek("wk1", "wk2"))
}

func TestReadCSVKeyedByHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.csv")
	content := "node_id,node_name,node_type\n1,Neuron Structure,topic\n2,Myelin Sheath,concept\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := readCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "1", rows[0].get("node_id"))
	assert.Equal(t, "Neuron Structure", rows[0].get("node_name"))
	assert.Equal(t, 2, rows[0].line)
	assert.Equal(t, "concept", rows[1].get("node_type"))
	assert.Equal(t, 3, rows[1].line)
}

func TestReadCSVShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.csv")
	content := "a,b,c\n1,2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := readCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].get("b"))
	assert.Equal(t, "", rows[0].get("c"))
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := readCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestShippedFixturesParse(t *testing.T) {
	nodes, err := readCSV("../fixtures/neuro101/nodes.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, nodes)
	for _, row := range nodes {
		assert.NotEmpty(t, row.get("node_id"))
		assert.Contains(t, []string{"topic", "concept"}, row.get("node_type"))
	}

	rels, err := readCSV("../fixtures/neuro101/relationships.csv")
	require.NoError(t, err)
	for _, row := range rels {
		assert.True(t, validRelationshipTypes[row.get("relationship_type")])
	}
}
