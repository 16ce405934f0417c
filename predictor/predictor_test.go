package predictor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const testArtifact = `{
	"bloom_categories": ["Remember", "Understand", "Apply"],
	"numeric_features": ["topic_difficulty", "previous_grade"],
	"scaler_means": [5.0, 70.0],
	"scaler_scales": [2.0, 10.0],
	"coefficients": [-1.0, 0.5, 1.5, 2.0, -1.0],
	"intercept": 4.0
}`

func TestLoadAndPredict(t *testing.T) {
	model, err := Load(writeArtifact(t, testArtifact))
	require.NoError(t, err)

	// intercept 4.0 + coef("Apply") 1.5
	//   + 2.0 * (7-5)/2  = 2.0
	//   + -1.0 * (80-70)/10 = -1.0
	// = 6.5
	hours, err := model.Predict("Apply", 7, 80)
	require.NoError(t, err)
	assert.Equal(t, 6.5, hours)
}

func TestPredictStandardizesFeatures(t *testing.T) {
	model, err := Load(writeArtifact(t, testArtifact))
	require.NoError(t, err)

	// At the feature means, the numeric terms vanish.
	hours, err := model.Predict("Remember", 5, 70)
	require.NoError(t, err)
	assert.Equal(t, 3.0, hours)
}

func TestPredictUnknownLevel(t *testing.T) {
	model, err := Load(writeArtifact(t, testArtifact))
	require.NoError(t, err)

	_, err = model.Predict("Create", 5, 70)
	assert.Error(t, err)
	_, err = model.Predict("remember", 5, 70)
	assert.Error(t, err)
}

func TestPredictClampsAtZero(t *testing.T) {
	model, err := Load(writeArtifact(t, testArtifact))
	require.NoError(t, err)

	// Large previous grade drives the linear sum negative.
	hours, err := model.Predict("Remember", 5, 200)
	require.NoError(t, err)
	assert.Equal(t, 0.0, hours)
}

func TestPredictRoundsToTwoDecimals(t *testing.T) {
	model, err := Load(writeArtifact(t, testArtifact))
	require.NoError(t, err)

	// 4.0 + 0.5 + 2.0*(6-5)/2 + -1.0*(73-70)/10 = 5.2
	hours, err := model.Predict("Understand", 6, 73)
	require.NoError(t, err)
	assert.Equal(t, 5.2, hours)
}

func TestLoadRejectsBadArtifacts(t *testing.T) {
	cases := map[string]string{
		"missing file":       filepath.Join(t.TempDir(), "nope.json"),
		"invalid json":       writeArtifact(t, `{`),
		"no categories":      writeArtifact(t, `{"bloom_categories": [], "numeric_features": [], "scaler_means": [], "scaler_scales": [], "coefficients": [], "intercept": 0}`),
		"coefficient shape":  writeArtifact(t, `{"bloom_categories": ["Remember"], "numeric_features": ["x"], "scaler_means": [1], "scaler_scales": [1], "coefficients": [1], "intercept": 0}`),
		"scaler shape":       writeArtifact(t, `{"bloom_categories": ["Remember"], "numeric_features": ["x"], "scaler_means": [1, 2], "scaler_scales": [1], "coefficients": [1, 1], "intercept": 0}`),
		"zero scaler scale":  writeArtifact(t, `{"bloom_categories": ["Remember"], "numeric_features": ["x"], "scaler_means": [1], "scaler_scales": [0], "coefficients": [1, 1], "intercept": 0}`),
	}
	for name, path := range cases {
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestCategories(t *testing.T) {
	model, err := Load(writeArtifact(t, testArtifact))
	require.NoError(t, err)
	assert.Equal(t, []string{"Remember", "Understand", "Apply"}, model.Categories())
}

func TestShippedArtifactLoads(t *testing.T) {
	model, err := Load("../artifacts/study_hours_model.json")
	require.NoError(t, err)

	hours, err := model.Predict("Create", 5, 72)
	require.NoError(t, err)
	assert.Greater(t, hours, 0.0)
}
