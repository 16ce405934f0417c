package predictor

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// artifact mirrors the JSON export of the fitted study-hours pipeline:
// a one-hot encoding over bloom_level, a standard scaler over the numeric
// features, and a linear regression on top.
type artifact struct {
	BloomCategories []string  `json:"bloom_categories"`
	NumericFeatures []string  `json:"numeric_features"`
	ScalerMeans     []float64 `json:"scaler_means"`
	ScalerScales    []float64 `json:"scaler_scales"`
	Coefficients    []float64 `json:"coefficients"`
	Intercept       float64   `json:"intercept"`
}

// Model is an immutable study-hours predictor loaded from a JSON artifact.
type Model struct {
	art   artifact
	index map[string]int
}

// Load reads and validates a model artifact. The coefficient vector must
// cover every one-hot category followed by every scaled numeric feature.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}

	if len(art.BloomCategories) == 0 {
		return nil, fmt.Errorf("model artifact has no bloom categories")
	}
	if len(art.ScalerMeans) != len(art.NumericFeatures) || len(art.ScalerScales) != len(art.NumericFeatures) {
		return nil, fmt.Errorf("model artifact scaler shape mismatch")
	}
	want := len(art.BloomCategories) + len(art.NumericFeatures)
	if len(art.Coefficients) != want {
		return nil, fmt.Errorf("model artifact has %d coefficients, expected %d", len(art.Coefficients), want)
	}
	for i, s := range art.ScalerScales {
		if s == 0 {
			return nil, fmt.Errorf("model artifact scaler scale %d is zero", i)
		}
	}

	index := make(map[string]int, len(art.BloomCategories))
	for i, c := range art.BloomCategories {
		index[c] = i
	}
	return &Model{art: art, index: index}, nil
}

// Categories returns the bloom levels the model was fitted on.
func (m *Model) Categories() []string {
	out := make([]string, len(m.art.BloomCategories))
	copy(out, m.art.BloomCategories)
	return out
}

// Predict computes predicted study hours for one feature row. The bloom
// level must be one of the fitted categories; the result is clamped at
// zero and rounded to two decimal places.
func (m *Model) Predict(bloomLevel string, topicDifficulty, previousGrade int) (float64, error) {
	catIdx, ok := m.index[bloomLevel]
	if !ok {
		return 0, fmt.Errorf("unknown bloom_level %q", bloomLevel)
	}

	sum := m.art.Intercept
	sum += m.art.Coefficients[catIdx]

	numeric := []float64{float64(topicDifficulty), float64(previousGrade)}
	if len(numeric) != len(m.art.NumericFeatures) {
		return 0, fmt.Errorf("model expects %d numeric features", len(m.art.NumericFeatures))
	}
	offset := len(m.art.BloomCategories)
	for i, v := range numeric {
		scaled := (v - m.art.ScalerMeans[i]) / m.art.ScalerScales[i]
		sum += m.art.Coefficients[offset+i] * scaled
	}

	if sum < 0 {
		sum = 0
	}
	return math.Round(sum*100) / 100, nil
}
