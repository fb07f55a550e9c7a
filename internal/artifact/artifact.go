// Package artifact loads the scaler and classifier produced by the offline training job.
//
// Artifacts are JSON files that embed the feature schema they were fitted
// against. Loading fails unless that schema matches the serving-side feature
// order exactly, so training and serving cannot silently drift apart.
package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/THA011/AI-meta4/internal/feature"
)

// Scaler standardizes a feature vector using per-feature statistics fixed at training time.
type Scaler struct {
	SchemaVersion string    `json:"schema_version"`
	Features      []string  `json:"features"`
	Mean          []float64 `json:"mean"`
	Std           []float64 `json:"std"`
}

// Transform returns the standardized copy of v.
func (s *Scaler) Transform(v feature.Vector) (feature.Vector, error) {
	var out feature.Vector
	for i := range v {
		out[i] = (v[i] - s.Mean[i]) / s.Std[i]
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return feature.Vector{}, fmt.Errorf("scaler produced non-finite value for %s", feature.Names[i])
		}
	}
	return out, nil
}

// Model is a logistic scorer over standardized features. It returns the
// probability that the next bar closes above the current one.
type Model struct {
	SchemaVersion string    `json:"schema_version"`
	Features      []string  `json:"features"`
	Weights       []float64 `json:"weights"`
	Bias          float64   `json:"bias"`
}

// PredictProba maps a standardized vector to a probability in [0,1].
func (m *Model) PredictProba(v feature.Vector) (float64, error) {
	z := m.Bias
	for i, w := range m.Weights {
		z += w * v[i]
	}
	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) {
		return 0, fmt.Errorf("model produced non-finite probability")
	}
	return math.Min(1, math.Max(0, p)), nil
}

// LoadScaler reads and validates a scaler artifact.
func LoadScaler(path string) (*Scaler, error) {
	var s Scaler
	if err := loadJSON(path, &s); err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	if err := checkSchema(s.SchemaVersion, s.Features); err != nil {
		return nil, fmt.Errorf("scaler %s: %w", path, err)
	}
	if len(s.Mean) != len(feature.Names) || len(s.Std) != len(feature.Names) {
		return nil, fmt.Errorf("scaler %s: expected %d mean/std entries", path, len(feature.Names))
	}
	for i, sd := range s.Std {
		if sd <= 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
			return nil, fmt.Errorf("scaler %s: non-positive std for %s", path, feature.Names[i])
		}
	}
	return &s, nil
}

// LoadModel reads and validates a model artifact.
func LoadModel(path string) (*Model, error) {
	var m Model
	if err := loadJSON(path, &m); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if err := checkSchema(m.SchemaVersion, m.Features); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	if len(m.Weights) != len(feature.Names) {
		return nil, fmt.Errorf("model %s: expected %d weights, got %d", path, len(feature.Names), len(m.Weights))
	}
	return &m, nil
}

func loadJSON(path string, dst any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func checkSchema(version string, features []string) error {
	if version != feature.SchemaVersion {
		return fmt.Errorf("schema version %q does not match serving version %q", version, feature.SchemaVersion)
	}
	if len(features) != len(feature.Names) {
		return fmt.Errorf("expected %d features, got %d", len(feature.Names), len(features))
	}
	for i, name := range features {
		if name != feature.Names[i] {
			return fmt.Errorf("feature %d is %q, serving expects %q", i, name, feature.Names[i])
		}
	}
	return nil
}
