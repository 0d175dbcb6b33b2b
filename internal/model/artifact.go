// Package model persists trained forests as self-contained JSON artifacts
// and keeps a versioned registry of them.
package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"aicluster/internal/fit"
	"aicluster/internal/forest"
	"aicluster/internal/table"
)

// Condition records how an artifact was trained.
type Condition struct {
	TrainingDataFile string `json:"training_data_file"`
	AnalysisDataFile string `json:"analysis_data_file,omitempty"`
	NumTrees         int    `json:"num_trees"`
	Depth            int    `json:"depth"`
	Iterations       int    `json:"iterations"`
	IDColumn         string `json:"id_column"`
	OutColumn        string `json:"out_column"`
}

// Prediction is the outcome for one sample.
type Prediction struct {
	ID         string    `json:"id"`
	Prediction string    `json:"prediction"`
	Score      []float64 `json:"score"`
	BestTree   []float64 `json:"best_tree"`
	Label      string    `json:"label,omitempty"`
}

// Artifact is everything needed to predict without refitting.
type Artifact struct {
	Key              string                `json:"key,omitempty"`
	Field            []string              `json:"field"`
	GroupLabel       []string              `json:"group_label"`
	Forest           forest.PortableForest `json:"forest"`
	BestTree         forest.PortableTree   `json:"best_tree"`
	Condition        Condition             `json:"condition"`
	Weight           forest.Weights        `json:"weight"`
	FieldID          string                `json:"field_id"`
	FieldOut         string                `json:"field_out"`
	Prediction       []Prediction          `json:"prediction,omitempty"`
	TrainingSet      []table.Row           `json:"trainingset,omitempty"`
	AnalysisSet      []table.Row           `json:"analysisset,omitempty"`
	Accuracy         float64               `json:"accuracy"`
	BestTreeAccuracy float64               `json:"best_tree_accuracy"`
	CreatedAt        time.Time             `json:"created_at"`
}

// FromResult packs a training result.
func FromResult(res *fit.Result, cond Condition) (*Artifact, error) {
	pf, err := forest.Serialize(res.Forest)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize forest: %w", err)
	}
	best, err := forest.Layout(res.BestTree)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize best tree: %w", err)
	}

	return &Artifact{
		Field:            res.Forest.Fields,
		GroupLabel:       res.Forest.Groups,
		Forest:           pf,
		BestTree:         best,
		Condition:        cond,
		Weight:           res.Weights,
		FieldID:          cond.IDColumn,
		FieldOut:         cond.OutColumn,
		Accuracy:         res.Accuracy,
		BestTreeAccuracy: res.BestTreeAccuracy,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// Rehydrate rebuilds the forest and the best tree.
func (a *Artifact) Rehydrate() (*forest.Forest, *forest.Tree, error) {
	f, err := forest.DeserializeForest(a.Forest, a.Field, a.GroupLabel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rehydrate forest: %w", err)
	}
	best, err := forest.Deserialize(a.BestTree)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rehydrate best tree: %w", err)
	}
	if err := best.Validate(len(a.GroupLabel)); err != nil {
		return nil, nil, fmt.Errorf("failed to rehydrate best tree: %w", err)
	}
	return f, best, nil
}

// Predict scores rows with the rehydrated forest. Rows must carry every
// field of the artifact.
func (a *Artifact) Predict(rows []table.Row) ([]Prediction, error) {
	f, best, err := a.Rehydrate()
	if err != nil {
		return nil, err
	}
	return PredictWith(f, best, rows)
}

// PredictWith scores rows with f and resolves them with best.
func PredictWith(f *forest.Forest, best *forest.Tree, rows []table.Row) ([]Prediction, error) {
	out := make([]Prediction, len(rows))
	for i, row := range rows {
		x, err := table.Vector(row, f.Fields)
		if err != nil {
			return nil, err
		}
		score, err := f.Score(x)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", row.ID, err)
		}
		decision, err := forest.Resolve(best, x)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", row.ID, err)
		}
		out[i] = Prediction{
			ID:         row.ID,
			Prediction: f.Groups[argmax(score)],
			Score:      score,
			BestTree:   decision,
			Label:      row.Label,
		}
	}
	return out, nil
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// StripRawData drops the field values of the stored sets and keeps only
// their ids and labels.
func (a *Artifact) StripRawData() {
	for i, row := range a.TrainingSet {
		a.TrainingSet[i] = row.Strip()
	}
	for i, row := range a.AnalysisSet {
		a.AnalysisSet[i] = row.Strip()
	}
}

// Write encodes the artifact as indented JSON.
func (a *Artifact) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// Read decodes an artifact.
func Read(r io.Reader) (*Artifact, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if len(a.Forest) == 0 || len(a.Field) == 0 || len(a.GroupLabel) == 0 {
		return nil, fmt.Errorf("model is missing its forest, fields or groups")
	}
	return &a, nil
}

// Save writes the artifact to path, creating parent directories.
func (a *Artifact) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	if err := a.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return f.Close()
}

// Load reads an artifact from path.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()
	return Read(f)
}
