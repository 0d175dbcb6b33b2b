// Package analysis runs a complete clustering analysis: it loads the sample
// tables, fits the forest and packs the predictions into a model artifact.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"aicluster/internal/common"
	"aicluster/internal/fit"
	"aicluster/internal/model"
	"aicluster/internal/table"
)

var ErrNoCommonFields = errors.New("training and analysis tables share no fields")

// Request describes one analysis. AnalysisFile is optional; without it the
// training set itself is predicted.
type Request struct {
	TrainingFile   string
	AnalysisFile   string
	IDColumn       string
	OutColumn      string
	Params         fit.Params
	Key            string
	WithoutRawData bool
}

func (r Request) columns() (string, string) {
	id, out := r.IDColumn, r.OutColumn
	if id == "" {
		id = common.DefaultIDColumn
	}
	if out == "" {
		out = common.DefaultOutColumn
	}
	return id, out
}

// Runner executes analyses with a shared trainer.
type Runner struct {
	trainer *fit.Trainer
}

func NewRunner(trainer *fit.Trainer) *Runner {
	return &Runner{trainer: trainer}
}

// Run loads the tables named by req, trains on the intersection of their
// fields and predicts every analysis row.
func (r *Runner) Run(ctx context.Context, req Request) (*model.Artifact, error) {
	if req.TrainingFile == "" {
		return nil, errors.New(common.ErrMsgTrainingFileRequired)
	}
	idColumn, outColumn := req.columns()
	if idColumn == outColumn {
		return nil, fmt.Errorf("%s, both are %q", common.ErrMsgColumnsMustDiffer, idColumn)
	}
	start := time.Now()

	training, err := table.Load(req.TrainingFile, idColumn, outColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to load training data: %w", err)
	}
	if err := table.RequireLabels(training); err != nil {
		return nil, fmt.Errorf("training data: %w", err)
	}
	fields := table.Fields(training)

	var analysisRows []table.Row
	if req.AnalysisFile != "" {
		analysisRows, err = table.Load(req.AnalysisFile, idColumn, outColumn)
		if err != nil {
			return nil, fmt.Errorf("failed to load analysis data: %w", err)
		}
		fields = table.CommonFields(fields, table.Fields(analysisRows))
	}
	if len(fields) == 0 {
		return nil, ErrNoCommonFields
	}

	if err := table.Impute(training, fields); err != nil {
		return nil, fmt.Errorf("training data: %w", err)
	}
	if err := table.Impute(analysisRows, fields); err != nil {
		return nil, fmt.Errorf("analysis data: %w", err)
	}

	params := req.Params.Normalize()
	res, err := r.trainer.Train(ctx, training, fields, params)
	if err != nil {
		return nil, err
	}

	target := analysisRows
	if req.AnalysisFile == "" {
		target = training
	}
	predictions, err := model.PredictWith(res.Forest, res.BestTree, target)
	if err != nil {
		return nil, fmt.Errorf("failed to predict: %w", err)
	}

	artifact, err := model.FromResult(res, model.Condition{
		TrainingDataFile: req.TrainingFile,
		AnalysisDataFile: req.AnalysisFile,
		NumTrees:         params.NumTrees,
		Depth:            params.MaxDepth,
		Iterations:       params.Iterations,
		IDColumn:         idColumn,
		OutColumn:        outColumn,
	})
	if err != nil {
		return nil, err
	}
	artifact.Key = req.Key
	artifact.Prediction = predictions
	artifact.TrainingSet = training
	artifact.AnalysisSet = analysisRows
	if req.WithoutRawData {
		artifact.StripRawData()
	}

	log.Info().
		Str("key", req.Key).
		Int("training_rows", len(training)).
		Int("analysis_rows", len(analysisRows)).
		Int("fields", len(fields)).
		Float64("accuracy", res.Accuracy).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis complete")
	return artifact, nil
}

// Predict scores the table at path with a trained artifact. The table is read
// with the artifact's identifier and output columns.
func Predict(a *model.Artifact, path string) ([]model.Prediction, error) {
	rows, err := table.Load(path, a.FieldID, a.FieldOut)
	if err != nil {
		return nil, fmt.Errorf("failed to load input: %w", err)
	}
	return PredictRows(a, rows)
}

// PredictRows imputes the artifact's fields in rows and predicts them.
func PredictRows(a *model.Artifact, rows []table.Row) ([]model.Prediction, error) {
	if err := table.Impute(rows, a.Field); err != nil {
		return nil, err
	}
	return a.Predict(rows)
}
