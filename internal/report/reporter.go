// Package report writes the human and machine readable outputs of an
// analysis into a directory.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/rs/zerolog/log"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"aicluster/internal/forest"
	"aicluster/internal/model"
	"aicluster/internal/table"
)

var formats = map[string]graphviz.Format{
	"png": graphviz.PNG,
	"svg": graphviz.SVG,
	"jpg": graphviz.JPG,
}

// Reporter generates analysis reports
type Reporter struct {
	artifact   *model.Artifact
	outputPath string
	format     string
	now        func() time.Time
}

// NewReporter creates a reporter writing into outputPath. format selects the
// tree image type (svg, png or jpg).
func NewReporter(artifact *model.Artifact, outputPath, format string) *Reporter {
	return &Reporter{
		artifact:   artifact,
		outputPath: outputPath,
		format:     format,
		now:        time.Now,
	}
}

// Generate writes every report file and returns their paths.
func (r *Reporter) Generate() ([]string, error) {
	if _, ok := formats[r.format]; !ok {
		return nil, fmt.Errorf("unsupported image format %q", r.format)
	}
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	steps := []func() (string, error){
		r.generateJSONReport,
		r.generateSummary,
		r.generateWeights,
		r.generateScores,
		r.generateTreeGraph,
	}
	var files []string
	for _, step := range steps {
		path, err := step()
		if err != nil {
			return files, err
		}
		if path != "" {
			files = append(files, path)
		}
	}
	return files, nil
}

// generateJSONReport writes the full artifact
func (r *Reporter) generateJSONReport() (string, error) {
	path := filepath.Join(r.outputPath, fmt.Sprintf("report_%s.json", r.now().Format("20060102_150405")))
	if err := r.artifact.Save(path); err != nil {
		return "", err
	}
	log.Info().Str("file", path).Msg("JSON report generated")
	return path, nil
}

// generateSummary writes a human-readable summary
func (r *Reporter) generateSummary() (string, error) {
	path := filepath.Join(r.outputPath, "summary.txt")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	a := r.artifact
	c := a.Condition
	fmt.Fprintf(file, "CLUSTERING ANALYSIS SUMMARY\n")
	fmt.Fprintf(file, "===========================\n\n")
	if a.Key != "" {
		fmt.Fprintf(file, "Key: %s\n", a.Key)
	}
	fmt.Fprintf(file, "Created: %s\n\n", a.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(file, "CONDITIONS\n")
	fmt.Fprintf(file, "----------\n")
	fmt.Fprintf(file, "Training data: %s\n", c.TrainingDataFile)
	if c.AnalysisDataFile != "" {
		fmt.Fprintf(file, "Analysis data: %s\n", c.AnalysisDataFile)
	}
	fmt.Fprintf(file, "Trees: %d\n", c.NumTrees)
	fmt.Fprintf(file, "Depth: %d\n", c.Depth)
	fmt.Fprintf(file, "Iterations: %d\n", c.Iterations)
	fmt.Fprintf(file, "ID column: %s, output column: %s\n", c.IDColumn, c.OutColumn)
	fmt.Fprintf(file, "Fields: %d, groups: %v\n\n", len(a.Field), a.GroupLabel)

	fmt.Fprintf(file, "ACCURACY\n")
	fmt.Fprintf(file, "--------\n")
	fmt.Fprintf(file, "Forest: %.2f%%\n", a.Accuracy*100)
	fmt.Fprintf(file, "Best tree: %.2f%%\n", a.BestTreeAccuracy*100)
	if best, err := forest.Deserialize(a.BestTree); err == nil {
		fmt.Fprintf(file, "Best tree shape: %d nodes, depth %d\n", best.Size(), best.Depth())
	}
	fmt.Fprintln(file)

	fmt.Fprintf(file, "PARAMETER OCCURRENCE\n")
	fmt.Fprintf(file, "--------------------\n")
	for _, fw := range a.Weight.Ranked() {
		fmt.Fprintf(file, "%-20s %.4f\n", fw.Field, fw.Weight)
	}

	if stats := table.Describe(a.TrainingSet, a.Field); len(a.TrainingSet) > 0 && hasValues(stats) {
		fmt.Fprintf(file, "\nFIELD STATISTICS (training set)\n")
		fmt.Fprintf(file, "-------------------------------\n")
		fmt.Fprintf(file, "%-20s %6s %10s %10s %10s\n", "Field", "Count", "Mean", "StdDev", "Median")
		for _, s := range stats {
			fmt.Fprintf(file, "%-20s %6d %10.4f %10.4f %10.4f\n", s.Field, s.Count, s.Mean, s.StdDev, s.Median)
		}
	}

	if len(a.Prediction) > 0 {
		hits, labelled := 0, 0
		counts := make(map[string]int)
		for _, p := range a.Prediction {
			counts[p.Prediction]++
			if p.Label != "" {
				labelled++
				if p.Label == p.Prediction {
					hits++
				}
			}
		}
		fmt.Fprintf(file, "\nPREDICTIONS\n")
		fmt.Fprintf(file, "-----------\n")
		for _, g := range a.GroupLabel {
			fmt.Fprintf(file, "%s: %d\n", g, counts[g])
		}
		if labelled > 0 {
			fmt.Fprintf(file, "Agreement with labels: %d/%d\n", hits, labelled)
		}
	}

	log.Info().Str("file", path).Msg("Summary report generated")
	return path, nil
}

// hasValues reports whether any field has data; stripped sets have none.
func hasValues(stats []table.FieldStats) bool {
	for _, s := range stats {
		if s.Count > 0 {
			return true
		}
	}
	return false
}

// generateWeights writes the field weights in decreasing order
func (r *Reporter) generateWeights() (string, error) {
	path := filepath.Join(r.outputPath, "weights.csv")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create weights file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Field", "Weight"}); err != nil {
		return "", err
	}
	for _, fw := range r.artifact.Weight.Ranked() {
		if err := writer.Write([]string{fw.Field, strconv.FormatFloat(fw.Weight, 'f', -1, 64)}); err != nil {
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to write weights: %w", err)
	}

	log.Info().Str("file", path).Msg("Weights report generated")
	return path, nil
}

// generateScores writes the per-sample group scores as a samples x groups
// matrix. Nothing is written without predictions.
func (r *Reporter) generateScores() (string, error) {
	preds := r.artifact.Prediction
	groups := len(r.artifact.GroupLabel)
	if len(preds) == 0 || groups == 0 {
		return "", nil
	}

	scores := mat.NewDense(len(preds), groups, nil)
	for i, p := range preds {
		if len(p.Score) != groups {
			return "", fmt.Errorf("prediction %s has %d scores, want %d", p.ID, len(p.Score), groups)
		}
		scores.SetRow(i, p.Score)
	}

	path := filepath.Join(r.outputPath, "scores.npy")
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create scores file: %w", err)
	}
	if err := npyio.Write(dst, scores); err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to write scores: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}

	log.Info().Str("file", path).Msg("Score matrix generated")
	return path, nil
}

// generateTreeGraph renders the best tree
func (r *Reporter) generateTreeGraph() (string, error) {
	path := filepath.Join(r.outputPath, "best_tree."+r.format)

	gv := graphviz.New()
	defer gv.Close()
	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer graph.Close()

	if err := DrawTree(graph, r.artifact.BestTree, r.artifact.Field, r.artifact.GroupLabel); err != nil {
		return "", err
	}
	if err := gv.RenderFilename(graph, formats[r.format], path); err != nil {
		return "", fmt.Errorf("failed to render best tree: %w", err)
	}

	log.Info().Str("file", path).Msg("Best tree rendered")
	return path, nil
}

// DrawTree adds the nodes of a laid out tree to g. Splits read
// "field < threshold" with the left edge taken when the test holds; leaves
// show the winning group and its share.
func DrawTree(g *cgraph.Graph, pt forest.PortableTree, fields, groups []string) error {
	nodes := make(map[int]*cgraph.Node, len(pt))
	for _, rec := range pt {
		n, err := g.CreateNode(fmt.Sprintf("n%d", rec.ID))
		if err != nil {
			return fmt.Errorf("failed to create node %d: %w", rec.ID, err)
		}
		nodes[rec.ID] = n

		if rec.Leaf {
			n.Set("label", leafLabel(rec.Value, groups))
			n.Set("shape", "box")
			continue
		}
		if rec.Feature == nil || rec.Threshold == nil || *rec.Feature < 0 || *rec.Feature >= len(fields) {
			return fmt.Errorf("%w: record %d", forest.ErrMalformedRecord, rec.ID)
		}
		n.Set("label", fmt.Sprintf("%s < %.2f", fields[*rec.Feature], *rec.Threshold))
	}

	for _, rec := range pt {
		if rec.Leaf {
			continue
		}
		for i, child := range rec.Children {
			target, ok := nodes[child]
			if !ok {
				return fmt.Errorf("%w: record %d child %d", forest.ErrMalformedRecord, rec.ID, child)
			}
			e, err := g.CreateEdge("", nodes[rec.ID], target)
			if err != nil {
				return fmt.Errorf("failed to create edge %d-%d: %w", rec.ID, child, err)
			}
			if i == 0 {
				e.SetLabel("yes")
			} else {
				e.SetLabel("no")
			}
		}
	}
	return nil
}

func leafLabel(value []float64, groups []string) string {
	total, best := 0.0, 0
	for i, v := range value {
		total += v
		if v > value[best] {
			best = i
		}
	}
	name := strconv.Itoa(best)
	if best < len(groups) {
		name = groups[best]
	}
	if total == 0 {
		return name
	}
	return fmt.Sprintf("%s\n%.0f%%", name, value[best]/total*100)
}
