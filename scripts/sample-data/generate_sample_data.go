package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
)

func main() {
	var (
		outDir   = flag.String("out", "data/sample", "Output directory")
		groups   = flag.Int("groups", 3, "Number of groups")
		fields   = flag.Int("fields", 8, "Number of numeric fields")
		informed = flag.Int("informative", 3, "Fields whose mean depends on the group")
		samples  = flag.Int("samples", 60, "Training samples per group")
		analysed = flag.Int("analysis", 10, "Analysis samples per group")
		missing  = flag.Float64("missing", 0.05, "Fraction of cells left empty")
		seed     = flag.Int64("seed", 1, "Random seed")
	)
	flag.Parse()

	if *groups < 2 || *fields < 4 || *informed > *fields {
		log.Fatalf("need at least 2 groups, 4 fields and informative <= fields")
	}

	fmt.Printf("Generating sample tables...\n")
	fmt.Printf("  Groups: %d\n", *groups)
	fmt.Printf("  Fields: %d (%d informative)\n", *fields, *informed)
	fmt.Printf("  Output: %s\n", *outDir)

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	g := generator{
		rng:      rng,
		groups:   *groups,
		fields:   *fields,
		informed: *informed,
		missing:  *missing,
		centers:  make([][]float64, *groups),
	}
	for i := range g.centers {
		g.centers[i] = make([]float64, *informed)
		for j := range g.centers[i] {
			g.centers[i][j] = 10 + rng.Float64()*40
		}
	}

	training := filepath.Join(*outDir, "training.csv")
	if err := g.write(training, *samples, "s", true); err != nil {
		log.Fatalf("Failed to write training table: %v", err)
	}
	analysis := filepath.Join(*outDir, "analysis.csv")
	if err := g.write(analysis, *analysed, "q", false); err != nil {
		log.Fatalf("Failed to write analysis table: %v", err)
	}

	fmt.Printf("✓ Wrote %s and %s\n", training, analysis)
}

type generator struct {
	rng      *rand.Rand
	groups   int
	fields   int
	informed int
	missing  float64
	centers  [][]float64
}

func (g generator) write(path string, perGroup int, prefix string, labelled bool) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"ID"}
	for j := 0; j < g.fields; j++ {
		header = append(header, fmt.Sprintf("F%02d", j+1))
	}
	if labelled {
		header = append(header, "OUT")
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	n := 0
	for group := 0; group < g.groups; group++ {
		for i := 0; i < perGroup; i++ {
			n++
			record := []string{fmt.Sprintf("%s%04d", prefix, n)}
			for j := 0; j < g.fields; j++ {
				if g.rng.Float64() < g.missing {
					record = append(record, "")
					continue
				}
				mean := 25.0
				if j < g.informed {
					mean = g.centers[group][j]
				}
				v := mean + g.rng.NormFloat64()*3
				if v < 0 {
					v = 0
				}
				record = append(record, strconv.FormatFloat(v, 'f', 3, 64))
			}
			if labelled {
				record = append(record, fmt.Sprintf("G%d", group+1))
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
