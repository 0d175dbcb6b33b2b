package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"aicluster/internal/storage"
)

func main() {
	var (
		dataPath = flag.String("data", "./data", "Data directory path")
		key      = flag.String("key", "", "Show one analysis")
		expire   = flag.Duration("expire", 0, "Delete analyses not updated within this period")
	)
	flag.Parse()

	fmt.Printf("Inspecting analyses in: %s\n", *dataPath)

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	if *expire > 0 {
		n, err := store.Expire(time.Now().Add(-*expire))
		if err != nil {
			log.Fatalf("Failed to expire analyses: %v", err)
		}
		fmt.Printf("Removed %d analyses older than %v\n", n, *expire)
	}

	counts, err := store.Count()
	if err != nil {
		log.Fatalf("Failed to count analyses: %v", err)
	}
	fmt.Println("\nAnalyses by state:")
	for _, state := range []storage.State{storage.StateReady, storage.StateSuccess, storage.StateFailure} {
		fmt.Printf("  %-10s %d\n", state, counts[state])
	}

	if *key == "" {
		return
	}
	rec, err := store.Load(*key)
	if err != nil {
		log.Fatalf("Failed to load analysis: %v", err)
	}
	fmt.Printf("\nAnalysis %s\n", rec.Key)
	fmt.Printf("  State:   %s\n", rec.State)
	fmt.Printf("  Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
	if rec.Error != "" {
		fmt.Printf("  Error:   %s\n", rec.Error)
	}
	if len(rec.Data) > 0 {
		var summary struct {
			Field      []string `json:"field"`
			GroupLabel []string `json:"group_label"`
			Accuracy   float64  `json:"accuracy"`
		}
		if err := json.Unmarshal(rec.Data, &summary); err == nil {
			fmt.Printf("  Fields:  %d\n", len(summary.Field))
			fmt.Printf("  Groups:  %v\n", summary.GroupLabel)
			fmt.Printf("  Accuracy: %.3f\n", summary.Accuracy)
		}
	}
}
