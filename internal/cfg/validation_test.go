package cfg

import (
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		NumTrees:       100,
		MaxDepth:       5,
		Iterations:     3,
		Workers:        2,
		IDColumn:       "ID",
		OutColumn:      "OUT",
		DataPath:       "data",
		ModelDir:       "models",
		OutputDir:      "out",
		ServerPort:     8091,
		ServerURL:      "http://localhost:8091",
		ExpirePeriod:   24 * time.Hour,
		RequestTimeout: 30 * time.Second,
		ReportFormat:   "svg",
		LogLevel:       "info",
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Ranges(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr bool
	}{
		{"min trees", func(s *Settings) { s.NumTrees = 1 }, false},
		{"max trees", func(s *Settings) { s.NumTrees = 1000 }, false},
		{"zero trees", func(s *Settings) { s.NumTrees = 0 }, true},
		{"min depth", func(s *Settings) { s.MaxDepth = 2 }, false},
		{"max depth", func(s *Settings) { s.MaxDepth = 10 }, false},
		{"depth too small", func(s *Settings) { s.MaxDepth = 1 }, true},
		{"depth too large", func(s *Settings) { s.MaxDepth = 11 }, true},
		{"zero iterations", func(s *Settings) { s.Iterations = 0 }, true},
		{"too many iterations", func(s *Settings) { s.Iterations = 101 }, true},
		{"zero workers", func(s *Settings) { s.Workers = 0 }, true},
		{"too many workers", func(s *Settings) { s.Workers = 65 }, true},
		{"empty id column", func(s *Settings) { s.IDColumn = "" }, true},
		{"same columns", func(s *Settings) { s.OutColumn = s.IDColumn }, true},
		{"privileged port", func(s *Settings) { s.ServerPort = 80 }, true},
		{"port too large", func(s *Settings) { s.ServerPort = 70000 }, true},
		{"empty server url", func(s *Settings) { s.ServerURL = "" }, true},
		{"short expire period", func(s *Settings) { s.ExpirePeriod = time.Minute }, true},
		{"short timeout", func(s *Settings) { s.RequestTimeout = 500 * time.Millisecond }, true},
		{"long timeout", func(s *Settings) { s.RequestTimeout = time.Hour }, true},
		{"png report", func(s *Settings) { s.ReportFormat = "png" }, false},
		{"bad report", func(s *Settings) { s.ReportFormat = "pdf" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			err := validateSettings(settings)
			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
