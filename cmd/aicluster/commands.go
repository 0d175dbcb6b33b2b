package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"aicluster/internal/analysis"
	"aicluster/internal/cfg"
	"aicluster/internal/client"
	"aicluster/internal/fit"
	"aicluster/internal/metrics"
	"aicluster/internal/model"
	"aicluster/internal/report"
	"aicluster/internal/server"
	"aicluster/internal/storage"
)

// analysisFlags are shared by train and submit.
type analysisFlags struct {
	training   *string
	analysis   *string
	output     *string
	numTrees   *int
	depth      *int
	iterations *int
	idColumn   *string
	outColumn  *string
	withoutRaw *bool
	verbose    *bool
	logLevel   *string
}

func addAnalysisFlags(fs *flag.FlagSet, s cfg.Settings) *analysisFlags {
	return &analysisFlags{
		training:   fs.String("t", "", "Training data file (csv, tsv or txt)"),
		analysis:   fs.String("i", "", "Analysis data file; the training data is predicted when omitted"),
		output:     fs.String("o", s.OutputDir, "Output: a .json file for the model only, otherwise a report directory"),
		numTrees:   fs.Int("n", s.NumTrees, "Number of trees"),
		depth:      fs.Int("d", s.MaxDepth, "Maximum tree depth"),
		iterations: fs.Int("iteration", s.Iterations, "Number of independent fitting iterations"),
		idColumn:   fs.String("I", s.IDColumn, "Identifier column"),
		outColumn:  fs.String("F", s.OutColumn, "Output (group) column"),
		withoutRaw: fs.Bool("without-rawdata", false, "Store only ids and labels of the input rows"),
		verbose:    fs.Bool("verbose", false, "Enable debug logging"),
		logLevel:   fs.String("log-level", s.LogLevel, "Log level: debug, info, warn, error"),
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTrain(s cfg.Settings, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	af := addAnalysisFlags(fs, s)
	key := fs.String("key", "", "Key stored with the analysis")
	workers := fs.Int("workers", s.Workers, "Parallel fitting iterations")
	modelDir := fs.String("model-dir", "", "Install the trained model as the active version in this directory")
	fs.Parse(args)
	setupLogging(*af.logLevel, *af.verbose)

	if *af.training == "" {
		fs.Usage()
		return errors.New("training data file is required (-t)")
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner := analysis.NewRunner(fit.NewTrainer(fit.NewRandomForest(), nil))
	artifact, err := runner.Run(ctx, analysis.Request{
		TrainingFile: *af.training,
		AnalysisFile: *af.analysis,
		IDColumn:     *af.idColumn,
		OutColumn:    *af.outColumn,
		Params: fit.Params{
			NumTrees:   *af.numTrees,
			MaxDepth:   *af.depth,
			Iterations: *af.iterations,
			Workers:    *workers,
		},
		Key:            *key,
		WithoutRawData: *af.withoutRaw,
	})
	if err != nil {
		return err
	}

	if *modelDir != "" {
		manager, err := model.NewManager(*modelDir)
		if err != nil {
			return err
		}
		if _, err := manager.Install(artifact); err != nil {
			return fmt.Errorf("failed to install model: %w", err)
		}
	}

	return writeArtifact(artifact, *af.output, s.ReportFormat)
}

// writeArtifact saves only the model when output names a .json file and a
// full report directory otherwise.
func writeArtifact(a *model.Artifact, output, format string) error {
	if strings.EqualFold(filepath.Ext(output), ".json") {
		if err := a.Save(output); err != nil {
			return err
		}
		log.Info().Str("file", output).Msg("Model written")
		return nil
	}

	files, err := report.NewReporter(a, output, format).Generate()
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	log.Info().Str("directory", output).Int("files", len(files)).Msg("Report written")
	return nil
}

func runPredict(s cfg.Settings, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	modelPath := fs.String("model", "", "Model file; the active version of -model-dir is used when omitted")
	modelDir := fs.String("model-dir", s.ModelDir, "Model registry directory")
	input := fs.String("i", "", "Input data file")
	output := fs.String("o", "", "Output file (.json or .csv); stdout when omitted")
	logLevel := fs.String("log-level", s.LogLevel, "Log level: debug, info, warn, error")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	fs.Parse(args)
	setupLogging(*logLevel, *verbose)

	if *input == "" {
		fs.Usage()
		return errors.New("input data file is required (-i)")
	}

	var (
		artifact *model.Artifact
		err      error
	)
	if *modelPath != "" {
		artifact, err = model.Load(*modelPath)
	} else {
		var manager *model.Manager
		manager, err = model.NewManager(*modelDir)
		if err == nil {
			artifact, err = manager.LoadCurrent()
		}
	}
	if err != nil {
		return err
	}

	start := time.Now()
	predictions, err := analysis.Predict(artifact, *input)
	if err != nil {
		return err
	}
	log.Info().
		Int("rows", len(predictions)).
		Dur("elapsed", time.Since(start)).
		Msg("Prediction complete")

	return writePredictions(predictions, artifact.GroupLabel, *output)
}

func writePredictions(predictions []model.Prediction, groups []string, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if !strings.EqualFold(filepath.Ext(output), ".csv") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(predictions)
	}

	writer := csv.NewWriter(w)
	header := []string{"ID", "Prediction", "Label"}
	header = append(header, groups...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, p := range predictions {
		record := []string{p.ID, p.Prediction, p.Label}
		for _, v := range p.Score {
			record = append(record, strconv.FormatFloat(v, 'f', 4, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func runServe(s cfg.Settings, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", s.ServerPort, "Listen port")
	dataPath := fs.String("data", s.DataPath, "Directory of the analysis database and uploads")
	submitInterval := fs.Duration("submit-interval", 0, "Minimum spacing of accepted submissions (0 disables limiting)")
	submitBurst := fs.Int("submit-burst", 5, "Submissions accepted in a burst when limiting")
	logLevel := fs.String("log-level", s.LogLevel, "Log level: debug, info, warn, error")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	fs.Parse(args)
	setupLogging(*logLevel, *verbose)

	store, err := storage.New(*dataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	mw := metrics.NewWrapper(metrics.New())
	runner := analysis.NewRunner(fit.NewTrainer(fit.NewRandomForest(), mw))
	srv := server.New(store, runner, mw, server.Config{
		Port:           *port,
		UploadDir:      filepath.Join(*dataPath, "uploads"),
		ExpirePeriod:   s.ExpirePeriod,
		SubmitInterval: *submitInterval,
		SubmitBurst:    *submitBurst,
		Defaults: fit.Params{
			NumTrees:   s.NumTrees,
			MaxDepth:   s.MaxDepth,
			Iterations: s.Iterations,
			Workers:    s.Workers,
		},
		IDColumn:  s.IDColumn,
		OutColumn: s.OutColumn,
	})
	if err := srv.Start(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func runSubmit(s cfg.Settings, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	af := addAnalysisFlags(fs, s)
	serverURL := fs.String("server", s.ServerURL, "Analysis service URL")
	wait := fs.Bool("wait", false, "Wait for the analysis and write its output")
	poll := fs.Duration("poll", 2*time.Second, "Polling interval while waiting")
	fs.Parse(args)
	setupLogging(*af.logLevel, *af.verbose)

	if *af.training == "" {
		fs.Usage()
		return errors.New("training data file is required (-t)")
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := client.New(*serverURL, s.RequestTimeout)
	key, err := c.Submit(ctx, client.Submission{
		TrainingFile:   *af.training,
		AnalysisFile:   *af.analysis,
		NumTrees:       *af.numTrees,
		Depth:          *af.depth,
		Iterations:     *af.iterations,
		IDColumn:       *af.idColumn,
		OutColumn:      *af.outColumn,
		WithoutRawData: *af.withoutRaw,
	})
	if err != nil {
		return err
	}
	fmt.Println(key)
	if !*wait {
		return nil
	}

	artifact, err := c.Wait(ctx, key, *poll)
	if err != nil {
		return err
	}
	return writeArtifact(artifact, *af.output, s.ReportFormat)
}

func runModels(s cfg.Settings, args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	modelDir := fs.String("model-dir", s.ModelDir, "Model registry directory")
	activate := fs.String("activate", "", "Version to activate")
	rollback := fs.Bool("rollback", false, "Re-activate the previous version")
	add := fs.String("add", "", "Register an existing model file without activating it")
	fs.Parse(args)

	manager, err := model.NewManager(*modelDir)
	if err != nil {
		return err
	}

	switch {
	case *add != "":
		v, err := registerArtifact(manager, *add)
		if err != nil {
			return err
		}
		log.Info().Str("version", v.Version).Str("path", v.Path).Msg("Registered model")
	case *activate != "":
		if err := manager.ActivateVersion(*activate); err != nil {
			return err
		}
	case *rollback:
		if err := manager.Rollback(); err != nil {
			return err
		}
	}

	for _, v := range manager.List() {
		marker := " "
		if v.IsActive {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  accuracy=%.3f best_tree=%.3f trees=%d fields=%d\n",
			marker, v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"),
			v.Metrics.Accuracy, v.Metrics.BestTreeAccuracy, v.Metrics.NumTrees, v.Metrics.Fields)
	}
	return nil
}

// registerArtifact adds the model file at path to the registry. The file is
// loaded first so broken models never become versions.
func registerArtifact(manager *model.Manager, path string) (model.Version, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return model.Version{}, err
	}
	a, err := model.Load(abs)
	if err != nil {
		return model.Version{}, err
	}
	return manager.AddVersion(abs, model.MetricsOf(a))
}
