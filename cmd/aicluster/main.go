package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"aicluster/internal/cfg"
)

const usage = `usage: aicluster <command> [flags]

commands:
  train     fit a forest on a training table and write the analysis
  predict   classify a table with a trained model
  serve     run the analysis web service
  submit    send an analysis to a remote service
  models    list, activate or roll back installed model versions

run "aicluster <command> -h" for the flags of a command`

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(settings.LogLevel, false)

	args := os.Args[2:]
	switch os.Args[1] {
	case "train":
		err = runTrain(settings, args)
	case "predict":
		err = runPredict(settings, args)
	case "serve":
		err = runServe(settings, args)
	case "submit":
		err = runSubmit(settings, args)
	case "models":
		err = runModels(settings, args)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func setupLogging(logLevel string, verbose bool) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}
