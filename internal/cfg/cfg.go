package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"aicluster/internal/common"
)

const (
	defaultExpirePeriod   = 180 * 24 * time.Hour
	defaultRequestTimeout = 30 * time.Second
)

type Settings struct {
	NumTrees       int
	MaxDepth       int
	Iterations     int
	Workers        int
	IDColumn       string
	OutColumn      string
	DataPath       string
	ModelDir       string
	OutputDir      string
	ServerPort     int
	ServerURL      string
	ExpirePeriod   time.Duration
	RequestTimeout time.Duration
	ReportFormat   string
	LogLevel       string
}

type ConfigFile struct {
	Forest struct {
		NumTrees   int `yaml:"numTrees"`
		MaxDepth   int `yaml:"maxDepth"`
		Iterations int `yaml:"iterations"`
		Workers    int `yaml:"workers"`
	} `yaml:"forest"`

	Table struct {
		IDColumn  string `yaml:"idColumn"`
		OutColumn string `yaml:"outColumn"`
	} `yaml:"table"`

	Paths struct {
		DataPath  string `yaml:"dataPath"`
		ModelDir  string `yaml:"modelDir"`
		OutputDir string `yaml:"outputDir"`
	} `yaml:"paths"`

	Server struct {
		Port           int    `yaml:"port"`
		URL            string `yaml:"url"`
		ExpirePeriod   string `yaml:"expirePeriod"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"server"`

	Report struct {
		Format string `yaml:"format"`
	} `yaml:"report"`

	LogLevel string `yaml:"logLevel"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	expire, err := time.ParseDuration(config.Server.ExpirePeriod)
	if err != nil {
		expire = defaultExpirePeriod
	}
	timeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		timeout = defaultRequestTimeout
	}

	// Environment variables win over the file
	settings := Settings{
		NumTrees:       getIntFromEnvOrConfig(common.EnvNumTrees, config.Forest.NumTrees, common.DefaultNumTrees),
		MaxDepth:       getIntFromEnvOrConfig(common.EnvMaxDepth, config.Forest.MaxDepth, common.DefaultMaxDepth),
		Iterations:     getIntFromEnvOrConfig(common.EnvIterations, config.Forest.Iterations, common.DefaultIterations),
		Workers:        getIntFromEnvOrConfig(common.EnvWorkers, config.Forest.Workers, common.DefaultWorkers),
		IDColumn:       getEnvOrDefault(common.EnvIDColumn, orDefault(config.Table.IDColumn, common.DefaultIDColumn)),
		OutColumn:      getEnvOrDefault(common.EnvOutColumn, orDefault(config.Table.OutColumn, common.DefaultOutColumn)),
		DataPath:       getEnvOrDefault(common.EnvDataPath, orDefault(config.Paths.DataPath, common.DefaultDataPath)),
		ModelDir:       getEnvOrDefault(common.EnvModelDir, orDefault(config.Paths.ModelDir, common.DefaultModelDir)),
		OutputDir:      getEnvOrDefault(common.EnvOutputDir, orDefault(config.Paths.OutputDir, common.DefaultOutputDir)),
		ServerPort:     getIntFromEnvOrConfig(common.EnvServerPort, config.Server.Port, common.DefaultServerPort),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, orDefault(config.Server.URL, common.DefaultServerURL)),
		ExpirePeriod:   getDurationOrDefault(common.EnvExpirePeriod, expire),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, timeout),
		ReportFormat:   getEnvOrDefault(common.EnvReportFormat, orDefault(config.Report.Format, common.DefaultReportFormat)),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, orDefault(config.LogLevel, common.DefaultLogLevel)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		NumTrees:       getIntOrDefault(common.EnvNumTrees, common.DefaultNumTrees),
		MaxDepth:       getIntOrDefault(common.EnvMaxDepth, common.DefaultMaxDepth),
		Iterations:     getIntOrDefault(common.EnvIterations, common.DefaultIterations),
		Workers:        getIntOrDefault(common.EnvWorkers, common.DefaultWorkers),
		IDColumn:       getEnvOrDefault(common.EnvIDColumn, common.DefaultIDColumn),
		OutColumn:      getEnvOrDefault(common.EnvOutColumn, common.DefaultOutColumn),
		DataPath:       getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		ModelDir:       getEnvOrDefault(common.EnvModelDir, common.DefaultModelDir),
		OutputDir:      getEnvOrDefault(common.EnvOutputDir, common.DefaultOutputDir),
		ServerPort:     getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, common.DefaultServerURL),
		ExpirePeriod:   getDurationOrDefault(common.EnvExpirePeriod, defaultExpirePeriod),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, defaultRequestTimeout),
		ReportFormat:   getEnvOrDefault(common.EnvReportFormat, common.DefaultReportFormat),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings range-checks every configuration value
func validateSettings(settings *Settings) error {
	if settings.NumTrees < common.MinNumTrees || settings.NumTrees > common.MaxNumTrees {
		return fmt.Errorf("number of trees must be between %d and %d, got %d",
			common.MinNumTrees, common.MaxNumTrees, settings.NumTrees)
	}
	if settings.MaxDepth < common.MinMaxDepth || settings.MaxDepth > common.MaxMaxDepth {
		return fmt.Errorf("max depth must be between %d and %d, got %d",
			common.MinMaxDepth, common.MaxMaxDepth, settings.MaxDepth)
	}
	if settings.Iterations < common.MinIterations || settings.Iterations > common.MaxIterations {
		return fmt.Errorf("iterations must be between %d and %d, got %d",
			common.MinIterations, common.MaxIterations, settings.Iterations)
	}
	if settings.Workers < common.MinWorkers || settings.Workers > common.MaxWorkers {
		return fmt.Errorf("workers must be between %d and %d, got %d",
			common.MinWorkers, common.MaxWorkers, settings.Workers)
	}

	if settings.IDColumn == "" || settings.OutColumn == "" {
		return fmt.Errorf("identifier and output columns cannot be empty")
	}
	if settings.IDColumn == settings.OutColumn {
		return fmt.Errorf("%s, both are %q", common.ErrMsgColumnsMustDiffer, settings.IDColumn)
	}

	if settings.ServerPort < common.MinServerPort || settings.ServerPort > common.MaxServerPort {
		return fmt.Errorf("server port must be between %d and %d, got %d",
			common.MinServerPort, common.MaxServerPort, settings.ServerPort)
	}
	if settings.ServerURL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}

	if settings.ExpirePeriod < time.Hour {
		return fmt.Errorf("expire period must be at least 1h, got %v", settings.ExpirePeriod)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 10*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 10m, got %v", settings.RequestTimeout)
	}

	switch settings.ReportFormat {
	case "svg", "png", "jpg":
	default:
		return fmt.Errorf("report format must be one of svg, png, jpg, got %q", settings.ReportFormat)
	}

	return nil
}
