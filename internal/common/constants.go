package common

// Reserved keys of a serialised row
const (
	KeywordOutput = "__output__"
	KeywordID     = "__id__"
)

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvNumTrees       = "NUM_TREES"
	EnvMaxDepth       = "MAX_DEPTH"
	EnvIterations     = "ITERATIONS"
	EnvWorkers        = "WORKERS"
	EnvIDColumn       = "ID_COLUMN"
	EnvOutColumn      = "OUT_COLUMN"
	EnvDataPath       = "DATA_PATH"
	EnvModelDir       = "MODEL_DIR"
	EnvOutputDir      = "OUTPUT_DIR"
	EnvServerPort     = "SERVER_PORT"
	EnvServerURL      = "SERVER_URL"
	EnvExpirePeriod   = "EXPIRE_PERIOD"
	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvReportFormat   = "REPORT_FORMAT"
	EnvLogLevel       = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultNumTrees     = 20
	DefaultMaxDepth     = 4
	DefaultIterations   = 1
	DefaultWorkers      = 1
	DefaultIDColumn     = "ID"
	DefaultOutColumn    = "OUT"
	DefaultDataPath     = "data"
	DefaultModelDir     = "models"
	DefaultOutputDir    = "out"
	DefaultServerPort   = 8091
	DefaultServerURL    = "http://localhost:8091"
	DefaultReportFormat = "svg"
	DefaultLogLevel     = "info"
)

// Validation constants
const (
	MinNumTrees   = 1
	MaxNumTrees   = 1000
	MinMaxDepth   = 2
	MaxMaxDepth   = 10
	MinIterations = 1
	MaxIterations = 100
	MinWorkers    = 1
	MaxWorkers    = 64
	MinServerPort = 1024
	MaxServerPort = 65535
)

// Analysis states stored with every submitted job
const (
	StateReady   = 0
	StateSuccess = 1
	StateFailure = -1
)

// Common error messages
const (
	ErrMsgTrainingFileRequired = "training data file is required"
	ErrMsgColumnsMustDiffer    = "identifier and output columns must differ"
)
