// Package server exposes analyses over HTTP. Uploaded tables are analysed in
// the background; results are kept in the store under a generated key that
// clients poll, stream over a websocket or predict against.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"aicluster/internal/analysis"
	"aicluster/internal/common"
	"aicluster/internal/fit"
	"aicluster/internal/model"
	"aicluster/internal/storage"
	"aicluster/internal/table"
)

const (
	maxUploadSize        = 64 << 20
	maxPredictBody       = 16 << 20
	defaultExpireEvery   = time.Hour
	defaultStatusEvery   = time.Second
	defaultAnalysisLimit = 30 * time.Minute
)

// MetricsInterface is the subset of metrics the server reports.
type MetricsInterface interface {
	AnalysesInc()
	AnalysisFailuresInc()
	AnalysesExpired(n int)
	ActiveAnalyses(delta float64)
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatency(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) AnalysesInc()                    {}
func (noopMetrics) AnalysisFailuresInc()            {}
func (noopMetrics) AnalysesExpired(int)             {}
func (noopMetrics) ActiveAnalyses(float64)          {}
func (noopMetrics) PredictionsInc()                 {}
func (noopMetrics) PredictionFailuresInc()          {}
func (noopMetrics) PredictionLatency(time.Duration) {}

// Config holds the server settings. Zero durations fall back to defaults.
type Config struct {
	Port           int
	UploadDir      string
	ExpirePeriod   time.Duration
	ExpireInterval time.Duration
	StatusInterval time.Duration
	AnalysisLimit  time.Duration
	SubmitInterval time.Duration // minimum spacing of submissions, 0 disables limiting
	SubmitBurst    int
	Defaults       fit.Params
	IDColumn       string
	OutColumn      string
	Gatherer       prometheus.Gatherer
}

// Status is what /ws pushes and what /retrieve answers while an analysis is
// not successful.
type Status struct {
	Key     string `json:"key,omitempty"`
	State   int    `json:"state"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// PredictResponse is the body of a successful /predict call.
type PredictResponse struct {
	Key        string             `json:"key"`
	Prediction []model.Prediction `json:"prediction"`
}

// Server runs analyses submitted over HTTP.
type Server struct {
	store    *storage.Store
	runner   *analysis.Runner
	metrics  MetricsInterface
	cfg      Config
	router   *mux.Router
	server   *http.Server
	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopChannel chan struct{}
	mu          sync.Mutex
	isRunning   bool
	stopped     bool
}

// New wires the routes. metrics may be nil.
func New(store *storage.Store, runner *analysis.Runner, metrics MetricsInterface, cfg Config) *Server {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.ExpireInterval <= 0 {
		cfg.ExpireInterval = defaultExpireEvery
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusEvery
	}
	if cfg.AnalysisLimit <= 0 {
		cfg.AnalysisLimit = defaultAnalysisLimit
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = common.DefaultIDColumn
	}
	if cfg.OutColumn == "" {
		cfg.OutColumn = common.DefaultOutColumn
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:       store,
		runner:      runner,
		metrics:     metrics,
		cfg:         cfg,
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		ctx:         ctx,
		cancel:      cancel,
		stopChannel: make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/analyses", s.handleSubmit).Methods("POST")
	r.HandleFunc("/", s.handleSubmit).Methods("POST")
	r.HandleFunc("/retrieve", s.handleRetrieve).Methods("GET")
	r.HandleFunc("/predict", s.handlePredict).Methods("POST")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router = r

	if cfg.SubmitInterval > 0 {
		burst := cfg.SubmitBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Every(cfg.SubmitInterval), burst)
	}

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP in the background and begins expiring old analyses.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("server is already running")
	}
	if s.stopped {
		return fmt.Errorf("server has been shut down")
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	s.wg.Add(1)
	go s.expiryCollector()

	go func() {
		log.Info().
			Str("address", s.server.Addr).
			Msg("Starting analysis server")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Analysis server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Shutdown stops accepting requests and waits for running analyses. When ctx
// expires first the analyses are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopChannel)
	s.mu.Unlock()

	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Shutdown deadline reached, cancelling running analyses")
		s.cancel()
		<-done
		if err == nil {
			err = ctx.Err()
		}
	}
	s.cancel()

	log.Info().Msg("Analysis server stopped")
	return err
}

// Expire removes analyses older than the configured period.
func (s *Server) Expire() (int, error) {
	if s.cfg.ExpirePeriod <= 0 {
		return 0, nil
	}
	n, err := s.store.Expire(time.Now().Add(-s.cfg.ExpirePeriod))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.AnalysesExpired(n)
		log.Info().Int("removed", n).Dur("period", s.cfg.ExpirePeriod).Msg("Expired stored analyses")
	}
	return n, nil
}

func (s *Server) expiryCollector() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ExpireInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Expire(); err != nil {
			log.Error().Err(err).Msg("Failed to expire analyses")
		}
		select {
		case <-ticker.C:
		case <-s.stopChannel:
			return
		}
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeMessage(w, http.StatusTooManyRequests, "too many submissions")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := s.requestFromForm(r)

	training, err := s.saveUpload(r, "training")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	analysisFile, err := s.saveUpload(r, "analysis")
	if err != nil {
		removeFiles(training)
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if training == "" {
		training, analysisFile = analysisFile, ""
	}
	if training == "" {
		writeMessage(w, http.StatusBadRequest, common.ErrMsgTrainingFileRequired)
		return
	}
	req.TrainingFile, req.AnalysisFile = training, analysisFile

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		removeFiles(training, analysisFile)
		writeMessage(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	key, err := s.store.Reserve()
	if err != nil {
		s.mu.Unlock()
		removeFiles(training, analysisFile)
		log.Error().Err(err).Msg("Failed to reserve analysis key")
		writeMessage(w, http.StatusInternalServerError, "failed to reserve analysis")
		return
	}
	req.Key = key
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.AnalysesInc()
	s.metrics.ActiveAnalyses(1)
	go s.runAnalysis(req)

	log.Info().
		Str("key", key).
		Int("trees", req.Params.NumTrees).
		Int("depth", req.Params.MaxDepth).
		Int("iterations", req.Params.Iterations).
		Bool("analysis_set", analysisFile != "").
		Msg("Analysis accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{"key": key})
}

func (s *Server) requestFromForm(r *http.Request) analysis.Request {
	p := s.cfg.Defaults
	if v, err := strconv.Atoi(r.FormValue("num_trees")); err == nil {
		p.NumTrees = v
	}
	if v, err := strconv.Atoi(r.FormValue("depth")); err == nil {
		p.MaxDepth = v
	}
	if v, err := strconv.Atoi(r.FormValue("iteration")); err == nil && v > 1 && v < 100 {
		p.Iterations = v
	}

	req := analysis.Request{
		IDColumn:  r.FormValue("idcolumn"),
		OutColumn: r.FormValue("outcolumn"),
		Params:    p.Normalize(),
	}
	if req.IDColumn == "" {
		req.IDColumn = s.cfg.IDColumn
	}
	if req.OutColumn == "" {
		req.OutColumn = s.cfg.OutColumn
	}
	req.WithoutRawData, _ = strconv.ParseBool(r.FormValue("without_rawdata"))
	return req
}

// saveUpload copies the named file part into the upload directory keeping
// its extension, which selects the table delimiter. A missing part yields "".
func (s *Server) saveUpload(r *http.Request, name string) (string, error) {
	file, header, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("invalid %s upload: %w", name, err)
	}
	defer file.Close()
	return s.copyUpload(name, header, file)
}

func (s *Server) copyUpload(name string, header *multipart.FileHeader, src io.Reader) (string, error) {
	if header.Filename == "" {
		return "", nil
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".csv"
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	dst, err := os.CreateTemp(s.cfg.UploadDir, name+"-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to store %s upload: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to store %s upload: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to store %s upload: %w", name, err)
	}
	return dst.Name(), nil
}

func removeFiles(paths ...string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}

func (s *Server) runAnalysis(req analysis.Request) {
	defer s.wg.Done()
	defer s.metrics.ActiveAnalyses(-1)
	defer removeFiles(req.TrainingFile, req.AnalysisFile)

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.AnalysisLimit)
	defer cancel()

	artifact, err := s.runner.Run(ctx, req)
	if err == nil {
		var buf bytes.Buffer
		if err = artifact.Write(&buf); err == nil {
			err = s.store.Save(req.Key, buf.Bytes())
		}
	}
	if err != nil {
		s.metrics.AnalysisFailuresInc()
		log.Error().Err(err).Str("key", req.Key).Msg("Analysis failed")
		if ferr := s.store.Fail(req.Key, err); ferr != nil {
			log.Error().Err(ferr).Str("key", req.Key).Msg("Failed to record analysis failure")
		}
		return
	}
	log.Info().Str("key", req.Key).Msg("Analysis stored")
}

func (s *Server) loadRecord(w http.ResponseWriter, r *http.Request) (storage.Record, bool) {
	key := r.URL.Query().Get("id")
	if key == "" {
		writeMessage(w, http.StatusBadRequest, "no data given")
		return storage.Record{}, false
	}
	rec, err := s.store.Load(key)
	if errors.Is(err, storage.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "not found")
		return storage.Record{}, false
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to load analysis")
		writeMessage(w, http.StatusInternalServerError, "failed to load analysis")
		return storage.Record{}, false
	}
	return rec, true
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	if rec.State != storage.StateSuccess {
		writeJSON(w, http.StatusOK, statusOf(rec))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Data)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	if rec.State != storage.StateSuccess {
		writeJSON(w, http.StatusConflict, statusOf(rec))
		return
	}

	var rows []table.Row
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPredictBody)).Decode(&rows); err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(rows) == 0 {
		writeMessage(w, http.StatusBadRequest, "rows cannot be empty")
		return
	}
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = fmt.Sprintf("ID:%d", i)
		}
	}

	artifact, err := model.Read(bytes.NewReader(rec.Data))
	if err != nil {
		s.metrics.PredictionFailuresInc()
		log.Error().Err(err).Str("key", rec.Key).Msg("Stored model is unreadable")
		writeMessage(w, http.StatusInternalServerError, "stored model is unreadable")
		return
	}
	predictions, err := analysis.PredictRows(artifact, rows)
	if err != nil {
		s.metrics.PredictionFailuresInc()
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("prediction failed: %v", err))
		return
	}

	s.metrics.PredictionsInc()
	s.metrics.PredictionLatency(time.Since(start))
	writeJSON(w, http.StatusOK, PredictResponse{Key: rec.Key, Prediction: predictions})
}

// handleWebSocket pushes the state of one analysis whenever it changes and
// closes the connection once the state is final.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	// drain client frames so close messages are processed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	last := storage.State(-2)
	for {
		if rec.State != last {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(statusOf(rec)); err != nil {
				log.Debug().Err(err).Str("key", rec.Key).Msg("WebSocket client went away")
				return
			}
			last = rec.State
		}
		if rec.State.Final() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, rec.State.String())
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-s.stopChannel:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}

		next, err := s.store.Load(rec.Key)
		if err != nil {
			log.Warn().Err(err).Str("key", rec.Key).Msg("Analysis disappeared while streaming")
			return
		}
		rec = next
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Count()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"healthy": false, "error": err.Error()})
		return
	}
	analyses := make(map[string]int, len(counts))
	for state, n := range counts {
		analyses[state.String()] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy":  true,
		"analyses": analyses,
	})
}

func statusOf(rec storage.Record) Status {
	return Status{Key: rec.Key, State: int(rec.State), Message: rec.State.String(), Error: rec.Error}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
