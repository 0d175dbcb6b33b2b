package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const versionsFileName = "model_versions.json"

// Version is one registered artifact.
type Version struct {
	Version   string         `json:"version"`
	Path      string         `json:"path"`
	CreatedAt time.Time      `json:"created_at"`
	Metrics   VersionMetrics `json:"metrics"`
	IsActive  bool           `json:"is_active"`
}

// VersionMetrics summarises an artifact's training run.
type VersionMetrics struct {
	Accuracy         float64 `json:"accuracy"`
	BestTreeAccuracy float64 `json:"best_tree_accuracy"`
	TrainingSamples  int     `json:"training_samples"`
	NumTrees         int     `json:"num_trees"`
	Fields           int     `json:"fields"`
}

// Manager handles artifact versioning and rollback
type Manager struct {
	mu           sync.Mutex
	modelsDir    string
	versionsFile string
	versions     []Version
	now          func() time.Time
}

// NewManager opens the registry in modelsDir, creating the directory.
func NewManager(modelsDir string) (*Manager, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	m := &Manager{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, versionsFileName),
		versions:     make([]Version, 0),
		now:          time.Now,
	}

	if err := m.loadVersions(); err != nil {
		log.Warn().Err(err).Msg("Failed to load model versions, starting fresh")
		m.versions = make([]Version, 0)
	}

	return m, nil
}

// Install saves a into the models directory, registers it and makes it the
// active version.
func (m *Manager) Install(a *Artifact) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := m.now()
	name := m.uniqueVersion(created)
	path := filepath.Join(m.modelsDir, "forest_"+name+".json")
	if err := a.Save(path); err != nil {
		return Version{}, err
	}

	v := m.addLocked(name, path, created, MetricsOf(a))
	if err := m.activateLocked(v.Version); err != nil {
		return Version{}, err
	}
	log.Info().Str("version", v.Version).Str("path", path).Msg("Installed model version")
	return m.findLocked(v.Version), nil
}

// MetricsOf summarises a.
func MetricsOf(a *Artifact) VersionMetrics {
	return VersionMetrics{
		Accuracy:         a.Accuracy,
		BestTreeAccuracy: a.BestTreeAccuracy,
		TrainingSamples:  len(a.TrainingSet),
		NumTrees:         len(a.Forest),
		Fields:           len(a.Field),
	}
}

// AddVersion registers an artifact file without activating it.
func (m *Manager) AddVersion(path string, metrics VersionMetrics) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := m.now()
	v := m.addLocked(m.uniqueVersion(created), path, created, metrics)
	return v, m.saveVersions()
}

func (m *Manager) addLocked(name, path string, created time.Time, metrics VersionMetrics) Version {
	v := Version{
		Version:   name,
		Path:      path,
		CreatedAt: created,
		Metrics:   metrics,
	}
	m.versions = append(m.versions, v)

	// Newest first
	sort.SliceStable(m.versions, func(i, j int) bool {
		return m.versions[i].CreatedAt.After(m.versions[j].CreatedAt)
	})
	return v
}

func (m *Manager) uniqueVersion(t time.Time) string {
	base := t.Format("20060102-150405")
	name := base
	for n := 1; m.indexLocked(name) >= 0; n++ {
		name = fmt.Sprintf("%s.%d", base, n)
	}
	return name
}

// ActivateVersion activates a specific version
func (m *Manager) ActivateVersion(version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activateLocked(version)
}

func (m *Manager) activateLocked(version string) error {
	if m.indexLocked(version) < 0 {
		return fmt.Errorf("version %s not found", version)
	}
	for i := range m.versions {
		m.versions[i].IsActive = m.versions[i].Version == version
	}
	return m.saveVersions()
}

// Rollback activates the version registered before the active one.
func (m *Manager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range m.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}

	if currentIdx+1 < len(m.versions) {
		return m.activateLocked(m.versions[currentIdx+1].Version)
	}
	return fmt.Errorf("no previous version available")
}

// Current returns the active version, if any.
func (m *Manager) Current() (Version, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.IsActive {
			return v, true
		}
	}
	return Version{}, false
}

// LoadCurrent reads the active artifact.
func (m *Manager) LoadCurrent() (*Artifact, error) {
	v, ok := m.Current()
	if !ok {
		return nil, fmt.Errorf("no active model version in %s", m.modelsDir)
	}
	return Load(v.Path)
}

// List returns all versions, newest first.
func (m *Manager) List() []Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Version, len(m.versions))
	copy(out, m.versions)
	return out
}

func (m *Manager) indexLocked(version string) int {
	for i, v := range m.versions {
		if v.Version == version {
			return i
		}
	}
	return -1
}

func (m *Manager) findLocked(version string) Version {
	if i := m.indexLocked(version); i >= 0 {
		return m.versions[i]
	}
	return Version{}
}

// loadVersions loads versions from file
func (m *Manager) loadVersions() error {
	data, err := os.ReadFile(m.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &m.versions)
}

// saveVersions saves versions to file
func (m *Manager) saveVersions() error {
	data, err := json.MarshalIndent(m.versions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.versionsFile, data, 0o600)
}
