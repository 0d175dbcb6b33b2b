// Package storage provides persistent storage for submitted analyses.
// It uses BoltDB as the underlying storage engine and keeps one record per
// analysis key holding its state and, once finished, the encoded model
// artifact or the failure message.
//
// The package provides thread-safe operations; BoltDB serialises writers and
// every call runs in its own transaction.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"aicluster/internal/common"
)

const (
	analysesBucket = "analyses"     // Bucket name for analysis records
	dbFileName     = "aicluster.db" // Database file inside the data path
)

// ErrNotFound is returned for unknown analysis keys.
var ErrNotFound = errors.New("analysis not found")

// State is the lifecycle state of an analysis.
type State int

const (
	StateReady   State = common.StateReady   // reserved, still running
	StateSuccess State = common.StateSuccess // finished with an artifact
	StateFailure State = common.StateFailure // finished with an error
)

// Final reports whether the analysis will not change any more.
func (s State) Final() bool {
	return s != StateReady
}

func (s State) String() string {
	switch s {
	case StateReady:
		return "processing"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Record is one stored analysis.
type Record struct {
	Key       string          `json:"key"`
	State     State           `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Store provides persistent storage for analyses using BoltDB.
type Store struct {
	db  *bbolt.DB // BoltDB database instance
	now func() time.Time
}

// New creates a new storage instance under dataPath, creating the directory
// and the analyses bucket when needed.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data path: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(analysesBucket)); err != nil {
			return fmt.Errorf("create analyses bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Reserve stores a new analysis in the ready state and returns its key.
func (s *Store) Reserve() (string, error) {
	var key string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(analysesBucket))
		for {
			key = uuid.NewString()
			if b.Get([]byte(key)) == nil {
				break
			}
		}
		now := s.now().UTC()
		return put(b, Record{Key: key, State: StateReady, CreatedAt: now, UpdatedAt: now})
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Save marks the analysis successful and stores its encoded result.
func (s *Store) Save(key string, data []byte) error {
	return s.update(key, func(r *Record) {
		r.State = StateSuccess
		r.Error = ""
		r.Data = append(json.RawMessage(nil), data...)
	})
}

// Fail marks the analysis failed with cause.
func (s *Store) Fail(key string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.update(key, func(r *Record) {
		r.State = StateFailure
		r.Error = msg
		r.Data = nil
	})
}

func (s *Store) update(key string, mutate func(r *Record)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(analysesBucket))
		r, err := get(b, key)
		if err != nil {
			return err
		}
		mutate(&r)
		r.UpdatedAt = s.now().UTC()
		return put(b, r)
	})
}

// Load returns the record stored under key or ErrNotFound.
func (s *Store) Load(key string) (Record, error) {
	var r Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		r, err = get(tx.Bucket([]byte(analysesBucket)), key)
		return err
	})
	return r, err
}

// Expire deletes every record last updated before cutoff and returns how
// many were removed.
func (s *Store) Expire(cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(analysesBucket))

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				stale = append(stale, append([]byte(nil), k...)) // Drop malformed records
				return nil
			}
			if r.UpdatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Count returns the number of stored analyses per state.
func (s *Store) Count() (map[State]int, error) {
	counts := make(map[State]int)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(analysesBucket)).ForEach(func(_, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return nil
			}
			counts[r.State]++
			return nil
		})
	})
	return counts, err
}

func get(b *bbolt.Bucket, key string) (Record, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("unmarshal record %s: %w", key, err)
	}
	return r, nil
}

func put(b *bbolt.Bucket, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return b.Put([]byte(r.Key), data)
}
