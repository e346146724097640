// Package storage keeps a history of benchmark runs in a bbolt database.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"valetbench/internal/stats"
)

const (
	BucketRuns = "runs"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// RunRecord describes one finished (or aborted) run.
type RunRecord struct {
	ID          string               `json:"id"`
	Timestamp   time.Time            `json:"timestamp"`
	Strategy    string               `json:"strategy"`
	Transfer    string               `json:"transfer,omitempty"`
	BaseURL     string               `json:"base_url"`
	Levels      []int                `json:"levels"`
	Files       int                  `json:"files"`
	TotalMB     float64              `json:"total_mb"`
	ResultsPath string               `json:"results_path"`
	Duration    time.Duration        `json:"duration"`
	Error       string               `json:"error,omitempty"`
	Summaries   []stats.LevelSummary `json:"summaries"`
}

type Store struct {
	db *bbolt.DB
}

// DefaultPath is $HOME/.valetbench/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".valetbench", "history.db"), nil
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores r under a key that sorts by time, so List returns newest first.
func (s *Store) Save(r RunRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(key(r), data)
	})
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]RunRecord, error) {
	var items []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item RunRecord
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			items = append(items, item)
			if limit > 0 && len(items) >= limit {
				break
			}
		}
		return nil
	})
	return items, err
}

// Get finds a record by full id or unique id prefix.
func (s *Store) Get(id string) (*RunRecord, error) {
	var found []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).ForEach(func(_, v []byte) error {
			var item RunRecord
			if err := json.Unmarshal(v, &item); err != nil {
				return nil
			}
			if item.ID == id {
				found = []RunRecord{item}
				return errStop
			}
			if len(id) >= 4 && len(item.ID) > len(id) && item.ID[:len(id)] == id {
				found = append(found, item)
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("id prefix %q matches %d runs", id, len(found))
	}
}

var errStop = errors.New("stop")

func key(r RunRecord) []byte {
	return []byte(r.Timestamp.UTC().Format("20060102T150405.000000000") + "_" + r.ID)
}
