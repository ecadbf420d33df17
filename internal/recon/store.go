package recon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketReports = []byte("recon_reports")

// storedReport wraps a report with its save time for TTL eviction.
type storedReport struct {
	Report  *Report   `json:"report"`
	SavedAt time.Time `json:"saved_at"`
}

// Store persists preflight reports between runs so repeated fetches of
// the same host can skip the probe. Entries expire after the configured
// TTL; a zero TTL keeps them forever.
type Store struct {
	db   *bolt.DB
	path string
	ttl  time.Duration
}

// OpenStore opens or creates a report store at the given path.
func OpenStore(path string, ttl time.Duration) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReports)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create report bucket: %w", err)
	}

	return &Store{db: db, path: path, ttl: ttl}, nil
}

// Put saves a report under a key, usually the probed URL's host.
func (s *Store) Put(key string, report *Report) error {
	data, err := json.Marshal(storedReport{Report: report, SavedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReports)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(key), data)
	})
}

// Get loads a cached report. Expired or undecodable entries are evicted
// and reported as a miss.
func (s *Store) Get(key string) (*Report, bool) {
	var stored storedReport
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReports)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}

		found = true
		return json.Unmarshal(data, &stored)
	})
	if err != nil || !found {
		if err != nil {
			s.Delete(key)
		}
		return nil, false
	}

	if s.ttl > 0 && time.Since(stored.SavedAt) > s.ttl {
		s.Delete(key)
		return nil, false
	}

	return stored.Report, true
}

// Delete removes a cached report.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReports)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete([]byte(key))
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
