package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/abdidvp/layerfix/internal/domain"
)

var bucketRuns = []byte("runs")

// BoltHistory implements domain.RunHistory on a bbolt database. Keys are the
// run timestamp followed by the run id, so a cursor walks runs in time order.
type BoltHistory struct {
	db *bbolt.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*BoltHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs bucket: %w", err)
	}
	return &BoltHistory{db: db}, nil
}

func (h *BoltHistory) Close() error { return h.db.Close() }

func runKey(s domain.RunSummary) []byte {
	key := make([]byte, 8, 8+len(s.RunID))
	binary.BigEndian.PutUint64(key, uint64(s.Timestamp.UnixNano()))
	return append(key, s.RunID...)
}

func (h *BoltHistory) Record(s domain.RunSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return h.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put(runKey(s), data)
	})
}

// List returns the most recent runs first. An empty project matches every
// run; limit <= 0 means no limit.
func (h *BoltHistory) List(project string, limit int) ([]domain.RunSummary, error) {
	var out []domain.RunSummary
	err := h.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var s domain.RunSummary
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("decoding run %x: %w", k, err)
			}
			if project != "" && s.Project != project {
				continue
			}
			out = append(out, s)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}
