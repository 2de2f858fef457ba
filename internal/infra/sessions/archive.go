package sessions

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"holmes/internal/domain"
)

const (
	archiveSchemaVersion = 1

	metaBucketName  = "meta"
	tasksBucketName = "tasks"
	versionKey      = "version"
)

var ErrArchiveClosed = errors.New("task archive is closed")

// Archive persists session task lists in a bbolt database.
type Archive struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

var _ TaskArchive = (*Archive)(nil)

func OpenArchive(path string) (*Archive, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("archive path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure archive dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open task archive: %w", err)
	}
	if err := ensureArchiveSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db, path: trimmed}, nil
}

func (a *Archive) Path() string {
	return a.path
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

// SaveTasks replaces the stored task list of a session.
func (a *Archive) SaveTasks(session string, tasks []domain.Task) error {
	payload, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	return a.update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(tasksBucketName)).Put([]byte(session), payload)
	})
}

// LoadTasks returns the stored task list of a session.
func (a *Archive) LoadTasks(session string) ([]domain.Task, bool, error) {
	var payload []byte
	err := a.view(func(tx *bolt.Tx) error {
		if value := tx.Bucket([]byte(tasksBucketName)).Get([]byte(session)); value != nil {
			payload = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil || payload == nil {
		return nil, false, err
	}
	var tasks []domain.Task
	if err := json.Unmarshal(payload, &tasks); err != nil {
		return nil, false, domain.E(domain.CodeCacheCorruption, "load tasks", "", err)
	}
	return tasks, true, nil
}

// Sessions lists archived session ids in order.
func (a *Archive) Sessions() ([]string, error) {
	var ids []string
	err := a.view(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(tasksBucketName)).ForEach(func(key, _ []byte) error {
			ids = append(ids, string(key))
			return nil
		})
	})
	sort.Strings(ids)
	return ids, err
}

func (a *Archive) view(fn func(*bolt.Tx) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrArchiveClosed
	}
	return a.db.View(fn)
}

func (a *Archive) update(fn func(*bolt.Tx) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrArchiveClosed
	}
	return a.db.Update(fn)
}

func ensureArchiveSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucketName))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(tasksBucketName)); err != nil {
			return fmt.Errorf("create tasks bucket: %w", err)
		}
		version := 0
		if raw := meta.Get([]byte(versionKey)); len(raw) == 8 {
			version = int(binary.BigEndian.Uint64(raw))
		}
		switch {
		case version == 0:
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, archiveSchemaVersion)
			return meta.Put([]byte(versionKey), buf)
		case version > archiveSchemaVersion:
			return fmt.Errorf("unsupported task archive schema version %d", version)
		default:
			return nil
		}
	})
}
