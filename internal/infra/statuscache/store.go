// Package statuscache persists last-known toolset statuses keyed by a content hash.
package statuscache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"holmes/internal/domain"
)

// Entry is the cached outcome for one toolset.
type Entry struct {
	Status  domain.ToolsetStatus
	Error   string
	Enabled bool
	Type    domain.ToolsetType
	Path    string
}

// Snapshot is the decoded cache file. The zero value means "no usable cache".
type Snapshot struct {
	ContentHash string
	Timestamp   time.Time
	Toolsets    map[string]Entry
}

// Empty reports whether the snapshot carries no usable data.
func (s Snapshot) Empty() bool {
	return s.ContentHash == ""
}

// Stale applies the invalidation rule at instant now.
// Any unknown status invalidates the whole snapshot.
func (s Snapshot) Stale(contentHash string, maxAge time.Duration, now time.Time) bool {
	if s.Empty() || s.ContentHash != contentHash {
		return true
	}
	if now.Sub(s.Timestamp) > maxAge {
		return true
	}
	for _, entry := range s.Toolsets {
		if entry.Status == domain.ToolsetStatusUnknown {
			return true
		}
	}
	return false
}

type fileEntry struct {
	Status  domain.ToolsetStatus `json:"status"`
	Error   *string              `json:"error"`
	Enabled bool                 `json:"enabled"`
	Type    *string              `json:"type"`
	Path    *string              `json:"path"`
}

type fileSnapshot struct {
	ContentHash string               `json:"_content_hash"`
	Timestamp   float64              `json:"_timestamp"`
	Toolsets    map[string]fileEntry `json:"toolsets"`
}

// Options configures a Store.
type Options struct {
	Path   string
	Logger *zap.Logger
	Now    func() time.Time
}

// Store reads and writes the status cache file. Last writer wins.
type Store struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		path:   opts.Path,
		logger: logger.Named("status_cache"),
		now:    now,
	}
}

// Path returns the cache file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the stored snapshot, or an empty one when the file is missing,
// unparseable or in a legacy shape. It never fails.
func (s *Store) Read() Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("status cache unreadable", zap.String("path", s.path), zap.Error(err))
		}
		return Snapshot{}
	}
	snapshot, err := decodeSnapshot(data)
	if err != nil {
		s.logger.Warn("status cache discarded",
			zap.String("path", s.path),
			zap.Error(domain.E(domain.CodeCacheCorruption, "read status cache", "", err)),
		)
		return Snapshot{}
	}
	return snapshot
}

var errLegacyShape = errors.New("legacy cache shape without content hash")

func decodeSnapshot(data []byte) (Snapshot, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return Snapshot{}, err
	}
	object, ok := probe.(map[string]any)
	if !ok {
		return Snapshot{}, errLegacyShape
	}
	if hash, ok := object["_content_hash"].(string); !ok || hash == "" {
		return Snapshot{}, errLegacyShape
	}

	var raw fileSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, err
	}
	seconds, fraction := math.Modf(raw.Timestamp)
	snapshot := Snapshot{
		ContentHash: raw.ContentHash,
		Timestamp:   time.Unix(int64(seconds), int64(fraction*float64(time.Second))),
		Toolsets:    make(map[string]Entry, len(raw.Toolsets)),
	}
	for name, entry := range raw.Toolsets {
		snapshot.Toolsets[name] = Entry{
			Status:  entry.Status,
			Error:   deref(entry.Error),
			Enabled: entry.Enabled,
			Type:    domain.ToolsetType(deref(entry.Type)),
			Path:    deref(entry.Path),
		}
	}
	return snapshot, nil
}

// Write persists the statuses of toolsets under contentHash, creating parent
// directories as needed. The file is replaced atomically.
func (s *Store) Write(toolsets []*domain.Toolset, contentHash string) error {
	raw := fileSnapshot{
		ContentHash: contentHash,
		Timestamp:   float64(s.now().UnixNano()) / float64(time.Second),
		Toolsets:    make(map[string]fileEntry, len(toolsets)),
	}
	for _, toolset := range toolsets {
		if toolset == nil {
			continue
		}
		raw.Toolsets[toolset.Name] = fileEntry{
			Status:  toolset.Status,
			Error:   optional(toolset.Error),
			Enabled: toolset.Enabled,
			Type:    optional(string(toolset.Type)),
			Path:    optional(toolset.Path),
		}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create status cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create status cache temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write status cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close status cache: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace status cache: %w", err)
	}
	s.logger.Debug("status cache written", zap.String("path", s.path), zap.Int("toolsets", len(raw.Toolsets)))
	return nil
}

// IsStale reports whether the persisted snapshot cannot be trusted for contentHash.
func (s *Store) IsStale(contentHash string, maxAge time.Duration) bool {
	return s.Read().Stale(contentHash, maxAge, s.now())
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
