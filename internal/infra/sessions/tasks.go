// Package sessions holds investigation state shared by tool calls: task lists
// per session and process-wide hypotheses.
package sessions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"holmes/internal/domain"
)

var ErrSessionRequired = errors.New("session id is required")

// TaskArchive persists task lists beyond the process lifetime.
type TaskArchive interface {
	SaveTasks(session string, tasks []domain.Task) error
	LoadTasks(session string) ([]domain.Task, bool, error)
}

type TaskStoreOptions struct {
	Logger  *zap.Logger
	Archive TaskArchive
}

// TaskStore maps session ids to ordered task lists. The lock covers map
// access only; archive I/O and formatting happen outside it. Archive writes
// are serialized and a write superseded by a newer Set is dropped, so the
// archive never ends behind memory.
type TaskStore struct {
	logger  *zap.Logger
	archive TaskArchive

	mu       sync.Mutex
	tasks    map[string][]domain.Task
	versions map[string]uint64

	archiveMu sync.Mutex
}

func NewTaskStore(opts TaskStoreOptions) *TaskStore {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskStore{
		logger:  logger.Named("tasks"),
		archive:  opts.Archive,
		tasks:    make(map[string][]domain.Task),
		versions: make(map[string]uint64),
	}
}

// Set replaces the task list of a session and returns the stored copy.
func (s *TaskStore) Set(session string, tasks []domain.Task) ([]domain.Task, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return nil, ErrSessionRequired
	}
	normalized, err := normalizeTasks(tasks)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tasks[session] = normalized
	s.versions[session]++
	version := s.versions[session]
	s.mu.Unlock()

	if s.archive != nil {
		s.archiveTasks(session, version, normalized)
	}
	return cloneTasks(normalized), nil
}

func (s *TaskStore) archiveTasks(session string, version uint64, tasks []domain.Task) {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	s.mu.Lock()
	current := s.versions[session]
	s.mu.Unlock()
	if current != version {
		return
	}
	if err := s.archive.SaveTasks(session, tasks); err != nil {
		s.logger.Warn("archive tasks failed", zap.String("session", session), zap.Error(err))
	}
}

// Get returns a copy of the session's tasks, falling back to the archive for
// sessions not held in memory.
func (s *TaskStore) Get(session string) []domain.Task {
	s.mu.Lock()
	tasks, ok := s.tasks[session]
	s.mu.Unlock()
	if ok {
		return cloneTasks(tasks)
	}
	if s.archive == nil {
		return nil
	}

	archived, found, err := s.archive.LoadTasks(session)
	if err != nil {
		s.logger.Warn("load archived tasks failed", zap.String("session", session), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}
	s.mu.Lock()
	if _, raced := s.tasks[session]; !raced {
		s.tasks[session] = archived
	}
	tasks = s.tasks[session]
	s.mu.Unlock()
	return cloneTasks(tasks)
}

// Sessions lists the sessions held in memory.
func (s *TaskStore) Sessions() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func normalizeTasks(tasks []domain.Task) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(tasks))
	seen := make(map[string]struct{}, len(tasks))
	for i, task := range tasks {
		task.Content = strings.TrimSpace(task.Content)
		if task.Content == "" {
			return nil, fmt.Errorf("%w: task %d has no content", domain.ErrInvalidParams, i)
		}
		if task.Status == "" {
			task.Status = domain.TaskStatusPending
		}
		if !domain.ValidTaskStatus(task.Status) {
			return nil, fmt.Errorf("%w: task %d has unknown status %q", domain.ErrInvalidParams, i, task.Status)
		}
		task.ID = strings.TrimSpace(task.ID)
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		if _, dup := seen[task.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate task id %q", domain.ErrInvalidParams, task.ID)
		}
		seen[task.ID] = struct{}{}
		out = append(out, task)
	}
	return out, nil
}

func cloneTasks(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return nil
	}
	return append([]domain.Task(nil), tasks...)
}
