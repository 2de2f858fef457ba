package sessions

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holmes/internal/domain"
)

func TestHypothesisStore_UpdateReplacesOnlyNamed(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewHypothesisStore(func() time.Time { return clock })

	_, err := store.Update([]domain.Hypothesis{
		{ID: "h1", Statement: "node pressure evicts pods", Status: domain.HypothesisConfirmed},
		{ID: "h2", Statement: "bad deploy", Status: domain.HypothesisPending, Evidence: []string{"rollout at 10:02"}},
	})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	all, err := store.Update([]domain.Hypothesis{
		{ID: "h1", Status: domain.HypothesisRefuted, Evidence: []string{"memory steady"}},
	})
	require.NoError(t, err)

	want := []domain.Hypothesis{
		{
			ID:        "h1",
			Statement: "node pressure evicts pods",
			Status:    domain.HypothesisRefuted,
			Evidence:  []string{"memory steady"},
			UpdatedAt: clock,
		},
		{
			ID:        "h2",
			Statement: "bad deploy",
			Status:    domain.HypothesisPending,
			Evidence:  []string{"rollout at 10:02"},
			UpdatedAt: clock.Add(-time.Minute),
		},
	}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Fatalf("hypotheses mismatch (-want +got):\n%s", diff)
	}

	h2, ok := store.Get("h2")
	require.True(t, ok)
	assert.Equal(t, domain.HypothesisPending, h2.Status)
	_, ok = store.Get("h3")
	assert.False(t, ok)
}

func TestHypothesisStore_RejectedBatchChangesNothing(t *testing.T) {
	store := NewHypothesisStore(nil)
	_, err := store.Update([]domain.Hypothesis{{ID: "h1", Statement: "dns flaps"}})
	require.NoError(t, err)

	_, err = store.Update([]domain.Hypothesis{
		{ID: "h1", Status: domain.HypothesisConfirmed},
		{ID: "h2"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = store.Update([]domain.Hypothesis{{ID: "h1", Status: "maybe"}})
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	all := store.All()
	require.Len(t, all, 1)
	assert.Equal(t, domain.HypothesisPending, all[0].Status)
}

func TestHypothesisStore_GeneratesIDs(t *testing.T) {
	store := NewHypothesisStore(nil)
	all, err := store.Update([]domain.Hypothesis{{Statement: "certificate expired"}})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, domain.HypothesisPending, all[0].Status)
}

func TestHypothesisStore_ReturnsCopies(t *testing.T) {
	store := NewHypothesisStore(nil)
	evidence := []string{"a"}
	_, err := store.Update([]domain.Hypothesis{{ID: "h1", Statement: "s", Evidence: evidence}})
	require.NoError(t, err)
	evidence[0] = "mutated"

	got, _ := store.Get("h1")
	got.Evidence[0] = "changed"
	again, _ := store.Get("h1")
	assert.Equal(t, []string{"a"}, again.Evidence)
}

func TestTaskStore_SetAndGet(t *testing.T) {
	store := NewTaskStore(TaskStoreOptions{})

	stored, err := store.Set("s1", []domain.Task{
		{ID: "1", Content: "check pods", Status: domain.TaskStatusCompleted},
		{Content: " read logs "},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "read logs", stored[1].Content)
	assert.Equal(t, domain.TaskStatusPending, stored[1].Status)
	assert.NotEmpty(t, stored[1].ID)

	got := store.Get("s1")
	assert.Equal(t, stored, got)
	got[0].Content = "mutated"
	assert.Equal(t, "check pods", store.Get("s1")[0].Content)

	_, err = store.Set("s1", []domain.Task{{ID: "9", Content: "only task"}})
	require.NoError(t, err)
	require.Len(t, store.Get("s1"), 1)

	assert.Nil(t, store.Get("unknown"))
	assert.Equal(t, []string{"s1"}, store.Sessions())
}

func TestTaskStore_Validation(t *testing.T) {
	store := NewTaskStore(TaskStoreOptions{})

	tests := []struct {
		name    string
		session string
		tasks   []domain.Task
		wantErr error
	}{
		{name: "missing session", session: " ", wantErr: ErrSessionRequired},
		{name: "empty content", session: "s", tasks: []domain.Task{{Content: ""}}, wantErr: domain.ErrInvalidParams},
		{name: "unknown status", session: "s", tasks: []domain.Task{{Content: "x", Status: "later"}}, wantErr: domain.ErrInvalidParams},
		{name: "duplicate id", session: "s", tasks: []domain.Task{{ID: "1", Content: "a"}, {ID: "1", Content: "b"}}, wantErr: domain.ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Set(tt.session, tt.tasks)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, store.Sessions())
}

func TestTaskStore_ConcurrentSessions(t *testing.T) {
	store := NewTaskStore(TaskStoreOptions{})
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := string(rune('a' + i))
			_, err := store.Set(session, []domain.Task{{Content: "task " + session}})
			assert.NoError(t, err)
			assert.Len(t, store.Get(session), 1)
		}()
	}
	wg.Wait()
	assert.Len(t, store.Sessions(), 20)
}

func TestArchive_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "tasks.db")
	archive, err := OpenArchive(path)
	require.NoError(t, err)

	store := NewTaskStore(TaskStoreOptions{Archive: archive})
	stored, err := store.Set("s1", []domain.Task{{ID: "1", Content: "check pods", Status: domain.TaskStatusInProgress}})
	require.NoError(t, err)
	require.NoError(t, archive.Close())

	reopened, err := OpenArchive(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	ids, err := reopened.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	restarted := NewTaskStore(TaskStoreOptions{Archive: reopened})
	assert.Equal(t, stored, restarted.Get("s1"))
	assert.Nil(t, restarted.Get("s2"))
}

func TestArchive_Closed(t *testing.T) {
	archive, err := OpenArchive(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	require.NoError(t, archive.Close())
	require.NoError(t, archive.Close())

	err = archive.SaveTasks("s1", nil)
	require.ErrorIs(t, err, ErrArchiveClosed)
	_, _, err = archive.LoadTasks("s1")
	require.ErrorIs(t, err, ErrArchiveClosed)

	_, err = OpenArchive("  ")
	require.Error(t, err)
}

type brokenArchive struct{}

func (brokenArchive) SaveTasks(string, []domain.Task) error {
	return errors.New("read-only filesystem")
}

func (brokenArchive) LoadTasks(string) ([]domain.Task, bool, error) {
	return nil, false, errors.New("read-only filesystem")
}

func TestTaskStore_ArchiveFailureKeepsMemory(t *testing.T) {
	store := NewTaskStore(TaskStoreOptions{Archive: brokenArchive{}})
	_, err := store.Set("s1", []domain.Task{{ID: "1", Content: "x"}})
	require.NoError(t, err)
	require.Len(t, store.Get("s1"), 1)
	require.Nil(t, store.Get("s2"))
}

type gatedArchive struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	passed bool
	saves  [][]domain.Task
}

func (g *gatedArchive) SaveTasks(_ string, tasks []domain.Task) error {
	g.mu.Lock()
	first := !g.passed
	g.passed = true
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saves = append(g.saves, tasks)
	return nil
}

func (g *gatedArchive) LoadTasks(string) ([]domain.Task, bool, error) {
	return nil, false, nil
}

func (g *gatedArchive) last() []domain.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.saves) == 0 {
		return nil
	}
	return g.saves[len(g.saves)-1]
}

func TestTaskStore_ArchiveFollowsMemoryOrder(t *testing.T) {
	archive := &gatedArchive{entered: make(chan struct{}), release: make(chan struct{})}
	store := NewTaskStore(TaskStoreOptions{Archive: archive})
	first := []domain.Task{{ID: "1", Content: "check pods"}}
	second := []domain.Task{{ID: "1", Content: "check pods"}, {ID: "2", Content: "read logs"}}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := store.Set("s1", first)
		assert.NoError(t, err)
	}()
	<-archive.entered

	go func() {
		defer wg.Done()
		_, err := store.Set("s1", second)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return len(store.Get("s1")) == 2 }, time.Second, 5*time.Millisecond)

	close(archive.release)
	wg.Wait()

	assert.Len(t, store.Get("s1"), 2)
	assert.Len(t, archive.last(), 2)
}

func TestFormatTasks(t *testing.T) {
	assert.Equal(t, "No tasks in the investigation plan.", FormatTasks(nil))

	got := FormatTasks([]domain.Task{
		{ID: "1", Content: "check pods", Status: domain.TaskStatusCompleted},
		{ID: "2", Content: "read logs", Status: domain.TaskStatusInProgress},
		{ID: "3", Content: "compare deploys", Status: domain.TaskStatusPending},
	})
	want := "Investigation tasks: 1 completed, 1 in progress, 1 pending, 0 cancelled\n\n" +
		"[✓] [1] check pods\n" +
		"[~] [2] read logs\n" +
		"[ ] [3] compare deploys"
	assert.Equal(t, want, got)
}

func TestFormatHypotheses(t *testing.T) {
	assert.Equal(t, "No hypotheses recorded.", FormatHypotheses(nil))
	got := FormatHypotheses([]domain.Hypothesis{
		{ID: "h1", Statement: "oom", Status: domain.HypothesisConfirmed, Evidence: []string{"exit 137"}},
	})
	assert.Equal(t, "- h1 (confirmed): oom\n  * exit 137", got)
}
