package sessions

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"holmes/internal/domain"
)

// HypothesisStore tracks investigation hypotheses for the whole process.
// Updates replace only the hypotheses they name; nothing is ever removed.
type HypothesisStore struct {
	now func() time.Time

	mu    sync.Mutex
	byID  map[string]domain.Hypothesis
	order []string
}

func NewHypothesisStore(now func() time.Time) *HypothesisStore {
	if now == nil {
		now = time.Now
	}
	return &HypothesisStore{
		now:  now,
		byID: make(map[string]domain.Hypothesis),
	}
}

// Update applies a batch and returns every hypothesis in first-seen order.
// An empty statement or nil evidence keeps the stored value.
func (s *HypothesisStore) Update(batch []domain.Hypothesis) ([]domain.Hypothesis, error) {
	prepared := make([]domain.Hypothesis, 0, len(batch))
	for i, hypothesis := range batch {
		hypothesis.ID = strings.TrimSpace(hypothesis.ID)
		if hypothesis.ID == "" {
			hypothesis.ID = uuid.NewString()
		}
		if hypothesis.Status != "" && !domain.ValidHypothesisStatus(hypothesis.Status) {
			return nil, fmt.Errorf("%w: hypothesis %d has unknown status %q", domain.ErrInvalidParams, i, hypothesis.Status)
		}
		hypothesis.Evidence = append([]string(nil), hypothesis.Evidence...)
		prepared = append(prepared, hypothesis)
	}

	now := s.now()
	s.mu.Lock()
	stated := make(map[string]bool, len(prepared))
	for _, update := range prepared {
		if _, exists := s.byID[update.ID]; exists || stated[update.ID] {
			continue
		}
		if strings.TrimSpace(update.Statement) == "" {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: new hypothesis %q has no statement", domain.ErrInvalidParams, update.ID)
		}
		stated[update.ID] = true
	}
	for _, update := range prepared {
		current, exists := s.byID[update.ID]
		if !exists {
			s.order = append(s.order, update.ID)
			current = domain.Hypothesis{ID: update.ID, Status: domain.HypothesisPending}
		}
		if update.Statement != "" {
			current.Statement = update.Statement
		}
		if update.Status != "" {
			current.Status = update.Status
		}
		if update.Evidence != nil {
			current.Evidence = update.Evidence
		}
		current.UpdatedAt = now
		s.byID[update.ID] = current
	}
	s.mu.Unlock()
	return s.All(), nil
}

// All returns every hypothesis in first-seen order.
func (s *HypothesisStore) All() []domain.Hypothesis {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Hypothesis, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneHypothesis(s.byID[id]))
	}
	return out
}

func (s *HypothesisStore) Get(id string) (domain.Hypothesis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hypothesis, ok := s.byID[id]
	if !ok {
		return domain.Hypothesis{}, false
	}
	return cloneHypothesis(hypothesis), true
}

func cloneHypothesis(h domain.Hypothesis) domain.Hypothesis {
	h.Evidence = append([]string(nil), h.Evidence...)
	return h
}
