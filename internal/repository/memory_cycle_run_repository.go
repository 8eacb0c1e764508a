package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// memoryCycleRunRepository keeps the most recent runs when no database is
// configured.
type memoryCycleRunRepository struct {
	mu       sync.RWMutex
	capacity int
	runs     []domain.CycleRun
}

// NewMemoryCycleRunRepository keeps at most capacity runs, dropping the
// oldest first.
func NewMemoryCycleRunRepository(capacity int) CycleRunRepository {
	if capacity <= 0 {
		capacity = 200
	}
	return &memoryCycleRunRepository{capacity: capacity}
}

func (r *memoryCycleRunRepository) Create(_ context.Context, run *domain.CycleRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = append(r.runs, *run)
	if over := len(r.runs) - r.capacity; over > 0 {
		r.runs = append([]domain.CycleRun(nil), r.runs[over:]...)
	}
	return nil
}

func (r *memoryCycleRunRepository) GetByID(_ context.Context, id string) (*domain.CycleRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.runs {
		if r.runs[i].ID == id {
			run := r.runs[i]
			return &run, nil
		}
	}
	return nil, fmt.Errorf("cycle run %s: %w", id, domain.ErrNotFound)
}

// List returns newest first.
func (r *memoryCycleRunRepository) List(_ context.Context, filter CycleRunFilter) ([]domain.CycleRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.CycleRun
	for i := len(r.runs) - 1; i >= 0; i-- {
		if filter.Trigger != nil && r.runs[i].Trigger != *filter.Trigger {
			continue
		}
		matched = append(matched, r.runs[i])
	}
	if filter.Offset >= len(matched) {
		return []domain.CycleRun{}, nil
	}
	matched = matched[filter.Offset:]
	if limit := filter.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
