// Package tracking holds the process-lifetime registry of created tickets
// awaiting closure reconciliation.
package tracking

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// Store is an in-memory map of ticket id to TicketRecord. Writes are
// serialized; reads return snapshots that share no memory with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.TicketRecord
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*domain.TicketRecord)}
}

// Insert adds rec. It fails with domain.ErrDuplicateKey, leaving the store
// untouched, when the id is already tracked.
func (s *Store) Insert(rec domain.TicketRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("insert ticket record: empty id")
	}
	if rec.Status == "" {
		rec.Status = domain.TicketStatusOpen
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("insert ticket record %s: %w", rec.ID, domain.ErrDuplicateKey)
	}
	cp := rec.Clone()
	s.records[rec.ID] = &cp
	return nil
}

// Get returns a snapshot of one record.
func (s *Store) Get(id string) (domain.TicketRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.TicketRecord{}, false
	}
	return rec.Clone(), true
}

// ListOpen returns every record whose status is not closed, oldest first.
func (s *Store) ListOpen() []domain.TicketRecord {
	return s.list(func(r *domain.TicketRecord) bool { return r.Status != domain.TicketStatusClosed })
}

// ListClosed returns records known closed whose closure notification is
// still pending, oldest first.
func (s *Store) ListClosed() []domain.TicketRecord {
	return s.list(func(r *domain.TicketRecord) bool { return r.Status == domain.TicketStatusClosed })
}

// List returns every record, oldest first.
func (s *Store) List() []domain.TicketRecord {
	return s.list(func(*domain.TicketRecord) bool { return true })
}

func (s *Store) list(keep func(*domain.TicketRecord) bool) []domain.TicketRecord {
	s.mu.RLock()
	out := make([]domain.TicketRecord, 0, len(s.records))
	for _, rec := range s.records {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// UpdateStatus sets the status and last-checked time. A missing id is a
// no-op since retention may have evicted the record concurrently.
func (s *Store) UpdateStatus(id string, status domain.TicketStatus, checkedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return
	}
	if rec.Status != status {
		rec.History = append(rec.History, domain.StatusChange{
			FromStatus: rec.Status,
			ToStatus:   status,
			FromLabel:  rec.StateLabel,
			ToLabel:    rec.StateLabel,
			ObservedAt: checkedAt,
		})
		rec.Status = status
	}
	rec.LastCheckedAt = checkedAt
}

// RecordState applies a full status observation. It returns the change and
// true when status or label moved; the bool is false for unchanged or
// missing records.
func (s *Store) RecordState(id string, state domain.TicketState, checkedAt time.Time) (domain.StatusChange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.StatusChange{}, false
	}
	rec.LastCheckedAt = checkedAt
	if state.ResolutionNotes != "" {
		rec.ResolutionNotes = state.ResolutionNotes
	}

	change := domain.StatusChange{
		FromStatus: rec.Status,
		ToStatus:   state.Status,
		FromLabel:  rec.StateLabel,
		ToLabel:    state.Label,
		ObservedAt: checkedAt,
	}
	if !change.StatusChanged() && !change.LabelChanged() {
		return change, false
	}
	rec.Status = state.Status
	rec.StateLabel = state.Label
	rec.History = append(rec.History, change)
	return change, true
}

// EvictExpired removes every record with now-CreatedAt strictly greater than
// retention, regardless of status, and returns the removed ids oldest first.
func (s *Store) EvictExpired(retention time.Duration, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	type aged struct {
		id      string
		created time.Time
	}
	var expired []aged
	for id, rec := range s.records {
		if now.Sub(rec.CreatedAt) > retention {
			expired = append(expired, aged{id: id, created: rec.CreatedAt})
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].created.Equal(expired[j].created) {
			return expired[i].id < expired[j].id
		}
		return expired[i].created.Before(expired[j].created)
	})

	ids := make([]string, 0, len(expired))
	for _, e := range expired {
		delete(s.records, e.id)
		ids = append(ids, e.id)
	}
	return ids
}

// Remove deletes a record. It reports whether the id was present; removing
// an absent id is not an error.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.records[id]
	delete(s.records, id)
	return ok
}

// Len returns the number of tracked records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// OpenCount returns the number of records whose status is not closed.
func (s *Store) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.Status != domain.TicketStatusClosed {
			n++
		}
	}
	return n
}

// Summary aggregates the tracked set.
type Summary struct {
	Total                int                         `json:"total"`
	ByStatus             map[domain.TicketStatus]int `json:"by_status"`
	ByCategory           map[string]int              `json:"by_category"`
	PendingNotifications int                         `json:"pending_notifications"`
	Oldest               *domain.TicketRecord        `json:"-"`
	Newest               *domain.TicketRecord        `json:"-"`
	OldestAge            time.Duration               `json:"-"`
}

// Summary returns counts by status and category plus the oldest and newest
// records.
func (s *Store) Summary(now time.Time) Summary {
	records := s.List()
	sum := Summary{
		Total:      len(records),
		ByStatus:   map[domain.TicketStatus]int{},
		ByCategory: map[string]int{},
	}
	for _, rec := range records {
		sum.ByStatus[rec.Status]++
		sum.ByCategory[rec.Category]++
		if rec.Status == domain.TicketStatusClosed {
			sum.PendingNotifications++
		}
	}
	if len(records) > 0 {
		oldest, newest := records[0], records[len(records)-1]
		sum.Oldest = &oldest
		sum.Newest = &newest
		sum.OldestAge = now.Sub(oldest.CreatedAt)
	}
	return sum
}
