package tracking

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id string, created time.Time) domain.TicketRecord {
	return domain.TicketRecord{
		ID:             id,
		RequesterEmail: id + "@example.com",
		Category:       "IT",
		CreatedAt:      created,
		Status:         domain.TicketStatusOpen,
	}
}

func TestInsertDuplicateLeavesStoreUnchanged(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(record("INC1", t0)))
	before := s.List()

	dup := record("INC1", t0.Add(time.Hour))
	dup.Category = "HR"
	err := s.Insert(dup)

	require.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.Equal(t, before, s.List())
}

func TestInsertDefaultsStatusToOpen(t *testing.T) {
	s := NewStore()
	rec := record("INC1", t0)
	rec.Status = ""
	require.NoError(t, s.Insert(rec))

	got, ok := s.Get("INC1")
	require.True(t, ok)
	assert.Equal(t, domain.TicketStatusOpen, got.Status)
}

func TestInsertRejectsEmptyID(t *testing.T) {
	assert.Error(t, NewStore().Insert(record("", t0)))
}

func TestListOpenOldestFirstExcludesClosed(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(record("c", t0.Add(2*time.Hour))))
	require.NoError(t, s.Insert(record("a", t0)))
	require.NoError(t, s.Insert(record("b", t0.Add(time.Hour))))
	unknown := record("u", t0.Add(3*time.Hour))
	unknown.Status = domain.TicketStatusUnknown
	require.NoError(t, s.Insert(unknown))

	s.UpdateStatus("b", domain.TicketStatusClosed, t0)

	ids := func(recs []domain.TicketRecord) []string {
		out := make([]string, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "c", "u"}, ids(s.ListOpen()))
	assert.Equal(t, []string{"b"}, ids(s.ListClosed()))
	assert.Equal(t, 3, s.OpenCount())
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(record("INC1", t0)))
	s.UpdateStatus("INC1", domain.TicketStatusUnknown, t0)

	snap := s.ListOpen()
	snap[0].Status = domain.TicketStatusClosed
	snap[0].History[0].ToStatus = domain.TicketStatusClosed

	got, _ := s.Get("INC1")
	assert.Equal(t, domain.TicketStatusUnknown, got.Status)
	assert.Equal(t, domain.TicketStatusUnknown, got.History[0].ToStatus)
}

func TestUpdateStatusMissingIsNoop(t *testing.T) {
	s := NewStore()
	assert.NotPanics(t, func() {
		s.UpdateStatus("missing", domain.TicketStatusClosed, t0)
	})
	assert.Equal(t, 0, s.Len())
}

func TestUpdateStatusRecordsHistoryAndCheckTime(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(record("INC1", t0)))

	s.UpdateStatus("INC1", domain.TicketStatusOpen, t0.Add(time.Minute))
	s.UpdateStatus("INC1", domain.TicketStatusUnknown, t0.Add(2*time.Minute))

	got, _ := s.Get("INC1")
	assert.Equal(t, t0.Add(2*time.Minute), got.LastCheckedAt)
	require.Len(t, got.History, 1)
	assert.Equal(t, domain.TicketStatusOpen, got.History[0].FromStatus)
	assert.Equal(t, domain.TicketStatusUnknown, got.History[0].ToStatus)
}

func TestRecordState(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(record("INC1", t0)))

	change, changed := s.RecordState("INC1", domain.TicketState{Status: domain.TicketStatusOpen, Label: "In Progress"}, t0)
	assert.True(t, changed)
	assert.True(t, change.LabelChanged())
	assert.False(t, change.StatusChanged())

	_, changed = s.RecordState("INC1", domain.TicketState{Status: domain.TicketStatusOpen, Label: "In Progress"}, t0)
	assert.False(t, changed)

	change, changed = s.RecordState("INC1", domain.TicketState{
		Status:          domain.TicketStatusClosed,
		Label:           "Resolved",
		ResolutionNotes: "Reset VPN profile",
	}, t0.Add(time.Hour))
	assert.True(t, changed)
	assert.True(t, change.StatusChanged())

	got, _ := s.Get("INC1")
	assert.Equal(t, "Reset VPN profile", got.ResolutionNotes)
	assert.Len(t, got.History, 2)

	_, changed = s.RecordState("missing", domain.TicketState{Status: domain.TicketStatusClosed}, t0)
	assert.False(t, changed)
}

func TestEvictExpiredStrictBoundary(t *testing.T) {
	s := NewStore()
	now := t0.Add(48 * time.Hour)
	retention := 24 * time.Hour

	require.NoError(t, s.Insert(record("old-open", now.Add(-25*time.Hour))))
	closed := record("old-closed", now.Add(-30*time.Hour))
	closed.Status = domain.TicketStatusClosed
	require.NoError(t, s.Insert(closed))
	require.NoError(t, s.Insert(record("boundary", now.Add(-24*time.Hour))))
	require.NoError(t, s.Insert(record("fresh", now.Add(-time.Hour))))

	evicted := s.EvictExpired(retention, now)

	assert.Equal(t, []string{"old-closed", "old-open"}, evicted)
	_, ok := s.Get("boundary")
	assert.True(t, ok, "record exactly at the retention boundary is retained")
	_, ok = s.Get("fresh")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestEvictExpiredEmpty(t *testing.T) {
	assert.Empty(t, NewStore().EvictExpired(time.Hour, t0))
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(record("INC1", t0)))

	assert.True(t, s.Remove("INC1"))
	assert.False(t, s.Remove("INC1"))
	assert.Equal(t, 0, s.Len())
}

func TestSummary(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(record("a", t0)))
	b := record("b", t0.Add(time.Hour))
	b.Category = "HR"
	require.NoError(t, s.Insert(b))
	s.UpdateStatus("a", domain.TicketStatusClosed, t0)

	sum := s.Summary(t0.Add(3 * time.Hour))

	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.ByStatus[domain.TicketStatusClosed])
	assert.Equal(t, 1, sum.ByStatus[domain.TicketStatusOpen])
	assert.Equal(t, 1, sum.PendingNotifications)
	assert.Equal(t, map[string]int{"IT": 1, "HR": 1}, sum.ByCategory)
	require.NotNil(t, sum.Oldest)
	assert.Equal(t, "a", sum.Oldest.ID)
	assert.Equal(t, "b", sum.Newest.ID)
	assert.Equal(t, 3*time.Hour, sum.OldestAge)
}

func TestConcurrentWriters(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("INC%03d", i)
			_ = s.Insert(record(id, t0.Add(time.Duration(i)*time.Minute)))
			s.UpdateStatus(id, domain.TicketStatusUnknown, t0)
			_ = s.ListOpen()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
	assert.Equal(t, 50, s.OpenCount())
}
