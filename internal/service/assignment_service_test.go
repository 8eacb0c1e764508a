package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
)

func newAssignment(tk Ticketing, metrics *observability.Metrics) *AssignmentService {
	return NewAssignmentService(AssignmentDependencies{
		Ticketing: tk,
		Fallback: domain.FallbackConfig{
			DefaultCategory: "General",
			CategoryGroups: map[string]domain.GroupRef{
				"HR": {ID: "g-hr", Name: "Human Resources"},
				"IT": {Name: "IT Support"},
			},
			DefaultCaller: domain.UserRef{Name: "Unknown Caller"},
			DefaultGroup:  domain.GroupRef{ID: "g-default", Name: "General Support"},
		},
		Metrics: metrics,
	})
}

func TestResolveUsesLookups(t *testing.T) {
	tk := newFakeTicketing()
	tk.users["a@example.com"] = domain.UserRef{ID: "u-a", Name: "Ann"}
	tk.groups["IT"] = domain.GroupRef{ID: "g-it", Name: "IT Support"}

	got := newAssignment(tk, nil).Resolve(context.Background(), "a@example.com", "IT")

	assert.Equal(t, "u-a", got.Caller.ID)
	assert.Equal(t, "g-it", got.Group.ID)
	assert.False(t, got.CallerFallback)
	assert.False(t, got.GroupFallback)
}

func TestResolveFallsBackPerField(t *testing.T) {
	tests := []struct {
		name           string
		setup          func(*fakeTicketing)
		category       string
		wantCallerID   string
		wantGroupID    string
		callerFallback bool
		groupFallback  bool
	}{
		{
			name: "caller miss keeps group",
			setup: func(tk *fakeTicketing) {
				tk.groups["IT"] = domain.GroupRef{ID: "g-it"}
			},
			category:       "IT",
			wantGroupID:    "g-it",
			callerFallback: true,
		},
		{
			name: "group failure keeps caller",
			setup: func(tk *fakeTicketing) {
				tk.users["a@example.com"] = domain.UserRef{ID: "u-a"}
				tk.groupErr = fmt.Errorf("boom: %w", domain.ErrAdapter)
			},
			category:      "IT",
			wantCallerID:  "u-a",
			wantGroupID:   "g-default",
			groupFallback: true,
		},
		{
			name: "group miss uses pre-resolved category group",
			setup: func(tk *fakeTicketing) {
				tk.users["a@example.com"] = domain.UserRef{ID: "u-a"}
			},
			category:      "HR",
			wantCallerID:  "u-a",
			wantGroupID:   "g-hr",
			groupFallback: true,
		},
		{
			name: "both fail",
			setup: func(tk *fakeTicketing) {
				tk.userErr = domain.ErrAdapter
				tk.groupErr = domain.ErrAdapter
			},
			category:       "Finance",
			wantGroupID:    "g-default",
			callerFallback: true,
			groupFallback:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := newFakeTicketing()
			tt.setup(tk)

			got := newAssignment(tk, nil).Resolve(context.Background(), "a@example.com", tt.category)

			assert.Equal(t, tt.wantCallerID, got.Caller.ID)
			assert.Equal(t, tt.wantGroupID, got.Group.ID)
			assert.Equal(t, tt.callerFallback, got.CallerFallback)
			assert.Equal(t, tt.groupFallback, got.GroupFallback)
			if tt.callerFallback {
				assert.Equal(t, "Unknown Caller", got.Caller.Name)
			}
		})
	}
}

func TestResolveCountsAdapterFailuresOnly(t *testing.T) {
	metrics := observability.NewMetrics()
	tk := newFakeTicketing()
	tk.groupErr = domain.ErrAdapter

	newAssignment(tk, metrics).Resolve(context.Background(), "nobody@example.com", "IT")

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.AdapterFailures["ticketing|lookup_group"])
	assert.Zero(t, snap.AdapterFailures["ticketing|lookup_caller"])
}

func TestResolveEmptySenderSkipsLookup(t *testing.T) {
	tk := newFakeTicketing()
	tk.users[""] = domain.UserRef{ID: "should-not-match"}

	got := newAssignment(tk, nil).Resolve(context.Background(), "", "General")

	assert.True(t, got.CallerFallback)
	assert.Empty(t, got.Caller.ID)
}
