package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/health", "GET", 200, time.Millisecond)
	m.RecordRequest("/health", "GET", 200, time.Millisecond)
	m.RecordOutcome("skipped", "auto_reply")
	m.RecordOutcome("done", "")
	m.RecordEvent("ticket_created")
	m.RecordAdapterFailure("ticketing", "get_status")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/health|GET|200"])
	assert.Equal(t, int64(1), snap.Outcomes["skipped|auto_reply"])
	assert.Equal(t, int64(1), snap.Outcomes["done"])
	assert.Equal(t, int64(1), snap.Events["ticket_created"])
	assert.Equal(t, int64(1), snap.AdapterFailures["ticketing|get_status"])

	snap.Events["ticket_created"] = 99
	assert.Equal(t, int64(1), m.Snapshot().Events["ticket_created"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, 0)
		m.RecordError("/", "GET", "X")
		m.RecordOutcome("done", "")
		m.RecordEvent("x")
		m.RecordAdapterFailure("a", "b")
		_ = m.Snapshot()
	})
}
