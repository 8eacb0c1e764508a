package servicenow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.ServiceNowConfig{InstanceURL: srv.URL, Username: "svc", Password: "secret"},
		config.DefaultSettings(), srv.Client(), nil)
}

func writeResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
}

func TestLookupUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/api/now/table/sys_user", r.URL.Path)

		if r.URL.Query().Get("sysparm_query") == "email=sam@example.com" {
			writeResult(w, []userRecord{{SysID: "u-1", Name: "Sam Lee", Email: "sam@example.com"}})
			return
		}
		writeResult(w, []userRecord{})
	})

	got, err := c.LookupUser(context.Background(), "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.UserRef{ID: "u-1", Name: "Sam Lee", Email: "sam@example.com"}, got)

	_, err = c.LookupUser(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrAdapter)
}

func TestLookupGroupUsesConfiguredName(t *testing.T) {
	var queries []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/now/table/sys_user_group", r.URL.Path)
		queries = append(queries, r.URL.Query().Get("sysparm_query"))
		writeResult(w, []groupRecord{{SysID: "g-1", Name: "IT Support"}})
	})

	got, err := c.LookupGroup(context.Background(), "IT")
	require.NoError(t, err)
	assert.Equal(t, "g-1", got.ID)
	assert.Equal(t, []string{"name=IT Support"}, queries)

	_, err = c.LookupGroup(context.Background(), "Astrology")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLookupRejectsEncodedQueryOperators(t *testing.T) {
	var queries []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("sysparm_query"))
		if r.URL.Path == "/api/now/table/sys_user_group" {
			writeResult(w, []groupRecord{{SysID: "g-admin", Name: "Administrators"}})
			return
		}
		writeResult(w, []userRecord{{SysID: "admin-1", Name: "Admin", Email: "admin@example.com"}})
	})
	ctx := context.Background()

	for _, sender := range []string{"x^NQactive=true@evil.example", "a=b@evil.example", "x\n^ORemail!=@evil.example"} {
		_, err := c.LookupUser(ctx, sender)
		assert.ErrorIs(t, err, domain.ErrNotFound, sender)
	}

	c.groupNames["IT"] = "IT Support^NQname=Administrators"
	_, err := c.LookupGroup(ctx, "IT")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Empty(t, queries)
}

func TestLookupIgnoresNonMatchingRecord(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/now/table/sys_user_group" {
			writeResult(w, []groupRecord{{SysID: "g-admin", Name: "Administrators"}})
			return
		}
		writeResult(w, []userRecord{{SysID: "admin-1", Name: "Admin", Email: "admin@example.com"}})
	})

	_, err := c.LookupUser(context.Background(), "sam@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.LookupGroup(context.Background(), "IT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLookupGroupServerErrorIsAdapterError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"ACL"}}`, http.StatusInternalServerError)
	})

	_, err := c.LookupGroup(context.Background(), "IT")
	assert.ErrorIs(t, err, domain.ErrAdapter)
}

func TestCreateTicket(t *testing.T) {
	var got incidentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/now/table/incident", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
		writeResult(w, incidentRecord{SysID: "inc-1", Number: "INC0010001", State: "1"})
	})

	created, err := c.CreateTicket(context.Background(), domain.TicketDraft{
		Title:       "VPN connectivity issue",
		Description: "Cannot connect",
		Priority:    domain.TicketPriorityHigh,
		Category:    "IT",
		Subcategory: "Network",
	}, domain.UserRef{ID: "u-1"}, domain.GroupRef{Name: "General Support"})
	require.NoError(t, err)

	assert.Equal(t, domain.CreatedTicket{ID: "inc-1", Number: "INC0010001"}, created)
	assert.Equal(t, "VPN connectivity issue", got.ShortDescription)
	assert.Equal(t, "u-1", got.CallerID)
	assert.Empty(t, got.AssignmentGroup)
	assert.Equal(t, "2", got.Urgency)
	assert.Equal(t, "Software", got.Category)
	assert.Equal(t, "email", got.ContactType)
}

func TestGetStatus(t *testing.T) {
	tests := []struct {
		state      string
		wantStatus domain.TicketStatus
		wantLabel  string
	}{
		{"1", domain.TicketStatusOpen, "New"},
		{"3", domain.TicketStatusOpen, "On Hold"},
		{"6", domain.TicketStatusClosed, "Resolved"},
		{"7", domain.TicketStatusClosed, "Closed"},
		{"8", domain.TicketStatusClosed, "Canceled"},
		{"42", domain.TicketStatusOpen, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.wantLabel, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/now/table/incident/inc-1", r.URL.Path)
				writeResult(w, incidentRecord{SysID: "inc-1", State: tt.state, CloseNotes: "Reset token", UpdatedOn: "2026-03-02 10:15:00"})
			})

			got, err := c.GetStatus(context.Background(), "inc-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.Equal(t, "Reset token", got.ResolutionNotes)
			assert.Equal(t, time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC), got.UpdatedAt)
		})
	}
}

func TestGetStatusNotFoundIsAdapterError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"No Record found"}}`, http.StatusNotFound)
	})

	_, err := c.GetStatus(context.Background(), "gone")
	assert.ErrorIs(t, err, domain.ErrAdapter)
}

func TestInstanceURLWithoutScheme(t *testing.T) {
	c := New(config.ServiceNowConfig{InstanceURL: "acme.service-now.com/"}, config.DefaultSettings(), nil, nil)
	assert.Equal(t, "https://acme.service-now.com/api/now/table/", c.tableURL)
}
