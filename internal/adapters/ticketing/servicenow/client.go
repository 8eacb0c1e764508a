// Package servicenow implements the ticketing port on the ServiceNow Table
// API: sys_user and sys_user_group lookups and incident create/get.
package servicenow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/adapters/resilience"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

const updatedLayout = "2006-01-02 15:04:05"

// incident state codes
var stateLabels = map[string]string{
	"1": "New",
	"2": "In Progress",
	"3": "On Hold",
	"6": "Resolved",
	"7": "Closed",
	"8": "Canceled",
}

var closedStates = map[string]struct{}{"6": {}, "7": {}, "8": {}}

// Client talks to one ServiceNow instance with basic auth.
type Client struct {
	tableURL          string
	username          string
	password          string
	http              *http.Client
	groupNames        map[string]string
	backendCategories map[string]string
	cb                *gobreaker.CircuitBreaker
	logger            *zap.Logger
}

// New builds a client. httpClient may be nil.
func New(cfg config.ServiceNowConfig, settings *config.Settings, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimSpace(cfg.InstanceURL)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Client{
		tableURL:          strings.TrimRight(base, "/") + "/api/now/table/",
		username:          cfg.Username,
		password:          cfg.Password,
		http:              httpClient,
		groupNames:        settings.GroupNames(),
		backendCategories: settings.BackendCategories(),
		cb:                resilience.NewBreaker("servicenow", logger),
		logger:            logger.With(zap.String("component", "servicenow")),
	}
}

type userRecord struct {
	SysID string `json:"sys_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type groupRecord struct {
	SysID string `json:"sys_id"`
	Name  string `json:"name"`
}

type incidentRecord struct {
	SysID           string `json:"sys_id"`
	Number          string `json:"number"`
	State           string `json:"state"`
	CloseNotes      string `json:"close_notes"`
	ResolutionNotes string `json:"resolution_notes"`
	UpdatedOn       string `json:"sys_updated_on"`
}

type incidentRequest struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	CallerID         string `json:"caller_id,omitempty"`
	AssignmentGroup  string `json:"assignment_group,omitempty"`
	Urgency          string `json:"urgency"`
	Impact           string `json:"impact"`
	Category         string `json:"category,omitempty"`
	Subcategory      string `json:"subcategory,omitempty"`
	ContactType      string `json:"contact_type"`
}

// queryOperators are read by ServiceNow as encoded-query syntax and have no
// escape, so values containing them are never sent.
const queryOperators = "^=\r\n"

func encodedQueryValue(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || strings.ContainsAny(v, queryOperators) {
		return "", false
	}
	return v, true
}

// LookupUser finds a sys_user by email. Addresses containing encoded-query
// operators are treated as a miss.
func (c *Client) LookupUser(ctx context.Context, email string) (domain.UserRef, error) {
	value, ok := encodedQueryValue(email)
	if !ok {
		c.logger.Warn("refusing user lookup for unsafe address", zap.String("email", email))
		return domain.UserRef{}, fmt.Errorf("user %q: %w", email, domain.ErrNotFound)
	}

	var users []userRecord
	q := url.Values{
		"sysparm_query":  {"email=" + value},
		"sysparm_limit":  {"1"},
		"sysparm_fields": {"sys_id,name,email"},
	}
	if err := c.call(ctx, "lookup user", http.MethodGet, "sys_user", q, nil, &users); err != nil {
		return domain.UserRef{}, err
	}
	if len(users) == 0 || !strings.EqualFold(users[0].Email, value) {
		return domain.UserRef{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	return domain.UserRef{ID: users[0].SysID, Name: users[0].Name, Email: users[0].Email}, nil
}

// LookupGroup resolves the category's configured group name to a
// sys_user_group.
func (c *Client) LookupGroup(ctx context.Context, category string) (domain.GroupRef, error) {
	name, ok := encodedQueryValue(c.groupNames[category])
	if !ok {
		return domain.GroupRef{}, fmt.Errorf("no usable group configured for %s: %w", category, domain.ErrNotFound)
	}

	var groups []groupRecord
	q := url.Values{
		"sysparm_query":  {"name=" + name},
		"sysparm_limit":  {"1"},
		"sysparm_fields": {"sys_id,name"},
	}
	if err := c.call(ctx, "lookup group", http.MethodGet, "sys_user_group", q, nil, &groups); err != nil {
		return domain.GroupRef{}, err
	}
	if len(groups) == 0 || !strings.EqualFold(groups[0].Name, name) {
		return domain.GroupRef{}, fmt.Errorf("group %s: %w", name, domain.ErrNotFound)
	}
	return domain.GroupRef{ID: groups[0].SysID, Name: groups[0].Name}, nil
}

// CreateTicket opens an incident with contact type email.
func (c *Client) CreateTicket(ctx context.Context, draft domain.TicketDraft, caller domain.UserRef, group domain.GroupRef) (domain.CreatedTicket, error) {
	category := c.backendCategories[draft.Category]
	if category == "" {
		category = draft.Category
	}
	urgency := strconv.Itoa(int(domain.ClampPriority(int(draft.Priority))))
	body := incidentRequest{
		ShortDescription: draft.Title,
		Description:      draft.Description,
		CallerID:         caller.ID,
		AssignmentGroup:  group.ID,
		Urgency:          urgency,
		Impact:           urgency,
		Category:         category,
		Subcategory:      draft.Subcategory,
		ContactType:      "email",
	}

	var created incidentRecord
	if err := c.call(ctx, "create incident", http.MethodPost, "incident", nil, body, &created); err != nil {
		return domain.CreatedTicket{}, err
	}
	c.logger.Info("incident created",
		zap.String("sys_id", created.SysID),
		zap.String("number", created.Number),
		zap.String("assignment_group", group.Label()))
	return domain.CreatedTicket{ID: created.SysID, Number: created.Number}, nil
}

// GetStatus reads the incident state. Resolved, Closed and Canceled count as
// closed.
func (c *Client) GetStatus(ctx context.Context, ticketID string) (domain.TicketState, error) {
	var inc incidentRecord
	q := url.Values{"sysparm_fields": {"sys_id,number,state,close_notes,resolution_notes,sys_updated_on"}}
	if err := c.call(ctx, "get incident", http.MethodGet, "incident/"+url.PathEscape(ticketID), q, nil, &inc); err != nil {
		return domain.TicketState{}, err
	}

	state := domain.TicketState{
		Status:          domain.TicketStatusOpen,
		Label:           stateLabels[inc.State],
		ResolutionNotes: inc.CloseNotes,
	}
	if state.Label == "" {
		state.Label = inc.State
	}
	if state.ResolutionNotes == "" {
		state.ResolutionNotes = inc.ResolutionNotes
	}
	if _, ok := closedStates[inc.State]; ok {
		state.Status = domain.TicketStatusClosed
	}
	if t, err := time.ParseInLocation(updatedLayout, inc.UpdatedOn, time.UTC); err == nil {
		state.UpdatedAt = t
	}
	return state, nil
}

type envelope struct {
	Result json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	_, err := resilience.Do(c.cb, op, func() (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, method, path, query, body, out)
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.tableURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}
