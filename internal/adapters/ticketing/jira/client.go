// Package jira implements the ticketing port on Jira issues. Assignment
// groups are Jira groups recorded as issue labels.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/adapters/resilience"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

var priorityNames = map[domain.TicketPriority]string{
	domain.TicketPriorityCritical: "Highest",
	domain.TicketPriorityHigh:     "High",
	domain.TicketPriorityMedium:   "Medium",
	domain.TicketPriorityLow:      "Low",
}

// Client creates and reads issues in one project.
type Client struct {
	client     *jira.Client
	projectKey string
	issueType  string
	groupNames map[string]string
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// New authenticates with an API token. httpClient, when set, is used as the
// transport underneath basic auth.
func New(cfg config.JiraConfig, settings *config.Settings, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := jira.BasicAuthTransport{
		Username: cfg.Username,
		Password: cfg.Token,
	}
	if httpClient != nil {
		tp.Transport = httpClient.Transport
	}
	base := tp.Client()
	base.Timeout = 30 * time.Second

	client, err := jira.NewClient(base, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	issueType := cfg.IssueType
	if issueType == "" {
		issueType = "Task"
	}
	return &Client{
		client:     client,
		projectKey: cfg.ProjectKey,
		issueType:  issueType,
		groupNames: settings.GroupNames(),
		cb:         resilience.NewBreaker("jira", logger),
		logger:     logger.With(zap.String("component", "jira")),
	}, nil
}

// LookupUser searches users by email address.
func (c *Client) LookupUser(ctx context.Context, email string) (domain.UserRef, error) {
	users, err := resilience.Do(c.cb, "find user", func() ([]jira.User, error) {
		users, resp, err := c.client.User.FindWithContext(ctx, email)
		return users, classify(resp, err)
	})
	if err != nil {
		return domain.UserRef{}, err
	}
	for _, u := range users {
		// user search is fuzzy; only an exact address match is the caller
		if strings.EqualFold(u.EmailAddress, email) {
			return domain.UserRef{ID: accountID(u), Name: u.DisplayName, Email: u.EmailAddress}, nil
		}
	}
	return domain.UserRef{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}

// LookupGroup confirms the category's group exists.
func (c *Client) LookupGroup(ctx context.Context, category string) (domain.GroupRef, error) {
	name, ok := c.groupNames[category]
	if !ok || name == "" {
		return domain.GroupRef{}, fmt.Errorf("no group configured for %s: %w", category, domain.ErrNotFound)
	}
	_, err := resilience.Do(c.cb, "get group", func() ([]jira.GroupMember, error) {
		members, resp, err := c.client.Group.GetWithContext(ctx, name)
		return members, classify(resp, err)
	})
	if err != nil {
		return domain.GroupRef{}, err
	}
	return domain.GroupRef{ID: name, Name: name}, nil
}

// CreateTicket files an issue; the key doubles as ticket id and number.
func (c *Client) CreateTicket(ctx context.Context, draft domain.TicketDraft, caller domain.UserRef, group domain.GroupRef) (domain.CreatedTicket, error) {
	fields := &jira.IssueFields{
		Project:     jira.Project{Key: c.projectKey},
		Summary:     draft.Title,
		Description: draft.Description,
		Type:        jira.IssueType{Name: c.issueType},
		Labels:      labels(draft, group),
		Priority:    &jira.Priority{Name: priorityNames[domain.ClampPriority(int(draft.Priority))]},
	}
	if caller.ID != "" {
		fields.Reporter = &jira.User{AccountID: caller.ID}
	}

	issue, err := resilience.Do(c.cb, "create issue", func() (*jira.Issue, error) {
		issue, resp, err := c.client.Issue.CreateWithContext(ctx, &jira.Issue{Fields: fields})
		return issue, classify(resp, err)
	})
	if err != nil {
		return domain.CreatedTicket{}, err
	}
	if issue == nil || issue.Key == "" {
		return domain.CreatedTicket{}, fmt.Errorf("create issue: no key returned: %w", domain.ErrAdapter)
	}
	c.logger.Info("issue created", zap.String("key", issue.Key), zap.String("group", group.Label()))
	return domain.CreatedTicket{ID: issue.Key, Number: issue.Key}, nil
}

// GetStatus maps the done status category to closed.
func (c *Client) GetStatus(ctx context.Context, ticketID string) (domain.TicketState, error) {
	issue, err := resilience.Do(c.cb, "get issue", func() (*jira.Issue, error) {
		issue, resp, err := c.client.Issue.GetWithContext(ctx, ticketID, nil)
		if err != nil {
			return nil, classify(resp, err)
		}
		return issue, nil
	})
	if err != nil {
		return domain.TicketState{}, err
	}
	if issue.Fields == nil || issue.Fields.Status == nil {
		return domain.TicketState{Status: domain.TicketStatusUnknown}, nil
	}

	state := domain.TicketState{
		Status:    domain.TicketStatusOpen,
		Label:     issue.Fields.Status.Name,
		UpdatedAt: time.Time(issue.Fields.Updated),
	}
	if issue.Fields.Status.StatusCategory.Key == "done" {
		state.Status = domain.TicketStatusClosed
	}
	if r := issue.Fields.Resolution; r != nil {
		state.ResolutionNotes = r.Description
		if state.ResolutionNotes == "" {
			state.ResolutionNotes = r.Name
		}
	}
	return state, nil
}

// classify turns a 404 into a lookup miss that leaves the breaker alone.
func classify(resp *jira.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return resilience.Healthy(fmt.Errorf("%v: %w", err, domain.ErrNotFound))
	}
	return err
}

func accountID(u jira.User) string {
	if u.AccountID != "" {
		return u.AccountID
	}
	return u.Name
}

func labels(draft domain.TicketDraft, group domain.GroupRef) []string {
	out := []string{"helpdesk-intake"}
	if draft.Category != "" {
		out = append(out, "category-"+slug(draft.Category))
	}
	if g := group.Label(); g != "" {
		out = append(out, "group-"+slug(g))
	}
	return out
}

func slug(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "-"))
}
