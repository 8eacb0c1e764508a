package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// Settings holds the operator-editable workflow settings loaded from YAML.
type Settings struct {
	Thresholds        ThresholdSettings           `mapstructure:"thresholds"`
	DefaultCategory   string                      `mapstructure:"default_category"`
	Categories        []CategorySettings          `mapstructure:"categories"`
	Fallbacks         FallbackSettings            `mapstructure:"fallbacks"`
	EmailTemplates    map[string]TemplateSettings `mapstructure:"email_templates"`
	FromName          string                      `mapstructure:"from_name"`
	SendStatusUpdates bool                        `mapstructure:"send_status_updates"`
}

// ThresholdSettings are the per-stage AI confidence thresholds.
type ThresholdSettings struct {
	Support  float64 `mapstructure:"support"`
	Category float64 `mapstructure:"category"`
}

// CategorySettings describes one ticket category. Categories are a list
// because viper folds map keys to lower case.
type CategorySettings struct {
	Name            string          `mapstructure:"name"`
	Description     string          `mapstructure:"description"`
	Subcategories   []string        `mapstructure:"subcategories"`
	Group           domain.GroupRef `mapstructure:"group"`
	BackendCategory string          `mapstructure:"backend_category"`
}

// FallbackSettings are used when dynamic lookups fail.
type FallbackSettings struct {
	DefaultCaller          domain.UserRef  `mapstructure:"default_caller"`
	DefaultAssignmentGroup domain.GroupRef `mapstructure:"default_assignment_group"`
}

// TemplateSettings is one notification template. Both fields are Go
// text/template sources evaluated against the notification variables.
type TemplateSettings struct {
	Subject string `mapstructure:"subject"`
	Body    string `mapstructure:"body"`
}

const (
	TemplateTicketCreated = "ticket_created"
	TemplateTicketClosed  = "ticket_closed"
	TemplateTicketUpdated = "ticket_updated"
)

// LoadSettings reads the YAML settings file at path. A missing file yields
// the built-in defaults. INTAKE_* environment variables override scalar keys,
// e.g. INTAKE_THRESHOLDS_SUPPORT=0.7.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("thresholds.support", 0.5)
	v.SetDefault("thresholds.category", 0.0)
	v.SetDefault("default_category", "General")
	v.SetDefault("from_name", "IT Support System")
	v.SetDefault("send_status_updates", false)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read settings %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat settings %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	s.applyDefaults()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() *Settings {
	s := &Settings{
		Thresholds:      ThresholdSettings{Support: 0.5},
		DefaultCategory: "General",
		FromName:        "IT Support System",
	}
	s.applyDefaults()
	return s
}

func (s *Settings) applyDefaults() {
	if s.DefaultCategory == "" {
		s.DefaultCategory = "General"
	}
	if len(s.Categories) == 0 {
		s.Categories = defaultCategories()
	}
	if s.Fallbacks.DefaultCaller.Name == "" && s.Fallbacks.DefaultCaller.ID == "" {
		s.Fallbacks.DefaultCaller = domain.UserRef{Name: "Unknown Caller", Email: "unknown@company.com"}
	}
	if s.Fallbacks.DefaultAssignmentGroup.Name == "" && s.Fallbacks.DefaultAssignmentGroup.ID == "" {
		s.Fallbacks.DefaultAssignmentGroup = domain.GroupRef{Name: "General Support"}
	}
	if s.EmailTemplates == nil {
		s.EmailTemplates = map[string]TemplateSettings{}
	}
	for name, tmpl := range defaultTemplates() {
		cur, ok := s.EmailTemplates[name]
		if !ok {
			s.EmailTemplates[name] = tmpl
			continue
		}
		if cur.Subject == "" {
			cur.Subject = tmpl.Subject
		}
		if cur.Body == "" {
			cur.Body = tmpl.Body
		}
		s.EmailTemplates[name] = cur
	}
}

// Validate checks thresholds and category names.
func (s *Settings) Validate() error {
	if s.Thresholds.Support < 0 || s.Thresholds.Support > 1 {
		return fmt.Errorf("thresholds.support must be within [0,1], got %v", s.Thresholds.Support)
	}
	if s.Thresholds.Category < 0 || s.Thresholds.Category > 1 {
		return fmt.Errorf("thresholds.category must be within [0,1], got %v", s.Thresholds.Category)
	}
	seen := make(map[string]struct{}, len(s.Categories))
	for _, c := range s.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return errors.New("category with empty name")
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	if _, ok := seen[s.DefaultCategory]; !ok {
		return fmt.Errorf("default_category %q is not a configured category", s.DefaultCategory)
	}
	return nil
}

// CategoryNames lists configured categories in file order.
func (s *Settings) CategoryNames() []string {
	names := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		names = append(names, c.Name)
	}
	return names
}

// Category finds a category by exact name.
func (s *Settings) Category(name string) (CategorySettings, bool) {
	for _, c := range s.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return CategorySettings{}, false
}

// GroupNames maps each category to the assignment group name to look up.
func (s *Settings) GroupNames() map[string]string {
	out := make(map[string]string, len(s.Categories))
	for _, c := range s.Categories {
		if c.Group.Name != "" {
			out[c.Name] = c.Group.Name
		}
	}
	return out
}

// BackendCategories maps each category to the helpdesk's own category value.
func (s *Settings) BackendCategories() map[string]string {
	out := make(map[string]string, len(s.Categories))
	for _, c := range s.Categories {
		if c.BackendCategory != "" {
			out[c.Name] = c.BackendCategory
		}
	}
	return out
}

// Fallback builds the read-only fallback configuration.
func (s *Settings) Fallback() domain.FallbackConfig {
	groups := make(map[string]domain.GroupRef, len(s.Categories))
	for _, c := range s.Categories {
		if c.Group.ID != "" || c.Group.Name != "" {
			groups[c.Name] = c.Group
		}
	}
	return domain.FallbackConfig{
		DefaultCategory: s.DefaultCategory,
		CategoryGroups:  groups,
		DefaultCaller:   s.Fallbacks.DefaultCaller,
		DefaultGroup:    s.Fallbacks.DefaultAssignmentGroup,
	}
}

func defaultCategories() []CategorySettings {
	return []CategorySettings{
		{
			Name:            "IT",
			Description:     "Information Technology issues",
			Subcategories:   []string{"Software", "Hardware", "Network", "Access"},
			Group:           domain.GroupRef{Name: "IT Support"},
			BackendCategory: "Software",
		},
		{
			Name:            "HR",
			Description:     "Human Resources matters",
			Subcategories:   []string{"Benefits", "Payroll", "Policies", "Onboarding"},
			Group:           domain.GroupRef{Name: "Human Resources"},
			BackendCategory: "Human Resources",
		},
		{
			Name:            "Finance",
			Description:     "Financial and accounting issues",
			Subcategories:   []string{"Invoices", "Expenses", "Budget", "Payments"},
			Group:           domain.GroupRef{Name: "Finance Team"},
			BackendCategory: "Finance",
		},
		{
			Name:            "Facilities",
			Description:     "Office and facilities management",
			Subcategories:   []string{"Maintenance", "Access", "Equipment", "Space"},
			Group:           domain.GroupRef{Name: "Facilities Management"},
			BackendCategory: "Facilities",
		},
		{
			Name:            "General",
			Description:     "General support requests",
			Subcategories:   []string{"Information", "Other"},
			Group:           domain.GroupRef{Name: "General Support"},
			BackendCategory: "General",
		},
	}
}

func defaultTemplates() map[string]TemplateSettings {
	return map[string]TemplateSettings{
		TemplateTicketCreated: {
			Subject: "Support Ticket Created - {{.ticket_number}}",
			Body: `Dear {{.caller_name}},

Your support request has been received and a ticket has been created.

Ticket Details:
- Ticket Number: {{.ticket_number}}
- Subject: {{.short_description}}
- Priority: {{.priority}}
- Assigned to: {{.assigned_group}}

Description:
{{.description}}

You will receive updates as your ticket is processed. If you have any additional information or questions, please reply to this email and reference your ticket number.

Thank you,
{{.from_name}}

---
This is an automated message. Please do not reply directly to this email.
Ticket ID: {{.ticket_number}}
Created: {{.created_time}}
`,
		},
		TemplateTicketClosed: {
			Subject: "Support Ticket Resolved - {{.ticket_number}}",
			Body: `Dear {{.caller_name}},

Your support ticket has been resolved and closed.

Ticket Details:
- Ticket Number: {{.ticket_number}}
- Subject: {{.short_description}}
- Resolution: {{.resolution_notes}}
- Closed: {{.closed_time}}

If you are satisfied with the resolution, no further action is required. If you need additional assistance or if the issue persists, please create a new support request.

Best regards,
{{.from_name}}
`,
		},
		TemplateTicketUpdated: {
			Subject: "Support Ticket Updated - {{.ticket_number}}",
			Body: `Dear {{.caller_name}},

Your support ticket has been updated.

Ticket Details:
- Ticket Number: {{.ticket_number}}
- Subject: {{.short_description}}
- Status: {{.status}}
- Last Updated: {{.updated_time}}

You will continue to receive updates as your ticket progresses.

Thank you,
{{.from_name}}
`,
		},
	}
}
