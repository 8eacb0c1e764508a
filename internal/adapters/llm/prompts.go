package llm

import (
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

const classifySystemPrompt = `You classify emails sent to a company support mailbox.

SUPPORT-RELATED: technical issues (software, hardware, network), account access problems,
password resets, system errors, service requests, help with applications or tools,
infrastructure issues, general assistance requests, questions about services or processes.

NOT support-related: marketing, newsletters, social invitations, personal conversations,
spam or promotional content, meeting invitations unless about support, general announcements.

Respond with JSON only:
{"is_support": true|false, "confidence": 0.0-1.0, "reasoning": "one sentence"}`

const summarizeSystemPrompt = `You write concise, professional helpdesk tickets from support emails.

1. A short title (max 80 characters) naming the actual problem.
2. A concise description of the issue (max 200 words) without email metadata.
3. A priority from 1 to 4 (1=Critical, 2=High, 3=Medium, 4=Low).
If information is limited, make reasonable assumptions about the support need.

Respond with JSON only:
{"title": "...", "description": "...", "priority": 1-4}`

const categorizeSystemPrompt = `You route helpdesk tickets to a category.

Available categories:
%s

Pick exactly one category from the list and, if it applies, one of its subcategories.
Respond with JSON only:
{"category": "...", "subcategory": "...", "confidence": 0.0-1.0}`

func emailPrompt(subject, preview string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	if preview != "" {
		fmt.Fprintf(&b, "Body preview: %s\n", preview)
	}
	return b.String()
}

func ticketPrompt(title, description string) string {
	return fmt.Sprintf("Title: %s\nDescription: %s\n", title, description)
}

func categoryList(categories []config.CategorySettings) string {
	lines := make([]string, 0, len(categories))
	for _, c := range categories {
		line := "- " + c.Name
		if c.Description != "" {
			line += ": " + c.Description
		}
		if len(c.Subcategories) > 0 {
			line += " (subcategories: " + strings.Join(c.Subcategories, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
