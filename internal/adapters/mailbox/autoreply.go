// Package mailbox fetches support mail from Gmail and screens out machine
// generated replies.
package mailbox

import (
	"strings"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

var autoReplyHeaders = []string{
	"X-Auto-Response-Suppress",
	"X-Autorespond",
	"X-Autoreply",
}

var autoReplySubjects = []string{
	"out of office",
	"auto reply",
	"auto-reply",
	"automatic reply",
	"autoreply",
	"vacation",
	"away from office",
	"currently unavailable",
	"delivery status notification",
	"undeliverable",
	"mail delivery failed",
}

var autoReplySenders = []string{"mailer-daemon", "postmaster"}

// AutoReplyDetector flags out-of-office replies and bounce reports from
// their headers, subject and sender.
type AutoReplyDetector struct{}

// IsAutoReply implements service.AutoReplyFilter.
func (AutoReplyDetector) IsAutoReply(email domain.EmailCandidate) bool {
	if v := strings.ToLower(strings.TrimSpace(email.Header("Auto-Submitted"))); v != "" && v != "no" {
		return true
	}
	for _, h := range autoReplyHeaders {
		if email.Header(h) != "" {
			return true
		}
	}
	switch strings.ToLower(strings.TrimSpace(email.Header("Precedence"))) {
	case "bulk", "junk", "auto_reply":
		return true
	}

	subject := strings.ToLower(email.Subject)
	for _, p := range autoReplySubjects {
		if strings.Contains(subject, p) {
			return true
		}
	}

	sender := strings.ToLower(email.Sender)
	for _, s := range autoReplySenders {
		if strings.Contains(sender, s) {
			return true
		}
	}
	return false
}
