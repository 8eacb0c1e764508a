package domain

import (
	"strings"
	"time"
)

// EmailCandidate is one fetched message awaiting processing.
type EmailCandidate struct {
	MessageID  string
	Subject    string
	Preview    string
	ReceivedAt time.Time
	Sender     string
	SenderName string
	// Headers carries the raw headers relevant to auto-reply detection.
	Headers map[string]string
}

// Header returns a header value using a case-insensitive name lookup.
func (e EmailCandidate) Header(name string) string {
	if v, ok := e.Headers[name]; ok {
		return v
	}
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
