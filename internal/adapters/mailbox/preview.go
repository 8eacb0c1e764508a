package mailbox

import (
	"strings"
	"unicode/utf8"
)

const (
	previewLines    = 2
	previewMaxChars = 200
)

var vagueSubjects = []string{
	"hi", "hello", "hey", "urgent", "help", "issue", "problem", "question",
	"request", "support", "fwd:", "fw:", "re:", "untitled", "no subject",
	"(no subject)", "important",
}

// IsVagueSubject reports whether the subject alone is too generic to
// classify, in which case a short body preview is attached.
func IsVagueSubject(subject string) bool {
	s := strings.ToLower(strings.TrimSpace(subject))
	if utf8.RuneCountInString(s) < 3 {
		return true
	}
	for _, v := range vagueSubjects {
		if s == v {
			return true
		}
	}
	if utf8.RuneCountInString(s) < 10 {
		for _, v := range vagueSubjects[:8] {
			if strings.Contains(s, v) {
				return true
			}
		}
	}
	return false
}

// BodyPreview keeps the first non-empty, non-quoted lines of body, capped at
// 200 characters.
func BodyPreview(body string) string {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) > previewLines {
		lines = lines[:previewLines]
	}

	kept := make([]string, 0, previewLines)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ">") {
			continue
		}
		kept = append(kept, line)
	}

	preview := strings.Join(kept, " ")
	if utf8.RuneCountInString(preview) > previewMaxChars {
		preview = string([]rune(preview)[:previewMaxChars])
	}
	return preview
}
