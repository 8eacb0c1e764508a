package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVagueSubject(t *testing.T) {
	for subject, want := range map[string]bool{
		"":                          true,
		"hi":                        true,
		"  Help ":                   true,
		"(no subject)":              true,
		"urgent!!":                  true,
		"Fwd:":                      true,
		"VPN not connecting":        false,
		"Printer on floor 3 jammed": false,
		"Question about my payslip": false,
	} {
		assert.Equal(t, want, IsVagueSubject(subject), subject)
	}
}

func TestBodyPreview(t *testing.T) {
	body := "\n  My laptop will not turn on.  \n> quoted reply\nThird line is dropped\n"
	assert.Equal(t, "My laptop will not turn on.", BodyPreview(body))

	body = "First line\nSecond line\nThird line"
	assert.Equal(t, "First line Second line", BodyPreview(body))

	long := strings.Repeat("a", 500)
	assert.Len(t, BodyPreview(long), 200)

	assert.Empty(t, BodyPreview(""))
}
