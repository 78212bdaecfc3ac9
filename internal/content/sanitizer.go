// internal/content/sanitizer.go
// Message text validation and sanitization.
//
// Unsafe markup is a hard rejection, never a strip: a message that tried
// to carry a script is hostile, and stripping would hide the signal.
// PII-shaped substrings and denylisted spam tokens are soft-filtered
// with a redaction marker instead. The sanitized text is the only output;
// raw input never reaches storage.

package content

import (
	"regexp"
	"strings"

	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

// RedactionMarker replaces soft-filtered substrings.
const RedactionMarker = "[redacted]"

var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<\s*script\b`),
	regexp.MustCompile(`(?is)<\s*/\s*script\s*>`),
	regexp.MustCompile(`(?is)<\s*iframe\b`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?i)javascript\s*:`),
}

var (
	phonePattern = regexp.MustCompile(`(?:\+?\d[\d\s().-]{7,}\d)`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
)

// Sanitizer validates and redacts message text.
type Sanitizer struct {
	maxLength int
	denylist  []string
}

func NewSanitizer(maxLength int, denylist []string) *Sanitizer {
	lowered := make([]string, 0, len(denylist))
	for _, token := range denylist {
		if token = strings.ToLower(strings.TrimSpace(token)); token != "" {
			lowered = append(lowered, token)
		}
	}
	return &Sanitizer{maxLength: maxLength, denylist: lowered}
}

// Sanitize runs the pipeline: length check, unsafe-markup rejection,
// soft redaction, post-filter emptiness check. Returns the sanitized
// text on success.
func (s *Sanitizer) Sanitize(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", apperrors.New(apperrors.CodeEmptyAfterSanitize, "message is empty")
	}
	if len([]rune(trimmed)) > s.maxLength {
		return "", apperrors.New(apperrors.CodeMessageTooLong, "message exceeds maximum length")
	}

	for _, p := range unsafePatterns {
		if p.MatchString(trimmed) {
			return "", apperrors.New(apperrors.CodeUnsafeContent, "message contains unsafe markup")
		}
	}

	sanitized := phonePattern.ReplaceAllString(trimmed, RedactionMarker)
	sanitized = emailPattern.ReplaceAllString(sanitized, RedactionMarker)
	sanitized = urlPattern.ReplaceAllString(sanitized, RedactionMarker)
	sanitized = s.redactDenylist(sanitized)

	if isEffectivelyEmpty(sanitized) {
		return "", apperrors.New(apperrors.CodeEmptyAfterSanitize, "message is empty after sanitization")
	}

	return strings.TrimSpace(sanitized), nil
}

// redactDenylist rewrites text in a single forward scan, longest token
// first at each position. Inserted markers are never re-scanned, so a
// token that happens to be a substring of the marker cannot match the
// marker itself.
func (s *Sanitizer) redactDenylist(text string) string {
	if len(s.denylist) == 0 {
		return text
	}

	var b strings.Builder
	i := 0
	for i < len(text) {
		matched := 0
		for _, token := range s.denylist {
			n := len(token)
			if n > matched && i+n <= len(text) && strings.EqualFold(text[i:i+n], token) {
				matched = n
			}
		}
		if matched > 0 {
			b.WriteString(RedactionMarker)
			i += matched
		} else {
			b.WriteByte(text[i])
			i++
		}
	}
	return b.String()
}

// isEffectivelyEmpty reports whether nothing but redaction markers and
// whitespace survived filtering.
func isEffectivelyEmpty(text string) bool {
	stripped := strings.ReplaceAll(text, RedactionMarker, "")
	return strings.TrimSpace(stripped) == ""
}
