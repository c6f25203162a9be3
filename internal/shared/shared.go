// package shared defines shared helpers
package shared

import (
	"encoding/json"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// MarshalJSON marshals data to JSON, optionally indented.
func MarshalJSON(data any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

var (
	titleQualifier = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	isrcPattern    = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{3}[0-9]{7}$`)
)

// CleanTitle strips parenthetical and bracketed qualifiers from a track title
// ("Song (Radio Edit) [Remastered]" -> "Song") and normalizes whitespace.
//
// Provider search queries polluted by remix/version annotations match poorly,
// so titles are cleaned once before any provider is consulted.
func CleanTitle(title string) string {
	cleaned := titleQualifier.ReplaceAllString(title, " ")
	cleaned = strings.TrimSpace(whitespaceRun.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		// A title that is nothing but qualifiers keeps its original form.
		return strings.TrimSpace(whitespaceRun.ReplaceAllString(title, " "))
	}
	return cleaned
}

// ValidISRC reports whether s looks like a 12-character International
// Standard Recording Code: two-letter country, three-character registrant,
// two-digit year, five-digit designation.
func ValidISRC(s string) bool {
	return isrcPattern.MatchString(s)
}

// CountryFromAcceptLanguage extracts the first region subtag from an
// Accept-Language header value ("en-US,en;q=0.9" -> "US").
//
// Returns the empty string when no region subtag is present.
func CountryFromAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		lang := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		segments := strings.Split(lang, "-")
		if len(segments) < 2 {
			continue
		}
		region := strings.ToUpper(segments[1])
		if len(region) == 2 && region[0] >= 'A' && region[0] <= 'Z' && region[1] >= 'A' && region[1] <= 'Z' {
			return region
		}
	}
	return ""
}
