package token

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidExpiry reports a relative expiry expression that does not match
// the supported grammar. It is a validation error: callers may fix the
// input and retry.
var ErrInvalidExpiry = errors.New("invalid expiry")

// Expiry is the caller-side expiry input: a concrete timestamp, a relative
// expression anchored to the current instant, or nothing (nil), in which
// case the configured default applies. The union is closed on purpose;
// arbitrary values are rejected at this boundary rather than inside the
// entity.
type Expiry interface {
	expiry()
}

// At wraps a concrete timestamp. It passes through resolution unchanged.
type At time.Time

// In is a relative duration expression such as "+1 hour" or "30m".
type In string

func (At) expiry() {}
func (In) expiry() {}

var relativeRe = regexp.MustCompile(`^\+?\s*(\d+)\s*(second|minute|hour|day|week)s?$`)

// ParseRelative parses a human-readable relative expression ("+1 hour",
// "2 days") or a plain Go duration ("90m") and anchors it to now.
func ParseRelative(expr string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty expression", ErrInvalidExpiry)
	}

	if m := relativeRe.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, expr)
		}
		var unit time.Duration
		switch m[2] {
		case "second":
			unit = time.Second
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		case "week":
			unit = 7 * 24 * time.Hour
		}
		return now.Add(time.Duration(n) * unit), nil
	}

	if d, err := time.ParseDuration(strings.TrimPrefix(s, "+")); err == nil {
		return now.Add(d), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, expr)
}

// Resolve normalizes an expiry input against the configured default
// expression. A concrete timestamp is returned unchanged; nil input falls
// back to defaultExpr; a relative expression is anchored to now.
func Resolve(e Expiry, defaultExpr string, now time.Time) (time.Time, error) {
	switch v := e.(type) {
	case nil:
		return ParseRelative(defaultExpr, now)
	case At:
		return time.Time(v), nil
	case In:
		return ParseRelative(string(v), now)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported expiry type %T", ErrInvalidExpiry, e)
	}
}
