package saga

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidExpiry = errors.New("invalid expiry duration")

// ParseExpiry reads the expiryDuration parameter.
// Accepted: time.Duration, Go duration strings ("5m", "90s"), timer shorthand ("5M", "30S", "1H", "PT5M")
// and plain numbers as milliseconds.
func ParseExpiry(v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return positive(t)
	case float64:
		return positive(time.Duration(t) * time.Millisecond)
	case int64:
		return positive(time.Duration(t) * time.Millisecond)
	case int:
		return positive(time.Duration(t) * time.Millisecond)
	case string:
		return parseExpiryString(t)
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrInvalidExpiry)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidExpiry, v)
	}
}

func parseExpiryString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return positive(d)
	}

	shorthand := strings.TrimPrefix(strings.ToUpper(s), "PT")
	if len(shorthand) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
	}
	n, err := strconv.Atoi(shorthand[:len(shorthand)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
	}
	unit := map[byte]time.Duration{'S': time.Second, 'M': time.Minute, 'H': time.Hour, 'D': 24 * time.Hour}[shorthand[len(shorthand)-1]]
	if unit == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
	}
	return positive(time.Duration(n) * unit)
}

func positive(d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidExpiry, d)
	}
	return d, nil
}
