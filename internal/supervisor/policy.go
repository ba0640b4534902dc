package supervisor

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultDelay is the wait before each rebuild attempt.
	DefaultDelay = 10 * time.Second
	// DefaultMaxDelay caps an exponential backoff configured without a max.
	DefaultMaxDelay = 5 * time.Minute
	// ceilingDelay caps an Exponential whose Max is unset.
	ceilingDelay = 24 * time.Hour
)

// Policy decides how long to wait before the n-th consecutive rebuild
// attempt (n starts at 1).
type Policy interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same duration before every attempt.
type Fixed time.Duration

func (f Fixed) Delay(int) time.Duration { return time.Duration(f) }

// Exponential doubles the delay per consecutive attempt up to Max. A zero
// Max still stops doubling at one day.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	limit := e.Max
	if limit <= 0 {
		limit = ceilingDelay
	}
	d := e.Base
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

// ParsePolicy builds a policy from its config name ("fixed" or "exponential").
func ParsePolicy(name string, base, max time.Duration) (Policy, error) {
	if base <= 0 {
		base = DefaultDelay
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fixed":
		return Fixed(base), nil
	case "exponential", "exp":
		if max <= 0 {
			max = DefaultMaxDelay
		}
		return Exponential{Base: base, Max: max}, nil
	default:
		return nil, fmt.Errorf("unknown reconnect backoff %q", name)
	}
}
