package metatile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// ExpirationUnset is reported until a fetch resolved the expiration.
	ExpirationUnset int64 = -1
	// ExpirationClientDefault means no explicit lifetime, the client decides.
	ExpirationClientDefault int64 = -2
)

// DefaultExpirationFallback is used when a backend value is required but missing.
const DefaultExpirationFallback = 7200 * time.Second

type PolicyKind int

const (
	PolicyClientDefault PolicyKind = iota
	PolicyFixed
	PolicyBackend
)

// Policy decides how a metatile's expiration is derived.
type Policy struct {
	Kind  PolicyKind
	Value time.Duration
}

func Fixed(d time.Duration) Policy {
	return Policy{Kind: PolicyFixed, Value: d}
}

func ClientDefault() Policy {
	return Policy{Kind: PolicyClientDefault}
}

func FromBackend() Policy {
	return Policy{Kind: PolicyBackend}
}

// ParsePolicy accepts "client", "backend", a Go duration or plain seconds.
func ParsePolicy(s string) (Policy, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "client", "default":
		return ClientDefault(), nil
	case "backend", "wms":
		return FromBackend(), nil
	default:
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			if secs < 0 {
				return Policy{}, fmt.Errorf("negative expiration %q", s)
			}
			return Fixed(time.Duration(secs) * time.Second), nil
		}

		d, err := time.ParseDuration(v)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid expiration policy %q: %w", s, err)
		}
		if d < 0 {
			return Policy{}, fmt.Errorf("negative expiration %q", s)
		}
		return Fixed(d), nil
	}
}

func (p Policy) NeedsBackend() bool {
	return p.Kind == PolicyBackend
}

func (p Policy) String() string {
	switch p.Kind {
	case PolicyFixed:
		return p.Value.String()
	case PolicyBackend:
		return "backend"
	default:
		return "client"
	}
}

// Hint is the max-age a backend sent along with the image.
type Hint struct {
	MaxAge int64
	Valid  bool
}

// Resolve returns the expiration in milliseconds.
func (p Policy) Resolve(hint Hint, fallback time.Duration) int64 {
	switch p.Kind {
	case PolicyFixed:
		return p.Value.Milliseconds()
	case PolicyBackend:
		if hint.Valid {
			return hint.MaxAge * 1000
		}
		return fallback.Milliseconds()
	default:
		return ExpirationClientDefault
	}
}
