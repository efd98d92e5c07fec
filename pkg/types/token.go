package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultValidityWindow is the window used when an issuance request names none
const DefaultValidityWindow = 5 * time.Minute

// AllowedValidityWindows enumerates the windows a patient may choose from
var AllowedValidityWindows = []time.Duration{
	5 * time.Minute,
	30 * time.Minute,
	45 * time.Minute,
	time.Hour,
	2 * time.Hour,
	4 * time.Hour,
	8 * time.Hour,
	24 * time.Hour,
}

// AccessToken represents a signed, time-limited grant to read one subject's records
type AccessToken struct {
	ID             string        `json:"tokenId"`
	Value          string        `json:"token"`
	SubjectID      string        `json:"subjectId"`
	CreatedAt      time.Time     `json:"createdAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
	ValidityWindow time.Duration `json:"-"`
}

// IsExpired reports whether now - CreatedAt >= ValidityWindow
func (t *AccessToken) IsExpired(now time.Time) bool {
	return now.Sub(t.CreatedAt) >= t.ValidityWindow
}

// TokenGrant is the result of a successful token validation
type TokenGrant struct {
	TokenID   string    `json:"tokenId"`
	SubjectID string    `json:"subjectId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenState is the lifecycle state of an access token
type TokenState string

const (
	TokenStateActive  TokenState = "active"
	TokenStateExpired TokenState = "expired"
	TokenStateRevoked TokenState = "revoked"
)

// IsAllowedValidityWindow reports whether d is one of AllowedValidityWindows
func IsAllowedValidityWindow(d time.Duration) bool {
	for _, allowed := range AllowedValidityWindows {
		if d == allowed {
			return true
		}
	}
	return false
}

// ParseValidityWindow accepts a Go duration ("30m", "1h") or a whole number of minutes ("45").
// An empty string yields zero, meaning "use the default".
func ParseValidityWindow(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	var window time.Duration
	if minutes, err := strconv.Atoi(raw); err == nil {
		window = time.Duration(minutes) * time.Minute
	} else {
		window, err = time.ParseDuration(raw)
		if err != nil {
			return 0, NewValidationError(ErrCodeInvalidInput, fmt.Sprintf("invalid validity window %q", raw), nil)
		}
	}

	if !IsAllowedValidityWindow(window) {
		return 0, NewValidationError(ErrCodeInvalidInput, fmt.Sprintf("validity window %s is not allowed", window), map[string]interface{}{
			"allowed": AllowedValidityWindowNames(),
		})
	}
	return window, nil
}

// AllowedValidityWindowNames returns the allowed windows as duration strings, shortest first
func AllowedValidityWindowNames() []string {
	windows := make([]time.Duration, len(AllowedValidityWindows))
	copy(windows, AllowedValidityWindows)
	sort.Slice(windows, func(i, j int) bool { return windows[i] < windows[j] })

	names := make([]string, len(windows))
	for i, w := range windows {
		names[i] = w.String()
	}
	return names
}
