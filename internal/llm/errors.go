package llm

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AuthError marks a credential-level authorization failure. The gateway
// deactivates the offending credential and moves to the next one.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError marks a provider rate limit. RetryAfter is zero when the
// provider gave no hint.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// IsAuth reports whether the error chain contains an authorization failure.
// Providers are inconsistent about typed errors, so message heuristics back
// up the typed check.
func IsAuth(err error) bool {
	if err == nil {
		return false
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"invalid", "unauthorized", "permission denied", "api key not valid"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// retryDelayPattern matches provider retry hints embedded in error messages,
// e.g. `"retryDelay":"21s"` or "retry after 30 seconds".
var retryDelayPattern = regexp.MustCompile(`(?i)retry[_\- ]?(?:delay|after)[^0-9]{0,4}([0-9]+(?:\.[0-9]+)?)\s*s`)

// RetryDelay extracts a rate-limit retry hint from the error chain. The
// second return is false when the error is not a rate limit at all.
func RetryDelay(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	msg := err.Error()
	if !strings.Contains(strings.ToLower(msg), "rate") && !strings.Contains(msg, "429") {
		return 0, false
	}
	if m := retryDelayPattern.FindStringSubmatch(msg); m != nil {
		if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second)), true
		}
	}
	return 0, true
}

// parseRetryAfter converts a Retry-After header value (delta seconds) into a
// duration. Returns zero for HTTP-date or malformed values.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
