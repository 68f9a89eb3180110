package trade

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// retryAfterHeader reads Retry-After as whole seconds or an HTTP date.
// Missing or unparseable values yield zero so the limiter falls back to
// its own exponential backoff.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}

	retry := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retry == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retry); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		if wait := time.Until(parsed); wait > 0 {
			return wait.Round(time.Second)
		}
	}

	return 0
}
