package embed

import "strings"

// FailureKind classifies an embedding API failure, driving retry
// behavior: rate limits and transient faults retry, auth and fatal
// failures abort immediately.
type FailureKind int

const (
	FailureTransient FailureKind = iota
	FailureRateLimit
	FailureAuth
	FailureFatal
)

var rateLimitMarkers = []string{
	"rate limit",
	"too many requests",
	"quota exceeded",
	"429",
	"rate_limit_exceeded",
}

var authMarkers = []string{
	"api key",
	"invalid key",
	"unauthorized",
	"401",
	"authentication",
	"invalid_api_key",
}

// fatalMarkers are request errors no retry can fix.
var fatalMarkers = []string{
	"model not found",
	"maximum context length",
	"invalid request",
}

// Classify inspects an error message and decides how to treat the
// failure. Unknown errors count as transient so flaky networks get
// retried.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureTransient
	}
	msg := strings.ToLower(err.Error())

	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return FailureRateLimit
		}
	}
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return FailureAuth
		}
	}
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return FailureFatal
		}
	}
	return FailureTransient
}
