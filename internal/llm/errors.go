// Package llm wraps the model-provider SDKs behind one streaming chat
// interface and classifies their failure modes.
package llm

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// Sentinel errors for upstream failure classification. Check with
// errors.Is in calling code.
var (
	// ErrAuth covers authentication/authorization failures (401/403
	// equivalents). Never retried.
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimited covers overload, quota and rate-limit conditions.
	// Retryable, and surfaced with a dedicated user message.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the selected model is unknown upstream.
	ErrModelNotFound = errors.New("model not found")
)

// Kind is the coarse error class the retry policy and the user-facing
// messages are driven by.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindRateLimited
	KindModelNotFound
)

// Classify maps an upstream error to its Kind. The provider SDKs do not
// share an error surface: Bedrock returns typed exceptions, langchaingo
// flattens HTTP status into message text, so both are inspected.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, ErrAuth) {
		return KindAuth
	}
	if errors.Is(err, ErrRateLimited) {
		return KindRateLimited
	}
	if errors.Is(err, ErrModelNotFound) {
		return KindModelNotFound
	}

	var accessDenied *types.AccessDeniedException
	if errors.As(err, &accessDenied) {
		return KindAuth
	}
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return KindRateLimited
	}
	var unavailable *types.ServiceUnavailableException
	if errors.As(err, &unavailable) {
		return KindRateLimited
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return KindModelNotFound
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "invalid api key") || strings.Contains(msg, "incorrect api key"):
		return KindAuth
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "overloaded") || strings.Contains(msg, "quota"):
		return KindRateLimited
	case strings.Contains(msg, "model not found") || strings.Contains(msg, "unknown model"):
		return KindModelNotFound
	default:
		return KindUnknown
	}
}

// Retryable reports whether the retry wrapper may reattempt after err.
// Authentication failures propagate immediately; everything else is
// considered transient.
func Retryable(err error) bool {
	return Classify(err) != KindAuth
}
