// Package llm adapts third-party model backends to the step.Provider and
// compaction.Summarizer interfaces (spec §4.8's "snapshot in, streamed chunks
// out" contract). Each backend lives in its own file; registry.go builds the
// configured set from config.LLMConfig and wraps them in a fallback chain.
//
// Grounded on the teacher's internal/agent/providers package: one file per
// backend, a shared ProviderError/FailoverReason classification, and a
// BaseProvider-style retry helper, adapted so Stream speaks
// pkg/message.StreamEvent directly instead of a provider-specific delta type.
package llm

import (
	"fmt"
	"strings"
)

// FailoverReason categorizes why a provider request failed, driving both
// per-request retry and registry-level fallback-chain advancement.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"
	FailoverRateLimit        FailoverReason = "rate_limit"
	FailoverAuth             FailoverReason = "auth"
	FailoverTimeout          FailoverReason = "timeout"
	FailoverServerError      FailoverReason = "server_error"
	FailoverInvalidRequest   FailoverReason = "invalid_request"
	FailoverModelUnavailable FailoverReason = "model_unavailable"
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverContextLength    FailoverReason = "context_length"
	FailoverUnknown          FailoverReason = "unknown"
)

// IsRetryable reports whether retrying the same request, unmodified, may
// succeed (rate limits and transient server/timeout errors).
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ShouldFailover reports whether the registry's fallback chain should move
// to the next configured provider rather than retry this one.
func (r FailoverReason) ShouldFailover() bool {
	switch r {
	case FailoverBilling, FailoverAuth, FailoverModelUnavailable:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from a backend, carrying enough
// context for retry/fallback decisions and for step.ErrContextLengthExceeded
// classification.
type ProviderError struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError classifies cause into a ProviderError using plain string
// matching on its message, for SDKs (openai, genai) that don't expose a
// typed status code the way anthropic-sdk-go's *anthropic.Error does.
func NewProviderError(provider, model string, cause error) *ProviderError {
	reason := FailoverUnknown
	msg := ""
	if cause != nil {
		msg = strings.ToLower(cause.Error())
	}
	switch {
	case strings.Contains(msg, "context_length") || strings.Contains(msg, "context length") || strings.Contains(msg, "maximum context"):
		reason = FailoverContextLength
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		reason = FailoverRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden"):
		reason = FailoverAuth
	case strings.Contains(msg, "402") || strings.Contains(msg, "quota") || strings.Contains(msg, "insufficient"):
		reason = FailoverBilling
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		reason = FailoverTimeout
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "internal server"):
		reason = FailoverServerError
	case strings.Contains(msg, "model_not_found") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found"):
		reason = FailoverModelUnavailable
	case strings.Contains(msg, "content_filter") || strings.Contains(msg, "safety"):
		reason = FailoverContentFilter
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		reason = FailoverInvalidRequest
	}
	return &ProviderError{Reason: reason, Provider: provider, Model: model, Cause: cause}
}

// IsProviderError reports whether err already carries ProviderError
// classification, so wrapError helpers don't double-wrap.
func IsProviderError(err error) bool {
	_, ok := err.(*ProviderError)
	return ok
}
