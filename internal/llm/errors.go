package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	genai "google.golang.org/genai"
)

var (
	// ErrNotConfigured is returned when no API key is available for the selected provider.
	ErrNotConfigured = errors.New("generation api is not configured")
	// ErrEmptyCompletion is returned when the API answers with no text.
	ErrEmptyCompletion = errors.New("generation api returned empty content")
)

// Kind classifies a generation failure for retry purposes.
type Kind int

const (
	Transient Kind = iota
	RateLimited
	Fatal
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case Fatal:
		return "fatal"
	default:
		return "transient"
	}
}

// GenerationError is a provider failure tagged with its Kind.
type GenerationError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s generation error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s generation error: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Retryable reports whether err should be retried under a retry policy.
func Retryable(err error) bool {
	return KindOf(err) != Fatal
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == Fatal
}

// KindOf returns the Kind carried by err, classifying it first if needed.
func KindOf(err error) Kind {
	var gen *GenerationError
	if errors.As(err, &gen) {
		return gen.Kind
	}
	return Classify(err).Kind
}

// Classify wraps a raw provider error into a GenerationError.
func Classify(err error) *GenerationError {
	if err == nil {
		return nil
	}
	var gen *GenerationError
	if errors.As(err, &gen) {
		return gen
	}

	switch {
	case errors.Is(err, ErrNotConfigured):
		return &GenerationError{Kind: Fatal, Err: err}
	case errors.Is(err, context.Canceled):
		return &GenerationError{Kind: Fatal, Err: err}
	case errors.Is(err, ErrEmptyCompletion), errors.Is(err, context.DeadlineExceeded):
		return &GenerationError{Kind: Transient, Err: err}
	}

	if code, status := statusOf(err); code != 0 || status != "" {
		return &GenerationError{Kind: kindForStatus(code, status), StatusCode: code, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &GenerationError{Kind: Transient, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "quota"), strings.Contains(msg, "resource_exhausted"):
		return &GenerationError{Kind: RateLimited, Err: err}
	case strings.Contains(msg, "api key"), strings.Contains(msg, "permission denied"), strings.Contains(msg, "unauthenticated"):
		return &GenerationError{Kind: Fatal, Err: err}
	}
	return &GenerationError{Kind: Transient, Err: err}
}

func statusOf(err error) (int, string) {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) {
		return oaAPI.HTTPStatusCode, ""
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) {
		return oaReq.HTTPStatusCode, ""
	}
	var gAPI genai.APIError
	if errors.As(err, &gAPI) {
		return gAPI.Code, gAPI.Status
	}
	var gAPIPtr *genai.APIError
	if errors.As(err, &gAPIPtr) {
		return gAPIPtr.Code, gAPIPtr.Status
	}
	return 0, ""
}

func kindForStatus(code int, status string) Kind {
	switch strings.ToUpper(status) {
	case "RESOURCE_EXHAUSTED":
		return RateLimited
	case "UNAUTHENTICATED", "PERMISSION_DENIED", "INVALID_ARGUMENT", "NOT_FOUND", "FAILED_PRECONDITION":
		return Fatal
	}
	switch {
	case code == http.StatusTooManyRequests:
		return RateLimited
	case code == http.StatusRequestTimeout:
		return Transient
	case code >= 500:
		return Transient
	case code >= 400:
		return Fatal
	}
	return Transient
}
