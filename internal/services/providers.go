package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ---------------------------------------------------------------------------
// Asset provider contract + provider error taxonomy
// Every external search provider sits behind AssetProvider so the resolution
// pipeline can fold over an ordered list without knowing the vendors.
// ---------------------------------------------------------------------------

// FailureKind classifies a provider failure for the fallback/retry policy.
type FailureKind string

const (
	// FailureTransient covers timeouts, rate limits and transport errors.
	FailureTransient FailureKind = "transient"
	// FailurePermanent covers auth problems and other 4xx rejections.
	FailurePermanent FailureKind = "permanent"
	// FailureEmpty means the provider answered but had no usable hit.
	FailureEmpty FailureKind = "empty"
)

// ProviderError is a typed provider failure. The asset pipeline absorbs all of
// them; the worker-level retry policy inspects Kind for everything else.
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether err is a provider failure worth retrying.
func Transient(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind == FailureTransient
	}
	return false
}

// AssetResult is one usable visual asset: either a downloadable URL or inline
// bytes (generation providers return bytes directly).
type AssetResult struct {
	URL       string
	Data      []byte
	Extension string // ".jpg", ".png" — used to name the cached file
}

// AssetProvider searches for a visual asset matching a query.
// Implementations return *ProviderError for all failure modes.
type AssetProvider interface {
	Name() string
	Search(ctx context.Context, query string) (*AssetResult, error)
}

// classifyStatus maps an HTTP response status to a failure kind.
// 429/408/5xx are worth moving past or retrying; other 4xx are not.
func classifyStatus(status int) FailureKind {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return FailureTransient
	default:
		return FailurePermanent
	}
}

// classifyTransport maps a network-level error to a failure kind. Transport
// errors are always worth moving past to the next provider.
func classifyTransport(err error) FailureKind {
	if err == nil {
		return FailureTransient
	}
	msg := err.Error()
	if strings.Contains(msg, "unsupported protocol") || strings.Contains(msg, "invalid URL") {
		return FailurePermanent
	}
	return FailureTransient
}
