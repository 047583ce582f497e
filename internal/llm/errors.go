package llm

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/joseph-ayodele/ape/internal/common"
)

var (
	// ErrProvider marks a single adapter failure.
	ErrProvider = errors.New("llm provider error")
	// ErrAllProvidersFailed is returned once every adapter has been tried.
	ErrAllProvidersFailed = fmt.Errorf("all llm providers failed: %w", common.ErrUpstream)
	// ErrNoProviderConfigured is fatal at startup.
	ErrNoProviderConfigured = errors.New("no llm providers configured")
)

// ProviderError wraps an adapter's remote, timeout or decode failure.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProvider, e.Err} }

// NewProviderError is a small constructor used by adapters.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// ExhaustedError reports a failover loop where every adapter failed.
type ExhaustedError struct {
	Attempts int
	Last     error
	All      *multierror.Error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d LLM provider(s) failed. Last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrAllProvidersFailed, e.Last} }
