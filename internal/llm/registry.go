package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/joseph-ayodele/ape/internal/metrics"
)

// errFirstChunkTimeout is the cause recorded when a stream produced nothing
// within the call timeout.
var errFirstChunkTimeout = fmt.Errorf("no output within call timeout: %w", context.DeadlineExceeded)

// Registry holds adapters in fixed priority order and fails over between
// them. The adapter list is never mutated after construction.
type Registry struct {
	providers []Provider
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type RegistryOption func(*Registry)

// WithCallTimeout bounds each adapter attempt. A timeout counts as a failure.
// For streams it bounds the wait for the first chunk only; after that the
// stream runs under the caller's context.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry returns ErrNoProviderConfigured when providers is empty.
func NewRegistry(providers []Provider, logger *slog.Logger, opts ...RegistryOption) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(providers) == 0 {
		logger.Error("llm.registry.empty")
		return nil, ErrNoProviderConfigured
	}
	r := &Registry{
		providers: append([]Provider(nil), providers...),
		timeout:   45 * time.Second,
		logger:    logger,
	}
	for _, o := range opts {
		o(r)
	}
	logger.Info("llm.registry.ready", "providers", r.Providers(), "call_timeout", r.timeout)
	return r, nil
}

// Providers lists adapter names in priority order.
func (r *Registry) Providers() []string {
	out := make([]string, len(r.providers))
	for i, p := range r.providers {
		out[i] = p.Name()
	}
	return out
}

// Generate returns the first successful adapter result. Each adapter gets
// exactly one attempt.
func (r *Registry) Generate(ctx context.Context, msgs []Message, opts ...CallOption) (GenerationResult, error) {
	if err := ValidateMessages(msgs); err != nil {
		return GenerationResult{}, err
	}

	var all *multierror.Error
	var last error
	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return GenerationResult{}, err
		}
		start := time.Now()
		r.logger.Debug("llm.registry.try", "provider", p.Name(), "model", p.Model())

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		res, err := p.Generate(callCtx, msgs, opts...)
		cancel()

		r.metrics.ProviderAttempt(p.Name(), "generate", err)
		if err == nil {
			FinalizeTokens(&res)
			r.logger.Info("llm.registry.ok",
				"provider", res.Provider,
				"model", res.Model,
				"total_tokens", res.TotalTokens,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return res, nil
		}

		r.logger.Warn("llm.registry.failover",
			"provider", p.Name(),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		last = err
		all = multierror.Append(all, err)
	}

	exhausted := &ExhaustedError{Attempts: len(r.providers), Last: last, All: all}
	r.logger.Error("llm.registry.exhausted", "attempts", exhausted.Attempts, "error", last)
	return GenerationResult{}, exhausted
}

// Stream tries adapters in order until one produces its first chunk (or
// finishes cleanly with none). Failover only happens before that first
// chunk: once text has been forwarded, a later failure is delivered as a
// terminal error chunk and no other adapter is tried.
//
// Stream blocks until a provider has been selected, so exhaustion is
// reported through the returned error.
func (r *Registry) Stream(ctx context.Context, msgs []Message, opts ...CallOption) (<-chan Chunk, error) {
	if err := ValidateMessages(msgs); err != nil {
		return nil, err
	}

	var all *multierror.Error
	var last error
	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithCancelCause(ctx)
		timer := time.AfterFunc(r.timeout, func() { cancel(errFirstChunkTimeout) })
		ch, err := p.Stream(callCtx, msgs, opts...)
		if err != nil {
			timer.Stop()
			cancel(nil)
			r.metrics.ProviderAttempt(p.Name(), "stream", err)
			r.logger.Warn("llm.registry.stream_failover", "provider", p.Name(), "stage", "open", "error", err)
			last = err
			all = multierror.Append(all, err)
			continue
		}

		var (
			first Chunk
			ok    bool
		)
		select {
		case first, ok = <-ch:
			if !timer.Stop() {
				err = errFirstChunkTimeout
			} else if ok && first.Err != nil {
				err = first.Err
			}
		case <-callCtx.Done():
			err = context.Cause(callCtx)
		}
		if err != nil {
			timer.Stop()
			cancel(err)
			drain(ch)
			if errors.Is(err, errFirstChunkTimeout) {
				err = NewProviderError(p.Name(), "stream", err)
			}
			r.metrics.ProviderAttempt(p.Name(), "stream", err)
			r.logger.Warn("llm.registry.stream_failover", "provider", p.Name(), "stage", "first_chunk", "error", err)
			last = err
			all = multierror.Append(all, err)
			continue
		}

		out := make(chan Chunk, 16)
		go r.forward(ctx, p, func() { cancel(nil) }, first, ok, ch, out)
		return out, nil
	}

	exhausted := &ExhaustedError{Attempts: len(r.providers), Last: last, All: all}
	r.logger.Error("llm.registry.stream_exhausted", "attempts", exhausted.Attempts, "error", last)
	return nil, exhausted
}

func (r *Registry) forward(ctx context.Context, p Provider, cancel context.CancelFunc, first Chunk, ok bool, in <-chan Chunk, out chan<- Chunk) {
	defer close(out)
	defer cancel()

	var streamErr error
	chunks := 0
	send := func(c Chunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if ok {
		chunks++
		if !send(first) {
			drain(in)
			return
		}
		for c := range in {
			if c.Err != nil {
				streamErr = c.Err
				r.logger.Warn("llm.registry.stream_interrupted",
					"provider", p.Name(), "chunks_sent", chunks, "error", c.Err)
				send(c)
				drain(in)
				break
			}
			chunks++
			if !send(c) {
				drain(in)
				return
			}
		}
	}

	r.metrics.ProviderAttempt(p.Name(), "stream", streamErr)
	if streamErr == nil {
		r.logger.Info("llm.registry.stream_ok", "provider", p.Name(), "chunks", chunks)
	}
}

func drain(ch <-chan Chunk) {
	go func() {
		for range ch {
		}
	}()
}
