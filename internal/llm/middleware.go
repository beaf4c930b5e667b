package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type purposeKey struct{}

// WithPurpose labels requests made with ctx for logs and metrics.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

// PurposeFrom returns the label set by WithPurpose, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if p, ok := ctx.Value(purposeKey{}).(string); ok {
		return p
	}
	return "unknown"
}

type timeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout bounds every Generate call. A request that runs out of time
// fails with ErrProviderUnavailable wrapping context.DeadlineExceeded.
// There is no retry.
func WithTimeout(p Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutProvider{inner: p, timeout: timeout}
}

func (t *timeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := t.inner.Generate(ctx, req)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		var unavailable *ErrProviderUnavailable
		if r.err != nil && ctx.Err() != nil && !errors.As(r.err, &unavailable) {
			return nil, &ErrProviderUnavailable{Err: r.err}
		}
		return r.resp, r.err
	case <-ctx.Done():
		return nil, &ErrProviderUnavailable{Err: ctx.Err()}
	}
}

func (t *timeoutProvider) ModelID() string { return t.inner.ModelID() }

type loggingProvider struct {
	inner  Provider
	logger *zap.Logger
}

// WithLogging logs every request with its purpose, latency and token usage.
func WithLogging(p Provider, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &loggingProvider{inner: p, logger: logger.Named("llm")}
}

func (l *loggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)

	fields := []zap.Field{
		zap.String("purpose", PurposeFrom(ctx)),
		zap.String("model", l.inner.ModelID()),
		zap.Duration("latency", time.Since(start)),
	}
	if req.Schema != nil {
		fields = append(fields, zap.String("schema", req.Schema.Name))
	}
	if err != nil {
		var invalid *ErrInvalidResponse
		if errors.As(err, &invalid) {
			fields = append(fields, zap.ByteString("content", invalid.Content))
		}
		l.logger.Warn("generation failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	l.logger.Debug("generation done", append(fields,
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.String("stop_reason", resp.StopReason),
	)...)
	return resp, nil
}

func (l *loggingProvider) ModelID() string { return l.inner.ModelID() }
