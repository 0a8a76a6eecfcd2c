// HTTP client used for outbound calls to the platform bridge and webhooks.
package robusthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Adapts slog to retryablehttp's leveled logger. Intermediate failures are retried, so errors are logged as warnings.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Error(msg string, kv ...any) { a.logger.Warn(msg, kv...) }
func (a slogAdapter) Warn(msg string, kv ...any) { a.logger.Warn(msg, kv...) }
func (a slogAdapter) Info(msg string, kv ...any) { a.logger.Debug(msg, kv...) }
func (a slogAdapter) Debug(msg string, kv ...any) { a.logger.Debug(msg, kv...) }

type Options struct {
	// retries after the first attempt
	MaxRetries int
	WaitMin    time.Duration
	WaitMax    time.Duration
	// overall deadline for a request, including retries
	Timeout time.Duration
	Logger  *slog.Logger
	// defaults to a pooled transport instrumented with otel
	Transport http.RoundTripper
}

// Moderation actions are latency sensitive: few, short retries.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 2,
		WaitMin:    200 * time.Millisecond,
		WaitMax:    2 * time.Second,
		Timeout:    10 * time.Second,
	}
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

func WithTransport(t http.RoundTripper) Option {
	return func(o *Options) { o.Transport = t }
}

// Backoff bounds between attempts.
func WithWait(lo, hi time.Duration) Option {
	return func(o *Options) {
		o.WaitMin = lo
		o.WaitMax = hi
	}
}

// Returns a stdlib *http.Client which retries connection errors and 5xx responses (except 501) internally.
func NewClient(opts ...Option) *http.Client {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Transport == nil {
		o.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Transport = o.Transport
	rc.RetryMax = o.MaxRetries
	rc.RetryWaitMin = o.WaitMin
	rc.RetryWaitMax = o.WaitMax
	rc.Logger = retryablehttp.LeveledLogger(slogAdapter{logger: o.Logger.With("component", "robusthttp")})
	rc.CheckRetry = RetryPolicy

	client := rc.StandardClient()
	client.Timeout = o.Timeout
	return client
}

// Like retryablehttp.DefaultRetryPolicy, but 429 is final: callers run their own rate limiter, and a delayed moderation action is worth little.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
