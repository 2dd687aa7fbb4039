package restyutil

import (
	"context"
	"crypto/tls"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/cookiejar"
	"pmcautomation/internal/components/telemetry"
	"slices"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	DefaultRetryCount = 10
	DefaultBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff = 2 * time.Minute
	DefaultTimeout    = time.Minute
)

// DefaultRetryStatuses are the statuses a request is retried on.
var DefaultRetryStatuses = []int{500, 502, 503, 504}

type Options struct {
	BaseUrl string
	// RetryCount is the number of retries after the first attempt.
	RetryCount int
	// Backoff is the backoff factor, the n-th retry waits Backoff * 2^(n-1)
	// capped at MaxBackoff.
	Backoff       time.Duration
	MaxBackoff    time.Duration
	RetryStatuses []int
	Timeout       time.Duration
	// LegacyTLS allows servers that still ask for tls renegotiation.
	LegacyTLS bool
	// RateLimit is the maximum requests per second, 0 means unlimited.
	RateLimit rate.Limit
	UserAgent string
	// TracerName names the tracer requests are recorded with.
	TracerName string
	// Output receives a dump of every request/response pair when debug
	// logging is enabled, it may be nil.
	Output MessageOutput
}

// DefaultOptions returns the retry policy every data source client uses.
func DefaultOptions() Options {
	return Options{
		RetryCount:    DefaultRetryCount,
		Backoff:       DefaultBackoff,
		MaxBackoff:    DefaultMaxBackoff,
		RetryStatuses: DefaultRetryStatuses,
		Timeout:       DefaultTimeout,
		LegacyTLS:     true,
		UserAgent:     "pmcautomation",
		TracerName:    "pmcautomation/http",
	}
}

// BackoffSchedule returns how long to wait before retrying after `attempt`
// failed attempts.
func BackoffSchedule(factor, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := float64(factor) * math.Pow(2, float64(attempt-1))
	if max > 0 && wait > float64(max) {
		return max
	}
	return time.Duration(wait)
}

// idempotentMethods may be sent again after the server saw them.
var idempotentMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPut,
	http.MethodDelete, http.MethodOptions, http.MethodTrace,
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// retryCondition retries connection failures and the given statuses. POST and
// PATCH requests are only retried when they never reached the server, a
// status means the server may have acted on them already.
func retryCondition(statuses []int) resty.RetryConditionFunc {
	return func(res *resty.Response, err error) bool {
		idempotent := res == nil || res.Request == nil ||
			slices.Contains(idempotentMethods, res.Request.Method)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			return idempotent || isDialError(err)
		}
		if res == nil || !idempotent {
			return false
		}
		return slices.Contains(statuses, res.StatusCode())
	}
}

// New creates a resty client configured with the retry policy, tls settings,
// rate limit and instrumentation of `opts`.
func New(opts Options, tel telemetry.API) (*resty.Client, error) {
	client := resty.New()
	if opts.BaseUrl != "" {
		client.SetBaseURL(opts.BaseUrl)
	}
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)

	if opts.LegacyTLS {
		client.SetTLSClientConfig(&tls.Config{
			Renegotiation: tls.RenegotiateFreelyAsClient,
		})
	}

	if opts.RetryCount > 0 {
		statuses := opts.RetryStatuses
		if statuses == nil {
			statuses = DefaultRetryStatuses
		}
		if opts.MaxBackoff <= 0 {
			opts.MaxBackoff = DefaultMaxBackoff
		}
		client.
			SetRetryCount(opts.RetryCount).
			SetRetryWaitTime(opts.Backoff).
			SetRetryMaxWaitTime(opts.MaxBackoff).
			SetRetryAfter(func(_ *resty.Client, res *resty.Response) (time.Duration, error) {
				return BackoffSchedule(opts.Backoff, opts.MaxBackoff, res.Request.Attempt), nil
			}).
			AddRetryCondition(retryCondition(statuses))
	}

	if opts.RateLimit > 0 {
		// max burst of 1 spaces out requests evenly instead of letting a batch through at once
		rateLimiter := rate.NewLimiter(opts.RateLimit, 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	tracerName := opts.TracerName
	if tracerName == "" {
		tracerName = "pmcautomation/http"
	}
	telemetry.InstrumentResty(client, tel, tracerName)
	if opts.Output != nil {
		DumpMessages(client, opts.Output)
	}

	return client, nil
}
