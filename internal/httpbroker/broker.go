// Package httpbroker is the process-wide, pooled HTTPS client exposed
// to plugin code as a capability. Grounded on the donor's
// internal/scheduler/executor.go webhook client, generalized from a
// single fixed-timeout caller into the authority-keyed, semaphore
// bounded, retrying broker SPEC_FULL.md §4.6 describes.
package httpbroker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/relaygrid/octabot/internal/requestid"
)

const (
	// MaxConnections bounds process-wide concurrent outbound requests.
	MaxConnections = 50
	// MaxRetries bounds liveness-probe retries on transport failure.
	MaxRetries = 2
	// IdleAgeLimit bounds how long a pooled connection may sit idle (the
	// transport's IdleConnTimeout). TotalAgeLimit is not applied to the
	// transport: a pooled connection's total lifetime is not capped.
	IdleAgeLimit  = 60 * time.Second
	TotalAgeLimit = 5 * time.Minute

	userAgent = "Octabot"
)

// Timeouts carries the per-request timeouts a caller supplies; the
// broker has no defaults of its own.
type Timeouts struct {
	Connect        time.Duration
	FirstByte      time.Duration
	BetweenBytes   time.Duration
}

// Request is one outbound call through the broker.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    io.Reader
	Timeouts Timeouts
}

// Response is the result of a successful round trip.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Broker is the process-wide connection pool. One Broker is created at
// host init and injected into every plugin's capability table; it is
// never accessed through a package-level global.
type Broker struct {
	client *http.Client
	sem    *semaphore.Weighted
	logger *slog.Logger

	onPoolChange func(delta int)
}

// NewBroker constructs a Broker with TLS roots from the system pool plus
// any certificates found in certsDir (see certs.go). onPoolChange, if
// non-nil, is invoked with +1/-1 as semaphore permits are acquired and
// released — wired to the broker_pool_in_use gauge by callers.
func NewBroker(logger *slog.Logger, certsDir string, onPoolChange func(delta int)) (*Broker, error) {
	rootCAs, err := buildRootCAs(certsDir)
	if err != nil {
		return nil, fmt.Errorf("build root CAs: %w", err)
	}

	return &Broker{
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
					RootCAs:    rootCAs,
				},
				MaxIdleConns:        MaxConnections,
				MaxIdleConnsPerHost: MaxConnections,
				IdleConnTimeout:     IdleAgeLimit,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		sem:          semaphore.NewWeighted(MaxConnections),
		logger:       logger.With("component", "httpbroker"),
		onPoolChange: onPoolChange,
	}, nil
}

// Do performs req, retrying via a liveness probe on transport failure,
// per SPEC_FULL.md §4.6.
func (b *Broker) Do(ctx context.Context, req Request) (*Response, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire connection permit: %w", err)
	}
	if b.onPoolChange != nil {
		b.onPoolChange(1)
	}
	defer func() {
		b.sem.Release(1)
		if b.onPoolChange != nil {
			b.onPoolChange(-1)
		}
	}()

	start := time.Now()
	resp, err := b.doOnce(ctx, req)
	if err == nil {
		return resp, nil
	}

	authority, parseErr := authorityOf(req.URL)
	if parseErr != nil {
		authority = "unknown"
	}

	var lastErr = err
	for attempt := 0; attempt < MaxRetries; attempt++ {
		backoff := 100 * time.Millisecond * (1 << attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		b.logger.WarnContext(ctx, "retrying via liveness probe",
			"authority", authority, "attempt", attempt+1, "error", lastErr)

		if probeErr := b.probe(ctx, authority); probeErr != nil {
			lastErr = probeErr
			continue
		}

		// Probe succeeded: the authority is reachable again, but per
		// SPEC_FULL.md §4.6 the original (possibly non-idempotent)
		// request is not reissued. The caller receives the probe's
		// liveness confirmation as a successful, empty response.
		return &Response{StatusCode: http.StatusOK, Duration: time.Since(start)}, nil
	}

	return nil, fmt.Errorf("request to %s failed after %d retries: %w", authority, MaxRetries, lastErr)
}

func (b *Broker) doOnce(ctx context.Context, r Request) (*Response, error) {
	start := time.Now()

	connectCtx := ctx
	if r.Timeouts.Connect > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, r.Timeouts.Connect+r.Timeouts.FirstByte+r.Timeouts.BetweenBytes)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(connectCtx, r.Method, r.URL, r.Body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range r.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", userAgent)
	}

	reqID := requestid.New()
	httpReq.Header.Set("X-Request-ID", reqID)
	connectCtx = requestid.WithRequestID(connectCtx, reqID)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if dnsErr, ok := AsDnsError(err); ok {
			return nil, dnsErr
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body, Duration: time.Since(start)}, nil
}

// probe issues an empty GET / against authority purely to test
// liveness; its role is never to substitute for the caller's request.
func (b *Broker) probe(ctx context.Context, authority string) error {
	probeReq, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+authority+"/", nil)
	if err != nil {
		return err
	}
	probeReq.Header.Set("User-Agent", userAgent)

	resp, err := b.client.Do(probeReq)
	if err != nil {
		if dnsErr, ok := AsDnsError(err); ok {
			return dnsErr
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
