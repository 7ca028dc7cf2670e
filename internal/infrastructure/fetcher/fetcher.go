package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"UnionWins/internal/ports"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultBackoff      = time.Second
	defaultMaxBodyBytes = 5 << 20
	fallbackUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// HTTPError reports a non-2xx response that was not retried into success.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// Options tunes politeness and retry behaviour.
type Options struct {
	Timeout      time.Duration
	MaxRetries   int
	Backoff      time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration
	UserAgents   []string
	MaxBodyBytes int64
}

// Fetcher downloads pages the way a browser would, slowly and with retries.
type Fetcher struct {
	client   *http.Client
	insecure *http.Client
	opts     Options
	logger   *slog.Logger
}

var _ ports.PageFetcher = (*Fetcher)(nil)

// New builds a Fetcher. Zero options fall back to sane defaults.
func New(opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = []string{fallbackUserAgent}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // single fallback after a verification failure

	return &Fetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		insecure: &http.Client{Timeout: opts.Timeout, Transport: insecureTransport},
		opts:     opts,
		logger:   logger.With("component", "fetcher"),
	}
}

// Fetch returns the body of url. Certificate verification failures are retried
// once without verification before giving up.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := f.fetchWithRetry(ctx, f.client, url)
	if err == nil || !isCertificateError(err) {
		return body, err
	}

	f.logger.Warn("certificate verification failed, retrying without verification", "url", url, "error", err)
	body, err = f.fetchWithRetry(ctx, f.insecure, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s without tls verification: %w", url, err)
	}
	return body, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.opts.Backoff * time.Duration(1<<uint(attempt-1))
			f.logger.Debug("retrying fetch", "url", url, "attempt", attempt, "backoff", backoff, "error", lastErr)
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
		if err := sleep(ctx, f.politeDelay()); err != nil {
			return nil, err
		}

		body, err := f.fetchOnce(ctx, client, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exceeded %d retries: %w", f.opts.MaxRetries, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (f *Fetcher) userAgent() string {
	return f.opts.UserAgents[rand.IntN(len(f.opts.UserAgents))]
}

func (f *Fetcher) politeDelay() time.Duration {
	spread := f.opts.MaxDelay - f.opts.MinDelay
	if spread <= 0 {
		return f.opts.MinDelay
	}
	return f.opts.MinDelay + rand.N(spread)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return !isCertificateError(err)
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var authorityErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
