// Package collyfetcher implements the rate-shaped movie.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/identity"
	"github.com/JakeFAU/affiche/internal/metrics"
	"github.com/JakeFAU/affiche/internal/movie"
)

const defaultTimeout = 15 * time.Second

// Waiter paces requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
	// Limiter is optional.
	Limiter Waiter
}

// Fetcher performs one delayed GET per call with a rotated proxy and user agent.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

var _ movie.Fetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(nil),
		logger:    logger.Named("fetcher"),
	}
}

// Fetch sleeps a random delay, then issues the GET. Non-2xx responses become *movie.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, request movie.FetchRequest) (movie.FetchResponse, error) {
	target, err := withParams(request.URL, request.Params)
	if err != nil {
		metrics.ObserveFetch(request.URL, "error")
		return movie.FetchResponse{}, err
	}

	delay := pickDelay(request.MinDelay, request.MaxDelay)
	metrics.ObserveFetchDelay(delay)
	if err := sleep(ctx, delay); err != nil {
		return movie.FetchResponse{}, err
	}
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, target); err != nil {
			return movie.FetchResponse{}, err
		}
	}

	proxy := identity.Pick(request.Pools.Proxies)
	agent := identity.Pick(request.Pools.UserAgents)
	collector, err := f.buildCollector(ctx, proxy)
	if err != nil {
		metrics.ObserveFetch(target, "error")
		return movie.FetchResponse{}, err
	}

	var (
		result   movie.FetchResponse
		fetchErr error
	)
	start := time.Now()
	f.configureCollectorHooks(collector, agent, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		metrics.ObserveFetch(target, "error")
		f.logger.Debug("fetch failed", zap.String("url", target), zap.String("proxy", proxy), zap.Error(err))
		return movie.FetchResponse{}, err
	}
	result.Proxy = proxy
	result.UserAgent = agent
	if result.StatusCode < 200 || result.StatusCode > 299 {
		metrics.ObserveFetch(target, "status")
		return movie.FetchResponse{}, &movie.StatusError{URL: target, StatusCode: result.StatusCode}
	}
	metrics.ObserveFetch(target, "ok")
	f.logger.Debug("fetched",
		zap.String("url", target),
		zap.Int("status", result.StatusCode),
		zap.Duration("duration", result.Duration),
		zap.Duration("delay", delay),
	)
	return result, nil
}

// buildCollector creates a fresh collector per call: clones share the
// underlying http.Client, so per-call proxies cannot be set on a clone.
func (f *Fetcher) buildCollector(ctx context.Context, proxy string) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	if proxy == "" {
		collector.WithTransport(f.transport)
		return collector, nil
	}
	proxyURL, err := parseProxy(proxy)
	if err != nil {
		return nil, err
	}
	collector.WithTransport(newHTTPTransport(proxyURL))
	return collector, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	agent string,
	start time.Time,
	result *movie.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if agent != "" {
			r.Headers.Set("User-Agent", agent)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = movie.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func withParams(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	query := u.Query()
	for key, values := range params {
		query[key] = append([]string(nil), values...)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func parseProxy(addr string) (*url.URL, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", addr, err)
	}
	return u, nil
}

// pickDelay returns a uniform duration in [minDelay, maxDelay), or minDelay when the range is empty.
func pickDelay(minDelay, maxDelay time.Duration) time.Duration {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay <= minDelay {
		return minDelay
	}
	return minDelay + rand.N(maxDelay-minDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fetch delay canceled: %w", err)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch delay canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// newHTTPTransport returns the shared transport, or a single-use one routed through proxy.
func newHTTPTransport(proxy *url.URL) *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
		transport.DisableKeepAlives = true
	}
	return transport
}
