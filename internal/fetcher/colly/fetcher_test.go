package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/affiche/internal/movie"
)

func TestFetchSendsUserAgentAndParams(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		agent string
		query url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agent = r.UserAgent()
		query = r.URL.Query()
		mu.Unlock()
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second}, nil)
	resp, err := f.Fetch(context.Background(), movie.FetchRequest{
		URL:    srv.URL + "/index.php",
		Params: url.Values{"first": {"no"}, "what": {""}, "kp_query": {"Дюна"}},
		Pools:  movie.Pools{UserAgents: []string{"agent-x"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>ok</html>", string(resp.Body))
	require.Equal(t, "agent-x", resp.UserAgent)
	require.Empty(t, resp.Proxy)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "agent-x", agent)
	require.Equal(t, "Дюна", query.Get("kp_query"))
	require.Equal(t, "no", query.Get("first"))
	require.True(t, query.Has("what"))
}

func TestFetchNon2xxIsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{}, nil).Fetch(context.Background(), movie.FetchRequest{URL: srv.URL})
	var statusErr *movie.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestFetchRoutesThroughProxy(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		proxied string
	)
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		proxied = r.URL.String()
		mu.Unlock()
		_, _ = w.Write([]byte("via proxy"))
	}))
	t.Cleanup(proxy.Close)

	resp, err := New(Config{}, nil).Fetch(context.Background(), movie.FetchRequest{
		URL:   "http://catalog.invalid/search",
		Pools: movie.Pools{Proxies: []string{strings.TrimPrefix(proxy.URL, "http://")}},
	})
	require.NoError(t, err)
	require.Equal(t, "via proxy", string(resp.Body))
	require.Equal(t, strings.TrimPrefix(proxy.URL, "http://"), resp.Proxy)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "http://catalog.invalid/search", proxied)
}

func TestFetchTransportErrorIsWrapped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}, nil).Fetch(context.Background(), movie.FetchRequest{URL: addr})
	require.Error(t, err)
	var statusErr *movie.StatusError
	require.False(t, errors.As(err, &statusErr))
}

func TestFetchWaitsForDelay(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	start := time.Now()
	_, err := New(Config{}, nil).Fetch(context.Background(), movie.FetchRequest{
		URL:      srv.URL,
		MinDelay: 40 * time.Millisecond,
		MaxDelay: 40 * time.Millisecond,
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestFetchCanceledDuringDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := New(Config{}, nil).Fetch(ctx, movie.FetchRequest{
		URL:      "http://unused.invalid/",
		MinDelay: time.Second,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type recordingWaiter struct {
	mu   sync.Mutex
	urls []string
}

func (w *recordingWaiter) Wait(_ context.Context, rawURL string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.urls = append(w.urls, rawURL)
	return nil
}

func TestFetchConsultsLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	waiter := &recordingWaiter{}
	_, err := New(Config{Limiter: waiter}, nil).Fetch(context.Background(), movie.FetchRequest{
		URL:    srv.URL + "/page",
		Params: url.Values{"q": {"1"}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL + "/page?q=1"}, waiter.urls)
}

func TestPickDelay(t *testing.T) {
	t.Parallel()

	require.Equal(t, 5*time.Millisecond, pickDelay(5*time.Millisecond, time.Millisecond))
	require.Equal(t, time.Duration(0), pickDelay(0, 0))
	for range 200 {
		d := pickDelay(10*time.Millisecond, 20*time.Millisecond)
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.Less(t, d, 20*time.Millisecond)
	}
}

func TestParseProxy(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"1.2.3.4:8080":        "http://1.2.3.4:8080",
		"socks5://10.0.0.1:1": "socks5://10.0.0.1:1",
	}
	for in, want := range cases {
		got, err := parseProxy(in)
		if err != nil {
			t.Fatalf("parseProxy(%q) error = %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("parseProxy(%q) = %q, want %q", in, got.String(), want)
		}
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	var (
		result   movie.FetchResponse
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "agent-y", time.Now(), &result, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("User-Agent") != "agent-y" {
		t.Fatalf("expected user agent header, got %+v", collyReq.Headers)
	}

	target, _ := url.Parse("https://example.com")
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: target},
	})
	if result.StatusCode != http.StatusCreated || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}

	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
