package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"listing page", "https://www.afisha.ru/msk/schedule_cinema/", "www.afisha.ru"},
		{"mixed case", "https://WWW.Kinopoisk.ru/index.php", "www.kinopoisk.ru"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchTotal == nil || cacheRequestsTotal == nil || poolTasksTotal == nil || stageDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCounters(t *testing.T) {
	ObserveFetch("https://metrics-test.example/page", "ok")
	if val := testutil.ToFloat64(fetchTotal.WithLabelValues("metrics-test.example", "ok")); val != 1 {
		t.Errorf("expected fetch counter 1, got %f", val)
	}

	ObserveCache("metrics_test_op", "hit")
	ObserveCache("metrics_test_op", "hit")
	if val := testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("metrics_test_op", "hit")); val != 2 {
		t.Errorf("expected cache hit counter 2, got %f", val)
	}

	IncActiveWorkers()
	before := testutil.ToFloat64(poolActiveWorkers)
	DecActiveWorkers()
	if after := testutil.ToFloat64(poolActiveWorkers); after != before-1 {
		t.Errorf("expected gauge to drop by one, got %f -> %f", before, after)
	}

	ObserveStage("metrics_test_stage", 250*time.Millisecond)
	if n := testutil.CollectAndCount(stageDurationSeconds); n == 0 {
		t.Error("expected stage histogram to be collected")
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://afisha.ru", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
