package metrics

import (
	"errors"
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
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
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

func TestObserveFetch(t *testing.T) {
	before := testutil.ToFloat64(fetchesTotal.WithLabelValues("fetch.test", "ok"))
	beforeBytes := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("fetch.test"))

	ObserveFetch("https://fetch.test/recipe", "ok", 512, 20*time.Millisecond)
	ObserveFetch("https://fetch.test/missing", "status", 0, 0)

	if got := testutil.ToFloat64(fetchesTotal.WithLabelValues("fetch.test", "ok")) - before; got != 1 {
		t.Errorf("expected one ok fetch, got %f", got)
	}
	if got := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("fetch.test")) - beforeBytes; got != 512 {
		t.Errorf("expected 512 bytes, got %f", got)
	}
	if got := testutil.ToFloat64(fetchesTotal.WithLabelValues("fetch.test", "status")); got < 1 {
		t.Errorf("expected status failure to be counted, got %f", got)
	}
}

func TestObservePersistChunk(t *testing.T) {
	before := testutil.ToFloat64(rowsInsertedTotal.WithLabelValues("recipes"))

	ObservePersistChunk("persist_test", nil, 3, 10, 8, 2, 1)
	ObservePersistChunk("persist_test", errors.New("boom"), 5, 5, 5, 5, 5)

	if got := testutil.ToFloat64(persistChunksTotal.WithLabelValues("persist_test", "committed")); got != 1 {
		t.Errorf("expected one committed chunk, got %f", got)
	}
	if got := testutil.ToFloat64(persistChunksTotal.WithLabelValues("persist_test", "rolled_back")); got != 1 {
		t.Errorf("expected one rolled back chunk, got %f", got)
	}
	if got := testutil.ToFloat64(rowsInsertedTotal.WithLabelValues("recipes")) - before; got != 3 {
		t.Errorf("expected rolled back rows to be ignored, got %f", got)
	}
}

func TestActiveBatches(t *testing.T) {
	before := testutil.ToFloat64(activeBatches)
	IncActiveBatches()
	if got := testutil.ToFloat64(activeBatches) - before; got != 1 {
		t.Errorf("expected gauge to rise by 1, got %f", got)
	}
	DecActiveBatches()
	if got := testutil.ToFloat64(activeBatches); got != before {
		t.Errorf("expected gauge back to %f, got %f", before, got)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned empty string", orig)
		}
	})
}
