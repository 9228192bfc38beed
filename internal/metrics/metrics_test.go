package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	m := New()
	if m.registry == nil {
		t.Fatal("expected a non-nil private registry")
	}
}

func TestResolveCallsCounted(t *testing.T) {
	m := New()
	m.ResolveCalls.WithLabelValues("matched").Inc()
	m.ResolveCalls.WithLabelValues("matched").Inc()
	m.ResolveCalls.WithLabelValues("no_match").Inc()

	if got := testutil.ToFloat64(m.ResolveCalls.WithLabelValues("matched")); got != 2 {
		t.Errorf("matched count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ResolveCalls.WithLabelValues("no_match")); got != 1 {
		t.Errorf("no_match count = %v, want 1", got)
	}
}

func TestFetchCallsCounted(t *testing.T) {
	m := New()
	m.FetchCalls.WithLabelValues("200").Inc()
	m.FetchCalls.WithLabelValues("404").Inc()
	m.FetchCalls.WithLabelValues("404").Inc()

	if got := testutil.ToFloat64(m.FetchCalls.WithLabelValues("404")); got != 2 {
		t.Errorf("404 count = %v, want 2", got)
	}
}

func TestFetchDurationObserves(t *testing.T) {
	m := New()
	m.FetchDuration.Observe(0.25 * float64(time.Second/time.Second))

	if got := testutil.CollectAndCount(m.FetchDuration); got != 1 {
		t.Errorf("expected 1 histogram metric family entry, got %d", got)
	}
}

func TestCacheHitsAndMisses(t *testing.T) {
	m := New()
	m.CacheHits.WithLabelValues("toc").Inc()
	m.CacheMisses.WithLabelValues("page").Inc()
	m.CacheMisses.WithLabelValues("page").Inc()

	if got := testutil.ToFloat64(m.CacheHits.WithLabelValues("toc")); got != 1 {
		t.Errorf("toc hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheMisses.WithLabelValues("page")); got != 2 {
		t.Errorf("page misses = %v, want 2", got)
	}
}

func TestAllowlistSizeGauge(t *testing.T) {
	m := New()
	m.AllowlistSize.Set(42)

	if got := testutil.ToFloat64(m.AllowlistSize); got != 42 {
		t.Errorf("AllowlistSize = %v, want 42", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.AllowlistSize.Set(7)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "procontext_allowlist_size 7") {
		t.Errorf("expected allowlist_size gauge in output, got:\n%s", rec.Body.String())
	}
}

func TestMultipleInstancesDoNotCollide(t *testing.T) {
	m1 := New()
	m2 := New()
	m1.AllowlistSize.Set(1)
	m2.AllowlistSize.Set(2)

	if got := testutil.ToFloat64(m1.AllowlistSize); got != 1 {
		t.Errorf("m1 AllowlistSize = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m2.AllowlistSize); got != 2 {
		t.Errorf("m2 AllowlistSize = %v, want 2", got)
	}
}
