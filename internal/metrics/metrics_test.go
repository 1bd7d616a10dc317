package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bbsfolio/api/internal/contentsync"
)

func TestObserveLoadCountsBySource(t *testing.T) {
	m := New()
	m.ObserveLoad(contentsync.Result{Source: contentsync.SourceRemote})
	m.ObserveLoad(contentsync.Result{Source: contentsync.SourceCache})
	m.ObserveLoad(contentsync.Result{Source: contentsync.SourceDefaults, Err: errors.New("down")})

	if got := testutil.ToFloat64(m.ContentLoads.WithLabelValues("cache")); got != 1 {
		t.Fatalf("expected 1 cache load, got %v", got)
	}
	if got := testutil.ToFloat64(m.LoadErrors); got != 1 {
		t.Fatalf("expected 1 load error, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/api/sections", 200, 15*time.Millisecond)
	m.ObserveReorder("sections", true)
	m.ObserveUpload("images", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`bbsfolio_http_requests_total{method="GET",route="/api/sections",status="200"} 1`,
		`bbsfolio_reorders_total{collection="sections",written="true"} 1`,
		`bbsfolio_upload_batches_total{kind="images",outcome="ok"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
