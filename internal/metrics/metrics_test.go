package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveJobCountsSavedOnlyOnSuccess(t *testing.T) {
	ObserveJob("image", "success", 1000, 400)
	ObserveJob("image", "skipped", 500, 500)

	if got := testutil.ToFloat64(bytesTotal.WithLabelValues("image", "saved")); got != 600 {
		t.Errorf("saved = %v, want 600", got)
	}
	if got := testutil.ToFloat64(bytesTotal.WithLabelValues("image", "in")); got != 1500 {
		t.Errorf("in = %v, want 1500", got)
	}
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("image", "skipped")); got != 1 {
		t.Errorf("skipped jobs = %v", got)
	}
}

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	Init()
	Init()
	IncRoute("vector")
	done := TrackActive("pdf")
	done()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "docshrink_page_routes_total") {
		t.Error("route counter missing from /metrics output")
	}
}
