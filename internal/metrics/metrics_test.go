package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePass(t *testing.T) {
	finished := time.Unix(1_700_000_000, 0)
	ObservePass(2*time.Second, 7, finished)

	if got := testutil.ToFloat64(Borrowers); got != 7 {
		t.Fatalf("borrowers=%v want 7", got)
	}
	if got := testutil.ToFloat64(LastPass); got != 1_700_000_000 {
		t.Fatalf("last pass=%v", got)
	}
}

func TestMiddlewareCountsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "418"))
	if after-before != 1 {
		t.Fatalf("delta=%v want 1", after-before)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	Evaluations.WithLabelValues(ResultPlan).Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `fuse_liquidator_evaluations_total{result="plan"}`) {
		t.Fatalf("metrics output missing evaluations counter")
	}
}
