package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, collector *Collector) string {
	t.Helper()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	instrumented := collector.InstrumentHandler(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/automation", nil)
	rr := httptest.NewRecorder()

	instrumented.ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `statsync_http_requests_total{method="POST",path="/api/automation",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}

	if !strings.Contains(body, `statsync_http_request_duration_seconds_count{method="POST",path="/api/automation",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorRecordsSyncMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.ObserveAccount("")
	collector.ObserveAccount("")
	collector.ObserveAccount("transient")
	collector.ObserveCycle("schedule", "success", 3*time.Second, time.Unix(1700000000, 0))
	collector.SetInactive(4)
	collector.SkippedTick()

	body := scrape(t, collector)

	expected := []string{
		`statsync_sync_accounts_total{kind="none",outcome="success"} 2`,
		`statsync_sync_accounts_total{kind="transient",outcome="failure"} 1`,
		`statsync_sync_cycles_total{result="success",trigger="schedule"} 1`,
		`statsync_sync_cycle_duration_seconds_count{trigger="schedule"} 1`,
		`statsync_sync_inactive_accounts 4`,
		`statsync_sync_last_cycle_timestamp_seconds 1.7e+09`,
		`statsync_sync_skipped_ticks_total 1`,
	}
	for _, want := range expected {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in metrics output", want)
		}
	}
}
