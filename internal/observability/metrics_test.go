package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealdesk/internal/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record one sample so counters are non-zero
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveReview("approved")

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	if !strings.Contains(out, "dealdesk_http_requests_total") {
		t.Fatalf("expected dealdesk_http_requests_total in output")
	}
	if !strings.Contains(out, "dealdesk_review_outcomes_total") {
		t.Fatalf("expected dealdesk_review_outcomes_total in output")
	}
}

// TestServeExposesApplicationMetrics scrapes the sidecar listener Serve
// starts, not a handler built by the test, so it fails if Serve ever falls
// back to the default registry again.
func TestServeExposesApplicationMetrics(t *testing.T) {
	reg := observability.InitRegistry()
	observability.ObserveReview("rejected")
	observability.ObserveExternal("llm", "chat_completions", 200, 30*time.Millisecond)

	addr := "127.0.0.1:19719"
	observability.Serve(addr, reg)

	url := "http://" + addr + "/metrics"
	deadline := time.Now().Add(5 * time.Second)
	var out string
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			t.Fatalf("read metrics body: %v", readErr)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("metrics status: %d", resp.StatusCode)
		}
		out = string(body)
		break
	}
	if out == "" {
		t.Fatalf("metrics listener %s never came up", addr)
	}
	if !strings.Contains(out, "dealdesk_review_outcomes_total") {
		t.Fatalf("expected dealdesk_review_outcomes_total in scraped output")
	}
	if !strings.Contains(out, "dealdesk_external_requests_total") {
		t.Fatalf("expected dealdesk_external_requests_total in scraped output")
	}
}
