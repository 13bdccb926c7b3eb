package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dynwatch/dynwatch/internal/check"
	"github.com/dynwatch/dynwatch/internal/checkdef"
	"github.com/dynwatch/dynwatch/internal/clock"
	"github.com/dynwatch/dynwatch/internal/dynect"
	"github.com/dynwatch/dynwatch/internal/metrics"
	"github.com/dynwatch/dynwatch/internal/scheduler"
)

// stubSession serves a fixed report without touching the network.
type stubSession struct {
	csv string
}

func (c *stubSession) Authenticate(ctx context.Context) (string, error) {
	return "stub-token", nil
}

func (c *stubSession) FetchReport(ctx context.Context, token string, window dynect.Window) (*dynect.Report, error) {
	body, _ := json.Marshal(map[string]any{
		"status": "success",
		"data":   map[string]string{"csv": c.csv},
	})
	return &dynect.Report{Body: body}, nil
}

func (c *stubSession) Terminate(ctx context.Context, token string) error {
	return nil
}

// stubCSV yields per-interval rates 1..10 once the artifact row is dropped.
func stubCSV() string {
	rows := []string{"1469836800,0"}
	for i := 1; i <= 10; i++ {
		rows = append(rows, fmt.Sprintf("%d,%d", 1469836800+300*i, 300*i))
	}
	return strings.Join(rows, "\n")
}

func setupTestServer(t *testing.T) (*Server, *scheduler.Scheduler) {
	t.Helper()

	def := &checkdef.Check{
		APIVersion: "dynwatch/v1",
		Kind:       "QPSCheck",
		Metadata:   checkdef.Metadata{ID: "test-check", Description: "query rate guard"},
		Spec: checkdef.Spec{
			Customer:    "acme",
			Username:    "monitor",
			Password:    "hunter2",
			PasswordEnv: "DYN_PASSWORD",
			Period:      "day",
			Thresholds:  checkdef.Thresholds{Warning: 8, Critical: 9},
		},
	}

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	runner := check.NewRunner(&stubSession{csv: stubCSV()}, fake, zerolog.Nop(), collector)

	sched := scheduler.NewScheduler(zerolog.Nop())
	sched.SetEntries([]scheduler.Entry{{Def: def, Runner: runner}})

	server := NewServer(sched, registry, ":0", zerolog.Nop())
	return server, sched
}

func doRequest(t *testing.T, server *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, "GET", "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status=ok, got %s", resp.Status)
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready after a recorded run", func(t *testing.T) {
		server, sched := setupTestServer(t)
		if err := sched.RunNow(context.Background(), "test-check"); err != nil {
			t.Fatalf("RunNow: %v", err)
		}

		w := doRequest(t, server, "GET", "/readyz")
		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}

		var resp ReadyResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !resp.Ready {
			t.Error("expected ready=true")
		}
		if resp.ChecksLoaded != 1 {
			t.Errorf("expected checksLoaded=1, got %d", resp.ChecksLoaded)
		}
	})

	t.Run("not ready before the first run", func(t *testing.T) {
		server, _ := setupTestServer(t)

		w := doRequest(t, server, "GET", "/readyz")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}

		var resp ReadyResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Ready {
			t.Error("expected ready=false with nothing cached yet")
		}
		if resp.ChecksLoaded != 1 {
			t.Errorf("expected checksLoaded=1, got %d", resp.ChecksLoaded)
		}
		found := false
		for _, reason := range resp.Reasons {
			if reason == "no runs recorded yet" {
				found = true
			}
		}
		if !found {
			t.Errorf("reasons = %v, want a no-runs-recorded entry", resp.Reasons)
		}
	})

	t.Run("not ready without checks", func(t *testing.T) {
		sched := scheduler.NewScheduler(zerolog.Nop())
		server := NewServer(sched, prometheus.NewRegistry(), ":0", zerolog.Nop())

		w := doRequest(t, server, "GET", "/readyz")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}

		var resp ReadyResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Ready {
			t.Error("expected ready=false")
		}
		if len(resp.Reasons) == 0 {
			t.Error("expected reasons to be present")
		}
	})
}

func TestCheckListEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, "GET", "/v1/checks")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if strings.Contains(body, "hunter2") {
		t.Error("response leaks the check password")
	}

	var resp CheckListResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Checks) != 1 {
		t.Fatalf("expected 1 check, got %d", len(resp.Checks))
	}

	summary := resp.Checks[0]
	if summary.ID != "test-check" {
		t.Errorf("expected id=test-check, got %s", summary.ID)
	}
	if summary.Warning != 8 || summary.Critical != 9 {
		t.Errorf("thresholds = %v/%v, want 8/9", summary.Warning, summary.Critical)
	}
	if summary.Period != "day" {
		t.Errorf("expected period=day, got %s", summary.Period)
	}
}

func TestCheckGetEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, "GET", "/v1/checks/test-check")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if strings.Contains(body, "hunter2") {
		t.Error("response leaks the check password")
	}

	var resp CheckDetail
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "test-check" {
		t.Errorf("expected id=test-check, got %s", resp.ID)
	}
	if resp.Customer != "acme" || resp.Username != "monitor" {
		t.Errorf("credentials = %s/%s", resp.Customer, resp.Username)
	}
	if resp.PasswordEnv != "DYN_PASSWORD" {
		t.Errorf("expected passwordEnv=DYN_PASSWORD, got %s", resp.PasswordEnv)
	}
	if resp.MaxRetries != checkdef.DefaultMaxRetries {
		t.Errorf("expected default maxRetries, got %d", resp.MaxRetries)
	}

	w = doRequest(t, server, "GET", "/v1/checks/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestStatusEndpoints(t *testing.T) {
	server, sched := setupTestServer(t)

	// Nothing recorded yet
	w := doRequest(t, server, "GET", "/v1/status/test-check")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 before any run, got %d", w.Code)
	}

	w = doRequest(t, server, "GET", "/v1/status")
	var list StatusListResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Statuses) != 0 {
		t.Errorf("expected empty status list, got %d", len(list.Statuses))
	}

	// Populate the cache directly
	sched.GetCache().Set("test-check", &scheduler.CheckState{
		Result: &check.Result{
			RunID:   "run-1",
			CheckID: "test-check",
			P95:     9.55,
			Samples: 10,
			Window:  dynect.Window{Start: 100, End: 200},
		},
		Status:    check.StatusCritical,
		Message:   "p95 query rate 9.55 qps >= critical threshold 9.00 qps",
		UpdatedAt: time.Now().Add(-1 * time.Minute),
		TTL:       30 * time.Second,
	})

	w = doRequest(t, server, "GET", "/v1/status/test-check")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "CRITICAL" {
		t.Errorf("expected status=CRITICAL, got %s", resp.Status)
	}
	if resp.P95 != 9.55 {
		t.Errorf("expected p95=9.55, got %v", resp.P95)
	}
	if resp.Samples != 10 {
		t.Errorf("expected samples=10, got %d", resp.Samples)
	}
	if resp.WindowStart != 100 || resp.WindowEnd != 200 {
		t.Errorf("window = %d..%d, want 100..200", resp.WindowStart, resp.WindowEnd)
	}
	if !resp.Stale {
		t.Error("expected stale=true for a state past its TTL")
	}

	w = doRequest(t, server, "GET", "/v1/status")
	list = StatusListResponse{}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Statuses) != 1 {
		t.Errorf("expected 1 status, got %d", len(list.Statuses))
	}
}

func TestRunNowEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, "POST", "/v1/checks/test-check/run")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "CRITICAL" {
		t.Errorf("expected status=CRITICAL, got %s", resp.Status)
	}
	if math.Abs(resp.P95-9.55) > 1e-9 {
		t.Errorf("expected p95=9.55, got %v", resp.P95)
	}
	if resp.RunID == "" {
		t.Error("expected a run id")
	}

	w = doRequest(t, server, "POST", "/v1/checks/nope/run")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	// Record a run so the collector has series to expose
	w := doRequest(t, server, "POST", "/v1/checks/test-check/run")
	if w.Code != http.StatusOK {
		t.Fatalf("run failed: %d", w.Code)
	}

	w = doRequest(t, server, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, family := range []string{
		"dynwatch_check_runs_total",
		"dynwatch_check_duration_seconds",
		"dynwatch_p95_qps",
	} {
		if !strings.Contains(body, family) {
			t.Errorf("metrics output missing %s", family)
		}
	}
}
