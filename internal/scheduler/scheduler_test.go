package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dynwatch/dynwatch/internal/check"
	"github.com/dynwatch/dynwatch/internal/checkdef"
	"github.com/dynwatch/dynwatch/internal/clock"
	"github.com/dynwatch/dynwatch/internal/dynect"
)

// stubSession is an in-memory SessionClient serving a fixed report.
type stubSession struct {
	mu       sync.Mutex
	fetches  int
	csv      string
	loginErr error
}

func (c *stubSession) Authenticate(ctx context.Context) (string, error) {
	if c.loginErr != nil {
		return "", c.loginErr
	}
	return "stub-token", nil
}

func (c *stubSession) FetchReport(ctx context.Context, token string, window dynect.Window) (*dynect.Report, error) {
	c.mu.Lock()
	c.fetches++
	c.mu.Unlock()

	body, _ := json.Marshal(map[string]any{
		"status": "success",
		"data":   map[string]string{"csv": c.csv},
	})
	return &dynect.Report{Body: body}, nil
}

func (c *stubSession) Terminate(ctx context.Context, token string) error {
	return nil
}

func (c *stubSession) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// stubCSV yields per-interval rates 1..10 once the artifact row is dropped.
func stubCSV() string {
	rows := []string{"1469836800,0"}
	for i := 1; i <= 10; i++ {
		rows = append(rows, fmt.Sprintf("%d,%d", 1469836800+300*i, 300*i))
	}
	return strings.Join(rows, "\n")
}

func stubEntry(id string, client check.SessionClient) Entry {
	def := &checkdef.Check{
		APIVersion: "dynwatch/v1",
		Kind:       "QPSCheck",
		Metadata:   checkdef.Metadata{ID: id},
		Spec: checkdef.Spec{
			Customer:   "acme",
			Username:   "monitor",
			Password:   "hunter2",
			Period:     "day",
			Interval:   "1s",
			Thresholds: checkdef.Thresholds{Warning: 8, Critical: 9},
		},
	}
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	return Entry{
		Def:    def,
		Runner: check.NewRunner(client, fake, zerolog.Nop(), nil),
	}
}

func waitForState(t *testing.T, cache *StateCache, id string) *CheckState {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if state, ok := cache.Get(id); ok {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no state cached for %s within deadline", id)
	return nil
}

func TestSchedulerRunsAndCaches(t *testing.T) {
	client := &stubSession{csv: stubCSV()}
	sched := NewScheduler(zerolog.Nop())
	sched.SetEntries([]Entry{stubEntry("prod-qps", client)})

	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	state := waitForState(t, sched.GetCache(), "prod-qps")
	if state.Status != check.StatusCritical {
		t.Errorf("status = %s, want CRITICAL", state.Status)
	}
	if state.Result == nil || math.Abs(state.Result.P95-9.55) > 1e-9 {
		t.Errorf("result = %+v, want p95 9.55", state.Result)
	}
	if state.TTL != time.Second {
		t.Errorf("ttl = %v, want the run interval", state.TTL)
	}
	if client.Fetches() == 0 {
		t.Error("no report fetches recorded")
	}
}

func TestSchedulerStartErrors(t *testing.T) {
	sched := NewScheduler(zerolog.Nop())

	if err := sched.Start(); err == nil {
		t.Error("Start succeeded with no entries")
	}

	sched.SetEntries([]Entry{stubEntry("a", &stubSession{csv: stubCSV()})})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	if err := sched.Start(); err == nil {
		t.Error("second Start succeeded while running")
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	sched := NewScheduler(zerolog.Nop())
	sched.Stop()
}

func TestSchedulerRunNow(t *testing.T) {
	client := &stubSession{csv: stubCSV()}
	sched := NewScheduler(zerolog.Nop())
	sched.SetEntries([]Entry{stubEntry("prod-qps", client)})

	if err := sched.RunNow(context.Background(), "prod-qps"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	state, ok := sched.GetCache().Get("prod-qps")
	if !ok {
		t.Fatal("no state cached after RunNow")
	}
	if state.Status != check.StatusCritical {
		t.Errorf("status = %s, want CRITICAL", state.Status)
	}

	if err := sched.RunNow(context.Background(), "nope"); err == nil {
		t.Error("RunNow succeeded for an unknown check")
	}
}

func TestSchedulerCachesFailedRuns(t *testing.T) {
	client := &stubSession{loginErr: &dynect.AuthError{StatusCode: 401, Reason: "no session token in response"}}
	sched := NewScheduler(zerolog.Nop())
	sched.SetEntries([]Entry{stubEntry("prod-qps", client)})

	if err := sched.RunNow(context.Background(), "prod-qps"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	state, ok := sched.GetCache().Get("prod-qps")
	if !ok {
		t.Fatal("no state cached for the failed run")
	}
	if state.Status != check.StatusCritical {
		t.Errorf("status = %s, want CRITICAL for an auth failure", state.Status)
	}
	if state.Result != nil {
		t.Errorf("result = %+v, want nil", state.Result)
	}
	if !strings.Contains(state.Message, "authenticate") {
		t.Errorf("message = %q", state.Message)
	}
}

func TestSchedulerReloadPrunesStates(t *testing.T) {
	client := &stubSession{csv: stubCSV()}
	a := stubEntry("check-a", client)
	b := stubEntry("check-b", client)

	sched := NewScheduler(zerolog.Nop())
	sched.SetEntries([]Entry{a, b})

	if err := sched.RunNow(context.Background(), "check-a"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if err := sched.RunNow(context.Background(), "check-b"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	sched.Reload([]Entry{a})

	if _, ok := sched.GetCache().Get("check-a"); !ok {
		t.Error("state for kept check was dropped")
	}
	if _, ok := sched.GetCache().Get("check-b"); ok {
		t.Error("state for removed check survived reload")
	}
	if got := len(sched.Entries()); got != 1 {
		t.Errorf("entries = %d, want 1", got)
	}
}

func TestSchedulerReloadWhileRunning(t *testing.T) {
	client := &stubSession{csv: stubCSV()}
	a := stubEntry("check-a", client)
	b := stubEntry("check-b", client)

	sched := NewScheduler(zerolog.Nop())
	sched.SetEntries([]Entry{a})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	waitForState(t, sched.GetCache(), "check-a")

	sched.Reload([]Entry{a, b})

	waitForState(t, sched.GetCache(), "check-b")
	if got := len(sched.Entries()); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
}

func TestSchedulerReloadEmptyThenRestored(t *testing.T) {
	client := &stubSession{csv: stubCSV()}
	a := stubEntry("check-a", client)

	sched := NewScheduler(zerolog.Nop())
	sched.SetEntries([]Entry{a})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	waitForState(t, sched.GetCache(), "check-a")

	// The definitions directory was emptied out from under the watcher.
	sched.Reload(nil)
	if _, ok := sched.GetCache().Get("check-a"); ok {
		t.Error("state survived a reload that removed every check")
	}
	if got := len(sched.Entries()); got != 0 {
		t.Errorf("entries = %d, want 0", got)
	}

	before := client.Fetches()

	// Restoring the definitions must bring the run loops back.
	sched.Reload([]Entry{a})
	waitForState(t, sched.GetCache(), "check-a")
	if got := client.Fetches(); got <= before {
		t.Errorf("fetches = %d, want more than %d after the loops resumed", got, before)
	}
}

func TestSchedulerStopEndsReloadRestarts(t *testing.T) {
	client := &stubSession{csv: stubCSV()}
	a := stubEntry("check-a", client)

	sched := NewScheduler(zerolog.Nop())
	sched.SetEntries([]Entry{a})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, sched.GetCache(), "check-a")
	sched.Stop()

	before := client.Fetches()
	sched.Reload([]Entry{a})

	time.Sleep(100 * time.Millisecond)
	if got := client.Fetches(); got != before {
		t.Errorf("fetches = %d, want %d after an explicit Stop", got, before)
	}
}
