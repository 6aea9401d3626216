package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caevv/testrecorder/internal/query"
	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/scheduler"
	"github.com/caevv/testrecorder/internal/store"
)

func closed(id, parent string, startMs, endMs int64, status record.Status) *record.Record {
	rec := record.New(id, parent, record.FromMillis(startMs))
	end := record.FromMillis(endMs)
	rec.EndTime = &end
	rec.Status = status
	return rec
}

func attach(parent *record.Record, children ...*record.Record) *record.Record {
	for _, c := range children {
		parent.Children = append(parent.Children, record.ChildReference{ID: c.ID, Inline: c})
	}
	return parent
}

const base = int64(1_700_000_000_000)

func passingInvocation() *record.Record {
	run := attach(closed("suite", "inv-pass", base+10, base+90, record.StatusUnknown),
		closed("A#one", "suite", base+10, base+20, record.StatusPass),
		closed("A#two", "suite", base+20, base+30, record.StatusIgnored))
	return attach(closed("inv-pass", "", base, base+100, record.StatusUnknown), run)
}

func failingInvocation() *record.Record {
	failed := closed("B#bad", "suite", base+1010, base+1020, record.StatusFail)
	failed.DebugInfo = &record.DebugInfo{ErrorMessage: "expected <1>", Trace: "expected <1>"}
	run := attach(closed("suite", "mod", base+1005, base+1050, record.StatusUnknown), failed)
	mod := attach(closed("mod", "inv-fail", base+1001, base+1060, record.StatusUnknown), run)
	mod.Description = &record.Description{TypeURL: "type.googleapis.com/google.protobuf.Struct"}
	return attach(closed("inv-fail", "", base+1000, base+1100, record.StatusUnknown), mod)
}

func runningInvocation() *record.Record {
	return record.New("inv-open", "", record.FromMillis(base+2000))
}

type fakeRetention struct{}

func (fakeRetention) Stats() scheduler.Stats {
	return scheduler.Stats{Schedule: "@daily", MaxAge: "720h0m0s", RunCount: 2}
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewStore("json", filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	for _, inv := range []*record.Record{passingInvocation(), failingInvocation(), runningInvocation()} {
		if err := st.SaveInvocation(inv); err != nil {
			t.Fatal(err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New("127.0.0.1:0", NewStoreAdapter(st), fakeRetention{}, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d, want %d: %s", url, resp.StatusCode, wantStatus, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	var health HealthResponse
	getJSON(t, ts.URL+"/api/health", http.StatusOK, &health)
	if health.Status != "ok" || health.Version != version {
		t.Errorf("health = %+v", health)
	}
}

func TestListInvocations(t *testing.T) {
	ts, _ := newTestServer(t)

	var all []InvocationSummary
	getJSON(t, ts.URL+"/api/invocations", http.StatusOK, &all)
	if len(all) != 3 {
		t.Fatalf("got %d invocations, want 3", len(all))
	}
	// newest first
	if all[0].ID != "inv-open" || all[1].ID != "inv-fail" || all[2].ID != "inv-pass" {
		t.Errorf("order = %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}
	if all[0].Status != StatusRunning || all[1].Status != StatusFailed || all[2].Status != StatusPassed {
		t.Errorf("statuses = %s, %s, %s", all[0].Status, all[1].Status, all[2].Status)
	}
	if all[1].Modules != 1 || all[2].Modules != 0 {
		t.Errorf("modules = %d, %d", all[1].Modules, all[2].Modules)
	}
	if all[2].DurationMs != 100 || all[2].Summary.Tests != 2 {
		t.Errorf("passing summary = %+v", all[2])
	}

	var failed []InvocationSummary
	getJSON(t, ts.URL+"/api/invocations?status=failed", http.StatusOK, &failed)
	if len(failed) != 1 || failed[0].ID != "inv-fail" {
		t.Errorf("filtered = %+v", failed)
	}

	var limited []InvocationSummary
	getJSON(t, ts.URL+"/api/invocations?limit=1", http.StatusOK, &limited)
	if len(limited) != 1 {
		t.Errorf("limit=1 returned %d", len(limited))
	}
}

func TestGetInvocation(t *testing.T) {
	ts, _ := newTestServer(t)

	var inv record.Record
	getJSON(t, ts.URL+"/api/invocations/inv-fail", http.StatusOK, &inv)
	if inv.ID != "inv-fail" || inv.Find("B#bad") == nil {
		t.Errorf("unexpected tree %+v", inv)
	}

	var errResp ErrorResponse
	getJSON(t, ts.URL+"/api/invocations/nope", http.StatusNotFound, &errResp)
	if errResp.Code != http.StatusNotFound {
		t.Errorf("error = %+v", errResp)
	}
}

func TestGetTests(t *testing.T) {
	ts, _ := newTestServer(t)

	var cases []query.TestCase
	getJSON(t, ts.URL+"/api/invocations/inv-pass/tests", http.StatusOK, &cases)
	if len(cases) != 2 {
		t.Fatalf("got %d tests", len(cases))
	}

	getJSON(t, ts.URL+"/api/invocations/inv-pass/tests?status=ignored", http.StatusOK, &cases)
	if len(cases) != 1 || cases[0].ID != "A#two" {
		t.Errorf("ignored = %+v", cases)
	}

	getJSON(t, ts.URL+"/api/invocations/inv-fail/tests?status=FAIL", http.StatusOK, &cases)
	if len(cases) != 1 || cases[0].Module != "mod" || cases[0].ErrorMessage != "expected <1>" {
		t.Errorf("failed = %+v", cases)
	}

	getJSON(t, ts.URL+"/api/invocations/inv-pass/tests?status=BROKEN", http.StatusBadRequest, nil)
}

func TestQuery(t *testing.T) {
	ts, _ := newTestServer(t)

	var resp QueryResponse
	q := `[.. | objects | select(.status? == "FAIL") | .test_record_id]`
	getJSON(t, ts.URL+"/api/invocations/inv-fail/query?q="+url.QueryEscape(q), http.StatusOK, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("results = %v", resp.Results)
	}
	ids, ok := resp.Results[0].([]any)
	if !ok || len(ids) != 1 || ids[0] != "B#bad" {
		t.Errorf("results = %v", resp.Results)
	}

	getJSON(t, ts.URL+"/api/invocations/inv-fail/query", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/api/invocations/inv-fail/query?q="+url.QueryEscape(".["), http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/api/invocations/nope/query?q=.", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/api/invocations/inv-fail/query?q="+url.QueryEscape(`error("x")`), http.StatusUnprocessableEntity, nil)
}

func TestStats(t *testing.T) {
	ts, _ := newTestServer(t)

	var stats StatsResponse
	getJSON(t, ts.URL+"/api/stats", http.StatusOK, &stats)
	if stats.Invocations != 3 || stats.Running != 1 || stats.Passed != 1 || stats.Failed != 1 {
		t.Errorf("invocation counts = %+v", stats)
	}
	if stats.Tests != 3 || stats.TestsPassed != 1 || stats.TestsFailed != 1 || stats.TestsIgnored != 1 {
		t.Errorf("test counts = %+v", stats)
	}
	if stats.Retention == nil || stats.Retention.Schedule != "@daily" {
		t.Errorf("retention = %+v", stats.Retention)
	}
}

func TestDeleteInvocation(t *testing.T) {
	ts, st := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/invocations/inv-pass", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, err := st.GetInvocation("inv-pass"); err == nil {
		t.Error("invocation still stored")
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d", resp.StatusCode)
	}
}

func TestDashboard(t *testing.T) {
	ts, _ := newTestServer(t)

	for path, want := range map[string][]string{
		"/":                     {"Test Recorder", "inv-fail", "inv-pass", "badge-danger", "33.3%"},
		"/invocations/inv-fail": {"Invocation inv-fail", "B#bad", "expected &lt;1&gt;", "Failures (1)"},
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
		for _, s := range want {
			if !strings.Contains(string(body), s) {
				t.Errorf("GET %s: body missing %q", path, s)
			}
		}
	}

	resp, err := http.Get(ts.URL + "/invocations/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing detail status = %d", resp.StatusCode)
	}
}

func TestNoStore(t *testing.T) {
	srv := New("127.0.0.1:0", nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	getJSON(t, ts.URL+"/api/invocations", http.StatusServiceUnavailable, nil)
	var stats StatsResponse
	getJSON(t, ts.URL+"/api/stats", http.StatusOK, &stats)
	if stats.Invocations != 0 || stats.Retention != nil {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStartStop(t *testing.T) {
	srv := New("127.0.0.1:0", nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "127.0.0.1:0" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.Addr() == "127.0.0.1:0" {
		t.Fatal("server never bound a port")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRecoverPanic(t *testing.T) {
	srv := New("", nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := srv.withRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestUptime(t *testing.T) {
	srv := New("", nil, nil, nil)
	srv.startTime = time.Now().Add(-(2*time.Hour + 3*time.Minute + 4*time.Second))
	if got := srv.Uptime(); got != "2h3m4s" {
		t.Errorf("Uptime() = %s", got)
	}
}
