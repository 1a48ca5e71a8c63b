package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kerbin-io/notarius/internal/lifecycle"
	"github.com/kerbin-io/notarius/internal/locker"
	"github.com/kerbin-io/notarius/internal/queue"
	"github.com/kerbin-io/notarius/internal/reconcile"
	"github.com/kerbin-io/notarius/internal/testutil"
	"github.com/kerbin-io/notarius/internal/vault"
	"github.com/kerbin-io/notarius/internal/watch"
)

func testAPI(t *testing.T) (*API, *queue.Queue, *locker.Manager, *vault.Vault) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := locker.New()
	q := queue.New(8, locks, func(ev watch.Event) string { return "path:" + ev.Path }, logger)
	db := testutil.TestDB(t)
	v := testutil.TestVault(t)
	rec := reconcile.New(db, v, logger)
	api := New(q, locks, &lifecycle.Counters{}, rec, logger)
	return api, q, locks, v
}

func TestHealthEndpoints(t *testing.T) {
	api, _, _, _ := testAPI(t)
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready before startup = %d, want 503", resp.StatusCode)
	}

	api.SetReady()
	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready after startup = %d", resp.StatusCode)
	}
}

func TestStatusReportsQueueAndLocks(t *testing.T) {
	api, q, locks, _ := testAPI(t)
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	if !q.Enqueue(watch.Event{Kind: watch.KindFile, Action: watch.ActionCreated, Path: "/v/a.md"}) {
		t.Fatal("enqueue failed")
	}
	locks.Acquire("note:7")

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.QueueDepth != 1 {
		t.Errorf("queue_depth = %d, want 1", got.QueueDepth)
	}
	if got.LocksHeld != 2 {
		t.Errorf("locks_held = %d, want 2 (queued event + manual)", got.LocksHeld)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	api, _, _, v := testAPI(t)
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	if err := v.Write("Notes/Tech/a.md", []byte("# A\n\nbody.\n")); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/reconcile", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reconcile = %d", resp.StatusCode)
	}

	var report reconcile.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 {
		t.Errorf("created = %d, want 1", report.Created)
	}
}
