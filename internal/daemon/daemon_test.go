package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"snatcher/internal/config"
	"snatcher/internal/logging"
	"snatcher/internal/records"
	"snatcher/internal/testsupport"
)

type fakePipeline struct {
	mu       sync.Mutex
	pending  []*records.Record
	advanced chan string
	byID     map[string]*records.Record
}

func newFakePipeline(recs ...*records.Record) *fakePipeline {
	f := &fakePipeline{
		pending:  recs,
		advanced: make(chan string, 16),
		byID:     make(map[string]*records.Record),
	}
	for _, rec := range recs {
		f.byID[rec.ID] = rec
	}
	return f
}

func (f *fakePipeline) ListActionable(_ context.Context, limit int) ([]*records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakePipeline) Advance(_ context.Context, id string) (*records.Record, error) {
	f.mu.Lock()
	for i, rec := range f.pending {
		if rec.ID == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
	f.advanced <- id
	return f.byID[id], nil
}

func (f *fakePipeline) Submit(_ context.Context, key string, posting records.Posting) (*records.Record, bool, error) {
	rec := &records.Record{ID: "rec-" + key, ExternalKey: key, Status: records.StatusDiscovered, Title: posting.Title}
	f.mu.Lock()
	f.byID[rec.ID] = rec
	f.mu.Unlock()
	return rec, true, nil
}

func (f *fakePipeline) Promote(_ context.Context, id string) (*records.Record, error) {
	return f.byID[id], nil
}

func (f *fakePipeline) Retry(_ context.Context, id string) (*records.Record, error) {
	return f.byID[id], nil
}

func (f *fakePipeline) Decide(_ context.Context, id string, _ records.Decision, _ string) (*records.Record, error) {
	return f.byID[id], nil
}

func (f *fakePipeline) GetStatus(_ context.Context, id string) (*records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.byID[id]; ok {
		return rec, nil
	}
	return nil, records.ErrNotFound
}

func (f *fakePipeline) ListPending(context.Context) ([]*records.Record, error) {
	return nil, nil
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSweeper) Sweep(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeSweeper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testDaemon(t *testing.T, cfg *config.Config, pipe Pipeline) *Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	d, err := New(cfg, Deps{Store: store, Pipeline: pipe, Sweeper: &fakeSweeper{}}, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d
}

func TestDaemonAdvancesActionableRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 2

	pipe := newFakePipeline(
		&records.Record{ID: "rec-1", Status: records.StatusDiscovered},
		&records.Record{ID: "rec-2", Status: records.StatusDiscovered},
		&records.Record{ID: "rec-3", Status: records.StatusCosineScored},
	)
	d := testDaemon(t, cfg, pipe)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	seen := make(map[string]bool)
	deadline := time.After(5 * time.Second)
	for len(seen) < 3 {
		select {
		case id := <-pipe.advanced:
			if seen[id] {
				t.Fatalf("record %s advanced twice", id)
			}
			seen[id] = true
		case <-deadline:
			t.Fatalf("timed out; advanced %d of 3", len(seen))
		}
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first := testDaemon(t, cfg, newFakePipeline())
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer first.Stop()

	second := testDaemon(t, cfg, newFakePipeline())
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail the lock")
	}
}

func TestDaemonSweeperRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Approval.SweepIntervalSeconds = 1

	store := testsupport.MustOpenStore(t, cfg)
	sweeper := &fakeSweeper{}
	d, err := New(cfg, Deps{Store: store, Pipeline: newFakePipeline(), Sweeper: sweeper}, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for sweeper.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestDaemonStatusReflectsRunState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := testDaemon(t, cfg, newFakePipeline())

	status := d.Status(context.Background())
	if status.Running {
		t.Fatal("daemon reported running before start")
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	status = d.Status(context.Background())
	if !status.Running || status.LockFilePath == "" {
		t.Fatalf("status = %+v", status)
	}
	d.Stop()

	status = d.Status(context.Background())
	if status.Running {
		t.Fatal("daemon reported running after stop")
	}
}
