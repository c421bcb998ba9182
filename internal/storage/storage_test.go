package storage

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/musicinmybrain/simframe/internal/num"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	if err := s.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return s
}

func writeTestRun(t *testing.T, s *Store, id string, n int) *Run {
	t.Helper()
	run, err := s.NewRun(id)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	for i := 0; i < n; i++ {
		x := float64(i) * 0.5
		values := map[string]num.Value{
			"t":         num.Scalar(x),
			"sys.y":     num.Scalar(math.Exp(-x)),
			"sys.state": num.Vector(float64(i), float64(-i)),
		}
		if err := run.WriteSnapshot(i, x, values); err != nil {
			t.Fatalf("write snapshot %d: %v", i, err)
		}
	}
	err = run.WriteMeta(RunMeta{Model: "decay", Scheme: "rk4", TEnd: 1, H0: 0.01, Steps: 100, Snapshots: n})
	if err != nil {
		t.Fatalf("write meta: %v", err)
	}
	return run
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := testStore(t)
	run := writeTestRun(t, s, "abc123", 3)

	sf, err := s.ReadSnapshot(run.ID(), 2)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if sf.Index != 2 || sf.X != 1.0 {
		t.Errorf("snapshot header index=%d x=%f", sf.Index, sf.X)
	}
	y, err := sf.Value("sys.y")
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if !y.IsScalar() || y.Float() != math.Exp(-1) {
		t.Errorf("scalar round trip: %v", y)
	}
	state, err := sf.Value("sys.state")
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if state.IsScalar() || state.Size() != 2 || state.At(0) != 2 || state.At(1) != -2 {
		t.Errorf("array round trip: %v", state)
	}
	if _, err := sf.Value("sys.missing"); err == nil {
		t.Error("missing field should error")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := testStore(t)
	run := writeTestRun(t, s, "", 1)
	if run.ID() == "" {
		t.Fatal("empty run id not replaced")
	}

	meta, err := s.ReadMeta(run.ID())
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	if meta.ID != run.ID() || meta.Model != "decay" || meta.Steps != 100 {
		t.Errorf("meta round trip: %+v", meta)
	}
	if meta.Timestamp.IsZero() {
		t.Error("timestamp not filled in")
	}
}

func TestListSnapshots(t *testing.T) {
	s := testStore(t)
	run := writeTestRun(t, s, "r1", 4)
	indices, err := s.ListSnapshots(run.ID())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(indices) != 4 {
		t.Fatalf("got %d snapshots, want 4", len(indices))
	}
	for i, idx := range indices {
		if idx != i {
			t.Errorf("indices out of order: %v", indices)
			break
		}
	}
}

func TestSeriesAndCSV(t *testing.T) {
	s := testStore(t)
	run := writeTestRun(t, s, "r2", 3)

	series, err := s.LoadSeries(run.ID())
	if err != nil {
		t.Fatalf("load series: %v", err)
	}
	// Columns sorted by path, arrays expanded elementwise.
	want := []string{"sys.state[0]", "sys.state[1]", "sys.y", "t"}
	if len(series.Columns) != len(want) {
		t.Fatalf("columns %v, want %v", series.Columns, want)
	}
	for i := range want {
		if series.Columns[i] != want[i] {
			t.Fatalf("columns %v, want %v", series.Columns, want)
		}
	}
	if len(series.Rows) != 3 || len(series.X) != 3 {
		t.Fatalf("series has %d rows", len(series.Rows))
	}

	y, err := series.Column("sys.y")
	if err != nil {
		t.Fatalf("column: %v", err)
	}
	if y[0] != 1 || y[2] != math.Exp(-1) {
		t.Errorf("column values %v", y)
	}
	if _, err := series.Column("nope"); err == nil {
		t.Error("unknown column should error")
	}

	var buf bytes.Buffer
	if err := series.ExportCSV(&buf); err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("csv has %d lines, want header + 3 rows", len(lines))
	}
	if lines[0] != "x,sys.state[0],sys.state[1],sys.y,t" {
		t.Errorf("csv header %q", lines[0])
	}
}

func TestIndex(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(filepath.Join(t.TempDir(), "index.db"))
	if err := ix.Init(ctx); err != nil {
		t.Fatalf("init index: %v", err)
	}
	defer ix.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		meta := RunMeta{
			ID:        id,
			Model:     "decay",
			Scheme:    "rk4",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			TEnd:      10,
			H0:        0.01,
			Steps:     1000,
			Snapshots: 11,
		}
		if err := ix.Put(ctx, meta); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	got, ok, err := ix.Get(ctx, "mid")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Model != "decay" || !got.Timestamp.Equal(base.Add(time.Hour)) {
		t.Errorf("get returned %+v", got)
	}
	if _, ok, err := ix.Get(ctx, "absent"); err != nil || ok {
		t.Errorf("absent id: ok=%v err=%v", ok, err)
	}

	list, err := ix.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != "new" || list[2].ID != "old" {
		t.Errorf("list order: %+v", list)
	}

	// Upsert replaces in place.
	if err := ix.Put(ctx, RunMeta{ID: "mid", Model: "lotka", Scheme: "dopri", Timestamp: base, TEnd: 1, H0: 0.1, Steps: 10, Snapshots: 2}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, _ = ix.Get(ctx, "mid")
	if got.Model != "lotka" {
		t.Errorf("upsert did not replace: %+v", got)
	}

	if err := ix.Delete(ctx, "old"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = ix.List(ctx)
	if len(list) != 2 {
		t.Errorf("delete left %d records", len(list))
	}
}
