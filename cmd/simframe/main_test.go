package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/musicinmybrain/simframe/internal/logging"
	"github.com/musicinmybrain/simframe/internal/storage"
)

func resetFlags(t *testing.T) {
	t.Helper()
	dataDir = t.TempDir()
	logger = logging.New(io.Discard, slog.LevelError)
	configFile = ""
	preset = ""
	schemeName = ""
	h0 = 0
	tEnd = 0
	tolerance = 0
	snapEvery = -1
}

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func TestRunSimulationSnapshotTargets(t *testing.T) {
	resetFlags(t)
	configFile = filepath.Join(dataDir, "sim.yaml")
	body := "snapshots: [0.25, 0.5]\nsnapshot_every: 0\n"
	if err := os.WriteFile(configFile, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runSimulation(newTestCommand(), []string{"decay"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	ix := storage.NewIndex(indexPath())
	if err := ix.Init(context.Background()); err != nil {
		t.Fatalf("index: %v", err)
	}
	defer ix.Close()
	runs, err := ix.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	store := storage.New(dataDir)
	indices, err := store.ListSnapshots(runs[0].ID)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	// Initial state plus one per target, with no duplicate of the final
	// target's state.
	if len(indices) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(indices))
	}
	last, err := store.ReadSnapshot(runs[0].ID, indices[len(indices)-1])
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	prev, err := store.ReadSnapshot(runs[0].ID, indices[len(indices)-2])
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if last.X == prev.X {
		t.Errorf("final snapshot duplicated at x=%g", last.X)
	}
	if runs[0].Snapshots != 3 {
		t.Errorf("indexed snapshot count %d, want 3", runs[0].Snapshots)
	}
}

func TestRunSimulationStopCondition(t *testing.T) {
	resetFlags(t)
	tEnd = 0.5
	h0 = 0.05
	snapEvery = 5

	if err := runSimulation(newTestCommand(), []string{"decay"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	ix := storage.NewIndex(indexPath())
	if err := ix.Init(context.Background()); err != nil {
		t.Fatalf("index: %v", err)
	}
	defer ix.Close()
	runs, err := ix.List(context.Background())
	if err != nil || len(runs) != 1 {
		t.Fatalf("list: runs=%d err=%v", len(runs), err)
	}
	store := storage.New(dataDir)
	indices, err := store.ListSnapshots(runs[0].ID)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	// 10 steps at every 5th plus the final write.
	if len(indices) != 3 {
		t.Errorf("expected 3 snapshots, got %d", len(indices))
	}
}
