// Package storage persists simulation runs: numbered JSON snapshots keyed by
// dotted field path under a per-run directory, run metadata, CSV and JSON
// series export, and a SQLite index of past runs.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/musicinmybrain/simframe/internal/num"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

// RunMeta describes one stored run.
type RunMeta struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Scheme    string    `json:"scheme"`
	Timestamp time.Time `json:"timestamp"`
	T0        float64   `json:"t0"`
	TEnd      float64   `json:"t_end"`
	H0        float64   `json:"h0"`
	Steps     int       `json:"steps"`
	Snapshots int       `json:"snapshots"`
}

// valueJSON is the wire form of a num.Value; shape is omitted for scalars.
type valueJSON struct {
	Shape []int     `json:"shape,omitempty"`
	Data  []float64 `json:"data"`
}

func encodeValue(v num.Value) valueJSON {
	return valueJSON{Shape: v.Shape(), Data: v.Data()}
}

func decodeValue(v valueJSON) (num.Value, error) {
	if v.Shape == nil {
		if len(v.Data) != 1 {
			return num.Value{}, fmt.Errorf("storage: scalar with %d elements", len(v.Data))
		}
		return num.Scalar(v.Data[0]), nil
	}
	return num.Array(v.Shape, v.Data)
}

// SnapshotFile is one serialized state dump.
type SnapshotFile struct {
	Index  int                  `json:"index"`
	X      float64              `json:"x"`
	Values map[string]valueJSON `json:"values"`
}

// Value decodes one field from the snapshot.
func (sf *SnapshotFile) Value(path string) (num.Value, error) {
	v, ok := sf.Values[path]
	if !ok {
		return num.Value{}, fmt.Errorf("storage: no field %q in snapshot %d", path, sf.Index)
	}
	return decodeValue(v)
}

// Paths lists the dotted field paths in the snapshot, sorted.
func (sf *SnapshotFile) Paths() []string {
	paths := make([]string, 0, len(sf.Values))
	for p := range sf.Values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Run is a writer bound to one run directory. It satisfies the frame's
// SnapshotWriter contract.
type Run struct {
	id  string
	dir string
}

// NewRun creates a run directory. An empty id gets a fresh UUID.
func (s *Store) NewRun(id string) (*Run, error) {
	if id == "" {
		id = uuid.NewString()[:8]
	}
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Run{id: id, dir: dir}, nil
}

func (r *Run) ID() string  { return r.id }
func (r *Run) Dir() string { return r.dir }

func (r *Run) snapshotPath(index int) string {
	return filepath.Join(r.dir, fmt.Sprintf("data%04d.json", index))
}

// WriteSnapshot serializes one state dump to a numbered file.
func (r *Run) WriteSnapshot(index int, x float64, values map[string]num.Value) error {
	sf := SnapshotFile{Index: index, X: x, Values: make(map[string]valueJSON, len(values))}
	for path, v := range values {
		sf.Values[path] = encodeValue(v)
	}

	file, err := os.Create(r.snapshotPath(index))
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(sf)
}

// WriteMeta writes the run's metadata file.
func (r *Run) WriteMeta(meta RunMeta) error {
	meta.ID = r.id
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	file, err := os.Create(filepath.Join(r.dir, "metadata.json"))
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// ReadMeta loads a stored run's metadata.
func (s *Store) ReadMeta(runID string) (RunMeta, error) {
	var meta RunMeta
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return meta, err
	}
	return meta, json.Unmarshal(data, &meta)
}

// ReadSnapshot loads one numbered snapshot of a stored run.
func (s *Store) ReadSnapshot(runID string, index int) (*SnapshotFile, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, fmt.Sprintf("data%04d.json", index)))
	if err != nil {
		return nil, err
	}
	var sf SnapshotFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	return &sf, nil
}

// ListSnapshots returns the snapshot indices of a stored run, sorted.
func (s *Store) ListSnapshots(runID string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, runID))
	if err != nil {
		return nil, err
	}
	var indices []int
	for _, e := range entries {
		var idx int
		if n, _ := fmt.Sscanf(e.Name(), "data%04d.json", &idx); n == 1 {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices, nil
}
