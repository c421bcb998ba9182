package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Series is the time history of a run flattened for export: one row per
// snapshot, one column per field element.
type Series struct {
	Meta    RunMeta     `json:"meta"`
	Columns []string    `json:"columns"`
	X       []float64   `json:"x"`
	Rows    [][]float64 `json:"rows"`
}

// LoadSeries reads every snapshot of a run into a flat series. Array fields
// expand into one column per element, suffixed with the flat index.
func (s *Store) LoadSeries(runID string) (*Series, error) {
	meta, err := s.ReadMeta(runID)
	if err != nil {
		return nil, err
	}
	indices, err := s.ListSnapshots(runID)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("storage: run %s has no snapshots", runID)
	}

	series := &Series{Meta: meta}
	for _, idx := range indices {
		sf, err := s.ReadSnapshot(runID, idx)
		if err != nil {
			return nil, err
		}
		if series.Columns == nil {
			for _, path := range sf.Paths() {
				v, err := sf.Value(path)
				if err != nil {
					return nil, err
				}
				if v.IsScalar() {
					series.Columns = append(series.Columns, path)
				} else {
					for i := 0; i < v.Size(); i++ {
						series.Columns = append(series.Columns, path+"["+strconv.Itoa(i)+"]")
					}
				}
			}
		}
		row := make([]float64, 0, len(series.Columns))
		for _, path := range sf.Paths() {
			v, err := sf.Value(path)
			if err != nil {
				return nil, err
			}
			row = append(row, v.Data()...)
		}
		series.X = append(series.X, sf.X)
		series.Rows = append(series.Rows, row)
	}
	return series, nil
}

// Column returns one column of the series by name.
func (sr *Series) Column(name string) ([]float64, error) {
	for i, col := range sr.Columns {
		if col == name {
			out := make([]float64, len(sr.Rows))
			for j, row := range sr.Rows {
				out[j] = row[i]
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("storage: no column %q", name)
}

// ExportCSV writes the series as CSV with an x column first.
func (sr *Series) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := append([]string{"x"}, sr.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, row := range sr.Rows {
		record[0] = strconv.FormatFloat(sr.X[i], 'g', -1, 64)
		for j, v := range row {
			record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return cw.Error()
}

// ExportJSON writes the series as indented JSON.
func (sr *Series) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sr)
}
