package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gateload/gateload/pkg/types"
)

// ErrMissingTimestampColumn is returned when the CSV header has none of the
// configured timestamp columns.
var ErrMissingTimestampColumn = errors.New("source: no timestamp column in header")

// RowIDColumn is the synthetic column added to Tail rows.
const RowIDColumn = "__rowid"

// Options controls how the CSV header is interpreted.
type Options struct {
	// TimestampColumns are probed in order, case-insensitively.
	TimestampColumns []string

	// CheckpointColumn names the checkpoint id column. Optional in the file.
	CheckpointColumn string

	// DefaultCheckpoint is used when the column is absent or the cell is empty.
	DefaultCheckpoint string
}

// Fingerprint is the change signal of the source file.
type Fingerprint struct {
	Exists  bool
	Size    int64
	ModTime time.Time
}

// CSV reads passage events from one file. It holds no open handles; every
// call reads the file afresh.
type CSV struct {
	path string
	opts Options
}

// NewCSV returns a reader for path.
func NewCSV(path string, opts Options) *CSV {
	if opts.DefaultCheckpoint == "" {
		opts.DefaultCheckpoint = types.DefaultCheckpoint
	}
	if opts.CheckpointColumn == "" {
		opts.CheckpointColumn = types.ColumnCheckpoint
	}
	return &CSV{path: path, opts: opts}
}

// AbsPath returns the absolute file path, or the configured one if it cannot
// be resolved.
func (c *CSV) AbsPath() string {
	abs, err := filepath.Abs(c.path)
	if err != nil {
		return c.path
	}
	return abs
}

// Fingerprint stats the file. A missing file yields a zero Fingerprint and no
// error.
func (c *CSV) Fingerprint() (Fingerprint, error) {
	fi, err := os.Stat(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fingerprint{}, nil
	}
	if err != nil {
		return Fingerprint{}, fmt.Errorf("source: stat %q: %w", c.path, err)
	}
	return Fingerprint{Exists: true, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// ReadEvents returns one Event per data row. A missing or empty file returns
// no events and no error.
func (c *CSV) ReadEvents() ([]types.Event, error) {
	header, rows, err := c.readAll()
	if err != nil || header == nil {
		return nil, err
	}
	tsIdx := findColumn(header, c.opts.TimestampColumns)
	if tsIdx < 0 {
		return nil, fmt.Errorf("%w (looked for %s)", ErrMissingTimestampColumn,
			strings.Join(c.opts.TimestampColumns, ", "))
	}
	cpIdx := findColumn(header, []string{c.opts.CheckpointColumn})

	events := make([]types.Event, 0, len(rows))
	for _, row := range rows {
		ev := types.Event{RawTime: cell(row, tsIdx), CheckpointID: strings.TrimSpace(cell(row, cpIdx))}
		if ev.CheckpointID == "" {
			ev.CheckpointID = c.opts.DefaultCheckpoint
		}
		events = append(events, ev)
	}
	return events, nil
}

// Table is a preview of the raw file.
type Table struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Tail returns the last limit rows, newest first. Every cell is a string;
// RowIDColumn numbers the returned rows oldest first from 0.
func (c *CSV) Tail(limit int) (Table, error) {
	header, rows, err := c.readAll()
	if err != nil {
		return Table{Columns: []string{}, Rows: []map[string]any{}}, err
	}
	if header == nil {
		return Table{Columns: []string{}, Rows: []map[string]any{}}, nil
	}
	switch {
	case limit <= 0:
		rows = nil
	case limit < len(rows):
		rows = rows[len(rows)-limit:]
	}
	t := Table{
		Columns: append(append([]string(nil), header...), RowIDColumn),
		Rows:    make([]map[string]any, 0, len(rows)),
	}
	for i := len(rows) - 1; i >= 0; i-- {
		m := make(map[string]any, len(header)+1)
		for j, col := range header {
			m[col] = cell(rows[i], j)
		}
		m[RowIDColumn] = i
		t.Rows = append(t.Rows, m)
	}
	return t, nil
}

// Destination is one destination airport and its share of all rows.
type Destination struct {
	Destination string  `json:"destination"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
}

// DestinationStats ranks destination airports by row count.
type DestinationStats struct {
	Destinations []Destination `json:"destinations"`
	TotalFlights int           `json:"total_flights"`
}

// Destinations returns the top destinations by count, ties broken by name.
// Percentages are of all rows, rounded to one decimal. A file without a
// destination column yields an empty ranking.
func (c *CSV) Destinations(top int) (DestinationStats, error) {
	out := DestinationStats{Destinations: []Destination{}}
	header, rows, err := c.readAll()
	if err != nil || header == nil {
		return out, err
	}
	idx := findColumn(header, []string{types.ColumnDestination})
	if idx < 0 {
		return out, nil
	}
	counts := make(map[string]int)
	for _, row := range rows {
		counts[cell(row, idx)]++
	}
	for d, n := range counts {
		out.Destinations = append(out.Destinations, Destination{Destination: d, Count: n})
	}
	sort.Slice(out.Destinations, func(i, j int) bool {
		a, b := out.Destinations[i], out.Destinations[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Destination < b.Destination
	})
	if top >= 0 && len(out.Destinations) > top {
		out.Destinations = out.Destinations[:top]
	}
	out.TotalFlights = len(rows)
	for i := range out.Destinations {
		pct := float64(out.Destinations[i].Count) / float64(len(rows)) * 100
		out.Destinations[i].Percentage = round1(pct)
	}
	return out, nil
}

// readAll returns the header and data rows. header is nil when the file is
// missing or has no header line.
func (c *CSV) readAll() ([]string, [][]string, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("source: open %q: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("source: read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("source: read row: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

// findColumn returns the index of the first candidate present in header,
// compared case-insensitively, or -1.
func findColumn(header, candidates []string) int {
	for _, want := range candidates {
		for i, h := range header {
			if strings.EqualFold(h, want) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
