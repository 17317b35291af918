package sim

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// Recorder consumes one row of output values per communication point.
type Recorder interface {
	Record(t float64, values map[string]float64) error
	Close() error
}

// Row is one recorded communication point.
type Row struct {
	T      float64
	Values map[string]float64
}

// MemoryRecorder keeps every recorded row in memory.
type MemoryRecorder struct {
	mu   sync.Mutex
	rows []Row
}

func NewMemoryRecorder() *MemoryRecorder { return &MemoryRecorder{} }

func (r *MemoryRecorder) Record(t float64, values map[string]float64) error {
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	r.mu.Lock()
	r.rows = append(r.rows, Row{T: t, Values: cp})
	r.mu.Unlock()
	return nil
}

// Rows returns the recorded rows in order.
func (r *MemoryRecorder) Rows() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]Row, len(r.rows))
	copy(rows, r.rows)
	return rows
}

// Last returns the most recent row.
func (r *MemoryRecorder) Last() (Row, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rows) == 0 {
		return Row{}, false
	}
	return r.rows[len(r.rows)-1], true
}

func (r *MemoryRecorder) Close() error { return nil }

// CSVRecorder streams rows to a CSV file: a time column followed by
// one column per selected variable in fixed order.
type CSVRecorder struct {
	f       *os.File
	w       *csv.Writer
	columns []string
}

// NewCSVRecorder creates path and writes the header row.
func NewCSVRecorder(path string, columns []string) (*CSVRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create csv")
	}
	w := csv.NewWriter(f)

	header := make([]string, 0, len(columns)+1)
	header = append(header, "time")
	header = append(header, columns...)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "write csv header")
	}
	return &CSVRecorder{f: f, w: w, columns: columns}, nil
}

func (r *CSVRecorder) Record(t float64, values map[string]float64) error {
	row := make([]string, 0, len(r.columns)+1)
	row = append(row, formatFloat(t))
	for _, c := range r.columns {
		row = append(row, formatFloat(values[c]))
	}
	return r.w.Write(row)
}

// Close flushes buffered rows and closes the file.
func (r *CSVRecorder) Close() error {
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		_ = r.f.Close()
		return err
	}
	return r.f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
