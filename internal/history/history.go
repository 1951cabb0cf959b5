// Package history persists check results: an append-only CSV log of
// selected fields and a JSON snapshot of the last raw record.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"ipwatch/internal/geo"
	"ipwatch/internal/present"
)

// TimestampLayout formats the timestamp column: UTC with microseconds and
// a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// TimestampColumn is the first header cell of every history file.
const TimestampColumn = "timestamp"

// Writer appends rows to CSV history files.
type Writer struct {
	// Now returns the time stamped on each row. Defaults to time.Now.
	Now func() time.Time
}

// New returns a Writer using the wall clock.
func New() *Writer {
	return &Writer{Now: time.Now}
}

// Append writes one row for rec to the CSV file at path. The header
// ("timestamp" followed by fields) is written first when the file does
// not exist yet. Later calls must use the same fields.
func (w *Writer) Append(path string, fields []string, rec geo.Record) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}

	fresh := false
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		fresh = true
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close history file: %w", cerr)
		}
	}()

	cw := csv.NewWriter(file)
	if fresh {
		header := append([]string{TimestampColumn}, fields...)
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write history header: %w", err)
		}
	}

	if err := cw.Write(w.row(fields, rec)); err != nil {
		return fmt.Errorf("write history row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) row(fields []string, rec geo.Record) []string {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	row := make([]string, 0, len(fields)+1)
	row = append(row, now().UTC().Format(TimestampLayout))
	for _, f := range fields {
		v, _ := rec.Get(f)
		row = append(row, present.FormatValue(v))
	}
	return row
}

// Append appends one row using the wall clock.
func Append(path string, fields []string, rec geo.Record) error {
	return New().Append(path, fields, rec)
}
