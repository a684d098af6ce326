package synth

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gateload/gateload/pkg/types"
)

// Appender appends rows to a passage CSV file, writing the header first when
// the file is missing or empty. Every call opens and closes the file so
// readers always see complete rows.
type Appender struct {
	path string
}

// NewAppender returns an Appender for path.
func NewAppender(path string) *Appender {
	return &Appender{path: path}
}

// Path returns the target file.
func (a *Appender) Path() string { return a.path }

// Append writes row as one CSV record.
func (a *Appender) Append(row []string) error {
	if dir := filepath.Dir(a.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("synth: create dir %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("synth: open %q: %w", a.path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("synth: stat %q: %w", a.path, err)
	}

	w := csv.NewWriter(f)
	if fi.Size() == 0 {
		if err := w.Write(types.PassageColumns); err != nil {
			return fmt.Errorf("synth: write header: %w", err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("synth: write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("synth: flush: %w", err)
	}
	return nil
}
