// Package report serializes the event timeline to the per-process CSV
// artifact and parses such artifacts back.
//
// Paths are written byte for byte as the host passed them. Linux paths are
// arbitrary bytes, so a path that is not valid UTF-8 stays undecoded in the
// report and reads back unchanged; every other field is ASCII.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/coral-mesh/ioprof/internal/event"
)

// Header is the fixed first row of every report.
var Header = []string{"path", "event_type", "duration", "fd"}

// FileName returns the report name for the process pid.
func FileName(pid int) string {
	return fmt.Sprintf("result_%d.csv", pid)
}

// PathFor returns where the report of pid goes inside dir.
func PathFor(dir string, pid int) string {
	return filepath.Join(dir, FileName(pid))
}

// WriteError is returned when a report cannot be produced.
type WriteError struct {
	Path string
	// Op is the step that failed: create, write, flush, sync or close.
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("report %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// filePerm is the mode of newly created reports.
const filePerm os.FileMode = 0o644

// Writer writes reports to Fs.
type Writer struct {
	Fs afero.Fs
}

// NewWriter creates a Writer on fs.
func NewWriter(fs afero.Fs) *Writer {
	return &Writer{Fs: fs}
}

// Write creates or truncates dest and writes the header followed by one row
// per event in order. The file is synced before Write returns nil.
func (w *Writer) Write(events []event.Event, dest string) (err error) {
	f, err := w.Fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return &WriteError{Path: dest, Op: "create", Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = multierr.Append(err, &WriteError{Path: dest, Op: "close", Err: closeErr})
		}
	}()

	cw := csv.NewWriter(f)
	if err := cw.Write(Header); err != nil {
		return &WriteError{Path: dest, Op: "write", Err: err}
	}
	for _, ev := range events {
		if err := cw.Write(Row(ev)); err != nil {
			return &WriteError{Path: dest, Op: "write", Err: err}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return &WriteError{Path: dest, Op: "flush", Err: err}
	}
	if err := f.Sync(); err != nil {
		return &WriteError{Path: dest, Op: "sync", Err: err}
	}
	return nil
}

// Row renders ev as CSV fields in Header order.
func Row(ev event.Event) []string {
	return []string{
		ev.Path,
		ev.Type.String(),
		strconv.FormatUint(ev.Duration, 10),
		strconv.FormatInt(int64(ev.FD), 10),
	}
}
