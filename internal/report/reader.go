package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/coral-mesh/ioprof/internal/event"
	"github.com/coral-mesh/ioprof/internal/safe"
)

// ErrBadHeader is returned when a report does not start with Header.
var ErrBadHeader = errors.New("unexpected report header")

// Read parses a report produced by Writer.Write.
func Read(r io.Reader) ([]event.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty report", ErrBadHeader)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, header)
	}

	var events []event.Event
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(events)+1, err)
		}

		ev, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
}

// ReadFile opens path on fs and parses it with Read.
func ReadFile(fs afero.Fs, path string, logger zerolog.Logger) ([]event.Event, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer safe.Close(f, logger, "failed to close report")

	return Read(f)
}

func parseRow(rec []string) (event.Event, error) {
	typ, err := event.ParseType(rec[1])
	if err != nil {
		return event.Event{}, err
	}
	duration, err := strconv.ParseUint(rec[2], 10, 64)
	if err != nil {
		return event.Event{}, fmt.Errorf("invalid duration %q: %w", rec[2], err)
	}
	fd, err := strconv.ParseInt(rec[3], 10, 32)
	if err != nil {
		return event.Event{}, fmt.Errorf("invalid fd %q: %w", rec[3], err)
	}

	return event.Event{
		Path:     rec[0],
		Type:     typ,
		Duration: duration,
		FD:       int32(fd),
	}, nil
}
