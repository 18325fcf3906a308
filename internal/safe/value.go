// Package safe holds small conversion and cleanup helpers that must never
// panic on the interception path.
package safe

import (
	"io"

	"github.com/rs/zerolog"
)

// Int64ToUint64 converts an int64 value to uint64, clamping negative values to zero.
// Returns the converted value and a boolean indicating whether clamping occurred.
func Int64ToUint64(val int64) (uint64, bool) {
	if val < 0 {
		return 0, true
	}
	return uint64(val), false
}

// Close closes gracefully a Closer interface, handling and logging the error.
func Close(c io.Closer, logger zerolog.Logger, msg string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}
