package intercept

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/coral-mesh/ioprof/internal/event"
	"github.com/coral-mesh/ioprof/internal/timing"
)

// OpenFunc has the shape of open(2). path is the caller's NUL-terminated
// string and is passed on untouched.
type OpenFunc func(path unsafe.Pointer, flags int32, mode uint32) int32

// CloseFunc has the shape of close(2).
type CloseFunc func(fd int32) int32

// Open shadows open(2).
func (i *Interceptor) Open(path unsafe.Pointer, flags int32, mode uint32) int32 {
	return forward(i, i.open, Failed,
		func(impl OpenFunc) int32 {
			return impl(path, flags, mode)
		},
		func(fd int32, elapsed time.Duration) event.Event {
			return event.Event{
				Path:     decodePath(path),
				Type:     event.Open,
				Duration: timing.Nanos(elapsed),
				FD:       fd,
			}
		})
}

// Close shadows close(2). The event carries the descriptor being closed.
func (i *Interceptor) Close(fd int32) int32 {
	return forward(i, i.close, Failed,
		func(impl CloseFunc) int32 {
			return impl(fd)
		},
		func(_ int32, elapsed time.Duration) event.Event {
			return event.Event{
				Type:     event.Close,
				Duration: timing.Nanos(elapsed),
				FD:       fd,
			}
		})
}

// decodePath copies the C string without re-encoding it.
func decodePath(path unsafe.Pointer) string {
	if path == nil {
		return ""
	}
	return unix.BytePtrToString((*byte)(path))
}
