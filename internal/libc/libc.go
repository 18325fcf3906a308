//go:build linux && cgo

package libc

/*
#cgo LDFLAGS: -ldl
#include <stdlib.h>
#include "ioprof_libc.h"
*/
import "C"

import (
	"syscall"
	"unsafe"

	"github.com/coral-mesh/ioprof/internal/intercept"
	"github.com/coral-mesh/ioprof/internal/symbol"
)

// NextResolver resolves names with dlsym(RTLD_NEXT, name). The lookup is
// relative to the object this package is linked into, so stacked preload
// libraries forward to each other instead of straight to libc.
type NextResolver struct{}

var _ symbol.Resolver = NextResolver{}

// Resolve implements symbol.Resolver.
func (NextResolver) Resolve(name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var reason *C.char
	addr := C.ioprof_next(cname, &reason)
	if addr == nil {
		err := &symbol.ResolveError{Name: name}
		if reason != nil {
			err.Reason = C.GoString(reason)
		}
		return nil, err
	}
	return addr, nil
}

// BindOpen turns the address of an open(2) implementation into a callable.
func BindOpen(addr unsafe.Pointer) intercept.OpenFunc {
	return func(path unsafe.Pointer, flags int32, mode uint32) int32 {
		return int32(C.ioprof_call_open(addr, (*C.char)(path), C.int(flags), C.uint(mode)))
	}
}

// BindClose turns the address of a close(2) implementation into a callable.
func BindClose(addr unsafe.Pointer) intercept.CloseFunc {
	return func(fd int32) int32 {
		return int32(C.ioprof_call_close(addr, C.int(fd)))
	}
}

// lastErrno returns errno as observed right after the most recent forwarded
// call on the current OS thread. Callers must hold the thread with
// runtime.LockOSThread between the call and this read.
func lastErrno() syscall.Errno {
	return syscall.Errno(C.ioprof_last_errno())
}
