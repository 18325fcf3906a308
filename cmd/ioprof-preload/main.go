//go:build linux && cgo

// Package main is the ioprof preload library. Build it as a shared object
// and attach it to any dynamically linked program:
//
//	go build -buildmode=c-shared -o libioprof.so ./cmd/ioprof-preload
//	LD_PRELOAD=$PWD/libioprof.so PROC_IO_PROFILER_LOGS=/tmp some-command
//
// shim.c exports open(2) and close(2) with the exact libc prototypes and
// hands each call to the Go entry points below. Package initialization
// creates the profiler, records the load and then marks the shim ready;
// calls made before that, such as from constructors of libraries that
// initialize ahead of this one, go to the next definition unrecorded. An ELF
// destructor calls ioprofUnload at exit, which writes result_<pid>.csv.
package main

/*
#cgo LDFLAGS: -lpthread
extern void ioprof_set_ready(void);
*/
import "C"

import (
	"os"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/ioprof/internal/config"
	"github.com/coral-mesh/ioprof/internal/libc"
	"github.com/coral-mesh/ioprof/internal/logging"
	"github.com/coral-mesh/ioprof/internal/profiler"
	"github.com/coral-mesh/ioprof/pkg/version"
)

var (
	prof   *profiler.Profiler
	logger zerolog.Logger
)

func init() {
	cfg, cfgErr := config.Load()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Output = os.Stderr
	logger = logging.NewWithComponent(logCfg, "preload")

	if cfgErr != nil {
		logger.Warn().Err(cfgErr).Msg("Invalid profiler configuration, using defaults for the invalid settings")
	}

	p, err := profiler.New(cfg, profiler.Options{
		Logger:    logging.New(logCfg),
		Resolver:  libc.NextResolver{},
		BindOpen:  libc.BindOpen,
		BindClose: libc.BindClose,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start I/O profiler, calls pass through unrecorded")
		return
	}

	p.OnLoad()
	prof = p
	C.ioprof_set_ready()

	logger.Debug().Str("build", version.String()).Msg("Preload library initialized")
}

// ioprofOpen reports whether the call was handled. When it returns 0 the
// trampoline forwards the call itself.
//
//export ioprofOpen
func ioprofOpen(path *C.char, flags C.int, mode C.uint, ret *C.int) C.int {
	if prof == nil {
		return 0
	}
	*ret = C.int(prof.Open(unsafe.Pointer(path), int32(flags), uint32(mode)))
	return 1
}

//export ioprofClose
func ioprofClose(fd C.int, ret *C.int) C.int {
	if prof == nil {
		return 0
	}
	*ret = C.int(prof.Close(int32(fd)))
	return 1
}

//export ioprofUnload
func ioprofUnload() {
	if prof == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered from panic while writing I/O profile report")
		}
	}()

	// The error has already been logged; the host's exit status is not ours
	// to change.
	_ = prof.OnUnload()
}

func main() {}
