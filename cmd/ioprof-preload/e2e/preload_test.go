//go:build e2e && linux

// Package e2e builds the preload library and runs a small C program under
// LD_PRELOAD. Run with: go test -tags e2e ./cmd/ioprof-preload/e2e/
package e2e

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/ioprof/internal/event"
	"github.com/coral-mesh/ioprof/internal/report"
)

const hostProgram = `
#include <fcntl.h>
#include <stdio.h>
#include <unistd.h>

int main(int argc, char **argv) {
	for (int i = 1; i < argc; i++) {
		int fd = open(argv[i], O_RDONLY);
		printf("%d\n", fd);
		if (fd >= 0) {
			close(fd);
		}
	}
	return 3;
}
`

// earlyLibrary opens and closes a file from its constructor. The dynamic
// linker runs it before the preloaded library has initialized.
const earlyLibrary = `
#include <fcntl.h>
#include <unistd.h>

int early_fd = -2;

__attribute__((constructor)) static void early_init(void) {
	early_fd = open("/dev/null", O_RDONLY);
	if (early_fd >= 0) {
		close(early_fd);
	}
}
`

const earlyHost = `
#include <stdio.h>

extern int early_fd;

int main(void) {
	printf("early %d\n", early_fd >= 0);
	return 0;
}
`

// stackedLibrary is a second interposer loaded after ours. It counts the
// open calls that reach it.
const stackedLibrary = `
#define _GNU_SOURCE
#undef _FORTIFY_SOURCE
#include <dlfcn.h>
#include <fcntl.h>
#include <stdarg.h>
#include <stddef.h>

static int opens;

int stacked_opens(void) {
	return __atomic_load_n(&opens, __ATOMIC_SEQ_CST);
}

int open(const char *path, int flags, ...) {
	static int (*next)(const char *, int, ...);
	unsigned int mode = 0;

	if ((flags & O_CREAT) != 0) {
		va_list ap;
		va_start(ap, flags);
		mode = va_arg(ap, unsigned int);
		va_end(ap);
	}
	if (next == NULL) {
		next = (int (*)(const char *, int, ...))dlsym(RTLD_NEXT, "open");
	}
	__atomic_add_fetch(&opens, 1, __ATOMIC_SEQ_CST);
	return next(path, flags, mode);
}
`

// forkingHost opens a file from a forked child and reports whether the
// stacked interposer saw the call.
const forkingHost = `
#define _GNU_SOURCE
#include <dlfcn.h>
#include <fcntl.h>
#include <stdio.h>
#include <sys/wait.h>
#include <unistd.h>

int main(void) {
	int (*count)(void) = (int (*)(void))dlsym(RTLD_DEFAULT, "stacked_opens");
	if (count == NULL) {
		printf("missing\n");
		return 1;
	}
	fflush(stdout);

	pid_t pid = fork();
	if (pid == 0) {
		int before = count();
		int fd = open("/dev/null", O_RDONLY);
		printf("child %d %d\n", fd >= 0, count() - before);
		fflush(stdout);
		_exit(0);
	}

	int status;
	waitpid(pid, &status, 0);
	return 0;
}
`

type harness struct {
	dir  string
	lib  string
	prog string
}

func setup(t *testing.T) *harness {
	t.Helper()

	for _, tool := range []string{"go", "cc"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available: %v", tool, err)
		}
	}

	dir := t.TempDir()
	h := &harness{
		dir: dir,
		lib: filepath.Join(dir, "libioprof.so"),
	}

	build := exec.Command("go", "build", "-buildmode=c-shared", "-o", h.lib, "./cmd/ioprof-preload")
	build.Dir = filepath.Join("..", "..", "..")
	out, err := build.CombinedOutput()
	require.NoError(t, err, "building preload library: %s", out)

	h.prog = h.compile(t, "host", hostProgram)
	return h
}

// compile builds source into h.dir with extra cc arguments.
func (h *harness) compile(t *testing.T, name, source string, args ...string) string {
	t.Helper()

	src := filepath.Join(h.dir, name+".c")
	require.NoError(t, os.WriteFile(src, []byte(source), 0o644))
	out := filepath.Join(h.dir, name)
	cc := exec.Command("cc", append([]string{"-O0", "-o", out, src}, args...)...)
	combined, err := cc.CombinedOutput()
	require.NoError(t, err, "building %s: %s", name, combined)
	return out
}

func (h *harness) run(t *testing.T, logsDir string, args ...string) (pid int, stdout, stderr string, exitCode int) {
	t.Helper()
	return h.runProgram(t, h.prog, h.lib, logsDir, args...)
}

func (h *harness) runProgram(t *testing.T, prog, preload, logsDir string, args ...string) (pid int, stdout, stderr string, exitCode int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, prog, args...)
	cmd.Env = append(os.Environ(),
		"LD_PRELOAD="+preload,
		"PROC_IO_PROFILER_LOGS="+logsDir,
	)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	require.NoError(t, ctx.Err(), "host did not exit, stderr: %s", errBuf.String())
	var exitErr *exec.ExitError
	require.True(t, err == nil || errors.As(err, &exitErr), "running host: %v", err)

	return cmd.Process.Pid, outBuf.String(), errBuf.String(), cmd.ProcessState.ExitCode()
}

func TestPreload_RecordsOpenAndClose(t *testing.T) {
	h := setup(t)
	logs := t.TempDir()

	existing := filepath.Join(t.TempDir(), "a")
	require.NoError(t, os.WriteFile(existing, []byte("data"), 0o644))
	missing := filepath.Join(t.TempDir(), "missing")

	pid, stdout, stderr, code := h.run(t, logs, existing, missing)
	assert.Equal(t, 3, code, "host exit status must be preserved, stderr: %s", stderr)

	lines := strings.Fields(stdout)
	require.Len(t, lines, 2)
	fd, err := strconv.Atoi(lines[0])
	require.NoError(t, err)
	require.GreaterOrEqual(t, fd, 0)
	assert.Equal(t, "-1", lines[1])

	f, err := os.Open(filepath.Join(logs, report.FileName(pid)))
	require.NoError(t, err)
	defer f.Close()

	events, err := report.Read(f)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 5)
	assert.Equal(t, event.Init, events[0].Type)
	assert.Equal(t, event.Fini, events[len(events)-1].Type)

	var ours []event.Event
	for _, ev := range events {
		if ev.Path == existing || ev.Path == missing || (ev.Type == event.Close && ev.FD == int32(fd)) {
			ours = append(ours, ev)
		}
	}
	require.Len(t, ours, 3)
	assert.Equal(t, event.Event{Path: existing, Type: event.Open, Duration: ours[0].Duration, FD: int32(fd)}, ours[0])
	assert.Equal(t, event.Close, ours[1].Type)
	assert.Equal(t, int32(fd), ours[1].FD)
	assert.Equal(t, event.Open, ours[2].Type)
	assert.Equal(t, int32(-1), ours[2].FD)
}

func TestPreload_UnwritableDirectoryKeepsExitStatus(t *testing.T) {
	h := setup(t)

	_, _, stderr, code := h.run(t, filepath.Join(t.TempDir(), "does", "not", "exist"), "/dev/null")

	assert.Equal(t, 3, code)
	assert.Contains(t, stderr, "Failed to write I/O profile report")
}

func TestPreload_CallsFromEarlierConstructorsPassThrough(t *testing.T) {
	h := setup(t)
	logs := t.TempDir()

	h.compile(t, "libearly.so", earlyLibrary, "-shared", "-fPIC")
	host := h.compile(t, "early-host", earlyHost, "-L"+h.dir, "-l:libearly.so", "-Wl,-rpath,"+h.dir)

	pid, stdout, stderr, code := h.runProgram(t, host, h.lib, logs)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "early 1\n", stdout)

	f, err := os.Open(filepath.Join(logs, report.FileName(pid)))
	require.NoError(t, err)
	defer f.Close()

	events, err := report.Read(f)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, event.Init, events[0].Type)
	assert.Equal(t, event.Fini, events[len(events)-1].Type)
}

func TestPreload_ForkedChildForwardsToNextInterposer(t *testing.T) {
	h := setup(t)
	logs := t.TempDir()

	stacked := h.compile(t, "libstacked.so", stackedLibrary, "-shared", "-fPIC", "-ldl")
	host := h.compile(t, "forking-host", forkingHost, "-ldl")

	pid, stdout, stderr, code := h.runProgram(t, host, h.lib+":"+stacked, logs)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "child 1 1\n", stdout)

	// Only the parent writes a report.
	entries, err := os.ReadDir(logs)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, report.FileName(pid), entries[0].Name())
}
