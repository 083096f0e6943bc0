package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WorkerScript assembles a fake worker executable: a shell script that prints
// the given protocol lines to stdout and exits with ExitCode. The runner
// appends the task text as the final argv entry; scripts can reference it as
// "$1" (no other args are passed by default specs).
type WorkerScript struct {
	Lines    []string
	Stderr   string
	ExitCode int

	// SleepSecs replaces the shell with a sleep of this length, for
	// cancellation tests. ExitCode is ignored when set: the process ends by
	// signal or by the sleep running out.
	SleepSecs int
}

// Build writes the script into a temp dir and returns its path.
func (w WorkerScript) Build(t *testing.T) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	for _, line := range w.Lines {
		fmt.Fprintf(&b, "printf '%%s\\n' %s\n", shellQuote(line))
	}
	if w.Stderr != "" {
		fmt.Fprintf(&b, "printf '%%s\\n' %s >&2\n", shellQuote(w.Stderr))
	}
	if w.SleepSecs > 0 {
		// exec so SIGTERM reaches the process holding the stdout pipe.
		fmt.Fprintf(&b, "exec sleep %d\n", w.SleepSecs)
	}
	fmt.Fprintf(&b, "exit %d\n", w.ExitCode)

	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o755))
	return path
}

// CaptureWorker builds a worker that writes its final argument (the task
// text) to the file named by $TASK_OUT, then emits one assistant message and
// exits 0. Pass TASK_OUT through WorkerSpec.Env.
func CaptureWorker(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
for last; do :; done
printf '%s' "$last" > "$TASK_OUT"
printf '%s\n' '{"type":"message_end","role":"assistant","content":"captured"}'
exit 0
`
	path := filepath.Join(t.TempDir(), "capture-worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// shellQuote single-quotes s for POSIX sh, escaping embedded quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
