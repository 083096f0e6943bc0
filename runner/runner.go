package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"chainwork/core"
	"chainwork/internal/util"
	"chainwork/logging"
)

// Default resource caps. All are overridable via Options.
const (
	defaultGracePeriod    = 3 * time.Second
	defaultMaxOutputBytes = 100_000
	defaultMaxOutputLines = 1_000
	defaultMaxMessages    = 200
	defaultMaxStderrBytes = 64 * 1024

	// maxLineBytes bounds a single protocol line; longer lines are dropped
	// and parsing continues with the next line.
	maxLineBytes = 1 << 20
)

// Options holds configuration overrides passed to New().
type Options struct {
	// GracePeriod is the delay between SIGTERM and SIGKILL on cancellation.
	GracePeriod time.Duration
	// ThrottleInterval is the minimum spacing between progress emissions.
	ThrottleInterval time.Duration
	// MaxOutputBytes / MaxOutputLines cap the final output text.
	MaxOutputBytes int
	MaxOutputLines int
	// MaxMessages caps retained assistant messages (oldest dropped).
	MaxMessages int
	// MaxStderrBytes caps stderr capture (oldest bytes dropped).
	MaxStderrBytes int
	// Logger receives structured diagnostics; defaults to NoOpLogger.
	Logger logging.Logger
}

// Runner spawns worker processes and parses their event streams. A single
// Runner is safe for concurrent use; all per-task state lives in Run.
type Runner struct {
	opts Options
}

// New constructs a Runner with optional overrides.
func New(optFns ...func(o *Options)) *Runner {
	opts := Options{
		GracePeriod:      defaultGracePeriod,
		ThrottleInterval: defaultThrottleInterval,
		MaxOutputBytes:   defaultMaxOutputBytes,
		MaxOutputLines:   defaultMaxOutputLines,
		MaxMessages:      defaultMaxMessages,
		MaxStderrBytes:   defaultMaxStderrBytes,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{opts: opts}
}

// WorkerSpec describes one task execution: which binary to spawn, the task
// text appended as the final positional argument, and where to mirror the
// event stream.
type WorkerSpec struct {
	AgentName string
	Task      string
	Command   string
	Args      []string
	Dir       string
	Env       []string

	// Index is the task's flat position, surfaced on progress records.
	Index int

	// EventLogPath mirrors the raw stdout stream; empty disables logging.
	EventLogPath string
	// StderrLogPath persists captured stderr on process end; empty disables.
	StderrLogPath string

	// OnProgress receives throttled progress snapshots. May be nil.
	OnProgress func(*core.ProgressRecord)
}

// Run executes exactly one task. Task-domain failures (non-zero exit, hidden
// failures) are reported through the result's ExitCode/ErrorMessage; the
// returned error is reserved for spawn and plumbing failures.
func (r *Runner) Run(ctx context.Context, spec WorkerSpec) (*core.TaskResult, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("worker spec for agent %s has no command", spec.AgentName)
	}

	state := newTaskState(spec.AgentName, spec.Task, spec.Index, r.opts.MaxMessages)
	throttle := newEmitThrottler(r.opts.ThrottleInterval, func() {
		if spec.OnProgress != nil {
			spec.OnProgress(state.snapshot())
		}
	})
	defer throttle.Stop()

	writer, err := NewEventWriter(spec.EventLogPath, nil)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer writer.Close()

	argv := append(append([]string(nil), spec.Args...), spec.Task)
	cmd := exec.Command(spec.Command, argv...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stderr := newTailBuffer(r.opts.MaxStderrBytes)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn worker %s: %w", spec.Command, err)
	}
	r.opts.Logger.Debug("worker started", "agent", spec.AgentName, "command", spec.Command, "pid", cmd.Process.Pid)

	// Cancellation watcher: terminate first, force-kill after the grace
	// period if the process is still alive.
	procDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-procDone:
			case <-time.After(r.opts.GracePeriod):
				_ = cmd.Process.Kill()
			}
		case <-procDone:
		}
	}()

	// Stream loop. The reader must always reach EOF: stopping early would
	// leave the worker blocked on a full pipe and wedge cmd.Wait below. An
	// oversized line is therefore consumed and dropped, not fatal, and a
	// read error still drains the rest of the stream. The unterminated
	// trailing fragment at EOF is handed back as a best-effort final line.
	reader := bufio.NewReaderSize(stdout, 64*1024)
	for {
		line, tooLong, readErr := readLine(reader, maxLineBytes)
		if tooLong {
			r.opts.Logger.Warn("worker stdout line exceeded size cap, dropped", "agent", spec.AgentName, "cap_bytes", maxLineBytes)
		} else if line != "" || readErr == nil {
			writer.WriteLine(line)
			if ev, ok := core.ParseWireEvent(line); ok { // best-effort protocol: skip corrupt lines
				if state.apply(ev) {
					throttle.Force()
				} else {
					throttle.Request()
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				r.opts.Logger.Warn("worker stdout read aborted", "agent", spec.AgentName, "error", readErr.Error())
				_, _ = io.Copy(io.Discard, stdout)
			}
			break
		}
	}

	waitErr := cmd.Wait()
	close(procDone)
	throttle.Stop()

	result := state.result
	result.DurationMs = time.Since(start).Milliseconds()
	result.ExitCode = exitCodeOf(cmd, waitErr)

	if result.ExitCode != 0 {
		result.ErrorMessage = failureDetail(result.ExitCode, stderr.String())
	} else if state.lastToolError != "" {
		// Hidden failure: the process exited clean but its last tool result
		// carried an error the worker never surfaced via exit code.
		result.ExitCode = 1
		result.ErrorMessage = state.lastToolError
	}

	output := state.finalOutput()
	output, trunc := util.TruncateOutput(output, r.opts.MaxOutputBytes, r.opts.MaxOutputLines)
	result.Output = output
	result.Truncation = trunc

	if spec.StderrLogPath != "" {
		if tail := stderr.String(); tail != "" {
			_ = os.WriteFile(spec.StderrLogPath, []byte(tail), 0o644)
		}
	}

	state.mu.Lock()
	if result.ExitCode == 0 {
		state.progress.Status = core.StatusCompleted
	} else {
		state.progress.Status = core.StatusFailed
		state.progress.Error = result.ErrorMessage
	}
	state.progress.CurrentTool = ""
	result.Progress = state.progress
	state.mu.Unlock()

	if spec.OnProgress != nil {
		spec.OnProgress(state.snapshot())
	}

	if rl, ok := r.opts.Logger.(*logging.RunLogger); ok {
		rl.LogProcessExit(spec.AgentName, result.ExitCode, time.Since(start), waitErr)
	} else {
		r.opts.Logger.Info("worker finished", "agent", spec.AgentName, "exit_code", result.ExitCode, "duration_ms", result.DurationMs)
	}
	return result, nil
}

// readLine reads one newline-terminated line, consuming the whole line even
// when it exceeds max bytes. tooLong marks a line past the cap; its content
// is discarded but the stream position advances to the next line. The final
// unterminated fragment is returned with err == io.EOF.
func readLine(r *bufio.Reader, max int) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, readErr := r.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > max {
				buf = nil
				tooLong = true
			}
		}
		if readErr == bufio.ErrBufferFull {
			continue
		}
		return strings.TrimRight(string(buf), "\r\n"), tooLong, readErr
	}
}

// exitCodeOf extracts the OS-reported exit code, including the shifted code
// of a signal-killed process.
func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

func failureDetail(exitCode int, stderrTail string) string {
	detail := fmt.Sprintf("worker exited with code %d", exitCode)
	if tail := strings.TrimSpace(stderrTail); tail != "" {
		detail += ": " + tail
	}
	return detail
}
