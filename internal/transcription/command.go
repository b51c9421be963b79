package transcription

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// killGrace is how long a cancelled tool gets between SIGTERM and SIGKILL
const killGrace = 5 * time.Second

// CommandError is returned when an external tool exits non-zero. It carries
// the captured diagnostic output.
type CommandError struct {
	Binary   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with code %d: %v", e.Binary, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Binary, e.ExitCode, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// runCommand executes binary and returns its stdout. Cancelling ctx sends
// SIGTERM to the whole process group, then SIGKILL after killGrace; the
// returned error then wraps ctx.Err().
func runCommand(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s killed: %w", binary, ctx.Err())
		}
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		return nil, &CommandError{
			Binary:   binary,
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}
	return stdout.Bytes(), nil
}

// lastLine returns the last non-empty line of out, trimmed. CLI tools print
// their result last.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
