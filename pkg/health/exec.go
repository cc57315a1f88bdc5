package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecChecker runs a command on the host. Check treats exit status 0 as
// healthy; Run exposes the exit code and output for platform hooks whose
// answer is more than yes or no.
type ExecChecker struct {
	Command []string
	Timeout time.Duration
	Env     []string
}

// Output is what one run of the command produced
type Output struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// NewExecChecker creates an exec probe with a 10 second timeout
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Run executes the command with extra arguments appended. A non-zero exit
// is reported in Output.ExitCode, not as an error; err is set only when the
// command could not run to completion.
func (e *ExecChecker) Run(ctx context.Context, args ...string) (Output, error) {
	if len(e.Command) == 0 {
		return Output{}, errors.New("no command specified")
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	argv := append(append([]string{}, e.Command[1:]...), args...)
	cmd := exec.CommandContext(execCtx, e.Command[0], argv...)
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out, nil
	case execCtx.Err() != nil:
		return out, fmt.Errorf("command %v timed out: %w", e.Command, execCtx.Err())
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		return out, fmt.Errorf("command %v failed: %w", e.Command, err)
	}
}

// Check runs the command and reports exit status 0 as healthy
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	out, err := e.Run(ctx)
	message := fmt.Sprintf("Command: %v", e.Command)
	if err != nil {
		return newResult(start, false, fmt.Sprintf("%s, Error: %v", message, err))
	}
	if out.ExitCode != 0 {
		message = fmt.Sprintf("%s, exit status %d", message, out.ExitCode)
		if len(out.Stderr) > 0 {
			message = fmt.Sprintf("%s, Stderr: %s", message, strings.TrimSpace(string(out.Stderr)))
		}
		return newResult(start, false, message)
	}

	if len(out.Stdout) > 0 {
		output := string(out.Stdout)
		if len(output) > 100 {
			output = output[:100] + "..."
		}
		message = fmt.Sprintf("%s, Output: %s", message, output)
	}
	return newResult(start, true, message)
}

// Type returns the probe type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

// WithEnv adds KEY=value pairs to the command environment
func (e *ExecChecker) WithEnv(env ...string) *ExecChecker {
	e.Env = append(e.Env, env...)
	return e
}
