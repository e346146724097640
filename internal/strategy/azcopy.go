package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"valetbench/internal/runner"
)

// CommandResult holds the captured output of a finished process.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner starts a process and waits for it.
type CommandRunner interface {
	Run(ctx context.Context, program string, args ...string) (CommandResult, error)
}

// ExecRunner runs commands with os/exec. A non-zero exit is reported through
// ExitCode, not the error; the error is only set when the process could not
// run at all.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, program string, args ...string) (CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		err = nil
	default:
		res.ExitCode = -1
	}
	return res, err
}

// AzCopy delegates the transfer to the azcopy utility.
type AzCopy struct {
	Path        string
	Concurrency int
	BlockSizeMB int
	CapMbps     int
	PutMD5      bool

	Runner CommandRunner
}

// ExitError is a non-zero exit of the transfer utility.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("azcopy exited with code %d", e.Code)
	if s := lastLine(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (a *AzCopy) Mode() string { return ModeAzCopy }

// BaseArgs is the minimal flag set every azcopy version accepts.
func (a *AzCopy) BaseArgs(src, dst string) []string {
	return []string{"cp", src, dst, "--overwrite=true", "--check-length=true"}
}

// TunedArgs adds the tuning flags to BaseArgs.
func (a *AzCopy) TunedArgs(src, dst string) []string {
	args := a.BaseArgs(src, dst)
	if a.Concurrency > 0 {
		args = append(args, fmt.Sprintf("--concurrency-value=%d", a.Concurrency))
	}
	if a.BlockSizeMB > 0 {
		args = append(args, fmt.Sprintf("--block-size-mb=%d", a.BlockSizeMB))
	}
	args = append(args, "--from-to=LocalBlob")
	if a.CapMbps > 0 {
		args = append(args, fmt.Sprintf("--cap-mbps=%d", a.CapMbps))
	}
	if a.PutMD5 {
		args = append(args, "--put-md5")
	}
	return args
}

// Transfer runs azcopy with the tuning flags. If the installed version
// rejects one of them the copy is run once more with BaseArgs. No other
// failure is retried.
func (a *AzCopy) Transfer(ctx context.Context, f runner.FileRef, uploadURL string) error {
	program := a.Path
	if program == "" {
		program = "azcopy"
	}
	r := a.Runner
	if r == nil {
		r = ExecRunner{}
	}

	res, err := r.Run(ctx, program, a.TunedArgs(f.Path, uploadURL)...)
	if err != nil {
		return fmt.Errorf("run %s: %w", program, err)
	}
	if res.ExitCode != 0 && strings.Contains(strings.ToLower(res.Stderr), "unknown flag") {
		res, err = r.Run(ctx, program, a.BaseArgs(f.Path, uploadURL)...)
		if err != nil {
			return fmt.Errorf("run %s: %w", program, err)
		}
	}
	if res.ExitCode != 0 {
		return &ExitError{Code: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
