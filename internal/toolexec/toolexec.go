// Package toolexec runs the external programs mvimg delegates to (ffmpeg,
// ImageMagick, exiftool) and turns their failures into per-item errors.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mt4110/mvimg/internal/motion"
)

// Runner executes name with args and returns its stdout. A nonzero exit,
// a missing binary or a timeout is reported as motion.KindExternalTool.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Exec runs real subprocesses with an optional per-call timeout.
type Exec struct {
	Timeout time.Duration
}

func (e Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.Bytes(), &motion.Error{
			Kind: motion.KindExternalTool,
			Op:   name,
			Err:  fmt.Errorf("timed out after %s", e.Timeout),
		}
	}
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = strings.TrimSpace(stdout.String())
	}
	if msg != "" {
		err = fmt.Errorf("%w\n%s", err, msg)
	}
	return stdout.Bytes(), &motion.Error{Kind: motion.KindExternalTool, Op: name, Err: err}
}

// Func adapts a function to Runner.
type Func func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f Func) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

// Available reports whether bin can be found on PATH (or is an existing path).
func Available(bin string) (string, bool) {
	path, err := exec.LookPath(bin)
	return path, err == nil
}
