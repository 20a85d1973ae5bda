package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const maxLoggedStderr = 8 << 10

// Runner lets us stub external commands in tests. stdin may be nil.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

// NewExecRunner runs commands with os/exec, killing them when ctx ends.
func NewExecRunner(logger *slog.Logger) Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return execRunner{logger: logger}
}

func (r execRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	start := time.Now()
	err := cmd.Run()
	attrs := []any{
		"cmd", name,
		"args", strings.Join(args, " "),
		"duration_ms", time.Since(start).Milliseconds(),
	}

	switch {
	case err == nil:
		r.logger.Debug("exec ok", append(attrs,
			"stdin_bytes", len(stdin),
			"stdout_bytes", stdout.Len(),
			"stderr_bytes", stderr.Len(),
		)...)
	case errors.Is(ctx.Err(), context.Canceled):
		// the caller gave up; the kill is expected
		r.logger.Warn("exec canceled", attrs...)
	default:
		r.logger.Error("exec failed", append(attrs,
			"err", err,
			"stderr", truncate(stderr.String(), maxLoggedStderr),
		)...)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
