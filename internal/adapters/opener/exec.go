package opener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/bnema/ha-billing/internal/ports"
)

var ErrUnavailable = errors.New("url opener command unavailable")

type runFunc func(ctx context.Context, name string, args ...string) (stderr string, err error)

// Exec opens URLs with the desktop's handler (xdg-open, open, rundll32).
type Exec struct {
	goos string
	run  runFunc
}

var _ ports.URLOpener = (*Exec)(nil)

func NewExec() *Exec {
	return &Exec{goos: runtime.GOOS, run: runCommand}
}

func (e *Exec) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, args := commandFor(e.goos, url)
	stderr, err := e.run(ctx, name, args...)
	if err != nil {
		return formatError(name, err, stderr)
	}

	return nil
}

func commandFor(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrUnavailable
		}
		return "", fmt.Errorf("locate %s command: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Run()
	return strings.TrimSpace(stderr.String()), err
}

func formatError(name string, err error, stderr string) error {
	if stderr == "" {
		return fmt.Errorf("%s: %w", name, err)
	}

	return fmt.Errorf("%s: %w: %s", name, err, stderr)
}
