package opener

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bnema/ha-billing/internal/ports"
)

// Writer prints the URL for the user to open by hand.
type Writer struct {
	out io.Writer
}

var _ ports.URLOpener = (*Writer)(nil)

func NewWriter(out io.Writer) *Writer {
	if out == nil {
		out = os.Stdout
	}
	return &Writer{out: out}
}

func (w *Writer) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w.out, "Open this URL to continue checkout:\n  %s\n", url); err != nil {
		return fmt.Errorf("print checkout url: %w", err)
	}
	return nil
}
