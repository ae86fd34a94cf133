package opener

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/ha-billing/internal/ports"
)

type Fallback struct {
	primary  ports.URLOpener
	fallback ports.URLOpener
}

var _ ports.URLOpener = (*Fallback)(nil)

var (
	errNilPrimaryOpener  = errors.New("primary url opener is nil")
	errNilFallbackOpener = errors.New("fallback url opener is nil")
)

func NewFallback(primary ports.URLOpener, fallback ports.URLOpener) (*Fallback, error) {
	if primary == nil {
		return nil, errNilPrimaryOpener
	}
	if fallback == nil {
		return nil, errNilFallbackOpener
	}

	return &Fallback{primary: primary, fallback: fallback}, nil
}

// NewDesktopWithPrintFallback tries the desktop handler and prints the URL to
// out when that fails.
func NewDesktopWithPrintFallback(out io.Writer) *Fallback {
	return &Fallback{primary: NewExec(), fallback: NewWriter(out)}
}

func (f *Fallback) Open(ctx context.Context, url string) error {
	err := f.primary.Open(ctx, url)
	if err == nil {
		return nil
	}
	if shouldSkipFallback(err) {
		return err
	}

	fallbackErr := f.fallback.Open(ctx, url)
	if fallbackErr == nil {
		return nil
	}

	return fmt.Errorf("primary opener failed: %w; fallback opener failed: %w", err, fallbackErr)
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
