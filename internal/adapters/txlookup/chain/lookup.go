package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/ports"
	"github.com/rs/zerolog"
)

var _ ports.TransactionLookup = (*Lookup)(nil)

// Lookup asks the primary source first and falls back when it fails.
// A caller-side cancellation is returned as is.
type Lookup struct {
	primary  ports.TransactionLookup
	fallback ports.TransactionLookup
	logger   zerolog.Logger
}

func New(primary ports.TransactionLookup, fallback ports.TransactionLookup, logger zerolog.Logger) (*Lookup, error) {
	if primary == nil {
		return nil, errors.New("primary transaction lookup is required")
	}
	if fallback == nil {
		return nil, errors.New("fallback transaction lookup is required")
	}
	return &Lookup{primary: primary, fallback: fallback, logger: logger}, nil
}

func (l *Lookup) TransactionStatus(ctx context.Context, chain domain.Chain, txHash string) (domain.TransactionStatus, error) {
	status, primaryErr := l.primary.TransactionStatus(ctx, chain, txHash)
	if primaryErr == nil {
		return status, nil
	}
	if ctx.Err() != nil {
		return domain.TransactionStatus{}, primaryErr
	}

	l.logger.Debug().Err(primaryErr).Int64("chain_id", chain.ID).Msg("primary transaction lookup failed, trying fallback")

	status, fallbackErr := l.fallback.TransactionStatus(ctx, chain, txHash)
	if fallbackErr != nil {
		return domain.TransactionStatus{}, fmt.Errorf("look up transaction: %w", errors.Join(primaryErr, fallbackErr))
	}
	return status, nil
}
