package ports

import (
	"context"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/shopspring/decimal"
)

type TransactionLookup interface {
	TransactionStatus(ctx context.Context, chain domain.Chain, txHash string) (domain.TransactionStatus, error)
}

type PriceFeed interface {
	USDPrice(ctx context.Context, currency string) (decimal.Decimal, error)
}
