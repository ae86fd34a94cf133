package pricefeed

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnema/ha-billing/internal/ports"
	"github.com/shopspring/decimal"
)

var _ ports.PriceFeed = Static{}

// Static serves fixed prices keyed by currency symbol. Used offline and in tests.
type Static map[string]decimal.Decimal

func NewStatic(prices map[string]string) (Static, error) {
	feed := make(Static, len(prices))
	for symbol, raw := range prices {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse static price for %s: %w", symbol, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("static price for %s must be positive", symbol)
		}
		feed[strings.ToUpper(strings.TrimSpace(symbol))] = price
	}
	return feed, nil
}

func (s Static) USDPrice(_ context.Context, currency string) (decimal.Decimal, error) {
	price, ok := s[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return price, nil
}
