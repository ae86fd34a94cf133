package application

import (
	"errors"

	"github.com/bnema/ha-billing/internal/domain"
)

// Result is what caller-facing operations return instead of an error so UI
// layers can render Error directly. Err keeps the typed error for errors.As.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	err error
}

func (r Result) Err() error {
	return r.err
}

type CryptoPaymentResult struct {
	Result
	Request *domain.CryptoPaymentRequest `json:"request,omitempty"`
}

func succeeded() Result {
	return Result{Success: true}
}

// failed surfaces the innermost typed error's message when there is one, so
// wrapping context never leaks into what the user reads.
func failed(err error) Result {
	return Result{Error: userMessage(err), err: err}
}

func userMessage(err error) string {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}
	var rateLimitErr *domain.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr.Error()
	}
	var configErr *domain.ConfigurationError
	if errors.As(err, &configErr) {
		return configErr.Error()
	}
	var networkErr *domain.NetworkError
	if errors.As(err, &networkErr) {
		return networkErr.Error()
	}
	return err.Error()
}
