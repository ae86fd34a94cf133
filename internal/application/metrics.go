package application

import "github.com/bnema/ha-billing/internal/domain"

// Verification outcomes reported to Metrics next to the CryptoOutcome values.
const (
	OutcomeVerified = "verified"
	OutcomeRevoked  = "revoked"
	OutcomeExpired  = "expired"
)

type Metrics interface {
	ObserveActivation(success bool)
	ObserveRateLimitBlock()
	ObserveVerification(method, outcome string)
	SetPlan(plan domain.Plan)
}

type nopMetrics struct{}

func (nopMetrics) ObserveActivation(bool)             {}
func (nopMetrics) ObserveRateLimitBlock()             {}
func (nopMetrics) ObserveVerification(string, string) {}
func (nopMetrics) SetPlan(domain.Plan)                {}
