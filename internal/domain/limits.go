package domain

import "time"

const (
	VerificationMaxAge = 24 * time.Hour

	LicensePeriod      = 365 * 24 * time.Hour
	SubscriptionPeriod = 30 * 24 * time.Hour
)

type VerificationSnapshot struct {
	AsOf time.Time
}

func (s VerificationSnapshot) IsStale(now time.Time, maxAge time.Duration) bool {
	if s.AsOf.IsZero() {
		return true
	}

	if maxAge <= 0 {
		return false
	}

	return now.Sub(s.AsOf) > maxAge
}
