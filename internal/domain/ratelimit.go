package domain

import "time"

const (
	MaxLicenseAttempts   = 5
	LicenseAttemptWindow = time.Hour
)

type RateLimitRecord struct {
	Attempts         int
	FirstAttemptTime time.Time
}

func (r RateLimitRecord) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(r.FirstAttemptTime) >= window
}

func (r RateLimitRecord) Blocked(now time.Time, window time.Duration, maxAttempts int) bool {
	return !r.Expired(now, window) && r.Attempts >= maxAttempts
}

func (r RateLimitRecord) Remaining(now time.Time, window time.Duration) time.Duration {
	remaining := window - now.Sub(r.FirstAttemptTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}
