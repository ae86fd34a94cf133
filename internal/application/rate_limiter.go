package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/ports"
)

type RateLimitStatus struct {
	Blocked   bool
	Attempts  int
	Remaining time.Duration
}

// RateLimiter throttles license key attempts. The record lives in the shared
// store so every manager instance counts against the same cap.
type RateLimiter struct {
	kv          ports.KeyValueStore
	clock       ports.Clock
	maxAttempts int
	window      time.Duration
}

func NewRateLimiter(kv ports.KeyValueStore, clock ports.Clock) *RateLimiter {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &RateLimiter{
		kv:          kv,
		clock:       clock,
		maxAttempts: domain.MaxLicenseAttempts,
		window:      domain.LicenseAttemptWindow,
	}
}

// CheckRateLimit reports the current throttle state and drops an expired record.
func (l *RateLimiter) CheckRateLimit(ctx context.Context) (RateLimitStatus, error) {
	var status RateLimitStatus

	err := l.kv.Update(ctx, KeyLicenseRateLimit, func(current []byte) ([]byte, error) {
		record, err := decodeRateLimit(current)
		if err != nil {
			return nil, err
		}

		now := l.clock.Now()
		if record == nil || record.Expired(now, l.window) {
			status = RateLimitStatus{}
			return nil, nil
		}

		status = l.statusOf(*record, now)
		return current, nil
	})
	if err != nil {
		return RateLimitStatus{}, fmt.Errorf("check rate limit: %w", err)
	}

	return status, nil
}

func (l *RateLimiter) RecordFailedAttempt(ctx context.Context) error {
	err := l.kv.Update(ctx, KeyLicenseRateLimit, func(current []byte) ([]byte, error) {
		record, err := decodeRateLimit(current)
		if err != nil {
			return nil, err
		}

		return encodeRateLimit(l.increment(record, l.clock.Now()))
	})
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}

	return nil
}

func (l *RateLimiter) ClearRateLimit(ctx context.Context) error {
	if err := l.kv.Remove(ctx, KeyLicenseRateLimit); err != nil {
		return fmt.Errorf("clear rate limit: %w", err)
	}
	return nil
}

// Reserve checks and counts an attempt in one serialized step. A blocked
// status leaves the record untouched; otherwise the attempt is counted up
// front and a successful activation clears it afterwards.
func (l *RateLimiter) Reserve(ctx context.Context) (RateLimitStatus, error) {
	var status RateLimitStatus

	err := l.kv.Update(ctx, KeyLicenseRateLimit, func(current []byte) ([]byte, error) {
		record, err := decodeRateLimit(current)
		if err != nil {
			return nil, err
		}

		now := l.clock.Now()
		if record != nil && record.Blocked(now, l.window, l.maxAttempts) {
			status = l.statusOf(*record, now)
			return current, nil
		}

		next := l.increment(record, now)
		status = RateLimitStatus{Attempts: next.Attempts}
		return encodeRateLimit(next)
	})
	if err != nil {
		return RateLimitStatus{}, fmt.Errorf("reserve license attempt: %w", err)
	}

	return status, nil
}

func (l *RateLimiter) increment(record *domain.RateLimitRecord, now time.Time) domain.RateLimitRecord {
	if record == nil || record.Expired(now, l.window) {
		return domain.RateLimitRecord{Attempts: 1, FirstAttemptTime: now}
	}

	next := *record
	next.Attempts++
	return next
}

func (l *RateLimiter) statusOf(record domain.RateLimitRecord, now time.Time) RateLimitStatus {
	status := RateLimitStatus{Attempts: record.Attempts}
	if record.Blocked(now, l.window, l.maxAttempts) {
		status.Blocked = true
		status.Remaining = record.Remaining(now, l.window)
	}
	return status
}
