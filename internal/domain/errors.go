package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrInvalidLicenseFormat = errors.New("invalid license key format")
	ErrLicenseVerification  = errors.New("license key verification failed")
	ErrStripeNotConfigured  = errors.New("stripe checkout is not configured")
	ErrCryptoNotConfigured  = errors.New("crypto payments are not configured")
	ErrUnsupportedChain     = errors.New("unsupported chain")
	ErrInvalidTxHash        = errors.New("invalid transaction hash")
)

type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type RateLimitError struct {
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	minutes := int(math.Ceil(e.Remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Too many failed attempts. Please try again in %d %s.", minutes, unit)
}

type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid payment configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid payment configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
