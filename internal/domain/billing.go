package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPastDue, StatusCanceled, StatusIncomplete:
		return true
	default:
		return false
	}
}

type PaymentType string

const (
	PaymentTypeStripe PaymentType = "stripe"
	PaymentTypeCrypto PaymentType = "crypto"
)

type PaymentMethod struct {
	Type          PaymentType
	Last4         string
	WalletAddress string
	ChainID       int64
}

// BillingState is the single mutable entitlement record.
type BillingState struct {
	Plan              Plan
	Status            Status
	PaymentMethod     *PaymentMethod
	StripeCustomerID  string
	SubscriptionID    string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	LastVerified      time.Time
	LicenseKey        string
	CryptoTxHash      string
}

func DefaultBillingState() BillingState {
	return BillingState{Plan: PlanCommunity, Status: StatusActive}
}

// Normalize fills defaults for missing fields and folds legacy plan names.
func (s *BillingState) Normalize() {
	if s == nil {
		return
	}

	plan, err := ParsePlan(string(s.Plan))
	if err != nil {
		plan = PlanCommunity
	}
	s.Plan = plan

	s.Status = Status(strings.ToLower(strings.TrimSpace(string(s.Status))))
	if !s.Status.Valid() {
		s.Status = StatusActive
	}
}

// Entitled reports whether paid features are granted. Sub-fields left over on a
// community record never grant access.
func (s BillingState) Entitled() bool {
	return s.Plan == PlanBeta
}

func (s BillingState) CancelPending() bool {
	return s.Plan == PlanBeta && s.CancelAtPeriodEnd
}

func (s BillingState) PeriodEnded(now time.Time) bool {
	if s.CurrentPeriodEnd.IsZero() {
		return false
	}
	return now.After(s.CurrentPeriodEnd)
}

func (s BillingState) PaymentType() PaymentType {
	if s.PaymentMethod == nil {
		return ""
	}
	return s.PaymentMethod.Type
}
