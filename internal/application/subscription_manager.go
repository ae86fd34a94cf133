package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/licensekey"
	"github.com/bnema/ha-billing/internal/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const verifyFlightKey = "verify"

// PaymentMeta carries what a completed payment tells us about the payer.
type PaymentMeta struct {
	Type           domain.PaymentType
	Last4          string
	WalletAddress  string
	ChainID        int64
	CustomerID     string
	SubscriptionID string
	TxHash         string
}

type ManagerDeps struct {
	Store    ports.KeyValueStore
	Verifier *PaymentVerifier
	Clock    ports.Clock
	Logger   *zerolog.Logger
	Metrics  Metrics
	// MaxVerificationAge defaults to domain.VerificationMaxAge.
	MaxVerificationAge time.Duration
}

// SubscriptionManager is the entitlement API. Mutations always go through the
// shared store; reads are answered from the snapshot taken by the last
// operation.
type SubscriptionManager struct {
	state    *StateStore
	config   *ConfigStore
	limiter  *RateLimiter
	verifier *PaymentVerifier
	clock    ports.Clock
	logger   zerolog.Logger
	metrics  Metrics
	maxAge   time.Duration

	initMu      sync.Mutex
	initialized bool

	verifyGroup singleflight.Group

	mu            sync.RWMutex
	snapshot      domain.BillingState
	paymentConfig domain.PaymentConfig
}

func NewSubscriptionManager(deps ManagerDeps) *SubscriptionManager {
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	maxAge := deps.MaxVerificationAge
	if maxAge <= 0 {
		maxAge = domain.VerificationMaxAge
	}
	config := NewConfigStore(deps.Store)
	verifier := deps.Verifier
	if verifier == nil {
		verifier = NewPaymentVerifier(VerifierDeps{Store: deps.Store, Config: config, Clock: clock})
	}

	return &SubscriptionManager{
		state:         NewStateStore(deps.Store),
		config:        config,
		limiter:       NewRateLimiter(deps.Store, clock),
		verifier:      verifier,
		clock:         clock,
		logger:        logger.With().Str("component", "subscription").Logger(),
		metrics:       metrics,
		maxAge:        maxAge,
		snapshot:      domain.DefaultBillingState(),
		paymentConfig: domain.DefaultPaymentConfig(),
	}
}

// Initialize loads config and state, reconciles a pending payment completion
// once, then runs the staleness-driven verification. Later calls are no-ops.
func (m *SubscriptionManager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.initialized {
		return nil
	}

	cfg, err := m.config.Load(ctx)
	if err != nil {
		return err
	}
	state, err := m.state.Load(ctx)
	if err != nil {
		return err
	}
	m.setPaymentConfig(cfg)
	m.setSnapshot(state)

	if err := m.reconcilePaymentSuccess(ctx); err != nil {
		return err
	}

	if err := m.VerifySubscriptionIfNeeded(ctx); err != nil {
		return err
	}

	m.initialized = true
	return nil
}

func (m *SubscriptionManager) reconcilePaymentSuccess(ctx context.Context) error {
	_, err := m.ApplyPaymentSuccess(ctx)
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		m.logger.Warn().Err(err).Msg("discarded payment completion")
		return nil
	}
	return err
}

// ApplyPaymentSuccess consumes a recorded payment completion and upgrades the
// plan from it. It reports whether anything was applied; a completion that does
// not answer the pending checkout comes back as a *domain.ValidationError.
func (m *SubscriptionManager) ApplyPaymentSuccess(ctx context.Context) (bool, error) {
	success, err := m.verifier.TakePaymentSuccess(ctx)
	if err != nil {
		return false, err
	}
	if success == nil {
		return false, nil
	}

	if success.Type == domain.PaymentTypeCrypto && success.TxHash != "" && success.TxHash == m.State().CryptoTxHash {
		m.logger.Debug().Str("tx_hash", success.TxHash).Msg("crypto payment already applied")
		return false, nil
	}

	meta := PaymentMeta{
		Type:           success.Type,
		Last4:          success.Last4,
		WalletAddress:  success.WalletAddress,
		ChainID:        success.ChainID,
		CustomerID:     success.CustomerID,
		SubscriptionID: success.SubscriptionID,
		TxHash:         success.TxHash,
	}
	if _, err := m.UpdateSubscription(ctx, success.Plan, meta); err != nil {
		return false, fmt.Errorf("apply payment success: %w", err)
	}

	m.logger.Info().Str("type", string(success.Type)).Msg("payment completion applied")
	return true, nil
}

// ActivateWithLicenseKey never mutates BillingState on a failed attempt.
func (m *SubscriptionManager) ActivateWithLicenseKey(ctx context.Context, key string) Result {
	status, err := m.limiter.Reserve(ctx)
	if err != nil {
		return failed(err)
	}
	if status.Blocked {
		m.metrics.ObserveRateLimitBlock()
		return failed(&domain.RateLimitError{Remaining: status.Remaining})
	}

	normalized := licensekey.Normalize(key)
	if !licensekey.CheckFormat(normalized) {
		m.metrics.ObserveActivation(false)
		return failed(&domain.ValidationError{Field: "licenseKey", Reason: "Invalid license key format", Err: domain.ErrInvalidLicenseFormat})
	}
	if !licensekey.Validate(normalized) {
		m.metrics.ObserveActivation(false)
		return failed(&domain.ValidationError{Field: "licenseKey", Reason: "License key verification failed", Err: domain.ErrLicenseVerification})
	}

	now := m.clock.Now()
	state, err := m.state.Update(ctx, func(state *domain.BillingState) error {
		state.Plan = domain.PlanBeta
		state.Status = domain.StatusActive
		state.CurrentPeriodEnd = now.Add(domain.LicensePeriod)
		state.CancelAtPeriodEnd = false
		state.LicenseKey = normalized
		state.LastVerified = now
		state.PaymentMethod = nil
		state.CryptoTxHash = ""
		return nil
	})
	if err != nil {
		return failed(err)
	}
	if err := m.limiter.ClearRateLimit(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("clear license rate limit")
	}

	m.setSnapshot(state)
	m.metrics.ObserveActivation(true)
	m.logger.Info().Str("plan", string(state.Plan)).Msg("license key activated")
	return succeeded()
}

// UpdateSubscription starts a fresh billing period for plan.
func (m *SubscriptionManager) UpdateSubscription(ctx context.Context, plan domain.Plan, meta PaymentMeta) (domain.BillingState, error) {
	if !plan.Valid() {
		return domain.BillingState{}, &domain.ValidationError{Field: "plan", Reason: fmt.Sprintf("unknown plan %q", plan)}
	}

	now := m.clock.Now()
	state, err := m.state.Update(ctx, func(state *domain.BillingState) error {
		if plan == domain.PlanCommunity {
			downgrade(state)
			return nil
		}

		state.Plan = plan
		state.Status = domain.StatusActive
		state.CurrentPeriodEnd = now.Add(domain.SubscriptionPeriod)
		state.CancelAtPeriodEnd = false
		if meta.Type != "" {
			state.PaymentMethod = &domain.PaymentMethod{
				Type:          meta.Type,
				Last4:         meta.Last4,
				WalletAddress: meta.WalletAddress,
				ChainID:       meta.ChainID,
			}
			state.LicenseKey = ""
		}
		if meta.CustomerID != "" {
			state.StripeCustomerID = meta.CustomerID
		}
		if meta.SubscriptionID != "" {
			state.SubscriptionID = meta.SubscriptionID
		}
		if meta.TxHash != "" {
			state.CryptoTxHash = meta.TxHash
		}
		return nil
	})
	if err != nil {
		return domain.BillingState{}, err
	}

	m.setSnapshot(state)
	return state, nil
}

// CancelSubscription keeps the plan until the period ends.
func (m *SubscriptionManager) CancelSubscription(ctx context.Context) (domain.BillingState, error) {
	state, err := m.state.Update(ctx, func(state *domain.BillingState) error {
		if state.Plan != domain.PlanBeta {
			return errLeaveUnchanged
		}
		state.CancelAtPeriodEnd = true
		return nil
	})
	if err != nil {
		return domain.BillingState{}, err
	}

	m.setSnapshot(state)
	return state, nil
}

// VerifySubscription re-checks whatever backs a beta entitlement. Lookup
// failures are logged and leave the persisted state untouched.
func (m *SubscriptionManager) VerifySubscription(ctx context.Context) error {
	current, err := m.state.Load(ctx)
	if err != nil {
		return err
	}
	if current.Plan != domain.PlanBeta {
		m.setSnapshot(current)
		return nil
	}

	if current.LicenseKey != "" && !licensekey.Validate(current.LicenseKey) {
		return m.revokeLicense(ctx, current.LicenseKey)
	}

	method := "license"
	status := domain.StatusActive
	switch current.PaymentType() {
	case domain.PaymentTypeStripe:
		method = string(domain.PaymentTypeStripe)
		m.logger.Warn().Str("subscription_id", current.SubscriptionID).Msg("stripe subscription check not implemented, treating as valid")
	case domain.PaymentTypeCrypto:
		method = string(domain.PaymentTypeCrypto)
		if current.CryptoTxHash != "" {
			chainID := current.PaymentMethod.ChainID
			verification, err := m.verifier.VerifyCryptoPayment(ctx, current.CryptoTxHash, chainID)
			if err != nil {
				m.metrics.ObserveVerification(method, string(CryptoInconclusive))
				m.logger.Warn().Err(err).Str("tx_hash", current.CryptoTxHash).Int64("chain_id", chainID).
					Msg("crypto verification inconclusive, keeping entitlement")
				m.setSnapshot(current)
				return nil
			}
			m.metrics.ObserveVerification(method, string(verification.Outcome))
			if verification.Outcome != CryptoConfirmed {
				status = domain.StatusPastDue
			}
		}
	}

	now := m.clock.Now()
	if current.PeriodEnded(now) {
		status = domain.StatusPastDue
	}

	next, err := m.state.Update(ctx, func(state *domain.BillingState) error {
		if state.Plan != domain.PlanBeta || state.CryptoTxHash != current.CryptoTxHash || state.LicenseKey != current.LicenseKey {
			return errLeaveUnchanged
		}
		state.Status = status
		state.LastVerified = now
		return nil
	})
	if err != nil {
		return err
	}

	if method != string(domain.PaymentTypeCrypto) {
		m.metrics.ObserveVerification(method, OutcomeVerified)
	}
	m.setSnapshot(next)
	return nil
}

// VerifySubscriptionIfNeeded applies period expiry and re-verifies a stale
// record. Concurrent callers on one instance share a single pass.
func (m *SubscriptionManager) VerifySubscriptionIfNeeded(ctx context.Context) error {
	_, err, _ := m.verifyGroup.Do(verifyFlightKey, func() (any, error) {
		return nil, m.verifyIfNeeded(ctx)
	})
	return err
}

func (m *SubscriptionManager) verifyIfNeeded(ctx context.Context) error {
	current, err := m.state.Load(ctx)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	if current.Plan == domain.PlanBeta && current.PeriodEnded(now) {
		if current.CancelAtPeriodEnd {
			return m.expireCanceled(ctx)
		}

		next, err := m.state.Update(ctx, func(state *domain.BillingState) error {
			if state.Plan != domain.PlanBeta || !state.PeriodEnded(now) || state.CancelAtPeriodEnd {
				return errLeaveUnchanged
			}
			state.Status = domain.StatusPastDue
			return nil
		})
		if err != nil {
			return err
		}
		m.setSnapshot(next)
		m.logger.Info().Time("period_end", current.CurrentPeriodEnd).Msg("billing period ended without cancellation")
		return m.VerifySubscription(ctx)
	}

	if (domain.VerificationSnapshot{AsOf: current.LastVerified}).IsStale(now, m.maxAge) {
		return m.VerifySubscription(ctx)
	}

	m.setSnapshot(current)
	return nil
}

func (m *SubscriptionManager) expireCanceled(ctx context.Context) error {
	now := m.clock.Now()
	state, err := m.state.Update(ctx, func(state *domain.BillingState) error {
		if state.Plan != domain.PlanBeta || !state.CancelAtPeriodEnd || !state.PeriodEnded(now) {
			return errLeaveUnchanged
		}
		downgrade(state)
		state.LastVerified = now
		return nil
	})
	if err != nil {
		return err
	}

	m.metrics.ObserveVerification("cancellation", OutcomeExpired)
	m.logger.Info().Msg("canceled subscription expired, downgraded to community")
	m.setSnapshot(state)
	return nil
}

func (m *SubscriptionManager) revokeLicense(ctx context.Context, key string) error {
	now := m.clock.Now()
	state, err := m.state.Update(ctx, func(state *domain.BillingState) error {
		if state.LicenseKey != key {
			return errLeaveUnchanged
		}
		downgrade(state)
		state.LastVerified = now
		return nil
	})
	if err != nil {
		return err
	}

	m.metrics.ObserveVerification("license", OutcomeRevoked)
	m.logger.Warn().Msg("stored license key no longer validates, downgraded to community")
	m.setSnapshot(state)
	return nil
}

func (m *SubscriptionManager) ConfigurePayment(ctx context.Context, patch domain.PaymentConfigPatch) Result {
	cfg, err := m.config.Apply(ctx, patch)
	if err != nil {
		return failed(err)
	}

	m.setPaymentConfig(cfg)
	return succeeded()
}

func (m *SubscriptionManager) OpenStripeCheckout(ctx context.Context) Result {
	if _, err := m.verifier.OpenStripeCheckout(ctx); err != nil {
		return failed(err)
	}
	return succeeded()
}

func (m *SubscriptionManager) InitiateCryptoPayment(ctx context.Context, chainID int64) CryptoPaymentResult {
	request, err := m.verifier.InitiateCryptoPayment(ctx, chainID)
	if err != nil {
		return CryptoPaymentResult{Result: failed(err)}
	}
	return CryptoPaymentResult{Result: succeeded(), Request: &request}
}

// ConfirmCryptoPayment grants beta before the transaction is confirmed on
// chain; the periodic verification settles the status later.
func (m *SubscriptionManager) ConfirmCryptoPayment(ctx context.Context, txHash, fromAddress string, chainID int64) Result {
	if err := m.verifier.ValidateCryptoConfirmation(ctx, txHash, fromAddress, chainID); err != nil {
		return failed(err)
	}

	if _, err := m.UpdateSubscription(ctx, domain.PlanBeta, PaymentMeta{
		Type:          domain.PaymentTypeCrypto,
		WalletAddress: fromAddress,
		ChainID:       chainID,
		TxHash:        txHash,
	}); err != nil {
		return failed(err)
	}

	if err := m.verifier.RecordPaymentSuccess(ctx, domain.PaymentSuccess{
		Plan:          domain.PlanBeta,
		Type:          domain.PaymentTypeCrypto,
		TxHash:        txHash,
		WalletAddress: fromAddress,
		ChainID:       chainID,
	}); err != nil {
		m.logger.Warn().Err(err).Msg("record crypto payment breadcrumb")
	}

	m.logger.Info().Str("tx_hash", txHash).Int64("chain_id", chainID).Msg("crypto payment accepted pending confirmation")
	return succeeded()
}

// ResetAllData puts the billing state back to its default and drops payment
// breadcrumbs. The license rate limit record survives.
func (m *SubscriptionManager) ResetAllData(ctx context.Context) error {
	state, err := m.state.Reset(ctx)
	if err != nil {
		return err
	}
	if err := m.verifier.ClearBreadcrumbs(ctx); err != nil {
		return err
	}

	m.setSnapshot(state)
	return nil
}

func (m *SubscriptionManager) State() domain.BillingState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := m.snapshot
	if state.PaymentMethod != nil {
		method := *state.PaymentMethod
		state.PaymentMethod = &method
	}
	return state
}

func (m *SubscriptionManager) PaymentConfig() domain.PaymentConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := m.paymentConfig
	cfg.SupportedChainIDs = append([]int64(nil), cfg.SupportedChainIDs...)
	return cfg
}

func (m *SubscriptionManager) Plan() domain.Plan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Plan
}

func (m *SubscriptionManager) HasWatermark() bool {
	return m.Plan().Details().Watermark
}

func (m *SubscriptionManager) WorkflowLimit() int {
	return m.Plan().Details().WorkflowLimit
}

func (m *SubscriptionManager) UsageLimit() domain.UsageLimit {
	return m.Plan().Details().Usage
}

func (m *SubscriptionManager) IsWithinLimits(actions, sessions int) bool {
	return m.UsageLimit().Allows(actions, sessions)
}

func (m *SubscriptionManager) IsFeatureAllowed(feature domain.Feature) bool {
	return m.Plan().Allows(feature)
}

func (m *SubscriptionManager) setSnapshot(state domain.BillingState) {
	m.mu.Lock()
	m.snapshot = state
	m.mu.Unlock()

	m.metrics.SetPlan(state.Plan)
}

func (m *SubscriptionManager) setPaymentConfig(cfg domain.PaymentConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentConfig = cfg
}

func downgrade(state *domain.BillingState) {
	*state = domain.DefaultBillingState()
}
