package checkout

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bnema/ha-billing/internal/domain"
)

const (
	CallbackPath         = "/checkout/success"
	ClientReferenceParam = "client_reference_id"
)

var (
	ErrCorrelationMismatch = errors.New("checkout callback correlation id mismatch")
	ErrNoPendingCheckout   = errors.New("no pending stripe checkout")
	ErrCallbackTimeout     = errors.New("timed out waiting for checkout callback")
)

// Ledger is the slice of the payment verifier the callback needs.
type Ledger interface {
	PendingCheckout(ctx context.Context) (*domain.PendingCheckout, error)
	RecordPaymentSuccess(ctx context.Context, success domain.PaymentSuccess) error
}

// CallbackServer receives the Stripe success redirect on a loopback port and
// turns it into a PaymentSuccess breadcrumb. The correlation id plays the role
// an OAuth state does: a redirect that does not answer the pending checkout is
// rejected and nothing is recorded.
type CallbackServer struct {
	ledger     Ledger
	listener   net.Listener
	server     *http.Server
	resultCh   chan callbackResult
	resultOnce sync.Once
	closeOnce  sync.Once
}

type callbackResult struct {
	success domain.PaymentSuccess
	err     error
}

func StartCallbackServer(listenAddr string, ledger Ledger) (*CallbackServer, error) {
	if ledger == nil {
		return nil, errors.New("checkout ledger is required")
	}
	if listenAddr == "" {
		listenAddr = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen checkout callback: %w", err)
	}

	cb := &CallbackServer{
		ledger:   ledger,
		listener: listener,
		resultCh: make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, cb.handleCallback)
	cb.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if serveErr := cb.server.Serve(cb.listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			cb.trySendResult(callbackResult{err: serveErr})
		}
	}()

	return cb, nil
}

// SuccessURL is the redirect target to configure on the payment link.
func (c *CallbackServer) SuccessURL() string {
	if tcpAddr, ok := c.listener.Addr().(*net.TCPAddr); ok {
		return fmt.Sprintf("http://localhost:%d%s", tcpAddr.Port, CallbackPath)
	}
	return "http://localhost" + CallbackPath
}

func (c *CallbackServer) Wait(ctx context.Context, timeout time.Duration) (domain.PaymentSuccess, error) {
	defer func() { _ = c.Close() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-c.resultCh:
		return result.success, result.err
	case <-timer.C:
		return domain.PaymentSuccess{}, ErrCallbackTimeout
	case <-ctx.Done():
		return domain.PaymentSuccess{}, ctx.Err()
	}
}

func (c *CallbackServer) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		closeErr = c.server.Close()
	})
	return closeErr
}

func (c *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	correlationID := strings.TrimSpace(query.Get(ClientReferenceParam))

	pending, err := c.ledger.PendingCheckout(r.Context())
	if err != nil {
		http.Error(w, "checkout lookup failed", http.StatusInternalServerError)
		c.trySendResult(callbackResult{err: fmt.Errorf("load pending checkout: %w", err)})
		return
	}
	if pending == nil || pending.Type != domain.PaymentTypeStripe {
		http.Error(w, "no pending checkout", http.StatusConflict)
		c.trySendResult(callbackResult{err: ErrNoPendingCheckout})
		return
	}
	if correlationID == "" || correlationID != pending.CorrelationID {
		http.Error(w, "correlation mismatch", http.StatusBadRequest)
		c.trySendResult(callbackResult{err: ErrCorrelationMismatch})
		return
	}

	success := domain.PaymentSuccess{
		Plan:           pending.Plan,
		Type:           domain.PaymentTypeStripe,
		CorrelationID:  correlationID,
		CustomerID:     strings.TrimSpace(query.Get("customer")),
		SubscriptionID: strings.TrimSpace(query.Get("subscription")),
		Last4:          strings.TrimSpace(query.Get("last4")),
	}
	if err := c.ledger.RecordPaymentSuccess(r.Context(), success); err != nil {
		http.Error(w, "record payment failed", http.StatusInternalServerError)
		c.trySendResult(callbackResult{err: err})
		return
	}

	c.trySendResult(callbackResult{success: success})
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Payment received. You can close this window."))
}

func (c *CallbackServer) trySendResult(result callbackResult) {
	c.resultOnce.Do(func() {
		c.resultCh <- result
	})
}
