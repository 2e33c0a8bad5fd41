package billing

import (
	"context"
	"database/sql/driver"
	"errors"
	"log"
	"net"
	"time"

	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/gorm"
)

// Coordinator normalizes the independent payment signals (webhook,
// browser return redirect, manual re-check) into one idempotent finalize
// path. Signals for the same order may arrive in any order, any number
// of times, concurrently.
type Coordinator struct {
	repo    Repository
	manager *LifecycleManager
	gateway GatewayClient

	// resetConn reinitializes the database connection pool after a
	// dropped connection. The unit of work is then retried exactly once.
	resetConn func() error
	now       func() time.Time
}

func NewCoordinator(repo Repository, manager *LifecycleManager, gateway GatewayClient, resetConn func() error) *Coordinator {
	if resetConn == nil {
		resetConn = func() error { return nil }
	}
	return &Coordinator{
		repo:      repo,
		manager:   manager,
		gateway:   gateway,
		resetConn: resetConn,
		now:       time.Now,
	}
}

// ReturnSignal is one inbound notification about a payment, from whichever
// channel it arrived on.
type ReturnSignal struct {
	OrderID          string
	PaymentSessionID string
	StatusHint       string
	ReferenceID      string
	RawPayload       string
}

// ReconcileStatus is the closed result set shared by the JSON webhook
// responder and the HTML return-page renderer.
type ReconcileStatus string

const (
	ReconcileSuccess  ReconcileStatus = "SUCCESS"
	ReconcileFailed   ReconcileStatus = "FAILED"
	ReconcilePending  ReconcileStatus = "PENDING"
	ReconcileNotFound ReconcileStatus = "NOT_FOUND"
	ReconcileError    ReconcileStatus = "ERROR"
)

// ReconcileResult is the single contract consumed by every caller; only
// its presentation differs between JSON and HTML.
type ReconcileResult struct {
	Status        ReconcileStatus      `json:"status"`
	Payment       *models.Payment      `json:"payment,omitempty"`
	Subscription  *models.Subscription `json:"subscription,omitempty"`
	GatewayStatus string               `json:"gateway_status,omitempty"`
	Message       string               `json:"message,omitempty"`
}

// FinalizeReturn resolves the signal to a payment, merges the gateway
// metadata, classifies the effective status and, for terminal outcomes,
// hands off to the lifecycle manager after the metadata transaction has
// committed. It never returns an error; failures are folded into the
// result so callers can always render something coherent.
func (c *Coordinator) FinalizeReturn(ctx context.Context, sig ReturnSignal) ReconcileResult {
	orderID, err := c.resolveOrderID(sig)
	if err != nil {
		return ReconcileResult{Status: ReconcileError, Message: "Missing order reference"}
	}

	var payment *models.Payment
	var effective string
	notFound := false

	// The transactional part: locate the payment, merge the inbound
	// signal into its metadata, and persist regardless of outcome so
	// that repeated calls always carry the latest raw payload.
	unit := func() error {
		notFound = false
		return c.repo.Transaction(func(tx Repository) error {
			var err error
			payment, err = c.locatePayment(tx, orderID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound = true
				return nil
			}
			if err != nil {
				return err
			}

			now := c.now()
			meta := payment.Meta()
			if meta.Cashfree == nil {
				meta.Cashfree = &models.CashfreeMetadata{}
			}
			if meta.Cashfree.OrderID == "" {
				meta.Cashfree.OrderID = orderID
			}
			if sig.StatusHint != "" {
				meta.Cashfree.Status = sig.StatusHint
			}
			if sig.PaymentSessionID != "" {
				meta.Cashfree.PaymentSessionID = sig.PaymentSessionID
			}
			if sig.ReferenceID != "" {
				meta.Cashfree.ReferenceID = sig.ReferenceID
			}
			if sig.RawPayload != "" {
				meta.Cashfree.RawCallback = sig.RawPayload
			}
			meta.Cashfree.VerifiedAt = &now

			effective = sig.StatusHint

			// A signal arrived but did not settle anything: record that
			// the payment is in flight without claiming success.
			if payment.Status == models.PaymentPending && ClassifyGatewayStatus(effective) == OutcomePending {
				payment.Status = models.PaymentProcessing
			}

			// Corroborate ambiguous statuses against the gateway, but
			// never block the user-facing flow on gateway flakiness.
			if ClassifyGatewayStatus(effective) == OutcomePending {
				if order, gwErr := c.gateway.GetOrder(ctx, orderID); gwErr == nil {
					effective = order.Status
					meta.Cashfree.Status = order.Status
					if meta.Cashfree.CFOrderID == "" {
						meta.Cashfree.CFOrderID = order.CFOrderID
					}
				} else {
					log.Printf("reconcile: gateway corroboration for order %s failed: %v", orderID, gwErr)
				}
			}

			if err := payment.SetMeta(meta); err != nil {
				return err
			}
			return tx.SavePayment(payment)
		})
	}

	if err := c.runWithReset(unit); err != nil {
		log.Printf("reconcile: finalize for order %s failed: %v", orderID, err)
		return ReconcileResult{Status: ReconcileError, Message: "Payment reconciliation failed, please contact support"}
	}
	if notFound {
		return ReconcileResult{Status: ReconcileNotFound, Message: "Unknown order reference"}
	}

	// The metadata commit is done; terminal outcomes now go through the
	// one authoritative, idempotent mutator.
	switch ClassifyGatewayStatus(effective) {
	case OutcomeSuccess:
		p, sub, err := c.manager.ProcessPayment(ctx, payment.ID, sig.ReferenceID, true, "")
		if err != nil {
			log.Printf("reconcile: process success for payment %s failed: %v", payment.ID, err)
			return ReconcileResult{Status: ReconcileError, Message: "Payment confirmed but activation failed, please contact support"}
		}
		return ReconcileResult{Status: ReconcileSuccess, Payment: p, Subscription: sub, GatewayStatus: effective}
	case OutcomeFailed:
		p, sub, err := c.manager.ProcessPayment(ctx, payment.ID, sig.ReferenceID, false, effective)
		if err != nil {
			log.Printf("reconcile: process failure for payment %s failed: %v", payment.ID, err)
			return ReconcileResult{Status: ReconcileError, Message: "Payment reconciliation failed, please contact support"}
		}
		return ReconcileResult{Status: ReconcileFailed, Payment: p, Subscription: sub, GatewayStatus: effective}
	case OutcomePending:
		return ReconcileResult{Status: ReconcilePending, Payment: payment, GatewayStatus: effective, Message: "Payment is still being processed"}
	default:
		return ReconcileResult{Status: ReconcilePending, Payment: payment, GatewayStatus: effective}
	}
}

// resolveOrderID falls back from an explicit order id to the session-id
// join key. It never guesses.
func (c *Coordinator) resolveOrderID(sig ReturnSignal) (string, error) {
	if sig.OrderID != "" {
		return sig.OrderID, nil
	}
	if sig.PaymentSessionID == "" {
		return "", errors.New("missing order reference")
	}

	var orderID string
	err := c.runWithReset(func() error {
		p, err := c.repo.GetLatestPaymentBySessionID(sig.PaymentSessionID)
		if err != nil {
			return err
		}
		if cf := p.Meta().Cashfree; cf != nil && cf.OrderID != "" {
			orderID = cf.OrderID
		} else {
			orderID = p.TransactionID
		}
		return nil
	})
	if err != nil || orderID == "" {
		return "", errors.New("missing order reference")
	}
	return orderID, nil
}

func (c *Coordinator) locatePayment(tx Repository, orderID string) (*models.Payment, error) {
	p, err := tx.GetPaymentByGatewayOrderID(orderID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return tx.GetPaymentByTransactionID(orderID)
}

// runWithReset runs the unit of work and, if it failed because the
// database connection dropped, resets the connection resource and retries
// exactly once. Any other failure surfaces immediately.
func (c *Coordinator) runWithReset(unit func() error) error {
	err := unit()
	if err == nil || !isConnectionError(err) {
		return err
	}

	log.Printf("reconcile: transient connection failure, reinitializing pool: %v", err)
	if resetErr := c.resetConn(); resetErr != nil {
		return resetErr
	}
	return unit()
}

// isConnectionError recognizes transient infrastructure failures without
// matching driver-specific message strings.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
