package billing

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"

	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/gorm"
)

// checkoutSession runs a full checkout so reconcile tests start from a
// realistic pending payment with gateway metadata attached.
func checkoutSession(t *testing.T, db *gorm.DB, m *LifecycleManager, admin *models.User) *SessionDescriptor {
	t.Helper()
	session, err := m.CreatePaymentSession(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
		PaymentMethod:  "upi",
	})
	if err != nil {
		t.Fatalf("checkout session: %v", err)
	}
	return session
}

func TestFinalizeReturnSuccess(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	c := NewCoordinator(repo, m, gw, nil)
	session := checkoutSession(t, db, m, admin)

	res := c.FinalizeReturn(context.Background(), ReturnSignal{
		OrderID:     session.GatewayOrderID,
		StatusHint:  "SUCCESS",
		ReferenceID: "cf_ref_1",
		RawPayload:  `{"txStatus":"SUCCESS"}`,
	})

	if res.Status != ReconcileSuccess {
		t.Fatalf("status = %s, want SUCCESS (%s)", res.Status, res.Message)
	}
	if res.Payment == nil || res.Payment.Status != models.PaymentCompleted {
		t.Fatalf("payment = %+v, want completed", res.Payment)
	}
	if res.Subscription == nil || res.Subscription.Status != models.SubscriptionActive {
		t.Fatalf("subscription = %+v, want active", res.Subscription)
	}

	stored, err := repo.GetPayment(session.Payment.ID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	cf := stored.Meta().Cashfree
	if cf == nil || cf.ReferenceID != "cf_ref_1" || cf.RawCallback == "" || cf.VerifiedAt == nil {
		t.Fatalf("signal not merged into metadata: %+v", cf)
	}
}

func TestFinalizeReturnFailure(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	c := NewCoordinator(repo, m, gw, nil)
	session := checkoutSession(t, db, m, admin)

	res := c.FinalizeReturn(context.Background(), ReturnSignal{
		OrderID:    session.GatewayOrderID,
		StatusHint: "FAILED",
	})

	if res.Status != ReconcileFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}
	if res.Payment.Status != models.PaymentFailed {
		t.Fatalf("payment = %s, want failed", res.Payment.Status)
	}
	if res.Subscription.Status != models.SubscriptionCancelled {
		t.Fatalf("subscription = %s, want cancelled", res.Subscription.Status)
	}
}

func TestFinalizeReturnMissingReference(t *testing.T) {
	db := newTestDB(t)
	m, repo := newTestManager(db, &fakeGateway{})
	c := NewCoordinator(repo, m, &fakeGateway{}, nil)

	res := c.FinalizeReturn(context.Background(), ReturnSignal{StatusHint: "SUCCESS"})
	if res.Status != ReconcileError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if res.Message != "Missing order reference" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestFinalizeReturnUnknownOrder(t *testing.T) {
	db := newTestDB(t)
	m, repo := newTestManager(db, &fakeGateway{})
	c := NewCoordinator(repo, m, &fakeGateway{}, nil)

	res := c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: "order_unknown", StatusHint: "SUCCESS"})
	if res.Status != ReconcileNotFound {
		t.Fatalf("status = %s, want NOT_FOUND", res.Status)
	}
	if res.Message != "Unknown order reference" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestFinalizeReturnResolvesBySessionID(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	c := NewCoordinator(repo, m, gw, nil)
	session := checkoutSession(t, db, m, admin)

	res := c.FinalizeReturn(context.Background(), ReturnSignal{
		PaymentSessionID: session.PaymentSessionID,
		StatusHint:       "PAID",
	})

	if res.Status != ReconcileSuccess {
		t.Fatalf("status = %s, want SUCCESS (%s)", res.Status, res.Message)
	}
	if res.Payment.ID != session.Payment.ID {
		t.Fatalf("resolved payment %s, want %s", res.Payment.ID, session.Payment.ID)
	}
}

func TestFinalizeReturnPendingCorroboratesGateway(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	session := checkoutSession(t, db, m, admin)

	// The browser came back without a status; the gateway says paid.
	gw.getFn = func(ctx context.Context, orderID string) (*GatewayOrder, error) {
		return &GatewayOrder{OrderID: orderID, CFOrderID: "cf_9", Status: "PAID"}, nil
	}
	c := NewCoordinator(repo, m, gw, nil)

	res := c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: session.GatewayOrderID})
	if res.Status != ReconcileSuccess {
		t.Fatalf("status = %s, want SUCCESS after corroboration", res.Status)
	}
	if gw.getCalls != 1 {
		t.Fatalf("gateway queried %d times, want 1", gw.getCalls)
	}
}

func TestFinalizeReturnStaysPendingOnGatewayFailure(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	session := checkoutSession(t, db, m, admin)

	gw.getFn = func(ctx context.Context, orderID string) (*GatewayOrder, error) {
		return nil, &GatewayRequestError{StatusCode: 503, Message: "unavailable"}
	}
	c := NewCoordinator(repo, m, gw, nil)

	res := c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: session.GatewayOrderID})
	if res.Status != ReconcilePending {
		t.Fatalf("status = %s, want PENDING", res.Status)
	}

	stored, err := repo.GetPayment(session.Payment.ID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if stored.Status != models.PaymentProcessing {
		t.Fatalf("payment = %s, want processing", stored.Status)
	}
}

func TestFinalizeReturnLateContradictionIsHarmless(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	c := NewCoordinator(repo, m, gw, nil)
	session := checkoutSession(t, db, m, admin)

	first := c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: session.GatewayOrderID, StatusHint: "SUCCESS"})
	if first.Status != ReconcileSuccess {
		t.Fatalf("first status = %s", first.Status)
	}

	// A stale FAILED webhook after the success must not unwind anything.
	c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: session.GatewayOrderID, StatusHint: "FAILED"})

	stored, err := repo.GetPayment(session.Payment.ID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if stored.Status != models.PaymentCompleted {
		t.Fatalf("payment regressed to %s", stored.Status)
	}
	sub, err := repo.GetSubscription(*stored.SubscriptionID)
	if err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if sub.Status != models.SubscriptionActive {
		t.Fatalf("subscription regressed to %s", sub.Status)
	}
}

func TestFinalizeReturnConcurrentSignals(t *testing.T) {
	db := newTestDB(t)
	// Serialize writes at the pool so sqlite's shared cache never trips
	// over the two racing finalizes; the coordinator still interleaves.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	c := NewCoordinator(repo, m, gw, nil)
	session := checkoutSession(t, db, m, admin)

	// Webhook and browser return race for the same order: one claims
	// success, the other only reports that the order is in flight.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: session.GatewayOrderID, StatusHint: "SUCCESS"})
	}()
	go func() {
		defer wg.Done()
		c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: session.GatewayOrderID})
	}()
	wg.Wait()

	stored, err := repo.GetPayment(session.Payment.ID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if stored.Status != models.PaymentCompleted {
		t.Fatalf("payment = %s, want completed regardless of signal order", stored.Status)
	}
	sub, err := repo.GetSubscription(*stored.SubscriptionID)
	if err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if sub.Status != models.SubscriptionActive {
		t.Fatalf("subscription = %s, want active regardless of signal order", sub.Status)
	}
}

// flakyRepo fails a configurable number of Transaction calls before
// delegating to the real repository.
type flakyRepo struct {
	Repository
	failures int
	err      error
}

func (f *flakyRepo) Transaction(fn func(Repository) error) error {
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return f.Repository.Transaction(fn)
}

func TestFinalizeReturnRetriesOnceAfterConnectionDrop(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	session := checkoutSession(t, db, m, admin)

	flaky := &flakyRepo{Repository: repo, failures: 1, err: driver.ErrBadConn}
	resets := 0
	c := NewCoordinator(flaky, m, gw, func() error {
		resets++
		return nil
	})

	res := c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: session.GatewayOrderID, StatusHint: "SUCCESS"})
	if res.Status != ReconcileSuccess {
		t.Fatalf("status = %s, want SUCCESS after retry (%s)", res.Status, res.Message)
	}
	if resets != 1 {
		t.Fatalf("connection reset %d times, want 1", resets)
	}
}

func TestFinalizeReturnGivesUpAfterSecondConnectionDrop(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	session := checkoutSession(t, db, m, admin)

	flaky := &flakyRepo{Repository: repo, failures: 2, err: driver.ErrBadConn}
	resets := 0
	c := NewCoordinator(flaky, m, gw, func() error {
		resets++
		return nil
	})

	res := c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: session.GatewayOrderID, StatusHint: "SUCCESS"})
	if res.Status != ReconcileError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if resets != 1 {
		t.Fatalf("connection reset %d times, want exactly 1", resets)
	}
}

func TestFinalizeReturnDoesNotRetryOtherErrors(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)
	session := checkoutSession(t, db, m, admin)

	flaky := &flakyRepo{Repository: repo, failures: 1, err: errors.New("constraint violation")}
	resets := 0
	c := NewCoordinator(flaky, m, gw, func() error {
		resets++
		return nil
	})

	res := c.FinalizeReturn(context.Background(), ReturnSignal{OrderID: session.GatewayOrderID, StatusHint: "SUCCESS"})
	if res.Status != ReconcileError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if resets != 0 {
		t.Fatalf("connection reset %d times, want 0", resets)
	}
}

func TestIsConnectionError(t *testing.T) {
	if !isConnectionError(driver.ErrBadConn) {
		t.Error("driver.ErrBadConn not recognized")
	}
	if !isConnectionError(errWrapped{driver.ErrBadConn}) {
		t.Error("wrapped driver.ErrBadConn not recognized")
	}
	if isConnectionError(errors.New("duplicate key")) {
		t.Error("plain error misclassified as connection failure")
	}
	if isConnectionError(nil) {
		t.Error("nil misclassified")
	}
}

type errWrapped struct{ err error }

func (e errWrapped) Error() string { return "query failed: " + e.err.Error() }
func (e errWrapped) Unwrap() error { return e.err }
