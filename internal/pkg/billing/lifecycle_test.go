package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/gorm"
)

func seedActiveSubscription(t *testing.T, db *gorm.DB, admin *models.User, plan *models.SubscriptionPlan, amount float64, start, end time.Time) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		AdminID:       admin.ID,
		PlanID:        plan.ID,
		BillingCycle:  models.CycleMonthly,
		Amount:        amount,
		StartDate:     start,
		EndDate:       end,
		Status:        models.SubscriptionActive,
		PaymentStatus: models.SubPaymentPaid,
		AutoRenew:     true,
	}
	sub.ApplyPlanSnapshot(plan)
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("seed active subscription: %v", err)
	}
	return sub
}

func TestCreateSubscriptionPendingPair(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	plan := seedPlan(t, db, "Starter", 10, 83)
	m, _ := newTestManager(db, &fakeGateway{})

	sub, payment, err := m.CreateSubscription(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
		PaymentMethod:  "upi",
		AutoRenew:      true,
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	if sub.Status != models.SubscriptionPending {
		t.Errorf("subscription status = %s, want pending", sub.Status)
	}
	if sub.Amount != 830 {
		t.Errorf("subscription amount = %v, want 830", sub.Amount)
	}
	if !sub.EndDate.Equal(testClock.AddDate(0, 1, 0)) {
		t.Errorf("end date = %v, want one month after start", sub.EndDate)
	}
	if sub.MaxSlots != plan.MaxSlots || sub.MaxGateways != plan.MaxGateways {
		t.Errorf("plan limits not snapshotted: %+v", sub)
	}

	if payment.Status != models.PaymentPending {
		t.Errorf("payment status = %s, want pending", payment.Status)
	}
	if payment.SubscriptionID == nil || *payment.SubscriptionID != sub.ID {
		t.Errorf("payment not linked to subscription")
	}
	if payment.Amount != sub.Amount || payment.Currency != "INR" {
		t.Errorf("payment amount/currency = %v %s", payment.Amount, payment.Currency)
	}
}

func TestCreateSubscriptionTrial(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	m, _ := newTestManager(db, &fakeGateway{})

	sub, _, err := m.CreateSubscription(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
		TrialDays:      14,
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if sub.Status != models.SubscriptionTrial {
		t.Fatalf("status = %s, want trial", sub.Status)
	}
	if sub.TrialEndDate == nil || !sub.TrialEndDate.Equal(testClock.AddDate(0, 0, 14)) {
		t.Fatalf("trial end = %v, want 14 days out", sub.TrialEndDate)
	}
}

func TestCreateSubscriptionRejectsSecondEntitled(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	plan := seedPlan(t, db, "Starter", 10, 1)
	seedActiveSubscription(t, db, admin, plan, 100, testClock.AddDate(0, -1, 0), testClock.AddDate(0, 1, 0))
	m, _ := newTestManager(db, &fakeGateway{})

	_, _, err := m.CreateSubscription(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	if !IsValidation(err) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestCreateSubscriptionCancelsStalePending(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	m, repo := newTestManager(db, &fakeGateway{})

	first, _, err := m.CreateSubscription(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}

	second, _, err := m.CreateSubscription(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("second checkout reused the first subscription")
	}

	stale, err := repo.GetSubscription(first.ID)
	if err != nil {
		t.Fatalf("reload first subscription: %v", err)
	}
	if stale.Status != models.SubscriptionCancelled {
		t.Fatalf("stale status = %s, want cancelled", stale.Status)
	}
	if stale.CancelReason != "superseded by new checkout" {
		t.Fatalf("cancel reason = %q", stale.CancelReason)
	}
}

func TestCreatePaymentSessionPersistsGatewayMetadata(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)

	session, err := m.CreatePaymentSession(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("CreatePaymentSession: %v", err)
	}
	if gw.createCalls != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.createCalls)
	}
	if session.GatewayOrderID != session.Payment.TransactionID {
		t.Errorf("gateway order id %q != transaction id %q", session.GatewayOrderID, session.Payment.TransactionID)
	}
	if session.PaymentSessionID == "" {
		t.Error("payment session id missing")
	}

	stored, err := repo.GetPayment(session.Payment.ID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	cf := stored.Meta().Cashfree
	if cf == nil || cf.OrderID != session.GatewayOrderID || cf.PaymentSessionID != session.PaymentSessionID {
		t.Fatalf("gateway metadata not persisted: %+v", cf)
	}

	found, err := repo.GetPaymentByGatewayOrderID(session.GatewayOrderID)
	if err != nil {
		t.Fatalf("lookup by gateway order id: %v", err)
	}
	if found.ID != stored.ID {
		t.Fatalf("lookup resolved %s, want %s", found.ID, stored.ID)
	}
}

func TestCreatePaymentSessionRollsBackOnGatewayFailure(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	gw := &fakeGateway{
		createFn: func(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
			return nil, &GatewayRequestError{StatusCode: 502, Message: "upstream down"}
		},
	}
	m, _ := newTestManager(db, gw)

	_, err := m.CreatePaymentSession(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	var reqErr *GatewayRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("got %v, want GatewayRequestError", err)
	}

	var subCount, payCount int64
	db.Model(&models.Subscription{}).Count(&subCount)
	db.Model(&models.Payment{}).Count(&payCount)
	if subCount != 0 || payCount != 0 {
		t.Fatalf("rollback left %d subscriptions, %d payments", subCount, payCount)
	}
}

func TestProcessPaymentSuccessActivates(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	m, _ := newTestManager(db, &fakeGateway{})

	_, payment, err := m.CreateSubscription(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	p, sub, err := m.ProcessPayment(context.Background(), payment.ID, "ref_123", true, "")
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	if p.Status != models.PaymentCompleted || p.ProcessedAt == nil {
		t.Fatalf("payment = %s processedAt=%v, want completed with timestamp", p.Status, p.ProcessedAt)
	}
	if cf := p.Meta().Cashfree; cf == nil || cf.ReferenceID != "ref_123" {
		t.Errorf("gateway reference not recorded: %+v", cf)
	}
	if sub.Status != models.SubscriptionActive || sub.PaymentStatus != models.SubPaymentPaid {
		t.Fatalf("subscription = %s/%s, want active/paid", sub.Status, sub.PaymentStatus)
	}
	if sub.NextBillingDate == nil || !sub.NextBillingDate.Equal(sub.EndDate) {
		t.Fatalf("next billing = %v, want end date %v", sub.NextBillingDate, sub.EndDate)
	}
}

func TestProcessPaymentIdempotent(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	m, _ := newTestManager(db, &fakeGateway{})

	_, payment, err := m.CreateSubscription(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if _, _, err := m.ProcessPayment(context.Background(), payment.ID, "ref_1", true, ""); err != nil {
		t.Fatalf("first ProcessPayment: %v", err)
	}

	// A later contradictory signal must not unwind the terminal state.
	p, sub, err := m.ProcessPayment(context.Background(), payment.ID, "ref_2", false, "USER_DROPPED")
	if err != nil {
		t.Fatalf("second ProcessPayment: %v", err)
	}
	if p.Status != models.PaymentCompleted {
		t.Fatalf("payment regressed to %s", p.Status)
	}
	if sub.Status != models.SubscriptionActive {
		t.Fatalf("subscription regressed to %s", sub.Status)
	}
}

func TestProcessPaymentFailureCancelsPending(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	m, _ := newTestManager(db, &fakeGateway{})

	_, payment, err := m.CreateSubscription(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	p, sub, err := m.ProcessPayment(context.Background(), payment.ID, "", false, "payment declined")
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if p.Status != models.PaymentFailed || p.FailureReason != "payment declined" {
		t.Fatalf("payment = %s reason=%q", p.Status, p.FailureReason)
	}
	if sub.Status != models.SubscriptionCancelled {
		t.Fatalf("subscription = %s, want cancelled", sub.Status)
	}
	if sub.CancelReason != "payment failed" {
		t.Fatalf("cancel reason = %q", sub.CancelReason)
	}

	// The admin can check out again right away.
	if _, _, err := m.CreateSubscription(context.Background(), CheckoutInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	}); err != nil {
		t.Fatalf("re-checkout after failure: %v", err)
	}
}

func TestProcessPaymentFailureKeepsActiveSubscription(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	plan := seedPlan(t, db, "Starter", 10, 1)
	sub := seedActiveSubscription(t, db, admin, plan, 500, testClock.AddDate(0, -1, 0), testClock.AddDate(0, 1, 0))
	m, repo := newTestManager(db, &fakeGateway{})

	payment := &models.Payment{
		TransactionID:  NewOrderID(),
		UserID:         admin.ID,
		SubscriptionID: &sub.ID,
		Type:           models.PaymentTypeSubscription,
		Amount:         500,
		Currency:       "INR",
		Status:         models.PaymentPending,
	}
	if err := repo.CreatePayment(payment); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	_, got, err := m.ProcessPayment(context.Background(), payment.ID, "", false, "declined")
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if got.Status != models.SubscriptionActive {
		t.Fatalf("subscription = %s, want still active", got.Status)
	}
	if got.PaymentStatus != models.SubPaymentFailed {
		t.Fatalf("payment status = %s, want failed", got.PaymentStatus)
	}
}

func TestProratedCredit(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		amount float64
		now    time.Time
		want   float64
	}{
		{"mid cycle", 620, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), 320},
		{"cycle start", 620, start, 620},
		{"past end", 620, end.AddDate(0, 0, 5), 0},
		{"zero amount", 0, start, 0},
	}
	for _, c := range cases {
		if got := ProratedCredit(c.amount, start, end, c.now); got != c.want {
			t.Errorf("%s: ProratedCredit = %v, want %v", c.name, got, c.want)
		}
	}

	if got := ProratedCredit(100, start, start, start); got != 0 {
		t.Errorf("degenerate cycle: ProratedCredit = %v, want 0", got)
	}
}

func TestUpgradeSubscriptionProrates(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	starter := seedPlan(t, db, "Starter", 620, 1)
	seedPlan(t, db, "Pro", 1000, 1)
	current := seedActiveSubscription(t, db, admin, starter, 620,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	m, repo := newTestManager(db, &fakeGateway{})

	res, err := m.UpgradeSubscription(context.Background(), UpgradeInput{
		Admin:          admin,
		PlanIdentifier: "pro",
		Cycle:          models.CycleMonthly,
		PaymentMethod:  "upi",
	})
	if err != nil {
		t.Fatalf("UpgradeSubscription: %v", err)
	}

	if res.Activated {
		t.Fatal("upgrade activated without payment")
	}
	if res.CreditAmount != 320 {
		t.Errorf("credit = %v, want 320", res.CreditAmount)
	}
	if res.FinalPrice != 680 {
		t.Errorf("final price = %v, want 680", res.FinalPrice)
	}
	if res.Session == nil || res.Session.Payment.Amount != 680 {
		t.Fatalf("session payment = %+v, want amount 680", res.Session)
	}
	if res.Session.Payment.Type != models.PaymentTypeUpgrade {
		t.Errorf("payment type = %s, want upgrade", res.Session.Payment.Type)
	}
	if res.Session.Payment.Meta().PriorSubscriptionID != current.ID {
		t.Errorf("prior subscription id not recorded")
	}

	// The running subscription stays untouched until the upgrade is paid.
	got, err := repo.GetSubscription(current.ID)
	if err != nil {
		t.Fatalf("reload current: %v", err)
	}
	if got.Status != models.SubscriptionActive {
		t.Fatalf("current subscription = %s, want active", got.Status)
	}
}

func TestUpgradePaymentSuccessCancelsPrior(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	starter := seedPlan(t, db, "Starter", 620, 1)
	seedPlan(t, db, "Pro", 1000, 1)
	current := seedActiveSubscription(t, db, admin, starter, 620,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	m, repo := newTestManager(db, &fakeGateway{})

	res, err := m.UpgradeSubscription(context.Background(), UpgradeInput{
		Admin:          admin,
		PlanIdentifier: "pro",
		Cycle:          models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("UpgradeSubscription: %v", err)
	}

	_, newSub, err := m.ProcessPayment(context.Background(), res.Session.Payment.ID, "ref_up", true, "")
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if newSub.Status != models.SubscriptionActive {
		t.Fatalf("new subscription = %s, want active", newSub.Status)
	}

	prior, err := repo.GetSubscription(current.ID)
	if err != nil {
		t.Fatalf("reload prior: %v", err)
	}
	if prior.Status != models.SubscriptionCancelled || prior.CancelReason != "upgraded" {
		t.Fatalf("prior = %s reason=%q, want cancelled/upgraded", prior.Status, prior.CancelReason)
	}
}

func TestUpgradeImmediateActivationWhenCredited(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	pro := seedPlan(t, db, "Pro", 1000, 1)
	seedPlan(t, db, "Lite", 100, 1)
	current := seedActiveSubscription(t, db, admin, pro, 1000,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	gw := &fakeGateway{}
	m, repo := newTestManager(db, gw)

	res, err := m.UpgradeSubscription(context.Background(), UpgradeInput{
		Admin:          admin,
		PlanIdentifier: "lite",
		Cycle:          models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("UpgradeSubscription: %v", err)
	}

	if !res.Activated || res.FinalPrice != 0 {
		t.Fatalf("res = %+v, want immediate activation at 0", res)
	}
	if gw.createCalls != 0 {
		t.Fatal("gateway contacted for a fully credited upgrade")
	}
	if res.NewSubscription.Status != models.SubscriptionActive {
		t.Fatalf("new subscription = %s, want active", res.NewSubscription.Status)
	}

	prior, err := repo.GetSubscription(current.ID)
	if err != nil {
		t.Fatalf("reload prior: %v", err)
	}
	if prior.Status != models.SubscriptionCancelled {
		t.Fatalf("prior = %s, want cancelled", prior.Status)
	}
}

func TestUpgradeRejectsSamePlanAndCycle(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	plan := seedPlan(t, db, "Starter", 10, 1)
	seedActiveSubscription(t, db, admin, plan, 10, testClock.AddDate(0, -1, 0), testClock.AddDate(0, 1, 0))
	m, _ := newTestManager(db, &fakeGateway{})

	_, err := m.UpgradeSubscription(context.Background(), UpgradeInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	if !IsValidation(err) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestUpgradeRequiresEntitledSubscription(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	seedPlan(t, db, "Starter", 10, 1)
	m, _ := newTestManager(db, &fakeGateway{})

	_, err := m.UpgradeSubscription(context.Background(), UpgradeInput{
		Admin:          admin,
		PlanIdentifier: "starter",
		Cycle:          models.CycleMonthly,
	})
	if !IsValidation(err) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestCancelSubscription(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	plan := seedPlan(t, db, "Starter", 10, 1)
	sub := seedActiveSubscription(t, db, admin, plan, 10, testClock.AddDate(0, -1, 0), testClock.AddDate(0, 1, 0))
	m, _ := newTestManager(db, &fakeGateway{})

	got, err := m.CancelSubscription(context.Background(), sub.ID, "customer request")
	if err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	if got.Status != models.SubscriptionCancelled || got.CancelReason != "customer request" {
		t.Fatalf("got %s/%q", got.Status, got.CancelReason)
	}
	if got.AutoRenew {
		t.Fatal("auto renew still enabled after cancel")
	}

	// Cancelling again keeps the original reason.
	again, err := m.CancelSubscription(context.Background(), sub.ID, "different reason")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.CancelReason != "customer request" {
		t.Fatalf("cancel reason overwritten to %q", again.CancelReason)
	}

	if _, err := m.CancelSubscription(context.Background(), "missing-id", "x"); !IsNotFound(err) {
		t.Fatalf("got %v, want not-found", err)
	}
}

func TestRenewSubscription(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	plan := seedPlan(t, db, "Starter", 10, 1)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	sub := seedActiveSubscription(t, db, admin, plan, 500, start, end)
	m, _ := newTestManager(db, &fakeGateway{})

	got, payment, err := m.RenewSubscription(context.Background(), sub.ID, "upi")
	if err != nil {
		t.Fatalf("RenewSubscription: %v", err)
	}

	if !got.StartDate.Equal(start.AddDate(0, 1, 0)) || !got.EndDate.Equal(end.AddDate(0, 1, 0)) {
		t.Fatalf("dates = %v..%v, want advanced one cycle", got.StartDate, got.EndDate)
	}
	if got.PaymentStatus != models.SubPaymentPending {
		t.Fatalf("payment status = %s, want pending", got.PaymentStatus)
	}
	if payment == nil || payment.Amount != 500 || payment.Status != models.PaymentPending {
		t.Fatalf("renewal payment = %+v", payment)
	}
}

func TestRenewSubscriptionPreconditions(t *testing.T) {
	db := newTestDB(t)
	admin := seedAdmin(t, db)
	plan := seedPlan(t, db, "Starter", 10, 1)
	m, repo := newTestManager(db, &fakeGateway{})

	sub := seedActiveSubscription(t, db, admin, plan, 10, testClock.AddDate(0, -1, 0), testClock.AddDate(0, 1, 0))
	sub.AutoRenew = false
	if err := repo.SaveSubscription(sub); err != nil {
		t.Fatalf("disable auto renew: %v", err)
	}
	if _, _, err := m.RenewSubscription(context.Background(), sub.ID, "upi"); !IsValidation(err) {
		t.Fatalf("auto-renew off: got %v, want validation error", err)
	}

	sub.AutoRenew = true
	sub.EndDate = testClock.AddDate(0, 0, -1)
	if err := repo.SaveSubscription(sub); err != nil {
		t.Fatalf("expire subscription: %v", err)
	}
	if _, _, err := m.RenewSubscription(context.Background(), sub.ID, "upi"); !IsValidation(err) {
		t.Fatalf("past end date: got %v, want validation error", err)
	}

	sub.Status = models.SubscriptionCancelled
	if err := repo.SaveSubscription(sub); err != nil {
		t.Fatalf("cancel subscription: %v", err)
	}
	if _, _, err := m.RenewSubscription(context.Background(), sub.ID, "upi"); !IsValidation(err) {
		t.Fatalf("cancelled: got %v, want validation error", err)
	}
}

func TestProcessExpiredSubscriptions(t *testing.T) {
	db := newTestDB(t)
	plan := seedPlan(t, db, "Starter", 10, 1)
	m, repo := newTestManager(db, &fakeGateway{})

	adminA := seedAdmin(t, db)
	expired := seedActiveSubscription(t, db, adminA, plan, 10, testClock.AddDate(0, -2, 0), testClock.AddDate(0, -1, 0))

	adminB := &models.User{Name: "Second Admin", Email: "second@example.com"}
	if err := db.Create(adminB).Error; err != nil {
		t.Fatalf("seed second admin: %v", err)
	}
	live := seedActiveSubscription(t, db, adminB, plan, 10, testClock.AddDate(0, -1, 0), testClock.AddDate(0, 1, 0))

	count, err := m.ProcessExpiredSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("ProcessExpiredSubscriptions: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	got, err := repo.GetSubscription(expired.ID)
	if err != nil {
		t.Fatalf("reload expired: %v", err)
	}
	if got.Status != models.SubscriptionExpired {
		t.Fatalf("expired subscription = %s", got.Status)
	}

	got, err = repo.GetSubscription(live.ID)
	if err != nil {
		t.Fatalf("reload live: %v", err)
	}
	if got.Status != models.SubscriptionActive {
		t.Fatalf("live subscription = %s, want untouched", got.Status)
	}
}
