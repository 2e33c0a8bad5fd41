package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/gorm"
)

// LifecycleManager owns every state transition on subscriptions and their
// payments. No other component writes those tables.
type LifecycleManager struct {
	repo    Repository
	catalog *Catalog
	gateway GatewayClient

	now func() time.Time
}

func NewLifecycleManager(repo Repository, catalog *Catalog, gateway GatewayClient) *LifecycleManager {
	return &LifecycleManager{
		repo:    repo,
		catalog: catalog,
		gateway: gateway,
		now:     time.Now,
	}
}

// CheckoutInput describes one subscription checkout attempt.
type CheckoutInput struct {
	Admin             *models.User
	PlanIdentifier    string
	Cycle             models.BillingCycle
	PaymentMethod     string
	DeviceCount       int
	AutoRenew         bool
	TrialDays         int
	ReturnURLTemplate string
}

// SessionDescriptor is what the checkout caller needs to hand the browser
// over to the gateway's hosted page.
type SessionDescriptor struct {
	Subscription     *models.Subscription
	Payment          *models.Payment
	GatewayOrderID   string
	PaymentSessionID string
	Amount           float64
	Currency         string
}

// UpgradeInput describes a plan upgrade request for an admin with a live
// subscription.
type UpgradeInput struct {
	Admin             *models.User
	PlanIdentifier    string
	Cycle             models.BillingCycle
	DeviceCount       int
	PaymentMethod     string
	ReturnURLTemplate string
}

// UpgradeResult reports either an immediately activated upgrade (final
// price below one currency unit) or a payment session for the prorated
// difference.
type UpgradeResult struct {
	Activated       bool
	NewSubscription *models.Subscription
	Session         *SessionDescriptor
	CreditAmount    float64
	FinalPrice      float64
}

// NewOrderID mints the transaction id that doubles as the gateway order id.
func NewOrderID() string {
	return "order_" + uuid.NewString()
}

// CreateSubscription creates a pending subscription and its paired pending
// payment without contacting the gateway. Both writes happen in one
// transaction.
func (m *LifecycleManager) CreateSubscription(ctx context.Context, in CheckoutInput) (*models.Subscription, *models.Payment, error) {
	_ = ctx
	var sub *models.Subscription
	var payment *models.Payment

	err := m.repo.Transaction(func(tx Repository) error {
		var err error
		sub, payment, err = m.createPendingCheckout(tx, in)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return sub, payment, nil
}

// CreatePaymentSession creates the pending subscription/payment pair and
// opens a gateway order for it. A gateway failure rolls everything back so
// no orphaned pending subscription survives a failed call.
func (m *LifecycleManager) CreatePaymentSession(ctx context.Context, in CheckoutInput) (*SessionDescriptor, error) {
	var out *SessionDescriptor

	err := m.repo.Transaction(func(tx Repository) error {
		sub, payment, err := m.createPendingCheckout(tx, in)
		if err != nil {
			return err
		}

		order, err := m.gateway.CreateOrder(ctx, CreateOrderRequest{
			OrderID:           payment.TransactionID,
			Amount:            payment.Amount,
			Currency:          payment.Currency,
			Customer:          customerFromAdmin(in.Admin),
			ReturnURLTemplate: in.ReturnURLTemplate,
			Note:              fmt.Sprintf("subscription %s", sub.ID),
			Tags:              map[string]string{"subscription_id": sub.ID},
		})
		if err != nil {
			return err
		}

		meta := payment.Meta()
		meta.Cashfree = &models.CashfreeMetadata{
			OrderID:          order.OrderID,
			CFOrderID:        order.CFOrderID,
			PaymentSessionID: order.PaymentSessionID,
			Status:           order.Status,
		}
		if err := payment.SetMeta(meta); err != nil {
			return err
		}
		if err := tx.SavePayment(payment); err != nil {
			return err
		}

		out = &SessionDescriptor{
			Subscription:     sub,
			Payment:          payment,
			GatewayOrderID:   order.OrderID,
			PaymentSessionID: order.PaymentSessionID,
			Amount:           payment.Amount,
			Currency:         payment.Currency,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// createPendingCheckout enforces the one-active-subscription invariant,
// cancels stale pending checkouts, and writes the new pending pair.
func (m *LifecycleManager) createPendingCheckout(tx Repository, in CheckoutInput) (*models.Subscription, *models.Payment, error) {
	if in.Admin == nil {
		return nil, nil, &ValidationError{Message: "admin is required"}
	}
	cycle, err := models.ParseBillingCycle(string(in.Cycle))
	if err != nil {
		return nil, nil, &ValidationError{Message: err.Error()}
	}

	if _, err := tx.GetEntitledSubscription(in.Admin.ID); err == nil {
		return nil, nil, &ValidationError{Message: "admin already has an active or trial subscription"}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	if err := m.cancelStalePending(tx, in.Admin.ID); err != nil {
		return nil, nil, err
	}

	plan, err := m.catalog.FindPlan(in.PlanIdentifier)
	if err != nil {
		return nil, nil, err
	}

	amount := m.catalog.PriceInLocalCurrency(plan, cycle, in.DeviceCount)
	now := m.now()
	end := cycle.Advance(now)

	sub := &models.Subscription{
		AdminID:       in.Admin.ID,
		PlanID:        plan.ID,
		BillingCycle:  cycle,
		Amount:        amount,
		DeviceCount:   in.DeviceCount,
		StartDate:     now,
		EndDate:       end,
		Status:        models.SubscriptionPending,
		PaymentStatus: models.SubPaymentPending,
		AutoRenew:     in.AutoRenew,
	}
	sub.ApplyPlanSnapshot(plan)

	if in.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, in.TrialDays)
		sub.Status = models.SubscriptionTrial
		sub.TrialEndDate = &trialEnd
	}

	if err := tx.CreateSubscription(sub); err != nil {
		return nil, nil, err
	}

	payment := &models.Payment{
		TransactionID:  NewOrderID(),
		UserID:         in.Admin.ID,
		SubscriptionID: &sub.ID,
		Type:           models.PaymentTypeSubscription,
		Amount:         amount,
		Currency:       "INR",
		Status:         models.PaymentPending,
		PaymentMethod:  in.PaymentMethod,
	}
	if err := tx.CreatePayment(payment); err != nil {
		return nil, nil, err
	}

	return sub, payment, nil
}

// cancelStalePending cancels any still-pending subscriptions from
// abandoned checkouts so an admin never accumulates pending rows.
func (m *LifecycleManager) cancelStalePending(tx Repository, adminID uint) error {
	stale, err := tx.ListPendingSubscriptions(adminID)
	if err != nil {
		return err
	}
	now := m.now()
	for i := range stale {
		sub := &stale[i]
		sub.Status = models.SubscriptionCancelled
		sub.PaymentStatus = models.SubPaymentCancelled
		sub.CancelledAt = &now
		sub.CancelReason = "superseded by new checkout"
		sub.AutoRenew = false
		if err := tx.SaveSubscription(sub); err != nil {
			return err
		}
	}
	return nil
}

// ProcessPayment is the single authoritative mutator for payment
// outcomes. It is idempotent: a payment already in a terminal state is
// returned unchanged, so concurrent or repeated finalize calls converge.
func (m *LifecycleManager) ProcessPayment(ctx context.Context, paymentID, gatewayTransactionID string, success bool, failureReason string) (*models.Payment, *models.Subscription, error) {
	_ = ctx
	var payment *models.Payment
	var sub *models.Subscription

	err := m.repo.Transaction(func(tx Repository) error {
		var err error
		payment, err = tx.GetPayment(paymentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "payment", Key: paymentID}
		}
		if err != nil {
			return err
		}

		if payment.Status.IsTerminal() {
			sub = m.loadSubscription(tx, payment)
			return nil
		}

		now := m.now()
		meta := payment.Meta()
		if gatewayTransactionID != "" {
			if meta.Cashfree == nil {
				meta.Cashfree = &models.CashfreeMetadata{}
			}
			meta.Cashfree.ReferenceID = gatewayTransactionID
		}
		if err := payment.SetMeta(meta); err != nil {
			return err
		}

		if success {
			return m.applySuccess(tx, payment, meta, now)
		}
		return m.applyFailure(tx, payment, failureReason, now)
	})
	if err != nil {
		return nil, nil, err
	}
	if sub == nil && payment != nil && payment.SubscriptionID != nil {
		if s, err := m.repo.GetSubscription(*payment.SubscriptionID); err == nil {
			sub = s
		}
	}
	return payment, sub, nil
}

func (m *LifecycleManager) applySuccess(tx Repository, payment *models.Payment, meta models.PaymentMetadata, now time.Time) error {
	payment.Status = models.PaymentCompleted
	payment.ProcessedAt = &now
	payment.FailureReason = ""
	if err := tx.SavePayment(payment); err != nil {
		return err
	}

	if payment.SubscriptionID == nil {
		return nil
	}
	sub, err := tx.GetSubscription(*payment.SubscriptionID)
	if err != nil {
		return err
	}

	sub.Status = models.SubscriptionActive
	sub.PaymentStatus = models.SubPaymentPaid
	next := sub.EndDate
	sub.NextBillingDate = &next
	if err := tx.SaveSubscription(sub); err != nil {
		return err
	}

	// An upgrade cancels the prior subscription only now, once the new
	// one is actually paid, so a failed upgrade payment never leaves the
	// tenant without coverage.
	if payment.Type == models.PaymentTypeUpgrade && meta.PriorSubscriptionID != "" {
		prior, err := tx.GetSubscription(meta.PriorSubscriptionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if prior.IsEntitling() {
			prior.Status = models.SubscriptionCancelled
			prior.CancelledAt = &now
			prior.CancelReason = "upgraded"
			prior.AutoRenew = false
			if err := tx.SaveSubscription(prior); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *LifecycleManager) applyFailure(tx Repository, payment *models.Payment, reason string, now time.Time) error {
	payment.Status = models.PaymentFailed
	payment.ProcessedAt = &now
	payment.FailureReason = reason
	if err := tx.SavePayment(payment); err != nil {
		return err
	}

	if payment.SubscriptionID == nil {
		return nil
	}
	sub, err := tx.GetSubscription(*payment.SubscriptionID)
	if err != nil {
		return err
	}

	// A failed payment must never leave a dangling pending subscription
	// blocking future checkout attempts.
	switch sub.Status {
	case models.SubscriptionPending, models.SubscriptionTrial:
		sub.Status = models.SubscriptionCancelled
		sub.PaymentStatus = models.SubPaymentFailed
		sub.CancelledAt = &now
		sub.CancelReason = "payment failed"
		sub.AutoRenew = false
		return tx.SaveSubscription(sub)
	case models.SubscriptionActive:
		sub.PaymentStatus = models.SubPaymentFailed
		return tx.SaveSubscription(sub)
	case models.SubscriptionExpired, models.SubscriptionCancelled, models.SubscriptionSuspended:
		return nil
	default:
		return nil
	}
}

func (m *LifecycleManager) loadSubscription(tx Repository, payment *models.Payment) *models.Subscription {
	if payment.SubscriptionID == nil {
		return nil
	}
	sub, err := tx.GetSubscription(*payment.SubscriptionID)
	if err != nil {
		return nil
	}
	return sub
}

// UpgradeSubscription moves an admin to a new plan/cycle, crediting the
// unused remainder of the current cycle against the new price. The current
// subscription is cancelled only when the upgrade payment completes.
func (m *LifecycleManager) UpgradeSubscription(ctx context.Context, in UpgradeInput) (*UpgradeResult, error) {
	if in.Admin == nil {
		return nil, &ValidationError{Message: "admin is required"}
	}
	cycle, err := models.ParseBillingCycle(string(in.Cycle))
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	current, err := m.repo.GetEntitledSubscription(in.Admin.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ValidationError{Message: "no active subscription to upgrade"}
	}
	if err != nil {
		return nil, err
	}

	plan, err := m.catalog.FindPlan(in.PlanIdentifier)
	if err != nil {
		return nil, err
	}
	if plan.ID == current.PlanID && cycle == current.BillingCycle {
		return nil, &ValidationError{Message: "subscription already uses the requested plan and cycle"}
	}

	newPrice := m.catalog.PriceInLocalCurrency(plan, cycle, in.DeviceCount)
	credit := ProratedCredit(current.Amount, current.StartDate, current.EndDate, m.now())
	finalPrice := Round2(math.Max(0, newPrice-credit))

	// Below one currency unit there is nothing worth collecting: swap the
	// subscriptions immediately in one transaction.
	if finalPrice < 1 {
		var newSub *models.Subscription
		err := m.repo.Transaction(func(tx Repository) error {
			now := m.now()
			current.Status = models.SubscriptionCancelled
			current.CancelledAt = &now
			current.CancelReason = "upgraded"
			current.AutoRenew = false
			if err := tx.SaveSubscription(current); err != nil {
				return err
			}

			end := cycle.Advance(now)
			newSub = &models.Subscription{
				AdminID:       in.Admin.ID,
				PlanID:        plan.ID,
				BillingCycle:  cycle,
				Amount:        finalPrice,
				DeviceCount:   in.DeviceCount,
				StartDate:     now,
				EndDate:       end,
				Status:        models.SubscriptionActive,
				PaymentStatus: models.SubPaymentPaid,
				AutoRenew:     true,
			}
			newSub.ApplyPlanSnapshot(plan)
			return tx.CreateSubscription(newSub)
		})
		if err != nil {
			return nil, err
		}
		return &UpgradeResult{
			Activated:       true,
			NewSubscription: newSub,
			CreditAmount:    credit,
			FinalPrice:      finalPrice,
		}, nil
	}

	var session *SessionDescriptor
	err = m.repo.Transaction(func(tx Repository) error {
		if err := m.cancelStalePending(tx, in.Admin.ID); err != nil {
			return err
		}

		now := m.now()
		end := cycle.Advance(now)
		newSub := &models.Subscription{
			AdminID:       in.Admin.ID,
			PlanID:        plan.ID,
			BillingCycle:  cycle,
			Amount:        finalPrice,
			DeviceCount:   in.DeviceCount,
			StartDate:     now,
			EndDate:       end,
			Status:        models.SubscriptionPending,
			PaymentStatus: models.SubPaymentPending,
			AutoRenew:     true,
		}
		newSub.ApplyPlanSnapshot(plan)
		if err := tx.CreateSubscription(newSub); err != nil {
			return err
		}

		payment := &models.Payment{
			TransactionID:  NewOrderID(),
			UserID:         in.Admin.ID,
			SubscriptionID: &newSub.ID,
			Type:           models.PaymentTypeUpgrade,
			Amount:         finalPrice,
			Currency:       "INR",
			Status:         models.PaymentPending,
			PaymentMethod:  in.PaymentMethod,
		}
		meta := models.PaymentMetadata{PriorSubscriptionID: current.ID}
		if err := payment.SetMeta(meta); err != nil {
			return err
		}
		if err := tx.CreatePayment(payment); err != nil {
			return err
		}

		order, err := m.gateway.CreateOrder(ctx, CreateOrderRequest{
			OrderID:           payment.TransactionID,
			Amount:            payment.Amount,
			Currency:          payment.Currency,
			Customer:          customerFromAdmin(in.Admin),
			ReturnURLTemplate: in.ReturnURLTemplate,
			Note:              fmt.Sprintf("upgrade to %s", plan.Name),
			Tags: map[string]string{
				"subscription_id":       newSub.ID,
				"prior_subscription_id": current.ID,
			},
		})
		if err != nil {
			return err
		}

		meta.Cashfree = &models.CashfreeMetadata{
			OrderID:          order.OrderID,
			CFOrderID:        order.CFOrderID,
			PaymentSessionID: order.PaymentSessionID,
			Status:           order.Status,
		}
		if err := payment.SetMeta(meta); err != nil {
			return err
		}
		if err := tx.SavePayment(payment); err != nil {
			return err
		}

		session = &SessionDescriptor{
			Subscription:     newSub,
			Payment:          payment,
			GatewayOrderID:   order.OrderID,
			PaymentSessionID: order.PaymentSessionID,
			Amount:           payment.Amount,
			Currency:         payment.Currency,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &UpgradeResult{
		Activated:    false,
		Session:      session,
		CreditAmount: credit,
		FinalPrice:   finalPrice,
	}, nil
}

// ProratedCredit computes the unused value of the running cycle:
// amount * remainingDays / totalCycleDays, with day counts rounded up and
// the remainder clamped to zero or more.
func ProratedCredit(amount float64, start, end, now time.Time) float64 {
	totalDays := ceilDays(end.Sub(start))
	if totalDays <= 0 {
		return 0
	}
	remainingDays := ceilDays(end.Sub(now))
	if remainingDays < 0 {
		remainingDays = 0
	}
	return Round2(amount * float64(remainingDays) / float64(totalDays))
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}

// CancelSubscription cancels without refunding. Cancelling an already
// cancelled subscription is a no-op.
func (m *LifecycleManager) CancelSubscription(ctx context.Context, id, reason string) (*models.Subscription, error) {
	_ = ctx
	sub, err := m.repo.GetSubscription(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "subscription", Key: id}
	}
	if err != nil {
		return nil, err
	}
	if sub.Status == models.SubscriptionCancelled {
		return sub, nil
	}

	now := m.now()
	sub.Status = models.SubscriptionCancelled
	sub.CancelledAt = &now
	sub.CancelReason = reason
	sub.AutoRenew = false
	if err := m.repo.SaveSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RenewSubscription advances an active auto-renewing subscription by one
// cycle on the same row and opens a fresh pending payment when the cycle
// costs anything.
func (m *LifecycleManager) RenewSubscription(ctx context.Context, id, paymentMethod string) (*models.Subscription, *models.Payment, error) {
	_ = ctx
	var sub *models.Subscription
	var payment *models.Payment

	err := m.repo.Transaction(func(tx Repository) error {
		var err error
		sub, err = tx.GetSubscription(id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "subscription", Key: id}
		}
		if err != nil {
			return err
		}

		now := m.now()
		if sub.Status != models.SubscriptionActive {
			return &ValidationError{Message: "only active subscriptions can be renewed"}
		}
		if !sub.AutoRenew {
			return &ValidationError{Message: "subscription has auto-renew disabled"}
		}
		if !sub.EndDate.After(now) {
			return &ValidationError{Message: "subscription is already expired"}
		}

		sub.StartDate = sub.BillingCycle.Advance(sub.StartDate)
		sub.EndDate = sub.BillingCycle.Advance(sub.EndDate)
		next := sub.EndDate
		sub.NextBillingDate = &next
		sub.PaymentStatus = models.SubPaymentPending
		if err := tx.SaveSubscription(sub); err != nil {
			return err
		}

		if sub.Amount > 0 {
			payment = &models.Payment{
				TransactionID:  NewOrderID(),
				UserID:         sub.AdminID,
				SubscriptionID: &sub.ID,
				Type:           models.PaymentTypeSubscription,
				Amount:         sub.Amount,
				Currency:       "INR",
				Status:         models.PaymentPending,
				PaymentMethod:  paymentMethod,
			}
			return tx.CreatePayment(payment)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sub, payment, nil
}

// ProcessExpiredSubscriptions sweeps every active/trial subscription whose
// end date has passed into expired. Triggered externally, typically by a
// cron hitting the operator endpoint.
func (m *LifecycleManager) ProcessExpiredSubscriptions(ctx context.Context) (int, error) {
	_ = ctx
	count := 0
	err := m.repo.Transaction(func(tx Repository) error {
		expired, err := tx.ListExpiredEntitling(m.now())
		if err != nil {
			return err
		}
		for i := range expired {
			sub := &expired[i]
			sub.Status = models.SubscriptionExpired
			if err := tx.SaveSubscription(sub); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func customerFromAdmin(admin *models.User) OrderCustomer {
	return OrderCustomer{
		ID:    fmt.Sprintf("admin_%d", admin.ID),
		Name:  admin.Name,
		Email: admin.Email,
		Phone: admin.Phone,
	}
}
