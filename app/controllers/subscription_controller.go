package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/internal/pkg/billing"
	"github.com/parkorbit/parkorbit/internal/pkg/database"
)

type checkoutRequest struct {
	Plan          string `json:"plan"`
	BillingCycle  string `json:"billing_cycle"`
	DeviceCount   int    `json:"device_count"`
	PaymentMethod string `json:"payment_method"`
	AutoRenew     *bool  `json:"auto_renew"`
	TrialDays     int    `json:"trial_days"`
}

type upgradeRequest struct {
	Plan          string `json:"plan"`
	BillingCycle  string `json:"billing_cycle"`
	DeviceCount   int    `json:"device_count"`
	PaymentMethod string `json:"payment_method"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// HandleSubscriptionCheckout opens a payment session for a new
// subscription and returns what the client needs to launch the gateway's
// hosted checkout.
func HandleSubscriptionCheckout(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	autoRenew := true
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}

	stack := newBillingStack()
	session, err := stack.Manager.CreatePaymentSession(c.Context(), billing.CheckoutInput{
		Admin:             admin,
		PlanIdentifier:    req.Plan,
		Cycle:             models.BillingCycle(req.BillingCycle),
		PaymentMethod:     req.PaymentMethod,
		DeviceCount:       req.DeviceCount,
		AutoRenew:         autoRenew,
		TrialDays:         req.TrialDays,
		ReturnURLTemplate: returnURLTemplate(),
	})
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"subscription":       session.Subscription,
		"payment":            session.Payment,
		"gateway_order_id":   session.GatewayOrderID,
		"payment_session_id": session.PaymentSessionID,
		"amount":             session.Amount,
		"currency":           session.Currency,
	})
}

// HandleSubscriptionCurrent returns the caller's entitling subscription.
func HandleSubscriptionCurrent(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	stack := newBillingStack()
	sub, err := stack.Repo.GetEntitledSubscription(admin.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "no_subscription", "No active subscription")
	}
	if err != nil {
		return mapBillingError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleSubscriptionList returns the caller's full subscription history.
func HandleSubscriptionList(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	var subs []models.Subscription
	err = database.GetDB().
		Where("admin_id = ?", admin.ID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		log.Printf("subscriptions: list failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load subscriptions")
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

// HandleSubscriptionUpgrade moves the caller to a new plan with prorated
// credit for the unused remainder of the current cycle.
func HandleSubscriptionUpgrade(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	var req upgradeRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}

	stack := newBillingStack()
	res, err := stack.Manager.UpgradeSubscription(c.Context(), billing.UpgradeInput{
		Admin:             admin,
		PlanIdentifier:    req.Plan,
		Cycle:             models.BillingCycle(req.BillingCycle),
		DeviceCount:       req.DeviceCount,
		PaymentMethod:     req.PaymentMethod,
		ReturnURLTemplate: returnURLTemplate(),
	})
	if err != nil {
		return mapBillingError(c, err)
	}

	body := fiber.Map{
		"activated":     res.Activated,
		"credit_amount": res.CreditAmount,
		"final_price":   res.FinalPrice,
	}
	if res.Activated {
		body["subscription"] = res.NewSubscription
	} else {
		body["subscription"] = res.Session.Subscription
		body["payment"] = res.Session.Payment
		body["gateway_order_id"] = res.Session.GatewayOrderID
		body["payment_session_id"] = res.Session.PaymentSessionID
	}
	return c.JSON(body)
}

// HandleSubscriptionCancel cancels the caller's subscription. No refund.
func HandleSubscriptionCancel(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by admin"
	}

	stack := newBillingStack()
	sub, err := stack.Repo.GetEntitledSubscription(admin.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "no_subscription", "No active subscription")
	}
	if err != nil {
		return mapBillingError(c, err)
	}

	cancelled, err := stack.Manager.CancelSubscription(c.Context(), sub.ID, reason)
	if err != nil {
		return mapBillingError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": cancelled})
}

// HandleSubscriptionRenew advances the caller's auto-renewing subscription
// by one cycle and opens the renewal payment.
func HandleSubscriptionRenew(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}

	stack := newBillingStack()
	sub, err := stack.Repo.GetEntitledSubscription(admin.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "no_subscription", "No active subscription")
	}
	if err != nil {
		return mapBillingError(c, err)
	}

	renewed, payment, err := stack.Manager.RenewSubscription(c.Context(), sub.ID, req.PaymentMethod)
	if err != nil {
		return mapBillingError(c, err)
	}
	return c.JSON(fiber.Map{
		"subscription": renewed,
		"payment":      payment,
	})
}

// HandleSubscriptionExpireSweep marks every overdue subscription expired.
// Operator only; typically driven by a cron.
func HandleSubscriptionExpireSweep(c *fiber.Ctx) error {
	stack := newBillingStack()
	count, err := stack.Manager.ProcessExpiredSubscriptions(c.Context())
	if err != nil {
		return mapBillingError(c, err)
	}
	return c.JSON(fiber.Map{"expired": count})
}
