package controllers

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/internal/pkg/billing"
	"github.com/parkorbit/parkorbit/internal/pkg/cache"
	"github.com/parkorbit/parkorbit/internal/pkg/database"
	"github.com/parkorbit/parkorbit/internal/pkg/env"
)

const webhookDedupeTTL = 10 * time.Minute

// webhookPayload covers both the nested Cashfree webhook shape and the
// flat legacy callback shape in one parse.
type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
		Payment struct {
			PaymentStatus    string      `json:"payment_status"`
			CFPaymentID      json.Number `json:"cf_payment_id"`
			PaymentSessionID string      `json:"payment_session_id"`
		} `json:"payment"`
	} `json:"data"`

	OrderID     string `json:"orderId"`
	TxStatus    string `json:"txStatus"`
	ReferenceID string `json:"referenceId"`
	Status      string `json:"status"`
}

// HandlePaymentWebhook ingests the gateway's asynchronous notification.
// It always answers 200 so the gateway never retries forever over a
// payload we have already absorbed; the reconcile result rides along in
// the body.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.BodyRaw()...)
	signatureValid := billing.VerifyCashfreeWebhookSignature(
		raw,
		c.Get("x-webhook-timestamp"),
		c.Get("x-webhook-signature"),
		env.GetEnv("CASHFREE_CLIENT_SECRET", ""),
	)

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("webhook: unparseable payload: %v", err)
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	}

	orderID := strings.TrimSpace(payload.Data.Order.OrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(payload.OrderID)
	}
	rawStatus := payload.Data.Payment.PaymentStatus
	if rawStatus == "" {
		rawStatus = payload.TxStatus
	}
	if rawStatus == "" {
		rawStatus = payload.Status
	}
	statusHint := webhookStatusHint(rawStatus, signatureValid)
	referenceID := payload.Data.Payment.CFPaymentID.String()
	if referenceID == "" {
		referenceID = strings.TrimSpace(payload.ReferenceID)
	}

	// Cheap duplicate-delivery marker. Finalize is idempotent anyway, so
	// a cache miss here never threatens correctness.
	if orderID != "" && statusHint != "" {
		created, err := cache.SetNX("webhook:"+orderID+":"+statusHint, 1, webhookDedupeTTL)
		if err == nil && !created {
			return c.JSON(fiber.Map{"ok": true, "duplicate": true})
		}
	}

	stack := newBillingStack()
	res := stack.Coordinator.FinalizeReturn(c.Context(), billing.ReturnSignal{
		OrderID:          orderID,
		PaymentSessionID: strings.TrimSpace(payload.Data.Payment.PaymentSessionID),
		StatusHint:       statusHint,
		ReferenceID:      referenceID,
		RawPayload:       string(raw),
	})

	return c.JSON(fiber.Map{"ok": true, "result": res})
}

// webhookStatusHint normalizes the webhook's status synonym and strips
// authority from unsigned terminal claims: without a valid signature the
// hint is demoted so reconciliation re-checks the order with the gateway
// instead of trusting the caller.
func webhookStatusHint(rawStatus string, signatureValid bool) string {
	hint := billing.NormalizeWebhookStatus(rawStatus)
	if hint == "" {
		// Unknown event type for us; acknowledged but not acted on.
		hint = strings.TrimSpace(rawStatus)
	}
	if !signatureValid && billing.ClassifyGatewayStatus(hint) != billing.OutcomePending {
		return ""
	}
	return hint
}

// HandlePaymentReturn is the browser landing page after the gateway's
// hosted checkout. Key spellings vary between gateway versions, so every
// known alias is accepted.
func HandlePaymentReturn(c *fiber.Ctx) error {
	orderID := firstRequestValue(c, "order_id", "orderId", "order_token")
	sessionID := firstRequestValue(c, "payment_session_id", "paymentSessionId")
	statusHint := firstRequestValue(c, "txStatus", "transaction_status", "status", "order_status")
	referenceID := firstRequestValue(c, "reference_id", "referenceId", "cfPaymentId", "paymentId")

	stack := newBillingStack()
	res := stack.Coordinator.FinalizeReturn(c.Context(), billing.ReturnSignal{
		OrderID:          orderID,
		PaymentSessionID: sessionID,
		StatusHint:       statusHint,
		ReferenceID:      referenceID,
	})

	if strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON) {
		return c.JSON(res)
	}

	payload, err := json.Marshal(res)
	if err != nil {
		payload = []byte(`{"status":"ERROR"}`)
	}
	return c.Render("payment_result", fiber.Map{
		"Status":  string(res.Status),
		"Message": res.Message,
		"Payload": string(payload),
	})
}

// HandlePaymentVerify re-checks one of the caller's payments against the
// gateway. Useful when both webhook and redirect were lost.
func HandlePaymentVerify(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	stack := newBillingStack()
	payment, err := stack.Repo.GetPayment(c.Params("id"))
	if err != nil {
		return mapBillingError(c, err)
	}
	if payment.UserID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your payment")
	}

	orderID := payment.TransactionID
	if cf := payment.Meta().Cashfree; cf != nil && cf.OrderID != "" {
		orderID = cf.OrderID
	}

	res := stack.Coordinator.FinalizeReturn(c.Context(), billing.ReturnSignal{OrderID: orderID})
	return c.JSON(res)
}

// HandlePaymentList returns the caller's payment history.
func HandlePaymentList(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	var payments []models.Payment
	err = database.GetDB().
		Where("user_id = ?", admin.ID).
		Order("created_at DESC").
		Limit(100).
		Find(&payments).Error
	if err != nil {
		log.Printf("payments: list failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load payments")
	}
	return c.JSON(fiber.Map{"payments": payments})
}

// firstRequestValue scans query parameters first, then posted form
// fields. Gateway versions differ on whether the return call is a GET
// redirect or a form POST.
func firstRequestValue(c *fiber.Ctx, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			return v
		}
	}
	for _, key := range keys {
		if v := strings.TrimSpace(c.FormValue(key)); v != "" {
			return v
		}
	}
	return ""
}
