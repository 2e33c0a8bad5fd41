package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/app/repository"
	"github.com/parkorbit/parkorbit/internal/pkg/billing"
	"github.com/parkorbit/parkorbit/internal/pkg/database"
	"github.com/parkorbit/parkorbit/internal/pkg/env"
	"github.com/parkorbit/parkorbit/internal/pkg/usercontext"
)

// billingStack wires the billing engine against the live database. Built
// per request so a reconnected pool is always picked up.
type billingStack struct {
	Repo        billing.Repository
	Catalog     *billing.Catalog
	Manager     *billing.LifecycleManager
	Coordinator *billing.Coordinator
	Gateway     billing.GatewayClient
}

func newBillingStack() billingStack {
	db := database.GetDB()
	repo := billing.NewRepository(db)
	catalog := billing.NewCatalog(db)
	gateway := billing.NewCashfreeClientFromEnv()
	manager := billing.NewLifecycleManager(repo, catalog, gateway)
	return billingStack{
		Repo:        repo,
		Catalog:     catalog,
		Manager:     manager,
		Coordinator: billing.NewCoordinator(repo, manager, gateway, database.Reconnect),
		Gateway:     gateway,
	}
}

// currentAdmin loads the authenticated user backing the request context.
func currentAdmin(c *fiber.Ctx) (*models.User, error) {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return nil, errors.New("not logged in")
	}
	return repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
}

// returnURLTemplate is the browser return target handed to the gateway.
// The gateway substitutes {order_id} on redirect.
func returnURLTemplate() string {
	return env.GetEnv("APP_PUBLIC_URL", "http://localhost:4000") + "/payments/return?order_id={order_id}"
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// mapBillingError renders a billing engine error with the right status
// code so API consumers can distinguish caller mistakes from outages.
func mapBillingError(c *fiber.Ctx, err error) error {
	var cfgErr *billing.GatewayConfigError
	var reqErr *billing.GatewayRequestError

	switch {
	case billing.IsValidation(err):
		return jsonError(c, fiber.StatusBadRequest, "validation_error", err.Error())
	case billing.IsNotFound(err):
		return jsonError(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &cfgErr):
		return jsonError(c, fiber.StatusServiceUnavailable, "gateway_not_configured", "Payment gateway is not configured")
	case errors.As(err, &reqErr):
		return jsonError(c, fiber.StatusBadGateway, "gateway_error", "Payment gateway request failed")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Record not found")
	default:
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Something went wrong")
	}
}
