package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/parkorbit/parkorbit/app/controllers"
	"github.com/parkorbit/parkorbit/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Public surface: registration, login, the pricing page, and the
	// gateway's asynchronous webhook.
	v1.Post("/auth/register", controllers.HandleAPIRegister)
	v1.Post("/auth/login", controllers.HandleAPILogin)
	v1.Get("/plans", controllers.HandlePlansPublic)
	v1.Post("/payments/webhook", controllers.HandlePaymentWebhook)

	// Everything below requires an API key.
	authed := v1.Group("", middleware.APIKeyAuthMiddleware())

	authed.Get("/me", controllers.HandleMe)
	authed.Post("/auth/revoke", controllers.HandleAPIKeyRevoke)

	authed.Post("/subscriptions/checkout", controllers.HandleSubscriptionCheckout)
	authed.Get("/subscriptions/current", controllers.HandleSubscriptionCurrent)
	authed.Get("/subscriptions", controllers.HandleSubscriptionList)
	authed.Post("/subscriptions/upgrade", controllers.HandleSubscriptionUpgrade)
	authed.Post("/subscriptions/cancel", controllers.HandleSubscriptionCancel)
	authed.Post("/subscriptions/renew", controllers.HandleSubscriptionRenew)

	authed.Get("/payments", controllers.HandlePaymentList)
	authed.Post("/payments/:id/verify", controllers.HandlePaymentVerify)

	authed.Post("/lots", controllers.HandleLotCreate)
	authed.Get("/lots", controllers.HandleLotList)
	authed.Get("/lots/:id", controllers.HandleLotGet)
	authed.Delete("/lots/:id", controllers.HandleLotDelete)
	authed.Post("/lots/:id/floors", controllers.HandleFloorCreate)
	authed.Post("/floors/:id/slots", controllers.HandleSlotCreate)
	authed.Patch("/slots/:id/occupancy", controllers.HandleSlotOccupancy)

	authed.Post("/gateways", controllers.HandleGatewayCreate)
	authed.Get("/gateways", controllers.HandleGatewayList)
	authed.Delete("/gateways/:id", controllers.HandleGatewayDelete)
	authed.Post("/gateways/:id/heartbeat", controllers.HandleGatewayHeartbeat)
	authed.Post("/gateways/:id/nodes", controllers.HandleNodeCreate)
	authed.Get("/gateways/:id/nodes", controllers.HandleNodeList)
	authed.Delete("/nodes/:nodeId", controllers.HandleNodeDelete)

	// Platform management, operator role required.
	operator := authed.Group("/admin", middleware.RequireOperatorMiddleware())
	operator.Get("/plans", controllers.HandlePlanListAll)
	operator.Post("/plans", controllers.HandlePlanCreate)
	operator.Put("/plans/:id", controllers.HandlePlanUpdate)
	operator.Delete("/plans/:id", controllers.HandlePlanDelete)
	operator.Post("/subscriptions/expire", controllers.HandleSubscriptionExpireSweep)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
