package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/parkorbit/parkorbit/app/controllers"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "parkorbit", "status": "ok"})
	})

	// Browser landing page after the gateway's hosted checkout. Must stay
	// outside the API group: the gateway redirects here without any auth.
	// Some gateway versions redirect with a GET, others post a form.
	app.Get("/payments/return", controllers.HandlePaymentReturn)
	app.Post("/payments/return", controllers.HandlePaymentReturn)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
