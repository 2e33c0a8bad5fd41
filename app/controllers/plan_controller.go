package controllers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/app/repository"
	"github.com/parkorbit/parkorbit/internal/pkg/cache"
)

const (
	activePlansCacheKey = "plans:active"
	activePlansCacheTTL = 5 * time.Minute
)

// HandlePlansPublic lists active plans for the pricing surface. Results
// are cached; plan writes invalidate the key.
func HandlePlansPublic(c *fiber.Ctx) error {
	if cached, err := cache.Get(activePlansCacheKey); err == nil && cached != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(cached)
	}

	plans, err := repository.GetGlobalFactory().GetPlanRepository().GetActive()
	if err != nil {
		log.Printf("plans: list failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load plans")
	}

	body, err := json.Marshal(fiber.Map{"plans": plans})
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load plans")
	}
	if err := cache.Set(activePlansCacheKey, string(body), activePlansCacheTTL); err != nil {
		log.Printf("plans: cache write failed: %v", err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// HandlePlanListAll lists every plan including inactive ones. Operator only.
func HandlePlanListAll(c *fiber.Ctx) error {
	plans, err := repository.GetGlobalFactory().GetPlanRepository().GetAll()
	if err != nil {
		log.Printf("plans: list all failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load plans")
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandlePlanCreate creates a new subscription plan. Operator only.
func HandlePlanCreate(c *fiber.Ctx) error {
	var plan models.SubscriptionPlan
	if err := c.BodyParser(&plan); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	plan.ID = ""

	repo := repository.GetGlobalFactory().GetPlanRepository()
	if err := repo.Create(&plan); err != nil {
		log.Printf("plans: create failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create plan")
	}
	invalidatePlanCache()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"plan": plan})
}

// HandlePlanUpdate updates a plan. Live subscriptions keep their snapshot,
// only new checkouts see the change.
func HandlePlanUpdate(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetPlanRepository()
	plan, err := repo.GetByID(c.Params("id"))
	if err != nil {
		return mapBillingError(c, err)
	}

	var patch models.SubscriptionPlan
	if err := c.BodyParser(&patch); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	patch.ID = plan.ID
	patch.CreatedAt = plan.CreatedAt

	if err := repo.Update(&patch); err != nil {
		log.Printf("plans: update failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not update plan")
	}
	invalidatePlanCache()

	return c.JSON(fiber.Map{"plan": patch})
}

// HandlePlanDelete soft deletes a plan.
func HandlePlanDelete(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetPlanRepository()
	plan, err := repo.GetByID(c.Params("id"))
	if err != nil {
		return mapBillingError(c, err)
	}

	if err := repo.Delete(plan.ID); err != nil {
		log.Printf("plans: delete failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not delete plan")
	}
	invalidatePlanCache()

	return c.JSON(fiber.Map{"ok": true})
}

func invalidatePlanCache() {
	if err := cache.Delete(activePlansCacheKey); err != nil {
		log.Printf("plans: cache invalidation failed: %v", err)
	}
}
