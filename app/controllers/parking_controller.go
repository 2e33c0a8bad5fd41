package controllers

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/app/repository"
	"github.com/parkorbit/parkorbit/internal/pkg/entitlements"
)

// checkEntitlement verifies the admin's subscription allows one more unit
// of the feature and renders the right error when it does not.
func checkEntitlement(c *fiber.Ctx, adminID uint, feature entitlements.Feature) error {
	stack := newBillingStack()
	sub, err := stack.Repo.GetEntitledSubscription(adminID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return mapBillingError(c, err)
	}

	counter := repository.GetGlobalFactory().GetUsageCounter()
	if err := entitlements.CheckFeatureLimit(sub, counter, adminID, feature); err != nil {
		var noSub *entitlements.NoSubscriptionError
		var limitErr *entitlements.LimitExceededError
		switch {
		case errors.As(err, &noSub):
			return jsonError(c, fiber.StatusPaymentRequired, "no_subscription", "An active subscription is required")
		case errors.As(err, &limitErr):
			return jsonError(c, fiber.StatusForbidden, "limit_exceeded", limitErr.Error())
		default:
			log.Printf("entitlement check failed: %v", err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Entitlement check failed")
		}
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	return uint(id), err
}

// HandleLotCreate registers a parking lot, counted against the plan's lot
// limit.
func HandleLotCreate(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	if resp := checkEntitlement(c, admin.ID, entitlements.FeatureParkingLots); resp != nil {
		return resp
	}

	var lot models.ParkingLot
	if err := c.BodyParser(&lot); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	lot.ID = 0
	lot.AdminID = admin.ID
	lot.IsActive = true
	if err := lot.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", err.Error())
	}

	if err := repository.GetGlobalFactory().GetParkingRepository().CreateLot(&lot); err != nil {
		log.Printf("lots: create failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create lot")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"lot": lot})
}

// HandleLotList lists the caller's parking lots.
func HandleLotList(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	lots, err := repository.GetGlobalFactory().GetParkingRepository().GetLotsByAdmin(admin.ID)
	if err != nil {
		log.Printf("lots: list failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load lots")
	}
	return c.JSON(fiber.Map{"lots": lots})
}

// HandleLotGet returns one lot with its floors.
func HandleLotGet(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	id, err := paramID(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid lot id")
	}

	lot, err := repository.GetGlobalFactory().GetParkingRepository().GetLotByID(id)
	if err != nil {
		return mapBillingError(c, err)
	}
	if lot.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your lot")
	}
	return c.JSON(fiber.Map{"lot": lot})
}

// HandleLotDelete removes a lot and everything under it.
func HandleLotDelete(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	id, err := paramID(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid lot id")
	}

	repo := repository.GetGlobalFactory().GetParkingRepository()
	lot, err := repo.GetLotByID(id)
	if err != nil {
		return mapBillingError(c, err)
	}
	if lot.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your lot")
	}

	if err := repo.DeleteLot(id); err != nil {
		log.Printf("lots: delete failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not delete lot")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleFloorCreate adds a floor to one of the caller's lots.
func HandleFloorCreate(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	lotID, err := paramID(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid lot id")
	}

	repo := repository.GetGlobalFactory().GetParkingRepository()
	lot, err := repo.GetLotByID(lotID)
	if err != nil {
		return mapBillingError(c, err)
	}
	if lot.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your lot")
	}
	if resp := checkEntitlement(c, admin.ID, entitlements.FeatureFloors); resp != nil {
		return resp
	}

	var floor models.ParkingFloor
	if err := c.BodyParser(&floor); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	floor.ID = 0
	floor.LotID = lot.ID
	floor.AdminID = admin.ID
	if err := floor.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", err.Error())
	}

	if err := repo.CreateFloor(&floor); err != nil {
		log.Printf("floors: create failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create floor")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"floor": floor})
}

// HandleSlotCreate adds a slot to one of the caller's floors.
func HandleSlotCreate(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	floorID, err := paramID(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid floor id")
	}

	repo := repository.GetGlobalFactory().GetParkingRepository()
	floor, err := repo.GetFloorByID(floorID)
	if err != nil {
		return mapBillingError(c, err)
	}
	if floor.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your floor")
	}
	if resp := checkEntitlement(c, admin.ID, entitlements.FeatureSlots); resp != nil {
		return resp
	}

	var slot models.ParkingSlot
	if err := c.BodyParser(&slot); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	slot.ID = 0
	slot.FloorID = floor.ID
	slot.LotID = floor.LotID
	slot.AdminID = admin.ID
	if slot.SlotType == "" {
		slot.SlotType = "standard"
	}
	if err := slot.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", err.Error())
	}

	if err := repo.CreateSlot(&slot); err != nil {
		log.Printf("slots: create failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create slot")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"slot": slot})
}

// HandleSlotOccupancy flips a slot's occupied flag, e.g. from a sensor
// event relay or a manual correction.
func HandleSlotOccupancy(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	id, err := paramID(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid slot id")
	}

	var req struct {
		Occupied bool `json:"occupied"`
	}
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}

	repo := repository.GetGlobalFactory().GetParkingRepository()
	slot, err := repo.GetSlotByID(id)
	if err != nil {
		return mapBillingError(c, err)
	}
	if slot.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your slot")
	}

	slot.Occupied = req.Occupied
	if err := repo.UpdateSlot(slot); err != nil {
		log.Printf("slots: occupancy update failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not update slot")
	}
	return c.JSON(fiber.Map{"slot": slot})
}
