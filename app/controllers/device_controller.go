package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/app/repository"
	"github.com/parkorbit/parkorbit/internal/pkg/entitlements"
)

// HandleGatewayCreate registers a LoRa gateway, counted against the
// plan's gateway limit.
func HandleGatewayCreate(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	if resp := checkEntitlement(c, admin.ID, entitlements.FeatureGateways); resp != nil {
		return resp
	}

	var gw models.IoTGateway
	if err := c.BodyParser(&gw); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	gw.ID = 0
	gw.AdminID = admin.ID
	gw.IsOnline = false
	gw.LastSeenAt = nil
	if err := gw.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", err.Error())
	}

	repo := repository.GetGlobalFactory().GetDeviceRepository()
	if _, err := repo.GetGatewayByEUI(gw.GatewayEUI); err == nil {
		return jsonError(c, fiber.StatusConflict, "eui_taken", "A gateway with this EUI already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("gateways: eui lookup failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create gateway")
	}

	if err := repo.CreateGateway(&gw); err != nil {
		log.Printf("gateways: create failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create gateway")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"gateway": gw})
}

// HandleGatewayList lists the caller's gateways.
func HandleGatewayList(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	gws, err := repository.GetGlobalFactory().GetDeviceRepository().GetGatewaysByAdmin(admin.ID)
	if err != nil {
		log.Printf("gateways: list failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load gateways")
	}
	return c.JSON(fiber.Map{"gateways": gws})
}

// HandleGatewayDelete removes a gateway and its sensor nodes.
func HandleGatewayDelete(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	id, err := paramID(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid gateway id")
	}

	repo := repository.GetGlobalFactory().GetDeviceRepository()
	gw, err := repo.GetGatewayByID(id)
	if err != nil {
		return mapBillingError(c, err)
	}
	if gw.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your gateway")
	}

	if err := repo.DeleteGateway(id); err != nil {
		log.Printf("gateways: delete failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not delete gateway")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleGatewayHeartbeat records that a gateway checked in.
func HandleGatewayHeartbeat(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	id, err := paramID(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid gateway id")
	}

	repo := repository.GetGlobalFactory().GetDeviceRepository()
	gw, err := repo.GetGatewayByID(id)
	if err != nil {
		return mapBillingError(c, err)
	}
	if gw.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your gateway")
	}

	if err := repo.MarkGatewaySeen(id, true); err != nil {
		log.Printf("gateways: heartbeat failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not record heartbeat")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleNodeCreate attaches a sensor node to one of the caller's gateways.
func HandleNodeCreate(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	gatewayID, err := paramID(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid gateway id")
	}

	repo := repository.GetGlobalFactory().GetDeviceRepository()
	gw, err := repo.GetGatewayByID(gatewayID)
	if err != nil {
		return mapBillingError(c, err)
	}
	if gw.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your gateway")
	}

	var node models.SensorNode
	if err := c.BodyParser(&node); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	node.ID = 0
	node.AdminID = admin.ID
	node.GatewayID = gw.ID
	if err := node.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", err.Error())
	}

	// Binding a node to a slot requires the slot to belong to the same
	// admin.
	if node.SlotID != nil {
		slot, err := repository.GetGlobalFactory().GetParkingRepository().GetSlotByID(*node.SlotID)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Unknown slot")
		}
		if slot.AdminID != admin.ID {
			return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your slot")
		}
	}

	if err := repo.CreateNode(&node); err != nil {
		log.Printf("nodes: create failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create node")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"node": node})
}

// HandleNodeList lists the nodes behind one of the caller's gateways.
func HandleNodeList(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	gatewayID, err := paramID(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid gateway id")
	}

	repo := repository.GetGlobalFactory().GetDeviceRepository()
	gw, err := repo.GetGatewayByID(gatewayID)
	if err != nil {
		return mapBillingError(c, err)
	}
	if gw.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your gateway")
	}

	nodes, err := repo.GetNodesByGateway(gw.ID)
	if err != nil {
		log.Printf("nodes: list failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load nodes")
	}
	return c.JSON(fiber.Map{"nodes": nodes})
}

// HandleNodeDelete removes a sensor node.
func HandleNodeDelete(c *fiber.Ctx) error {
	admin, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}
	id, err := paramID(c, "nodeId")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid node id")
	}

	repo := repository.GetGlobalFactory().GetDeviceRepository()
	node, err := repo.GetNodeByID(id)
	if err != nil {
		return mapBillingError(c, err)
	}
	if node.AdminID != admin.ID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Not your node")
	}

	if err := repo.DeleteNode(id); err != nil {
		log.Printf("nodes: delete failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not delete node")
	}
	return c.JSON(fiber.Map{"ok": true})
}
