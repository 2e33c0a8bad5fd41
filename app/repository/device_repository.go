package repository

import (
	"strings"
	"time"

	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/gorm"
)

// deviceRepository implements the DeviceRepository interface
type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new device repository instance
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) CreateGateway(gw *models.IoTGateway) error {
	gw.GatewayEUI = normalizeEUI(gw.GatewayEUI)
	return r.db.Create(gw).Error
}

func (r *deviceRepository) GetGatewayByID(id uint) (*models.IoTGateway, error) {
	var gw models.IoTGateway
	err := r.db.Preload("Nodes").First(&gw, id).Error
	if err != nil {
		return nil, err
	}
	return &gw, nil
}

func (r *deviceRepository) GetGatewayByEUI(eui string) (*models.IoTGateway, error) {
	var gw models.IoTGateway
	err := r.db.Where("gateway_eui = ?", normalizeEUI(eui)).First(&gw).Error
	if err != nil {
		return nil, err
	}
	return &gw, nil
}

func (r *deviceRepository) GetGatewaysByAdmin(adminID uint) ([]models.IoTGateway, error) {
	var gws []models.IoTGateway
	err := r.db.Where("admin_id = ?", adminID).Order("created_at DESC").Find(&gws).Error
	return gws, err
}

func (r *deviceRepository) UpdateGateway(gw *models.IoTGateway) error {
	return r.db.Save(gw).Error
}

// DeleteGateway soft deletes a gateway and its sensor nodes.
func (r *deviceRepository) DeleteGateway(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("gateway_id = ?", id).Delete(&models.SensorNode{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.IoTGateway{}, id).Error
	})
}

// MarkGatewaySeen updates the gateway's online flag and last-seen time.
func (r *deviceRepository) MarkGatewaySeen(id uint, online bool) error {
	now := time.Now()
	return r.db.Model(&models.IoTGateway{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_online": online, "last_seen_at": now}).Error
}

func (r *deviceRepository) CreateNode(node *models.SensorNode) error {
	node.DevEUI = normalizeEUI(node.DevEUI)
	return r.db.Create(node).Error
}

func (r *deviceRepository) GetNodeByID(id uint) (*models.SensorNode, error) {
	var node models.SensorNode
	err := r.db.First(&node, id).Error
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *deviceRepository) GetNodeByDevEUI(devEUI string) (*models.SensorNode, error) {
	var node models.SensorNode
	err := r.db.Where("dev_eui = ?", normalizeEUI(devEUI)).First(&node).Error
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *deviceRepository) GetNodesByGateway(gatewayID uint) ([]models.SensorNode, error) {
	var nodes []models.SensorNode
	err := r.db.Where("gateway_id = ?", gatewayID).Order("created_at DESC").Find(&nodes).Error
	return nodes, err
}

func (r *deviceRepository) UpdateNode(node *models.SensorNode) error {
	return r.db.Save(node).Error
}

func (r *deviceRepository) DeleteNode(id uint) error {
	return r.db.Delete(&models.SensorNode{}, id).Error
}

// normalizeEUI canonicalizes EUIs so lookups are stable regardless of how
// the device vendor formats them.
func normalizeEUI(eui string) string {
	return strings.ToLower(strings.TrimSpace(eui))
}
