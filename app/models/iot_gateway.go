package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// IoTGateway is a LoRa gateway registered by a tenant admin. Sensor data
// ingestion itself happens outside this service; we only keep the registry
// the subscription limits are counted against.
type IoTGateway struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	AdminID uint `gorm:"not null;index" json:"admin_id"`
	Admin   User `gorm:"foreignKey:AdminID" json:"-"`

	LotID *uint       `gorm:"index;default:null" json:"lot_id,omitempty"`
	Lot   *ParkingLot `gorm:"foreignKey:LotID" json:"-"`

	Name       string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	GatewayEUI string     `gorm:"type:varchar(23);uniqueIndex;not null" json:"gateway_eui" validate:"required,min=16,max=23"`
	IsOnline   bool       `gorm:"default:false" json:"is_online"`
	LastSeenAt *time.Time `gorm:"type:timestamp;default:null" json:"last_seen_at,omitempty"`

	Nodes []SensorNode `gorm:"foreignKey:GatewayID" json:"nodes,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (g *IoTGateway) Validate() error {
	return validator.New().Struct(g)
}

// SensorNode is an occupancy sensor attached to a gateway, optionally bound
// to one parking slot.
type SensorNode struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	AdminID   uint       `gorm:"not null;index" json:"admin_id"`
	GatewayID uint       `gorm:"not null;index" json:"gateway_id"`
	Gateway   IoTGateway `gorm:"foreignKey:GatewayID" json:"-"`

	SlotID *uint `gorm:"index;default:null" json:"slot_id,omitempty"`

	DevEUI       string     `gorm:"type:varchar(23);uniqueIndex;not null" json:"dev_eui" validate:"required,min=16,max=23"`
	Name         string     `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	BatteryLevel int        `gorm:"default:0" json:"battery_level"`
	LastSeenAt   *time.Time `gorm:"type:timestamp;default:null" json:"last_seen_at,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (n *SensorNode) Validate() error {
	return validator.New().Struct(n)
}
