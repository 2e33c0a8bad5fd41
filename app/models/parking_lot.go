package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// ParkingLot is a physical site owned by a tenant admin.
type ParkingLot struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	AdminID uint `gorm:"not null;index" json:"admin_id"`
	Admin   User `gorm:"foreignKey:AdminID" json:"-"`

	Name      string  `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Address   string  `gorm:"type:varchar(255)" json:"address" validate:"max=255"`
	City      string  `gorm:"type:varchar(100)" json:"city" validate:"max=100"`
	Latitude  float64 `gorm:"type:decimal(10,7);default:0" json:"latitude"`
	Longitude float64 `gorm:"type:decimal(10,7);default:0" json:"longitude"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	Floors []ParkingFloor `gorm:"foreignKey:LotID" json:"floors,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (l *ParkingLot) Validate() error {
	return validator.New().Struct(l)
}

// ParkingFloor is one level inside a parking lot.
type ParkingFloor struct {
	ID      uint       `gorm:"primaryKey" json:"id"`
	LotID   uint       `gorm:"not null;index" json:"lot_id"`
	Lot     ParkingLot `gorm:"foreignKey:LotID" json:"-"`
	AdminID uint       `gorm:"not null;index" json:"admin_id"`

	Name  string `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=1,max=100"`
	Level int    `gorm:"not null;default:0" json:"level"`

	Slots []ParkingSlot `gorm:"foreignKey:FloorID" json:"slots,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (f *ParkingFloor) Validate() error {
	return validator.New().Struct(f)
}

// ParkingSlot is a single monitored parking space.
type ParkingSlot struct {
	ID      uint         `gorm:"primaryKey" json:"id"`
	FloorID uint         `gorm:"not null;index" json:"floor_id"`
	Floor   ParkingFloor `gorm:"foreignKey:FloorID" json:"-"`
	LotID   uint         `gorm:"not null;index" json:"lot_id"`
	AdminID uint         `gorm:"not null;index" json:"admin_id"`

	Code     string `gorm:"type:varchar(32);not null" json:"code" validate:"required,min=1,max=32"`
	SlotType string `gorm:"type:varchar(20);default:'standard'" json:"slot_type" validate:"oneof=standard compact ev handicapped"`
	Occupied bool   `gorm:"default:false" json:"occupied"`

	// The sensor node currently watching this slot, if any.
	NodeID *uint `gorm:"index;default:null" json:"node_id,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *ParkingSlot) Validate() error {
	return validator.New().Struct(s)
}
