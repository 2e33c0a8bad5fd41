package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionPlan is the pricing/limit template a subscription is created
// from. Subscriptions snapshot price and limits at creation time, so edits
// here never retroactively change live entitlements.
type SubscriptionPlan struct {
	ID          string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(100);uniqueIndex" json:"name" validate:"required,min=2,max=100"`
	Description string `gorm:"type:text" json:"description"`

	// Per-cycle base prices in USD.
	PriceMonthly   float64 `gorm:"type:decimal(10,2);not null;default:0" json:"price_monthly"`
	PriceQuarterly float64 `gorm:"type:decimal(10,2);not null;default:0" json:"price_quarterly"`
	PriceYearly    float64 `gorm:"type:decimal(10,2);not null;default:0" json:"price_yearly"`

	// Per-device surcharge per cycle in USD.
	PricePerDeviceMonthly   float64 `gorm:"type:decimal(10,2);not null;default:0" json:"price_per_device_monthly"`
	PricePerDeviceQuarterly float64 `gorm:"type:decimal(10,2);not null;default:0" json:"price_per_device_quarterly"`
	PricePerDeviceYearly    float64 `gorm:"type:decimal(10,2);not null;default:0" json:"price_per_device_yearly"`

	// USD -> local currency (INR) conversion rate used for gateway orders.
	CurrencyRate float64 `gorm:"type:decimal(10,4);not null;default:1" json:"currency_rate"`

	// Resource limits granted by the plan. -1 means unlimited.
	MaxGateways    int `gorm:"not null;default:0" json:"max_gateways"`
	MaxParkingLots int `gorm:"not null;default:0" json:"max_parking_lots"`
	MaxFloors      int `gorm:"not null;default:0" json:"max_floors"`
	MaxSlots       int `gorm:"not null;default:0" json:"max_slots"`
	MaxUsers       int `gorm:"not null;default:0" json:"max_users"`

	IsActive  bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *SubscriptionPlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
