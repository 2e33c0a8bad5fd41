package repository

import (
	"fmt"

	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// usageRepository implements entitlements.UsageCounter against the live
// resource tables.
type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a usage counter backed by GORM.
func NewUsageRepository(db *gorm.DB) entitlements.UsageCounter {
	return &usageRepository{db: db}
}

func (r *usageRepository) CountFeature(adminID uint, feature entitlements.Feature) (int64, error) {
	var count int64
	var err error

	switch feature {
	case entitlements.FeatureGateways:
		err = r.db.Model(&models.IoTGateway{}).Where("admin_id = ?", adminID).Count(&count).Error
	case entitlements.FeatureParkingLots:
		err = r.db.Model(&models.ParkingLot{}).Where("admin_id = ?", adminID).Count(&count).Error
	case entitlements.FeatureFloors:
		err = r.db.Model(&models.ParkingFloor{}).Where("admin_id = ?", adminID).Count(&count).Error
	case entitlements.FeatureSlots:
		err = r.db.Model(&models.ParkingSlot{}).Where("admin_id = ?", adminID).Count(&count).Error
	case entitlements.FeatureUsers:
		// Team accounts are not modeled yet; the admin is the only user.
		count = 1
	default:
		return 0, fmt.Errorf("unknown feature %q", feature)
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}
