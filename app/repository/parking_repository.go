package repository

import (
	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/gorm"
)

// parkingRepository implements the ParkingRepository interface
type parkingRepository struct {
	db *gorm.DB
}

// NewParkingRepository creates a new parking repository instance
func NewParkingRepository(db *gorm.DB) ParkingRepository {
	return &parkingRepository{db: db}
}

func (r *parkingRepository) CreateLot(lot *models.ParkingLot) error {
	return r.db.Create(lot).Error
}

func (r *parkingRepository) GetLotByID(id uint) (*models.ParkingLot, error) {
	var lot models.ParkingLot
	err := r.db.Preload("Floors").First(&lot, id).Error
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *parkingRepository) GetLotsByAdmin(adminID uint) ([]models.ParkingLot, error) {
	var lots []models.ParkingLot
	err := r.db.Where("admin_id = ?", adminID).Order("created_at DESC").Find(&lots).Error
	return lots, err
}

func (r *parkingRepository) UpdateLot(lot *models.ParkingLot) error {
	return r.db.Save(lot).Error
}

// DeleteLot soft deletes a lot and its floors and slots.
func (r *parkingRepository) DeleteLot(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lot_id = ?", id).Delete(&models.ParkingSlot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("lot_id = ?", id).Delete(&models.ParkingFloor{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ParkingLot{}, id).Error
	})
}

func (r *parkingRepository) CreateFloor(floor *models.ParkingFloor) error {
	return r.db.Create(floor).Error
}

func (r *parkingRepository) GetFloorByID(id uint) (*models.ParkingFloor, error) {
	var floor models.ParkingFloor
	err := r.db.Preload("Slots").First(&floor, id).Error
	if err != nil {
		return nil, err
	}
	return &floor, nil
}

func (r *parkingRepository) GetFloorsByLot(lotID uint) ([]models.ParkingFloor, error) {
	var floors []models.ParkingFloor
	err := r.db.Where("lot_id = ?", lotID).Order("level ASC").Find(&floors).Error
	return floors, err
}

func (r *parkingRepository) DeleteFloor(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("floor_id = ?", id).Delete(&models.ParkingSlot{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ParkingFloor{}, id).Error
	})
}

func (r *parkingRepository) CreateSlot(slot *models.ParkingSlot) error {
	return r.db.Create(slot).Error
}

func (r *parkingRepository) GetSlotByID(id uint) (*models.ParkingSlot, error) {
	var slot models.ParkingSlot
	err := r.db.First(&slot, id).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *parkingRepository) GetSlotsByFloor(floorID uint) ([]models.ParkingSlot, error) {
	var slots []models.ParkingSlot
	err := r.db.Where("floor_id = ?", floorID).Order("code ASC").Find(&slots).Error
	return slots, err
}

func (r *parkingRepository) UpdateSlot(slot *models.ParkingSlot) error {
	return r.db.Save(slot).Error
}

func (r *parkingRepository) DeleteSlot(id uint) error {
	return r.db.Delete(&models.ParkingSlot{}, id).Error
}
