package repository

import (
	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/gorm"
)

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) Create(plan *models.SubscriptionPlan) error {
	return r.db.Create(plan).Error
}

func (r *planRepository) GetByID(id string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.First(&plan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *planRepository) GetByName(name string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.Where("name = ?", name).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetActive returns the plans shown on the public pricing surface.
func (r *planRepository) GetActive() ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Where("is_active = ?", true).Order("price_monthly ASC").Find(&plans).Error
	return plans, err
}

func (r *planRepository) GetAll() ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Order("price_monthly ASC").Find(&plans).Error
	return plans, err
}

func (r *planRepository) Update(plan *models.SubscriptionPlan) error {
	return r.db.Save(plan).Error
}

// Delete soft deletes a plan. Existing subscriptions keep their snapshot.
func (r *planRepository) Delete(id string) error {
	return r.db.Delete(&models.SubscriptionPlan{}, "id = ?", id).Error
}
