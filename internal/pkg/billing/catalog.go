package billing

import (
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/gorm"
)

// Catalog is the read-only lookup over subscription plans and their
// pricing rules. It never mutates plans.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// FindPlan resolves a plan by UUID or by name. UUID lookups only succeed
// for active, non-deleted plans. Name lookups are case-insensitive and
// tolerate "-"/"_" as word separators. Lookup is advisory; a subscription
// always stores a strong reference to the plan it was created with.
func (c *Catalog) FindPlan(identifier string) (*models.SubscriptionPlan, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return nil, &NotFoundError{Resource: "plan", Key: identifier}
	}

	var plan models.SubscriptionPlan
	if _, err := uuid.Parse(id); err == nil {
		err := c.db.Where("id = ? AND is_active = ?", id, true).First(&plan).Error
		if err == nil {
			return &plan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, &NotFoundError{Resource: "plan", Key: identifier}
	}

	// Both sides are normalized, so a plan stored as "Pro_Max" still
	// resolves from "pro max". The catalog is small; a full scan of the
	// active rows is cheaper than teaching SQL the normalization rules.
	normalized := NormalizePlanName(id)
	var plans []models.SubscriptionPlan
	if err := c.db.Where("is_active = ?", true).Find(&plans).Error; err != nil {
		return nil, err
	}
	for i := range plans {
		if NormalizePlanName(plans[i].Name) == normalized {
			return &plans[i], nil
		}
	}
	return nil, &NotFoundError{Resource: "plan", Key: identifier}
}

// NormalizePlanName lowercases and maps "-"/"_" to spaces so that
// "starter-plan", "Starter_Plan" and "starter plan" all resolve alike.
func NormalizePlanName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", " ")
	n = strings.ReplaceAll(n, "_", " ")
	return strings.Join(strings.Fields(n), " ")
}

// PriceForCycle returns the USD price for one billing cycle: base price
// plus deviceCount times the per-device price. Pure linear pricing, no
// proration.
func (c *Catalog) PriceForCycle(plan *models.SubscriptionPlan, cycle models.BillingCycle, deviceCount int) float64 {
	if deviceCount < 0 {
		deviceCount = 0
	}
	return basePrice(plan, cycle) + float64(deviceCount)*perDevicePrice(plan, cycle)
}

// PriceInLocalCurrency converts the cycle price to the plan's local
// currency using its stored conversion rate, rounded to 2 decimal places
// half-up.
func (c *Catalog) PriceInLocalCurrency(plan *models.SubscriptionPlan, cycle models.BillingCycle, deviceCount int) float64 {
	return Round2(c.PriceForCycle(plan, cycle, deviceCount) * plan.CurrencyRate)
}

func basePrice(plan *models.SubscriptionPlan, cycle models.BillingCycle) float64 {
	switch cycle {
	case models.CycleMonthly:
		return plan.PriceMonthly
	case models.CycleQuarterly:
		return plan.PriceQuarterly
	case models.CycleYearly:
		return plan.PriceYearly
	default:
		return plan.PriceMonthly
	}
}

func perDevicePrice(plan *models.SubscriptionPlan, cycle models.BillingCycle) float64 {
	switch cycle {
	case models.CycleMonthly:
		return plan.PricePerDeviceMonthly
	case models.CycleQuarterly:
		return plan.PricePerDeviceQuarterly
	case models.CycleYearly:
		return plan.PricePerDeviceYearly
	default:
		return plan.PricePerDeviceMonthly
	}
}

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
