package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillingCycle is the closed set of supported billing cycles.
type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// ParseBillingCycle validates a raw cycle string against the closed set.
func ParseBillingCycle(raw string) (BillingCycle, error) {
	switch BillingCycle(raw) {
	case CycleMonthly, CycleQuarterly, CycleYearly:
		return BillingCycle(raw), nil
	default:
		return "", fmt.Errorf("unknown billing cycle %q", raw)
	}
}

// Advance returns t moved forward by one billing cycle using calendar
// arithmetic, preserving month-end semantics.
func (c BillingCycle) Advance(t time.Time) time.Time {
	switch c {
	case CycleMonthly:
		return t.AddDate(0, 1, 0)
	case CycleQuarterly:
		return t.AddDate(0, 3, 0)
	case CycleYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// SubscriptionStatus is the closed set of subscription lifecycle states.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

// SubscriptionPaymentStatus tracks the billing state of the current cycle.
type SubscriptionPaymentStatus string

const (
	SubPaymentPending   SubscriptionPaymentStatus = "pending"
	SubPaymentPaid      SubscriptionPaymentStatus = "paid"
	SubPaymentFailed    SubscriptionPaymentStatus = "failed"
	SubPaymentRefunded  SubscriptionPaymentStatus = "refunded"
	SubPaymentCancelled SubscriptionPaymentStatus = "cancelled"
)

// Subscription is one tenant admin's billing record. At most one
// subscription per admin may be active or trial at any time; pending rows
// from abandoned checkouts do not count toward that invariant.
type Subscription struct {
	ID      string `gorm:"type:varchar(36);primaryKey" json:"id"`
	AdminID uint   `gorm:"not null;index" json:"admin_id"`
	Admin   User   `gorm:"foreignKey:AdminID" json:"-"`

	PlanID string           `gorm:"type:varchar(36);not null;index" json:"plan_id"`
	Plan   SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`

	BillingCycle BillingCycle `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_cycle"`

	// Amount is snapshotted in local currency at creation, never re-derived.
	Amount      float64 `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	DeviceCount int     `gorm:"not null;default:0" json:"device_count"`

	StartDate       time.Time  `gorm:"not null" json:"start_date"`
	EndDate         time.Time  `gorm:"not null" json:"end_date"`
	TrialEndDate    *time.Time `gorm:"type:timestamp;default:null" json:"trial_end_date,omitempty"`
	NextBillingDate *time.Time `gorm:"type:timestamp;default:null" json:"next_billing_date,omitempty"`

	Status        SubscriptionStatus        `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus SubscriptionPaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`

	// Resource limits copied from the plan at creation so later plan edits
	// never change a live subscription's entitlements.
	MaxGateways    int `gorm:"not null;default:0" json:"max_gateways"`
	MaxParkingLots int `gorm:"not null;default:0" json:"max_parking_lots"`
	MaxFloors      int `gorm:"not null;default:0" json:"max_floors"`
	MaxSlots       int `gorm:"not null;default:0" json:"max_slots"`
	MaxUsers       int `gorm:"not null;default:0" json:"max_users"`

	AutoRenew    bool       `gorm:"default:true" json:"auto_renew"`
	CancelledAt  *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CancelReason string     `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`

	Payments []Payment `gorm:"foreignKey:SubscriptionID" json:"-"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsEntitling reports whether the subscription currently grants resource
// entitlements to its admin.
func (s *Subscription) IsEntitling() bool {
	switch s.Status {
	case SubscriptionActive, SubscriptionTrial:
		return true
	case SubscriptionPending, SubscriptionExpired, SubscriptionCancelled, SubscriptionSuspended:
		return false
	default:
		return false
	}
}

// ApplyPlanSnapshot copies the plan's resource limits onto the subscription.
func (s *Subscription) ApplyPlanSnapshot(plan *SubscriptionPlan) {
	s.MaxGateways = plan.MaxGateways
	s.MaxParkingLots = plan.MaxParkingLots
	s.MaxFloors = plan.MaxFloors
	s.MaxSlots = plan.MaxSlots
	s.MaxUsers = plan.MaxUsers
}
