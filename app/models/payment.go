package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentType is the closed set of payment purposes.
type PaymentType string

const (
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeUpgrade      PaymentType = "subscription_upgrade"
	PaymentTypeOneTime      PaymentType = "one_time"
	PaymentTypeRefund       PaymentType = "refund"
	PaymentTypeCredit       PaymentType = "credit"
)

// PaymentStatus is the closed set of payment states. Completed, failed,
// cancelled and refunded are terminal; processing may be revisited any
// number of times while a gateway confirmation is outstanding.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

// IsTerminal reports whether no further finalize call may change the status.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentCompleted, PaymentFailed, PaymentCancelled, PaymentRefunded:
		return true
	case PaymentPending, PaymentProcessing:
		return false
	default:
		return false
	}
}

// CashfreeMetadata is the durable record of the gateway's view of one
// order. OrderID is the join key used to locate a payment when only the
// gateway's identifiers are available.
type CashfreeMetadata struct {
	OrderID          string     `json:"order_id,omitempty"`
	CFOrderID        string     `json:"cf_order_id,omitempty"`
	PaymentSessionID string     `json:"payment_session_id,omitempty"`
	ReferenceID      string     `json:"reference_id,omitempty"`
	Status           string     `json:"status,omitempty"`
	RawCallback      string     `json:"raw_callback,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
}

// PaymentMetadata is the typed shape of the payment's free-form metadata
// column. It is serialized as JSON only at the persistence boundary.
type PaymentMetadata struct {
	Cashfree            *CashfreeMetadata `json:"cashfree,omitempty"`
	PriorSubscriptionID string            `json:"prior_subscription_id,omitempty"`
	Note                string            `json:"note,omitempty"`
}

// Payment is one attempt to collect money. TransactionID doubles as the
// gateway order id by convention.
type Payment struct {
	ID            string `gorm:"type:varchar(36);primaryKey" json:"id"`
	TransactionID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_id"`

	UserID uint `gorm:"not null;index" json:"user_id"`
	User   User `gorm:"foreignKey:UserID" json:"-"`

	SubscriptionID *string       `gorm:"type:varchar(36);index" json:"subscription_id,omitempty"`
	Subscription   *Subscription `gorm:"foreignKey:SubscriptionID" json:"-"`

	Type     PaymentType   `gorm:"type:varchar(32);not null;default:'subscription'" json:"type"`
	Amount   float64       `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency string        `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	Status   PaymentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	PaymentMethod string         `gorm:"type:varchar(50)" json:"payment_method"`
	Metadata      datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`
	FailureReason string         `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`

	ProcessedAt  *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	RefundedAt   *time.Time `gorm:"type:timestamp;default:null" json:"refunded_at,omitempty"`
	RefundAmount float64    `gorm:"type:decimal(10,2);default:0" json:"refund_amount,omitempty"`
	RefundReason string     `gorm:"type:varchar(255)" json:"refund_reason,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Meta decodes the metadata column. A missing or empty column yields the
// zero value, never an error, so callers can always mutate and re-set.
func (p *Payment) Meta() PaymentMetadata {
	var meta PaymentMetadata
	if len(p.Metadata) == 0 {
		return meta
	}
	if err := json.Unmarshal(p.Metadata, &meta); err != nil {
		return PaymentMetadata{}
	}
	return meta
}

// SetMeta encodes the typed metadata back onto the persistence column.
func (p *Payment) SetMeta(meta PaymentMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	p.Metadata = datatypes.JSON(raw)
	return nil
}
