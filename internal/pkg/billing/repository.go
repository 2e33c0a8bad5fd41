package billing

import (
	"time"

	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository provides the subscription and payment persistence operations
// the billing engine needs. Transaction returns a repository bound to one
// database transaction, so multi-entity writes compose inside a single
// caller-visible unit of work.
type Repository interface {
	Transaction(fn func(Repository) error) error

	GetSubscription(id string) (*models.Subscription, error)
	GetEntitledSubscription(adminID uint) (*models.Subscription, error)
	ListPendingSubscriptions(adminID uint) ([]models.Subscription, error)
	ListExpiredEntitling(now time.Time) ([]models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error

	GetPayment(id string) (*models.Payment, error)
	GetPaymentByTransactionID(transactionID string) (*models.Payment, error)
	GetPaymentByGatewayOrderID(orderID string) (*models.Payment, error)
	GetLatestPaymentBySessionID(sessionID string) (*models.Payment, error)
	CreatePayment(p *models.Payment) error
	SavePayment(p *models.Payment) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetSubscription(id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetEntitledSubscription returns the admin's active or trial subscription.
// At most one such row may exist at any time.
func (r *gormRepository) GetEntitledSubscription(adminID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("admin_id = ? AND status IN ?", adminID,
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionTrial}).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ListPendingSubscriptions(adminID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("admin_id = ? AND status = ?", adminID, models.SubscriptionPending).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListExpiredEntitling(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status IN ? AND end_date <= ?",
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionTrial}, now).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) GetPayment(id string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPaymentByTransactionID(transactionID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, "transaction_id = ?", transactionID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentByGatewayOrderID locates a payment by the gateway's own order
// id stored inside the metadata document.
func (r *gormRepository) GetPaymentByGatewayOrderID(orderID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.
		Where(datatypes.JSONQuery("metadata").Equals(orderID, "cashfree", "order_id")).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetLatestPaymentBySessionID resolves a gateway payment session id to its
// most recent payment. Used when a return redirect carries only the
// session id.
func (r *gormRepository) GetLatestPaymentBySessionID(sessionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.
		Where(datatypes.JSONQuery("metadata").Equals(sessionID, "cashfree", "payment_session_id")).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) SavePayment(p *models.Payment) error {
	return r.db.Save(p).Error
}
