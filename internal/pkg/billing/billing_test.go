package billing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/parkorbit/parkorbit/app/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database per test. The shared
// cache keeps every pooled connection on the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.SubscriptionPlan{},
		&models.Subscription{},
		&models.Payment{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	admin := &models.User{
		Name:  "Test Admin",
		Email: "admin-" + strings.ToLower(strings.ReplaceAll(t.Name(), "/", "-")) + "@example.com",
		Phone: "9999999999",
	}
	if err := db.Create(admin).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return admin
}

func seedPlan(t *testing.T, db *gorm.DB, name string, priceMonthly, rate float64) *models.SubscriptionPlan {
	t.Helper()
	plan := &models.SubscriptionPlan{
		Name:           name,
		PriceMonthly:   priceMonthly,
		PriceQuarterly: priceMonthly * 3,
		PriceYearly:    priceMonthly * 12,
		CurrencyRate:   rate,
		MaxGateways:    2,
		MaxParkingLots: 1,
		MaxFloors:      5,
		MaxSlots:       100,
		MaxUsers:       3,
		IsActive:       true,
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

// fakeGateway is a scriptable GatewayClient for lifecycle and reconcile
// tests. Zero value returns a generic paid-for-nothing order.
type fakeGateway struct {
	createFn    func(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
	getFn       func(ctx context.Context, orderID string) (*GatewayOrder, error)
	createCalls int
	getCalls    int
}

func (f *fakeGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
	f.createCalls++
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return &GatewayOrder{
		OrderID:          req.OrderID,
		CFOrderID:        "cf_" + req.OrderID,
		PaymentSessionID: "session_" + req.OrderID,
		Status:           "ACTIVE",
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (f *fakeGateway) GetOrder(ctx context.Context, orderID string) (*GatewayOrder, error) {
	f.getCalls++
	if f.getFn != nil {
		return f.getFn(ctx, orderID)
	}
	return &GatewayOrder{OrderID: orderID, Status: "ACTIVE"}, nil
}

// testClock is the frozen time used across lifecycle tests so proration
// and cycle math stay deterministic.
var testClock = time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

func newTestManager(db *gorm.DB, gw GatewayClient) (*LifecycleManager, Repository) {
	repo := NewRepository(db)
	m := NewLifecycleManager(repo, NewCatalog(db), gw)
	m.now = func() time.Time { return testClock }
	return m, repo
}
