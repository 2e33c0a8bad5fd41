package database

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var (
	DB *gorm.DB
	mu sync.RWMutex
)

func SetupDatabase() {
	db, err := openWithRetry()
	if err != nil {
		panic(err)
	}
	SetDB(db)
}

func openWithRetry() (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,  // not supported before MySQL 5.6
			DontSupportRenameIndex:    true,  // rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on current MySQL version
		}), &gorm.Config{})
		if err == nil {
			db.AutoMigrate(
				&models.User{},
				&models.SubscriptionPlan{},
				&models.Subscription{},
				&models.Payment{},
				&models.ParkingLot{},
				&models.ParkingFloor{},
				&models.ParkingSlot{},
				&models.IoTGateway{},
				&models.SensorNode{},
			)
			seedDefaultPlans(db)
			return db, nil
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return nil, err
}

// seedDefaultPlans inserts the stock plan catalog on a fresh database.
// Existing rows are left alone so operator edits survive restarts.
func seedDefaultPlans(db *gorm.DB) {
	var count int64
	if err := db.Model(&models.SubscriptionPlan{}).Count(&count).Error; err != nil || count > 0 {
		return
	}

	plans := []models.SubscriptionPlan{
		{
			Name:                    "Starter",
			Description:             "Single-lot operations with a small sensor fleet",
			PriceMonthly:            10,
			PriceQuarterly:          27,
			PriceYearly:             96,
			PricePerDeviceMonthly:   1,
			PricePerDeviceQuarterly: 2.7,
			PricePerDeviceYearly:    9.6,
			CurrencyRate:            83,
			MaxGateways:             2,
			MaxParkingLots:          1,
			MaxFloors:               5,
			MaxSlots:                100,
			MaxUsers:                1,
			IsActive:                true,
		},
		{
			Name:                    "Professional",
			Description:             "Multi-lot operators with larger fleets",
			PriceMonthly:            30,
			PriceQuarterly:          81,
			PriceYearly:             288,
			PricePerDeviceMonthly:   0.8,
			PricePerDeviceQuarterly: 2.2,
			PricePerDeviceYearly:    7.7,
			CurrencyRate:            83,
			MaxGateways:             10,
			MaxParkingLots:          5,
			MaxFloors:               25,
			MaxSlots:                1000,
			MaxUsers:                5,
			IsActive:                true,
		},
		{
			Name:                    "Enterprise",
			Description:             "Unlimited lots and devices, priority support",
			PriceMonthly:            100,
			PriceQuarterly:          270,
			PriceYearly:             960,
			PricePerDeviceMonthly:   0.5,
			PricePerDeviceQuarterly: 1.4,
			PricePerDeviceYearly:    4.8,
			CurrencyRate:            83,
			MaxGateways:             -1,
			MaxParkingLots:          -1,
			MaxFloors:               -1,
			MaxSlots:                -1,
			MaxUsers:                -1,
			IsActive:                true,
		},
	}
	if err := db.Create(&plans).Error; err != nil {
		log.Printf("Failed to seed default plans: %v", err)
	}
}

// GetDB returns the active database handle.
func GetDB() *gorm.DB {
	mu.RLock()
	defer mu.RUnlock()
	return DB
}

// SetDB replaces the active database handle. Tests use this to inject an
// in-memory database.
func SetDB(db *gorm.DB) {
	mu.Lock()
	defer mu.Unlock()
	DB = db
}

// Reconnect tears down the current connection pool and opens a fresh one.
// Callers use this when the driver reports a dropped connection mid-flight.
func Reconnect() error {
	old := GetDB()
	if old != nil {
		if sqlDB, err := old.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	db, err := openWithRetry()
	if err != nil {
		return fmt.Errorf("database reconnect failed: %w", err)
	}
	SetDB(db)
	log.Print("database connection pool reinitialized")
	return nil
}
