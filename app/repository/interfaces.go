package repository

import (
	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	TouchAPIKeyUsage(id uint) error
}

// PlanRepository defines the interface for subscription plan operations
type PlanRepository interface {
	Create(plan *models.SubscriptionPlan) error
	GetByID(id string) (*models.SubscriptionPlan, error)
	GetByName(name string) (*models.SubscriptionPlan, error)
	GetActive() ([]models.SubscriptionPlan, error)
	GetAll() ([]models.SubscriptionPlan, error)
	Update(plan *models.SubscriptionPlan) error
	Delete(id string) error
}

// ParkingRepository defines the interface for lot/floor/slot operations
type ParkingRepository interface {
	CreateLot(lot *models.ParkingLot) error
	GetLotByID(id uint) (*models.ParkingLot, error)
	GetLotsByAdmin(adminID uint) ([]models.ParkingLot, error)
	UpdateLot(lot *models.ParkingLot) error
	DeleteLot(id uint) error

	CreateFloor(floor *models.ParkingFloor) error
	GetFloorByID(id uint) (*models.ParkingFloor, error)
	GetFloorsByLot(lotID uint) ([]models.ParkingFloor, error)
	DeleteFloor(id uint) error

	CreateSlot(slot *models.ParkingSlot) error
	GetSlotByID(id uint) (*models.ParkingSlot, error)
	GetSlotsByFloor(floorID uint) ([]models.ParkingSlot, error)
	UpdateSlot(slot *models.ParkingSlot) error
	DeleteSlot(id uint) error
}

// DeviceRepository defines the interface for gateway/sensor operations
type DeviceRepository interface {
	CreateGateway(gw *models.IoTGateway) error
	GetGatewayByID(id uint) (*models.IoTGateway, error)
	GetGatewayByEUI(eui string) (*models.IoTGateway, error)
	GetGatewaysByAdmin(adminID uint) ([]models.IoTGateway, error)
	UpdateGateway(gw *models.IoTGateway) error
	DeleteGateway(id uint) error
	MarkGatewaySeen(id uint, online bool) error

	CreateNode(node *models.SensorNode) error
	GetNodeByID(id uint) (*models.SensorNode, error)
	GetNodeByDevEUI(devEUI string) (*models.SensorNode, error)
	GetNodesByGateway(gatewayID uint) ([]models.SensorNode, error)
	UpdateNode(node *models.SensorNode) error
	DeleteNode(id uint) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Plan    PlanRepository
	Parking ParkingRepository
	Device  DeviceRepository
	Usage   entitlements.UsageCounter
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Plan:    NewPlanRepository(db),
		Parking: NewParkingRepository(db),
		Device:  NewDeviceRepository(db),
		Usage:   NewUsageRepository(db),
	}
}
