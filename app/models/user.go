package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_ADMIN    = "admin"    // tenant admin, owns lots/gateways/subscriptions
	ROLE_OPERATOR = "operator" // platform operator, manages plans

	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email            string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password         string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Phone            string         `gorm:"type:varchar(20);default:null" json:"phone" validate:"max=20"`
	CompanyName      string         `gorm:"type:varchar(200);default:null" json:"company_name" validate:"max=200"`
	Role             string         `gorm:"type:varchar(50);default:'admin'" json:"role" validate:"oneof=admin operator"`
	Status           string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	APIKeyHash       string         `gorm:"type:varchar(64);index;default:null" json:"-"`
	APIKeyPrefix     string         `gorm:"type:varchar(12);default:null" json:"-"`
	APIKeyCreatedAt  *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	APIKeyLastUsedAt *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	LastLoginAt      *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func CreateUser(name string, email string, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     name,
		Email:    email,
		Password: pw,
		Role:     ROLE_ADMIN,
		Status:   STATUS_ACTIVE,
	}

	err = u.Validate()
	if err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HashAPIKey returns the hex SHA-256 of a raw API key. Only the hash is stored.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IssueAPIKey generates a fresh API key for the user and stores hash + prefix.
// The raw key is returned exactly once and never persisted.
func (u *User) IssueAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := "pk_" + hex.EncodeToString(raw)

	now := time.Now()
	u.APIKeyHash = HashAPIKey(key)
	u.APIKeyPrefix = key[:12]
	u.APIKeyCreatedAt = &now
	u.APIKeyLastUsedAt = nil
	return key, nil
}

func (u *User) HasActiveAPIKey() bool {
	return u.APIKeyHash != ""
}

func (u *User) RevokeAPIKey() {
	u.APIKeyHash = ""
	u.APIKeyPrefix = ""
	u.APIKeyCreatedAt = nil
	u.APIKeyLastUsedAt = nil
}
