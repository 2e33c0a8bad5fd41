package controllers

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/parkorbit/parkorbit/app/models"
	"github.com/parkorbit/parkorbit/app/repository"
)

type registerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone"`
	CompanyName string `json:"company_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAPIRegister creates a tenant admin account and issues its API key.
// The raw key is returned exactly once.
func HandleAPIRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}

	user, err := models.CreateUser(req.Name, strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", err.Error())
	}
	user.Phone = req.Phone
	user.CompanyName = req.CompanyName

	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByEmail(user.Email); err == nil {
		return jsonError(c, fiber.StatusConflict, "email_taken", "An account with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("register: email lookup failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Registration failed")
	}

	apiKey, err := user.IssueAPIKey()
	if err != nil {
		log.Printf("register: api key generation failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Registration failed")
	}

	if err := repo.Create(user); err != nil {
		log.Printf("register: user create failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Registration failed")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":    user,
		"api_key": apiKey,
	})
}

// HandleAPILogin verifies credentials and rotates the account's API key.
func HandleAPILogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid email or password")
		}
		log.Printf("login: user lookup failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Login failed")
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid email or password")
	}
	if user.Status != models.STATUS_ACTIVE {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Account is not active")
	}

	apiKey, err := user.IssueAPIKey()
	if err != nil {
		log.Printf("login: api key generation failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Login failed")
	}
	now := time.Now()
	user.LastLoginAt = &now
	if err := repo.Update(user); err != nil {
		log.Printf("login: user update failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Login failed")
	}

	return c.JSON(fiber.Map{
		"user":    user,
		"api_key": apiKey,
	})
}

// HandleAPIKeyRevoke invalidates the caller's API key.
func HandleAPIKeyRevoke(c *fiber.Ctx) error {
	user, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	user.RevokeAPIKey()
	if err := repository.GetGlobalFactory().GetUserRepository().Update(user); err != nil {
		log.Printf("revoke: user update failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Revoke failed")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleMe returns the caller's account and current subscription.
func HandleMe(c *fiber.Ctx) error {
	user, err := currentAdmin(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Not logged in")
	}

	stack := newBillingStack()
	sub, err := stack.Repo.GetEntitledSubscription(user.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return mapBillingError(c, err)
	}

	return c.JSON(fiber.Map{
		"user":         user,
		"subscription": sub,
	})
}
