package usercontext

import "github.com/gofiber/fiber/v2"

// Shared Locals keys used across controllers and middlewares
const (
	ContextKey       = "USER_CONTEXT"
	KeyUserID        = "user_id"
	KeyUsername      = "username"
	KeyIsOperator    = "isOperator"
	KeyFromProtected = "from_protected"
)

// UserContext represents the complete user context for a request
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsOperator bool   `json:"is_operator"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(ContextKey); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false, IsOperator: false}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsOperator checks if the current user is a platform operator
func IsOperator(c *fiber.Ctx) bool {
	return GetUserContext(c).IsOperator
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// GetUsername returns the current user's username, or empty string if not logged in
func GetUsername(c *fiber.Ctx) string {
	return GetUserContext(c).Username
}
