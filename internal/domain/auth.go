package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// Scope, дающий право менять конфигурацию ролей через консоль.
const ScopeRolesAdmin = "roles.admin"

// CustomClaims — общий формат токена шлюза и консоли.
// Для шлюза Subject содержит адрес invoker'а, от имени которого исполняются вызовы.
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "roles.admin": true
	jwt.RegisteredClaims
}

// Invoker извлекает адрес invoker'а из subject.
func (c *CustomClaims) Invoker() (common.Address, error) {
	if !common.IsHexAddress(c.Subject) {
		return common.Address{}, fmt.Errorf("%w: subject %q is not an address", ErrNotAuthorized, c.Subject)
	}
	return common.HexToAddress(c.Subject), nil
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Role         string          `json:"role"`
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
