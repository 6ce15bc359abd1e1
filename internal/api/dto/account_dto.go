package dto

import (
	"time"

	"github.com/spec-kit/portal-service/internal/domain"
)

// RegisterRequest payload for client self-registration.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AcceptInviteRequest consumes a credential-setup token.
type AcceptInviteRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// AdminCreateAccountRequest creates worker/admin accounts.
type AdminCreateAccountRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// AccountResponse is the public account projection.
type AccountResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	Status    string      `json:"status"`
	Invited   bool        `json:"invited"`
	CreatedAt time.Time   `json:"created_at"`
}

// AuthResponse carries a token alongside the account.
type AuthResponse struct {
	Account   AccountResponse `json:"account"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// NewAccountResponse maps the domain model.
func NewAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        account.ID,
		Name:      account.Name,
		Email:     account.Email,
		Role:      account.Role,
		Status:    string(account.Status),
		Invited:   account.Invited,
		CreatedAt: account.CreatedAt,
	}
}
