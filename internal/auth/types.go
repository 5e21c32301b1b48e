package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role separates the two account kinds. Donors run reviews and advance
// their own pipelines; requestors create funding requests and may advance
// stages only on requests they created.
const (
	RoleDonor     = "donor"
	RoleRequestor = "requestor"
)

// ValidRole reports whether r is a known account role.
func ValidRole(r string) bool {
	return r == RoleDonor || r == RoleRequestor
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
