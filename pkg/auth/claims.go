package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleAdmin is the app_metadata role granted to studio staff.
const RoleAdmin = "admin"

// AppMetadata is the server-controlled metadata block of the identity provider.
type AppMetadata struct {
	Role     string `json:"role,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// AccessTokenClaims mirrors the access tokens issued by the hosted identity
// provider. Subject carries the user id.
type AccessTokenClaims struct {
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("subject is not a user id: %w", err)
	}
	return id, nil
}

// IsAdmin reads the role from app_metadata only; the top-level role claim is
// the database role and is the same for every signed-in user.
func (c *AccessTokenClaims) IsAdmin() bool {
	return c.AppMetadata.Role == RoleAdmin
}

// AccessTokenPayload captures the data needed to mint a token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Admin  bool
}
