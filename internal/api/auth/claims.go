// Package auth provides JWT authentication for the keymint management API.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType indicates whether a token is an access token or refresh token.
type TokenType string

const (
	// TokenTypeAccess is a short-lived token used for API authorization.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is a long-lived token used to obtain new access tokens.
	TokenTypeRefresh TokenType = "refresh"
)

// RoleAdmin is the only role keymint knows. The management API drives key
// material distribution, so there is no read-only tier.
const RoleAdmin = "admin"

// Claims represents JWT claims for keymint API authentication.
type Claims struct {
	jwt.RegisteredClaims

	// Username is the authenticated account name.
	Username string `json:"username"`

	// Role is the account's role. Currently always "admin".
	Role string `json:"role"`

	// TokenType indicates whether this is an access or refresh token.
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken returns true if this is an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken returns true if this is a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}

// IsAdmin returns true if the account has the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
