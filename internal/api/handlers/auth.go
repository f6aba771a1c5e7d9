package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/keymint/keymint/internal/api/auth"
	"github.com/keymint/keymint/internal/api/middleware"
	"github.com/keymint/keymint/internal/logger"
)

// AdminAccount is the administrator account the API authenticates against.
// keymint has a single operator account, configured at init time; there is
// no user database behind the management API.
type AdminAccount struct {
	Username     string
	Email        string
	PasswordHash string
}

// AuthHandler handles authentication-related API endpoints.
type AuthHandler struct {
	admin      AdminAccount
	jwtService *auth.JWTService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(admin AdminAccount, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		admin:      admin,
		jwtService: jwtService,
	}
}

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for POST /api/v1/auth/login.
type LoginResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int64           `json:"expires_in"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Account      AccountResponse `json:"account"`
}

// AccountResponse is a sanitized account representation for API responses.
type AccountResponse struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// RefreshRequest is the request body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/v1/auth/login.
// Authenticates the admin credentials and returns a JWT token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		BadRequest(w, "Username and password are required")
		return
	}

	if h.admin.PasswordHash == "" {
		logger.WarnCtx(r.Context(), "login rejected: admin password hash is not configured, run 'keymint init' first")
		Unauthorized(w, "Invalid username or password")
		return
	}

	if req.Username != h.admin.Username || !auth.VerifyPassword(req.Password, h.admin.PasswordHash) {
		Unauthorized(w, "Invalid username or password")
		return
	}

	tokenPair, err := h.jwtService.GenerateTokenPair(h.admin.Username)
	if err != nil {
		InternalServerError(w, "Failed to generate token")
		return
	}

	logger.InfoCtx(r.Context(), "admin login", "username", h.admin.Username)

	WriteJSONOK(w, h.loginResponse(tokenPair))
}

// Refresh handles POST /api/v1/auth/refresh.
// Returns a new token pair using a valid refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.RefreshToken == "" {
		BadRequest(w, "Refresh token is required")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			Unauthorized(w, "Refresh token has expired")
			return
		}
		Unauthorized(w, "Invalid refresh token")
		return
	}

	// The admin account may have been renamed since the token was issued.
	if claims.Username != h.admin.Username {
		Unauthorized(w, "Unknown account")
		return
	}

	tokenPair, err := h.jwtService.GenerateTokenPair(h.admin.Username)
	if err != nil {
		InternalServerError(w, "Failed to generate token")
		return
	}

	WriteJSONOK(w, h.loginResponse(tokenPair))
}

// Me handles GET /api/v1/auth/me.
// Returns the current authenticated account's information.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	WriteJSONOK(w, AccountResponse{
		Username: h.admin.Username,
		Email:    h.admin.Email,
		Role:     claims.Role,
	})
}

// loginResponse builds a LoginResponse from a token pair.
func (h *AuthHandler) loginResponse(tokenPair *auth.TokenPair) LoginResponse {
	return LoginResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenType:    tokenPair.TokenType,
		ExpiresIn:    tokenPair.ExpiresIn,
		ExpiresAt:    tokenPair.ExpiresAt,
		Account: AccountResponse{
			Username: h.admin.Username,
			Email:    h.admin.Email,
			Role:     auth.RoleAdmin,
		},
	}
}
