package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keymint/keymint/pkg/registry"
	"github.com/keymint/keymint/pkg/registry/models"
)

// PrincipalsHandler handles principal management API endpoints.
type PrincipalsHandler struct {
	registry registry.Store
}

// NewPrincipalsHandler creates a new PrincipalsHandler.
func NewPrincipalsHandler(store registry.Store) *PrincipalsHandler {
	return &PrincipalsHandler{registry: store}
}

// CreatePrincipalRequest is the request body for POST /api/v1/principals.
type CreatePrincipalRequest struct {
	Name string `json:"name"`

	// IsService defaults to true when omitted. Service principals never
	// have their keytab material cached.
	IsService *bool `json:"is_service"`
}

// PrincipalResponse is the response body for principal endpoints.
type PrincipalResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	IsService        bool      `json:"is_service"`
	CachedKeytabPath string    `json:"cached_keytab_path,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ProvisionResponse is the response body for host provision endpoints.
type ProvisionResponse struct {
	Host       string    `json:"host"`
	KeytabPath string    `json:"keytab_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// principalParam extracts the {name} URL parameter. Principal names carry
// '/' and '@' (e.g. "nn/host1@EXAMPLE.COM"), so clients percent-encode them
// in the path.
func principalParam(r *http.Request) string {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		return ""
	}
	return name
}

// Create handles POST /api/v1/principals.
func (h *PrincipalsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePrincipalRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Name == "" {
		BadRequest(w, "Principal name is required")
		return
	}

	isService := true
	if req.IsService != nil {
		isService = *req.IsService
	}

	principal := &models.Principal{
		Name:      req.Name,
		IsService: isService,
	}

	if _, err := h.registry.CreatePrincipal(r.Context(), principal); err != nil {
		if errors.Is(err, models.ErrDuplicatePrincipal) {
			Conflict(w, "Principal already exists")
			return
		}
		InternalServerError(w, "Failed to create principal")
		return
	}

	WriteJSONCreated(w, principalToResponse(principal))
}

// List handles GET /api/v1/principals.
func (h *PrincipalsHandler) List(w http.ResponseWriter, r *http.Request) {
	principals, err := h.registry.ListPrincipals(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list principals")
		return
	}

	response := make([]PrincipalResponse, len(principals))
	for i, p := range principals {
		response[i] = principalToResponse(p)
	}

	WriteJSONOK(w, response)
}

// Get handles GET /api/v1/principals/{name}.
func (h *PrincipalsHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := principalParam(r)
	if name == "" {
		BadRequest(w, "Principal name is required")
		return
	}

	principal, err := h.registry.FindPrincipal(r.Context(), name)
	if err != nil {
		if errors.Is(err, models.ErrPrincipalNotFound) {
			NotFound(w, "Principal not found")
			return
		}
		InternalServerError(w, "Failed to get principal")
		return
	}

	WriteJSONOK(w, principalToResponse(principal))
}

// Delete handles DELETE /api/v1/principals/{name}.
// Also removes the principal's host provision records.
func (h *PrincipalsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := principalParam(r)
	if name == "" {
		BadRequest(w, "Principal name is required")
		return
	}

	if err := h.registry.DeletePrincipal(r.Context(), name); err != nil {
		if errors.Is(err, models.ErrPrincipalNotFound) {
			NotFound(w, "Principal not found")
			return
		}
		InternalServerError(w, "Failed to delete principal")
		return
	}

	WriteNoContent(w)
}

// ListProvisions handles GET /api/v1/principals/{name}/provisions.
func (h *PrincipalsHandler) ListProvisions(w http.ResponseWriter, r *http.Request) {
	name := principalParam(r)
	if name == "" {
		BadRequest(w, "Principal name is required")
		return
	}

	provisions, err := h.registry.ListProvisions(r.Context(), name)
	if err != nil {
		if errors.Is(err, models.ErrPrincipalNotFound) {
			NotFound(w, "Principal not found")
			return
		}
		InternalServerError(w, "Failed to list provisions")
		return
	}

	response := make([]ProvisionResponse, len(provisions))
	for i, p := range provisions {
		response[i] = ProvisionResponse{
			Host:       p.Host,
			KeytabPath: p.KeytabPath,
			CreatedAt:  p.CreatedAt,
		}
	}

	WriteJSONOK(w, response)
}

// RemoveProvision handles DELETE /api/v1/principals/{name}/provisions/{host}.
// The next materialization for the pair then regenerates or re-copies the
// keytab instead of skipping.
func (h *PrincipalsHandler) RemoveProvision(w http.ResponseWriter, r *http.Request) {
	name := principalParam(r)
	host := chi.URLParam(r, "host")

	if name == "" {
		BadRequest(w, "Principal name is required")
		return
	}
	if host == "" {
		BadRequest(w, "Host is required")
		return
	}

	if err := h.registry.RemoveProvision(r.Context(), name, host); err != nil {
		if errors.Is(err, models.ErrProvisionNotFound) {
			NotFound(w, "Provision not found")
			return
		}
		InternalServerError(w, "Failed to remove provision")
		return
	}

	WriteNoContent(w)
}

// principalToResponse converts a models.Principal to PrincipalResponse.
func principalToResponse(p *models.Principal) PrincipalResponse {
	return PrincipalResponse{
		ID:               p.ID,
		Name:             p.Name,
		IsService:        p.IsService,
		CachedKeytabPath: p.CachedKeytabPath,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
