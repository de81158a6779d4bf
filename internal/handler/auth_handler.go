package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/mutualia/mutualia-backend/internal/middleware"
	"github.com/mutualia/mutualia-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	tenantService *service.TenantService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(tenantService *service.TenantService) *AuthHandler {
	return &AuthHandler{
		tenantService: tenantService,
	}
}

// MeResponse describes the authenticated operator and their tenant
type MeResponse struct {
	Auth0ID string         `json:"auth0Id"`
	Email   string         `json:"email,omitempty"`
	Name    string         `json:"name,omitempty"`
	Tenant  TenantResponse `json:"tenant"`
}

// TenantResponse represents a tenant in API responses
type TenantResponse struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c echo.Context) error {
	auth0ID := middleware.GetAuth0ID(c)
	if auth0ID == "" {
		log.Error().Msg("No Auth0 ID in context - middleware may not be configured")
		return NewUnauthorizedError(c, "Authentication required")
	}
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	tenant, err := h.tenantService.GetTenant(c.Request().Context(), tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return NewNotFoundError(c, "Tenant not found")
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to get tenant")
		return NewInternalError(c, "Failed to get tenant")
	}

	resp := MeResponse{
		Auth0ID: auth0ID,
		Tenant:  TenantResponse{ID: tenant.ID, Name: tenant.Name},
	}
	if claims := middleware.GetClaims(c); claims != nil {
		if custom, ok := claims.CustomClaims.(*middleware.CustomClaims); ok {
			resp.Email = custom.Email
			resp.Name = custom.Name
		}
	}
	return c.JSON(http.StatusOK, resp)
}
