package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/mutualia/mutualia-backend/internal/middleware"
	"github.com/mutualia/mutualia-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// AssociateHandler handles associate HTTP requests
type AssociateHandler struct {
	associateService *service.AssociateService
}

// NewAssociateHandler creates a new AssociateHandler
func NewAssociateHandler(associateService *service.AssociateService) *AssociateHandler {
	return &AssociateHandler{associateService: associateService}
}

// CreateAssociateRequest represents the create associate request body
type CreateAssociateRequest struct {
	DocumentNumber string `json:"documentNumber"`
	FullName       string `json:"fullName"`
}

// AssociateResponse represents an associate in API responses
type AssociateResponse struct {
	ID             int32  `json:"id"`
	DocumentNumber string `json:"documentNumber"`
	FullName       string `json:"fullName"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// CreateAssociate handles POST /api/v1/associates
func (h *AssociateHandler) CreateAssociate(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	var req CreateAssociateRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	associate, err := h.associateService.CreateAssociate(c.Request().Context(), tenantID, service.CreateAssociateInput{
		DocumentNumber: req.DocumentNumber,
		FullName:       req.FullName,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAssociateDocumentEmpty), errors.Is(err, domain.ErrAssociateDocumentTooLong):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "documentNumber", Message: err.Error()},
			})
		case errors.Is(err, domain.ErrAssociateNameEmpty), errors.Is(err, domain.ErrAssociateNameTooLong):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "fullName", Message: err.Error()},
			})
		case errors.Is(err, domain.ErrAssociateDocumentExists):
			return NewConflictError(c, "An associate with this document number already exists")
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to create associate")
		return NewInternalError(c, "Failed to create associate")
	}

	log.Info().Int32("tenant_id", tenantID).Int32("associate_id", associate.ID).Msg("Associate created")

	return c.JSON(http.StatusCreated, toAssociateResponse(associate))
}

// GetAssociates godoc
// @Summary List associates
// @Description With document set, returns the single matching associate in a one-element list
// @Tags associates
// @Produce json
// @Security BearerAuth
// @Param document query string false "Document number"
// @Success 200 {array} AssociateResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /associates [get]
func (h *AssociateHandler) GetAssociates(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	ctx := c.Request().Context()
	if document := c.QueryParam("document"); document != "" {
		associate, err := h.associateService.GetAssociateByDocument(ctx, tenantID, document)
		if err != nil {
			if errors.Is(err, domain.ErrAssociateNotFound) {
				return c.JSON(http.StatusOK, []AssociateResponse{})
			}
			if errors.Is(err, domain.ErrAssociateDocumentEmpty) {
				return NewValidationError(c, "Invalid document", []ValidationError{
					{Field: "document", Message: err.Error()},
				})
			}
			log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to find associate by document")
			return NewInternalError(c, "Failed to find associate")
		}
		return c.JSON(http.StatusOK, []AssociateResponse{toAssociateResponse(associate)})
	}

	associates, err := h.associateService.ListAssociates(ctx, tenantID)
	if err != nil {
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to list associates")
		return NewInternalError(c, "Failed to list associates")
	}

	response := make([]AssociateResponse, len(associates))
	for i, associate := range associates {
		response[i] = toAssociateResponse(associate)
	}
	return c.JSON(http.StatusOK, response)
}

// GetAssociate handles GET /api/v1/associates/:id
func (h *AssociateHandler) GetAssociate(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid associate ID", nil)
	}

	associate, err := h.associateService.GetAssociate(c.Request().Context(), tenantID, int32(id))
	if err != nil {
		if errors.Is(err, domain.ErrAssociateNotFound) {
			return NewNotFoundError(c, "Associate not found")
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Int("associate_id", id).Msg("Failed to get associate")
		return NewInternalError(c, "Failed to get associate")
	}

	return c.JSON(http.StatusOK, toAssociateResponse(associate))
}

func toAssociateResponse(a *domain.Associate) AssociateResponse {
	return AssociateResponse{
		ID:             a.ID,
		DocumentNumber: a.DocumentNumber,
		FullName:       a.FullName,
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      a.UpdatedAt.Format(time.RFC3339),
	}
}
