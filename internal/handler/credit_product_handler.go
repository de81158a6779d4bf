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
	"github.com/shopspring/decimal"
)

// CreditProductHandler handles credit product HTTP requests
type CreditProductHandler struct {
	productService *service.CreditProductService
}

// NewCreditProductHandler creates a new CreditProductHandler
func NewCreditProductHandler(productService *service.CreditProductService) *CreditProductHandler {
	return &CreditProductHandler{productService: productService}
}

// CreateProductRequest represents the create product request body
type CreateProductRequest struct {
	Code                  string `json:"code"`
	Name                  string `json:"name"`
	MonthlyRatePercent    string `json:"monthlyRatePercent"`
	ManagementFeePercent  string `json:"managementFeePercent"`
	DistributorFeePercent string `json:"distributorFeePercent"`
	DueDay                int32  `json:"dueDay"`
	DueDayRule            string `json:"dueDayRule"`
	MaxInstallments       int32  `json:"maxInstallments"`
}

// CreditProductResponse represents a credit product in API responses
type CreditProductResponse struct {
	ID                    int32  `json:"id"`
	Code                  string `json:"code"`
	Name                  string `json:"name"`
	MonthlyRatePercent    string `json:"monthlyRatePercent"`
	ManagementFeePercent  string `json:"managementFeePercent"`
	DistributorFeePercent string `json:"distributorFeePercent"`
	DueDay                int32  `json:"dueDay"`
	DueDayRule            string `json:"dueDayRule"`
	MaxInstallments       int32  `json:"maxInstallments"`
	Active                bool   `json:"active"`
	CreatedAt             string `json:"createdAt"`
	UpdatedAt             string `json:"updatedAt"`
}

// CreateProduct handles POST /api/v1/products
func (h *CreditProductHandler) CreateProduct(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	var req CreateProductRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	rates := map[string]string{
		"monthlyRatePercent":    req.MonthlyRatePercent,
		"managementFeePercent":  req.ManagementFeePercent,
		"distributorFeePercent": req.DistributorFeePercent,
	}
	parsed := make(map[string]decimal.Decimal, len(rates))
	var fieldErrors []ValidationError
	for _, field := range []string{"monthlyRatePercent", "managementFeePercent", "distributorFeePercent"} {
		value := rates[field]
		if value == "" {
			parsed[field] = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			fieldErrors = append(fieldErrors, ValidationError{Field: field, Message: "Must be a valid decimal number"})
			continue
		}
		parsed[field] = d
	}
	if len(fieldErrors) > 0 {
		return NewValidationError(c, "Invalid percentage", fieldErrors)
	}

	product, err := h.productService.CreateProduct(c.Request().Context(), tenantID, service.CreateProductInput{
		Code:                  req.Code,
		Name:                  req.Name,
		MonthlyRatePercent:    parsed["monthlyRatePercent"],
		ManagementFeePercent:  parsed["managementFeePercent"],
		DistributorFeePercent: parsed["distributorFeePercent"],
		DueDay:                req.DueDay,
		DueDayRule:            domain.DueDayRule(req.DueDayRule),
		MaxInstallments:       req.MaxInstallments,
	})
	if err != nil {
		if field, ok := productFieldFor(err); ok {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: field, Message: err.Error()},
			})
		}
		if errors.Is(err, domain.ErrProductCodeExists) {
			return NewConflictError(c, "A credit product with this code already exists")
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to create credit product")
		return NewInternalError(c, "Failed to create credit product")
	}

	return c.JSON(http.StatusCreated, toCreditProductResponse(product))
}

// GetProducts godoc
// @Summary List credit products
// @Tags products
// @Produce json
// @Security BearerAuth
// @Success 200 {array} CreditProductResponse
// @Failure 401 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /products [get]
func (h *CreditProductHandler) GetProducts(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	products, err := h.productService.ListProducts(c.Request().Context(), tenantID)
	if err != nil {
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to list credit products")
		return NewInternalError(c, "Failed to list credit products")
	}

	response := make([]CreditProductResponse, len(products))
	for i, product := range products {
		response[i] = toCreditProductResponse(product)
	}
	return c.JSON(http.StatusOK, response)
}

// GetProduct handles GET /api/v1/products/:id
func (h *CreditProductHandler) GetProduct(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid product ID", nil)
	}

	product, err := h.productService.GetProduct(c.Request().Context(), tenantID, int32(id))
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return NewNotFoundError(c, "Credit product not found")
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Int("product_id", id).Msg("Failed to get credit product")
		return NewInternalError(c, "Failed to get credit product")
	}

	return c.JSON(http.StatusOK, toCreditProductResponse(product))
}

// DeactivateProduct handles POST /api/v1/products/:id/deactivate
// Existing loans keep their frozen terms; only new originations are blocked
func (h *CreditProductHandler) DeactivateProduct(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid product ID", nil)
	}

	product, err := h.productService.DeactivateProduct(c.Request().Context(), tenantID, int32(id))
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return NewNotFoundError(c, "Credit product not found")
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Int("product_id", id).Msg("Failed to deactivate credit product")
		return NewInternalError(c, "Failed to deactivate credit product")
	}

	log.Info().Int32("tenant_id", tenantID).Int32("product_id", product.ID).Msg("Credit product deactivated")

	return c.JSON(http.StatusOK, toCreditProductResponse(product))
}

func productFieldFor(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrProductCodeEmpty), errors.Is(err, domain.ErrProductCodeTooLong):
		return "code", true
	case errors.Is(err, domain.ErrProductNameEmpty), errors.Is(err, domain.ErrProductNameTooLong):
		return "name", true
	case errors.Is(err, domain.ErrProductRateInvalid):
		return "monthlyRatePercent", true
	case errors.Is(err, domain.ErrProductFeeInvalid):
		return "managementFeePercent", true
	case errors.Is(err, domain.ErrProductDistributorInvalid):
		return "distributorFeePercent", true
	case errors.Is(err, domain.ErrProductDueDayInvalid), errors.Is(err, domain.ErrStrictDueDayOverflow):
		return "dueDay", true
	case errors.Is(err, domain.ErrProductDueDayRuleInvalid):
		return "dueDayRule", true
	case errors.Is(err, domain.ErrProductMaxInstallments):
		return "maxInstallments", true
	}
	return "", false
}

func toCreditProductResponse(p *domain.CreditProduct) CreditProductResponse {
	return CreditProductResponse{
		ID:                    p.ID,
		Code:                  p.Code,
		Name:                  p.Name,
		MonthlyRatePercent:    p.MonthlyRatePercent.String(),
		ManagementFeePercent:  p.ManagementFeePercent.String(),
		DistributorFeePercent: p.DistributorFeePercent.String(),
		DueDay:                p.DueDay,
		DueDayRule:            string(p.DueDayRule),
		MaxInstallments:       p.MaxInstallments,
		Active:                p.Active,
		CreatedAt:             p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             p.UpdatedAt.Format(time.RFC3339),
	}
}
