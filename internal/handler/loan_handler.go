package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mutualia/mutualia-backend/internal/amortization"
	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/mutualia/mutualia-backend/internal/middleware"
	"github.com/mutualia/mutualia-backend/internal/service"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	dateLayout = "2006-01-02"

	// MaxImportFileSize bounds the multipart upload accepted by the import endpoint
	MaxImportFileSize = 5 << 20
)

// LoanHandler handles loan-related HTTP requests
type LoanHandler struct {
	loanService   *service.LoanService
	importService *service.ImportService
}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler(loanService *service.LoanService, importService *service.ImportService) *LoanHandler {
	return &LoanHandler{loanService: loanService, importService: importService}
}

// CreateLoanRequest represents the create loan request body
type CreateLoanRequest struct {
	AssociateID      int32   `json:"associateId"`
	ProductID        int32   `json:"productId"`
	Principal        string  `json:"principal"`
	InstallmentCount int32   `json:"installmentCount"`
	OriginationDate  string  `json:"originationDate,omitempty"` // defaults to today
	Notes            *string `json:"notes,omitempty"`
}

// PreviewLoanRequest represents the preview loan request body
type PreviewLoanRequest struct {
	ProductID                 int32  `json:"productId"`
	Principal                 string `json:"principal"`
	InstallmentCount          int32  `json:"installmentCount"`
	OriginationDate           string `json:"originationDate,omitempty"`
	ApplyDistributorRetention bool   `json:"applyDistributorRetention"`
}

// LoanResponse represents a loan in API responses
type LoanResponse struct {
	ID                        int32   `json:"id"`
	AssociateID               int32   `json:"associateId"`
	ProductID                 int32   `json:"productId"`
	Principal                 string  `json:"principal"`
	InstallmentCount          int32   `json:"installmentCount"`
	MonthlyRatePercent        string  `json:"monthlyRatePercent"`
	ManagementFeePercent      string  `json:"managementFeePercent"`
	DueDay                    int32   `json:"dueDay"`
	DueDayRule                string  `json:"dueDayRule"`
	OriginationDate           string  `json:"originationDate"`
	FinancedBase              string  `json:"financedBase"`
	InitialOutstandingBalance string  `json:"initialOutstandingBalance"`
	OutstandingBalance        string  `json:"outstandingBalance"`
	Status                    string  `json:"status"`
	Source                    string  `json:"source"`
	Notes                     *string `json:"notes,omitempty"`
	CreatedAt                 string  `json:"createdAt"`
	UpdatedAt                 string  `json:"updatedAt"`
	CancelledAt               *string `json:"cancelledAt,omitempty"`
}

// InstallmentResponse represents a single installment of a plan
type InstallmentResponse struct {
	SequenceNumber   int32   `json:"sequenceNumber"`
	Label            string  `json:"label"`
	DueDate          string  `json:"dueDate"`
	PrincipalPortion string  `json:"principalPortion"`
	InterestPortion  string  `json:"interestPortion"`
	GrossAmount      string  `json:"grossAmount"`
	Status           string  `json:"status,omitempty"`
	RetentionAmount  *string `json:"retentionAmount,omitempty"`
	NetAmount        *string `json:"netAmount,omitempty"`
}

// OriginatedLoanResponse is a created loan with its persisted plan
type OriginatedLoanResponse struct {
	LoanResponse
	StubInterest string                `json:"stubInterest"`
	LevelPayment string                `json:"levelPayment"`
	Installments []InstallmentResponse `json:"installments"`
}

// RetentionTotalsResponse summarizes the distributor retention estimate
type RetentionTotalsResponse struct {
	DistributorFeePercent string `json:"distributorFeePercent"`
	TotalRetention        string `json:"totalRetention"`
	TotalNet              string `json:"totalNet"`
}

// PreviewLoanResponse represents a computed plan that was not stored
type PreviewLoanResponse struct {
	ProductID                 int32                    `json:"productId"`
	FinancedBase              string                   `json:"financedBase"`
	StubInterest              string                   `json:"stubInterest"`
	LevelPayment              string                   `json:"levelPayment"`
	InitialOutstandingBalance string                   `json:"initialOutstandingBalance"`
	FirstDueDate              string                   `json:"firstDueDate"`
	LastDueDate               string                   `json:"lastDueDate"`
	Installments              []InstallmentResponse    `json:"installments"`
	Retention                 *RetentionTotalsResponse `json:"retention,omitempty"`
}

// ImportRowResponse reports the outcome of one CSV row
type ImportRowResponse struct {
	Row     int    `json:"row"`
	Outcome string `json:"outcome"`
	LoanID  int32  `json:"loanId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ImportLoansResponse summarizes a bulk import
type ImportLoansResponse struct {
	TotalRows  int                 `json:"totalRows"`
	Created    int                 `json:"created"`
	Failed     int                 `json:"failed"`
	ArchiveKey string              `json:"archiveKey,omitempty"`
	Rows       []ImportRowResponse `json:"rows"`
}

// CreateLoan godoc
// @Summary Originate a loan
// @Description Build the installment plan from the product terms and store the loan with its installments
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateLoanRequest true "Loan details"
// @Success 201 {object} OriginatedLoanResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 422 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /loans [post]
func (h *LoanHandler) CreateLoan(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	var req CreateLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		return NewValidationError(c, "Invalid principal", []ValidationError{
			{Field: "principal", Message: "Must be a valid decimal number"},
		})
	}

	originationDate, err := parseOptionalDate(req.OriginationDate)
	if err != nil {
		return NewValidationError(c, "Invalid origination date", []ValidationError{
			{Field: "originationDate", Message: "Must be in YYYY-MM-DD format"},
		})
	}

	originated, err := h.loanService.OriginateLoan(c.Request().Context(), tenantID, service.OriginateLoanInput{
		AssociateID:      req.AssociateID,
		ProductID:        req.ProductID,
		Principal:        principal,
		InstallmentCount: req.InstallmentCount,
		OriginationDate:  originationDate,
		Notes:            req.Notes,
	})
	if err != nil {
		if handled, respErr := h.originationError(c, err); handled {
			return respErr
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to originate loan")
		return NewInternalError(c, "Failed to originate loan")
	}

	response := OriginatedLoanResponse{
		LoanResponse: toLoanResponse(originated.Loan),
		StubInterest: originated.Plan.StubInterest.StringFixed(2),
		LevelPayment: originated.Plan.LevelPayment.StringFixed(2),
		Installments: toInstallmentResponses(originated.Installments, originated.Loan.InstallmentCount),
	}
	return c.JSON(http.StatusCreated, response)
}

// PreviewLoan godoc
// @Summary Preview an installment plan
// @Description Compute the plan without storing it, optionally with the distributor retention estimate
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PreviewLoanRequest true "Preview terms"
// @Success 200 {object} PreviewLoanResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 422 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /loans/preview [post]
func (h *LoanHandler) PreviewLoan(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	var req PreviewLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		return NewValidationError(c, "Invalid principal", []ValidationError{
			{Field: "principal", Message: "Must be a valid decimal number"},
		})
	}

	originationDate, err := parseOptionalDate(req.OriginationDate)
	if err != nil {
		return NewValidationError(c, "Invalid origination date", []ValidationError{
			{Field: "originationDate", Message: "Must be in YYYY-MM-DD format"},
		})
	}

	result, err := h.loanService.PreviewLoan(c.Request().Context(), tenantID, service.PreviewLoanInput{
		ProductID:                 req.ProductID,
		Principal:                 principal,
		InstallmentCount:          req.InstallmentCount,
		OriginationDate:           originationDate,
		ApplyDistributorRetention: req.ApplyDistributorRetention,
	})
	if err != nil {
		if handled, respErr := h.originationError(c, err); handled {
			return respErr
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to preview loan")
		return NewInternalError(c, "Failed to preview loan")
	}

	return c.JSON(http.StatusOK, toPreviewLoanResponse(result))
}

// ImportLoans godoc
// @Summary Import loans from CSV
// @Description Originate one loan per CSV row; failed rows are reported without aborting the file
// @Tags loans
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "CSV with header document_number,product_code,principal,installments,origination_date"
// @Success 200 {object} ImportLoansResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 429 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /loans/import [post]
func (h *LoanHandler) ImportLoans(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(c, "No file provided", []ValidationError{
			{Field: "file", Message: "File is required"},
		})
	}
	if file.Size > MaxImportFileSize {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "file", Message: "File too large. Maximum size is 5MB"},
		})
	}

	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to open uploaded file")
		return NewInternalError(c, "Failed to process file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxImportFileSize+1))
	if err != nil {
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to read uploaded file")
		return NewInternalError(c, "Failed to read file")
	}
	if len(data) > MaxImportFileSize {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "file", Message: "File too large. Maximum size is 5MB"},
		})
	}

	result, err := h.importService.ImportLoans(c.Request().Context(), tenantID, file.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrImportEmpty),
			errors.Is(err, domain.ErrImportHeaderInvalid),
			errors.Is(err, domain.ErrImportTooManyRows),
			errors.Is(err, domain.ErrInvalidInput):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "file", Message: err.Error()},
			})
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Str("filename", file.Filename).Msg("Failed to import loans")
		return NewInternalError(c, "Failed to import loans")
	}

	response := ImportLoansResponse{
		TotalRows:  result.TotalRows,
		Created:    result.Created,
		Failed:     result.Failed,
		ArchiveKey: result.ArchiveKey,
		Rows:       make([]ImportRowResponse, len(result.Rows)),
	}
	for i, row := range result.Rows {
		response.Rows[i] = ImportRowResponse{
			Row:     row.Row,
			Outcome: row.Outcome,
			LoanID:  row.LoanID,
			Error:   row.Error,
		}
	}
	return c.JSON(http.StatusOK, response)
}

// GetLoans godoc
// @Summary List loans
// @Description Get all loans for the authenticated tenant
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status: active, cancelled, all" default(all)
// @Success 200 {array} LoanResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /loans [get]
func (h *LoanHandler) GetLoans(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	filter, err := domain.ParseLoanFilter(c.QueryParam("status"))
	if err != nil {
		return NewValidationError(c, "Invalid status parameter", []ValidationError{
			{Field: "status", Message: "Must be 'all', 'active', or 'cancelled'"},
		})
	}

	loans, err := h.loanService.ListLoans(c.Request().Context(), tenantID, filter)
	if err != nil {
		log.Error().Err(err).Int32("tenant_id", tenantID).Msg("Failed to get loans")
		return NewInternalError(c, "Failed to get loans")
	}

	response := make([]LoanResponse, len(loans))
	for i, loan := range loans {
		response[i] = toLoanResponse(loan)
	}
	return c.JSON(http.StatusOK, response)
}

// GetLoan handles GET /api/v1/loans/:id
func (h *LoanHandler) GetLoan(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := h.loanService.GetLoan(c.Request().Context(), tenantID, int32(id))
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Int("loan_id", id).Msg("Failed to get loan")
		return NewInternalError(c, "Failed to get loan")
	}

	return c.JSON(http.StatusOK, toLoanResponse(loan))
}

// GetInstallments handles GET /api/v1/loans/:id/installments
func (h *LoanHandler) GetInstallments(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := h.loanService.GetLoan(c.Request().Context(), tenantID, int32(id))
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Int("loan_id", id).Msg("Failed to get loan")
		return NewInternalError(c, "Failed to get installments")
	}

	installments, err := h.loanService.GetInstallments(c.Request().Context(), tenantID, loan.ID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		log.Error().Err(err).Int32("tenant_id", tenantID).Int("loan_id", id).Msg("Failed to get installments")
		return NewInternalError(c, "Failed to get installments")
	}

	return c.JSON(http.StatusOK, toInstallmentResponses(installments, loan.InstallmentCount))
}

// CancelLoan handles POST /api/v1/loans/:id/cancel
func (h *LoanHandler) CancelLoan(c echo.Context) error {
	tenantID := middleware.GetTenantID(c)
	if tenantID == 0 {
		return NewUnauthorizedError(c, "Tenant required")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := h.loanService.CancelLoan(c.Request().Context(), tenantID, int32(id))
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		if errors.Is(err, domain.ErrLoanAlreadyCancelled) {
			return NewConflictError(c, "Loan is already cancelled")
		}
		return NewInternalError(c, "Failed to cancel loan")
	}

	return c.JSON(http.StatusOK, toLoanResponse(loan))
}

// originationError writes the problem response for business errors shared by create and
// preview. It reports false when err is unexpected and the caller should answer 500.
func (h *LoanHandler) originationError(c echo.Context, err error) (bool, error) {
	var termsErr *domain.LoanTermsError
	switch {
	case errors.As(err, &termsErr):
		return true, NewValidationError(c, "Validation failed", []ValidationError{
			{Field: termsErr.Field, Message: termsErr.Message},
		})
	case errors.Is(err, domain.ErrCalendarOverflow):
		return true, NewUnprocessableError(c, "The product's due day does not exist in a scheduled month")
	case errors.Is(err, domain.ErrLoanAssociateInvalid):
		return true, NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "associateId", Message: "Associate is required"},
		})
	case errors.Is(err, domain.ErrAssociateNotFound):
		return true, NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "associateId", Message: "Associate not found"},
		})
	case errors.Is(err, domain.ErrLoanProductInvalid):
		return true, NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "productId", Message: "Credit product is required"},
		})
	case errors.Is(err, domain.ErrProductNotFound):
		return true, NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "productId", Message: "Credit product not found"},
		})
	case errors.Is(err, domain.ErrProductInactive):
		return true, NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "productId", Message: "Credit product is inactive"},
		})
	case errors.Is(err, domain.ErrInstallmentCountExceeded):
		return true, NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "installmentCount", Message: "Installment count exceeds the product maximum"},
		})
	case errors.Is(err, domain.ErrLoanNotesTooLong):
		return true, NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "notes", Message: "Notes must be 500 characters or less"},
		})
	}
	return false, nil
}

func parseOptionalDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, value)
}

func toLoanResponse(loan *domain.Loan) LoanResponse {
	resp := LoanResponse{
		ID:                        loan.ID,
		AssociateID:               loan.AssociateID,
		ProductID:                 loan.ProductID,
		Principal:                 loan.Principal.StringFixed(2),
		InstallmentCount:          loan.InstallmentCount,
		MonthlyRatePercent:        loan.MonthlyRatePercent.String(),
		ManagementFeePercent:      loan.ManagementFeePercent.String(),
		DueDay:                    loan.DueDay,
		DueDayRule:                string(loan.DueDayRule),
		OriginationDate:           loan.OriginationDate.Format(dateLayout),
		FinancedBase:              loan.FinancedBase.StringFixed(2),
		InitialOutstandingBalance: loan.InitialOutstandingBalance.StringFixed(2),
		OutstandingBalance:        loan.OutstandingBalance.StringFixed(2),
		Status:                    loan.Status,
		Source:                    loan.Source,
		Notes:                     loan.Notes,
		CreatedAt:                 loan.CreatedAt.Format(time.RFC3339),
		UpdatedAt:                 loan.UpdatedAt.Format(time.RFC3339),
	}
	if loan.CancelledAt != nil {
		cancelledAt := loan.CancelledAt.Format(time.RFC3339)
		resp.CancelledAt = &cancelledAt
	}
	return resp
}

func toInstallmentResponses(installments []*domain.LoanInstallment, total int32) []InstallmentResponse {
	response := make([]InstallmentResponse, len(installments))
	for i, inst := range installments {
		response[i] = InstallmentResponse{
			SequenceNumber:   inst.SequenceNumber,
			Label:            inst.FormatLabel(total),
			DueDate:          inst.DueDate.Format(dateLayout),
			PrincipalPortion: inst.PrincipalPortion.StringFixed(2),
			InterestPortion:  inst.InterestPortion.StringFixed(2),
			GrossAmount:      inst.GrossAmount.StringFixed(2),
			Status:           inst.Status,
		}
	}
	return response
}

func toPreviewLoanResponse(result *service.PreviewLoanResult) PreviewLoanResponse {
	plan := result.Plan
	total := int32(len(plan.Installments))

	resp := PreviewLoanResponse{
		ProductID:                 result.Product.ID,
		FinancedBase:              plan.FinancedBase.StringFixed(2),
		StubInterest:              plan.StubInterest.StringFixed(2),
		LevelPayment:              plan.LevelPayment.StringFixed(2),
		InitialOutstandingBalance: plan.InitialOutstandingBalance.StringFixed(2),
		FirstDueDate:              plan.FirstDueDate().Format(dateLayout),
		LastDueDate:               plan.LastDueDate().Format(dateLayout),
		Installments:              make([]InstallmentResponse, len(plan.Installments)),
	}
	for i, inst := range plan.Installments {
		row := &domain.LoanInstallment{SequenceNumber: int32(inst.SequenceNumber)}
		resp.Installments[i] = InstallmentResponse{
			SequenceNumber:   row.SequenceNumber,
			Label:            row.FormatLabel(total),
			DueDate:          inst.DueDate.Format(dateLayout),
			PrincipalPortion: inst.PrincipalPortion.StringFixed(2),
			InterestPortion:  inst.InterestPortion.StringFixed(2),
			GrossAmount:      inst.GrossAmount.StringFixed(2),
		}
	}

	if result.Retention != nil {
		applyRetention(&resp, result.Retention)
	}
	return resp
}

func applyRetention(resp *PreviewLoanResponse, retention *amortization.RetentionSummary) {
	for i, line := range retention.Lines {
		if i >= len(resp.Installments) {
			break
		}
		retained := line.RetentionAmount.StringFixed(2)
		net := line.NetAmount.StringFixed(2)
		resp.Installments[i].RetentionAmount = &retained
		resp.Installments[i].NetAmount = &net
	}
	resp.Retention = &RetentionTotalsResponse{
		DistributorFeePercent: retention.FeePercent.String(),
		TotalRetention:        retention.TotalRetention.StringFixed(2),
		TotalNet:              retention.TotalNet.StringFixed(2),
	}
}
