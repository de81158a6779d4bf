package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mutualia/mutualia-backend/internal/amortization"
	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/mutualia/mutualia-backend/internal/events"
	"github.com/mutualia/mutualia-backend/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PlanSourcePreview labels plans built for an estimate. Persisted plans use the loan source.
const PlanSourcePreview = "preview"

// LoanService originates loans from credit products and serves their installment plans
type LoanService struct {
	transactor      domain.Transactor
	loanRepo        domain.LoanRepository
	installmentRepo domain.LoanInstallmentRepository
	productRepo     domain.CreditProductRepository
	associateRepo   domain.AssociateRepository
	eventPublisher  events.EventPublisher
	recorder        *metrics.Recorder
	now             func() time.Time
}

// NewLoanService creates a new LoanService
func NewLoanService(
	transactor domain.Transactor,
	loanRepo domain.LoanRepository,
	installmentRepo domain.LoanInstallmentRepository,
	productRepo domain.CreditProductRepository,
	associateRepo domain.AssociateRepository,
) *LoanService {
	return &LoanService{
		transactor:      transactor,
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		productRepo:     productRepo,
		associateRepo:   associateRepo,
		now:             time.Now,
	}
}

// SetEventPublisher sets the publisher for loan lifecycle events
func (s *LoanService) SetEventPublisher(publisher events.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the origination metrics recorder
func (s *LoanService) SetMetrics(recorder *metrics.Recorder) {
	s.recorder = recorder
}

// publishEvent publishes an event if a publisher is configured. Failures are logged, not returned.
func (s *LoanService) publishEvent(ctx context.Context, event events.Event) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Int32("tenant_id", event.TenantID).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Msg("Failed to publish event")
	}
}

// OriginateLoanInput contains input for a manual loan origination
type OriginateLoanInput struct {
	AssociateID      int32
	ProductID        int32
	Principal        decimal.Decimal
	InstallmentCount int32
	OriginationDate  time.Time // zero means today
	Notes            *string
}

// OriginatedLoan is a persisted loan together with its installment plan
type OriginatedLoan struct {
	Loan         *domain.Loan
	Installments []*domain.LoanInstallment
	Plan         *domain.InstallmentPlan
}

// LoanOriginatedPayload is the event payload consumed by the settlement workflow
type LoanOriginatedPayload struct {
	LoanID                    int32           `json:"loanId"`
	AssociateID               int32           `json:"associateId"`
	ProductID                 int32           `json:"productId"`
	Source                    string          `json:"source"`
	Principal                 decimal.Decimal `json:"principal"`
	FinancedBase              decimal.Decimal `json:"financedBase"`
	InitialOutstandingBalance decimal.Decimal `json:"initialOutstandingBalance"`
	InstallmentCount          int32           `json:"installmentCount"`
	FirstDueDate              string          `json:"firstDueDate"`
	LastDueDate               string          `json:"lastDueDate"`
}

// LoanCancelledPayload is the event payload of a cancelled loan
type LoanCancelledPayload struct {
	LoanID                int32  `json:"loanId"`
	AssociateID           int32  `json:"associateId"`
	DiscardedInstallments int64  `json:"discardedInstallments"`
	CancelledAt           string `json:"cancelledAt"`
}

// OriginateLoan builds the plan for a manual loan and persists it atomically
func (s *LoanService) OriginateLoan(ctx context.Context, tenantID int32, input OriginateLoanInput) (*OriginatedLoan, error) {
	if input.AssociateID <= 0 {
		return nil, domain.ErrLoanAssociateInvalid
	}
	if input.ProductID <= 0 {
		return nil, domain.ErrLoanProductInvalid
	}

	notes, err := normalizeNotes(input.Notes)
	if err != nil {
		return nil, err
	}

	associate, err := s.associateRepo.GetByID(ctx, tenantID, input.AssociateID)
	if err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByID(ctx, tenantID, input.ProductID)
	if err != nil {
		return nil, err
	}

	return s.originate(ctx, originationRequest{
		tenantID:         tenantID,
		associate:        associate,
		product:          product,
		principal:        input.Principal,
		installmentCount: input.InstallmentCount,
		originationDate:  input.OriginationDate,
		notes:            notes,
		source:           domain.LoanSourceManual,
	})
}

type originationRequest struct {
	tenantID         int32
	associate        *domain.Associate
	product          *domain.CreditProduct
	principal        decimal.Decimal
	installmentCount int32
	originationDate  time.Time
	notes            *string
	source           string
}

// originate is the single origination path shared by manual and bulk import
func (s *LoanService) originate(ctx context.Context, req originationRequest) (*OriginatedLoan, error) {
	terms, err := s.termsFor(req.product, req.principal, req.installmentCount, req.originationDate)
	if err != nil {
		return nil, err
	}

	plan, err := amortization.Build(terms)
	if err != nil {
		return nil, err
	}

	loan := &domain.Loan{
		TenantID:                  req.tenantID,
		AssociateID:               req.associate.ID,
		ProductID:                 req.product.ID,
		Principal:                 terms.Principal,
		InstallmentCount:          int32(terms.InstallmentCount),
		MonthlyRatePercent:        terms.MonthlyRatePercent,
		ManagementFeePercent:      terms.ManagementFeePercent,
		DueDay:                    int32(terms.DueDay),
		DueDayRule:                terms.DueDayRule,
		OriginationDate:           terms.OriginationDate,
		FinancedBase:              plan.FinancedBase,
		InitialOutstandingBalance: plan.InitialOutstandingBalance,
		OutstandingBalance:        plan.InitialOutstandingBalance,
		Status:                    domain.LoanStatusActive,
		Source:                    req.source,
		Notes:                     req.notes,
	}

	var result OriginatedLoan
	err = s.transactor.WithinTx(ctx, func(tx interface{}) error {
		created, err := s.loanRepo.CreateTx(ctx, tx, loan)
		if err != nil {
			return err
		}
		rows := domain.InstallmentsFromPlan(created.ID, plan)
		if err := s.installmentRepo.CreateBatchTx(ctx, tx, rows); err != nil {
			return err
		}
		result = OriginatedLoan{Loan: created, Installments: rows, Plan: plan}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.PlanBuilt(ctx, req.source, len(plan.Installments))

	log.Info().
		Int32("tenant_id", req.tenantID).
		Int32("loan_id", result.Loan.ID).
		Int32("associate_id", req.associate.ID).
		Str("product_code", req.product.Code).
		Str("source", req.source).
		Str("financed_base", plan.FinancedBase.StringFixed(2)).
		Int("installments", len(plan.Installments)).
		Msg("Loan originated")

	s.publishEvent(ctx, events.LoanOriginated(req.tenantID, result.Loan.ID, LoanOriginatedPayload{
		LoanID:                    result.Loan.ID,
		AssociateID:               result.Loan.AssociateID,
		ProductID:                 result.Loan.ProductID,
		Source:                    req.source,
		Principal:                 result.Loan.Principal,
		FinancedBase:              plan.FinancedBase,
		InitialOutstandingBalance: plan.InitialOutstandingBalance,
		InstallmentCount:          result.Loan.InstallmentCount,
		FirstDueDate:              plan.FirstDueDate().Format(dateLayout),
		LastDueDate:               plan.LastDueDate().Format(dateLayout),
	}))

	return &result, nil
}

// termsFor assembles engine input, enforcing the product's own limits
func (s *LoanService) termsFor(product *domain.CreditProduct, principal decimal.Decimal, installmentCount int32, originationDate time.Time) (domain.LoanTerms, error) {
	if !product.Active {
		return domain.LoanTerms{}, domain.ErrProductInactive
	}
	if installmentCount > product.MaxInstallments {
		return domain.LoanTerms{}, domain.ErrInstallmentCountExceeded
	}
	if originationDate.IsZero() {
		originationDate = s.now()
	}
	date := time.Date(originationDate.Year(), originationDate.Month(), originationDate.Day(), 0, 0, 0, 0, time.UTC)
	return product.TermsFor(principal, int(installmentCount), date), nil
}

// PreviewLoanInput contains input for estimating a plan without persisting it
type PreviewLoanInput struct {
	ProductID                 int32
	Principal                 decimal.Decimal
	InstallmentCount          int32
	OriginationDate           time.Time // zero means today
	ApplyDistributorRetention bool
}

// PreviewLoanResult is a computed plan. Retention is set only when requested.
type PreviewLoanResult struct {
	Product   *domain.CreditProduct
	Plan      *domain.InstallmentPlan
	Retention *amortization.RetentionSummary
}

// PreviewLoan runs the same calculation as origination and stores nothing
func (s *LoanService) PreviewLoan(ctx context.Context, tenantID int32, input PreviewLoanInput) (*PreviewLoanResult, error) {
	if input.ProductID <= 0 {
		return nil, domain.ErrLoanProductInvalid
	}
	product, err := s.productRepo.GetByID(ctx, tenantID, input.ProductID)
	if err != nil {
		return nil, err
	}

	terms, err := s.termsFor(product, input.Principal, input.InstallmentCount, input.OriginationDate)
	if err != nil {
		return nil, err
	}
	plan, err := amortization.Build(terms)
	if err != nil {
		return nil, err
	}
	s.recorder.PlanBuilt(ctx, PlanSourcePreview, len(plan.Installments))

	result := &PreviewLoanResult{Product: product, Plan: plan}
	if input.ApplyDistributorRetention {
		result.Retention = amortization.ApplyDistributorRetention(plan, product.DistributorFeePercent)
	}
	return result, nil
}

// GetLoan returns a loan by ID
func (s *LoanService) GetLoan(ctx context.Context, tenantID int32, id int32) (*domain.Loan, error) {
	return s.loanRepo.GetByID(ctx, tenantID, id)
}

// ListLoans returns the tenant's loans matching filter
func (s *LoanService) ListLoans(ctx context.Context, tenantID int32, filter domain.LoanFilter) ([]*domain.Loan, error) {
	if filter == "" {
		filter = domain.LoanFilterAll
	}
	return s.loanRepo.GetAllByTenant(ctx, tenantID, filter)
}

// GetInstallments returns a loan's installment rows after checking tenant ownership
func (s *LoanService) GetInstallments(ctx context.Context, tenantID int32, loanID int32) ([]*domain.LoanInstallment, error) {
	if _, err := s.loanRepo.GetByID(ctx, tenantID, loanID); err != nil {
		return nil, err
	}
	return s.installmentRepo.GetByLoanID(ctx, loanID)
}

// CancelLoan discards the loan's plan and marks it cancelled in one transaction
func (s *LoanService) CancelLoan(ctx context.Context, tenantID int32, id int32) (*domain.Loan, error) {
	cancelledAt := s.now().UTC()

	var (
		cancelled *domain.Loan
		discarded int64
	)
	err := s.transactor.WithinTx(ctx, func(tx interface{}) error {
		loan, err := s.loanRepo.CancelTx(ctx, tx, tenantID, id, cancelledAt)
		if err != nil {
			return err
		}
		discarded, err = s.installmentRepo.DeleteByLoanIDTx(ctx, tx, loan.ID)
		if err != nil {
			return err
		}
		cancelled = loan
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrLoanNotFound) && !errors.Is(err, domain.ErrLoanAlreadyCancelled) {
			log.Error().Err(err).Int32("tenant_id", tenantID).Int32("loan_id", id).Msg("Failed to cancel loan")
		}
		return nil, err
	}

	log.Info().
		Int32("tenant_id", tenantID).
		Int32("loan_id", id).
		Int64("discarded_installments", discarded).
		Msg("Loan cancelled")

	s.publishEvent(ctx, events.LoanCancelled(tenantID, cancelled.ID, LoanCancelledPayload{
		LoanID:                cancelled.ID,
		AssociateID:           cancelled.AssociateID,
		DiscardedInstallments: discarded,
		CancelledAt:           cancelledAt.Format(time.RFC3339),
	}))

	return cancelled, nil
}

const dateLayout = "2006-01-02"

func normalizeNotes(notes *string) (*string, error) {
	if notes == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > domain.MaxNotesLength {
		return nil, domain.ErrLoanNotesTooLong
	}
	return &trimmed, nil
}
