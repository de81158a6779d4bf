package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/mutualia/mutualia-backend/internal/events"
	"github.com/shopspring/decimal"
)

// MockTx is the transaction handle passed through MockTransactor.
// Repository writes made with it become visible only on commit.
type MockTx struct {
	pending []func()
}

func (tx *MockTx) stageWrite(apply func()) {
	tx.pending = append(tx.pending, apply)
}

// stage applies a write immediately when no MockTx is in play, otherwise on commit
func stage(tx interface{}, apply func()) error {
	switch t := tx.(type) {
	case *MockTx:
		t.stageWrite(apply)
		return nil
	case nil:
		apply()
		return nil
	default:
		return fmt.Errorf("unexpected transaction type %T", tx)
	}
}

// MockTransactor is a mock implementation of domain.Transactor
type MockTransactor struct {
	mu         sync.Mutex
	Commits    int
	Rollbacks  int
	WithinTxFn func(ctx context.Context, fn func(tx interface{}) error) error
}

// NewMockTransactor creates a new MockTransactor
func NewMockTransactor() *MockTransactor {
	return &MockTransactor{}
}

// WithinTx runs fn and applies its staged writes only when fn succeeds
func (m *MockTransactor) WithinTx(ctx context.Context, fn func(tx interface{}) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	tx := &MockTx{}
	if err := fn(tx); err != nil {
		m.mu.Lock()
		m.Rollbacks++
		m.mu.Unlock()
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, apply := range tx.pending {
		apply()
	}
	m.Commits++
	return nil
}

// MockTenantRepository is a mock implementation of domain.TenantRepository
type MockTenantRepository struct {
	Tenants  map[int32]*domain.Tenant
	ByAuth0  map[string]int32
	LookupFn func(ctx context.Context, auth0ID string) (int32, error)
}

// NewMockTenantRepository creates a new MockTenantRepository
func NewMockTenantRepository() *MockTenantRepository {
	return &MockTenantRepository{
		Tenants: make(map[int32]*domain.Tenant),
		ByAuth0: make(map[string]int32),
	}
}

// AddTenant registers a tenant and an operator belonging to it
func (m *MockTenantRepository) AddTenant(tenant *domain.Tenant, auth0ID string) {
	m.Tenants[tenant.ID] = tenant
	if auth0ID != "" {
		m.ByAuth0[auth0ID] = tenant.ID
	}
}

// GetByID retrieves a tenant by ID
func (m *MockTenantRepository) GetByID(ctx context.Context, id int32) (*domain.Tenant, error) {
	tenant, ok := m.Tenants[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

// GetTenantIDByAuth0ID resolves an operator's tenant
func (m *MockTenantRepository) GetTenantIDByAuth0ID(ctx context.Context, auth0ID string) (int32, error) {
	if m.LookupFn != nil {
		return m.LookupFn(ctx, auth0ID)
	}
	id, ok := m.ByAuth0[auth0ID]
	if !ok {
		return 0, domain.ErrTenantNotFound
	}
	return id, nil
}

// MockCreditProductRepository is a mock implementation of domain.CreditProductRepository
type MockCreditProductRepository struct {
	mu        sync.Mutex
	Products  map[int32]*domain.CreditProduct
	NextID    int32
	CreateFn  func(ctx context.Context, product *domain.CreditProduct) (*domain.CreditProduct, error)
	GetByIDFn func(ctx context.Context, tenantID int32, id int32) (*domain.CreditProduct, error)
	GetAllFn  func(ctx context.Context, tenantID int32) ([]*domain.CreditProduct, error)
}

// NewMockCreditProductRepository creates a new MockCreditProductRepository
func NewMockCreditProductRepository() *MockCreditProductRepository {
	return &MockCreditProductRepository{
		Products: make(map[int32]*domain.CreditProduct),
		NextID:   1,
	}
}

// AddProduct stores a product directly, assigning an ID when missing
func (m *MockCreditProductRepository) AddProduct(product *domain.CreditProduct) *domain.CreditProduct {
	m.mu.Lock()
	defer m.mu.Unlock()
	if product.ID == 0 {
		product.ID = m.NextID
		m.NextID++
	} else if product.ID >= m.NextID {
		m.NextID = product.ID + 1
	}
	m.Products[product.ID] = product
	return product
}

// Create creates a new credit product
func (m *MockCreditProductRepository) Create(ctx context.Context, product *domain.CreditProduct) (*domain.CreditProduct, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, product)
	}
	m.mu.Lock()
	for _, p := range m.Products {
		if p.TenantID == product.TenantID && p.Code == product.Code {
			m.mu.Unlock()
			return nil, domain.ErrProductCodeExists
		}
	}
	m.mu.Unlock()
	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now
	return m.AddProduct(product), nil
}

// GetByID retrieves a credit product by ID
func (m *MockCreditProductRepository) GetByID(ctx context.Context, tenantID int32, id int32) (*domain.CreditProduct, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, tenantID, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.Products[id]
	if !ok || product.TenantID != tenantID {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

// GetByCode retrieves a credit product by code
func (m *MockCreditProductRepository) GetByCode(ctx context.Context, tenantID int32, code string) (*domain.CreditProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Products {
		if p.TenantID == tenantID && p.Code == code {
			return p, nil
		}
	}
	return nil, domain.ErrProductNotFound
}

// GetAllByTenant retrieves all credit products of a tenant ordered by code
func (m *MockCreditProductRepository) GetAllByTenant(ctx context.Context, tenantID int32) ([]*domain.CreditProduct, error) {
	if m.GetAllFn != nil {
		return m.GetAllFn(ctx, tenantID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []*domain.CreditProduct{}
	for _, p := range m.Products {
		if p.TenantID == tenantID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

// SetActive toggles a product's active flag
func (m *MockCreditProductRepository) SetActive(ctx context.Context, tenantID int32, id int32, active bool) (*domain.CreditProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.Products[id]
	if !ok || product.TenantID != tenantID {
		return nil, domain.ErrProductNotFound
	}
	product.Active = active
	product.UpdatedAt = time.Now()
	return product, nil
}

// MockAssociateRepository is a mock implementation of domain.AssociateRepository
type MockAssociateRepository struct {
	mu         sync.Mutex
	Associates map[int32]*domain.Associate
	NextID     int32
	CreateFn   func(ctx context.Context, associate *domain.Associate) (*domain.Associate, error)
	GetAllFn   func(ctx context.Context, tenantID int32) ([]*domain.Associate, error)
}

// NewMockAssociateRepository creates a new MockAssociateRepository
func NewMockAssociateRepository() *MockAssociateRepository {
	return &MockAssociateRepository{
		Associates: make(map[int32]*domain.Associate),
		NextID:     1,
	}
}

// AddAssociate stores an associate directly, assigning an ID when missing
func (m *MockAssociateRepository) AddAssociate(associate *domain.Associate) *domain.Associate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if associate.ID == 0 {
		associate.ID = m.NextID
		m.NextID++
	} else if associate.ID >= m.NextID {
		m.NextID = associate.ID + 1
	}
	m.Associates[associate.ID] = associate
	return associate
}

// Create creates a new associate
func (m *MockAssociateRepository) Create(ctx context.Context, associate *domain.Associate) (*domain.Associate, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, associate)
	}
	if _, err := m.GetByDocument(ctx, associate.TenantID, associate.DocumentNumber); err == nil {
		return nil, domain.ErrAssociateDocumentExists
	}
	now := time.Now()
	associate.CreatedAt = now
	associate.UpdatedAt = now
	return m.AddAssociate(associate), nil
}

// GetByID retrieves an associate by ID
func (m *MockAssociateRepository) GetByID(ctx context.Context, tenantID int32, id int32) (*domain.Associate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	associate, ok := m.Associates[id]
	if !ok || associate.TenantID != tenantID {
		return nil, domain.ErrAssociateNotFound
	}
	return associate, nil
}

// GetByDocument retrieves an associate by document number
func (m *MockAssociateRepository) GetByDocument(ctx context.Context, tenantID int32, documentNumber string) (*domain.Associate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Associates {
		if a.TenantID == tenantID && a.DocumentNumber == documentNumber {
			return a, nil
		}
	}
	return nil, domain.ErrAssociateNotFound
}

// GetAllByTenant retrieves all associates of a tenant ordered by name
func (m *MockAssociateRepository) GetAllByTenant(ctx context.Context, tenantID int32) ([]*domain.Associate, error) {
	if m.GetAllFn != nil {
		return m.GetAllFn(ctx, tenantID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []*domain.Associate{}
	for _, a := range m.Associates {
		if a.TenantID == tenantID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].FullName == result[j].FullName {
			return result[i].ID < result[j].ID
		}
		return result[i].FullName < result[j].FullName
	})
	return result, nil
}

// MockLoanRepository is a mock implementation of domain.LoanRepository
type MockLoanRepository struct {
	mu         sync.Mutex
	Loans      map[int32]*domain.Loan
	NextID     int32
	CreateTxFn func(ctx context.Context, tx interface{}, loan *domain.Loan) (*domain.Loan, error)
	GetByIDFn  func(ctx context.Context, tenantID int32, id int32) (*domain.Loan, error)
	CancelTxFn func(ctx context.Context, tx interface{}, tenantID int32, id int32, cancelledAt time.Time) (*domain.Loan, error)
}

// NewMockLoanRepository creates a new MockLoanRepository
func NewMockLoanRepository() *MockLoanRepository {
	return &MockLoanRepository{
		Loans:  make(map[int32]*domain.Loan),
		NextID: 1,
	}
}

// AddLoan stores a loan directly
func (m *MockLoanRepository) AddLoan(loan *domain.Loan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loan.ID == 0 {
		loan.ID = m.NextID
	}
	if loan.ID >= m.NextID {
		m.NextID = loan.ID + 1
	}
	m.Loans[loan.ID] = loan
}

// CreateTx creates a loan; it becomes visible when the transaction commits
func (m *MockLoanRepository) CreateTx(ctx context.Context, tx interface{}, loan *domain.Loan) (*domain.Loan, error) {
	if m.CreateTxFn != nil {
		return m.CreateTxFn(ctx, tx, loan)
	}
	m.mu.Lock()
	loan.ID = m.NextID
	m.NextID++
	m.mu.Unlock()

	now := time.Now()
	loan.CreatedAt = now
	loan.UpdatedAt = now
	created := *loan
	err := stage(tx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.Loans[created.ID] = &created
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetByID retrieves a loan by ID
func (m *MockLoanRepository) GetByID(ctx context.Context, tenantID int32, id int32) (*domain.Loan, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, tenantID, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.Loans[id]
	if !ok || loan.TenantID != tenantID {
		return nil, domain.ErrLoanNotFound
	}
	copied := *loan
	return &copied, nil
}

// GetAllByTenant retrieves loans of a tenant, newest origination first
func (m *MockLoanRepository) GetAllByTenant(ctx context.Context, tenantID int32, filter domain.LoanFilter) ([]*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []*domain.Loan{}
	for _, l := range m.Loans {
		if l.TenantID != tenantID {
			continue
		}
		if filter == domain.LoanFilterActive && l.Status != domain.LoanStatusActive {
			continue
		}
		if filter == domain.LoanFilterCancelled && l.Status != domain.LoanStatusCancelled {
			continue
		}
		copied := *l
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].OriginationDate.Equal(result[j].OriginationDate) {
			return result[i].ID > result[j].ID
		}
		return result[i].OriginationDate.After(result[j].OriginationDate)
	})
	return result, nil
}

// CancelTx marks a loan cancelled; the change is applied on commit
func (m *MockLoanRepository) CancelTx(ctx context.Context, tx interface{}, tenantID int32, id int32, cancelledAt time.Time) (*domain.Loan, error) {
	if m.CancelTxFn != nil {
		return m.CancelTxFn(ctx, tx, tenantID, id, cancelledAt)
	}
	current, err := m.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.IsCancelled() {
		return nil, domain.ErrLoanAlreadyCancelled
	}

	current.Status = domain.LoanStatusCancelled
	current.OutstandingBalance = decimal.Zero
	current.CancelledAt = &cancelledAt
	current.UpdatedAt = cancelledAt
	updated := *current
	err = stage(tx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.Loans[updated.ID] = &updated
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// MockLoanInstallmentRepository is a mock implementation of domain.LoanInstallmentRepository
type MockLoanInstallmentRepository struct {
	mu              sync.Mutex
	Installments    map[int32][]*domain.LoanInstallment
	NextID          int32
	CreateBatchTxFn func(ctx context.Context, tx interface{}, installments []*domain.LoanInstallment) error
}

// NewMockLoanInstallmentRepository creates a new MockLoanInstallmentRepository
func NewMockLoanInstallmentRepository() *MockLoanInstallmentRepository {
	return &MockLoanInstallmentRepository{
		Installments: make(map[int32][]*domain.LoanInstallment),
		NextID:       1,
	}
}

// CreateBatchTx stores installment rows on commit
func (m *MockLoanInstallmentRepository) CreateBatchTx(ctx context.Context, tx interface{}, installments []*domain.LoanInstallment) error {
	if m.CreateBatchTxFn != nil {
		return m.CreateBatchTxFn(ctx, tx, installments)
	}
	rows := make([]*domain.LoanInstallment, len(installments))
	m.mu.Lock()
	for i, inst := range installments {
		copied := *inst
		copied.ID = m.NextID
		copied.CreatedAt = time.Now()
		m.NextID++
		rows[i] = &copied
	}
	m.mu.Unlock()

	return stage(tx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, row := range rows {
			m.Installments[row.LoanID] = append(m.Installments[row.LoanID], row)
		}
	})
}

// GetByLoanID retrieves the installments of a loan
func (m *MockLoanInstallmentRepository) GetByLoanID(ctx context.Context, loanID int32) ([]*domain.LoanInstallment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.Installments[loanID]
	result := make([]*domain.LoanInstallment, len(rows))
	copy(result, rows)
	sort.Slice(result, func(i, j int) bool { return result[i].SequenceNumber < result[j].SequenceNumber })
	return result, nil
}

// DeleteByLoanIDTx removes the installments of a loan on commit
func (m *MockLoanInstallmentRepository) DeleteByLoanIDTx(ctx context.Context, tx interface{}, loanID int32) (int64, error) {
	m.mu.Lock()
	count := int64(len(m.Installments[loanID]))
	m.mu.Unlock()

	err := stage(tx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.Installments, loanID)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []events.Event
	Err    error
}

// NewMockEventPublisher creates a new MockEventPublisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

// Publish records the event, or fails with Err when set
func (m *MockEventPublisher) Publish(ctx context.Context, event events.Event) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

// Published returns a snapshot of the recorded events
func (m *MockEventPublisher) Published() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.Events...)
}

// MockImportArchive records archived import files
type MockImportArchive struct {
	Files map[string][]byte
	Err   error
}

// NewMockImportArchive creates a new MockImportArchive
func NewMockImportArchive() *MockImportArchive {
	return &MockImportArchive{Files: make(map[string][]byte)}
}

// Archive stores data under a deterministic key, or fails with Err when set
func (m *MockImportArchive) Archive(ctx context.Context, tenantID int32, filename string, data []byte) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	key := fmt.Sprintf("imports/%d/%s", tenantID, filename)
	m.Files[key] = append([]byte(nil), data...)
	return key, nil
}
