package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/mutualia/mutualia-backend/internal/service"
	"github.com/mutualia/mutualia-backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loanHandlerFixture struct {
	handler      *LoanHandler
	loans        *testutil.MockLoanRepository
	installments *testutil.MockLoanInstallmentRepository
	products     *testutil.MockCreditProductRepository
	associates   *testutil.MockAssociateRepository
	archive      *testutil.MockImportArchive
	product      *domain.CreditProduct
	associate    *domain.Associate
}

func newLoanHandlerFixture() *loanHandlerFixture {
	f := &loanHandlerFixture{
		loans:        testutil.NewMockLoanRepository(),
		installments: testutil.NewMockLoanInstallmentRepository(),
		products:     testutil.NewMockCreditProductRepository(),
		associates:   testutil.NewMockAssociateRepository(),
		archive:      testutil.NewMockImportArchive(),
	}
	loanService := service.NewLoanService(testutil.NewMockTransactor(), f.loans, f.installments, f.products, f.associates)
	importService := service.NewImportService(loanService, f.associates, f.products, 100)
	importService.SetArchive(f.archive)
	f.handler = NewLoanHandler(loanService, importService)

	f.product = f.products.AddProduct(&domain.CreditProduct{
		TenantID:              testTenantID,
		Code:                  "PERS-06",
		Name:                  "Personal",
		MonthlyRatePercent:    decimal.RequireFromString("9.58"),
		ManagementFeePercent:  decimal.RequireFromString("7.816712"),
		DistributorFeePercent: decimal.NewFromInt(10),
		DueDay:                10,
		DueDayRule:            domain.DueDayRuleClampToMonthEnd,
		MaxInstallments:       24,
		Active:                true,
	})
	f.associate = f.associates.AddAssociate(&domain.Associate{
		TenantID:       testTenantID,
		DocumentNumber: "30111222",
		FullName:       "Ana Gómez",
	})
	return f
}

func (f *loanHandlerFixture) context(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	setupAuthContext(c, "auth0|ops", testTenantID)
	return c, rec
}

func (f *loanHandlerFixture) originate(t *testing.T) int32 {
	t.Helper()
	c, rec := f.context(postJSON("/api/v1/loans", `{
		"associateId": 1,
		"productId": 1,
		"principal": "100000",
		"installmentCount": 6,
		"originationDate": "2024-01-20"
	}`))
	require.NoError(t, f.handler.CreateLoan(c))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var response OriginatedLoanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response.ID
}

func withID(c echo.Context, id string) {
	c.SetParamNames("id")
	c.SetParamValues(id)
}

func TestCreateLoan_Success(t *testing.T) {
	f := newLoanHandlerFixture()

	c, rec := f.context(postJSON("/api/v1/loans", `{
		"associateId": 1,
		"productId": 1,
		"principal": "100000",
		"installmentCount": 6,
		"originationDate": "2024-01-20",
		"notes": "  first disbursement  "
	}`))

	require.NoError(t, f.handler.CreateLoan(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var response OriginatedLoanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, "100000.00", response.Principal)
	assert.Equal(t, "107816.71", response.FinancedBase)
	assert.Equal(t, "6541.56", response.StubInterest)
	assert.Equal(t, "24451.60", response.LevelPayment)
	assert.Equal(t, "153251.16", response.InitialOutstandingBalance)
	assert.Equal(t, response.InitialOutstandingBalance, response.OutstandingBalance)
	assert.Equal(t, "2024-01-20", response.OriginationDate)
	assert.Equal(t, domain.LoanSourceManual, response.Source)
	require.NotNil(t, response.Notes)
	assert.Equal(t, "first disbursement", *response.Notes)

	require.Len(t, response.Installments, 6)
	first := response.Installments[0]
	assert.Equal(t, "1/6", first.Label)
	assert.Equal(t, "2024-03-10", first.DueDate)
	assert.Equal(t, "30993.16", first.GrossAmount)
	assert.Equal(t, domain.InstallmentStatusPending, first.Status)
	assert.Equal(t, "2024-08-10", response.Installments[5].DueDate)
}

func TestCreateLoan_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad principal", `{"associateId":1,"productId":1,"principal":"lots","installmentCount":6}`, "principal"},
		{"bad date", `{"associateId":1,"productId":1,"principal":"100","installmentCount":6,"originationDate":"20/01/2024"}`, "originationDate"},
		{"missing associate", `{"productId":1,"principal":"100","installmentCount":6}`, "associateId"},
		{"unknown associate", `{"associateId":9,"productId":1,"principal":"100","installmentCount":6}`, "associateId"},
		{"unknown product", `{"associateId":1,"productId":9,"principal":"100","installmentCount":6}`, "productId"},
		{"too many installments", `{"associateId":1,"productId":1,"principal":"100","installmentCount":25}`, "installmentCount"},
		{"zero principal", `{"associateId":1,"productId":1,"principal":"0","installmentCount":6,"originationDate":"2024-01-10"}`, "principal"},
		{"zero installments", `{"associateId":1,"productId":1,"principal":"100","installmentCount":0,"originationDate":"2024-01-10"}`, "installmentCount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLoanHandlerFixture()
			c, rec := f.context(postJSON("/api/v1/loans", tt.body))

			require.NoError(t, f.handler.CreateLoan(c))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			problem := decodeProblem(t, rec)
			require.Len(t, problem.Errors, 1)
			assert.Equal(t, tt.field, problem.Errors[0].Field)
			assert.Empty(t, f.loans.Loans, "nothing is stored on a rejected request")
		})
	}
}

func TestCreateLoan_InactiveProduct(t *testing.T) {
	f := newLoanHandlerFixture()
	f.product.Active = false

	c, rec := f.context(postJSON("/api/v1/loans", `{"associateId":1,"productId":1,"principal":"100","installmentCount":6,"originationDate":"2024-01-10"}`))
	require.NoError(t, f.handler.CreateLoan(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	problem := decodeProblem(t, rec)
	assert.Equal(t, ErrorTypeValidation, problem.Type)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "productId", problem.Errors[0].Field)
	assert.Equal(t, "Credit product is inactive", problem.Errors[0].Message)
}

// decodeProblem fails unless the body holds exactly one problem document
func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem), rec.Body.String())
	assert.Equal(t, rec.Code, problem.Status)
	assert.NotEqual(t, ErrorTypeInternal, problem.Type)
	return problem
}

// addStrictProduct stores a Strict day-31 product, bypassing the setup check that rejects it
func (f *loanHandlerFixture) addStrictProduct() *domain.CreditProduct {
	return f.products.AddProduct(&domain.CreditProduct{
		TenantID:           testTenantID,
		Code:               "LEGACY",
		Name:               "Legacy strict",
		MonthlyRatePercent: decimal.NewFromInt(3),
		DueDay:             31,
		DueDayRule:         domain.DueDayRuleStrict,
		MaxInstallments:    12,
		Active:             true,
	})
}

func TestCreateLoan_StrictCalendarOverflow(t *testing.T) {
	f := newLoanHandlerFixture()
	f.addStrictProduct()

	c, rec := f.context(postJSON("/api/v1/loans", `{"associateId":1,"productId":2,"principal":"1000","installmentCount":6,"originationDate":"2024-01-05"}`))
	require.NoError(t, f.handler.CreateLoan(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	problem := decodeProblem(t, rec)
	assert.Equal(t, ErrorTypeUnprocessable, problem.Type)
	assert.Empty(t, f.loans.Loans)
}

func TestPreviewLoan_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		errorType string
		field     string
	}{
		{"unknown product", `{"productId":9,"principal":"100","installmentCount":6,"originationDate":"2024-01-10"}`, http.StatusBadRequest, ErrorTypeValidation, "productId"},
		{"too many installments", `{"productId":1,"principal":"100","installmentCount":25,"originationDate":"2024-01-10"}`, http.StatusBadRequest, ErrorTypeValidation, "installmentCount"},
		{"zero principal", `{"productId":1,"principal":"0","installmentCount":6,"originationDate":"2024-01-10"}`, http.StatusBadRequest, ErrorTypeValidation, "principal"},
		{"strict overflow", `{"productId":2,"principal":"1000","installmentCount":6,"originationDate":"2024-01-05"}`, http.StatusUnprocessableEntity, ErrorTypeUnprocessable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLoanHandlerFixture()
			f.addStrictProduct()
			c, rec := f.context(postJSON("/api/v1/loans/preview", tt.body))

			require.NoError(t, f.handler.PreviewLoan(c))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.errorType, problem.Type)
			if tt.field != "" {
				require.Len(t, problem.Errors, 1)
				assert.Equal(t, tt.field, problem.Errors[0].Field)
			}
		})
	}
}

func TestPreviewLoan_WithRetention(t *testing.T) {
	f := newLoanHandlerFixture()

	c, rec := f.context(postJSON("/api/v1/loans/preview", `{
		"productId": 1,
		"principal": "100000",
		"installmentCount": 6,
		"originationDate": "2024-01-10",
		"applyDistributorRetention": true
	}`))
	require.NoError(t, f.handler.PreviewLoan(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var response PreviewLoanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, "146709.60", response.InitialOutstandingBalance)
	assert.Equal(t, "2024-02-10", response.FirstDueDate)
	assert.Equal(t, "2024-07-10", response.LastDueDate)
	require.Len(t, response.Installments, 6)
	for _, inst := range response.Installments {
		require.NotNil(t, inst.RetentionAmount)
		require.NotNil(t, inst.NetAmount)
		assert.Equal(t, "2445.16", *inst.RetentionAmount)
		assert.Equal(t, "22006.44", *inst.NetAmount)
		assert.Equal(t, "24451.60", inst.GrossAmount)
	}
	require.NotNil(t, response.Retention)
	assert.Equal(t, "14670.96", response.Retention.TotalRetention)
	assert.Equal(t, "10", response.Retention.DistributorFeePercent)

	assert.Empty(t, f.loans.Loans, "preview must not persist")
	assert.Empty(t, f.installments.Installments)
}

func TestPreviewLoan_WithoutRetention(t *testing.T) {
	f := newLoanHandlerFixture()

	c, rec := f.context(postJSON("/api/v1/loans/preview", `{"productId":1,"principal":"100000","installmentCount":6,"originationDate":"2024-01-10"}`))
	require.NoError(t, f.handler.PreviewLoan(c))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.NotContains(t, rec.Body.String(), "retentionAmount")
	assert.NotContains(t, rec.Body.String(), `"retention"`)
}

func createCSVForm(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestImportLoans_ReportsEachRow(t *testing.T) {
	f := newLoanHandlerFixture()
	csv := "document_number,product_code,principal,installments,origination_date\n" +
		"30111222,PERS-06,100000,6,2024-01-20\n" +
		"99999999,PERS-06,5000,3,2024-01-20\n" +
		"30.111.222,pers-06,2500.50,12,2024-02-01\n"
	body, contentType := createCSVForm(t, "january.csv", csv)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/import", body)
	req.Header.Set("Content-Type", contentType)
	c, rec := f.context(req)

	require.NoError(t, f.handler.ImportLoans(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response ImportLoansResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 3, response.TotalRows)
	assert.Equal(t, 2, response.Created)
	assert.Equal(t, 1, response.Failed)
	assert.Equal(t, "imports/1/january.csv", response.ArchiveKey)

	require.Len(t, response.Rows, 3)
	assert.Equal(t, domain.ImportOutcomeCreated, response.Rows[0].Outcome)
	assert.NotZero(t, response.Rows[0].LoanID)
	assert.Equal(t, domain.ImportOutcomeFailed, response.Rows[1].Outcome)
	assert.Contains(t, response.Rows[1].Error, "99999999")
	assert.Equal(t, domain.ImportOutcomeCreated, response.Rows[2].Outcome)

	assert.Len(t, f.loans.Loans, 2)
}

func TestImportLoans_BadHeader(t *testing.T) {
	f := newLoanHandlerFixture()
	body, contentType := createCSVForm(t, "bad.csv", "doc,product,amount,n,date\n1,2,3,4,5\n")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/import", body)
	req.Header.Set("Content-Type", contentType)
	c, rec := f.context(req)

	require.NoError(t, f.handler.ImportLoans(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.archive.Files, "rejected files are not archived")
}

func TestImportLoans_NoFile(t *testing.T) {
	f := newLoanHandlerFixture()
	c, rec := f.context(postJSON("/api/v1/loans/import", `{}`))

	require.NoError(t, f.handler.ImportLoans(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLoans_StatusFilter(t *testing.T) {
	f := newLoanHandlerFixture()
	f.originate(t)
	cancelledID := f.originate(t)

	c, _ := f.context(httptest.NewRequest(http.MethodPost, "/", nil))
	withID(c, strconv.Itoa(int(cancelledID)))
	require.NoError(t, f.handler.CancelLoan(c))

	tests := []struct {
		query      string
		wantStatus int
		wantCount  int
	}{
		{"", http.StatusOK, 2},
		{"?status=all", http.StatusOK, 2},
		{"?status=active", http.StatusOK, 1},
		{"?status=cancelled", http.StatusOK, 1},
		{"?status=completed", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run("status"+tt.query, func(t *testing.T) {
			c, rec := f.context(httptest.NewRequest(http.MethodGet, "/api/v1/loans"+tt.query, nil))
			require.NoError(t, f.handler.GetLoans(c))
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var response []LoanResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Len(t, response, tt.wantCount)
		})
	}
}

func TestGetLoan_NotFound(t *testing.T) {
	f := newLoanHandlerFixture()
	c, rec := f.context(httptest.NewRequest(http.MethodGet, "/api/v1/loans/42", nil))
	withID(c, "42")

	require.NoError(t, f.handler.GetLoan(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetInstallments(t *testing.T) {
	f := newLoanHandlerFixture()
	id := f.originate(t)

	c, rec := f.context(httptest.NewRequest(http.MethodGet, "/", nil))
	withID(c, strconv.Itoa(int(id)))
	require.NoError(t, f.handler.GetInstallments(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var response []InstallmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 6)
	for i, inst := range response {
		assert.Equal(t, int32(i+1), inst.SequenceNumber)
	}
	assert.Equal(t, "6/6", response[5].Label)
}

func TestCancelLoan_Twice(t *testing.T) {
	f := newLoanHandlerFixture()
	id := f.originate(t)

	c, rec := f.context(httptest.NewRequest(http.MethodPost, "/", nil))
	withID(c, strconv.Itoa(int(id)))
	require.NoError(t, f.handler.CancelLoan(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var response LoanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, domain.LoanStatusCancelled, response.Status)
	assert.Equal(t, "0.00", response.OutstandingBalance)
	assert.NotNil(t, response.CancelledAt)
	assert.Empty(t, f.installments.Installments[id])

	c, rec = f.context(httptest.NewRequest(http.MethodPost, "/", nil))
	withID(c, strconv.Itoa(int(id)))
	require.NoError(t, f.handler.CancelLoan(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
