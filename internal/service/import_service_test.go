package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/mutualia/mutualia-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const importHeader = "document_number,product_code,principal,installments,origination_date\n"

func newImportFixture(t *testing.T, maxRows int) (*ImportService, *loanFixture) {
	t.Helper()
	f := newLoanFixture(t)
	svc := NewImportService(f.service, f.associates, f.products, maxRows)
	svc.SetEventPublisher(f.publisher)
	return svc, f
}

func TestImportLoans_AllRowsCreated(t *testing.T) {
	svc, f := newImportFixture(t, 100)
	archive := testutil.NewMockImportArchive()
	svc.SetArchive(archive)

	data := importHeader +
		"30111222,PERS-06,100000,6,2024-01-10\n" +
		"30.111.222,pers-06,5000.50,3,2024-01-20\n"

	result, err := svc.ImportLoans(context.Background(), testTenantID, "enero.csv", []byte(data))
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, "imports/1/enero.csv", result.ArchiveKey)
	assert.Equal(t, []byte(data), archive.Files["imports/1/enero.csv"])

	require.Len(t, result.Rows, 2)
	for i, row := range result.Rows {
		assert.Equal(t, i+1, row.Row)
		assert.Equal(t, domain.ImportOutcomeCreated, row.Outcome)
		assert.NotZero(t, row.LoanID)
	}

	loan, err := f.service.GetLoan(context.Background(), testTenantID, result.Rows[0].LoanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanSourceImport, loan.Source)
	assert.Equal(t, "146709.60", loan.InitialOutstandingBalance.StringFixed(2))

	// One transaction per row
	assert.Equal(t, 2, f.transactor.Commits)
}

func TestImportLoans_RowFailuresDoNotAbortOthers(t *testing.T) {
	svc, f := newImportFixture(t, 100)

	data := importHeader +
		"30111222,PERS-06,100000,6,2024-01-10\n" + // ok
		"99999999,PERS-06,1000,6,2024-01-10\n" + // unknown associate
		"30111222,NOPE,1000,6,2024-01-10\n" + // unknown product
		"30111222,PERS-06,abc,6,2024-01-10\n" + // bad principal
		"30111222,PERS-06,1000,six,2024-01-10\n" + // bad count
		"30111222,PERS-06,1000,6,10/01/2024\n" + // bad date
		"30111222,PERS-06,1000,48,2024-01-10\n" + // over product max
		"30111222,PERS-06,1000.555,6,2024-01-10\n" + // too many decimals
		"30111222,PERS-06,1000\n" + // missing columns
		"30111222,PERS-06,2500,12,2024-02-29\n" // ok

	result, err := svc.ImportLoans(context.Background(), testTenantID, "mixed.csv", []byte(data))
	require.NoError(t, err)

	assert.Equal(t, 10, result.TotalRows)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 8, result.Failed)

	assert.Equal(t, domain.ImportOutcomeCreated, result.Rows[0].Outcome)
	assert.Contains(t, result.Rows[1].Error, "associate not found")
	assert.Contains(t, result.Rows[2].Error, "credit product not found")
	assert.Contains(t, result.Rows[3].Error, "principal")
	assert.Contains(t, result.Rows[4].Error, "installments")
	assert.Contains(t, result.Rows[5].Error, "origination_date")
	assert.Contains(t, result.Rows[6].Error, domain.ErrInstallmentCountExceeded.Error())
	assert.Contains(t, result.Rows[7].Error, "decimals")
	assert.Contains(t, result.Rows[8].Error, "columns")
	assert.Equal(t, domain.ImportOutcomeCreated, result.Rows[9].Outcome)
	assert.Equal(t, 10, result.Rows[9].Row)

	assert.Equal(t, 2, f.transactor.Commits)
}

func TestImportLoans_PublishesSummary(t *testing.T) {
	svc, f := newImportFixture(t, 100)

	data := importHeader + "30111222,PERS-06,100000,6,2024-01-10\n"
	_, err := svc.ImportLoans(context.Background(), testTenantID, "one.csv", []byte(data))
	require.NoError(t, err)

	published := f.publisher.Published()
	require.Len(t, published, 2)
	assert.Equal(t, "loan.originated", published[0].Type)
	assert.Equal(t, "loan_import.imported", published[1].Type)
	summary := published[1].Payload.(ImportSummaryPayload)
	assert.Equal(t, 1, summary.Created)
}

func TestImportLoans_ArchiveFailureIsNotFatal(t *testing.T) {
	svc, _ := newImportFixture(t, 100)
	archive := testutil.NewMockImportArchive()
	archive.Err = errors.New("s3 unavailable")
	svc.SetArchive(archive)

	data := importHeader + "30111222,PERS-06,100000,6,2024-01-10\n"
	result, err := svc.ImportLoans(context.Background(), testTenantID, "one.csv", []byte(data))
	require.NoError(t, err)
	assert.Empty(t, result.ArchiveKey)
	assert.Equal(t, 1, result.Created)
}

func TestImportLoans_StopsWhenContextCancelled(t *testing.T) {
	svc, f := newImportFixture(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client goes away once the first loan is stored
	stored := testutil.NewMockLoanRepository()
	f.loans.CreateTxFn = func(ctx context.Context, tx interface{}, loan *domain.Loan) (*domain.Loan, error) {
		defer cancel()
		return stored.CreateTx(ctx, tx, loan)
	}

	data := importHeader +
		"30111222,PERS-06,1000,6,2024-01-10\n" +
		"30111222,PERS-06,2000,6,2024-01-10\n" +
		"30111222,PERS-06,3000,6,2024-01-10\n"

	result, err := svc.ImportLoans(ctx, testTenantID, "three.csv", []byte(data))
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "after 1 of 3 rows")
	assert.Len(t, stored.Loans, 1)
}

func TestImportLoans_CancelledBeforeStart(t *testing.T) {
	svc, f := newImportFixture(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := importHeader + "30111222,PERS-06,1000,6,2024-01-10\n"
	_, err := svc.ImportLoans(ctx, testTenantID, "one.csv", []byte(data))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, f.loans.Loans)
}

func TestImportLoans_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"empty file", "", domain.ErrImportEmpty},
		{"header only", importHeader, domain.ErrImportEmpty},
		{"wrong header", "doc,product,amount,count,date\n1,A,1,1,2024-01-01\n", domain.ErrImportHeaderInvalid},
		{"short header", "document_number,product_code\n", domain.ErrImportHeaderInvalid},
		{"broken quoting", importHeader + "\"30111222,PERS-06,1,1,2024-01-01\n", domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := newImportFixture(t, 100)
			_, err := svc.ImportLoans(context.Background(), testTenantID, "bad.csv", []byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, f.transactor.Commits)
		})
	}
}

func TestImportLoans_RowCap(t *testing.T) {
	svc, f := newImportFixture(t, 3)

	var b strings.Builder
	b.WriteString(importHeader)
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&b, "30111222,PERS-06,1000,6,2024-01-%02d\n", i+1)
	}

	_, err := svc.ImportLoans(context.Background(), testTenantID, "big.csv", []byte(b.String()))
	assert.ErrorIs(t, err, domain.ErrImportTooManyRows)
	assert.Equal(t, 0, f.transactor.Commits, "an oversized file must not create any loan")
}

func TestImportLoans_HeaderCaseAndBOM(t *testing.T) {
	svc, _ := newImportFixture(t, 100)

	data := "\xef\xbb\xbfDocument_Number, Product_Code,Principal,Installments,Origination_Date\n" +
		"30111222,PERS-06,100000,6,2024-01-10\n"
	result, err := svc.ImportLoans(context.Background(), testTenantID, "excel.csv", []byte(data))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
}
