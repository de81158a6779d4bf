package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/mutualia/mutualia-backend/internal/events"
	"github.com/mutualia/mutualia-backend/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DefaultImportMaxRows bounds an import file when no limit is configured
const DefaultImportMaxRows = 5000

// ImportService originates loans in bulk from a CSV file
type ImportService struct {
	loanService    *LoanService
	associateRepo  domain.AssociateRepository
	productRepo    domain.CreditProductRepository
	archive        domain.ImportArchive
	eventPublisher events.EventPublisher
	recorder       *metrics.Recorder
	maxRows        int
}

// NewImportService creates a new ImportService on top of the loan origination path
func NewImportService(loanService *LoanService, associateRepo domain.AssociateRepository, productRepo domain.CreditProductRepository, maxRows int) *ImportService {
	if maxRows < 1 {
		maxRows = DefaultImportMaxRows
	}
	return &ImportService{
		loanService:   loanService,
		associateRepo: associateRepo,
		productRepo:   productRepo,
		maxRows:       maxRows,
	}
}

// SetArchive enables archiving of raw import files
func (s *ImportService) SetArchive(archive domain.ImportArchive) {
	s.archive = archive
}

// SetEventPublisher sets the publisher for import summary events
func (s *ImportService) SetEventPublisher(publisher events.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the import metrics recorder
func (s *ImportService) SetMetrics(recorder *metrics.Recorder) {
	s.recorder = recorder
}

// ImportSummaryPayload is the event payload of a finished import
type ImportSummaryPayload struct {
	Filename   string `json:"filename"`
	TotalRows  int    `json:"totalRows"`
	Created    int    `json:"created"`
	Failed     int    `json:"failed"`
	ArchiveKey string `json:"archiveKey,omitempty"`
}

type importRow struct {
	number int
	fields []string
	err    error
}

// ImportLoans parses data and originates one loan per row, each in its own transaction.
// A failing row is reported and does not stop the rows after it.
func (s *ImportService) ImportLoans(ctx context.Context, tenantID int32, filename string, data []byte) (*domain.ImportResult, error) {
	rows, err := s.parse(data)
	if err != nil {
		return nil, err
	}

	result := &domain.ImportResult{
		TotalRows: len(rows),
		Rows:      make([]domain.ImportRowResult, 0, len(rows)),
	}

	if s.archive != nil {
		key, err := s.archive.Archive(ctx, tenantID, filename, data)
		if err != nil {
			log.Error().Err(err).Int32("tenant_id", tenantID).Str("filename", filename).Msg("Failed to archive import file")
		} else {
			result.ArchiveKey = key
		}
	}

	// Repeated codes and documents are looked up once per file
	products := map[string]*domain.CreditProduct{}
	associates := map[string]*domain.Associate{}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			log.Warn().
				Err(err).
				Int32("tenant_id", tenantID).
				Str("filename", filename).
				Int("processed", len(result.Rows)).
				Int("created", result.Created).
				Msg("Loan import interrupted")
			return nil, fmt.Errorf("import interrupted after %d of %d rows: %w", len(result.Rows), len(rows), err)
		}

		rowResult := domain.ImportRowResult{Row: row.number}

		loan, err := s.importRow(ctx, tenantID, row, products, associates)
		if err != nil {
			rowResult.Outcome = domain.ImportOutcomeFailed
			rowResult.Error = err.Error()
			result.Failed++
		} else {
			rowResult.Outcome = domain.ImportOutcomeCreated
			rowResult.LoanID = loan.Loan.ID
			result.Created++
		}
		s.recorder.ImportRow(ctx, rowResult.Outcome)
		result.Rows = append(result.Rows, rowResult)
	}

	log.Info().
		Int32("tenant_id", tenantID).
		Str("filename", filename).
		Int("total_rows", result.TotalRows).
		Int("created", result.Created).
		Int("failed", result.Failed).
		Msg("Loan import finished")

	if s.eventPublisher != nil {
		event := events.LoanImportCompleted(tenantID, ImportSummaryPayload{
			Filename:   filename,
			TotalRows:  result.TotalRows,
			Created:    result.Created,
			Failed:     result.Failed,
			ArchiveKey: result.ArchiveKey,
		})
		if err := s.eventPublisher.Publish(ctx, event); err != nil {
			log.Error().Err(err).Int32("tenant_id", tenantID).Str("event_type", event.Type).Msg("Failed to publish event")
		}
	}

	return result, nil
}

// parse validates the header and returns the data rows. Rows with a wrong field count
// are returned with their error so they are reported instead of aborting the file.
func (s *ImportService) parse(data []byte) ([]importRow, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = len(domain.ImportColumns)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrImportEmpty
		}
		return nil, domain.ErrImportHeaderInvalid
	}
	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(col)) != domain.ImportColumns[i] {
			return nil, domain.ErrImportHeaderInvalid
		}
	}

	var rows []importRow
	for number := 1; ; number++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if len(rows) == s.maxRows {
			return nil, fmt.Errorf("%w: limit is %d", domain.ErrImportTooManyRows, s.maxRows)
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				rows = append(rows, importRow{number: number, err: fmt.Errorf("expected %d columns, got %d", len(domain.ImportColumns), len(fields))})
				continue
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		rows = append(rows, importRow{number: number, fields: fields})
	}

	if len(rows) == 0 {
		return nil, domain.ErrImportEmpty
	}
	return rows, nil
}

func (s *ImportService) importRow(ctx context.Context, tenantID int32, row importRow, products map[string]*domain.CreditProduct, associates map[string]*domain.Associate) (*OriginatedLoan, error) {
	if row.err != nil {
		return nil, row.err
	}

	document := normalizeDocument(row.fields[0])
	code := strings.ToUpper(strings.TrimSpace(row.fields[1]))
	if document == "" {
		return nil, domain.ErrAssociateDocumentEmpty
	}
	if code == "" {
		return nil, domain.ErrProductCodeEmpty
	}

	principal, err := decimal.NewFromString(strings.TrimSpace(row.fields[2]))
	if err != nil {
		return nil, fmt.Errorf("principal %q is not a number", row.fields[2])
	}
	if !principal.Equal(principal.Round(2)) {
		return nil, fmt.Errorf("principal %q has more than 2 decimals", row.fields[2])
	}
	installments, err := strconv.ParseInt(strings.TrimSpace(row.fields[3]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("installments %q is not an integer", row.fields[3])
	}
	originationDate, err := time.Parse(dateLayout, strings.TrimSpace(row.fields[4]))
	if err != nil {
		return nil, fmt.Errorf("origination_date %q must be YYYY-MM-DD", row.fields[4])
	}

	associate, ok := associates[document]
	if !ok {
		associate, err = s.associateRepo.GetByDocument(ctx, tenantID, document)
		if err != nil {
			return nil, fmt.Errorf("associate %s: %w", document, err)
		}
		associates[document] = associate
	}
	product, ok := products[code]
	if !ok {
		product, err = s.productRepo.GetByCode(ctx, tenantID, code)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", code, err)
		}
		products[code] = product
	}

	return s.loanService.originate(ctx, originationRequest{
		tenantID:         tenantID,
		associate:        associate,
		product:          product,
		principal:        principal,
		installmentCount: int32(installments),
		originationDate:  originationDate,
		source:           domain.LoanSourceImport,
	})
}
