package amortization

import (
	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// RetentionLine is the distributor's estimated cut of one installment
type RetentionLine struct {
	SequenceNumber  int
	GrossAmount     decimal.Decimal
	RetentionAmount decimal.Decimal
	NetAmount       decimal.Decimal
}

// RetentionSummary is a preview-only estimate. It is never persisted and never alters the plan.
type RetentionSummary struct {
	FeePercent     decimal.Decimal
	Lines          []RetentionLine
	TotalRetention decimal.Decimal
	TotalNet       decimal.Decimal
}

// ApplyDistributorRetention estimates what a distributor withholds from each installment at feePercent
func ApplyDistributorRetention(plan *domain.InstallmentPlan, feePercent decimal.Decimal) *RetentionSummary {
	summary := &RetentionSummary{
		FeePercent:     feePercent,
		Lines:          make([]RetentionLine, len(plan.Installments)),
		TotalRetention: decimal.Zero,
		TotalNet:       decimal.Zero,
	}

	for i, inst := range plan.Installments {
		retention := inst.GrossAmount.Mul(feePercent).Div(hundred).Round(2)
		net := inst.GrossAmount.Sub(retention)
		summary.Lines[i] = RetentionLine{
			SequenceNumber:  inst.SequenceNumber,
			GrossAmount:     inst.GrossAmount,
			RetentionAmount: retention,
			NetAmount:       net,
		}
		summary.TotalRetention = summary.TotalRetention.Add(retention)
		summary.TotalNet = summary.TotalNet.Add(net)
	}

	return summary
}
