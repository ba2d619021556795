package warehouse

import (
	"context"

	"github.com/wolfsonlabs/commercelens/internal/basket"
	"github.com/wolfsonlabs/commercelens/internal/quality"
	"github.com/wolfsonlabs/commercelens/internal/rfm"
	"gorm.io/gorm"
)

// PublishCycle replaces every derived table with the new cycle's rows inside
// a single transaction. A failed cycle therefore leaves the previously
// published tables untouched.
func (r *repository) PublishCycle(ctx context.Context, cycle RefreshCycleRow, out Outputs) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&RFMCustomerRow{}, &RFMTargetRow{},
			&SKURuleRow{}, &SKUSummaryRow{},
			&ColumnProfileRow{}, &OutlierProfileRow{}, &AuditOrderRow{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}

		if rows := rfmCustomerRows(out.RFM); len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return err
			}
		}
		if rows := rfmTargetRows(out.RFM); len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return err
			}
		}
		if rows := skuRuleRows(out.Basket); len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return err
			}
		}
		if rows := skuSummaryRows(out.Basket); len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return err
			}
		}
		if rows := columnProfileRows(out.Quality); len(rows) > 0 {
			if err := tx.Create(rows).Error; err != nil {
				return err
			}
		}
		if rows := outlierProfileRows(out.Quality); len(rows) > 0 {
			if err := tx.Create(rows).Error; err != nil {
				return err
			}
		}
		if rows := auditOrderRows(out.Quality); len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return err
			}
		}

		return tx.Create(&cycle).Error
	})
}

func rfmCustomerRows(res rfm.Result) []RFMCustomerRow {
	rows := make([]RFMCustomerRow, len(res.Customers))
	for i, c := range res.Customers {
		rows[i] = RFMCustomerRow{
			CustomerID:    c.CustomerID,
			RecencyDays:   c.RecencyDays,
			Frequency:     c.Frequency,
			Monetary:      c.Monetary,
			LastOrderDate: c.LastOrderDate,
			RScore:        c.RScore,
			FScore:        c.FScore,
			MScore:        c.MScore,
			Segment:       c.Segment,
		}
	}
	return rows
}

func rfmTargetRows(res rfm.Result) []RFMTargetRow {
	rows := make([]RFMTargetRow, len(res.Targets))
	for i, c := range res.Targets {
		rows[i] = RFMTargetRow{
			Rank:        i + 1,
			CustomerID:  c.CustomerID,
			Segment:     c.Segment,
			Monetary:    c.Monetary,
			RecencyDays: c.RecencyDays,
			Frequency:   c.Frequency,
		}
	}
	return rows
}

func skuRuleRows(res basket.Result) []SKURuleRow {
	rows := make([]SKURuleRow, len(res.Rules))
	for i, rule := range res.Rules {
		rows[i] = SKURuleRow{
			Rank:       i + 1,
			Antecedent: rule.Antecedent,
			Consequent: rule.Consequent,
			Support:    rule.Support,
			Confidence: rule.Confidence,
			Lift:       rule.Lift,
			PairCount:  rule.PairCount,
		}
	}
	return rows
}

func skuSummaryRows(res basket.Result) []SKUSummaryRow {
	rows := make([]SKUSummaryRow, len(res.Summary))
	for i, s := range res.Summary {
		rows[i] = SKUSummaryRow{
			SKU:             s.SKU,
			OrderCount:      s.OrderCount,
			RevenueAllocGBP: s.RevenueAlloc,
		}
	}
	return rows
}

func columnProfileRows(res quality.Result) []ColumnProfileRow {
	rows := make([]ColumnProfileRow, len(res.Columns))
	for i, c := range res.Columns {
		rows[i] = ColumnProfileRow{ColumnName: c.ColumnName, MissingPct: c.MissingPct}
	}
	return rows
}

func outlierProfileRows(res quality.Result) []OutlierProfileRow {
	rows := make([]OutlierProfileRow, len(res.Outliers))
	for i, o := range res.Outliers {
		rows[i] = OutlierProfileRow{
			MetricName:     o.MetricName,
			PctOutliersIQR: o.PctOutliersIQR,
			LowerBound:     o.LowerBound,
			UpperBound:     o.UpperBound,
		}
	}
	return rows
}

func auditOrderRows(res quality.Result) []AuditOrderRow {
	rows := make([]AuditOrderRow, len(res.Audit))
	for i, a := range res.Audit {
		rows[i] = AuditOrderRow{
			Rank:        a.Rank,
			BossOrderID: a.BossOrderID,
			CustomerID:  a.CustomerID,
			OrderDate:   a.OrderDate,
			OrderTotal:  a.OrderTotal,
			Refund:      a.Refund,
			NetRevenue:  a.NetRevenue,
		}
	}
	return rows
}
