// Package quality profiles the fact table: per-column missingness,
// IQR-based outlier rates on the key numeric metrics, and the audit table of
// extreme orders.
package quality

import (
	"sort"

	"github.com/wolfsonlabs/commercelens/internal/config"
	"github.com/wolfsonlabs/commercelens/internal/store"
)

// ColumnProfile reports the null/empty share of one tracked fact column.
type ColumnProfile struct {
	ColumnName string
	MissingPct float64
}

// OutlierProfile reports the IQR outlier rate of one numeric metric together
// with the bounds used.
type OutlierProfile struct {
	MetricName     string
	PctOutliersIQR float64
	LowerBound     float64
	UpperBound     float64
}

// AuditOrder is one row of the top-orders audit table.
type AuditOrder struct {
	Rank        int
	BossOrderID string
	CustomerID  string
	OrderDate   string
	OrderTotal  float64
	Refund      float64
	NetRevenue  float64
}

type Result struct {
	Columns  []ColumnProfile
	Outliers []OutlierProfile
	Audit    []AuditOrder
}

type Profiler struct {
	cfg config.QualityConfig
}

func New(cfg config.QualityConfig) *Profiler {
	return &Profiler{cfg: cfg}
}

func (p *Profiler) Run(s *store.Store) Result {
	orders := s.Orders()
	return Result{
		Columns:  columnProfiles(orders),
		Outliers: outlierProfiles(orders),
		Audit:    p.auditTop(orders),
	}
}

func columnProfiles(orders []store.Order) []ColumnProfile {
	tracked := []struct {
		name    string
		missing func(store.Order) bool
	}{
		{"customer_id", func(o store.Order) bool { return o.CustomerID == "" }},
		{"coupon_code", func(o store.Order) bool { return o.CouponCode == "" }},
		{"campaign_type", func(o store.Order) bool { return o.CampaignType == "" }},
		{"payment_method", func(o store.Order) bool { return o.PaymentMethod == "" }},
		{"shipper_id", func(o store.Order) bool { return o.ShipperID == "" }},
		{"completed_date", func(o store.Order) bool { return o.CompletedDate == nil }},
	}

	out := make([]ColumnProfile, 0, len(tracked))
	for _, t := range tracked {
		missing := 0
		for _, o := range orders {
			if t.missing(o) {
				missing++
			}
		}
		pct := 0.0
		if len(orders) > 0 {
			pct = 100 * float64(missing) / float64(len(orders))
		}
		out = append(out, ColumnProfile{ColumnName: t.name, MissingPct: pct})
	}
	return out
}

func outlierProfiles(orders []store.Order) []OutlierProfile {
	metrics := []struct {
		name  string
		value func(store.Order) float64
	}{
		{"order_total_gbp", func(o store.Order) float64 { return o.OrderTotal }},
		{"refund_gbp", func(o store.Order) float64 { return o.Refund }},
		{"net_revenue_gbp", func(o store.Order) float64 { return o.NetRevenue() }},
		{"discount_rate", func(o store.Order) float64 { return o.DiscountRate }},
	}

	out := make([]OutlierProfile, 0, len(metrics))
	for _, m := range metrics {
		values := make([]float64, len(orders))
		for i, o := range orders {
			values[i] = m.value(o)
		}
		out = append(out, iqrProfile(m.name, values))
	}
	return out
}

// iqrProfile flags values outside [Q1-1.5·IQR, Q3+1.5·IQR]. Zero spread
// (IQR = 0) yields a 0% outlier rate, not an error.
func iqrProfile(name string, values []float64) OutlierProfile {
	if len(values) == 0 {
		return OutlierProfile{MetricName: name}
	}

	q1 := Quantile(values, 0.25)
	q3 := Quantile(values, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	if iqr == 0 {
		return OutlierProfile{MetricName: name, LowerBound: lower, UpperBound: upper}
	}

	outliers := 0
	for _, v := range values {
		if v < lower || v > upper {
			outliers++
		}
	}
	return OutlierProfile{
		MetricName:     name,
		PctOutliersIQR: 100 * float64(outliers) / float64(len(values)),
		LowerBound:     lower,
		UpperBound:     upper,
	}
}

func (p *Profiler) auditTop(orders []store.Order) []AuditOrder {
	topN := p.cfg.AuditTopN
	if topN <= 0 {
		topN = 200
	}

	sorted := make([]store.Order, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].OrderTotal != sorted[j].OrderTotal {
			return sorted[i].OrderTotal > sorted[j].OrderTotal
		}
		return sorted[i].BossOrderID < sorted[j].BossOrderID
	})
	if len(sorted) > topN {
		sorted = sorted[:topN]
	}

	audit := make([]AuditOrder, len(sorted))
	for i, o := range sorted {
		audit[i] = AuditOrder{
			Rank:        i + 1,
			BossOrderID: o.BossOrderID,
			CustomerID:  o.CustomerID,
			OrderDate:   o.OrderDate.Format("2006-01-02"),
			OrderTotal:  o.OrderTotal,
			Refund:      o.Refund,
			NetRevenue:  o.NetRevenue(),
		}
	}
	return audit
}
