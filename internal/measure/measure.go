// Package measure evaluates the named business measures against an arbitrary
// filter context over the star-schema snapshot. Evaluation is pure: the same
// measure against an unchanged snapshot and identical context yields
// bit-identical results.
package measure

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wolfsonlabs/commercelens/internal/store"
)

// Measure names accepted by Evaluate.
const (
	NetRevenue         = "net_revenue_gbp"
	Orders             = "orders"
	AOV                = "aov_gbp"
	Refund             = "refund_gbp"
	RefundRate         = "refund_rate"
	CouponUsage        = "coupon_usage_pct"
	WeightedDiscount   = "weighted_avg_discount_rate"
	NetRevenueCoupon   = "net_revenue_coupon_gbp"
	NetRevenueNoCoupon = "net_revenue_no_coupon_gbp"
	YoYNetRevenue      = "yoy_net_revenue_pct"
)

// Value is a nullable measure result. Zero-denominator measures resolve to
// an invalid Value, never an error and never zero.
type Value struct {
	Float64 float64
	Valid   bool
}

func valid(v float64) Value { return Value{Float64: v, Valid: true} }

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float64)
}

// DateDimensionError marks a time-intelligence measure as undefined because
// the date dimension does not cover the required period. Other measures are
// unaffected.
type DateDimensionError struct {
	Measure string
}

func (e *DateDimensionError) Error() string {
	return fmt.Sprintf("measure %s undefined: date dimension has gaps or does not cover the order date range", e.Measure)
}

// ErrUnknownMeasure reports an unrecognized measure name.
type ErrUnknownMeasure struct {
	Name string
}

func (e *ErrUnknownMeasure) Error() string {
	return fmt.Sprintf("unknown measure %q", e.Name)
}

type Evaluator struct {
	store *store.Store
}

func New(s *store.Store) *Evaluator {
	return &Evaluator{store: s}
}

// Evaluate computes one named scalar measure over the filtered fact rows.
func (e *Evaluator) Evaluate(name string, fc store.FilterContext) (Value, error) {
	if name == YoYNetRevenue {
		return e.yoyNetRevenue(fc)
	}
	fn, ok := scalarFuncs[name]
	if !ok {
		return Value{}, &ErrUnknownMeasure{Name: name}
	}
	return fn(e.store.Filter(fc)), nil
}

var scalarFuncs = map[string]func([]store.Order) Value{
	NetRevenue:         netRevenue,
	Orders:             orderCount,
	AOV:                aov,
	Refund:             refundTotal,
	RefundRate:         refundRate,
	CouponUsage:        couponUsage,
	WeightedDiscount:   weightedDiscount,
	NetRevenueCoupon:   couponSplit(true),
	NetRevenueNoCoupon: couponSplit(false),
}

func netRevenue(orders []store.Order) Value {
	var sum float64
	for _, o := range orders {
		sum += o.NetRevenue()
	}
	return valid(sum)
}

func orderCount(orders []store.Order) Value {
	return valid(float64(len(orders)))
}

func aov(orders []store.Order) Value {
	if len(orders) == 0 {
		return Value{}
	}
	return valid(netRevenue(orders).Float64 / float64(len(orders)))
}

func refundTotal(orders []store.Order) Value {
	var sum float64
	for _, o := range orders {
		sum += o.Refund
	}
	return valid(sum)
}

func refundRate(orders []store.Order) Value {
	var refund, total float64
	for _, o := range orders {
		refund += o.Refund
		total += o.OrderTotal
	}
	if total == 0 {
		return Value{}
	}
	return valid(refund / total)
}

func couponUsage(orders []store.Order) Value {
	if len(orders) == 0 {
		return Value{}
	}
	var coupon int
	for _, o := range orders {
		if o.HasCoupon {
			coupon++
		}
	}
	return valid(float64(coupon) / float64(len(orders)))
}

func weightedDiscount(orders []store.Order) Value {
	var weighted, total float64
	for _, o := range orders {
		if !o.HasCoupon {
			continue
		}
		weighted += o.DiscountRate * o.OrderTotal
		total += o.OrderTotal
	}
	if total == 0 {
		return Value{}
	}
	return valid(weighted / total)
}

func couponSplit(withCoupon bool) func([]store.Order) Value {
	return func(orders []store.Order) Value {
		var sum float64
		for _, o := range orders {
			if o.HasCoupon == withCoupon {
				sum += o.NetRevenue()
			}
		}
		return valid(sum)
	}
}

// yoyNetRevenue compares the context period against the same calendar period
// one year earlier. The prior period is resolved by calendar offset, which
// requires a contiguous daily date dimension.
func (e *Evaluator) yoyNetRevenue(fc store.FilterContext) (Value, error) {
	if fc.From == nil || fc.To == nil {
		return Value{}, fmt.Errorf("measure %s requires an explicit date range", YoYNetRevenue)
	}
	if !e.store.DateDimensionContiguous() {
		return Value{}, &DateDimensionError{Measure: YoYNetRevenue}
	}

	current := netRevenue(e.store.Filter(fc)).Float64

	priorFrom := fc.From.AddDate(-1, 0, 0)
	priorTo := fc.To.AddDate(-1, 0, 0)
	priorCtx := fc
	priorCtx.From, priorCtx.To = &priorFrom, &priorTo
	prior := netRevenue(e.store.Filter(priorCtx)).Float64

	if prior == 0 {
		return Value{}, nil
	}
	return valid((current - prior) / prior), nil
}

// truncateDay matches the store's order-date grain.
func truncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
