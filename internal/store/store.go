// Package store holds the immutable star-schema snapshot one refresh cycle
// operates on: the order fact table, its order lines grouped into baskets,
// and the dimension tables the fact columns reference. A snapshot is built
// once per cycle and shared read-only by every downstream engine.
package store

import (
	"fmt"
	"sort"
	"time"
)

// Order is one fact row. Monetary amounts are GBP. CustomerID and CouponCode
// are empty when the source value was null.
type Order struct {
	BossOrderID     string
	ShopOrderID     string
	CustomerID      string
	OrderDate       time.Time
	CompletedDate   *time.Time
	OrderTotal      float64
	Refund          float64
	DiscountRate    float64
	HasCoupon       bool
	Shop            string
	Brand           string
	Company         string
	ShippingCountry string
	PaymentMethod   string
	CampaignType    string
	CouponCode      string
	ShipperID       string
}

// NetRevenue is order_total minus refund.
func (o Order) NetRevenue() float64 {
	return o.OrderTotal - o.Refund
}

type OrderLine struct {
	BossOrderID string
	SKU         string
	Quantity    float64
	LineValue   float64
}

// Dimensions carries the key sets of each dimension table. Date is the
// calendar date dimension; the rest are categorical axes keyed by their
// natural value.
type Dimensions struct {
	Date     []time.Time
	Shop     []string
	Brand    []string
	Company  []string
	Country  []string
	Payment  []string
	Campaign []string
	Coupon   []string
}

// SchemaError reports a referential-integrity violation or duplicate primary
// key between the fact table and its dimensions. It is fatal to the refresh
// cycle that hit it.
type SchemaError struct {
	Table  string
	Column string
	Key    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation: %s.%s key %q", e.Table, e.Column, e.Key)
}

// Store is the immutable snapshot. No mutation methods exist; a new refresh
// builds a new Store.
type Store struct {
	orders  []Order
	byID    map[string]int
	baskets map[string][]OrderLine

	dateMin        time.Time
	dateMax        time.Time
	dateContiguous bool
}

// Load validates and indexes one snapshot. It fails with *SchemaError when a
// boss_order_id repeats, a fact row references a dimension key absent from
// its dimension table, or an order line references an unknown order.
// Empty categorical values count as nulls and are skipped here; the
// data-quality profiler reports them as missingness instead.
// HasCoupon is re-derived from coupon_code and discount_rate so the coupon
// invariant holds for every stored order regardless of upstream cleaning.
func Load(orders []Order, lines []OrderLine, dims Dimensions) (*Store, error) {
	s := &Store{
		orders:  make([]Order, len(orders)),
		byID:    make(map[string]int, len(orders)),
		baskets: make(map[string][]OrderLine),
	}

	shopSet := stringSet(dims.Shop)
	brandSet := stringSet(dims.Brand)
	companySet := stringSet(dims.Company)
	countrySet := stringSet(dims.Country)
	paymentSet := stringSet(dims.Payment)
	campaignSet := stringSet(dims.Campaign)
	couponSet := stringSet(dims.Coupon)

	for i, o := range orders {
		if _, dup := s.byID[o.BossOrderID]; dup {
			return nil, &SchemaError{Table: "orders_clean", Column: "boss_order_id", Key: o.BossOrderID}
		}
		if err := checkDim(shopSet, "shop", o.Shop); err != nil {
			return nil, err
		}
		if err := checkDim(brandSet, "brand", o.Brand); err != nil {
			return nil, err
		}
		if err := checkDim(companySet, "company", o.Company); err != nil {
			return nil, err
		}
		if err := checkDim(countrySet, "shipping_country", o.ShippingCountry); err != nil {
			return nil, err
		}
		if err := checkDim(paymentSet, "payment_method", o.PaymentMethod); err != nil {
			return nil, err
		}
		if err := checkDim(campaignSet, "campaign_type", o.CampaignType); err != nil {
			return nil, err
		}
		if err := checkDim(couponSet, "coupon_code", o.CouponCode); err != nil {
			return nil, err
		}

		o.OrderDate = o.OrderDate.UTC().Truncate(24 * time.Hour)
		o.HasCoupon = o.CouponCode != "" && o.DiscountRate > 0
		s.byID[o.BossOrderID] = i
		s.orders[i] = o
	}

	for _, l := range lines {
		if _, ok := s.byID[l.BossOrderID]; !ok {
			return nil, &SchemaError{Table: "order_lines_clean", Column: "boss_order_id", Key: l.BossOrderID}
		}
		s.baskets[l.BossOrderID] = append(s.baskets[l.BossOrderID], l)
	}

	s.indexDates(dims.Date)
	return s, nil
}

func (s *Store) indexDates(dates []time.Time) {
	if len(s.orders) == 0 || len(dates) == 0 {
		return
	}

	days := make([]time.Time, len(dates))
	for i, d := range dates {
		days[i] = d.UTC().Truncate(24 * time.Hour)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	minOrder, maxOrder := s.orders[0].OrderDate, s.orders[0].OrderDate
	for _, o := range s.orders[1:] {
		if o.OrderDate.Before(minOrder) {
			minOrder = o.OrderDate
		}
		if o.OrderDate.After(maxOrder) {
			maxOrder = o.OrderDate
		}
	}
	s.dateMin, s.dateMax = minOrder, maxOrder

	// Contiguous means one row per calendar day covering min..max order date.
	covered := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		covered[d] = struct{}{}
	}
	s.dateContiguous = true
	for d := minOrder; !d.After(maxOrder); d = d.AddDate(0, 0, 1) {
		if _, ok := covered[d]; !ok {
			s.dateContiguous = false
			return
		}
	}
}

// Orders returns every fact row. Callers must treat the slice as read-only.
func (s *Store) Orders() []Order {
	return s.orders
}

// Lines returns the order lines of one order, nil when it has none.
func (s *Store) Lines(bossOrderID string) []OrderLine {
	return s.baskets[bossOrderID]
}

// Baskets returns order lines grouped by boss_order_id. Orders without lines
// do not appear; they are excluded from basket analysis.
func (s *Store) Baskets() map[string][]OrderLine {
	return s.baskets
}

// DateRange reports the min and max order date of the snapshot.
func (s *Store) DateRange() (time.Time, time.Time) {
	return s.dateMin, s.dateMax
}

// DateDimensionContiguous reports whether the date dimension has one row per
// calendar day from min to max order date. Time-intelligence measures
// require this.
func (s *Store) DateDimensionContiguous() bool {
	return s.dateContiguous
}

func stringSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// checkDim verifies a fact column value against its dimension key set. Empty
// values are nulls, tracked by the data-quality profiler rather than
// rejected here.
func checkDim(set map[string]struct{}, column, key string) error {
	if key == "" {
		return nil
	}
	if _, ok := set[key]; !ok {
		return &SchemaError{Table: "orders_clean", Column: column, Key: key}
	}
	return nil
}
