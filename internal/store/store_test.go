package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testDims(dates ...string) Dimensions {
	dims := Dimensions{
		Shop:     []string{"amazon_uk", "shopify"},
		Brand:    []string{"XYZ", "ACME"},
		Company:  []string{"Wolfson"},
		Country:  []string{"GB", "DE"},
		Payment:  []string{"card", "paypal"},
		Campaign: []string{"Email", "No campaign"},
		Coupon:   []string{"SAVE10", "VIP20"},
	}
	for _, d := range dates {
		dims.Date = append(dims.Date, day(d))
	}
	return dims
}

func testOrder(id string) Order {
	return Order{
		BossOrderID:     id,
		CustomerID:      "C1",
		OrderDate:       day("2024-03-01"),
		OrderTotal:      100,
		Shop:            "amazon_uk",
		Brand:           "XYZ",
		Company:         "Wolfson",
		ShippingCountry: "GB",
		PaymentMethod:   "card",
		CampaignType:    "Email",
	}
}

func TestLoadRejectsDuplicateOrderID(t *testing.T) {
	_, err := Load([]Order{testOrder("B1"), testOrder("B1")}, nil, testDims("2024-03-01"))
	require.Error(t, err)

	schemaErr, ok := err.(*SchemaError)
	require.True(t, ok)
	assert.Equal(t, "boss_order_id", schemaErr.Column)
	assert.Equal(t, "B1", schemaErr.Key)
}

func TestLoadRejectsUnknownDimensionKey(t *testing.T) {
	o := testOrder("B1")
	o.Shop = "ebay"

	_, err := Load([]Order{o}, nil, testDims("2024-03-01"))
	require.Error(t, err)

	schemaErr, ok := err.(*SchemaError)
	require.True(t, ok)
	assert.Equal(t, "shop", schemaErr.Column)
	assert.Equal(t, "ebay", schemaErr.Key)
}

func TestLoadRejectsOrphanOrderLine(t *testing.T) {
	lines := []OrderLine{{BossOrderID: "B9", SKU: "SKU-1", Quantity: 1, LineValue: 10}}

	_, err := Load([]Order{testOrder("B1")}, lines, testDims("2024-03-01"))
	require.Error(t, err)

	schemaErr, ok := err.(*SchemaError)
	require.True(t, ok)
	assert.Equal(t, "order_lines_clean", schemaErr.Table)
	assert.Equal(t, "B9", schemaErr.Key)
}

func TestLoadSkipsNullCategoricalValues(t *testing.T) {
	o := testOrder("B1")
	o.CampaignType = ""
	o.PaymentMethod = ""
	o.CouponCode = ""

	s, err := Load([]Order{o}, nil, testDims("2024-03-01"))
	require.NoError(t, err)
	assert.Len(t, s.Orders(), 1)
}

func TestLoadDerivesCouponInvariant(t *testing.T) {
	withCode := testOrder("B1")
	withCode.CouponCode = "SAVE10"
	withCode.DiscountRate = 0.1
	withCode.HasCoupon = false // upstream got it wrong

	zeroDiscount := testOrder("B2")
	zeroDiscount.CouponCode = "SAVE10"
	zeroDiscount.DiscountRate = 0
	zeroDiscount.HasCoupon = true

	noCode := testOrder("B3")
	noCode.HasCoupon = true

	s, err := Load([]Order{withCode, zeroDiscount, noCode}, nil, testDims("2024-03-01"))
	require.NoError(t, err)

	for _, o := range s.Orders() {
		assert.Equal(t, o.CouponCode != "" && o.DiscountRate > 0, o.HasCoupon, o.BossOrderID)
	}
	assert.True(t, s.Orders()[0].HasCoupon)
	assert.False(t, s.Orders()[1].HasCoupon)
	assert.False(t, s.Orders()[2].HasCoupon)
}

func TestDateDimensionContiguity(t *testing.T) {
	a := testOrder("B1")
	a.OrderDate = day("2024-03-01")
	b := testOrder("B2")
	b.OrderDate = day("2024-03-03")

	full, err := Load([]Order{a, b}, nil, testDims("2024-03-01", "2024-03-02", "2024-03-03"))
	require.NoError(t, err)
	assert.True(t, full.DateDimensionContiguous())

	gapped, err := Load([]Order{a, b}, nil, testDims("2024-03-01", "2024-03-03"))
	require.NoError(t, err)
	assert.False(t, gapped.DateDimensionContiguous())

	min, max := full.DateRange()
	assert.Equal(t, day("2024-03-01"), min)
	assert.Equal(t, day("2024-03-03"), max)
}

func TestFilterIntersectsAxes(t *testing.T) {
	a := testOrder("B1")
	b := testOrder("B2")
	b.Shop = "shopify"
	b.OrderDate = day("2024-03-05")
	c := testOrder("B3")
	c.ShippingCountry = "DE"

	s, err := Load([]Order{a, b, c}, nil, testDims("2024-03-01", "2024-03-02", "2024-03-03", "2024-03-04", "2024-03-05"))
	require.NoError(t, err)

	assert.Len(t, s.Filter(FilterContext{}), 3)
	assert.Len(t, s.Filter(FilterContext{Shops: []string{"amazon_uk"}}), 2)
	assert.Len(t, s.Filter(FilterContext{Shops: []string{"amazon_uk"}, Countries: []string{"GB"}}), 1)

	from, to := day("2024-03-01"), day("2024-03-04")
	assert.Len(t, s.Filter(FilterContext{From: &from, To: &to}), 2)

	// Inclusive bounds.
	to = day("2024-03-05")
	assert.Len(t, s.Filter(FilterContext{From: &from, To: &to}), 3)
}

func TestFilterHasCoupon(t *testing.T) {
	a := testOrder("B1")
	a.CouponCode = "SAVE10"
	a.DiscountRate = 0.15
	b := testOrder("B2")

	s, err := Load([]Order{a, b}, nil, testDims("2024-03-01"))
	require.NoError(t, err)

	yes := true
	filtered := s.Filter(FilterContext{HasCoupon: &yes})
	require.Len(t, filtered, 1)
	assert.Equal(t, "B1", filtered[0].BossOrderID)
}

func TestBasketsGroupLinesByOrder(t *testing.T) {
	lines := []OrderLine{
		{BossOrderID: "B1", SKU: "SKU-A", Quantity: 1, LineValue: 40},
		{BossOrderID: "B1", SKU: "SKU-B", Quantity: 2, LineValue: 60},
		{BossOrderID: "B2", SKU: "SKU-A", Quantity: 1, LineValue: 40},
	}

	s, err := Load([]Order{testOrder("B1"), testOrder("B2")}, lines, testDims("2024-03-01"))
	require.NoError(t, err)

	assert.Len(t, s.Baskets(), 2)
	assert.Len(t, s.Lines("B1"), 2)
	assert.Len(t, s.Lines("B2"), 1)
	assert.Nil(t, s.Lines("B3"))
}
