// Package seed loads a small demo order book into the input tables so the
// engine can be exercised locally without a real upstream export.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/wolfsonlabs/commercelens/internal/warehouse"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureDemoData seeds dimensions and a demo order book. Idempotent: an
// existing non-empty orders_clean table is left alone.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDimensions(tx); err != nil {
			return err
		}
		var existing int64
		if err := tx.Model(&warehouse.OrderRow{}).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		return insertDemoOrders(tx)
	})
}

var demoDims = map[string][]string{
	"dim_shop":     {"amazon_uk", "amazon_de", "shopify_uk", "ebay_uk"},
	"dim_brand":    {"Aurora", "Northpeak"},
	"dim_company":  {"Wolfson Brands"},
	"dim_country":  {"GB", "DE", "FR", "IE"},
	"dim_payment":  {"card", "paypal", "klarna"},
	"dim_campaign": {"Email", "Social", "Search"},
	"dim_coupon":   {"WELCOME10", "SPRING15"},
}

func ensureDimensions(tx *gorm.DB) error {
	for table, keys := range demoDims {
		for _, k := range keys {
			err := tx.Table(table).
				Clauses(clause.OnConflict{DoNothing: true}).
				Create(&warehouse.DimValueRow{Key: k}).Error
			if err != nil {
				return err
			}
		}
	}

	// One contiguous span of dates so year-over-year measures stay defined.
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&warehouse.DimDateRow{Date: d}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

type demoOrder struct {
	id       string
	customer string
	date     string
	total    float64
	refund   float64
	discount float64
	coupon   string
	shop     string
	brand    string
	country  string
	payment  string
	campaign string
	lines    []demoLine
}

type demoLine struct {
	sku   string
	value float64
}

var demoOrders = []demoOrder{
	{id: "D0001", customer: "CUST-001", date: "2023-02-14", total: 89.99, shop: "amazon_uk", brand: "Aurora", country: "GB", payment: "card", campaign: "Email", lines: []demoLine{{"AUR-LAMP", 59.99}, {"AUR-BULB", 30.00}}},
	{id: "D0002", customer: "CUST-001", date: "2023-08-02", total: 120.00, discount: 0.1, coupon: "WELCOME10", shop: "amazon_uk", brand: "Aurora", country: "GB", payment: "card", campaign: "Email", lines: []demoLine{{"AUR-LAMP", 59.99}, {"AUR-SHADE", 60.01}}},
	{id: "D0003", customer: "CUST-002", date: "2023-11-27", total: 45.50, refund: 45.50, shop: "shopify_uk", brand: "Northpeak", country: "GB", payment: "paypal", campaign: "Social", lines: []demoLine{{"NP-FLASK", 45.50}}},
	{id: "D0004", customer: "CUST-003", date: "2024-02-14", total: 95.00, shop: "amazon_uk", brand: "Aurora", country: "GB", payment: "card", campaign: "Email", lines: []demoLine{{"AUR-LAMP", 65.00}, {"AUR-BULB", 30.00}}},
	{id: "D0005", customer: "CUST-002", date: "2024-03-08", total: 150.25, discount: 0.15, coupon: "SPRING15", shop: "amazon_de", brand: "Northpeak", country: "DE", payment: "klarna", campaign: "Search", lines: []demoLine{{"NP-TENT", 120.25}, {"NP-FLASK", 30.00}}},
	{id: "D0006", customer: "", date: "2024-04-19", total: 29.99, shop: "ebay_uk", brand: "Aurora", country: "IE", payment: "paypal", campaign: "Social", lines: []demoLine{{"AUR-BULB", 29.99}}},
	{id: "D0007", customer: "CUST-004", date: "2024-05-30", total: 210.00, shop: "shopify_uk", brand: "Northpeak", country: "FR", payment: "card", campaign: "Search", lines: []demoLine{{"NP-TENT", 120.00}, {"NP-STOVE", 60.00}, {"NP-FLASK", 30.00}}},
	{id: "D0008", customer: "CUST-004", date: "2024-06-11", total: 60.00, refund: 12.00, shop: "shopify_uk", brand: "Northpeak", country: "FR", payment: "card", campaign: "Search", lines: []demoLine{{"NP-STOVE", 60.00}}},
}

func insertDemoOrders(tx *gorm.DB) error {
	for _, o := range demoOrders {
		date, err := time.Parse("2006-01-02", o.date)
		if err != nil {
			return err
		}
		row := warehouse.OrderRow{
			BossOrderID:     o.id,
			ShopOrderID:     "SHOP-" + o.id,
			OrderDate:       date,
			OrderTotalGBP:   o.total,
			RefundGBP:       o.refund,
			DiscountRate:    o.discount,
			HasCoupon:       o.coupon != "" && o.discount > 0,
			Shop:            o.shop,
			Brand:           o.brand,
			Company:         "Wolfson Brands",
			ShippingCountry: o.country,
			PaymentMethod:   &o.payment,
			CampaignType:    &o.campaign,
		}
		if o.customer != "" {
			row.CustomerID = &o.customer
		}
		if o.coupon != "" {
			row.CouponCode = &o.coupon
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		for _, l := range o.lines {
			line := warehouse.OrderLineRow{
				BossOrderID: o.id,
				SKU:         l.sku,
				Quantity:    1,
				LineValue:   l.value,
			}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
