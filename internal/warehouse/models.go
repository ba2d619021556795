// Package warehouse is the gorm repository over the analytics database: it
// loads the cleaned input tables into a star-schema snapshot and publishes
// the derived tables transactionally per refresh cycle.
package warehouse

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// --- input tables (written by the upstream cleaning job, read-only here) ---

type OrderRow struct {
	BossOrderID     string     `gorm:"column:boss_order_id;primaryKey"`
	ShopOrderID     string     `gorm:"column:shop_order_id"`
	CustomerID      *string    `gorm:"column:customer_id;index"`
	OrderDate       time.Time  `gorm:"column:order_date;not null;index"`
	CompletedDate   *time.Time `gorm:"column:completed_date"`
	OrderTotalGBP   float64    `gorm:"column:order_total_gbp;not null"`
	RefundGBP       float64    `gorm:"column:refund_gbp;not null"`
	DiscountRate    float64    `gorm:"column:discount_rate;not null"`
	HasCoupon       bool       `gorm:"column:has_coupon;not null"`
	Shop            string     `gorm:"column:shop"`
	Brand           string     `gorm:"column:brand"`
	Company         string     `gorm:"column:company"`
	ShippingCountry string     `gorm:"column:shipping_country"`
	PaymentMethod   *string    `gorm:"column:payment_method"`
	CampaignType    *string    `gorm:"column:campaign_type"`
	CouponCode      *string    `gorm:"column:coupon_code"`
	ShipperID       *string    `gorm:"column:shipper_id"`
}

func (OrderRow) TableName() string { return "orders_clean" }

type OrderLineRow struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	BossOrderID string  `gorm:"column:boss_order_id;not null;index"`
	SKU         string  `gorm:"column:sku;not null;index"`
	Quantity    float64 `gorm:"column:quantity;not null"`
	LineValue   float64 `gorm:"column:line_value;not null"`
}

func (OrderLineRow) TableName() string { return "order_lines_clean" }

type DimDateRow struct {
	Date time.Time `gorm:"column:date;primaryKey"`
}

func (DimDateRow) TableName() string { return "dim_date" }

// DimValueRow backs every categorical dimension table; the table name is set
// per query.
type DimValueRow struct {
	Key string `gorm:"column:key;primaryKey"`
}

// --- derived tables (owned by this engine, replaced wholesale per cycle) ---

type RefreshCycleRow struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	SnapshotDate     time.Time    `gorm:"not null"`
	OrderCount       int          `gorm:"not null"`
	CustomerCount    int          `gorm:"not null"`
	UnknownCustomers int          `gorm:"not null"`
	TotalBaskets     int          `gorm:"not null"`
	OversizedBaskets int          `gorm:"not null"`
	RuleCount        int          `gorm:"not null"`
	StartedAt        time.Time    `gorm:"not null"`
	CompletedAt      time.Time    `gorm:"not null"`
}

func (RefreshCycleRow) TableName() string { return "refresh_cycles" }

type RFMCustomerRow struct {
	CustomerID    string    `gorm:"column:customer_id;primaryKey"`
	RecencyDays   int       `gorm:"column:recency_days;not null"`
	Frequency     int       `gorm:"column:frequency;not null"`
	Monetary      float64   `gorm:"column:monetary;not null"`
	LastOrderDate time.Time `gorm:"column:last_order_date;not null"`
	RScore        int       `gorm:"column:r_score;not null"`
	FScore        int       `gorm:"column:f_score;not null"`
	MScore        int       `gorm:"column:m_score;not null"`
	Segment       string    `gorm:"column:rfm_segment;not null;index"`
}

func (RFMCustomerRow) TableName() string { return "rfm_customers" }

type RFMTargetRow struct {
	Rank        int     `gorm:"column:rank;primaryKey"`
	CustomerID  string  `gorm:"column:customer_id;not null;index"`
	Segment     string  `gorm:"column:rfm_segment;not null"`
	Monetary    float64 `gorm:"column:monetary;not null"`
	RecencyDays int     `gorm:"column:recency_days;not null"`
	Frequency   int     `gorm:"column:frequency;not null"`
}

func (RFMTargetRow) TableName() string { return "rfm_targets" }

type SKURuleRow struct {
	Rank       int     `gorm:"column:rank;primaryKey"`
	Antecedent string  `gorm:"column:antecedent;not null;index"`
	Consequent string  `gorm:"column:consequent;not null;index"`
	Support    float64 `gorm:"column:support;not null"`
	Confidence float64 `gorm:"column:confidence;not null"`
	Lift       float64 `gorm:"column:lift;not null"`
	PairCount  int     `gorm:"column:pair_order_count;not null"`
}

func (SKURuleRow) TableName() string { return "sku_rules" }

type SKUSummaryRow struct {
	SKU             string  `gorm:"column:sku;primaryKey"`
	OrderCount      int     `gorm:"column:order_count;not null"`
	RevenueAllocGBP float64 `gorm:"column:revenue_alloc_gbp;not null"`
}

func (SKUSummaryRow) TableName() string { return "sku_summary" }

type ColumnProfileRow struct {
	ColumnName string  `gorm:"column:column_name;primaryKey"`
	MissingPct float64 `gorm:"column:missing_pct;not null"`
}

func (ColumnProfileRow) TableName() string { return "column_profiles" }

type OutlierProfileRow struct {
	MetricName     string  `gorm:"column:metric_name;primaryKey"`
	PctOutliersIQR float64 `gorm:"column:pct_outliers_iqr;not null"`
	LowerBound     float64 `gorm:"column:lower_bound;not null"`
	UpperBound     float64 `gorm:"column:upper_bound;not null"`
}

func (OutlierProfileRow) TableName() string { return "outlier_profiles" }

type AuditOrderRow struct {
	Rank        int     `gorm:"column:rank;primaryKey"`
	BossOrderID string  `gorm:"column:boss_order_id;not null"`
	CustomerID  string  `gorm:"column:customer_id"`
	OrderDate   string  `gorm:"column:order_date;not null"`
	OrderTotal  float64 `gorm:"column:order_total_gbp;not null"`
	Refund      float64 `gorm:"column:refund_gbp;not null"`
	NetRevenue  float64 `gorm:"column:net_revenue_gbp;not null"`
}

func (AuditOrderRow) TableName() string { return "audit_orders" }
