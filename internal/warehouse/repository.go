package warehouse

import (
	"context"
	"time"

	"github.com/wolfsonlabs/commercelens/internal/basket"
	"github.com/wolfsonlabs/commercelens/internal/quality"
	"github.com/wolfsonlabs/commercelens/internal/rfm"
	"github.com/wolfsonlabs/commercelens/internal/store"
	"gorm.io/gorm"
)

// Outputs carries one cycle's derived tables into publication.
type Outputs struct {
	RFM     rfm.Result
	Basket  basket.Result
	Quality quality.Result
}

type Repository interface {
	Migrate(ctx context.Context) error
	LoadSnapshot(ctx context.Context) ([]store.Order, []store.OrderLine, store.Dimensions, error)
	PublishCycle(ctx context.Context, cycle RefreshCycleRow, out Outputs) error

	LatestCycle(ctx context.Context) (*RefreshCycleRow, error)
	PruneCycles(ctx context.Context, before time.Time) (int64, error)
	ListTargets(ctx context.Context, limit int) ([]RFMTargetRow, error)
	ListRules(ctx context.Context, limit int) ([]SKURuleRow, error)
	ListColumnProfiles(ctx context.Context) ([]ColumnProfileRow, error)
	ListOutlierProfiles(ctx context.Context) ([]OutlierProfileRow, error)
	ListAuditOrders(ctx context.Context, limit int) ([]AuditOrderRow, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

var categoricalDims = []string{
	"dim_shop", "dim_brand", "dim_company", "dim_country",
	"dim_payment", "dim_campaign", "dim_coupon",
}

func (r *repository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&OrderRow{}, &OrderLineRow{}, &DimDateRow{},
		&RefreshCycleRow{}, &RFMCustomerRow{}, &RFMTargetRow{},
		&SKURuleRow{}, &SKUSummaryRow{},
		&ColumnProfileRow{}, &OutlierProfileRow{}, &AuditOrderRow{},
	); err != nil {
		return err
	}
	for _, table := range categoricalDims {
		if err := db.Table(table).AutoMigrate(&DimValueRow{}); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) LoadSnapshot(ctx context.Context) ([]store.Order, []store.OrderLine, store.Dimensions, error) {
	db := r.db.WithContext(ctx)

	var orderRows []OrderRow
	if err := db.Order("boss_order_id").Find(&orderRows).Error; err != nil {
		return nil, nil, store.Dimensions{}, err
	}
	orders := make([]store.Order, len(orderRows))
	for i, row := range orderRows {
		orders[i] = store.Order{
			BossOrderID:     row.BossOrderID,
			ShopOrderID:     row.ShopOrderID,
			CustomerID:      deref(row.CustomerID),
			OrderDate:       row.OrderDate,
			CompletedDate:   row.CompletedDate,
			OrderTotal:      row.OrderTotalGBP,
			Refund:          row.RefundGBP,
			DiscountRate:    row.DiscountRate,
			HasCoupon:       row.HasCoupon,
			Shop:            row.Shop,
			Brand:           row.Brand,
			Company:         row.Company,
			ShippingCountry: row.ShippingCountry,
			PaymentMethod:   deref(row.PaymentMethod),
			CampaignType:    deref(row.CampaignType),
			CouponCode:      deref(row.CouponCode),
			ShipperID:       deref(row.ShipperID),
		}
	}

	var lineRows []OrderLineRow
	if err := db.Order("boss_order_id, sku, id").Find(&lineRows).Error; err != nil {
		return nil, nil, store.Dimensions{}, err
	}
	lines := make([]store.OrderLine, len(lineRows))
	for i, row := range lineRows {
		lines[i] = store.OrderLine{
			BossOrderID: row.BossOrderID,
			SKU:         row.SKU,
			Quantity:    row.Quantity,
			LineValue:   row.LineValue,
		}
	}

	dims, err := r.loadDimensions(ctx)
	if err != nil {
		return nil, nil, store.Dimensions{}, err
	}
	return orders, lines, dims, nil
}

func (r *repository) loadDimensions(ctx context.Context) (store.Dimensions, error) {
	db := r.db.WithContext(ctx)

	var dims store.Dimensions
	var dateRows []DimDateRow
	if err := db.Order("date").Find(&dateRows).Error; err != nil {
		return dims, err
	}
	dims.Date = make([]time.Time, len(dateRows))
	for i, row := range dateRows {
		dims.Date[i] = row.Date
	}

	targets := map[string]*[]string{
		"dim_shop":     &dims.Shop,
		"dim_brand":    &dims.Brand,
		"dim_company":  &dims.Company,
		"dim_country":  &dims.Country,
		"dim_payment":  &dims.Payment,
		"dim_campaign": &dims.Campaign,
		"dim_coupon":   &dims.Coupon,
	}
	for _, table := range categoricalDims {
		var keys []string
		if err := db.Table(table).Order("key").Pluck("key", &keys).Error; err != nil {
			return dims, err
		}
		*targets[table] = keys
	}
	return dims, nil
}

// LatestCycle returns the most recently published cycle, nil when none
// exists yet.
func (r *repository) LatestCycle(ctx context.Context) (*RefreshCycleRow, error) {
	var row RefreshCycleRow
	err := r.db.WithContext(ctx).Order("id DESC").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// PruneCycles removes cycle history rows completed before the cutoff. The
// latest cycle is always kept, even when it predates the cutoff.
func (r *repository) PruneCycles(ctx context.Context, before time.Time) (int64, error) {
	latest, err := r.LatestCycle(ctx)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("completed_at < ? AND id <> ?", before, latest.ID).
		Delete(&RefreshCycleRow{})
	return res.RowsAffected, res.Error
}

func (r *repository) ListTargets(ctx context.Context, limit int) ([]RFMTargetRow, error) {
	var rows []RFMTargetRow
	err := r.db.WithContext(ctx).Order("rank").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) ListRules(ctx context.Context, limit int) ([]SKURuleRow, error) {
	var rows []SKURuleRow
	err := r.db.WithContext(ctx).Order("rank").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) ListColumnProfiles(ctx context.Context) ([]ColumnProfileRow, error) {
	var rows []ColumnProfileRow
	err := r.db.WithContext(ctx).Order("column_name").Find(&rows).Error
	return rows, err
}

func (r *repository) ListOutlierProfiles(ctx context.Context) ([]OutlierProfileRow, error) {
	var rows []OutlierProfileRow
	err := r.db.WithContext(ctx).Order("metric_name").Find(&rows).Error
	return rows, err
}

func (r *repository) ListAuditOrders(ctx context.Context, limit int) ([]AuditOrderRow, error) {
	var rows []AuditOrderRow
	err := r.db.WithContext(ctx).Order("rank").Limit(limit).Find(&rows).Error
	return rows, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
