package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfsonlabs/commercelens/internal/clock"
	"github.com/wolfsonlabs/commercelens/internal/config"
	"github.com/wolfsonlabs/commercelens/internal/refresh"
	"github.com/wolfsonlabs/commercelens/internal/scheduler"
	"github.com/wolfsonlabs/commercelens/internal/warehouse"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	srv    *Server
	router http.Handler
	db     *gorm.DB
	redis  *miniredis.Miniredis
	cfg    config.Config
	repo   warehouse.Repository
	svc    *refresh.Service
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	repo := warehouse.NewRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	seed(t, db)

	cfg := config.Config{
		RFM: config.RFMConfig{
			CutoffYear:      2023,
			Bins:            5,
			FallbackSegment: "Others",
			TargetSegments:  []string{"At Risk", "Cannot Lose"},
			SegmentRules:    config.DefaultSegmentRules(),
		},
		Basket:  config.BasketConfig{MinPairCount: 1, TopN: 200, MaxBasketSKUs: 50},
		Quality: config.QualityConfig{AuditTopN: 200},
	}

	f := &fixture{db: db}
	if withCache {
		f.redis = miniredis.RunT(t)
		cfg.Redis = config.RedisConfig{Enabled: true, Addr: f.redis.Addr(), TTL: time.Minute}
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := refresh.NewService(refresh.ServiceParam{
		Cfg:   cfg,
		Log:   zap.NewNop(),
		Repo:  repo,
		Clock: clock.SystemClock{},
		GenID: node,
	})

	f.cfg = cfg
	f.repo = repo
	f.svc = svc
	f.srv = New(Param{
		Cfg:        cfg,
		Log:        zap.NewNop(),
		Repo:       repo,
		RefreshSvc: svc,
		Cache:      NewCache(cfg, zap.NewNop()),
	})
	require.NoError(t, f.srv.ReloadSnapshot(context.Background()))
	f.router = f.srv.Router()
	return f
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()

	for d := day("2024-03-01"); !d.After(day("2024-03-10")); d = d.AddDate(0, 0, 1) {
		require.NoError(t, db.Create(&warehouse.DimDateRow{Date: d}).Error)
	}
	dims := map[string][]string{
		"dim_shop":     {"amazon_uk"},
		"dim_brand":    {"XYZ"},
		"dim_company":  {"Wolfson"},
		"dim_country":  {"GB"},
		"dim_payment":  {"card"},
		"dim_campaign": {"Email"},
		"dim_coupon":   {"SAVE10"},
	}
	for table, keys := range dims {
		for _, k := range keys {
			require.NoError(t, db.Table(table).Create(&warehouse.DimValueRow{Key: k}).Error)
		}
	}

	orders := []warehouse.OrderRow{
		{BossOrderID: "B1", CustomerID: strPtr("C1"), OrderDate: day("2024-03-01"), OrderTotalGBP: 50, Shop: "amazon_uk", Brand: "XYZ", Company: "Wolfson", ShippingCountry: "GB", PaymentMethod: strPtr("card"), CampaignType: strPtr("Email")},
		{BossOrderID: "B2", CustomerID: strPtr("C1"), OrderDate: day("2024-03-05"), OrderTotalGBP: 70, Shop: "amazon_uk", Brand: "XYZ", Company: "Wolfson", ShippingCountry: "GB", PaymentMethod: strPtr("card"), CampaignType: strPtr("Email")},
		{BossOrderID: "B3", CustomerID: strPtr("C2"), OrderDate: day("2024-03-05"), OrderTotalGBP: 10, RefundGBP: 2, Shop: "amazon_uk", Brand: "XYZ", Company: "Wolfson", ShippingCountry: "GB", PaymentMethod: strPtr("card"), CampaignType: strPtr("Email"), CouponCode: strPtr("SAVE10"), DiscountRate: 0.1},
	}
	require.NoError(t, db.Create(&orders).Error)

	lines := []warehouse.OrderLineRow{
		{BossOrderID: "B1", SKU: "A", Quantity: 1, LineValue: 25},
		{BossOrderID: "B1", SKU: "B", Quantity: 1, LineValue: 25},
		{BossOrderID: "B2", SKU: "A", Quantity: 2, LineValue: 70},
		{BossOrderID: "B3", SKU: "B", Quantity: 1, LineValue: 10},
	}
	require.NoError(t, db.Create(&lines).Error)
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthzReportsSnapshot(t *testing.T) {
	f := newFixture(t, false)

	w := doJSON(t, f.router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Status         string `json:"status"`
			SnapshotLoaded bool   `json:"snapshot_loaded"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Data.Status)
	assert.True(t, body.Data.SnapshotLoaded)
}

func TestEvaluateMeasure(t *testing.T) {
	f := newFixture(t, false)

	w := doJSON(t, f.router, http.MethodPost, "/v1/measures/net_revenue_gbp/evaluate", "{}")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Measure string   `json:"measure"`
			Value   *float64 `json:"value"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "net_revenue_gbp", body.Data.Measure)
	require.NotNil(t, body.Data.Value)
	assert.InDelta(t, 128, *body.Data.Value, 1e-9)
}

func TestEvaluateMeasureWithFilter(t *testing.T) {
	f := newFixture(t, false)

	w := doJSON(t, f.router, http.MethodPost, "/v1/measures/orders/evaluate",
		`{"from": "2024-03-05", "to": "2024-03-05"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Value *float64 `json:"value"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Data.Value)
	assert.InDelta(t, 2, *body.Data.Value, 1e-9)
}

func TestEvaluateUnknownMeasureIs404(t *testing.T) {
	f := newFixture(t, false)

	w := doJSON(t, f.router, http.MethodPost, "/v1/measures/nonsense/evaluate", "{}")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvaluateBadDateIs400(t *testing.T) {
	f := newFixture(t, false)

	w := doJSON(t, f.router, http.MethodPost, "/v1/measures/orders/evaluate", `{"from": "03/05/2024"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMeasureSeries(t *testing.T) {
	f := newFixture(t, false)

	w := doJSON(t, f.router, http.MethodPost, "/v1/measures/net_revenue_gbp/series", "{}")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Series []struct {
				Period string   `json:"period"`
				Value  *float64 `json:"value"`
			} `json:"series"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Series, 1)
	assert.Equal(t, "2024-03", body.Data.Series[0].Period)
	require.NotNil(t, body.Data.Series[0].Value)
	assert.InDelta(t, 128, *body.Data.Series[0].Value, 1e-9)
}

func TestMeasureCacheRoundTrip(t *testing.T) {
	f := newFixture(t, true)

	w := doJSON(t, f.router, http.MethodPost, "/v1/measures/net_revenue_gbp/evaluate", "{}")
	require.Equal(t, http.StatusOK, w.Code)
	first := w.Body.String()
	require.Len(t, f.redis.Keys(), 1)

	w = doJSON(t, f.router, http.MethodPost, "/v1/measures/net_revenue_gbp/evaluate", "{}")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, first, w.Body.String())

	// A different filter misses the cache and writes a second entry.
	w = doJSON(t, f.router, http.MethodPost, "/v1/measures/net_revenue_gbp/evaluate",
		`{"shops": ["amazon_uk"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.redis.Keys(), 2)
}

func TestRefreshEndpointPublishesAndReloads(t *testing.T) {
	f := newFixture(t, false)

	w := doJSON(t, f.router, http.MethodPost, "/v1/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, f.router, http.MethodGet, "/v1/rules?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []warehouse.SKURuleRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data)

	w = doJSON(t, f.router, http.MethodGet, "/v1/quality/missing", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestScheduledRefreshReloadsServedSnapshot(t *testing.T) {
	f := newFixture(t, false)

	w := doJSON(t, f.router, http.MethodPost, "/v1/measures/net_revenue_gbp/evaluate", "{}")
	require.Equal(t, http.StatusOK, w.Code)

	var before struct {
		Data struct {
			Value *float64 `json:"value"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))
	require.NotNil(t, before.Data.Value)
	require.InDelta(t, 128, *before.Data.Value, 1e-9)

	// A new order lands in the warehouse after the server started.
	newOrder := warehouse.OrderRow{
		BossOrderID: "B9", CustomerID: strPtr("C3"), OrderDate: day("2024-03-09"),
		OrderTotalGBP: 1000, Shop: "amazon_uk", Brand: "XYZ", Company: "Wolfson",
		ShippingCountry: "GB", PaymentMethod: strPtr("card"), CampaignType: strPtr("Email"),
	}
	require.NoError(t, f.db.Create(&newOrder).Error)

	f.cfg.Schedule = config.ScheduleConfig{RefreshInterval: time.Hour}
	sched := scheduler.New(scheduler.Param{
		Cfg:    f.cfg,
		Log:    zap.NewNop(),
		Svc:    f.svc,
		Repo:   f.repo,
		Clock:  clock.SystemClock{},
		Reload: f.srv,
	})
	sched.Tick(context.Background())

	latest, err := f.repo.LatestCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)

	// The measure plane now answers from the refreshed snapshot.
	w = doJSON(t, f.router, http.MethodPost, "/v1/measures/net_revenue_gbp/evaluate", "{}")
	require.Equal(t, http.StatusOK, w.Code)

	var after struct {
		Data struct {
			Value *float64 `json:"value"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	require.NotNil(t, after.Data.Value)
	assert.InDelta(t, 1128, *after.Data.Value, 1e-9)

	f.srv.mu.RLock()
	served := f.srv.cycleID
	f.srv.mu.RUnlock()
	assert.Equal(t, int64(latest.ID), served)
}

func TestListTargetsEmptyBeforeFirstCycle(t *testing.T) {
	f := newFixture(t, false)

	w := doJSON(t, f.router, http.MethodGet, "/v1/rfm/targets", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []warehouse.RFMTargetRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Data)
}
