package rfm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfsonlabs/commercelens/internal/config"
	"github.com/wolfsonlabs/commercelens/internal/store"
	"go.uber.org/zap"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dims() store.Dimensions {
	return store.Dimensions{
		Date:     []time.Time{day("2024-03-01")},
		Shop:     []string{"amazon_uk"},
		Brand:    []string{"XYZ"},
		Company:  []string{"Wolfson"},
		Country:  []string{"GB"},
		Payment:  []string{"card"},
		Campaign: []string{"Email"},
	}
}

func order(id, customer, date string, total float64) store.Order {
	return store.Order{
		BossOrderID:     id,
		CustomerID:      customer,
		OrderDate:       day(date),
		OrderTotal:      total,
		Shop:            "amazon_uk",
		Brand:           "XYZ",
		Company:         "Wolfson",
		ShippingCountry: "GB",
		PaymentMethod:   "card",
		CampaignType:    "Email",
	}
}

func mustStore(t *testing.T, orders ...store.Order) *store.Store {
	t.Helper()
	s, err := store.Load(orders, nil, dims())
	require.NoError(t, err)
	return s
}

func testEngine(cfg config.RFMConfig) *Engine {
	if cfg.Bins == 0 {
		cfg.Bins = 5
	}
	if cfg.FallbackSegment == "" {
		cfg.FallbackSegment = "Others"
	}
	if len(cfg.SegmentRules) == 0 {
		cfg.SegmentRules = config.DefaultSegmentRules()
	}
	return New(cfg, zap.NewNop())
}

func TestRecencyFrequencyMonetary(t *testing.T) {
	s := mustStore(t,
		order("B1", "C1", "2024-03-01", 50),
		order("B2", "C1", "2024-03-05", 70),
		order("B3", "C2", "2024-03-05", 10),
	)

	res := testEngine(config.RFMConfig{}).Run(s, time.Time{})
	require.Len(t, res.Customers, 2)

	// Snapshot defaults to max order date + 1 day.
	assert.Equal(t, day("2024-03-06"), res.SnapshotDate)

	c1 := res.Customers[0]
	c2 := res.Customers[1]
	assert.Equal(t, "C1", c1.CustomerID)
	assert.Equal(t, 2, c1.Frequency)
	assert.InDelta(t, 120, c1.Monetary, 1e-9)
	assert.Equal(t, 1, c1.RecencyDays)
	assert.Equal(t, day("2024-03-05"), c1.LastOrderDate)

	assert.Equal(t, "C2", c2.CustomerID)
	assert.Equal(t, 1, c2.Frequency)
	assert.InDelta(t, 10, c2.Monetary, 1e-9)
	assert.Equal(t, 1, c2.RecencyDays)
}

func TestUnknownCustomersCountedNotSilentlyDropped(t *testing.T) {
	s := mustStore(t,
		order("B1", "C1", "2024-03-01", 50),
		order("B2", "", "2024-03-02", 70),
		order("B3", "", "2024-03-03", 10),
	)

	res := testEngine(config.RFMConfig{}).Run(s, time.Time{})
	assert.Len(t, res.Customers, 1)
	assert.Equal(t, 2, res.UnknownCustomers)
}

func TestCutoffYearBoundsScoringSet(t *testing.T) {
	s := mustStore(t,
		order("B1", "C1", "2022-06-01", 500),
		order("B2", "C1", "2024-03-01", 50),
		order("B3", "C2", "2022-01-01", 10),
	)

	res := testEngine(config.RFMConfig{CutoffYear: 2023}).Run(s, time.Time{})
	require.Len(t, res.Customers, 1)

	// Frequency counts only orders in the filtered fact set.
	assert.Equal(t, 1, res.Customers[0].Frequency)
	assert.InDelta(t, 50, res.Customers[0].Monetary, 1e-9)
}

func TestCutoffExcludingAllOrdersLeavesSnapshotZero(t *testing.T) {
	s := mustStore(t,
		order("B1", "C1", "2022-06-01", 500),
		order("B2", "C2", "2022-01-01", 10),
	)

	res := testEngine(config.RFMConfig{CutoffYear: 2025}).Run(s, time.Time{})
	assert.Empty(t, res.Customers)
	assert.Empty(t, res.Targets)
	assert.True(t, res.SnapshotDate.IsZero())
}

func TestSegmentCountsSumToKnownCustomers(t *testing.T) {
	orders := []store.Order{
		order("B1", "C1", "2024-03-01", 500),
		order("B2", "C1", "2024-03-05", 100),
		order("B3", "C2", "2024-01-01", 10),
		order("B4", "C3", "2023-06-01", 250),
		order("B5", "C4", "2024-02-20", 75),
		order("B6", "", "2024-02-21", 33),
	}
	s := mustStore(t, orders...)

	res := testEngine(config.RFMConfig{}).Run(s, time.Time{})
	bySegment := map[string]int{}
	for _, c := range res.Customers {
		require.NotEmpty(t, c.Segment)
		bySegment[c.Segment]++
	}
	total := 0
	for _, n := range bySegment {
		total += n
	}
	assert.Equal(t, 4, total)
}

func TestSegmentRuleTableFirstMatchWins(t *testing.T) {
	rules := []config.SegmentRule{
		{Label: "Top", MinR: 5, MinF: 5, MinM: 5},
		{Label: "Everyone", MinR: 1, MinF: 1, MinM: 1},
	}
	c := Customer{RScore: 5, FScore: 5, MScore: 5}
	assert.Equal(t, "Top", matchSegment(rules, "Others", c))

	c = Customer{RScore: 5, FScore: 4, MScore: 5}
	assert.Equal(t, "Everyone", matchSegment(rules, "Others", c))

	c = Customer{RScore: 0, FScore: 0, MScore: 0}
	assert.Equal(t, "Others", matchSegment(rules, "Others", c))
}

func TestTargetListSortedByMonetaryThenRecency(t *testing.T) {
	rules := []config.SegmentRule{{Label: "Target", MinR: 1, MinF: 1, MinM: 1}}
	cfg := config.RFMConfig{
		Bins:            5,
		SegmentRules:    rules,
		FallbackSegment: "Others",
		TargetSegments:  []string{"Target"},
	}

	s := mustStore(t,
		order("B1", "C1", "2024-03-01", 100),
		order("B2", "C2", "2024-03-04", 100),
		order("B3", "C3", "2024-03-02", 900),
	)

	res := New(cfg, zap.NewNop()).Run(s, time.Time{})
	require.Len(t, res.Targets, 3)

	assert.Equal(t, "C3", res.Targets[0].CustomerID) // highest monetary
	assert.Equal(t, "C2", res.Targets[1].CustomerID) // tie on monetary, lower recency
	assert.Equal(t, "C1", res.Targets[2].CustomerID)
}

func TestQuantileScoresTieRule(t *testing.T) {
	// All equal values land in the same bin even when bins end up unequal.
	scores := quantileScores([]float64{1, 2, 2, 2, 3}, 5)
	assert.Equal(t, scores[1], scores[2])
	assert.Equal(t, scores[2], scores[3])
	assert.Less(t, scores[0], scores[1])
	assert.Greater(t, scores[4], scores[3])
}

func TestQuantileScoresSpread(t *testing.T) {
	scores := quantileScores([]float64{10, 20, 30, 40, 50}, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, scores)

	// Constant population: everyone shares bin 1.
	scores = quantileScores([]float64{7, 7, 7, 7}, 5)
	assert.Equal(t, []int{1, 1, 1, 1}, scores)
}

func TestRecencyScoreInverted(t *testing.T) {
	s := mustStore(t,
		order("B1", "C1", "2024-03-05", 100), // most recent
		order("B2", "C2", "2024-02-01", 100),
		order("B3", "C3", "2024-01-01", 100),
		order("B4", "C4", "2023-12-01", 100),
		order("B5", "C5", "2023-11-01", 100),
	)

	res := testEngine(config.RFMConfig{}).Run(s, time.Time{})
	byID := map[string]Customer{}
	for _, c := range res.Customers {
		byID[c.CustomerID] = c
	}
	assert.Equal(t, 5, byID["C1"].RScore)
	assert.Equal(t, 1, byID["C5"].RScore)
}
