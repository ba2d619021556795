// Package rfm scores customers on Recency, Frequency and Monetary value and
// assigns segments through the configured rule table.
package rfm

import (
	"sort"
	"time"

	"github.com/wolfsonlabs/commercelens/internal/config"
	"github.com/wolfsonlabs/commercelens/internal/store"
	"go.uber.org/zap"
)

// Customer is one scored customer row.
type Customer struct {
	CustomerID    string
	RecencyDays   int
	Frequency     int
	Monetary      float64
	LastOrderDate time.Time
	RScore        int
	FScore        int
	MScore        int
	Segment       string
}

// Result is the full segmentation output for one refresh cycle.
type Result struct {
	SnapshotDate time.Time
	Customers    []Customer
	Targets      []Customer

	// UnknownCustomers counts orders dropped for having no customer_id.
	// Reported, never silently discarded.
	UnknownCustomers int
}

type Engine struct {
	cfg config.RFMConfig
	log *zap.Logger
}

func New(cfg config.RFMConfig, log *zap.Logger) *Engine {
	return &Engine{cfg: cfg, log: log.Named("rfm.engine")}
}

// Run scores every known customer in the snapshot. Only orders from the
// configured cutoff year onward count. A zero snapshotDate defaults to the
// max order date plus one day.
func (e *Engine) Run(s *store.Store, snapshotDate time.Time) Result {
	orders := s.Orders()

	type acc struct {
		frequency int
		monetary  float64
		lastOrder time.Time
	}
	byCustomer := make(map[string]*acc)
	unknown := 0
	var maxDate time.Time

	for _, o := range orders {
		if e.cfg.CutoffYear > 0 && o.OrderDate.Year() < e.cfg.CutoffYear {
			continue
		}
		if o.OrderDate.After(maxDate) {
			maxDate = o.OrderDate
		}
		if o.CustomerID == "" {
			unknown++
			continue
		}
		a := byCustomer[o.CustomerID]
		if a == nil {
			a = &acc{}
			byCustomer[o.CustomerID] = a
		}
		a.frequency++
		a.monetary += o.NetRevenue()
		if o.OrderDate.After(a.lastOrder) {
			a.lastOrder = o.OrderDate
		}
	}

	// With no orders past the cutoff there is no date to default from; the
	// snapshot date stays zero and nothing is scored.
	if snapshotDate.IsZero() && !maxDate.IsZero() {
		snapshotDate = maxDate.AddDate(0, 0, 1)
	}
	if !snapshotDate.IsZero() {
		snapshotDate = snapshotDate.UTC().Truncate(24 * time.Hour)
	}

	customers := make([]Customer, 0, len(byCustomer))
	for id, a := range byCustomer {
		customers = append(customers, Customer{
			CustomerID:    id,
			RecencyDays:   int(snapshotDate.Sub(a.lastOrder).Hours() / 24),
			Frequency:     a.frequency,
			Monetary:      a.monetary,
			LastOrderDate: a.lastOrder,
		})
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].CustomerID < customers[j].CustomerID })

	e.score(customers)
	e.assignSegments(customers)

	res := Result{
		SnapshotDate:     snapshotDate,
		Customers:        customers,
		Targets:          e.targetList(customers),
		UnknownCustomers: unknown,
	}
	e.log.Info("rfm segmentation complete",
		zap.Int("customers", len(customers)),
		zap.Int("unknown_customers", unknown),
		zap.Time("snapshot_date", snapshotDate),
	)
	return res
}

func (e *Engine) score(customers []Customer) {
	bins := e.cfg.Bins
	if bins <= 0 {
		bins = 5
	}

	recency := make([]float64, len(customers))
	frequency := make([]float64, len(customers))
	monetary := make([]float64, len(customers))
	for i, c := range customers {
		recency[i] = float64(c.RecencyDays)
		frequency[i] = float64(c.Frequency)
		monetary[i] = float64(c.Monetary)
	}

	rScore := quantileScores(recency, bins)
	fScore := quantileScores(frequency, bins)
	mScore := quantileScores(monetary, bins)

	for i := range customers {
		// Lower recency is better, so the recency score is inverted.
		customers[i].RScore = bins + 1 - rScore[i]
		customers[i].FScore = fScore[i]
		customers[i].MScore = mScore[i]
	}
}

func (e *Engine) assignSegments(customers []Customer) {
	for i, c := range customers {
		customers[i].Segment = matchSegment(e.cfg.SegmentRules, e.cfg.FallbackSegment, c)
	}
}

func matchSegment(rules []config.SegmentRule, fallback string, c Customer) string {
	for _, r := range rules {
		if inRange(c.RScore, r.MinR, r.MaxR) &&
			inRange(c.FScore, r.MinF, r.MaxF) &&
			inRange(c.MScore, r.MinM, r.MaxM) {
			return r.Label
		}
	}
	return fallback
}

func inRange(score, min, max int) bool {
	if score < min {
		return false
	}
	if max > 0 && score > max {
		return false
	}
	return true
}

func (e *Engine) targetList(customers []Customer) []Customer {
	wanted := make(map[string]struct{}, len(e.cfg.TargetSegments))
	for _, s := range e.cfg.TargetSegments {
		wanted[s] = struct{}{}
	}

	var targets []Customer
	for _, c := range customers {
		if _, ok := wanted[c.Segment]; ok {
			targets = append(targets, c)
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Monetary != targets[j].Monetary {
			return targets[i].Monetary > targets[j].Monetary
		}
		if targets[i].RecencyDays != targets[j].RecencyDays {
			return targets[i].RecencyDays < targets[j].RecencyDays
		}
		return targets[i].CustomerID < targets[j].CustomerID
	})
	return targets
}
