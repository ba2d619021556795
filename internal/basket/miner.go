// Package basket mines SKU association rules from order baskets and builds
// the per-SKU summary.
package basket

import (
	"sort"

	"github.com/wolfsonlabs/commercelens/internal/config"
	"github.com/wolfsonlabs/commercelens/internal/store"
	"go.uber.org/zap"
)

// Rule is one directed association rule between two SKUs.
type Rule struct {
	Antecedent string
	Consequent string
	Support    float64
	Confidence float64
	Lift       float64
	PairCount  int
}

// SKUSummary aggregates one SKU across all baskets: how many distinct orders
// contained it and how much line revenue it carried.
type SKUSummary struct {
	SKU          string
	OrderCount   int
	RevenueAlloc float64
}

type Result struct {
	Rules   []Rule
	Summary []SKUSummary

	// TotalBaskets is the basket population used for support; oversized
	// baskets are excluded from it and counted separately, never silently.
	TotalBaskets     int
	OversizedBaskets int
}

type Miner struct {
	cfg config.BasketConfig
	log *zap.Logger
}

func New(cfg config.BasketConfig, log *zap.Logger) *Miner {
	return &Miner{cfg: cfg, log: log.Named("basket.miner")}
}

// Run enumerates unique unordered SKU pairs per basket and derives support,
// confidence and lift. Baskets above the configured SKU cap are flagged and
// excluded from pair enumeration; pair enumeration is O(Σ basket_size²), so
// the cap bounds pathological orders.
func (m *Miner) Run(s *store.Store) Result {
	skuCap := m.cfg.MaxBasketSKUs
	if skuCap <= 0 {
		skuCap = 50
	}

	skuCount := make(map[string]int)
	pairCount := make(map[[2]string]int)
	summary := make(map[string]*SKUSummary)

	total, oversized := 0, 0
	for _, lines := range s.Baskets() {
		skus := uniqueSKUs(lines)

		for _, l := range lines {
			sum := summary[l.SKU]
			if sum == nil {
				sum = &SKUSummary{SKU: l.SKU}
				summary[l.SKU] = sum
			}
			sum.RevenueAlloc += l.LineValue
		}
		for _, sku := range skus {
			summary[sku].OrderCount++
		}

		if len(skus) > skuCap {
			oversized++
			continue
		}
		total++

		for _, sku := range skus {
			skuCount[sku]++
		}
		for i := 0; i < len(skus); i++ {
			for j := i + 1; j < len(skus); j++ {
				pairCount[[2]string{skus[i], skus[j]}]++
			}
		}
	}

	res := Result{
		Rules:            m.rules(skuCount, pairCount, total),
		Summary:          sortedSummary(summary),
		TotalBaskets:     total,
		OversizedBaskets: oversized,
	}
	if oversized > 0 {
		m.log.Warn("oversized baskets excluded from pair enumeration",
			zap.Int("excluded", oversized),
			zap.Int("sku_cap", skuCap),
		)
	}
	return res
}

func (m *Miner) rules(skuCount map[string]int, pairCount map[[2]string]int, total int) []Rule {
	if total == 0 {
		return nil
	}

	var rules []Rule
	for pair, count := range pairCount {
		if count < m.cfg.MinPairCount {
			continue
		}
		pairSupport := float64(count) / float64(total)
		if pairSupport < m.cfg.MinSupport {
			continue
		}
		// Both directions qualify; confidence and lift differ per direction.
		rules = append(rules,
			directedRule(pair[0], pair[1], count, skuCount, total),
			directedRule(pair[1], pair[0], count, skuCount, total),
		)
	}

	sort.Slice(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Lift != b.Lift {
			return a.Lift > b.Lift
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.PairCount != b.PairCount {
			return a.PairCount > b.PairCount
		}
		if a.Antecedent != b.Antecedent {
			return a.Antecedent < b.Antecedent
		}
		return a.Consequent < b.Consequent
	})

	if m.cfg.TopN > 0 && len(rules) > m.cfg.TopN {
		rules = rules[:m.cfg.TopN]
	}
	return rules
}

func directedRule(antecedent, consequent string, pairs int, skuCount map[string]int, total int) Rule {
	support := float64(pairs) / float64(total)
	confidence := float64(pairs) / float64(skuCount[antecedent])
	consequentSupport := float64(skuCount[consequent]) / float64(total)
	return Rule{
		Antecedent: antecedent,
		Consequent: consequent,
		Support:    support,
		Confidence: confidence,
		Lift:       confidence / consequentSupport,
		PairCount:  pairs,
	}
}

// uniqueSKUs returns the distinct SKUs of a basket in sorted order. A SKU
// appearing on several lines of the same order contributes once.
func uniqueSKUs(lines []store.OrderLine) []string {
	set := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		set[l.SKU] = struct{}{}
	}
	skus := make([]string, 0, len(set))
	for sku := range set {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

func sortedSummary(summary map[string]*SKUSummary) []SKUSummary {
	out := make([]SKUSummary, 0, len(summary))
	for _, s := range summary {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}
