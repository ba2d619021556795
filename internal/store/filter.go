package store

import "time"

// FilterContext is the intersection of an inclusive order-date range and
// per-dimension membership predicates. Nil/empty fields mean "no filter on
// this axis".
type FilterContext struct {
	From *time.Time
	To   *time.Time

	Shops      []string
	Brands     []string
	Companies  []string
	Countries  []string
	Payments   []string
	Campaigns  []string
	HasCoupon  *bool
	CustomerID string
}

// Filter returns the fact rows matching the context, in snapshot order so
// repeated evaluation over an unchanged Store is deterministic.
func (s *Store) Filter(ctx FilterContext) []Order {
	shops := stringSet(ctx.Shops)
	brands := stringSet(ctx.Brands)
	companies := stringSet(ctx.Companies)
	countries := stringSet(ctx.Countries)
	payments := stringSet(ctx.Payments)
	campaigns := stringSet(ctx.Campaigns)

	var out []Order
	for _, o := range s.orders {
		if ctx.From != nil && o.OrderDate.Before(ctx.From.UTC().Truncate(24*time.Hour)) {
			continue
		}
		if ctx.To != nil && o.OrderDate.After(ctx.To.UTC().Truncate(24*time.Hour)) {
			continue
		}
		if !member(shops, o.Shop) || !member(brands, o.Brand) ||
			!member(companies, o.Company) || !member(countries, o.ShippingCountry) ||
			!member(payments, o.PaymentMethod) || !member(campaigns, o.CampaignType) {
			continue
		}
		if ctx.HasCoupon != nil && o.HasCoupon != *ctx.HasCoupon {
			continue
		}
		if ctx.CustomerID != "" && o.CustomerID != ctx.CustomerID {
			continue
		}
		out = append(out, o)
	}
	return out
}

func member(set map[string]struct{}, value string) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[value]
	return ok
}
