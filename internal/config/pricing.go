package config

// Plan is one entry of the static subscription plan catalog.
type Plan struct {
	ID            string
	Title         string
	Description   string
	StripePriceID string
	LimitStores   int
	LimitProducts int
}

// PlanCatalog maps plan identifiers to their limits and processor price ids.
// Built once at startup; the resolver receives it explicitly.
type PlanCatalog struct {
	Free Plan
	Pro  Plan
}

func DefaultPlanCatalog(proPriceID string) *PlanCatalog {
	return &PlanCatalog{
		Free: Plan{
			ID:            "free",
			Title:         "Free",
			Description:   "Perfect for small, personal projects",
			LimitStores:   1,
			LimitProducts: 10,
		},
		Pro: Plan{
			ID:            "pro",
			Title:         "Pro",
			Description:   "Ideal for professional creators",
			StripePriceID: proPriceID,
			LimitStores:   3,
			LimitProducts: 25,
		},
	}
}

// Plans returns the catalog in display order, free plan first.
func (c *PlanCatalog) Plans() []Plan {
	return []Plan{c.Free, c.Pro}
}

// FindByPriceID returns the plan whose processor price id matches, or nil.
// An empty price id never matches, so free-plan users do not resolve here.
func (c *PlanCatalog) FindByPriceID(priceID string) *Plan {
	if priceID == "" {
		return nil
	}
	for _, plan := range c.Plans() {
		if plan.StripePriceID == priceID {
			p := plan
			return &p
		}
	}
	return nil
}
