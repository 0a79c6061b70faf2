package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/dojo/internal/config"
)

var ErrUnknownPlan = errors.New("unknown_plan")

// Plan is a purchasable membership plan.
type Plan struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	MonthlyAmount int64  `json:"monthly_amount"`
	PriceID       string `json:"price_id"`
	ProductID     string `json:"product_id"`
}

// Catalog is a read-only registry of plans built once at startup.
type Catalog struct {
	plans   map[string]Plan
	byPrice map[string]string
	order   []string
}

func NewCatalog(entries []config.PlanConfig) *Catalog {
	c := &Catalog{
		plans:   make(map[string]Plan, len(entries)),
		byPrice: make(map[string]string, len(entries)),
		order:   make([]string, 0, len(entries)),
	}
	for _, entry := range entries {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			continue
		}
		if _, exists := c.plans[id]; exists {
			continue
		}
		p := Plan{
			ID:            id,
			Label:         strings.TrimSpace(entry.Label),
			MonthlyAmount: entry.MonthlyAmount,
			PriceID:       strings.TrimSpace(entry.PriceID),
			ProductID:     strings.TrimSpace(entry.ProductID),
		}
		if p.Label == "" {
			p.Label = id
		}
		c.plans[id] = p
		c.order = append(c.order, id)
		if p.PriceID != "" {
			c.byPrice[p.PriceID] = id
		}
	}
	return c
}

// Lookup returns the plan with the given id.
func (c *Catalog) Lookup(id string) (Plan, bool) {
	if c == nil {
		return Plan{}, false
	}
	p, ok := c.plans[strings.TrimSpace(id)]
	return p, ok
}

// Require is Lookup for callers that report a missing plan as ErrUnknownPlan.
func (c *Catalog) Require(id string) (Plan, error) {
	p, ok := c.Lookup(id)
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, strings.TrimSpace(id))
	}
	return p, nil
}

// Has reports whether id is a catalog key.
func (c *Catalog) Has(id string) bool {
	_, ok := c.Lookup(id)
	return ok
}

// ByPriceID returns the plan whose gateway price reference matches priceID.
func (c *Catalog) ByPriceID(priceID string) (Plan, bool) {
	if c == nil {
		return Plan{}, false
	}
	id, ok := c.byPrice[strings.TrimSpace(priceID)]
	if !ok {
		return Plan{}, false
	}
	return c.plans[id], true
}

// List returns the plans in declaration order.
func (c *Catalog) List() []Plan {
	if c == nil {
		return nil
	}
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}

// IDs returns the sorted plan ids.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}
