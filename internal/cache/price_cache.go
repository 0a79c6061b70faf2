package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
)

const (
	defaultPriceTTL  = 10 * time.Minute
	defaultPriceSize = 256
)

// PriceCachingGateway serves RetrievePrice from a bounded TTL cache. Every
// other gateway call goes straight through. Only successful lookups are
// cached so a transient failure or a missing price is retried next time.
type PriceCachingGateway struct {
	paymentdomain.Gateway
	prices *lru.LRU[string, paymentdomain.Price]
}

// NewPriceCachingGateway wraps next. Non-positive size or ttl fall back to the
// defaults.
func NewPriceCachingGateway(next paymentdomain.Gateway, size int, ttl time.Duration) *PriceCachingGateway {
	if size <= 0 {
		size = defaultPriceSize
	}
	if ttl <= 0 {
		ttl = defaultPriceTTL
	}
	return &PriceCachingGateway{
		Gateway: next,
		prices:  lru.NewLRU[string, paymentdomain.Price](size, nil, ttl),
	}
}

func (g *PriceCachingGateway) RetrievePrice(ctx context.Context, id string) (*paymentdomain.Price, error) {
	key := strings.TrimSpace(id)
	if price, ok := g.prices.Get(key); ok {
		return &price, nil
	}

	price, err := g.Gateway.RetrievePrice(ctx, id)
	if err != nil {
		return nil, err
	}
	if price != nil {
		g.prices.Add(key, *price)
	}
	return price, nil
}

// Len reports how many prices are cached.
func (g *PriceCachingGateway) Len() int {
	return g.prices.Len()
}

// Purge drops every cached price.
func (g *PriceCachingGateway) Purge() {
	g.prices.Purge()
}

var _ paymentdomain.Gateway = (*PriceCachingGateway)(nil)
