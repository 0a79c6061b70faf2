package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/dojo/internal/config"
)

const (
	keyCheckoutUser     = "dojo:checkout:user:%s"
	keyCustomerLinkLock = "dojo:customer:lock:%s"

	defaultCustomerLockTTL = 15 * time.Second
)

// CheckoutLimiter guards checkout creation per user. A nil limiter allows
// everything and hands out no-op locks.
type CheckoutLimiter struct {
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewCheckoutLimiter(cfg config.Config, client *redis.Client) *CheckoutLimiter {
	if client == nil {
		return nil
	}
	rate := cfg.Billing.CheckoutRate
	if rate <= 0 {
		rate = 0.2
	}
	burst := cfg.Billing.CheckoutBurst
	if burst <= 0 {
		burst = 5
	}
	return &CheckoutLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    rate,
		burst:   burst,
		lockTTL: defaultCustomerLockTTL,
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *CheckoutLimiter) AllowUser(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutUser, strings.TrimSpace(userID)), l.rate, l.burst)
}

// TryLockCustomer serializes billing customer creation for one user. The
// returned token must be passed to ReleaseCustomer.
func (l *CheckoutLimiter) TryLockCustomer(ctx context.Context, userID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyCustomerLinkLock, strings.TrimSpace(userID)), l.lockTTL)
}

func (l *CheckoutLimiter) ReleaseCustomer(ctx context.Context, userID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyCustomerLinkLock, strings.TrimSpace(userID)), token)
}
