package stripe

import (
	"github.com/smallbiznis/dojo/internal/audit/masking"
	"github.com/smallbiznis/dojo/internal/cache"
	"github.com/smallbiznis/dojo/internal/config"
	obsmetrics "github.com/smallbiznis/dojo/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewGateway(p Params) paymentdomain.Gateway {
	if p.Cfg.Stripe.SecretKey == "" {
		p.Log.Warn("STRIPE_SECRET_KEY is empty, gateway calls will be rejected")
	} else {
		p.Log.Info("stripe gateway configured", zap.String("secret_key", masking.MaskSecret(p.Cfg.Stripe.SecretKey)))
	}
	gw := New(Config{
		SecretKey: p.Cfg.Stripe.SecretKey,
		Timeout:   p.Cfg.Stripe.Timeout,
	}, p.Log, p.Metrics)
	return cache.NewPriceCachingGateway(gw, p.Cfg.Stripe.PriceCacheSize, p.Cfg.Stripe.PriceCacheTTL)
}
