package auth

import (
	"github.com/smallbiznis/dojo/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("auth.verifier",
	fx.Provide(provideVerifier),
)

func provideVerifier(cfg config.Config, log *zap.Logger) *Verifier {
	if cfg.AuthJWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET is empty, every authenticated request will be rejected")
	}
	return NewVerifier(cfg.AuthJWTSecret)
}
