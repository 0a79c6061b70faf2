package plan

import (
	"github.com/smallbiznis/dojo/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("plan.catalog",
	fx.Provide(provideCatalog),
)

func provideCatalog(cfg config.Config, log *zap.Logger) (*Catalog, error) {
	entries, err := config.LoadPlans(cfg.Billing.PlanCatalogPath, log.Named("plan.catalog"))
	if err != nil {
		return nil, err
	}
	return NewCatalog(entries), nil
}
