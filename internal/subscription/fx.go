package subscription

import (
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/smallbiznis/dojo/internal/subscription/domain"
	"github.com/smallbiznis/dojo/internal/subscription/repository"
	"github.com/smallbiznis/dojo/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(payments paymentdomain.Service) domain.PlanSource { return payments }),
	fx.Provide(service.NewService),
)
