package migration

import (
	"strings"

	auditdomain "github.com/smallbiznis/dojo/internal/audit/domain"
	"github.com/smallbiznis/dojo/internal/config"
	customerdomain "github.com/smallbiznis/dojo/internal/customer/domain"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/dojo/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run applies the embedded SQL on postgres. Other dialects are development
// setups and get the schema from the gorm models instead.
func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if strings.EqualFold(strings.TrimSpace(cfg.DBType), "postgres") {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		version, err := RunMigrations(sqlDB)
		if err != nil {
			return err
		}
		log.Info("database migrations applied", zap.Uint("version", version))
		return nil
	}

	log.Info("auto-migrating schema", zap.String("type", cfg.DBType))
	return conn.AutoMigrate(Models()...)
}

// Models lists the tables owned by the service.
func Models() []any {
	return []any{
		&paymentdomain.PaymentRecord{},
		&customerdomain.Link{},
		&subscriptiondomain.Override{},
		&auditdomain.AuditLog{},
	}
}
