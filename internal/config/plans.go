package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanConfig is one purchasable plan as declared in plans.yml.
type PlanConfig struct {
	ID            string `mapstructure:"id"`
	Label         string `mapstructure:"label"`
	MonthlyAmount int64  `mapstructure:"monthly_amount"`
	PriceID       string `mapstructure:"price_id"`
	ProductID     string `mapstructure:"product_id"`
}

func DefaultPlans() []PlanConfig {
	return []PlanConfig{
		{ID: "basic", Label: "Plan Básico", MonthlyAmount: 145000, PriceID: "price_basic_monthly", ProductID: "prod_basic"},
		{ID: "full", Label: "Plan Completo", MonthlyAmount: 195000, PriceID: "price_full_monthly", ProductID: "prod_full"},
		{ID: "kids", Label: "Plan Infantil", MonthlyAmount: 120000, PriceID: "price_kids_monthly", ProductID: "prod_kids"},
	}
}

// LoadPlans reads the plan catalog file once. The catalog is immutable for the
// lifetime of the process, so on-disk edits are only reported.
func LoadPlans(path string, log *zap.Logger) ([]PlanConfig, error) {
	if log == nil {
		log = zap.NewNop()
	}

	v := viper.New()
	path = strings.TrimSpace(path)
	if path == "" {
		path = "plans.yml"
	}
	v.SetConfigFile(path)
	configType := strings.TrimPrefix(filepath.Ext(path), ".")
	if configType == "" {
		configType = "yml"
	}
	v.SetConfigType(configType)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			log.Info("plan catalog file not found, using defaults", zap.String("path", path))
			return DefaultPlans(), nil
		}
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}

	var plans []PlanConfig
	if err := v.UnmarshalKey("plans", &plans); err != nil {
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Warn("plan catalog changed on disk, restart to apply",
			zap.String("file", e.Name),
			zap.String("op", e.Op.String()),
		)
	})
	v.WatchConfig()

	log.Info("plan catalog loaded", zap.String("path", path), zap.Int("plans", len(plans)))
	return plans, nil
}

func validatePlans(plans []PlanConfig) error {
	if len(plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(plans))
	for _, p := range plans {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return errors.New("plan id is required")
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate plan id %q", id)
		}
		seen[id] = struct{}{}
		if p.MonthlyAmount < 0 {
			return fmt.Errorf("plan %q has negative monthly_amount", id)
		}
	}
	return nil
}
