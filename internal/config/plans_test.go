package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadPlansFallsBackToDefaults(t *testing.T) {
	plans, err := LoadPlans(filepath.Join(t.TempDir(), "missing.yml"), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultPlans(), plans)
}

func TestLoadPlansReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yml")
	body := `plans:
  - id: basic
    label: Basic
    monthly_amount: 1450
    price_id: price_1
    product_id: prod_1
  - id: full
    label: Full
    monthly_amount: 1950
    price_id: price_2
    product_id: prod_2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	plans, err := LoadPlans(path, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "basic", plans[0].ID)
	assert.Equal(t, int64(1450), plans[0].MonthlyAmount)
	assert.Equal(t, "price_2", plans[1].PriceID)
}

func TestLoadPlansRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yml")
	body := `plans:
  - id: basic
  - id: basic
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := LoadPlans(path, zap.NewNop())
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Empty(t, splitList(""))
}
