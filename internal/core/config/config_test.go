package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
app:
  http:
    port: 9090
db:
  driver: sqlite
  dsn: test.db
stripe:
  secretKey: sk_test_file
  webhookSecret: whsec_file
  prices:
    annual: price_a
    Lifetime: price_l
`

func writeConfig(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o600))
	return p
}

func TestLoadFileAndDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	c, err := load(writeConfig(t))
	require.NoError(t, err)

	assert.Equal(t, 9090, c.App.HTTP.Port)
	assert.Equal(t, 8081, c.App.Admin.Port)
	assert.Equal(t, "sqlite", c.DB.Driver)
	assert.Equal(t, "test.db", c.DB.DSN)
	assert.Equal(t, "tl_token", c.JWT.CookieName)
	assert.Equal(t, 10, c.Stripe.TimeoutSec)
	assert.Equal(t, "sk_test_file", c.Stripe.SecretKey)
	assert.Equal(t, "price_a", c.Stripe.PriceFor("ANNUAL"))
	assert.Equal(t, "price_l", c.Stripe.PriceFor("lifetime"))
	assert.Empty(t, c.Stripe.PriceFor("supporter"))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/tl")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_env")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("APP_APP_HTTP_PORT", "7070")

	c, err := load(writeConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "postgres", c.DB.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/tl", c.DB.DSN)
	assert.Equal(t, "sk_test_env", c.Stripe.SecretKey)
	assert.Equal(t, "whsec_env", c.Stripe.WebhookSecret)
	assert.Equal(t, 7070, c.App.HTTP.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
