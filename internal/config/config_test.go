package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Defaults, cfg)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MSG_QUEUE_URL", "amqp://shop:pw@rabbit:5672/")
	t.Setenv("EXCHANGE_NAME", "STORE_X")
	t.Setenv("SHOPPING_SERVICE", "shop_key")
	t.Setenv("CUSTOMER_SERVICE", "cust_key")
	t.Setenv("BROKER_CONNECT_ATTEMPTS", "3")
	t.Setenv("BROKER_CONNECT_DELAY", "250ms")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, BrokerConfig{
		URL:             "amqp://shop:pw@rabbit:5672/",
		Exchange:        "STORE_X",
		ServiceKey:      "shop_key",
		CustomerKey:     "cust_key",
		ConnectAttempts: 3,
		ConnectDelay:    250 * time.Millisecond,
	}, cfg.Broker)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
broker:
  exchange: FROM_FILE
store:
  backend: postgres
  database_url: postgres://localhost/shop
`), 0o600))

	t.Run("file values apply", func(t *testing.T) {
		cfg, err := Load(viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, "FROM_FILE", cfg.Broker.Exchange)
		assert.Equal(t, BackendPostgres, cfg.Store.Backend)
		assert.Equal(t, "postgres://localhost/shop", cfg.Store.DatabaseURL)
		assert.Equal(t, Defaults.Broker.URL, cfg.Broker.URL)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("EXCHANGE_NAME", "FROM_ENV")
		cfg, err := Load(viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, "FROM_ENV", cfg.Broker.Exchange)
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestBindServeFlags(t *testing.T) {
	t.Setenv("EXCHANGE_NAME", "FROM_ENV")

	cmd := &cobra.Command{Use: "serve"}
	v := viper.New()
	BindServeFlags(cmd, v)

	require.NoError(t, cmd.Flags().Parse([]string{
		"--broker-url", "amqp://flag/",
		"--exchange", "FROM_FLAG",
		"--addr", ":7000",
		"--store", "postgres",
		"--database-url", "postgres://flag/shop",
		"--service-key", "flag_key",
		"--log-format", "json",
	}))

	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "amqp://flag/", cfg.Broker.URL)
	assert.Equal(t, "FROM_FLAG", cfg.Broker.Exchange)
	assert.Equal(t, "flag_key", cfg.Broker.ServiceKey)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, StoreConfig{Backend: BackendPostgres, DatabaseURL: "postgres://flag/shop"}, cfg.Store)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Broker.URL = "" }},
		{"empty exchange", func(c *Config) { c.Broker.Exchange = "" }},
		{"empty service key", func(c *Config) { c.Broker.ServiceKey = "" }},
		{"zero attempts", func(c *Config) { c.Broker.ConnectAttempts = 0 }},
		{"negative delay", func(c *Config) { c.Broker.ConnectDelay = -time.Second }},
		{"postgres without url", func(c *Config) { c.Store.Backend = BackendPostgres }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }},
	}

	require.NoError(t, Defaults.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
