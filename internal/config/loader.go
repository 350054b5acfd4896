package config

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envNames maps config keys to the environment variables the service reads.
// The broker names are shared with the other store services.
var envNames = map[string]string{
	"broker.url":               "MSG_QUEUE_URL",
	"broker.exchange":          "EXCHANGE_NAME",
	"broker.service_key":       "SHOPPING_SERVICE",
	"broker.customer_key":      "CUSTOMER_SERVICE",
	"broker.connect_attempts":  "BROKER_CONNECT_ATTEMPTS",
	"broker.connect_delay":     "BROKER_CONNECT_DELAY",
	"http.addr":                "HTTP_ADDR",
	"store.backend":            "STORE_BACKEND",
	"store.database_url":       "DATABASE_URL",
	"observability.log_level":  "LOG_LEVEL",
	"observability.log_format": "LOG_FORMAT",
}

// SetDefaults configures Defaults on a Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("broker.url", Defaults.Broker.URL)
	v.SetDefault("broker.exchange", Defaults.Broker.Exchange)
	v.SetDefault("broker.service_key", Defaults.Broker.ServiceKey)
	v.SetDefault("broker.customer_key", Defaults.Broker.CustomerKey)
	v.SetDefault("broker.connect_attempts", Defaults.Broker.ConnectAttempts)
	v.SetDefault("broker.connect_delay", Defaults.Broker.ConnectDelay)
	v.SetDefault("http.addr", Defaults.HTTP.Addr)
	v.SetDefault("store.backend", Defaults.Store.Backend)
	v.SetDefault("store.database_url", Defaults.Store.DatabaseURL)
	v.SetDefault("observability.log_level", Defaults.Observability.LogLevel)
	v.SetDefault("observability.log_format", Defaults.Observability.LogFormat)
}

// BindBrokerFlags binds the flags every broker-facing command takes.
func BindBrokerFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()

	f.String("broker-url", "", "RabbitMQ URL (env MSG_QUEUE_URL)")
	f.String("exchange", "", "exchange name (env EXCHANGE_NAME)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")

	_ = v.BindPFlag("broker.url", f.Lookup("broker-url"))
	_ = v.BindPFlag("broker.exchange", f.Lookup("exchange"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
}

// BindServeFlags binds the flags of the serve command.
func BindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	BindBrokerFlags(cmd, v)
	f := cmd.Flags()

	f.String("addr", "", "HTTP listen address")
	f.String("store", "", "store backend (memory, postgres)")
	f.String("database-url", "", "PostgreSQL URL for the postgres store")
	f.String("service-key", "", "routing key the service consumes (env SHOPPING_SERVICE)")
	f.String("customer-key", "", "routing key for customer events (env CUSTOMER_SERVICE)")

	_ = v.BindPFlag("http.addr", f.Lookup("addr"))
	_ = v.BindPFlag("store.backend", f.Lookup("store"))
	_ = v.BindPFlag("store.database_url", f.Lookup("database-url"))
	_ = v.BindPFlag("broker.service_key", f.Lookup("service-key"))
	_ = v.BindPFlag("broker.customer_key", f.Lookup("customer-key"))
}

// Load reads config from flags, env, and file, and validates the result.
// A missing file is only an error when configFile names it.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for key, env := range envNames {
		_ = v.BindEnv(key, env)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("shopping")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/shopbus")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}
