package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glimte/shopbus"
	"github.com/glimte/shopbus/contracts"
	"github.com/glimte/shopbus/internal/config"
	"github.com/glimte/shopbus/internal/observability"
)

func newPublishCmd() *cobra.Command {
	v := viper.New()
	var (
		configFile string
		data       string
	)

	cmd := &cobra.Command{
		Use:   "publish <routing-key>",
		Short: "Publish one event envelope",
		Long: `Publish one event envelope to the exchange.

The envelope is read from --data, or from stdin when --data is empty. It must
have the shape {"event": KIND, "data": {...}}.

Examples:
  echo '{"event":"ADD_TO_CART","data":{"userId":"u1","product":{"_id":"p1"},"qty":2}}' | shopping publish shopping_service
  shopping publish customer_service --data '{"event":"DELETE_ORDER","data":{"order":{"orderId":"o1"}}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := observability.SetupLogging(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stderr)

			env, err := readEnvelope(data, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if !env.Event.Known() {
				logger.Warn("publishing unknown event kind", "event", env.Event)
			}

			client := shopbus.NewClient(cfg.Broker.URL, cfg.Broker.Exchange,
				shopbus.WithLogger(logger),
				shopbus.WithConnectRetry(cfg.Broker.ConnectAttempts, cfg.Broker.ConnectDelay),
			)
			defer client.Close()

			routingKey := args[0]
			if err := client.PublishEvent(cmd.Context(), routingKey, env); err != nil {
				return fmt.Errorf("publish: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s/%s\n", env.Event, cfg.Broker.Exchange, routingKey)
			return nil
		},
	}

	config.BindBrokerFlags(cmd, v)
	f := cmd.Flags()
	f.StringVar(&data, "data", "", "envelope JSON (default: read stdin)")
	f.StringVar(&configFile, "config", "", "config file path")

	return cmd
}

// readEnvelope decodes data, or r when data is empty
func readEnvelope(data string, r io.Reader) (*contracts.Envelope, error) {
	payload := []byte(data)
	if data == "" {
		var err error
		payload, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errors.New("no envelope given on stdin or --data")
	}
	return contracts.DecodeEnvelope(payload)
}
