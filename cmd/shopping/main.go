package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "shopping",
		Short: "Shopping service",
		Long: `Shopping service - carts and orders for the online store.

Commands:
  shopping serve                  Consume shopping events and serve the REST API
  shopping publish <routing-key>  Publish one JSON envelope read from stdin or --data`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPublishCmd())

	return rootCmd.ExecuteContext(context.Background())
}
