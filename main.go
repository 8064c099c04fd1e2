// Command vending runs the vending machine API and inspects its state.
//
// Start the server with:
//
//	go run . serve
//
// The server listens on :8080 by default and keeps its state in
// inventory.csv and ledger.csv in the working directory. Settings come from
// vending.yaml (or --config) and VENDING_* environment variables; PORT and
// DB_PATH are honoured too.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arkantrust/vending-machine/backend/config"
	"github.com/arkantrust/vending-machine/backend/store"
	"github.com/arkantrust/vending-machine/backend/vending"
)

var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "vending",
		Short:         "Vending machine inventory and transaction API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultFile+" if present)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(inventoryCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openMachine loads the configuration and opens the configured store. The
// returned close function releases the store.
func openMachine() (*config.Config, *vending.Machine, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	opts, err := cfg.StoreOptions()
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := store.Open(opts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open %s storage: %w", opts.Driver, err)
	}
	return cfg, vending.New(s), s.Close, nil
}
