package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkantrust/vending-machine/backend/config"
	"github.com/arkantrust/vending-machine/backend/models"
)

func inventoryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Print the current inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, machine, closeStore, err := openMachine()
			if err != nil {
				return err
			}
			defer closeStore()

			products, err := machine.GetInventory(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), products)
			}
			return printInventory(cmd.OutOrStdout(), products)
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func ledgerCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print every recorded transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, machine, closeStore, err := openMachine()
			if err != nil {
				return err
			}
			defer closeStore()

			ledger, err := machine.GetAllTransactions(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), ledger)
			}
			return printLedger(cmd.OutOrStdout(), ledger)
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printInventory(w io.Writer, products []models.Product) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRICE\tQUANTITY")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Name, p.Price.StringFixed(2), p.Quantity)
	}
	return tw.Flush()
}

func printLedger(w io.Writer, ledger []models.Transaction) error {
	if len(ledger) == 0 {
		_, err := fmt.Fprintln(w, "No transactions found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tTIME\tPAID\tITEMS")
	for i, t := range ledger {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			i, t.ID, t.Timestamp.Format(time.RFC3339), t.AmountPaid.StringFixed(2), strings.Join(t.Items, ", "))
	}
	return tw.Flush()
}
