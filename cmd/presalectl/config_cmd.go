package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"presale-ledger/internal/config"
	"presale-ledger/internal/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the sale configuration",
}

var requireLedgers bool

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the resolved sale",
	Args:  cobra.NoArgs,
	RunE:  runConfigCheck,
}

func init() {
	configCheckCmd.Flags().BoolVar(&requireLedgers, "require-ledgers", false, "Also require the remote ledger section")
	configCmd.AddCommand(configCheckCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if requireLedgers {
		if err := cfg.RequireRemoteLedgers(); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	sale := cfg.Sale
	fmt.Fprintf(out, "owner:           %s\n", sale.Owner)
	fmt.Fprintf(out, "treasury:        %s\n", sale.Treasury)
	fmt.Fprintf(out, "custody:         %s\n", cfg.Custody)
	fmt.Fprintf(out, "window:          %s .. %s\n", unixTime(sale.StartTime), unixTime(sale.EndTime))
	if sale.ClaimTime != 0 {
		fmt.Fprintf(out, "claim time:      %s\n", unixTime(sale.ClaimTime))
	}
	fmt.Fprintf(out, "price per token: %s\n", domain.FormatUnits(sale.PricePerToken, domain.QuoteDecimals))
	fmt.Fprintf(out, "native price:    %s\n", domain.FormatUnits(sale.NativePrice, domain.QuoteDecimals))
	fmt.Fprintf(out, "soft cap:        %s\n", domain.FormatUnits(sale.SoftCap, domain.QuoteDecimals))
	fmt.Fprintf(out, "token decimals:  %d\n", sale.TokenDecimals)
	if cfg.Bonus.MaxEarlyInvestors > 0 {
		fmt.Fprintf(out, "bonus:           %d bps for the first %d investors within %s\n",
			cfg.Bonus.BonusBps, cfg.Bonus.MaxEarlyInvestors, cfg.Bonus.Window)
	}
	fmt.Fprintln(out, "config OK")
	return nil
}

func unixTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
