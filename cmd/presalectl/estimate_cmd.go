package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"presale-ledger/internal/config"
	"presale-ledger/internal/conversion"
	"presale-ledger/internal/domain"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Quote prices at the configured rates",
}

var estimateCoinCmd = &cobra.Command{
	Use:   "coin <asset> <token-amount>",
	Short: "Asset amount required to buy a token amount",
	Long: `Prints the raw and display amount of <asset> (USDT, USDC, DAI or NATIVE)
that buys <token-amount> whole sale tokens. Decimals are allowed.`,
	Args: cobra.ExactArgs(2),
	RunE: runEstimateCoin,
}

var estimateNativeCmd = &cobra.Command{
	Use:   "native <value>",
	Short: "Sale tokens bought by a native coin amount",
	Long:  `Prints the sale tokens <value> whole native coins buy. Decimals are allowed.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runEstimateNative,
}

func init() {
	estimateCmd.AddCommand(estimateCoinCmd, estimateNativeCmd)
}

func loadConverter() (*config.Config, *conversion.Converter, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	conv, err := conversion.FromConfig(cfg.Sale)
	if err != nil {
		return nil, nil, err
	}
	return cfg, conv, nil
}

func runEstimateCoin(cmd *cobra.Command, args []string) error {
	cfg, conv, err := loadConverter()
	if err != nil {
		return err
	}
	asset, err := domain.ParseAsset(args[0])
	if err != nil {
		return err
	}
	tokens, err := domain.ParseUnits(args[1], cfg.Sale.TokenDecimals)
	if err != nil {
		return fmt.Errorf("token amount: %w", err)
	}

	amount, err := conv.QuoteAmountForTokens(tokens, asset)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (raw %s)\n",
		domain.FormatUnits(amount, asset.Decimals()), asset, amount)
	return nil
}

func runEstimateNative(cmd *cobra.Command, args []string) error {
	cfg, conv, err := loadConverter()
	if err != nil {
		return err
	}
	value, err := domain.ParseUnits(args[0], domain.NativeDecimals)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	tokens, err := conv.TokensForNativeAmount(value)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s tokens (raw %s)\n",
		domain.FormatUnits(tokens, cfg.Sale.TokenDecimals), tokens)
	return nil
}
