// Package config loads the sale configuration from a YAML file with
// PRESALE_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/presale"
)

// File is the on-disk sale configuration. Amounts are human decimals:
// prices and the soft cap are in quote units ("0.00008" = 80 base units).
type File struct {
	Owner          string      `yaml:"owner"`
	TreasuryWallet string      `yaml:"treasury_wallet"`
	Custody        string      `yaml:"custody"`
	StartTime      string      `yaml:"start_time"` // RFC3339 or unix seconds
	EndTime        string      `yaml:"end_time"`
	ClaimTime      string      `yaml:"claim_time"` // optional
	PricePerToken  string      `yaml:"price_per_token"`
	NativePrice    string      `yaml:"native_price"`
	SoftCap        string      `yaml:"soft_cap"`
	TokenDecimals  *int32      `yaml:"token_decimals"` // nil means DefaultTokenDecimals
	Bonus          BonusFile   `yaml:"bonus"`
	Ledgers        LedgersFile `yaml:"ledgers"`
}

// BonusFile configures the early-investor bonus.
type BonusFile struct {
	MaxEarlyInvestors int64  `yaml:"max_early_investors"`
	Window            string `yaml:"window"` // Go duration, e.g. "72h"
	BonusBps          int64  `yaml:"bonus_bps"`
}

// LedgersFile locates the external asset ledgers.
type LedgersFile struct {
	Endpoint  string            `yaml:"endpoint"`   // JSON-RPC endpoint
	SaleToken string            `yaml:"sale_token"` // sale token id on the node
	Assets    map[string]string `yaml:"assets"`     // asset symbol -> token id
}

// Config is the resolved configuration.
type Config struct {
	Sale    *domain.SaleConfig
	Bonus   presale.BonusPolicy
	Custody domain.Address
	Ledgers Ledgers
}

// Ledgers holds the resolved ledger locations.
type Ledgers struct {
	Endpoint  string
	SaleToken string
	Assets    map[domain.Asset]string
}

// DefaultTokenDecimals is used when token_decimals is omitted.
const DefaultTokenDecimals = 18

// Load reads path, applies environment overrides and resolves the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.ApplyEnv(os.Getenv)
	return f.Resolve()
}

// Parse decodes a YAML sale configuration. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}

// ApplyEnv overrides fields from PRESALE_* variables. Empty values are ignored.
func (f *File) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&f.Owner, "PRESALE_OWNER")
	set(&f.TreasuryWallet, "PRESALE_TREASURY_WALLET")
	set(&f.Custody, "PRESALE_CUSTODY")
	set(&f.StartTime, "PRESALE_START_TIME")
	set(&f.EndTime, "PRESALE_END_TIME")
	set(&f.ClaimTime, "PRESALE_CLAIM_TIME")
	set(&f.PricePerToken, "PRESALE_PRICE_PER_TOKEN")
	set(&f.NativePrice, "PRESALE_NATIVE_PRICE")
	set(&f.SoftCap, "PRESALE_SOFT_CAP")
	set(&f.Ledgers.Endpoint, "PRESALE_LEDGER_ENDPOINT")
}

// Resolve validates the file and converts it into engine parameters.
func (f *File) Resolve() (*Config, error) {
	var errs []error
	fail := func(field string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", field, err))
	}

	sale := &domain.SaleConfig{TokenDecimals: DefaultTokenDecimals}
	if f.TokenDecimals != nil {
		sale.TokenDecimals = *f.TokenDecimals
	}

	var err error
	if sale.Owner, err = domain.ParseAddress(f.Owner); err != nil {
		fail("owner", err)
	}
	if sale.Treasury, err = domain.ParseAddress(f.TreasuryWallet); err != nil {
		fail("treasury_wallet", err)
	}
	custody, err := domain.ParseAddress(f.Custody)
	if err != nil {
		fail("custody", err)
	}

	if sale.StartTime, err = parseTime(f.StartTime); err != nil {
		fail("start_time", err)
	}
	if sale.EndTime, err = parseTime(f.EndTime); err != nil {
		fail("end_time", err)
	}
	if f.ClaimTime != "" {
		if sale.ClaimTime, err = parseTime(f.ClaimTime); err != nil {
			fail("claim_time", err)
		}
	}

	if sale.PricePerToken, err = parseQuote(f.PricePerToken); err != nil {
		fail("price_per_token", err)
	}
	if sale.NativePrice, err = parseQuote(f.NativePrice); err != nil {
		fail("native_price", err)
	}
	if f.SoftCap == "" {
		sale.SoftCap = new(big.Int)
	} else if sale.SoftCap, err = parseQuote(f.SoftCap); err != nil {
		fail("soft_cap", err)
	}

	bonus := presale.BonusPolicy{
		MaxEarlyInvestors: f.Bonus.MaxEarlyInvestors,
		BonusBps:          f.Bonus.BonusBps,
	}
	if f.Bonus.Window != "" {
		if bonus.Window, err = time.ParseDuration(f.Bonus.Window); err != nil {
			fail("bonus.window", err)
		}
	}

	ledgers := Ledgers{
		Endpoint:  f.Ledgers.Endpoint,
		SaleToken: f.Ledgers.SaleToken,
		Assets:    make(map[domain.Asset]string, len(f.Ledgers.Assets)),
	}
	for symbol, id := range f.Ledgers.Assets {
		a, err := domain.ParseAsset(symbol)
		if err != nil {
			fail("ledgers.assets", err)
			continue
		}
		ledgers.Assets[a] = id
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	if err := sale.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := bonus.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Config{
		Sale:    sale,
		Bonus:   bonus,
		Custody: custody,
		Ledgers: ledgers,
	}, nil
}

// RequireRemoteLedgers checks the ledger section is complete for RPC mode.
func (c *Config) RequireRemoteLedgers() error {
	if c.Ledgers.Endpoint == "" {
		return errors.New("ledgers.endpoint is required")
	}
	if c.Ledgers.SaleToken == "" {
		return errors.New("ledgers.sale_token is required")
	}
	for _, a := range domain.Assets {
		if c.Ledgers.Assets[a] == "" {
			return fmt.Errorf("ledgers.assets.%s is required", a)
		}
	}
	return nil
}

func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("required")
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unix, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("want RFC3339 or unix seconds: %w", err)
	}
	return t.Unix(), nil
}

func parseQuote(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("required")
	}
	return domain.ParseUnits(s, domain.QuoteDecimals)
}
