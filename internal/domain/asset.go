package domain

import (
	"fmt"
	"strings"
)

// Asset identifies a payment asset accepted by the presale.
type Asset string

const (
	AssetUSDT   Asset = "USDT"
	AssetUSDC   Asset = "USDC"
	AssetDAI    Asset = "DAI"
	AssetNative Asset = "NATIVE"
)

// QuoteDecimals is the decimal base funds raised are aggregated in.
const QuoteDecimals = 6

// NativeDecimals is the decimal base of the native gas token.
const NativeDecimals = 18

// Assets lists every payment asset in settlement order.
var Assets = []Asset{AssetUSDT, AssetUSDC, AssetDAI, AssetNative}

// StableAssets lists the stablecoin payment assets.
var StableAssets = []Asset{AssetUSDT, AssetUSDC, AssetDAI}

// String returns the string representation of Asset.
func (a Asset) String() string {
	return string(a)
}

// IsValid checks if the asset is one of the accepted payment assets.
func (a Asset) IsValid() bool {
	switch a {
	case AssetUSDT, AssetUSDC, AssetDAI, AssetNative:
		return true
	}
	return false
}

// IsStable reports whether the asset is a stablecoin quoted at par.
func (a Asset) IsStable() bool {
	return a == AssetUSDT || a == AssetUSDC || a == AssetDAI
}

// Decimals returns the decimal base of raw amounts of this asset.
func (a Asset) Decimals() int32 {
	switch a {
	case AssetUSDT, AssetUSDC:
		return 6
	case AssetDAI, AssetNative:
		return 18
	}
	return 0
}

// ParseAsset resolves an asset identifier. "ETH" is accepted for the native asset.
func ParseAsset(s string) (Asset, error) {
	v := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if v == "ETH" {
		return AssetNative, nil
	}
	if !v.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAsset, s)
	}
	return v, nil
}
