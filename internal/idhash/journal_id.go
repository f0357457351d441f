package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"presale-ledger/internal/domain"
)

// ComputeJournalID computes a deterministic journal entry id using SHA256.
// Formula: SHA256(version|kind|investor|asset|index)
// Returns hex-encoded hash (64 characters).
func ComputeJournalID(
	version int64,
	kind domain.JournalKind,
	investor domain.Address,
	asset domain.Asset,
	index int,
) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%d",
		version,
		string(kind),
		string(investor),
		string(asset),
		index,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
