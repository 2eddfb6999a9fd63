package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeActivityID computes a deterministic activity id using SHA256.
// Formula: SHA256(transaction_hash|kind|actor_address) over lowercased hex
// inputs, matching the activity uniqueness constraint.
// Returns hex-encoded hash (64 characters).
func ComputeActivityID(txHash, kind, actor string) string {
	data := fmt.Sprintf("%s|%s|%s",
		strings.ToLower(txHash),
		kind,
		strings.ToLower(actor),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
