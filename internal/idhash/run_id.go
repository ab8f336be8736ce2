package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"signal-backtest-lab/internal/domain"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(instrument|leverage|start_equity|entry_fee|exit_fee|fraction|fingerprint)
// Returns hex-encoded hash (64 characters).
func ComputeRunID(sel domain.Selection, scenario domain.Scenario, fingerprint string) string {
	data := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s",
		sel.Key(),
		scenario.Leverage,
		scenario.StartEquity.String(),
		scenario.EntryFeePct.String(),
		scenario.ExitFeePct.String(),
		scenario.PositionFraction.String(),
		fingerprint,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
