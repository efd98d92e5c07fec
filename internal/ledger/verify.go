package ledger

import (
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// ViolationReason names the kind of integrity failure
type ViolationReason string

const (
	ReasonHashMismatch    ViolationReason = "hash_mismatch"
	ReasonBrokenLink      ViolationReason = "broken_link"
	ReasonIndexMismatch   ViolationReason = "index_mismatch"
	ReasonGenesisMismatch ViolationReason = "genesis_mismatch"
)

var genesisHash = Genesis().Hash

// Violation describes one integrity failure at a block position
type Violation struct {
	Index    uint64          `json:"index"`
	Reason   ViolationReason `json:"reason"`
	Expected string          `json:"expected,omitempty"`
	Actual   string          `json:"actual,omitempty"`
}

// IntegrityReport is the outcome of a whole-chain verification
type IntegrityReport struct {
	Valid      bool        `json:"valid"`
	Length     int         `json:"length"`
	Violations []Violation `json:"violations,omitempty"`
}

// FirstViolation returns the earliest violation, if any
func (r IntegrityReport) FirstViolation() (Violation, bool) {
	if len(r.Violations) == 0 {
		return Violation{}, false
	}
	return r.Violations[0], true
}

// Err returns an integrity violation error naming the first offending block, or nil
func (r IntegrityReport) Err() error {
	first, ok := r.FirstViolation()
	if !ok {
		return nil
	}
	err := types.NewIntegrityError(first.Index, string(first.Reason))
	err.Details["violations"] = len(r.Violations)
	return err
}

// VerifyBlocks checks position, hash and linkage of every block, e.g. as loaded from a store.
// Block 0 must be the fixed genesis block.
// Linkage is checked against the recomputed hash of the predecessor, so a tampered
// block also breaks the link of its successor even if its stored hash was left alone.
func VerifyBlocks(blocks []Block) IntegrityReport {
	report := IntegrityReport{Length: len(blocks)}

	expectedPrev := GenesisPreviousHash
	for i, b := range blocks {
		if b.Index != uint64(i) {
			report.Violations = append(report.Violations, Violation{
				Index:  uint64(i),
				Reason: ReasonIndexMismatch,
			})
		}

		recomputed, err := ComputeHash(b)
		if err != nil || recomputed != b.Hash {
			report.Violations = append(report.Violations, Violation{
				Index:    uint64(i),
				Reason:   ReasonHashMismatch,
				Expected: recomputed,
				Actual:   b.Hash,
			})
		}

		if i == 0 && recomputed != genesisHash {
			report.Violations = append(report.Violations, Violation{
				Index:    0,
				Reason:   ReasonGenesisMismatch,
				Expected: genesisHash,
				Actual:   recomputed,
			})
		}

		if b.PreviousHash != expectedPrev {
			report.Violations = append(report.Violations, Violation{
				Index:    uint64(i),
				Reason:   ReasonBrokenLink,
				Expected: expectedPrev,
				Actual:   b.PreviousHash,
			})
		}

		expectedPrev = recomputed
	}

	report.Valid = len(report.Violations) == 0
	return report
}
