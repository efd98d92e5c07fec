package ledger

import (
	"strconv"
	"time"

	"github.com/SooryaCodes/medchainx-sub000/pkg/encryption"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// GenesisPreviousHash is the sentinel previous hash of the genesis block
const GenesisPreviousHash = "0"

// genesisTimestamp is fixed so every chain, in memory or persisted, shares one genesis hash
var genesisTimestamp = time.Unix(0, 0).UTC()

// Block is an immutable, hash-linked ledger entry committing one record
type Block struct {
	Index        uint64       `json:"index"`
	Timestamp    time.Time    `json:"timestamp"`
	Payload      types.Record `json:"payload"`
	PreviousHash string       `json:"previousHash"`
	Hash         string       `json:"hash"`
}

// NewBlock builds a block and computes its hash.
// The timestamp is normalised to UTC milliseconds so it survives storage round trips unchanged.
func NewBlock(index uint64, timestamp time.Time, payload types.Record, previousHash string) (Block, error) {
	block := Block{
		Index:        index,
		Timestamp:    timestamp.UTC().Truncate(time.Millisecond),
		Payload:      payload,
		PreviousHash: previousHash,
	}

	hash, err := ComputeHash(block)
	if err != nil {
		return Block{}, err
	}
	block.Hash = hash

	return block, nil
}

// Genesis returns the fixed first block of every chain
func Genesis() Block {
	block, err := NewBlock(0, genesisTimestamp, types.GenesisRecord(), GenesisPreviousHash)
	if err != nil {
		// the genesis record always serializes
		panic(err)
	}
	return block
}

// ComputeHash returns SHA-256(index ∥ unixMillis(timestamp) ∥ canonical(payload) ∥ previousHash) as hex
func ComputeHash(b Block) (string, error) {
	canonical, err := b.Payload.Canonical()
	if err != nil {
		return "", err
	}

	buf := make([]byte, 0, len(canonical)+len(b.PreviousHash)+40)
	buf = strconv.AppendUint(buf, b.Index, 10)
	buf = strconv.AppendInt(buf, b.Timestamp.UnixMilli(), 10)
	buf = append(buf, canonical...)
	buf = append(buf, b.PreviousHash...)

	return encryption.HashData(buf), nil
}

// VerifyIntegrity recomputes the hash from the stored fields and compares it to Hash
func (b Block) VerifyIntegrity() bool {
	hash, err := ComputeHash(b)
	if err != nil {
		return false
	}
	return hash == b.Hash
}

// Clone returns a deep copy, so callers never share payload memory with the chain
func (b Block) Clone() Block {
	b.Payload = b.Payload.Clone()
	return b
}
