package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// GenesisPreviousHash is the sentinel parent hash of the genesis entry.
var GenesisPreviousHash = strings.Repeat("0", 64)

// GenesisID is the fixed identifier of the genesis entry.
const GenesisID = "genesis"

// Entry is one link in the append-only audit chain. Entries are never
// updated or deleted; every grant lifecycle event appends exactly one.
type Entry struct {
	Seq          int64             `json:"-" gorm:"primaryKey;autoIncrement;column:seq"`
	ID           string            `json:"id" gorm:"uniqueIndex;column:id"`
	Timestamp    time.Time         `json:"timestamp" gorm:"column:timestamp"`
	Payload      datatypes.JSONMap `json:"payload" gorm:"column:payload"`
	PreviousHash string            `json:"previous_hash" gorm:"column:previous_hash"`
	Hash         string            `json:"hash" gorm:"column:hash"`
}

func (Entry) TableName() string {
	return "audit_ledger"
}

// ComputeHash digests the entry fields the chain commits to. Timestamps
// are rendered as RFC3339Nano UTC so the digest survives storage
// round-trips; map keys are sorted by the JSON encoder.
func ComputeHash(payload map[string]interface{}, timestamp time.Time, previousHash string) string {
	input := struct {
		Payload      map[string]interface{} `json:"payload"`
		Timestamp    string                 `json:"timestamp"`
		PreviousHash string                 `json:"previous_hash"`
	}{
		Payload:      payload,
		Timestamp:    timestamp.UTC().Format(time.RFC3339Nano),
		PreviousHash: previousHash,
	}
	data, _ := json.Marshal(input)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GenesisPayload returns the fixed payload the chain is anchored to.
func GenesisPayload() map[string]interface{} {
	return map[string]interface{}{"message": "Genesis Block for eHealthWave"}
}
