package models

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Wave struct {
	ID        string    `json:"id"`        // de-duplication key, see WaveID
	Sender    string    `json:"sender"`    // waver address
	Timestamp time.Time `json:"timestamp"` // block time of the wave
	Message   string    `json:"message"`
}

// NewWave projects a raw ledger record into a Wave. Ledger timestamps are in seconds.
func NewWave(sender common.Address, timestamp *big.Int, message string) Wave {
	var secs int64
	if timestamp != nil {
		secs = timestamp.Int64()
	}
	return Wave{
		ID:        WaveID(sender.Hex(), secs, message),
		Sender:    sender.Hex(),
		Timestamp: time.Unix(secs, 0).UTC(),
		Message:   message,
	}
}

// WaveID is keccak256(lower(sender) || uint256(seconds) || message) in hex.
func WaveID(sender string, seconds int64, message string) string {
	ts := common.BigToHash(big.NewInt(seconds))
	return crypto.Keccak256Hash(
		[]byte(strings.ToLower(sender)),
		ts.Bytes(),
		[]byte(message),
	).Hex()
}
