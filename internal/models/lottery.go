package models

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// AddressLength is the size of an account identity in bytes.
const AddressLength = 20

// Address identifies an account on the substrate, either a participant
// or a deployed ledger.
type Address [AddressLength]byte

var errInvalidAddress = errors.New("invalid address")

// ParseAddress parses a 0x-prefixed (or bare) hex string into an Address.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != AddressLength*2 {
		return a, errInvalidAddress
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, errInvalidAddress
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Entry represents one participant's stake in the current round.
// The json names are the ones existing clients read by field name.
type Entry struct {
	UserAddress Address  `json:"userAddress"`
	Name        string   `json:"name"`
	Amount      *big.Int `json:"amount"`
}

// Block is the on-chain context a call executes in.
type Block struct {
	Number     uint64 `json:"number"`
	Timestamp  int64  `json:"timestamp"`
	ParentHash string `json:"parentHash"`
	Hash       string `json:"hash,omitempty"`
}

// Settlement is the outcome of a successful pickWinner call.
type Settlement struct {
	Winner  Address  `json:"winner"`
	Index   int      `json:"index"`
	Amount  *big.Int `json:"amount"`
	Entries int      `json:"entries"`
}

const (
	EventEntryRecorded = "EntryRecorded"
	EventRoundSettled  = "RoundSettled"
)

// Log is an observable notification emitted by a ledger.
// Address is the participant for EntryRecorded and the winner for RoundSettled.
type Log struct {
	Event   string   `json:"event"`
	Ledger  Address  `json:"ledger"`
	Address Address  `json:"address"`
	Label   string   `json:"label,omitempty"`
	Amount  *big.Int `json:"amount"`
}
