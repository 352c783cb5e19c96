package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"

	"lotteryledger/internal/models"
)

// RandomnessSource picks the winning position among the participants of a
// round. The result must lie in [0, len(participants)).
type RandomnessSource interface {
	Pick(ctx context.Context, block models.Block, participants []models.Address) (int, error)
}

type roundSeed struct {
	Number       uint64           `json:"number"`
	Timestamp    int64            `json:"timestamp"`
	ParentHash   string           `json:"parentHash"`
	Participants []models.Address `json:"participants"`
}

// RoundSeed is the canonical encoding of the values a settlement can observe
// on chain: the block it executes in and the identities that entered.
func RoundSeed(block models.Block, participants []models.Address) ([]byte, error) {
	seed, err := json.Marshal(roundSeed{
		Number:       block.Number,
		Timestamp:    block.Timestamp,
		ParentHash:   block.ParentHash,
		Participants: participants,
	})
	if err != nil {
		return nil, fmt.Errorf("encode round seed: %w", err)
	}
	return seed, nil
}

// BlockRandomness derives the winner from the hash of the round seed.
//
// Anyone who controls block production or the ordering of calls can bias the
// outcome, since every input is known before the settlement executes. Use a
// BeaconRandomness when that matters.
type BlockRandomness struct{}

func (BlockRandomness) Pick(ctx context.Context, block models.Block, participants []models.Address) (int, error) {
	if len(participants) == 0 {
		return 0, ErrNoEntries
	}
	seed, err := RoundSeed(block, participants)
	if err != nil {
		return 0, err
	}
	return reduce(sha256.Sum256(seed), len(participants)), nil
}

// FixedRandomness always picks the same position, modulo the round size.
type FixedRandomness int

func (f FixedRandomness) Pick(ctx context.Context, block models.Block, participants []models.Address) (int, error) {
	if len(participants) == 0 {
		return 0, ErrNoEntries
	}
	i := int(f) % len(participants)
	if i < 0 {
		i += len(participants)
	}
	return i, nil
}

func reduce(digest [sha256.Size]byte, n int) int {
	v := new(big.Int).SetBytes(digest[:])
	return int(v.Mod(v, big.NewInt(int64(n))).Int64())
}
