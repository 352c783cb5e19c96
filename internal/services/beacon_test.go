package services

import (
	"context"
	"errors"
	"testing"

	"lotteryledger/internal/models"
)

// forgedSigner signs with a key other than the one the source trusts.
type forgedSigner struct {
	beacon *Beacon
}

func (f forgedSigner) Sign(seed []byte) ([]byte, error) {
	return f.beacon.Sign(seed)
}

func TestBeaconRandomness(t *testing.T) {
	ctx := context.Background()
	block := models.Block{Number: 3, Timestamp: 1700000000, ParentHash: "0x01"}

	t.Run("Test verified beacon pick is in range", func(t *testing.T) {
		beacon := NewBeacon()
		source := NewBeaconRandomness(beacon, beacon.PublicKey())
		for n := 1; n <= 5; n++ {
			idx, err := source.Pick(ctx, block, participants(n))
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if idx < 0 || idx >= n {
				t.Errorf("Expected a pick in [0,%d), but got %d", n, idx)
			}
		}
	})

	t.Run("Test same round always gives the same pick", func(t *testing.T) {
		beacon := NewBeacon()
		source := NewBeaconRandomness(beacon, beacon.PublicKey())
		players := participants(100)
		first, err := source.Pick(ctx, block, players)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		for i := 0; i < 20; i++ {
			idx, err := source.Pick(ctx, block, players)
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if idx != first {
				t.Fatalf("Expected pick %d on every call, but got %d on call %d", first, idx, i)
			}
		}
	})

	t.Run("Test beacon signature is unique per seed", func(t *testing.T) {
		beacon := NewBeacon()
		seed, err := RoundSeed(block, participants(4))
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		a, err := beacon.Sign(seed)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		b, err := beacon.Sign(seed)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if string(a) != string(b) {
			t.Errorf("Expected identical signatures over one seed, but got %x and %x", a, b)
		}
	})

	t.Run("Test signature from another key is refused", func(t *testing.T) {
		trusted := NewBeacon()
		source := NewBeaconRandomness(forgedSigner{beacon: NewBeacon()}, trusted.PublicKey())
		_, err := source.Pick(ctx, block, participants(3))
		if !errors.Is(err, ErrBeaconSignature) {
			t.Fatalf("Expected ErrBeaconSignature, but got %v", err)
		}
	})

	t.Run("Test refused signature aborts settlement", func(t *testing.T) {
		source := NewBeaconRandomness(forgedSigner{beacon: NewBeacon()}, NewBeacon().PublicKey())
		ledger, custody := newTestLedger(t, source, LedgerConfig{})
		_ = enter(ledger, custody, addr(2), 10, "a")

		_, err := ledger.PickWinner(ctx, Call{Caller: addr(1), Block: block})
		if !errors.Is(err, ErrBeaconSignature) {
			t.Fatalf("Expected ErrBeaconSignature, but got %v", err)
		}
		count, _ := ledger.GetEntryCount(ctx)
		if count != 1 {
			t.Errorf("Expected round untouched, but got %d entries", count)
		}
	})
}
