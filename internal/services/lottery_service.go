package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/logger"

	"lotteryledger/internal/models"
)

// Call carries the implicit context of a ledger call: who is calling, the
// value attached to the call, and the block it executes in.
type Call struct {
	Caller models.Address
	Value  *big.Int
	Block  models.Block
}

// Custody is the ledger's own account on the substrate. The substrate
// credits attached value to it before Enter runs.
type Custody interface {
	Balance(ctx context.Context) (*big.Int, error)
	// Transfer moves amount from custody to the recipient. It fails without
	// moving anything when the recipient rejects the funds.
	Transfer(ctx context.Context, to models.Address, amount *big.Int) error
}

// EventSink receives the notifications a ledger emits.
type EventSink interface {
	Emit(log models.Log)
}

// LedgerConfig holds the optional settings of a ledger.
type LedgerConfig struct {
	// Address is the ledger's own identity, stamped on emitted logs.
	Address models.Address
	// MinStake, when set, is the smallest value Enter accepts.
	MinStake *big.Int
	Events   EventSink
}

// LotteryLedger custodies the stakes of one round and settles it by paying
// the whole pool to a single entrant.
type LotteryLedger struct {
	mu       sync.RWMutex
	address  models.Address
	owner    models.Address
	minStake *big.Int
	store    Store
	custody  Custody
	source   RandomnessSource
	events   EventSink
}

// NewLotteryLedger creates a ledger owned by owner. If the store already
// holds a round, it must have been created by the same owner.
func NewLotteryLedger(ctx context.Context, owner models.Address, store Store, custody Custody, source RandomnessSource, cfg LedgerConfig) (*LotteryLedger, error) {
	stored, ok, err := store.Owner(ctx)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if ok && stored != owner {
		return nil, fmt.Errorf("%w: %s", ErrOwnerMismatch, stored)
	}
	if !ok {
		if err := store.SetOwner(ctx, owner); err != nil {
			return nil, fmt.Errorf("record owner: %w", err)
		}
	}

	var minStake *big.Int
	if cfg.MinStake != nil && cfg.MinStake.Sign() > 0 {
		minStake = new(big.Int).Set(cfg.MinStake)
	}
	return &LotteryLedger{
		address:  cfg.Address,
		owner:    owner,
		minStake: minStake,
		store:    store,
		custody:  custody,
		source:   source,
		events:   cfg.Events,
	}, nil
}

// Owner returns the identity allowed to settle rounds.
func (l *LotteryLedger) Owner() models.Address {
	return l.owner
}

// Address returns the ledger's own identity.
func (l *LotteryLedger) Address() models.Address {
	return l.address
}

// Enter records a funded entry for the caller. The attached value must be
// strictly positive and at least the configured minimum.
func (l *LotteryLedger) Enter(ctx context.Context, call Call, label string) error {
	if call.Value == nil || call.Value.Sign() <= 0 {
		return ErrInvalidStake
	}
	if l.minStake != nil && call.Value.Cmp(l.minStake) < 0 {
		return fmt.Errorf("%w: %s is below the minimum of %s", ErrInvalidStake, call.Value, l.minStake)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := models.Entry{
		UserAddress: call.Caller,
		Name:        label,
		Amount:      new(big.Int).Set(call.Value),
	}
	if err := l.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("record entry: %w", err)
	}

	l.emit(models.Log{
		Event:   models.EventEntryRecorded,
		Address: entry.UserAddress,
		Label:   entry.Name,
		Amount:  new(big.Int).Set(entry.Amount),
	})
	return nil
}

// PickWinner pays the whole custodied balance to one entrant and starts a
// new round. Only the owner may call it. Nothing changes unless the payout
// goes through.
func (l *LotteryLedger) PickWinner(ctx context.Context, call Call) (models.Settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if call.Caller != l.owner {
		return models.Settlement{}, ErrUnauthorized
	}

	entries, err := l.store.Entries(ctx)
	if err != nil {
		return models.Settlement{}, fmt.Errorf("load entries: %w", err)
	}
	if len(entries) == 0 {
		return models.Settlement{}, ErrNoEntries
	}

	participants := make([]models.Address, len(entries))
	for i, e := range entries {
		participants[i] = e.UserAddress
	}
	index, err := l.source.Pick(ctx, call.Block, participants)
	if err != nil {
		return models.Settlement{}, fmt.Errorf("select winner: %w", err)
	}
	if index < 0 || index >= len(entries) {
		return models.Settlement{}, fmt.Errorf("select winner: position %d outside %d entries", index, len(entries))
	}
	winner := entries[index].UserAddress

	amount, err := l.custody.Balance(ctx)
	if err != nil {
		return models.Settlement{}, fmt.Errorf("read custody balance: %w", err)
	}

	err = l.store.Settle(ctx, func(ctx context.Context) error {
		if err := l.custody.Transfer(ctx, winner, amount); err != nil {
			return fmt.Errorf("%w: %w", ErrPayoutFailed, err)
		}
		return nil
	})
	if err != nil {
		return models.Settlement{}, fmt.Errorf("settle round: %w", err)
	}

	l.emit(models.Log{
		Event:   models.EventRoundSettled,
		Address: winner,
		Amount:  new(big.Int).Set(amount),
	})
	return models.Settlement{
		Winner:  winner,
		Index:   index,
		Amount:  amount,
		Entries: len(entries),
	}, nil
}

// GetEntry returns the entry at index in the current round.
func (l *LotteryLedger) GetEntry(ctx context.Context, index int) (models.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Entry(ctx, index)
}

// GetEntryCount returns the number of entries in the current round.
func (l *LotteryLedger) GetEntryCount(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Count(ctx)
}

// Pool returns the sum of the amounts recorded in the current round.
func (l *LotteryLedger) Pool(ctx context.Context) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pool(ctx)
}

func (l *LotteryLedger) pool(ctx context.Context) (*big.Int, error) {
	entries, err := l.store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	sum := new(big.Int)
	for _, e := range entries {
		sum.Add(sum, e.Amount)
	}
	return sum, nil
}

// Audit checks that the custodied balance equals the recorded pool.
func (l *LotteryLedger) Audit(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pool, err := l.pool(ctx)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	balance, err := l.custody.Balance(ctx)
	if err != nil {
		return fmt.Errorf("read custody balance: %w", err)
	}
	if pool.Cmp(balance) != 0 {
		return fmt.Errorf("%w: pool %s, custody %s", ErrCustodyMismatch, pool, balance)
	}
	return nil
}

func (l *LotteryLedger) emit(log models.Log) {
	log.Ledger = l.address
	switch log.Event {
	case models.EventEntryRecorded:
		logger.Infof("ledger %s: entry from %s (%q) for %s", l.address, log.Address, log.Label, log.Amount)
	case models.EventRoundSettled:
		logger.Infof("ledger %s: round settled, %s paid to %s", l.address, log.Amount, log.Address)
	}
	if l.events != nil {
		l.events.Emit(log)
	}
}
