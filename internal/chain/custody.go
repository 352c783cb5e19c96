package chain

import (
	"context"
	"fmt"
	"math/big"

	"lotteryledger/internal/models"
)

// ledgerCustody is the account of a deployed ledger. The ledger only calls
// into it while the chain executes one of its transactions, so c.mu is
// already held.
type ledgerCustody struct {
	chain   *Chain
	address models.Address
}

func (lc *ledgerCustody) Balance(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(lc.chain.account(lc.address).balance), nil
}

func (lc *ledgerCustody) Transfer(ctx context.Context, to models.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := lc.chain.account(lc.address)
	if from.balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrCustodyUnderfunded, from.balance, amount)
	}
	recipient := lc.chain.account(to)
	if recipient.rejectsFunds {
		return fmt.Errorf("%w: %s", ErrRecipientRejected, to)
	}
	from.balance.Sub(from.balance, amount)
	recipient.balance.Add(recipient.balance, amount)
	return nil
}

// chainSink collects ledger logs into the receipt of the running transaction.
type chainSink struct {
	chain *Chain
}

func (s chainSink) Emit(log models.Log) {
	s.chain.pendingLogs = append(s.chain.pendingLogs, log)
}
