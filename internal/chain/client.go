package chain

import (
	"context"
	"math/big"

	"lotteryledger/internal/models"
	"lotteryledger/internal/services"
)

// Client signs and submits transactions for one account, picking the next
// nonce from the chain.
type Client struct {
	chain *Chain
	key   *Key
}

func NewClient(c *Chain, key *Key) *Client {
	return &Client{chain: c, key: key}
}

func (cl *Client) Address() models.Address {
	return cl.key.Address()
}

func (cl *Client) Balance() *big.Int {
	return cl.chain.Balance(cl.key.Address())
}

// Deploy deploys a ledger owned by this account.
func (cl *Client) Deploy(ctx context.Context, store services.Store) (models.Address, Receipt, error) {
	stx, err := cl.sign(Transaction{Method: MethodDeploy})
	if err != nil {
		return models.Address{}, Receipt{}, err
	}
	return cl.chain.Deploy(ctx, stx, store)
}

// Enter calls enterLottery(label) on ledger with value attached.
func (cl *Client) Enter(ctx context.Context, ledger models.Address, label string, value *big.Int) (Receipt, error) {
	stx, err := cl.sign(Transaction{To: &ledger, Method: MethodEnter, Label: label, Value: value})
	if err != nil {
		return Receipt{}, err
	}
	return cl.chain.Submit(ctx, stx)
}

// PickWinner calls pickWinner() on ledger.
func (cl *Client) PickWinner(ctx context.Context, ledger models.Address) (Receipt, error) {
	stx, err := cl.sign(Transaction{To: &ledger, Method: MethodPickWinner})
	if err != nil {
		return Receipt{}, err
	}
	return cl.chain.Submit(ctx, stx)
}

func (cl *Client) sign(tx Transaction) (SignedTx, error) {
	tx.Nonce = cl.chain.Nonce(cl.key.Address())
	return Sign(cl.key, tx)
}
