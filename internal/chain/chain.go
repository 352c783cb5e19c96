// Package chain is a single-node development substrate for lottery ledgers.
// It keeps account balances, charges fees, serializes transactions, mines one
// block per transaction and rolls back every balance change of a call that
// fails.
package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/logger"

	"lotteryledger/internal/models"
	"lotteryledger/internal/services"
)

var (
	ErrInvalidSignature   = errors.New("invalid transaction signature")
	ErrNonce              = errors.New("invalid nonce")
	ErrInsufficientFunds  = errors.New("insufficient funds for value and gas")
	ErrGasPriceTooLow     = errors.New("gas price below the chain minimum")
	ErrInvalidValue       = errors.New("invalid transaction value")
	ErrUnknownLedger      = errors.New("no ledger deployed at address")
	ErrUnknownMethod      = errors.New("unknown method")
	ErrRecipientRejected  = errors.New("recipient rejected the transfer")
	ErrCustodyUnderfunded = errors.New("custody balance below transfer amount")
	ErrLabelTooLong       = errors.New("label exceeds the transaction size limit")
)

// Gas schedule.
const (
	GasTx              = 21000
	GasPerLabelByte    = 16
	GasDeploy          = 200000
	GasEnter           = 45000
	GasPickWinner      = 30000
	GasPerSettledEntry = 5000
)

// MaxLabelBytes bounds the label carried by an enterLottery call.
const MaxLabelBytes = 1024

// Config holds the parameters of a dev chain.
type Config struct {
	GasPrice *big.Int
	// Clock stamps blocks; time.Now when nil.
	Clock      func() time.Time
	Randomness services.RandomnessSource
	// MinStake is passed to every ledger deployed on the chain.
	MinStake *big.Int
}

type account struct {
	balance      *big.Int
	nonce        uint64
	rejectsFunds bool
}

// Receipt describes the outcome of an included transaction.
type Receipt struct {
	TxHash      string             `json:"txHash"`
	BlockNumber uint64             `json:"blockNumber"`
	From        models.Address     `json:"from"`
	To          models.Address     `json:"to"`
	Status      uint64             `json:"status"`
	GasUsed     uint64             `json:"gasUsed"`
	GasPrice    *big.Int           `json:"gasPrice"`
	Fee         *big.Int           `json:"fee"`
	Error       string             `json:"error,omitempty"`
	Logs        []models.Log       `json:"logs"`
	Settlement  *models.Settlement `json:"settlement,omitempty"`
	// Revert is the error that reverted the call, for errors.Is checks.
	Revert error `json:"-"`
}

// Chain is an in-process execution substrate.
type Chain struct {
	mu          sync.Mutex
	gasPrice    *big.Int
	clock       func() time.Time
	source      services.RandomnessSource
	minStake    *big.Int
	accounts    map[models.Address]*account
	ledgers     map[models.Address]*services.LotteryLedger
	blocks      []models.Block
	pendingLogs []models.Log
}

// New creates a chain holding only its genesis block.
func New(cfg Config) *Chain {
	c := &Chain{
		gasPrice: big.NewInt(1),
		clock:    time.Now,
		source:   services.BlockRandomness{},
		accounts: make(map[models.Address]*account),
		ledgers:  make(map[models.Address]*services.LotteryLedger),
	}
	if cfg.GasPrice != nil && cfg.GasPrice.Sign() > 0 {
		c.gasPrice = new(big.Int).Set(cfg.GasPrice)
	}
	if cfg.Clock != nil {
		c.clock = cfg.Clock
	}
	if cfg.Randomness != nil {
		c.source = cfg.Randomness
	}
	if cfg.MinStake != nil {
		c.minStake = new(big.Int).Set(cfg.MinStake)
	}

	genesis := models.Block{
		Number:     0,
		Timestamp:  c.clock().Unix(),
		ParentHash: "0x" + hex.EncodeToString(make([]byte, sha256.Size)),
	}
	genesis.Hash = blockHash(genesis, "")
	c.blocks = append(c.blocks, genesis)
	return c
}

// Fund credits amount to addr out of thin air. It is the genesis allocation
// of dev accounts.
func (c *Chain) Fund(addr models.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	acct := c.account(addr)
	acct.balance.Add(acct.balance, amount)
}

// SetRejectsFunds makes addr refuse incoming transfers, like a contract
// whose fallback reverts.
func (c *Chain) SetRejectsFunds(addr models.Address, rejects bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account(addr).rejectsFunds = rejects
}

func (c *Chain) Balance(addr models.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if acct, ok := c.accounts[addr]; ok {
		return new(big.Int).Set(acct.balance)
	}
	return new(big.Int)
}

func (c *Chain) Nonce(addr models.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if acct, ok := c.accounts[addr]; ok {
		return acct.nonce
	}
	return 0
}

func (c *Chain) GasPrice() *big.Int {
	return new(big.Int).Set(c.gasPrice)
}

func (c *Chain) LatestBlock() models.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[len(c.blocks)-1]
}

// Ledger returns the ledger deployed at addr for read-only access.
func (c *Chain) Ledger(addr models.Address) (*services.LotteryLedger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ledger, ok := c.ledgers[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, addr)
	}
	return ledger, nil
}

// Audit checks the custody invariant of the ledger at addr.
func (c *Chain) Audit(ctx context.Context, addr models.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ledger, ok := c.ledgers[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLedger, addr)
	}
	return ledger.Audit(ctx)
}

// Deploy creates a ledger owned by the signer of stx, backed by store. The
// ledger's address is derived from the deployer and its nonce.
func (c *Chain) Deploy(ctx context.Context, stx SignedTx, store services.Store) (models.Address, Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stx.Tx.Method != MethodDeploy || stx.Tx.To != nil {
		return models.Address{}, Receipt{}, fmt.Errorf("%w: deploy needs method %q and no recipient", ErrUnknownMethod, MethodDeploy)
	}
	if stx.Tx.Value != nil && stx.Tx.Value.Sign() != 0 {
		return models.Address{}, Receipt{}, fmt.Errorf("%w: deploy is not payable", ErrInvalidValue)
	}
	from, price, err := c.admit(stx, GasTx+GasDeploy)
	if err != nil {
		return models.Address{}, Receipt{}, err
	}

	sender := c.accounts[from]
	address := contractAddress(from, sender.nonce)
	fee := c.chargeFee(sender, GasTx+GasDeploy, price)

	receipt := Receipt{
		TxHash:   stx.TxHash(),
		From:     from,
		To:       address,
		GasUsed:  GasTx + GasDeploy,
		GasPrice: price,
		Fee:      fee,
		Logs:     []models.Log{},
	}

	custody := &ledgerCustody{chain: c, address: address}
	ledger, err := services.NewLotteryLedger(ctx, from, store, custody, c.source, services.LedgerConfig{
		Address:  address,
		MinStake: c.minStake,
		Events:   chainSink{chain: c},
	})
	// A store that already holds a round brings its pool with it.
	var pool *big.Int
	if err == nil {
		if pool, err = ledger.Pool(ctx); err != nil {
			err = fmt.Errorf("load resumed round: %w", err)
		}
	}
	if err != nil {
		receipt.Revert = err
		receipt.Error = err.Error()
		receipt.BlockNumber = c.mine(receipt.TxHash).Number
		logger.Warningf("deploy from %s reverted: %v", from, err)
		return models.Address{}, receipt, nil
	}

	acct := c.account(address)
	if pool.Sign() > 0 {
		acct.balance.Set(pool)
		logger.Warningf("ledger %s resumed a round holding %s wei", address, pool)
	}
	c.ledgers[address] = ledger

	receipt.Status = 1
	receipt.BlockNumber = c.mine(receipt.TxHash).Number
	logger.Infof("ledger %s deployed by %s", address, from)
	return address, receipt, nil
}

// Submit executes a signed call against a deployed ledger. A transaction
// that fails validation is rejected with an error and costs nothing. A call
// that the ledger refuses is included with Status 0: its fee is kept and
// everything else is rolled back.
func (c *Chain) Submit(ctx context.Context, stx SignedTx) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := stx.Tx
	if tx.To == nil {
		return Receipt{}, fmt.Errorf("%w: call without recipient", ErrUnknownLedger)
	}
	ledger, ok := c.ledgers[*tx.To]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownLedger, *tx.To)
	}
	value := new(big.Int)
	if tx.Value != nil {
		if tx.Value.Sign() < 0 {
			return Receipt{}, fmt.Errorf("%w: negative value", ErrInvalidValue)
		}
		value.Set(tx.Value)
	}

	var gas uint64
	switch tx.Method {
	case MethodEnter:
		if len(tx.Label) > MaxLabelBytes {
			return Receipt{}, fmt.Errorf("%w: %d bytes, limit %d", ErrLabelTooLong, len(tx.Label), MaxLabelBytes)
		}
		gas = GasTx + GasEnter + GasPerLabelByte*uint64(len(tx.Label))
	case MethodPickWinner:
		if value.Sign() != 0 {
			return Receipt{}, fmt.Errorf("%w: %s is not payable", ErrInvalidValue, tx.Method)
		}
		count, err := ledger.GetEntryCount(ctx)
		if err != nil {
			return Receipt{}, err
		}
		gas = GasTx + GasPickWinner + GasPerSettledEntry*uint64(count)
	default:
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnknownMethod, tx.Method)
	}

	from, price, err := c.admit(stx, gas, value)
	if err != nil {
		return Receipt{}, err
	}
	sender := c.accounts[from]
	fee := c.chargeFee(sender, gas, price)

	receipt := Receipt{
		TxHash:   stx.TxHash(),
		From:     from,
		To:       *tx.To,
		GasUsed:  gas,
		GasPrice: price,
		Fee:      fee,
		Logs:     []models.Log{},
	}

	snapshot := c.snapshot()
	c.pendingLogs = c.pendingLogs[:0]
	block := c.pendingBlock()
	call := services.Call{Caller: from, Value: value, Block: block}

	sender.balance.Sub(sender.balance, value)
	custody := c.account(*tx.To)
	custody.balance.Add(custody.balance, value)

	switch tx.Method {
	case MethodEnter:
		err = ledger.Enter(ctx, call, tx.Label)
	case MethodPickWinner:
		var settlement models.Settlement
		settlement, err = ledger.PickWinner(ctx, call)
		if err == nil {
			receipt.Settlement = &settlement
		}
	}

	if err != nil {
		c.restore(snapshot)
		c.pendingLogs = c.pendingLogs[:0]
		receipt.Revert = err
		receipt.Error = err.Error()
		receipt.BlockNumber = c.mineAt(block, receipt.TxHash).Number
		logger.Warningf("%s from %s reverted: %v", tx.Method, from, err)
		return receipt, nil
	}

	receipt.Status = 1
	receipt.Logs = append(receipt.Logs, c.pendingLogs...)
	c.pendingLogs = c.pendingLogs[:0]
	receipt.BlockNumber = c.mineAt(block, receipt.TxHash).Number
	return receipt, nil
}

// admit verifies the signature, nonce, gas price and funds of stx. It must
// be called with c.mu held.
func (c *Chain) admit(stx SignedTx, gas uint64, value ...*big.Int) (models.Address, *big.Int, error) {
	from, err := stx.Sender()
	if err != nil {
		return models.Address{}, nil, err
	}
	price := c.gasPrice
	if stx.Tx.GasPrice != nil {
		if stx.Tx.GasPrice.Cmp(c.gasPrice) < 0 {
			return models.Address{}, nil, fmt.Errorf("%w: %s < %s", ErrGasPriceTooLow, stx.Tx.GasPrice, c.gasPrice)
		}
		price = stx.Tx.GasPrice
	}
	sender := c.account(from)
	if stx.Tx.Nonce != sender.nonce {
		return models.Address{}, nil, fmt.Errorf("%w: want %d, got %d", ErrNonce, sender.nonce, stx.Tx.Nonce)
	}
	need := new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
	for _, v := range value {
		need.Add(need, v)
	}
	if sender.balance.Cmp(need) < 0 {
		return models.Address{}, nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, sender.balance, need)
	}
	return from, new(big.Int).Set(price), nil
}

func (c *Chain) chargeFee(sender *account, gas uint64, price *big.Int) *big.Int {
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
	sender.balance.Sub(sender.balance, fee)
	sender.nonce++
	return fee
}

func (c *Chain) account(addr models.Address) *account {
	acct, ok := c.accounts[addr]
	if !ok {
		acct = &account{balance: new(big.Int)}
		c.accounts[addr] = acct
	}
	return acct
}

func (c *Chain) snapshot() map[models.Address]*big.Int {
	out := make(map[models.Address]*big.Int, len(c.accounts))
	for addr, acct := range c.accounts {
		out[addr] = new(big.Int).Set(acct.balance)
	}
	return out
}

func (c *Chain) restore(snapshot map[models.Address]*big.Int) {
	for addr, acct := range c.accounts {
		balance, ok := snapshot[addr]
		if !ok {
			delete(c.accounts, addr)
			continue
		}
		acct.balance.Set(balance)
	}
}

func (c *Chain) pendingBlock() models.Block {
	latest := c.blocks[len(c.blocks)-1]
	ts := c.clock().Unix()
	if ts < latest.Timestamp {
		ts = latest.Timestamp
	}
	return models.Block{
		Number:     latest.Number + 1,
		Timestamp:  ts,
		ParentHash: latest.Hash,
	}
}

func (c *Chain) mine(txHash string) models.Block {
	return c.mineAt(c.pendingBlock(), txHash)
}

func (c *Chain) mineAt(block models.Block, txHash string) models.Block {
	block.Hash = blockHash(block, txHash)
	c.blocks = append(c.blocks, block)
	return block
}

func blockHash(block models.Block, txHash string) string {
	b, _ := json.Marshal(struct {
		Number     uint64 `json:"number"`
		Timestamp  int64  `json:"timestamp"`
		ParentHash string `json:"parentHash"`
		TxHash     string `json:"txHash"`
	}{block.Number, block.Timestamp, block.ParentHash, txHash})
	h := sha256.Sum256(b)
	return "0x" + hex.EncodeToString(h[:])
}

func contractAddress(deployer models.Address, nonce uint64) models.Address {
	var a models.Address
	h := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", deployer, nonce)))
	copy(a[:], h[len(h)-models.AddressLength:])
	return a
}
