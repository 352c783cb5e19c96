package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1"

	"lotteryledger/internal/models"
)

// Methods a transaction can invoke on a deployed ledger.
const (
	MethodDeploy     = "deploy"
	MethodEnter      = "enterLottery"
	MethodPickWinner = "pickWinner"
)

// Transaction is the unsigned payload of a call.
type Transaction struct {
	Nonce  uint64          `json:"nonce"`
	To     *models.Address `json:"to,omitempty"`
	Method string          `json:"method"`
	Label  string          `json:"label,omitempty"`
	Value  *big.Int        `json:"value,omitempty"`
	// GasPrice defaults to the chain's price when empty.
	GasPrice *big.Int `json:"gasPrice,omitempty"`
}

// Hash returns the sha256 of the canonical JSON encoding.
func (tx Transaction) Hash() ([32]byte, error) {
	b, err := json.Marshal(tx)
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode transaction: %w", err)
	}
	return sha256.Sum256(b), nil
}

// SignedTx is a transaction with the sender's public key and DER signature.
type SignedTx struct {
	Tx        Transaction `json:"tx"`
	PublicKey string      `json:"publicKey"`
	Signature string      `json:"signature"`
}

// Sign signs tx with key.
func Sign(key *Key, tx Transaction) (SignedTx, error) {
	hash, err := tx.Hash()
	if err != nil {
		return SignedTx{}, err
	}
	sig, err := key.private.Sign(hash[:])
	if err != nil {
		return SignedTx{}, fmt.Errorf("sign transaction: %w", err)
	}
	return SignedTx{
		Tx:        tx,
		PublicKey: hex.EncodeToString(key.public.SerializeCompressed()),
		Signature: hex.EncodeToString(sig.Serialize()),
	}, nil
}

// Sender verifies the signature and returns the signing account.
func (s SignedTx) Sender() (models.Address, error) {
	pubBytes, err := hex.DecodeString(s.PublicKey)
	if err != nil {
		return models.Address{}, fmt.Errorf("%w: public key: %v", ErrInvalidSignature, err)
	}
	public, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return models.Address{}, fmt.Errorf("%w: public key: %v", ErrInvalidSignature, err)
	}
	sigBytes, err := hex.DecodeString(s.Signature)
	if err != nil {
		return models.Address{}, fmt.Errorf("%w: signature: %v", ErrInvalidSignature, err)
	}
	sig, err := secp256k1.ParseDERSignature(sigBytes)
	if err != nil {
		return models.Address{}, fmt.Errorf("%w: signature: %v", ErrInvalidSignature, err)
	}
	hash, err := s.Tx.Hash()
	if err != nil {
		return models.Address{}, err
	}
	if !sig.Verify(hash[:], public) {
		return models.Address{}, ErrInvalidSignature
	}
	return AddressOf(public), nil
}

// TxHash returns the hex transaction hash.
func (s SignedTx) TxHash() string {
	hash, err := s.Tx.Hash()
	if err != nil {
		return ""
	}
	return "0x" + hex.EncodeToString(hash[:])
}
