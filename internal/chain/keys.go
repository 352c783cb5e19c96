package chain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1"

	"lotteryledger/internal/models"
)

// Key is an account signing key.
type Key struct {
	private *secp256k1.PrivateKey
	public  *secp256k1.PublicKey
}

// KeyFromBytes derives a key pair from a 32 byte secret.
func KeyFromBytes(secret []byte) *Key {
	private, public := secp256k1.PrivKeyFromBytes(secret)
	return &Key{private: private, public: public}
}

// KeyFromHex decodes a hex-encoded secret, as printed for dev accounts.
func KeyFromHex(s string) (*Key, error) {
	secret, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("decode key: want 32 bytes, got %d", len(secret))
	}
	return KeyFromBytes(secret), nil
}

// GenerateKey creates a key from fresh randomness.
func GenerateKey() (*Key, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("read key secret: %w", err)
	}
	return KeyFromBytes(secret[:]), nil
}

// DevKey derives the index-th development account from a seed phrase, so a
// dev chain started twice with the same phrase has the same accounts.
func DevKey(phrase string, index int) *Key {
	secret := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", phrase, index)))
	return KeyFromBytes(secret[:])
}

func (k *Key) Address() models.Address {
	return AddressOf(k.public)
}

// Hex returns the hex-encoded secret.
func (k *Key) Hex() string {
	return "0x" + hex.EncodeToString(k.private.Serialize())
}

// AddressOf derives the account identity of a public key: the last 20 bytes
// of the sha256 of its compressed form.
func AddressOf(public *secp256k1.PublicKey) models.Address {
	var a models.Address
	h := sha256.Sum256(public.SerializeCompressed())
	copy(a[:], h[len(h)-models.AddressLength:])
	return a
}
