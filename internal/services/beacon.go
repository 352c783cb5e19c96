package services

import (
	"context"
	"crypto/sha256"
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/pairing/bn256"
	"go.dedis.ch/kyber/v4/sign/bls"

	"lotteryledger/internal/models"
)

// BLS signatures are unique for a key and message, so a seed has exactly one
// valid beacon output and anyone with the public key can recompute the pick.
var (
	beaconSuite  = bn256.NewSuite()
	beaconScheme = bls.NewSchemeOnG1(beaconSuite)
)

// BeaconSigner returns the beacon's signature over a round seed.
type BeaconSigner interface {
	Sign(seed []byte) ([]byte, error)
}

// Beacon is a randomness beacon holding a BLS signing key. Its signatures
// over round seeds are unpredictable to anyone without the key.
type Beacon struct {
	private kyber.Scalar
	public  kyber.Point
}

// NewBeacon creates a beacon with a fresh key pair.
func NewBeacon() *Beacon {
	private, public := beaconScheme.NewKeyPair(beaconSuite.RandomStream())
	return &Beacon{
		private: private,
		public:  public,
	}
}

func (b *Beacon) PublicKey() kyber.Point {
	return b.public
}

func (b *Beacon) Sign(seed []byte) ([]byte, error) {
	sig, err := beaconScheme.Sign(b.private, seed)
	if err != nil {
		return nil, fmt.Errorf("beacon sign: %w", err)
	}
	return sig, nil
}

// BeaconRandomness asks a beacon to sign the round seed, checks the signature
// against the beacon's public key and derives the winner from it.
type BeaconRandomness struct {
	signer BeaconSigner
	public kyber.Point
}

// NewBeaconRandomness creates a source trusting signatures under public.
func NewBeaconRandomness(signer BeaconSigner, public kyber.Point) *BeaconRandomness {
	return &BeaconRandomness{
		signer: signer,
		public: public,
	}
}

func (r *BeaconRandomness) Pick(ctx context.Context, block models.Block, participants []models.Address) (int, error) {
	if len(participants) == 0 {
		return 0, ErrNoEntries
	}
	seed, err := RoundSeed(block, participants)
	if err != nil {
		return 0, err
	}
	sig, err := r.signer.Sign(seed)
	if err != nil {
		return 0, err
	}
	if err := beaconScheme.Verify(r.public, seed, sig); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBeaconSignature, err)
	}
	return reduce(sha256.Sum256(sig), len(participants)), nil
}
