package services

import "errors"

var (
	ErrInvalidStake    = errors.New("invalid stake")
	ErrUnauthorized    = errors.New("caller is not the owner")
	ErrNoEntries       = errors.New("no entries in the current round")
	ErrPayoutFailed    = errors.New("payout to winner failed")
	ErrIndexOutOfRange = errors.New("entry index out of range")
	ErrCustodyMismatch = errors.New("custodied balance does not match entry pool")
	ErrOwnerMismatch   = errors.New("stored round belongs to another owner")
	ErrBeaconSignature = errors.New("beacon signature does not verify")
)
