package bond

import "errors"

var (
	// ErrTopologyViolation: the ceiling of simultaneously active bonds
	// is already reached.
	ErrTopologyViolation = errors.New("bond topology limit reached")
	ErrBondNotFound      = errors.New("bond not found")
	ErrAlreadyBonded     = errors.New("already bonded to peer")
	// ErrNegotiationFailed: a handshake message was malformed or undersized.
	ErrNegotiationFailed = errors.New("bond negotiation failed")
	// ErrNegotiationTimeout: the expected reply did not arrive in time.
	ErrNegotiationTimeout = errors.New("bond negotiation timed out")
	// ErrVerificationFailed: signature or echoed nonce mismatch.
	ErrVerificationFailed = errors.New("bond verification failed")
	ErrSendFailed         = errors.New("bond send failed")
)
