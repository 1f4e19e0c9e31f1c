package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped) and
// services translate them into coded domain errors:
//   - ErrNotFound: the case, verifier, escrow or donor does not exist
//   - ErrAlreadyUsed: a unique key is taken (case id, vote pair, donation id)
//   - ErrInvalidState: the stored aggregate is not in a state the write expects
//   - ErrUnavailable: the backing store cannot be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
