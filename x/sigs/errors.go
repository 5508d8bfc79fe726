package sigs

import "github.com/iov-one/weave-escrow/errors"

// ErrInvalidSequence is returned when a signature was made for a sequence
// other than the next expected one.
var ErrInvalidSequence = errors.Register(120, "invalid sequence number")
