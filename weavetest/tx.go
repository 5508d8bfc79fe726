package weavetest

import "github.com/iov-one/weave-escrow"

// Tx carries a single message and no signatures.
type Tx struct {
	// Msg is the message processed by this transaction.
	Msg weave.Msg
	// Err if set is returned by GetMsg.
	Err error
}

var _ weave.Tx = (*Tx)(nil)

func (tx *Tx) GetMsg() (weave.Msg, error) {
	return tx.Msg, tx.Err
}

func (tx *Tx) Unmarshal([]byte) error {
	panic("not implemented")
}

func (tx *Tx) Marshal() ([]byte, error) {
	panic("not implemented")
}

// Msg is a message with a configurable route.
type Msg struct {
	// RoutePath is returned by Path and used by the router.
	RoutePath string
	// Serialized is the binary form of this message.
	Serialized []byte
	// Err if set is returned by Marshal, Unmarshal and Validate.
	Err error
}

var _ weave.Msg = (*Msg)(nil)

func (m *Msg) Path() string {
	return m.RoutePath
}

func (m *Msg) Unmarshal(b []byte) error {
	m.Serialized = b
	return m.Err
}

func (m *Msg) Marshal() ([]byte, error) {
	return m.Serialized, m.Err
}

func (m *Msg) Validate() error {
	return m.Err
}
