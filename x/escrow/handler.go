package escrow

import (
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/x"
	"github.com/iov-one/weave-escrow/x/token"
)

// RegisterRoutes will instantiate and register
// all handlers in this package
func RegisterRoutes(r weave.Registry, auth x.Authenticator, control token.Controller) {
	bucket := NewBucket()
	r.Handle(&OpenMsg{}, OpenHandler{auth: auth, bucket: bucket, control: control})
	r.Handle(&CancelMsg{}, CancelHandler{auth: auth, bucket: bucket, control: control})
	r.Handle(&ExchangeMsg{}, ExchangeHandler{auth: auth, bucket: bucket, control: control})
}

// RegisterQuery will register this bucket as "/escrows"
func RegisterQuery(qr weave.QueryRouter) {
	NewBucket().Register("/escrows", qr)
}

// OpenHandler creates escrows and locks the initializer funds.
type OpenHandler struct {
	auth    x.Authenticator
	bucket  Bucket
	control token.Controller
}

var _ weave.Handler = OpenHandler{}

// openPlan is everything Deliver needs once all preconditions hold.
type openPlan struct {
	msg     *OpenMsg
	escrow  *Escrow
	address solana.PublicKey
	vault   solana.PublicKey
	mintA   *token.Mint
	auth    token.Authority
	// newVault is false when the vault already exists.
	newVault bool
}

func (h OpenHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

// Deliver stores the escrow, creates the vault and moves the initializer
// amount into it.
func (h OpenHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	p, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := h.bucket.Put(db, p.address[:], p.escrow); err != nil {
		return nil, errors.Wrap(err, "cannot store escrow")
	}
	if p.newVault {
		if _, err := h.control.InitAccount(db, p.vault, p.msg.MintA, p.address); err != nil {
			return nil, errors.Wrap(err, "cannot create vault")
		}
	}
	err = h.control.TransferChecked(db, p.auth, p.msg.InitializerAccountA, p.msg.MintA, p.vault, p.msg.InitializerAmount, p.mintA.Decimals)
	if err != nil {
		return nil, errors.Wrap(err, "deposit")
	}
	return &weave.DeliverResult{Data: p.address.Bytes(), Log: "escrow opened"}, nil
}

func (h OpenHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*openPlan, error) {
	var msg OpenMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	auth, err := token.SignedBy(ctx, h.auth, msg.Initializer)
	if err != nil {
		return nil, err
	}

	mintA, err := h.control.GetMint(db, msg.MintA)
	if err != nil {
		return nil, err
	}
	if _, err := h.control.GetMint(db, msg.MintB); err != nil {
		return nil, err
	}

	src, err := h.control.GetAccount(db, msg.InitializerAccountA)
	if err != nil {
		return nil, errors.Wrap(err, "initializer account")
	}
	if !src.Owner.Equals(msg.Initializer) {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "%s is not owned by the initializer", src.Address)
	}
	if !src.Mint.Equals(msg.MintA) {
		return nil, errors.Wrapf(errors.ErrAssetMismatch, "%s holds %s, not mint a", src.Address, src.Mint)
	}
	if src.Amount < msg.InitializerAmount {
		return nil, errors.Wrapf(errors.ErrInsufficientFunds, "initializer holds %d, need %d", src.Amount, msg.InitializerAmount)
	}

	conf, err := loadConf(db)
	if err != nil {
		return nil, err
	}
	address, bump, err := EscrowAddress(conf.ProgramID, msg.Initializer, msg.Seed)
	if err != nil {
		return nil, err
	}
	switch ok, err := h.bucket.Has(db, address[:]); {
	case err != nil:
		return nil, err
	case ok:
		return nil, errors.Wrapf(errors.ErrDuplicate, "escrow %s", address)
	}

	vault, err := VaultAddress(address, msg.MintA)
	if err != nil {
		return nil, err
	}
	newVault, err := h.vaultIsFree(db, vault, address, msg.MintA)
	if err != nil {
		return nil, err
	}

	return &openPlan{
		msg: &msg,
		escrow: &Escrow{
			Seed:              msg.Seed,
			Bump:              bump,
			Initializer:       msg.Initializer,
			MintA:             msg.MintA,
			MintB:             msg.MintB,
			InitializerAmount: msg.InitializerAmount,
			TakerAmount:       msg.TakerAmount,
		},
		address:  address,
		vault:    vault,
		mintA:    mintA,
		auth:     auth,
		newVault: newVault,
	}, nil
}

// vaultIsFree returns true if the vault must be created. Creating the
// associated account of the escrow and funding it is permissionless, so an
// existing vault of the escrow is reused whatever it holds. Its whole
// balance is released on settlement.
func (h OpenHandler) vaultIsFree(db weave.ReadOnlyKVStore, vault, owner, mint solana.PublicKey) (bool, error) {
	ok, err := h.control.HasAccount(db, vault)
	if err != nil || !ok {
		return !ok, err
	}
	acc, err := h.control.GetAccount(db, vault)
	if err != nil {
		return false, err
	}
	if !acc.Owner.Equals(owner) || !acc.Mint.Equals(mint) {
		return false, errors.Wrapf(errors.ErrDuplicate, "vault %s is in use", vault)
	}
	return false, nil
}

// CancelHandler returns the vault to the initializer.
type CancelHandler struct {
	auth    x.Authenticator
	bucket  Bucket
	control token.Controller
}

var _ weave.Handler = CancelHandler{}

func (h CancelHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

// Deliver moves the whole vault back to the initializer, closes the vault
// and deletes the escrow.
func (h CancelHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, s, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if _, err := h.control.EnsureAssociatedAccount(db, msg.InitializerAccountA, s.escrow.Initializer, s.escrow.MintA); err != nil {
		return nil, errors.Wrap(err, "initializer account")
	}
	if err := s.release(db, h.control, msg.InitializerAccountA); err != nil {
		return nil, err
	}
	if err := h.bucket.Delete(db, msg.Escrow[:]); err != nil {
		return nil, errors.Wrap(err, "cannot delete escrow")
	}
	return &weave.DeliverResult{Log: "escrow cancelled"}, nil
}

func (h CancelHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*CancelMsg, *settlement, error) {
	var msg CancelMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	s, err := loadSettlement(db, h.bucket, h.control, msg.Escrow, msg.Vault)
	if err != nil {
		return nil, nil, err
	}
	if !msg.Initializer.Equals(s.escrow.Initializer) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "not the escrow initializer")
	}
	if _, err := token.SignedBy(ctx, h.auth, msg.Initializer); err != nil {
		return nil, nil, err
	}
	if err := checkDestination(db, h.control, msg.InitializerAccountA, s.escrow.Initializer, s.escrow.MintA); err != nil {
		return nil, nil, errors.Wrap(err, "initializer account")
	}
	return &msg, s, nil
}

// ExchangeHandler settles escrows.
type ExchangeHandler struct {
	auth    x.Authenticator
	bucket  Bucket
	control token.Controller
}

var _ weave.Handler = ExchangeHandler{}

// exchangePlan is everything Deliver needs once all preconditions hold.
type exchangePlan struct {
	msg   *ExchangeMsg
	s     *settlement
	taker token.Authority
	mintB *token.Mint
}

func (h ExchangeHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

// Deliver pays the initializer first and then releases the vault to the
// taker. The vault is closed and the escrow deleted.
func (h ExchangeHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	p, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	e := p.s.escrow
	if _, err := h.control.EnsureAssociatedAccount(db, p.msg.InitializerAccountB, e.Initializer, e.MintB); err != nil {
		return nil, errors.Wrap(err, "initializer account")
	}
	if _, err := h.control.EnsureAssociatedAccount(db, p.msg.TakerAccountA, p.msg.Taker, e.MintA); err != nil {
		return nil, errors.Wrap(err, "taker account")
	}

	err = h.control.TransferChecked(db, p.taker, p.msg.TakerAccountB, e.MintB, p.msg.InitializerAccountB, e.TakerAmount, p.mintB.Decimals)
	if err != nil {
		return nil, errors.Wrap(err, "pay initializer")
	}
	if err := p.s.release(db, h.control, p.msg.TakerAccountA); err != nil {
		return nil, err
	}
	if err := h.bucket.Delete(db, p.msg.Escrow[:]); err != nil {
		return nil, errors.Wrap(err, "cannot delete escrow")
	}
	return &weave.DeliverResult{Log: "escrow exchanged"}, nil
}

func (h ExchangeHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*exchangePlan, error) {
	var msg ExchangeMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	s, err := loadSettlement(db, h.bucket, h.control, msg.Escrow, msg.Vault)
	if err != nil {
		return nil, err
	}
	taker, err := token.SignedBy(ctx, h.auth, msg.Taker)
	if err != nil {
		return nil, err
	}

	e := s.escrow
	src, err := h.control.GetAccount(db, msg.TakerAccountB)
	if err != nil {
		return nil, errors.Wrap(err, "taker account")
	}
	if !src.Owner.Equals(msg.Taker) {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "%s is not owned by the taker", src.Address)
	}
	if !src.Mint.Equals(e.MintB) {
		return nil, errors.Wrapf(errors.ErrAssetMismatch, "%s holds %s, not mint b", src.Address, src.Mint)
	}
	if src.Amount < e.TakerAmount {
		return nil, errors.Wrapf(errors.ErrInsufficientFunds, "taker holds %d, need %d", src.Amount, e.TakerAmount)
	}
	mintB, err := h.control.GetMint(db, e.MintB)
	if err != nil {
		return nil, err
	}

	if err := checkDestination(db, h.control, msg.TakerAccountA, msg.Taker, e.MintA); err != nil {
		return nil, errors.Wrap(err, "taker account")
	}
	if err := checkDestination(db, h.control, msg.InitializerAccountB, e.Initializer, e.MintB); err != nil {
		return nil, errors.Wrap(err, "initializer account")
	}
	return &exchangePlan{msg: &msg, s: s, taker: taker, mintB: mintB}, nil
}

// settlement is a live escrow about to be released through one of the
// two terminal paths.
type settlement struct {
	escrow *Escrow
	vault  solana.PublicKey
	signer token.Authority
	mintA  *token.Mint
}

// loadSettlement loads the escrow at address and checks that vault is its
// vault. The escrow authority is re-derived from the stored seed material.
func loadSettlement(db weave.ReadOnlyKVStore, bucket Bucket, control token.Controller, address, vault solana.PublicKey) (*settlement, error) {
	e, err := bucket.Get(db, address)
	if err != nil {
		return nil, err
	}
	want, err := VaultAddress(address, e.MintA)
	if err != nil {
		return nil, err
	}
	if !want.Equals(vault) {
		return nil, errors.Wrapf(errors.ErrAssetMismatch, "vault of %s is %s, not %s", address, want, vault)
	}
	conf, err := loadConf(db)
	if err != nil {
		return nil, err
	}
	signer, err := SignerFor(conf.ProgramID, address, e)
	if err != nil {
		return nil, err
	}
	mintA, err := control.GetMint(db, e.MintA)
	if err != nil {
		return nil, err
	}
	return &settlement{escrow: e, vault: vault, signer: signer, mintA: mintA}, nil
}

// release moves the whole vault balance to dest and closes the vault.
func (s *settlement) release(db weave.KVStore, control token.Controller, dest solana.PublicKey) error {
	amount, err := control.Balance(db, s.vault)
	if err != nil {
		return errors.Wrap(err, "vault")
	}
	if err := control.TransferChecked(db, s.signer, s.vault, s.escrow.MintA, dest, amount, s.mintA.Decimals); err != nil {
		return errors.Wrap(err, "release vault")
	}
	if err := control.CloseAccount(db, s.signer, s.vault); err != nil {
		return errors.Wrap(err, "close vault")
	}
	return nil
}

// checkDestination verifies that an existing account at address holds
// mint and belongs to owner. A missing account is accepted only if it can
// be created as the associated account of owner.
func checkDestination(db weave.ReadOnlyKVStore, control token.Controller, address, owner, mint solana.PublicKey) error {
	ok, err := control.HasAccount(db, address)
	if err != nil {
		return err
	}
	if !ok {
		want, err := token.AssociatedAddress(owner, mint)
		if err != nil {
			return err
		}
		if !want.Equals(address) {
			return errors.Wrapf(errors.ErrNotFound, "%s is not the associated account of %s", address, owner)
		}
		return nil
	}
	acc, err := control.GetAccount(db, address)
	if err != nil {
		return err
	}
	if !acc.Mint.Equals(mint) {
		return errors.Wrapf(errors.ErrAssetMismatch, "%s holds %s, not %s", address, acc.Mint, mint)
	}
	if !acc.Owner.Equals(owner) {
		return errors.Wrapf(errors.ErrUnauthorized, "%s is not owned by %s", address, owner)
	}
	return nil
}
