package escrow

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/gconf"
	"github.com/iov-one/weave-escrow/x"
)

// ConfigurationPkg is the key the escrow configuration is saved under.
const ConfigurationPkg = "escrow"

// DefaultProgramID is used to derive escrow addresses when the genesis
// does not configure one.
var DefaultProgramID = solana.MustPublicKeyFromBase58("8d4qfn4fqq9EdVTNVWoD27sQPHqHhvmqvAHUm9Z4tbtw")

var configurationDiscriminator = x.AccountDiscriminator("EscrowConfiguration")

// Configuration is the on-ledger configuration of the escrow extension.
type Configuration struct {
	// ProgramID is the program every escrow address is derived under.
	ProgramID solana.PublicKey `json:"program_id"`
}

var _ gconf.Configuration = (*Configuration)(nil)

func (c *Configuration) Validate() error {
	if c.ProgramID.IsZero() {
		return errors.Field("ProgramID", errors.ErrEmpty, "required")
	}
	return nil
}

func (c *Configuration) Marshal() ([]byte, error) {
	return x.Encode(configurationDiscriminator, func(enc *bin.Encoder) error {
		return x.WritePublicKey(enc, c.ProgramID)
	})
}

func (c *Configuration) Unmarshal(raw []byte) error {
	return x.Decode(raw, configurationDiscriminator, func(dec *bin.Decoder) (err error) {
		c.ProgramID, err = x.ReadPublicKey(dec)
		return err
	})
}

// loadConf returns the saved configuration, or the default one if none
// was saved.
func loadConf(db gconf.ReadStore) (*Configuration, error) {
	var conf Configuration
	switch err := gconf.Load(db, ConfigurationPkg, &conf); {
	case err == nil:
		return &conf, nil
	case errors.ErrNotFound.Is(err):
		return &Configuration{ProgramID: DefaultProgramID}, nil
	default:
		return nil, errors.Wrap(err, "load configuration")
	}
}
