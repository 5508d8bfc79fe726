package escrow

import (
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/gconf"
)

// Initializer saves the escrow configuration from genesis. A genesis
// without an escrow configuration keeps DefaultProgramID.
type Initializer struct{}

var _ weave.Initializer = Initializer{}

// FromGenesis will parse initial configuration from genesis and save it.
func (Initializer) FromGenesis(opts weave.Options, db weave.KVStore) error {
	var conf Configuration
	err := gconf.InitConfig(db, opts, ConfigurationPkg, &conf)
	if err != nil && !errors.ErrNotFound.Is(err) {
		return errors.Wrap(err, "init config")
	}
	return nil
}
