package gconf

import (
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
)

// ReadStore is the subset of weave.ReadOnlyKVStore Load needs.
type ReadStore interface {
	Get([]byte) ([]byte, error)
}

// Store is the subset of weave.KVStore Save needs.
type Store interface {
	ReadStore
	Set([]byte, []byte) error
}

// ValidMarshaler is a configuration that can be validated and serialized.
type ValidMarshaler interface {
	weave.Marshaller
	Validate() error
}

// Unmarshaler is a configuration that can be loaded from its binary form.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Configuration is implemented by every extension configuration.
type Configuration interface {
	ValidMarshaler
	Unmarshaler
}

func key(pkg string) []byte {
	return []byte("_c:" + pkg)
}

// Save validates src and writes it as the configuration of pkg.
func Save(db Store, pkg string, src ValidMarshaler) error {
	k := key(pkg)
	if err := src.Validate(); err != nil {
		return errors.Wrapf(err, "validation: key %q", k)
	}
	raw, err := src.Marshal()
	if err != nil {
		return errors.Wrapf(err, "marshal: key %q", k)
	}
	if err := db.Set(k, raw); err != nil {
		return errors.Wrapf(err, "store: key %q", k)
	}
	return nil
}

// Load reads the configuration of pkg into dst. ErrNotFound is returned
// when no configuration was saved.
func Load(db ReadStore, pkg string, dst Unmarshaler) error {
	k := key(pkg)
	raw, err := db.Get(k)
	if err != nil {
		return errors.Wrapf(err, "load: key %q", k)
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "key %q", k)
	}
	if err := dst.Unmarshal(raw); err != nil {
		return errors.Wrapf(errors.ErrState, "unmarshal: key %q: %s", k, err)
	}
	return nil
}

// InitConfig reads opts["conf"][pkg] into conf, validates it and saves it.
// ErrNotFound is returned if the genesis does not configure pkg.
func InitConfig(db Store, opts weave.Options, pkg string, conf Configuration) error {
	var confOptions weave.Options
	if err := opts.ReadOptions("conf", &confOptions); err != nil {
		return errors.Wrapf(errors.ErrInput, "read conf: %s", err)
	}
	if len(confOptions[pkg]) == 0 {
		return errors.Wrapf(errors.ErrNotFound, "no configuration in genesis for %q package", pkg)
	}
	if err := confOptions.ReadOptions(pkg, conf); err != nil {
		return errors.Wrapf(errors.ErrInput, "read configuration for %s: %s", pkg, err)
	}
	if err := Save(db, pkg, conf); err != nil {
		return errors.Wrapf(err, "save configuration for %s", pkg)
	}
	return nil
}
