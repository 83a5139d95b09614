package main

import (
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// tomlSettings matches go-ethereum's own cmd/geth config.go convention:
// field names pass through unchanged, and an unrecognized key in the file
// is a hard error rather than silently ignored.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field %q is not defined in %s", field, rt.String())
	},
}

// Config is the replay driver's configuration (spec.md §6: the core itself
// takes none of this; it is entirely an outer-layer concern of this example
// binary), matching go-ethereum's own gethConfig/loadConfig TOML convention
// (cmd/geth's config_test.go exercises the identical loadConfig(path, &cfg)
// shape).
type Config struct {
	// BinShift is B from spec.md §3: bin count is 1<<BinShift.
	BinShift uint
	// Workers is the number of simulated workers P.
	Workers uint32
	// Plan is the path to a migration plan file (planfile's ASCII grammar).
	Plan string
	// MetricsAddr is the listen address for the /metrics endpoint; empty
	// disables it.
	MetricsAddr string
}

func defaultConfig() Config {
	return Config{
		BinShift:    4,
		Workers:     2,
		MetricsAddr: "127.0.0.1:6060",
	}
}

func loadConfig(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return tomlSettings.NewDecoder(f).Decode(cfg)
}
