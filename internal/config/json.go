package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. Every field is a pointer so that keys absent from the file
// can be told apart from zero values; only present keys overlay the runtime
// Config. Durations use timex.Duration, which allows parsing both string
// values such as "10m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files.
type JsonConfig struct {
	DatabaseDSN        *string         `json:"database_dsn"`
	Driver             *string         `json:"driver"`
	SecretKey          *string         `json:"secret_key"`
	TokenSalt          *string         `json:"token_salt"`
	DefaultExpiry      *string         `json:"default_expiry"`
	OwnerTable         *string         `json:"owner_table"`
	OwnerKeyColumn     *string         `json:"owner_key_column"`
	OwnerCheckDisabled *bool           `json:"owner_check_disabled"`
	PurgeInterval      *timex.Duration `json:"purge_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. Keys missing from the file leave the current values
// untouched.
//
// The JSON file path is taken from the -c or -config command-line flags.
// If neither is set, no JSON file is loaded and the Config is left
// untouched. If the file cannot be read or contains invalid JSON, the
// function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.Driver != nil {
		config.Driver = *c.Driver
	}
	if c.SecretKey != nil {
		config.SecretKey = *c.SecretKey
	}
	if c.TokenSalt != nil {
		config.TokenSalt = *c.TokenSalt
	}
	if c.DefaultExpiry != nil {
		config.DefaultExpiry = *c.DefaultExpiry
	}
	if c.OwnerTable != nil {
		config.OwnerTable = *c.OwnerTable
	}
	if c.OwnerKeyColumn != nil {
		config.OwnerKeyColumn = *c.OwnerKeyColumn
	}
	if c.OwnerCheckDisabled != nil {
		config.OwnerCheckDisabled = *c.OwnerCheckDisabled
	}
	if c.PurgeInterval != nil {
		config.PurgeInterval = time.Duration(c.PurgeInterval.Duration)
	}
}
