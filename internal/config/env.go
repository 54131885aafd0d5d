package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays configuration values from the process environment.
// A .env file in the working directory is loaded first when present;
// a missing file is not an error. Unset variables leave the current
// value untouched.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	if v, ok := os.LookupEnv("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("DATABASE_DRIVER"); ok {
		config.Driver = v
	}
	if v, ok := os.LookupEnv("SECRET_KEY"); ok {
		config.SecretKey = v
	}
	if v, ok := os.LookupEnv("TOKEN_SALT"); ok {
		config.TokenSalt = v
	}
	if v, ok := os.LookupEnv("DEFAULT_EXPIRY"); ok {
		config.DefaultExpiry = v
	}
	if v, ok := os.LookupEnv("OWNER_TABLE"); ok {
		config.OwnerTable = v
	}
	if v, ok := os.LookupEnv("OWNER_KEY_COLUMN"); ok {
		config.OwnerKeyColumn = v
	}
	if v, ok := os.LookupEnv("OWNER_CHECK_DISABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			config.OwnerCheckDisabled = b
		}
	}
	if v, ok := os.LookupEnv("PURGE_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			config.PurgeInterval = d
		}
	}
}
