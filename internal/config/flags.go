package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   database DSN (pgx DSN or SQLite path)
//	-r string   database driver ("postgres" or "sqlite")
//	-s string   application secret key
//	-t string   token salt (falls back to secret key when empty)
//	-e string   default expiry expression (e.g., "+1 hour")
//	-o string   owner table name
//	-y string   owner key column name
//	-n          disable the owner existence check
//	-i int      purge interval, minutes (0 runs purge once)
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - The interval flag is accepted as an integer in minutes and then
//     converted to a time.Duration value.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-r", "-s", "-t", "-e", "-o", "-y", "-n", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Driver, "r", config.Driver, "database driver")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.TokenSalt, "t", config.TokenSalt, "token salt")
	fs.StringVar(&config.DefaultExpiry, "e", config.DefaultExpiry, "default expiry expression")
	fs.StringVar(&config.OwnerTable, "o", config.OwnerTable, "owner table")
	fs.StringVar(&config.OwnerKeyColumn, "y", config.OwnerKeyColumn, "owner key column")
	fs.BoolVar(&config.OwnerCheckDisabled, "n", config.OwnerCheckDisabled, "disable owner existence check")

	purgeInterval := fs.Int("i", int(config.PurgeInterval.Minutes()), "purge interval (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.PurgeInterval = time.Duration(*purgeInterval) * time.Minute
}
