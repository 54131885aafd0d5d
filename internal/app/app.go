// Package app wires the tokenkeeper maintenance commands: it loads
// configuration, opens the configured store and dispatches the issue,
// check, revoke and purge commands. Purge can run once or on an interval
// until the process receives a termination signal.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/lifecycle"
	"github.com/dmitrijs2005/tokenkeeper/store"
	"github.com/dmitrijs2005/tokenkeeper/token"
)

// ErrUnknownCommand is returned when the first argument is not one of the
// supported commands.
var ErrUnknownCommand = errors.New("unknown command (expected issue, check, revoke or purge)")

// cmdArgs carries the per-command flags.
type cmdArgs struct {
	value   string
	ownerID *int64
	kind    string
	expiry  string
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	manager *store.Manager
	service *lifecycle.Service
}

// NewApp opens the configured database, runs migrations and wires the
// token service. The caller owns the returned App and must Close it.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	mc := store.ManagerConfig{
		DefaultExpiry:      cfg.DefaultExpiry,
		OwnerTable:         cfg.OwnerTable,
		OwnerKeyColumn:     cfg.OwnerKeyColumn,
		OwnerCheckDisabled: cfg.OwnerCheckDisabled,
	}

	var (
		m   *store.Manager
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		m, err = store.NewSQLiteManager(ctx, cfg.DatabaseDSN, mc)
	default:
		m, err = store.NewPostgresManager(ctx, cfg.DatabaseDSN, mc)
	}
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	salt := cfg.TokenSalt
	if salt == "" {
		salt = cfg.SecretKey
	}

	service := lifecycle.NewService(token.NewHasher(salt), m.Tokens())

	return &App{config: cfg, logger: logger, manager: m, service: service}, nil
}

// Close releases the database connection.
func (app *App) Close() error {
	return app.manager.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// parseCmdArgs reads the per-command flags from args. The owner scope is
// tri-state: the pointer stays nil unless -owner was given.
func parseCmdArgs(args []string) (*cmdArgs, error) {
	filtered := flagx.FilterArgs(args, []string{"-value", "-owner", "-kind", "-expiry"})

	fs := flag.NewFlagSet("cmd", flag.ContinueOnError)
	value := fs.String("value", "", "raw token value (issue generates one when empty)")
	owner := fs.Int64("owner", 0, "owner id scope")
	kind := fs.String("kind", "", "token kind")
	expiry := fs.String("expiry", "", "expiry expression, e.g. \"+1 hour\"")

	if err := fs.Parse(filtered); err != nil {
		return nil, err
	}

	c := &cmdArgs{value: *value, kind: *kind, expiry: *expiry}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "owner" {
			c.ownerID = owner
		}
	})
	return c, nil
}

// command returns the leading argument. The command must come before any
// flags, git style: "tokenkeeper issue -owner 7".
func command(args []string) string {
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		return args[0]
	}
	return ""
}

// Run dispatches the command named on the command line.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	cmd := command(os.Args[1:])

	args, err := parseCmdArgs(os.Args[1:])
	if err != nil {
		return err
	}

	switch cmd {
	case "issue":
		return app.runIssue(ctx, args)
	case "check":
		return app.runCheck(ctx, args)
	case "revoke":
		return app.runRevoke(ctx, args)
	case "purge":
		return app.runPurge(ctx)
	default:
		return ErrUnknownCommand
	}
}

func (app *App) runIssue(ctx context.Context, args *cmdArgs) error {
	raw := args.value
	if raw == "" {
		raw = common.NewRawValue()
	}

	opts := lifecycle.IssueOptions{OwnerID: args.ownerID, Kind: args.kind}
	if args.expiry != "" {
		opts.Expiry = token.In(args.expiry)
	}

	digest, err := app.service.Issue(ctx, raw, opts)
	if err != nil {
		app.logger.Error(ctx, "issue failed", "error", err.Error())
		return err
	}

	app.logger.Info(ctx, "token issued", "digest", digest)
	fmt.Println(raw)
	return nil
}

func (app *App) runCheck(ctx context.Context, args *cmdArgs) error {
	ok, err := app.service.Check(ctx, args.value, app.scope(args))
	if err != nil {
		app.logger.Error(ctx, "check failed", "error", err.Error())
		return err
	}

	app.logger.Info(ctx, "token checked", "active", ok)
	fmt.Println(ok)
	return nil
}

func (app *App) runRevoke(ctx context.Context, args *cmdArgs) error {
	ok, err := app.service.Revoke(ctx, args.value, app.scope(args))
	if err != nil {
		app.logger.Error(ctx, "revoke failed", "error", err.Error())
		return err
	}

	app.logger.Info(ctx, "token revoked", "revoked", ok)
	fmt.Println(ok)
	return nil
}

// runPurge deletes expired rows once, or repeatedly when PurgeInterval is
// positive. The loop stops when the context is cancelled.
func (app *App) runPurge(ctx context.Context) error {
	if app.config.PurgeInterval <= 0 {
		return app.purgeOnce(ctx)
	}

	app.logger.Info(ctx, "starting purge loop", "interval", app.config.PurgeInterval.String())

	ticker := time.NewTicker(app.config.PurgeInterval)
	defer ticker.Stop()

	if err := app.purgeOnce(ctx); err != nil {
		app.logger.Error(ctx, "purge failed", "error", err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			app.logger.Info(ctx, "stopping purge loop")
			return nil
		case <-ticker.C:
			if err := app.purgeOnce(ctx); err != nil {
				app.logger.Error(ctx, "purge failed", "error", err.Error())
			}
		}
	}
}

func (app *App) purgeOnce(ctx context.Context) error {
	affected, err := app.manager.Tokens().DeleteExpired(ctx)
	if err != nil {
		return err
	}
	app.logger.Info(ctx, "purged expired tokens", "affected", affected)
	return nil
}

func (app *App) scope(args *cmdArgs) lifecycle.Scope {
	s := lifecycle.Scope{OwnerID: args.ownerID}
	if args.kind != "" {
		kind := args.kind
		s.Kind = &kind
	}
	return s
}
