package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/tokenkeeper/dbx"
	"github.com/dmitrijs2005/tokenkeeper/token"
)

const (
	insertMaxRetries = 3
	insertRetryBase  = 10 * time.Millisecond
)

// PostgresRepository implements Repository over PostgreSQL (pgx stdlib
// driver). Insert wraps sweep+insert in a serializable transaction and
// retries serialization failures, so at most one active row per digest or
// owner survives concurrent issues.
type PostgresRepository struct {
	db   *sql.DB
	opts Options
}

// NewPostgresRepository constructs a repository bound to the given database.
func NewPostgresRepository(db *sql.DB, opts Options) *PostgresRepository {
	return &PostgresRepository{db: db, opts: opts}
}

func (r *PostgresRepository) Insert(ctx context.Context, draft *token.Draft) (*token.Token, error) {
	now := time.Now()

	expiresAt, expErr := token.Resolve(draft.Expiry, r.opts.defaultExpiry(), now)

	payload, err := serializePayload(draft.Payload)
	if err != nil {
		return nil, err
	}

	verrs, err := validateDraft(ctx, draft, expErr, r.opts.Owners)
	if err != nil {
		return nil, err
	}
	if verrs != nil {
		return nil, verrs
	}

	var tok *token.Token
	backoff := retry.WithMaxRetries(insertMaxRetries, retry.NewExponential(insertRetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := dbx.WithTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx dbx.DBTX) error {
			if _, err := pgSweep(ctx, tx, draft, time.Now()); err != nil {
				return err
			}

			query := `
		INSERT INTO tokens (owner_id, token, kind, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
			var id int64
			if err := tx.QueryRowContext(ctx, query,
				draft.OwnerID, draft.Digest, draft.Kind, payload, expiresAt).Scan(&id); err != nil {
				return fmt.Errorf("db error: %w", err)
			}

			tok = &token.Token{
				ID:        id,
				OwnerID:   draft.OwnerID,
				Digest:    draft.Digest,
				Kind:      draft.Kind,
				Payload:   draft.Payload,
				ExpiresAt: expiresAt,
			}
			return nil
		})
		if isSerializationFailure(txErr) {
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (r *PostgresRepository) Sweep(ctx context.Context, draft *token.Draft) (int64, error) {
	return pgSweep(ctx, r.db, draft, time.Now())
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	return pgSweep(ctx, r.db, nil, time.Now())
}

func (r *PostgresRepository) FindActive(ctx context.Context, f Filter) ([]*token.Token, error) {
	return r.findWhere(ctx, "expires_at >= $1", f)
}

func (r *PostgresRepository) FindExpired(ctx context.Context, f Filter) ([]*token.Token, error) {
	return r.findWhere(ctx, "expires_at < $1", f)
}

func (r *PostgresRepository) FindByDigest(ctx context.Context, digest string, f Filter) ([]*token.Token, error) {
	f.Digest = digest
	return r.FindActive(ctx, f)
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id int64) error {
	query := `
		DELETE FROM tokens
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// pgSweep runs the conditional delete: expired rows always, plus digest and
// owner collisions when the draft carries them. The conditions are
// OR-combined on purpose; a digest or owner match deletes regardless of
// expiry.
func pgSweep(ctx context.Context, db dbx.DBTX, draft *token.Draft, now time.Time) (int64, error) {
	conds := []string{"expires_at < $1"}
	args := []any{now}

	if draft != nil && draft.Digest != "" {
		args = append(args, draft.Digest)
		conds = append(conds, fmt.Sprintf("token = $%d", len(args)))
	}
	if draft != nil && draft.OwnerID != nil {
		args = append(args, *draft.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}

	query := "DELETE FROM tokens WHERE " + strings.Join(conds, " OR ")
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}

func (r *PostgresRepository) findWhere(ctx context.Context, timeCond string, f Filter) ([]*token.Token, error) {
	conds := []string{timeCond}
	args := []any{time.Now()}

	if f.Digest != "" {
		args = append(args, f.Digest)
		conds = append(conds, fmt.Sprintf("token = $%d", len(args)))
	}
	if f.matchOwner {
		args = append(args, f.ownerID)
		conds = append(conds, fmt.Sprintf("owner_id IS NOT DISTINCT FROM $%d", len(args)))
	}
	if f.matchKind {
		args = append(args, f.kind)
		conds = append(conds, fmt.Sprintf("kind IS NOT DISTINCT FROM $%d", len(args)))
	}

	query := `SELECT id, owner_id, token, kind, payload, expires_at FROM tokens WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*token.Token
	for rows.Next() {
		var (
			t       token.Token
			owner   sql.NullInt64
			kind    sql.NullString
			payload sql.NullString
		)
		if err := rows.Scan(&t.ID, &owner, &t.Digest, &kind, &payload, &t.ExpiresAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if owner.Valid {
			t.OwnerID = &owner.Int64
		}
		if kind.Valid {
			t.Kind = &kind.String
		}
		t.Payload = deserializePayload(payload)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// isSerializationFailure reports SQLSTATE 40001: Postgres aborted one of two
// overlapping serializable transactions, and the insert is safe to retry.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
