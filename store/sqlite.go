package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/tokenkeeper/dbx"
	"github.com/dmitrijs2005/tokenkeeper/token"
)

// SQLiteRepository implements Repository over SQLite (modernc.org/sqlite,
// cgo-free) for embedded and local deployments. Expiry timestamps are stored
// as unix seconds. SQLite serializes writers, so the sweep+insert
// transaction needs no isolation upgrade; busy errors are retried.
type SQLiteRepository struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteRepository constructs a repository bound to the given database.
// The connection pool should be limited to a single connection.
func NewSQLiteRepository(db *sql.DB, opts Options) *SQLiteRepository {
	return &SQLiteRepository{db: db, opts: opts}
}

func (r *SQLiteRepository) Insert(ctx context.Context, draft *token.Draft) (*token.Token, error) {
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
		txErr := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if _, err := liteSweep(ctx, tx, draft, time.Now()); err != nil {
				return err
			}

			query := `
		INSERT INTO tokens (owner_id, token, kind, payload, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`
			res, err := tx.ExecContext(ctx, query,
				draft.OwnerID, draft.Digest, draft.Kind, payload, expiresAt.Unix())
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}

			tok = &token.Token{
				ID:        id,
				OwnerID:   draft.OwnerID,
				Digest:    draft.Digest,
				Kind:      draft.Kind,
				Payload:   draft.Payload,
				ExpiresAt: time.Unix(expiresAt.Unix(), 0),
			}
			return nil
		})
		if isBusy(txErr) {
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (r *SQLiteRepository) Sweep(ctx context.Context, draft *token.Draft) (int64, error) {
	return liteSweep(ctx, r.db, draft, time.Now())
}

func (r *SQLiteRepository) DeleteExpired(ctx context.Context) (int64, error) {
	return liteSweep(ctx, r.db, nil, time.Now())
}

func (r *SQLiteRepository) FindActive(ctx context.Context, f Filter) ([]*token.Token, error) {
	return r.findWhere(ctx, "expires_at >= ?", f)
}

func (r *SQLiteRepository) FindExpired(ctx context.Context, f Filter) ([]*token.Token, error) {
	return r.findWhere(ctx, "expires_at < ?", f)
}

func (r *SQLiteRepository) FindByDigest(ctx context.Context, digest string, f Filter) ([]*token.Token, error) {
	f.Digest = digest
	return r.FindActive(ctx, f)
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id int64) error {
	query := `
		DELETE FROM tokens
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func liteSweep(ctx context.Context, db dbx.DBTX, draft *token.Draft, now time.Time) (int64, error) {
	conds := []string{"expires_at < ?"}
	args := []any{now.Unix()}

	if draft != nil && draft.Digest != "" {
		conds = append(conds, "token = ?")
		args = append(args, draft.Digest)
	}
	if draft != nil && draft.OwnerID != nil {
		conds = append(conds, "owner_id = ?")
		args = append(args, *draft.OwnerID)
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

func (r *SQLiteRepository) findWhere(ctx context.Context, timeCond string, f Filter) ([]*token.Token, error) {
	conds := []string{timeCond}
	args := []any{time.Now().Unix()}

	if f.Digest != "" {
		conds = append(conds, "token = ?")
		args = append(args, f.Digest)
	}
	if f.matchOwner {
		// IS is SQLite's null-safe equality.
		conds = append(conds, "owner_id IS ?")
		args = append(args, f.ownerID)
	}
	if f.matchKind {
		conds = append(conds, "kind IS ?")
		args = append(args, f.kind)
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
			expires int64
		)
		if err := rows.Scan(&t.ID, &owner, &t.Digest, &kind, &payload, &expires); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if owner.Valid {
			t.OwnerID = &owner.Int64
		}
		if kind.Valid {
			t.Kind = &kind.String
		}
		t.Payload = deserializePayload(payload)
		t.ExpiresAt = time.Unix(expires, 0)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database is busy")
}
