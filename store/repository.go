// Package store persists token rows and enforces the sweep-then-insert
// protocol: every insert first deletes, in one conditional statement, all
// expired rows plus rows colliding with the candidate by digest or owner.
// Expiry cleanup is thereby amortized onto write traffic; no background
// scheduler is required.
package store

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/owners"
	"github.com/dmitrijs2005/tokenkeeper/token"
)

// DefaultExpiry is the relative expression applied when a draft carries no
// expiry and the repository was configured without one.
const DefaultExpiry = "+1 hour"

// Options configures a repository.
type Options struct {
	// DefaultExpiry is a relative expression such as "+1 hour"; empty means
	// DefaultExpiry.
	DefaultExpiry string

	// Owners validates the referential integrity of draft owner ids.
	// Nil disables the owner association entirely.
	Owners owners.Checker
}

func (o Options) defaultExpiry() string {
	if o.DefaultExpiry == "" {
		return DefaultExpiry
	}
	return o.DefaultExpiry
}

// Filter narrows token queries. Owner and kind are tri-state: leave the
// matcher unset to ignore the column, set it with a nil value to require
// NULL, or set it with a value to require equality. The lifecycle always
// sets both matchers, so checking without an owner scope will not match an
// owner-scoped row; maintenance callers typically set neither.
type Filter struct {
	Digest string

	matchOwner bool
	ownerID    *int64

	matchKind bool
	kind      *string
}

// WithOwner requires the stored owner_id to equal id, or to be NULL when id
// is nil.
func (f Filter) WithOwner(id *int64) Filter {
	f.matchOwner = true
	f.ownerID = id
	return f
}

// WithKind requires the stored kind to equal kind, or to be NULL when kind
// is nil.
func (f Filter) WithKind(kind *string) Filter {
	f.matchKind = true
	f.kind = kind
	return f
}

// Repository is the persistence contract for tokens.
//
// Absence is never an error: lookups return empty slices and deletes of
// missing rows succeed. Validation failures are returned as
// *token.ValidationErrors; only infrastructure failures are plain errors.
type Repository interface {
	// Insert applies the default expiry, serializes the payload, validates
	// the draft (digest required and non-empty, kind length 3-255 when
	// present, expiry resolvable, owner existing when the association is
	// enabled) and then, in one transaction, sweeps conflicting rows and
	// writes the new one. Nothing is written on validation failure.
	Insert(ctx context.Context, draft *token.Draft) (*token.Token, error)

	// Sweep deletes, in one statement, every expired row plus rows matching
	// the draft's digest or owner (the conditions are OR-combined). A nil
	// draft deletes expired rows only. Returns the affected row count.
	Sweep(ctx context.Context, draft *token.Draft) (int64, error)

	// FindActive returns rows whose expiry has not passed, narrowed by f.
	// Each call re-evaluates "now" and re-queries.
	FindActive(ctx context.Context, f Filter) ([]*token.Token, error)

	// FindExpired returns rows whose expiry has passed, narrowed by f.
	FindExpired(ctx context.Context, f Filter) ([]*token.Token, error)

	// FindByDigest returns active rows with the given digest, narrowed by f.
	FindByDigest(ctx context.Context, digest string, f Filter) ([]*token.Token, error)

	// DeleteExpired is Sweep with no candidate, for standalone maintenance.
	DeleteExpired(ctx context.Context) (int64, error)

	// DeleteByID removes a single row. Missing rows are not an error.
	DeleteByID(ctx context.Context, id int64) error
}
