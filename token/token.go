// Package token defines the token entity, the digest function and the expiry
// resolution rules shared by every storage backend.
//
// A token row is immutable once written: the only transitions are expiry
// (time passing its ExpiresAt) and deletion (an explicit revoke or the
// pre-insert sweep). There is no renew or update path.
package token

import "time"

// Token is a stored single-use credential.
//
// Digest is the opaque 25-character value handed back to the host on issue;
// the raw secret is never stored. OwnerID and Kind are optional scoping
// fields. Payload is arbitrary host data, serialized to JSON for storage.
type Token struct {
	ID        int64
	OwnerID   *int64
	Digest    string
	Kind      *string
	Payload   any
	ExpiresAt time.Time
}

// Active reports whether the token has not yet expired at the given instant.
// Active vs. expired is always evaluated at query time, never cached.
func (t *Token) Active(now time.Time) bool {
	return !t.ExpiresAt.Before(now)
}

// Draft is a candidate row passed to a store for insertion. Digest is
// mandatory; everything else is optional. A zero Expiry makes the store
// apply its configured default.
type Draft struct {
	OwnerID *int64
	Digest  string
	Kind    *string
	Payload any
	Expiry  Expiry
}
