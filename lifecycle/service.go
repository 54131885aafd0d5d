// Package lifecycle exposes the token engine used by host applications:
// issue a token for a raw value, check it later, revoke it. It composes the
// digest function, the expiry rules and a token store; any host component
// that needs token handling holds a *Service and delegates to it.
package lifecycle

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/store"
	"github.com/dmitrijs2005/tokenkeeper/token"
)

// Service is the issue/check/revoke engine. It is safe for concurrent use;
// it holds no mutable state of its own.
type Service struct {
	hasher *token.Hasher
	repo   store.Repository
}

// NewService constructs a Service around a hasher and a token repository.
func NewService(hasher *token.Hasher, repo store.Repository) *Service {
	return &Service{hasher: hasher, repo: repo}
}

// IssueOptions carries the optional fields of a new token.
type IssueOptions struct {
	// OwnerID scopes the token to an owner; checks must then pass the same
	// owner scope.
	OwnerID *int64

	// Kind is a free-text classifier such as "registration"; empty means
	// unclassified.
	Kind string

	// Payload is arbitrary host data stored with the token.
	Payload any

	// Expiry overrides the configured default.
	Expiry token.Expiry
}

// Issue hashes the raw value, stores a token draft and returns the digest
// actually stored. The digest, not the raw value, is what the caller must
// keep and present later.
//
// On validation failure the returned error reads
// "Error for `<field>` field: <reason>" for the first failing field; the
// structured form stays reachable via errors.As with *token.ValidationErrors.
func (s *Service) Issue(ctx context.Context, raw any, opts IssueOptions) (string, error) {
	draft := &token.Draft{
		Digest:  s.hasher.Hash(raw),
		OwnerID: opts.OwnerID,
		Payload: opts.Payload,
		Expiry:  opts.Expiry,
	}
	if opts.Kind != "" {
		kind := opts.Kind
		draft.Kind = &kind
	}

	tok, err := s.repo.Insert(ctx, draft)
	if err != nil {
		return "", err
	}
	return tok.Digest, nil
}

// Scope narrows Check and Revoke to the owner/kind a token was issued with.
// Scoping is strict: a nil field requires the stored column to be NULL, so
// checking without the owner scope will not match an owner-scoped token.
// Callers must pass the same scoping they issued with.
type Scope struct {
	OwnerID *int64
	Kind    *string
}

// Check reports whether an active token exists for the raw value under the
// given scope. A missing token is not an error.
func (s *Service) Check(ctx context.Context, raw any, scope Scope) (bool, error) {
	matches, err := s.find(ctx, raw, scope)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// Revoke deletes the first active token matching the raw value under the
// given scope. It reports whether a token was deleted and never removes
// more than one row per call.
func (s *Service) Revoke(ctx context.Context, raw any, scope Scope) (bool, error) {
	matches, err := s.find(ctx, raw, scope)
	if err != nil {
		return false, err
	}
	if len(matches) == 0 {
		return false, nil
	}
	if err := s.repo.DeleteByID(ctx, matches[0].ID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) find(ctx context.Context, raw any, scope Scope) ([]*token.Token, error) {
	digest := s.hasher.Hash(raw)
	if digest == "" {
		// An empty raw value can never have been stored.
		return nil, nil
	}
	f := store.Filter{}.WithOwner(scope.OwnerID).WithKind(scope.Kind)
	return s.repo.FindByDigest(ctx, digest, f)
}
