package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/dmitrijs2005/tokenkeeper/owners"
	"github.com/dmitrijs2005/tokenkeeper/token"
)

// validateDraft runs field validation on a draft. expiryErr carries the
// outcome of expiry resolution so resolution failures surface as a
// field-level error alongside the others.
//
// The second return value is an infrastructure failure from the owner
// lookup; it is distinct from validation and propagates as-is.
func validateDraft(ctx context.Context, d *token.Draft, expiryErr error, checker owners.Checker) (*token.ValidationErrors, error) {
	verrs := &token.ValidationErrors{}

	if d.Digest == "" {
		verrs.Add(token.FieldToken, token.RuleNotEmpty, "this field cannot be left empty")
	}

	if d.OwnerID != nil && checker != nil {
		ok, err := checker.Exists(ctx, *d.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("owner check error: %w", err)
		}
		if !ok {
			verrs.Add(token.FieldOwner, token.RuleExistsIn, "this value does not exist")
		}
	}

	if d.Kind != nil {
		// Characters, not bytes: multibyte kinds count per rune.
		if n := utf8.RuneCountInString(*d.Kind); n < 3 || n > 255 {
			verrs.Add(token.FieldKind, token.RuleLengthBetween, "must be between 3 and 255 characters")
		}
	}

	if expiryErr != nil {
		verrs.Add(token.FieldExpiry, token.RuleInvalidExpiry, expiryErr.Error())
	}

	if verrs.Empty() {
		return nil, nil
	}
	return verrs, nil
}
