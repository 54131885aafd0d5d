package token

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Field names used in validation errors, matching the stored columns.
const (
	FieldToken  = "token"
	FieldOwner  = "owner_id"
	FieldKind   = "kind"
	FieldExpiry = "expiry"
)

// FieldOrder fixes the reporting order for validation failures: when several
// fields fail, single-message callers see the first field in this order.
var FieldOrder = []string{FieldToken, FieldOwner, FieldKind, FieldExpiry}

// Rule names used in validation errors.
const (
	RuleRequired      = "required"
	RuleNotEmpty      = "notEmpty"
	RuleLengthBetween = "lengthBetween"
	RuleInvalidExpiry = "invalidExpiry"
	RuleExistsIn      = "existsIn"
)

// FieldError is a single failed rule on a field.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

// ValidationErrors collects failed field rules. It keeps insertion order per
// field so the "first" error is deterministic, and it implements error with
// a single collapsed message for simple callers; structured access stays
// available through Fields.
type ValidationErrors struct {
	errs []FieldError
}

// Add records a failed rule. Within a field, rules keep insertion order.
func (e *ValidationErrors) Add(field, rule, message string) {
	e.errs = append(e.errs, FieldError{Field: field, Rule: rule, Message: message})
}

// Empty reports whether no rule failed.
func (e *ValidationErrors) Empty() bool {
	return e == nil || len(e.errs) == 0
}

// Fields returns the structured form: field name -> rule name -> message.
func (e *ValidationErrors) Fields() map[string]map[string]string {
	out := make(map[string]map[string]string, len(e.errs))
	for _, fe := range e.errs {
		m, ok := out[fe.Field]
		if !ok {
			m = make(map[string]string)
			out[fe.Field] = m
		}
		if _, dup := m[fe.Rule]; !dup {
			m[fe.Rule] = fe.Message
		}
	}
	return out
}

// First returns the first failed rule: fields are ordered by FieldOrder,
// rules within a field by insertion order.
func (e *ValidationErrors) First() FieldError {
	for _, field := range FieldOrder {
		for _, fe := range e.errs {
			if fe.Field == field {
				return fe
			}
		}
	}
	if len(e.errs) > 0 {
		return e.errs[0]
	}
	return FieldError{}
}

// Error formats the first failure as "Error for `<field>` field: <reason>".
func (e *ValidationErrors) Error() string {
	fe := e.First()
	return fmt.Sprintf("Error for `%s` field: %s", fe.Field, lcFirst(fe.Message))
}

// Is lets errors.Is(err, ErrInvalidExpiry) match when the expiry rule failed.
func (e *ValidationErrors) Is(target error) bool {
	if !errors.Is(target, ErrInvalidExpiry) {
		return false
	}
	for _, fe := range e.errs {
		if fe.Field == FieldExpiry && fe.Rule == RuleInvalidExpiry {
			return true
		}
	}
	return false
}

func lcFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
