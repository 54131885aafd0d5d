// Package common holds small helpers shared by the maintenance tooling.
package common

import "github.com/google/uuid"

// NewRawValue returns a fresh random raw token value. Hosts that do not
// care about the raw value (e.g. email confirmation links) can issue with
// this and hand out the digest.
func NewRawValue() string {
	return uuid.NewString()
}
