package token

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DigestLength is the stored length of a token digest.
const DigestLength = 25

// Hasher derives fixed-length opaque digests from raw token values.
// The same salt must be used for issuing and checking; hosts normally
// take it from config and fall back to the application-wide secret.
type Hasher struct {
	salt string
}

// NewHasher returns a Hasher using the given salt.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// Hash maps a raw value to its stored digest: the first DigestLength hex
// characters of SHA-1(salt + canonical form). Strings and byte slices are
// hashed as-is; any other value is serialized to canonical JSON first, so
// structurally equal inputs produce equal digests.
//
// Nil and empty inputs map to the empty digest. That short-circuit
// propagates absence instead of hashing it; the store's non-empty rule
// rejects such drafts later. Hash is total and never fails.
func (h *Hasher) Hash(value any) string {
	s := canonicalString(value)
	if s == "" {
		return ""
	}
	sum := sha1.Sum([]byte(h.salt + s))
	return hex.EncodeToString(sum[:])[:DigestLength]
}

func canonicalString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			// Unserializable values degrade to their Go string form so the
			// function stays total.
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
