package domain

import "strings"

// MaxExternalIDLength is the widest identity the store accepts.
const MaxExternalIDLength = 64

// MaxDerivedIDLength bounds derived external ids to the width the register
// uses for its own identifiers.
const MaxDerivedIDLength = 36

// DeriveExternalID synthesises a deterministic identity from a name when the
// source supplied none. Distinct entities sharing a name collide; callers log
// each derivation so collisions can be patched afterwards.
func DeriveExternalID(name string) string {
	id := []rune(strings.ToLower(strings.TrimSpace(name)))
	if len(id) > MaxDerivedIDLength {
		id = id[:MaxDerivedIDLength]
	}
	return string(id)
}
