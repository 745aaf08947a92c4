// Package idgen generates the 24-character hex identifiers used throughout
// DocRouter for durable entities (documents, revisions, results, ...).
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Len is the canonical length of a DocRouter identifier.
const Len = 24

// New returns a fresh random 24-character hex identifier.
func New() string {
	buf := make([]byte, Len/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken;
		// there is no sane recovery, so surface it loudly.
		panic(fmt.Sprintf("idgen: reading random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}

// Valid reports whether s has the shape of a DocRouter identifier.
func Valid(s string) bool {
	if len(s) != Len {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
