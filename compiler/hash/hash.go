// Package hash computes content hashes of compiled prototypes.
package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/tern/vm"
)

// Sum is a SHA-256 content hash.
type Sum [32]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// Short returns the first 12 hex digits.
func (s Sum) Short() string {
	return s.String()[:12]
}

// HashProto computes the SHA-256 content hash of a prototype tree.
//
// The hash covers the canonical serialization of the normalized tree, so two
// prototypes with the same code, literals and calling contracts hash the
// same even when their names, local names or line numbers differ.
func HashProto(p *vm.FunctionProto) (Sum, error) {
	data, err := Serialize(Normalize(p))
	if err != nil {
		return Sum{}, err
	}
	return sha256.Sum256(data), nil
}
