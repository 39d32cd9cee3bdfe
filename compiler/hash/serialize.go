package hash

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Deterministic serialization of the frozen hashing tree.
//
// Canonical CBOR: map keys sorted, shortest integer and float forms, no
// indefinite lengths. The bytes are suitable for SHA-256.
// ---------------------------------------------------------------------------

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("hash: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Serialize produces the canonical CBOR bytes of a hashing tree.
func Serialize(h *HProto) ([]byte, error) {
	data, err := encMode.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("hash: serialize: %w", err)
	}
	return data, nil
}

// Deserialize parses bytes produced by Serialize.
func Deserialize(data []byte) (*HProto, error) {
	var h HProto
	if err := cbor.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("hash: deserialize: %w", err)
	}
	return &h, nil
}
