package hash

// ---------------------------------------------------------------------------
// Frozen hashing types.
//
// These are stripped-down parallels of vm.FunctionProto with no names, source
// files or line numbers. Two prototypes that differ only in debug metadata
// produce identical hashing trees.
//
// IMPORTANT: the CBOR keys are FROZEN. A key must never change meaning;
// changing one breaks every previously computed content hash.
// ---------------------------------------------------------------------------

// HashVersion prefixes every serialization. Bumping it invalidates all
// existing content hashes.
const HashVersion uint = 1

// HProto is a normalized function prototype.
type HProto struct {
	Version  uint       `cbor:"0,keyasint,omitempty"`
	Code     []HInstr   `cbor:"1,keyasint"`
	Literals []HValue   `cbor:"2,keyasint"`
	Params   []HParam   `cbor:"3,keyasint"`
	Captures []HCapture `cbor:"4,keyasint"`
	Children []*HProto  `cbor:"5,keyasint"`
	MaxStack int        `cbor:"6,keyasint"`
}

// HInstr is one instruction without its source line.
type HInstr struct {
	_  struct{} `cbor:",toarray"`
	Op uint8
	A  uint8
	B  uint8
	C  uint8
	K  int32
	S  string
}

// HValue is a literal pool entry. Kind selects which field is meaningful.
type HValue struct {
	Kind  uint8    `cbor:"0,keyasint"`
	Int   int64    `cbor:"1,keyasint,omitempty"`
	Float float64  `cbor:"2,keyasint,omitempty"`
	Str   string   `cbor:"3,keyasint,omitempty"`
	Elems []HValue `cbor:"4,keyasint,omitempty"`
}

// HParam is a parameter's calling contract; its name is debug metadata.
type HParam struct {
	_          struct{} `cbor:",toarray"`
	Mask       uint16
	CustomMask uint64
	Const      bool
	HasDefault bool
}

// HCapture is where a closure takes one capture from.
type HCapture struct {
	_               struct{} `cbor:",toarray"`
	FromParentLocal bool
	Index           int
}
