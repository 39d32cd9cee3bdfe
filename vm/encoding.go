package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned by Decode when the byte stream ends mid-instruction.
var ErrTruncated = errors.New("bytecode truncated")

// Encode renders instructions into the variable-width byte form: one opcode
// byte, then 8-bit register operands, then a little-endian 32-bit K operand
// where the format has one. Inline strings are a length byte plus bytes.
// Source lines are debug metadata and are not encoded.
func Encode(code []Instruction) []byte {
	out := make([]byte, 0, len(code)*4)
	var k [4]byte
	for _, ins := range code {
		out = append(out, byte(ins.Op))
		info := ins.Op.Info()
		switch info.format {
		case fmtA:
			out = append(out, ins.A)
		case fmtAB:
			out = append(out, ins.A, ins.B)
		case fmtABC:
			out = append(out, ins.A, ins.B, ins.C)
		case fmtAK:
			out = append(out, ins.A)
		case fmtABK:
			out = append(out, ins.A, ins.B)
		case fmtABCK:
			out = append(out, ins.A, ins.B, ins.C)
		case fmtAS:
			out = append(out, ins.A, byte(len(ins.S)))
			out = append(out, ins.S...)
		}
		switch info.format {
		case fmtAK, fmtABK, fmtABCK, fmtK:
			binary.LittleEndian.PutUint32(k[:], uint32(ins.K))
			out = append(out, k[:]...)
		}
	}
	return out
}

// Decode parses the byte form produced by Encode.
func Decode(data []byte) ([]Instruction, error) {
	var code []Instruction
	r := &BytecodeReader{bytes: data}
	for r.HasMore() {
		start := r.Position()
		op := Opcode(r.bytes[r.pos])
		r.pos++
		info, ok := opcodeTable[op]
		if !ok {
			return nil, fmt.Errorf("unknown opcode 0x%02X at byte %d", byte(op), start)
		}
		ins := Instruction{Op: op}
		var err error
		switch info.format {
		case fmtA:
			ins.A, err = r.ReadByte()
		case fmtAB, fmtABK:
			if ins.A, err = r.ReadByte(); err == nil {
				ins.B, err = r.ReadByte()
			}
		case fmtABC, fmtABCK:
			if ins.A, err = r.ReadByte(); err == nil {
				if ins.B, err = r.ReadByte(); err == nil {
					ins.C, err = r.ReadByte()
				}
			}
		case fmtAK:
			ins.A, err = r.ReadByte()
		case fmtAS:
			var n byte
			if ins.A, err = r.ReadByte(); err == nil {
				if n, err = r.ReadByte(); err == nil {
					ins.S, err = r.ReadString(int(n))
				}
			}
		}
		if err == nil {
			switch info.format {
			case fmtAK, fmtABK, fmtABCK, fmtK:
				ins.K, err = r.ReadInt32()
			}
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s at byte %d: %w", op, start, err)
		}
		code = append(code, ins)
	}
	return code, nil
}

// ---------------------------------------------------------------------------
// BytecodeReader
// ---------------------------------------------------------------------------

// BytecodeReader reads encoded bytecode.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() (byte, error) {
	if r.pos >= len(r.bytes) {
		return 0, ErrTruncated
	}
	b := r.bytes[r.pos]
	r.pos++
	return b, nil
}

// ReadInt32 reads a little-endian signed 32-bit operand.
func (r *BytecodeReader) ReadInt32() (int32, error) {
	if r.pos+4 > len(r.bytes) {
		return 0, ErrTruncated
	}
	v := int32(binary.LittleEndian.Uint32(r.bytes[r.pos:]))
	r.pos += 4
	return v, nil
}

// ReadString reads n raw bytes as a string.
func (r *BytecodeReader) ReadString(n int) (string, error) {
	if r.pos+n > len(r.bytes) {
		return "", ErrTruncated
	}
	s := string(r.bytes[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}
