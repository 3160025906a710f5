package compiler

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"quill/pkg/vm"
)

// --- Bytecode Emission Helpers ---
//
// The emitter is an append-only buffer of symbolic instructions. Label
// references stay symbolic until the link pass resolves them to 4-byte
// big-endian absolute offsets.

type emitter struct {
	instructions []instruction
}

// writeLabel defines name at the current position.
func (e *emitter) writeLabel(name string) {
	e.instructions = append(e.instructions, instruction{kind: instrLabel, name: name})
}

// writeReference emits ADDR followed by a 4-byte placeholder that the
// assembler patches with the label's absolute offset.
func (e *emitter) writeReference(name string) {
	e.writeOp(vm.OpAddr, name)
	e.instructions = append(e.instructions, instruction{kind: instrReference, name: name})
}

// writeOp appends a bare opcode, with optional commentary for listings.
func (e *emitter) writeOp(op vm.OpCode, comment ...string) {
	in := instruction{kind: instrOp, op: op}
	if len(comment) > 0 {
		in.comment = comment[0]
	}
	e.instructions = append(e.instructions, in)
}

// writeNumber emits NUM followed by the 8 big-endian bytes of the IEEE-754
// double.
func (e *emitter) writeNumber(n float64) {
	e.writeOp(vm.OpNum, vm.NumberToString(n))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(n))
	e.instructions = append(e.instructions, instruction{kind: instrData, data: buf[:]})
}

// writeString emits STR followed by big-endian 16-bit code units and a
// 0x0000 terminator. Strings may not contain the NUL code unit; the lexer
// rejects such literals before they reach the emitter.
func (e *emitter) writeString(s string) {
	e.writeOp(vm.OpStr, s)
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 0, 2*len(units)+2)
	for _, u := range units {
		buf = append(buf, byte(u>>8), byte(u))
	}
	buf = append(buf, 0, 0)
	e.instructions = append(e.instructions, instruction{kind: instrData, data: buf})
}

// writeComment records commentary that occupies no bytes.
func (e *emitter) writeComment(text string) {
	e.instructions = append(e.instructions, instruction{kind: instrComment, comment: text})
}
