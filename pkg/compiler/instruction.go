package compiler

import (
	"fmt"

	"quill/pkg/vm"
)

// instrKind tags the symbolic instruction records held by the emitter
// until the link pass packs them into bytes.
type instrKind uint8

const (
	instrLabel     instrKind = iota // defines a label at the current offset
	instrReference                  // 4 placeholder bytes, patched at assembly
	instrOp                         // a single opcode byte
	instrData                       // inline immediate bytes
	instrComment                    // zero bytes; kept for listings
)

// instruction is one symbolic record in the emit buffer.
type instruction struct {
	kind    instrKind
	name    string    // label name for instrLabel/instrReference
	op      vm.OpCode // for instrOp
	data    []byte    // for instrData
	comment string    // attached commentary for listings
}

// size returns the number of bytes the record occupies once assembled.
func (in *instruction) size() int {
	switch in.kind {
	case instrReference:
		return 4
	case instrOp:
		return 1
	case instrData:
		return len(in.data)
	default:
		return 0
	}
}

func (in *instruction) String() string {
	switch in.kind {
	case instrLabel:
		return in.name + ":"
	case instrReference:
		return fmt.Sprintf("  ref %s", in.name)
	case instrOp:
		if in.comment != "" {
			return fmt.Sprintf("  %s ; %s", in.op, in.comment)
		}
		return fmt.Sprintf("  %s", in.op)
	case instrData:
		return fmt.Sprintf("  data % x", in.data)
	default:
		return "  ; " + in.comment
	}
}
