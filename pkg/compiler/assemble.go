package compiler

import (
	"encoding/binary"
	"fmt"
	"math"

	"quill/pkg/errors"
)

// assemble is the link pass. It converts the symbolic instruction buffer
// into a packed byte array: pass one assigns every record a byte offset
// and collects label definitions; pass two emits the bytes, patching each
// reference with the 4-byte big-endian absolute offset of its label.
func assemble(instructions []instruction) ([]byte, map[string]uint32, []errors.QuillError) {
	var errs []errors.QuillError

	labels := make(map[string]uint32)
	offset := 0
	for _, in := range instructions {
		if in.kind == instrLabel {
			if _, dup := labels[in.name]; dup {
				errs = append(errs, &errors.CompileError{
					Msg: fmt.Sprintf("duplicate label %q", in.name),
				})
				continue
			}
			labels[in.name] = uint32(offset)
		}
		offset += in.size()
	}
	if int64(offset) > math.MaxUint32 {
		errs = append(errs, &errors.CompileError{
			Msg: fmt.Sprintf("program too large: %d bytes exceeds the 32-bit address space", offset),
		})
	}
	if len(errs) > 0 {
		return nil, nil, errs
	}

	code := make([]byte, 0, offset)
	for _, in := range instructions {
		switch in.kind {
		case instrOp:
			code = append(code, byte(in.op))
		case instrData:
			code = append(code, in.data...)
		case instrReference:
			target, ok := labels[in.name]
			if !ok {
				errs = append(errs, &errors.CompileError{
					Msg: fmt.Sprintf("unresolved label %q", in.name),
				})
				code = append(code, 0, 0, 0, 0)
				continue
			}
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], target)
			code = append(code, buf[:]...)
		}
	}
	if len(errs) > 0 {
		return nil, nil, errs
	}
	return code, labels, nil
}
