package compiler

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"quill/pkg/vm"
)

// Disassemble renders an assembled program as a symbolic listing: one line
// per instruction with its byte offset, mnemonic, and decoded immediates.
// Known label offsets are annotated in the margin.
func Disassemble(p *Program) string {
	labelsAt := make(map[uint32][]string)
	for name, off := range p.Labels {
		labelsAt[off] = append(labelsAt[off], name)
	}

	var sb strings.Builder
	code := p.Code
	pc := 0
	for pc < len(code) {
		if names, ok := labelsAt[uint32(pc)]; ok {
			for _, name := range names {
				sb.WriteString(name)
				sb.WriteString(":\n")
			}
		}

		op := vm.OpCode(code[pc])
		start := pc
		pc++
		operand := ""

		switch op {
		case vm.OpNum:
			if pc+8 > len(code) {
				sb.WriteString(fmt.Sprintf("%6d  %s <truncated>\n", start, op))
				return sb.String()
			}
			bits := binary.BigEndian.Uint64(code[pc : pc+8])
			pc += 8
			operand = vm.NumberToString(math.Float64frombits(bits))

		case vm.OpAddr:
			if pc+4 > len(code) {
				sb.WriteString(fmt.Sprintf("%6d  %s <truncated>\n", start, op))
				return sb.String()
			}
			target := binary.BigEndian.Uint32(code[pc : pc+4])
			pc += 4
			operand = strconv.FormatUint(uint64(target), 10)
			if names, ok := labelsAt[target]; ok {
				operand += " (" + strings.Join(names, ", ") + ")"
			}

		case vm.OpStr:
			var units []uint16
			for {
				if pc+2 > len(code) {
					sb.WriteString(fmt.Sprintf("%6d  %s <unterminated>\n", start, op))
					return sb.String()
				}
				u := binary.BigEndian.Uint16(code[pc : pc+2])
				pc += 2
				if u == 0 {
					break
				}
				units = append(units, u)
			}
			operand = strconv.Quote(string(utf16.Decode(units)))
		}

		if operand != "" {
			sb.WriteString(fmt.Sprintf("%6d  %-8s %s\n", start, op, operand))
		} else {
			sb.WriteString(fmt.Sprintf("%6d  %s\n", start, op))
		}
	}
	return sb.String()
}
