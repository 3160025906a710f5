package compiler

import (
	"fmt"

	"quill/pkg/errors"
	"quill/pkg/lexer"
	"quill/pkg/parser"
	"quill/pkg/vm"
)

// resultName is the reserved script-root binding that carries the value of
// the last expression statement executed at the top level. The leading dot
// keeps it out of the identifier namespace.
const resultName = ".result"

// Program is the output of a compilation: the packed byte stream, the
// resolved label table, and the entry offset of the script root.
type Program struct {
	Code   []byte
	Labels map[string]uint32
	Entry  uint32
}

// controlBlock is one entry of the enclosing-control stack used to resolve
// break and continue targets. A switch pushes an entry with no continue
// target; break/continue walk the stack from the top for the innermost
// matching label.
type controlBlock struct {
	breakLabel    string
	continueLabel string // "" when the construct has no continue target
}

// Compiler lowers a parsed program into bytecode: a declaration-lifting
// pre-pass splits the tree into code blocks, each block lowers to symbolic
// instructions, and the link pass resolves labels into absolute offsets.
type Compiler struct {
	emitter

	uid     *uniqueID
	blocks  []*Block
	byNode  map[parser.Node]*Block
	current *Block // block being lowered
	control []controlBlock
	errs    []errors.QuillError
}

// NewCompiler creates a fresh compiler.
func NewCompiler() *Compiler {
	return &Compiler{uid: newUniqueID()}
}

// Compile lowers the program and returns the assembled bytecode. On any
// error the returned program is nil.
func (c *Compiler) Compile(program *parser.Program) (*Program, []errors.QuillError) {
	c.uid.Clear()
	c.instructions = nil
	c.errs = nil

	blocks, byNode, errs := discoverBlocks(program, c.uid)
	if len(errs) > 0 {
		return nil, errs
	}
	c.blocks = blocks
	c.byNode = byNode

	for _, b := range blocks {
		c.lowerBlock(b)
	}
	if len(c.errs) > 0 {
		return nil, c.errs
	}

	code, labels, asmErrs := assemble(c.instructions)
	if len(asmErrs) > 0 {
		return nil, asmErrs
	}
	return &Program{
		Code:   code,
		Labels: labels,
		Entry:  labels[blocks[0].Label],
	}, nil
}

// Instructions exposes the symbolic instruction buffer of the last
// compilation (for listings and tests).
func (c *Compiler) Instructions() []instruction {
	return c.instructions
}

func (c *Compiler) errorAt(tok lexer.Token, format string, args ...interface{}) {
	c.errs = append(c.errs, &errors.CompileError{
		Position: errors.Position{
			Line:     tok.Line,
			Column:   tok.Column,
			StartPos: tok.StartPos,
			EndPos:   tok.EndPos,
		},
		Msg: fmt.Sprintf(format, args...),
	})
}

// --- Block lowering ---

func (c *Compiler) lowerBlock(b *Block) {
	c.current = b
	c.control = c.control[:0]
	c.writeLabel(b.Label)

	if c.isRoot(b) {
		// Script root: declare the completion binding and the hoisted
		// names, lower the body, and return the completion value.
		c.writeString(resultName)
		c.writeOp(vm.OpVar)
		// A session reuses its global scope, so clear any value left by an
		// earlier evaluation.
		c.writeOp(vm.OpUndef)
		c.writeString(resultName)
		c.writeOp(vm.OpOut)
		c.writeOp(vm.OpPop)
		c.declareHoisted(b)
		for _, stmt := range b.Body {
			c.lowerStatement(stmt)
		}
		c.writeString(resultName)
		c.writeOp(vm.OpLoad)
		c.writeOp(vm.OpRet)
		return
	}

	// Function block. On entry the operand stack holds the caller-pushed
	// arguments array; each parameter is declared and pulled out of it by
	// index, then the array is discarded.
	for i, param := range b.Params {
		c.writeString(param.Name)
		c.writeOp(vm.OpVar)
		c.writeOp(vm.OpTop)
		c.writeNumber(float64(i))
		c.writeOp(vm.OpGet)
		c.writeString(param.Name)
		c.writeOp(vm.OpOut)
		c.writeOp(vm.OpPop)
	}
	c.writeOp(vm.OpPop, "discard arguments array")
	c.declareHoisted(b)
	for _, stmt := range b.Body {
		c.lowerStatement(stmt)
	}
	c.writeOp(vm.OpUndef)
	c.writeOp(vm.OpRet)
}

func (c *Compiler) isRoot(b *Block) bool {
	return len(c.blocks) > 0 && c.blocks[0] == b
}

func (c *Compiler) declareHoisted(b *Block) {
	for _, name := range b.Declarations {
		c.writeString(name)
		c.writeOp(vm.OpVar)
	}
}

// --- Statement lowering ---
//
// Every statement leaves the operand stack depth unchanged.

func (c *Compiler) lowerStatement(node parser.Statement) {
	switch n := node.(type) {
	case *parser.EmptyStatement, *parser.DebuggerStatement:
		// nothing

	case *parser.BlockStatement:
		for _, stmt := range n.Statements {
			c.lowerStatement(stmt)
		}

	case *parser.ExpressionStatement:
		if n.Expression == nil {
			return
		}
		c.lowerExpression(n.Expression)
		if c.isRoot(c.current) {
			// Top-level expression statements feed the completion value.
			c.writeString(resultName)
			c.writeOp(vm.OpOut)
		}
		c.writeOp(vm.OpPop)

	case *parser.VariableDeclaration:
		// Names are already hoisted; initializers run in place as plain
		// assignments (they do not touch the completion value).
		for _, d := range n.Declarations {
			if d.Init == nil {
				continue
			}
			c.lowerExpression(d.Init)
			c.writeString(d.Name.Name)
			c.writeOp(vm.OpOut)
			c.writeOp(vm.OpPop)
		}

	case *parser.FunctionDeclaration:
		block := c.byNode[n]
		c.writeOp(vm.OpNull)
		c.writeNumber(float64(len(n.Params)))
		c.writeReference(block.Label)
		c.writeOp(vm.OpFunc, block.Label)
		c.writeString(n.Name.Name)
		c.writeOp(vm.OpOut)
		c.writeOp(vm.OpPop)

	case *parser.IfStatement:
		c.lowerIf(n)

	case *parser.WhileStatement:
		c.lowerWhile(n)

	case *parser.DoWhileStatement:
		c.lowerDoWhile(n)

	case *parser.ForStatement:
		c.lowerFor(n)

	case *parser.SwitchStatement:
		c.lowerSwitch(n)

	case *parser.BreakStatement:
		target := ""
		for i := len(c.control) - 1; i >= 0; i-- {
			if c.control[i].breakLabel != "" {
				target = c.control[i].breakLabel
				break
			}
		}
		if target == "" {
			c.errorAt(n.Token, "break outside of a loop or switch")
			return
		}
		c.writeReference(target)
		c.writeOp(vm.OpJump, "break")

	case *parser.ContinueStatement:
		target := ""
		for i := len(c.control) - 1; i >= 0; i-- {
			if c.control[i].continueLabel != "" {
				target = c.control[i].continueLabel
				break
			}
		}
		if target == "" {
			c.errorAt(n.Token, "continue outside of a loop")
			return
		}
		c.writeReference(target)
		c.writeOp(vm.OpJump, "continue")

	case *parser.ReturnStatement:
		if n.Argument != nil {
			c.lowerExpression(n.Argument)
		} else {
			c.writeOp(vm.OpUndef)
		}
		c.writeOp(vm.OpRet)

	default:
		// The pre-pass rejects labeled/throw/try/for-in before lowering.
		c.errs = append(c.errs, &errors.CompileError{
			Msg: fmt.Sprintf("cannot lower statement %T", node),
		})
	}
}

func (c *Compiler) lowerIf(n *parser.IfStatement) {
	id := c.uid.Get()
	endLabel := ".endif_" + id

	c.lowerExpression(n.Test)
	if n.Alternate == nil {
		c.writeReference(endLabel)
		c.writeOp(vm.OpJumpNot)
		c.lowerStatement(n.Consequent)
	} else {
		elseLabel := ".else_" + id
		c.writeReference(elseLabel)
		c.writeOp(vm.OpJumpNot)
		c.lowerStatement(n.Consequent)
		c.writeReference(endLabel)
		c.writeOp(vm.OpJump)
		c.writeLabel(elseLabel)
		c.lowerStatement(n.Alternate)
	}
	c.writeLabel(endLabel)
}

func (c *Compiler) lowerWhile(n *parser.WhileStatement) {
	id := c.uid.Get()
	startLabel := ".loop_" + id
	endLabel := ".endloop_" + id

	c.writeLabel(startLabel)
	c.lowerExpression(n.Test)
	c.writeReference(endLabel)
	c.writeOp(vm.OpJumpNot)

	c.control = append(c.control, controlBlock{breakLabel: endLabel, continueLabel: startLabel})
	c.lowerStatement(n.Body)
	c.control = c.control[:len(c.control)-1]

	c.writeReference(startLabel)
	c.writeOp(vm.OpJump)
	c.writeLabel(endLabel)
}

func (c *Compiler) lowerDoWhile(n *parser.DoWhileStatement) {
	id := c.uid.Get()
	startLabel := ".loop_" + id
	testLabel := ".test_" + id
	endLabel := ".endloop_" + id

	c.writeLabel(startLabel)
	c.control = append(c.control, controlBlock{breakLabel: endLabel, continueLabel: testLabel})
	c.lowerStatement(n.Body)
	c.control = c.control[:len(c.control)-1]

	c.writeLabel(testLabel)
	c.lowerExpression(n.Test)
	c.writeReference(startLabel)
	c.writeOp(vm.OpJumpIf)
	c.writeLabel(endLabel)
}

// lowerFor emits a top-tested loop so a zero-trip test never runs the
// body; continue targets the update slot.
func (c *Compiler) lowerFor(n *parser.ForStatement) {
	id := c.uid.Get()
	startLabel := ".loop_" + id
	updateLabel := ".update_" + id
	endLabel := ".endloop_" + id

	if n.Init != nil {
		c.lowerForInit(n.Init)
	}

	c.writeLabel(startLabel)
	if n.Test != nil {
		c.lowerExpression(n.Test)
		c.writeReference(endLabel)
		c.writeOp(vm.OpJumpNot)
	}

	c.control = append(c.control, controlBlock{breakLabel: endLabel, continueLabel: updateLabel})
	c.lowerStatement(n.Body)
	c.control = c.control[:len(c.control)-1]

	c.writeLabel(updateLabel)
	if n.Update != nil {
		c.lowerExpression(n.Update)
		c.writeOp(vm.OpPop)
	}
	c.writeReference(startLabel)
	c.writeOp(vm.OpJump)
	c.writeLabel(endLabel)
}

// lowerForInit lowers the for-header init slot without routing through the
// completion value.
func (c *Compiler) lowerForInit(init parser.Statement) {
	switch n := init.(type) {
	case *parser.VariableDeclaration:
		c.lowerStatement(n)
	case *parser.ExpressionStatement:
		if n.Expression != nil {
			c.lowerExpression(n.Expression)
			c.writeOp(vm.OpPop)
		}
	default:
		c.errs = append(c.errs, &errors.CompileError{
			Msg: fmt.Sprintf("cannot lower for-init %T", init),
		})
	}
}

// lowerSwitch keeps the discriminant on the stack during dispatch and the
// case bodies; fall-through between cases is intentional. The break target
// points at the trailing POP so the discriminant is discarded exactly once
// whether execution falls off the last body or breaks out.
func (c *Compiler) lowerSwitch(n *parser.SwitchStatement) {
	id := c.uid.Get()
	breakLabel := ".endcases_" + id
	endLabel := ".endswitch_" + id

	c.lowerExpression(n.Discriminant)

	// Dispatch: one strict-equality test per case, then the default (or
	// the exit when there is none).
	caseLabels := make([]string, len(n.Cases))
	defaultLabel := ""
	for i, arm := range n.Cases {
		caseLabels[i] = fmt.Sprintf(".case%d_%s", i, id)
		if arm.Test == nil {
			defaultLabel = caseLabels[i]
		}
	}
	for i, arm := range n.Cases {
		if arm.Test == nil {
			continue
		}
		c.writeOp(vm.OpTop)
		c.lowerExpression(arm.Test)
		c.writeOp(vm.OpSeq)
		c.writeReference(caseLabels[i])
		c.writeOp(vm.OpJumpIf)
	}
	if defaultLabel != "" {
		c.writeReference(defaultLabel)
	} else {
		c.writeReference(breakLabel)
	}
	c.writeOp(vm.OpJump)

	c.control = append(c.control, controlBlock{breakLabel: breakLabel})
	for i, arm := range n.Cases {
		c.writeLabel(caseLabels[i])
		for _, stmt := range arm.Body {
			c.lowerStatement(stmt)
		}
	}
	c.control = c.control[:len(c.control)-1]

	c.writeLabel(breakLabel)
	c.writeOp(vm.OpPop, "discard discriminant")
	c.writeLabel(endLabel)
}

// --- Expression lowering ---
//
// Post-order, left-to-right. Every expression leaves exactly one value.

func (c *Compiler) lowerExpression(node parser.Expression) {
	switch n := node.(type) {
	case *parser.Identifier:
		switch n.Name {
		case "undefined":
			c.writeOp(vm.OpUndef)
		case "null":
			c.writeOp(vm.OpNull)
		default:
			c.writeString(n.Name)
			c.writeOp(vm.OpLoad)
		}

	case *parser.NumberLiteral:
		c.writeNumber(n.Value)
	case *parser.StringLiteral:
		c.writeString(n.Value)
	case *parser.BooleanLiteral:
		if n.Value {
			c.writeOp(vm.OpTrue)
		} else {
			c.writeOp(vm.OpFalse)
		}
	case *parser.NullLiteral:
		c.writeOp(vm.OpNull)
	case *parser.UndefinedLiteral:
		c.writeOp(vm.OpUndef)

	case *parser.ThisExpression:
		c.writeString("this")
		c.writeOp(vm.OpLoad)

	case *parser.ArrayExpression:
		c.writeOp(vm.OpArr)
		for i, elem := range n.Elements {
			c.writeOp(vm.OpTop)
			c.writeNumber(float64(i))
			if elem != nil {
				c.lowerExpression(elem)
			} else {
				c.writeOp(vm.OpNull)
			}
			c.writeOp(vm.OpSet)
			c.writeOp(vm.OpPop)
		}

	case *parser.ObjectExpression:
		c.writeOp(vm.OpObj)
		for _, prop := range n.Properties {
			c.writeOp(vm.OpTop)
			if prop.KeyExpr != nil {
				c.lowerExpression(prop.KeyExpr)
			} else {
				c.writeString(prop.KeyName)
			}
			c.lowerExpression(prop.Value)
			c.writeOp(vm.OpSet)
			c.writeOp(vm.OpPop)
		}

	case *parser.UnaryExpression:
		c.lowerUnary(n)

	case *parser.UpdateExpression:
		c.lowerUpdate(n)

	case *parser.BinaryExpression:
		c.lowerExpression(n.Left)
		c.lowerExpression(n.Right)
		op, ok := binaryOps[n.Operator]
		if !ok {
			c.errorAt(n.Token, "unknown binary operator %q", n.Operator)
			return
		}
		c.writeOp(op, n.Operator)

	case *parser.LogicalExpression:
		endLabel := ".endlogic_" + c.uid.Get()
		c.lowerExpression(n.Left)
		c.writeOp(vm.OpTop)
		c.writeReference(endLabel)
		if n.Operator == "&&" {
			// A falsy left short-circuits, carrying left as the result.
			c.writeOp(vm.OpJumpNot)
		} else {
			// A truthy left short-circuits, carrying left as the result.
			c.writeOp(vm.OpJumpIf)
		}
		c.writeOp(vm.OpPop)
		c.lowerExpression(n.Right)
		c.writeLabel(endLabel)

	case *parser.ConditionalExpression:
		id := c.uid.Get()
		altLabel := ".alt_" + id
		endLabel := ".endcond_" + id
		c.lowerExpression(n.Test)
		c.writeReference(altLabel)
		c.writeOp(vm.OpJumpNot)
		c.lowerExpression(n.Consequent)
		c.writeReference(endLabel)
		c.writeOp(vm.OpJump)
		c.writeLabel(altLabel)
		c.lowerExpression(n.Alternate)
		c.writeLabel(endLabel)

	case *parser.AssignmentExpression:
		c.lowerAssignment(n)

	case *parser.SequenceExpression:
		// Every intermediate value pops; only the last remains.
		for i, e := range n.Expressions {
			if i > 0 {
				c.writeOp(vm.OpPop)
			}
			c.lowerExpression(e)
		}

	case *parser.MemberExpression:
		c.lowerExpression(n.Object)
		c.lowerMemberKey(n)
		c.writeOp(vm.OpGet)

	case *parser.CallExpression:
		if member, ok := n.Callee.(*parser.MemberExpression); ok {
			// Method call: the object is both the receiver and the
			// property-lookup base.
			c.lowerExpression(member.Object)
			c.writeOp(vm.OpTop)
			c.lowerMemberKey(member)
			c.writeOp(vm.OpGet)
		} else {
			c.writeOp(vm.OpNull, "receiver")
			c.lowerExpression(n.Callee)
		}
		c.lowerArgsArray(n.Arguments)
		c.writeOp(vm.OpCall)

	case *parser.NewExpression:
		c.lowerExpression(n.Callee)
		c.lowerArgsArray(n.Arguments)
		c.writeOp(vm.OpNew)

	case *parser.FunctionExpression:
		block := c.byNode[n]
		if n.Name != nil {
			c.writeString(n.Name.Name)
		} else {
			c.writeOp(vm.OpNull)
		}
		c.writeNumber(float64(len(n.Params)))
		c.writeReference(block.Label)
		c.writeOp(vm.OpFunc, block.Label)

	default:
		c.errs = append(c.errs, &errors.CompileError{
			Msg: fmt.Sprintf("cannot lower expression %T", node),
		})
	}
}

var binaryOps = map[string]vm.OpCode{
	"+":          vm.OpAdd,
	"-":          vm.OpSub,
	"*":          vm.OpMul,
	"/":          vm.OpDiv,
	"%":          vm.OpMod,
	"**":         vm.OpExp,
	"==":         vm.OpEq,
	"!=":         vm.OpNeq,
	"===":        vm.OpSeq,
	"!==":        vm.OpSneq,
	"<":          vm.OpLt,
	"<=":         vm.OpLte,
	">":          vm.OpGt,
	">=":         vm.OpGte,
	"&":          vm.OpBand,
	"|":          vm.OpBor,
	"^":          vm.OpBxor,
	"<<":         vm.OpLshift,
	">>":         vm.OpRshift,
	">>>":        vm.OpUrshift,
	"in":         vm.OpIn,
	"instanceof": vm.OpInsof,
}

// compoundOps maps compound-assignment operators to their binary opcode.
var compoundOps = map[string]vm.OpCode{
	"+=":   vm.OpAdd,
	"-=":   vm.OpSub,
	"*=":   vm.OpMul,
	"/=":   vm.OpDiv,
	"%=":   vm.OpMod,
	"**=":  vm.OpExp,
	"&=":   vm.OpBand,
	"|=":   vm.OpBor,
	"^=":   vm.OpBxor,
	"<<=":  vm.OpLshift,
	">>=":  vm.OpRshift,
	">>>=": vm.OpUrshift,
}

func (c *Compiler) lowerUnary(n *parser.UnaryExpression) {
	switch n.Operator {
	case "+":
		c.writeNumber(0)
		c.lowerExpression(n.Operand)
		c.writeOp(vm.OpAdd)
	case "-":
		c.writeNumber(0)
		c.lowerExpression(n.Operand)
		c.writeOp(vm.OpSub)
	case "!":
		c.lowerExpression(n.Operand)
		c.writeOp(vm.OpNot)
	case "~":
		c.lowerExpression(n.Operand)
		c.writeOp(vm.OpBnot)
	case "typeof":
		c.lowerExpression(n.Operand)
		c.writeOp(vm.OpTypeof)
	case "void":
		c.lowerExpression(n.Operand)
		c.writeOp(vm.OpPop)
		c.writeOp(vm.OpUndef)
	case "delete":
		if member, ok := n.Operand.(*parser.MemberExpression); ok {
			c.lowerExpression(member.Object)
			c.lowerMemberKey(member)
			c.writeOp(vm.OpDelete)
			return
		}
		// delete on anything but a member expression is a no-op that
		// yields true; the operand is not evaluated.
		c.writeOp(vm.OpTrue)
	default:
		c.errorAt(n.Token, "unknown unary operator %q", n.Operator)
	}
}

// lowerUpdate lowers ++/-- on identifiers and members. The write-back
// leaves the post-update value; postfix forms then undo the delta so the
// expression yields the pre-update value.
func (c *Compiler) lowerUpdate(n *parser.UpdateExpression) {
	applyOp := vm.OpAdd
	undoOp := vm.OpSub
	if n.Operator == "--" {
		applyOp = vm.OpSub
		undoOp = vm.OpAdd
	}

	switch target := n.Operand.(type) {
	case *parser.Identifier:
		c.writeString(target.Name)
		c.writeOp(vm.OpLoad)
		c.writeNumber(1)
		c.writeOp(applyOp)
		c.writeString(target.Name)
		c.writeOp(vm.OpOut)

	case *parser.MemberExpression:
		c.lowerExpression(target.Object)
		c.lowerMemberKey(target)
		c.writeOp(vm.OpTop2)
		c.writeOp(vm.OpGet)
		c.writeNumber(1)
		c.writeOp(applyOp)
		c.writeOp(vm.OpSet)

	default:
		c.errorAt(n.Token, "invalid operand for %s", n.Operator)
		return
	}

	if !n.Prefix {
		c.writeNumber(1)
		c.writeOp(undoOp, "postfix yields the pre-update value")
	}
}

// lowerAssignment handles `=` and the compound forms on identifiers and
// members. Compound forms evaluate the current value of the target before
// the right-hand side so non-commutative operators store target op value.
func (c *Compiler) lowerAssignment(n *parser.AssignmentExpression) {
	if n.Operator == "=" {
		switch target := n.Target.(type) {
		case *parser.Identifier:
			c.lowerExpression(n.Value)
			c.writeString(target.Name)
			c.writeOp(vm.OpOut)
		case *parser.MemberExpression:
			c.lowerExpression(target.Object)
			c.lowerMemberKey(target)
			c.lowerExpression(n.Value)
			c.writeOp(vm.OpSet)
		default:
			c.errorAt(n.Token, "invalid assignment target")
		}
		return
	}

	op, ok := compoundOps[n.Operator]
	if !ok {
		c.errorAt(n.Token, "unknown assignment operator %q", n.Operator)
		return
	}

	switch target := n.Target.(type) {
	case *parser.Identifier:
		c.writeString(target.Name)
		c.writeOp(vm.OpLoad)
		c.lowerExpression(n.Value)
		c.writeOp(op, n.Operator)
		c.writeString(target.Name)
		c.writeOp(vm.OpOut)
	case *parser.MemberExpression:
		c.lowerExpression(target.Object)
		c.lowerMemberKey(target)
		c.writeOp(vm.OpTop2)
		c.writeOp(vm.OpGet)
		c.lowerExpression(n.Value)
		c.writeOp(op, n.Operator)
		c.writeOp(vm.OpSet)
	default:
		c.errorAt(n.Token, "invalid assignment target")
	}
}

// lowerMemberKey pushes the property key of a member expression: the
// computed key expression, or the property name as a string.
func (c *Compiler) lowerMemberKey(n *parser.MemberExpression) {
	if n.Computed {
		c.lowerExpression(n.Property)
		return
	}
	ident, ok := n.Property.(*parser.Identifier)
	if !ok {
		c.errorAt(n.Token, "invalid property access")
		return
	}
	c.writeString(ident.Name)
}

// lowerArgsArray lowers an argument list as an array literal.
func (c *Compiler) lowerArgsArray(args []parser.Expression) {
	c.writeOp(vm.OpArr, "arguments")
	for i, a := range args {
		c.writeOp(vm.OpTop)
		c.writeNumber(float64(i))
		c.lowerExpression(a)
		c.writeOp(vm.OpSet)
		c.writeOp(vm.OpPop)
	}
}
