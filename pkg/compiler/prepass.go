package compiler

import (
	"fmt"

	"quill/pkg/errors"
	"quill/pkg/lexer"
	"quill/pkg/parser"
)

// Block is one unit of compilation: the script root, a function
// declaration, or a function literal. The pre-pass attaches the hoisted
// declaration set and a unique entry label; the lowerer emits one code
// block per entry, in discovery order.
type Block struct {
	Label        string   // unique symbolic entry point, e.g. ".main_1"
	Declarations []string // hoisted names in first-appearance order
	Params       []*parser.Identifier
	Body         []parser.Statement
	Name         string // function name, "" for the root and anonymous literals

	declared map[string]bool
}

func (b *Block) addDeclaration(name string) {
	if b.declared[name] {
		return
	}
	b.declared[name] = true
	b.Declarations = append(b.Declarations, name)
}

// prepass walks the AST in pre-order, discovering blocks, hoisting
// declared names into their enclosing block, and rejecting the node kinds
// outside the supported subset.
type prepass struct {
	uid    *uniqueID
	blocks []*Block
	byNode map[parser.Node]*Block
	errs   []errors.QuillError
}

// discoverBlocks runs the pre-pass over a program. It returns the blocks
// in discovery order (the script root first) and a lookup from each
// block-forming AST node to its block.
func discoverBlocks(program *parser.Program, uid *uniqueID) ([]*Block, map[parser.Node]*Block, []errors.QuillError) {
	p := &prepass{uid: uid, byNode: make(map[parser.Node]*Block)}

	root := p.newBlock(fmt.Sprintf(".main_%s", uid.Get()), "", nil, program.Statements)
	p.byNode[program] = root

	for _, stmt := range program.Statements {
		p.visitStatement(stmt, root)
	}
	return p.blocks, p.byNode, p.errs
}

func (p *prepass) newBlock(label, name string, params []*parser.Identifier, body []parser.Statement) *Block {
	b := &Block{
		Label:    label,
		Name:     name,
		Params:   params,
		Body:     body,
		declared: make(map[string]bool),
	}
	p.blocks = append(p.blocks, b)
	return b
}

func (p *prepass) unsupported(tok lexer.Token, what string) {
	p.errs = append(p.errs, &errors.CompileError{
		Position: errors.Position{
			Line:     tok.Line,
			Column:   tok.Column,
			StartPos: tok.StartPos,
			EndPos:   tok.EndPos,
		},
		Msg: "unsupported syntax: " + what,
	})
}

func (p *prepass) visitStatement(node parser.Statement, current *Block) {
	switch n := node.(type) {
	case *parser.VariableDeclaration:
		for _, d := range n.Declarations {
			current.addDeclaration(d.Name.Name)
			if d.Init != nil {
				p.visitExpression(d.Init, current)
			}
		}

	case *parser.FunctionDeclaration:
		// The function's name hoists into the enclosing block; the body
		// forms a block of its own.
		current.addDeclaration(n.Name.Name)
		label := fmt.Sprintf(".%s_%s", n.Name.Name, p.uid.Get())
		block := p.newBlock(label, n.Name.Name, n.Params, n.Body.Statements)
		p.byNode[n] = block
		for _, stmt := range n.Body.Statements {
			p.visitStatement(stmt, block)
		}

	case *parser.ExpressionStatement:
		if n.Expression != nil {
			p.visitExpression(n.Expression, current)
		}

	case *parser.BlockStatement:
		for _, stmt := range n.Statements {
			p.visitStatement(stmt, current)
		}

	case *parser.IfStatement:
		p.visitExpression(n.Test, current)
		p.visitStatement(n.Consequent, current)
		if n.Alternate != nil {
			p.visitStatement(n.Alternate, current)
		}

	case *parser.WhileStatement:
		p.visitExpression(n.Test, current)
		p.visitStatement(n.Body, current)

	case *parser.DoWhileStatement:
		p.visitStatement(n.Body, current)
		p.visitExpression(n.Test, current)

	case *parser.ForStatement:
		if n.Init != nil {
			p.visitStatement(n.Init, current)
		}
		if n.Test != nil {
			p.visitExpression(n.Test, current)
		}
		if n.Update != nil {
			p.visitExpression(n.Update, current)
		}
		p.visitStatement(n.Body, current)

	case *parser.SwitchStatement:
		p.visitExpression(n.Discriminant, current)
		for _, c := range n.Cases {
			if c.Test != nil {
				p.visitExpression(c.Test, current)
			}
			for _, stmt := range c.Body {
				p.visitStatement(stmt, current)
			}
		}

	case *parser.ReturnStatement:
		if n.Argument != nil {
			p.visitExpression(n.Argument, current)
		}

	case *parser.LabeledStatement:
		p.unsupported(n.Token, "labeled statement")
	case *parser.ThrowStatement:
		p.unsupported(n.Token, "throw")
	case *parser.TryStatement:
		p.unsupported(n.Token, "try")
	case *parser.ForInStatement:
		p.unsupported(n.Token, "for-in")

	case *parser.EmptyStatement, *parser.DebuggerStatement,
		*parser.BreakStatement, *parser.ContinueStatement:
		// nothing to hoist
	}
}

func (p *prepass) visitExpression(node parser.Expression, current *Block) {
	switch n := node.(type) {
	case *parser.FunctionExpression:
		name := "anonymous"
		fnName := ""
		if n.Name != nil {
			name = n.Name.Name
			fnName = n.Name.Name
		}
		label := fmt.Sprintf(".%s_%s", name, p.uid.Get())
		block := p.newBlock(label, fnName, n.Params, n.Body.Statements)
		p.byNode[n] = block
		for _, stmt := range n.Body.Statements {
			p.visitStatement(stmt, block)
		}

	case *parser.ArrayExpression:
		for _, e := range n.Elements {
			if e != nil {
				p.visitExpression(e, current)
			}
		}
	case *parser.ObjectExpression:
		for _, prop := range n.Properties {
			if prop.KeyExpr != nil {
				p.visitExpression(prop.KeyExpr, current)
			}
			p.visitExpression(prop.Value, current)
		}
	case *parser.UnaryExpression:
		p.visitExpression(n.Operand, current)
	case *parser.UpdateExpression:
		p.visitExpression(n.Operand, current)
	case *parser.BinaryExpression:
		p.visitExpression(n.Left, current)
		p.visitExpression(n.Right, current)
	case *parser.LogicalExpression:
		p.visitExpression(n.Left, current)
		p.visitExpression(n.Right, current)
	case *parser.ConditionalExpression:
		p.visitExpression(n.Test, current)
		p.visitExpression(n.Consequent, current)
		p.visitExpression(n.Alternate, current)
	case *parser.AssignmentExpression:
		p.visitExpression(n.Target, current)
		p.visitExpression(n.Value, current)
	case *parser.SequenceExpression:
		for _, e := range n.Expressions {
			p.visitExpression(e, current)
		}
	case *parser.MemberExpression:
		p.visitExpression(n.Object, current)
		if n.Computed {
			p.visitExpression(n.Property, current)
		}
	case *parser.CallExpression:
		p.visitExpression(n.Callee, current)
		for _, a := range n.Arguments {
			p.visitExpression(a, current)
		}
	case *parser.NewExpression:
		p.visitExpression(n.Callee, current)
		for _, a := range n.Arguments {
			p.visitExpression(a, current)
		}
	}
}
