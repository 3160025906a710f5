package driver

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"quill/pkg/compiler"
	"quill/pkg/errors"
	"quill/pkg/lexer"
	"quill/pkg/parser"
	"quill/pkg/vm"
)

// Quill represents a persistent interpreter session. It maintains state
// between separate evaluations: globals defined in one evaluation are
// visible in subsequent ones.
type Quill struct {
	ambient *MapAmbient
	global  *vm.Scope
	logger  zerolog.Logger
}

// NewQuill creates a session with the default ambient environment.
func NewQuill() *Quill {
	ambient := DefaultAmbient()
	return &Quill{
		ambient: ambient,
		global:  vm.NewGlobalScope(ambient),
		logger:  zerolog.Nop(),
	}
}

// SetLogger installs a logger for per-stage tracing.
func (q *Quill) SetLogger(l zerolog.Logger) {
	q.logger = l
}

// RegisterGlobal exposes a host value to scripts under the given name.
func (q *Quill) RegisterGlobal(name string, v vm.Value) {
	q.ambient.Define(name, v)
}

// RegisterNative exposes a host function to scripts under the given name.
func (q *Quill) RegisterNative(name string, fn func(this vm.Value, args []vm.Value) (vm.Value, error)) {
	q.ambient.defineNative(name, fn)
}

// RunString compiles and executes source in the session's global scope and
// returns the script's completion value.
func (q *Quill) RunString(source string) (vm.Value, []errors.QuillError) {
	program, errs := q.compile(source)
	if len(errs) > 0 {
		return vm.Undefined(), errs
	}

	machine := vm.New(program.Code)
	machine.SetLogger(q.logger)
	value, err := machine.Run(program.Entry, q.global)
	if err != nil {
		return vm.Undefined(), wrapRuntime(err)
	}
	return value, nil
}

// CompileString compiles source and returns the assembled program (code,
// label table, and entry offset).
func (q *Quill) CompileString(source string) (*compiler.Program, []errors.QuillError) {
	return q.compile(source)
}

func (q *Quill) compile(source string) (*compiler.Program, []errors.QuillError) {
	l := lexer.NewLexer(source)
	p := parser.NewParser(l)
	ast, parseErrs := p.ParseProgram()
	if len(parseErrs) > 0 {
		return nil, parseErrs
	}

	comp := compiler.NewCompiler()
	program, compileErrs := comp.Compile(ast)
	if len(compileErrs) > 0 {
		return nil, compileErrs
	}
	q.logger.Debug().
		Int("bytes", len(program.Code)).
		Int("labels", len(program.Labels)).
		Uint32("entry", program.Entry).
		Msg("driver: compiled")
	return program, nil
}

// DisplayResult formats and prints the result value and any errors.
// Returns true if execution completed without errors.
func (q *Quill) DisplayResult(source string, value vm.Value, errs []errors.QuillError) bool {
	if len(errs) > 0 {
		errors.DisplayErrors(source, errs)
		return false
	}
	if !value.IsUndefined() {
		fmt.Println(value.Inspect())
	}
	return true
}

// --- Session-free conveniences ---

// Compile compiles source text into the assembled byte sequence.
func Compile(source string) ([]byte, []errors.QuillError) {
	program, errs := NewQuill().CompileString(source)
	if len(errs) > 0 {
		return nil, errs
	}
	return program.Code, nil
}

// CompileProgram compiles source text and returns the full program:
// bytecode plus the resolved label table and entry offset.
func CompileProgram(source string) (*compiler.Program, []errors.QuillError) {
	return NewQuill().CompileString(source)
}

// Run compiles and executes source with a fresh global scope over the
// default ambient environment, returning the script's completion value.
func Run(source string) (vm.Value, []errors.QuillError) {
	return NewQuill().RunString(source)
}

// RunProgram executes an already-assembled program (e.g. one loaded from
// an image) with a fresh global scope over the default ambient
// environment.
func RunProgram(program *compiler.Program) (vm.Value, []errors.QuillError) {
	q := NewQuill()
	machine := vm.New(program.Code)
	machine.SetLogger(q.logger)
	value, err := machine.Run(program.Entry, q.global)
	if err != nil {
		return vm.Undefined(), wrapRuntime(err)
	}
	return value, nil
}

// RunFile reads, compiles, and executes a script file. It prints errors
// and the result; the return value reports success.
func RunFile(filename string) bool {
	sourceBytes, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quill: cannot read %s: %v\n", filename, err)
		return false
	}
	source := string(sourceBytes)
	q := NewQuill()
	value, errs := q.RunString(source)
	return q.DisplayResult(source, value, errs)
}

func wrapRuntime(err error) []errors.QuillError {
	if qe, ok := err.(errors.QuillError); ok {
		return []errors.QuillError{qe}
	}
	return []errors.QuillError{&errors.RuntimeError{Msg: err.Error(), Cause: err}}
}
