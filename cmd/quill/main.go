package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"quill/pkg/compiler"
	"quill/pkg/driver"
	"quill/pkg/image"
	"quill/pkg/vm"
)

func main() {
	exprFlag := flag.String("e", "", "Run the given expression and exit")
	compileFlag := flag.String("c", "", "Compile the script to the given image file instead of running it")
	disasmFlag := flag.Bool("d", false, "Print the disassembled bytecode instead of running")
	traceFlag := flag.Bool("trace", false, "Enable per-stage debug logging")
	configFlag := flag.String("config", "", "Path to a quill.toml config file")

	flag.Parse()

	cfg, err := loadConfig(configPath(*configFlag), *configFlag != "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "quill: config: %v\n", err)
		os.Exit(64) // command line usage error
	}
	logger := buildLogger(cfg, *traceFlag)

	if *exprFlag != "" {
		runSource(*exprFlag, logger, *disasmFlag)
		return
	}

	switch {
	case flag.NArg() > 1:
		fmt.Fprintf(os.Stderr, "Usage: quill [options] [script]\n")
		os.Exit(64)
	case flag.NArg() == 1:
		file := flag.Arg(0)
		switch {
		case *compileFlag != "":
			compileToImage(file, *compileFlag, logger)
		case strings.HasSuffix(file, ".qimg"):
			runImage(file, logger)
		case *disasmFlag:
			disassembleFile(file, logger)
		default:
			if !driver.RunFile(file) {
				os.Exit(70) // internal software error
			}
		}
	default:
		runRepl(logger)
	}
}

func configPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return defaultConfigPath
}

func buildLogger(cfg Config, trace bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	if trace || cfg.Trace {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func runSource(source string, logger zerolog.Logger, disasm bool) {
	q := driver.NewQuill()
	q.SetLogger(logger)

	if disasm {
		program, errs := q.CompileString(source)
		if len(errs) > 0 {
			q.DisplayResult(source, vm.Undefined(), errs)
			os.Exit(65) // data format error
		}
		fmt.Print(compiler.Disassemble(program))
		return
	}

	value, errs := q.RunString(source)
	if !q.DisplayResult(source, value, errs) {
		os.Exit(70)
	}
}

func compileToImage(file, out string, logger zerolog.Logger) {
	source, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quill: cannot read %s: %v\n", file, err)
		os.Exit(66) // cannot open input
	}
	q := driver.NewQuill()
	q.SetLogger(logger)
	program, errs := q.CompileString(string(source))
	if len(errs) > 0 {
		q.DisplayResult(string(source), vm.Undefined(), errs)
		os.Exit(65)
	}
	if err := image.WriteFile(out, program, file); err != nil {
		fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		os.Exit(73) // cannot create output
	}
	logger.Info().Str("out", out).Int("bytes", len(program.Code)).Msg("image written")
}

func runImage(file string, logger zerolog.Logger) {
	program, _, err := image.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		os.Exit(65)
	}
	value, errs := driver.RunProgram(program)
	q := driver.NewQuill()
	q.SetLogger(logger)
	if !q.DisplayResult("", value, errs) {
		os.Exit(70)
	}
}

func disassembleFile(file string, logger zerolog.Logger) {
	source, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quill: cannot read %s: %v\n", file, err)
		os.Exit(66)
	}
	q := driver.NewQuill()
	q.SetLogger(logger)
	program, errs := q.CompileString(string(source))
	if len(errs) > 0 {
		q.DisplayResult(string(source), vm.Undefined(), errs)
		os.Exit(65)
	}
	fmt.Print(compiler.Disassemble(program))
}

func runRepl(logger zerolog.Logger) {
	fmt.Println("Quill REPL (Ctrl+D to exit)")
	q := driver.NewQuill()
	q.SetLogger(logger)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		value, errs := q.RunString(line)
		q.DisplayResult(line, value, errs)
	}
}
