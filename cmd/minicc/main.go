// Command minicc is the compiler's command-line front door (spec §6): a
// single binary accepting one source file plus a dump-mode flag, modeled
// on the teacher's staged-dump cobra command (-dparse/-dclight/.../-dasm)
// collapsed to the four stages this pipeline names.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"minicc/pkg/cabs"
	"minicc/pkg/cfg"
	"minicc/pkg/context"
	"minicc/pkg/hlir"
	"minicc/pkg/lexer"
	"minicc/pkg/lltranslate"
	"minicc/pkg/optimize"
	"minicc/pkg/parser"
	"minicc/pkg/regalloc"
	"minicc/pkg/sema"
	"minicc/pkg/storage"
	"minicc/pkg/symbols"
)

var version = "0.1.0"

var (
	dumpTokens bool // -l
	dumpParse  bool // -p
	dumpAttr   bool // -a
	dumpHL     bool // -h
)

// debugFlagNames lists the CompCert-style single-dash aliases this CLI
// accepts, following the teacher's own single-to-double-dash normalization
// for -dparse-style flags.
var debugFlagNames = []string{"l", "p", "a", "h"}

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// normalizeFlags converts a single-dash short flag like "-l" into pflag's
// expected "--l" long form, mirroring the teacher's -dparse normalization
// (pflag otherwise treats "-l" as a shorthand bundle, not a standalone bool).
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range debugFlagNames {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "minicc <file>",
		Short:   "minicc compiles a restricted C-like source file to x86-64 assembly",
		Version: version,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			return compile(args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVarP(&dumpTokens, "l", "l", false, "emit the token stream")
	rootCmd.Flags().BoolVarP(&dumpParse, "p", "p", false, "emit the parse tree")
	rootCmd.Flags().BoolVarP(&dumpAttr, "a", "a", false, "run semantic analysis and dump the symbol table")
	rootCmd.Flags().BoolVarP(&dumpHL, "h", "h", false, "emit the high-level IR")

	return rootCmd
}

// compile runs the requested dump mode and reports any failure in spec
// §7's format, writing to errOut and returning a sentinel so cobra's own
// (now-silenced) error path just signals a nonzero exit.
func compile(filename string, out, errOut io.Writer) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return err
	}
	src := string(content)

	switch {
	case dumpTokens:
		dumpTokenStream(src, out)
		return nil
	case dumpParse:
		return runParse(filename, src, out, errOut)
	case dumpAttr:
		return runAttr(filename, src, out, errOut)
	case dumpHL:
		return runHL(filename, src, out, errOut)
	default:
		return runLL(filename, src, out, errOut)
	}
}

func dumpTokenStream(src string, out io.Writer) {
	l := lexer.New(src)
	for {
		tok := l.NextToken()
		fmt.Fprintf(out, "%s %q\n", tok.Type, tok.Literal)
		if tok.Type == lexer.TokenEOF {
			return
		}
	}
}

func parseSource(filename, src string) (*cabs.Program, error) {
	l := lexer.New(src)
	p := parser.New(l, filename)
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(p.Errors(), "\n"))
	}
	return prog, nil
}

func runParse(filename, src string, out, errOut io.Writer) error {
	prog, err := parseSource(filename, src)
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return err
	}
	cabs.NewPrinter(out).PrintProgram(prog)
	return nil
}

func runAttr(filename, src string, out, errOut io.Writer) error {
	prog, err := parseSource(filename, src)
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return err
	}
	a := sema.New()
	if err := a.Analyze(prog); err != nil {
		reportError(filename, err, errOut)
		return err
	}
	dumpSymbolTable(a, out)
	return nil
}

func dumpSymbolTable(a *sema.Analyzer, out io.Writer) {
	for _, sym := range a.Global().Symbols() {
		fmt.Fprintf(out, "%s %s", sym.SymKind, sym.Name)
		if sym.Storage.Kind == symbols.Global {
			fmt.Fprintf(out, " global(%s)", sym.Storage.Label)
		}
		fmt.Fprintln(out)
	}
}

func runHL(filename, src string, out, errOut io.Writer) error {
	prog, err := buildHL(filename, src, errOut)
	if err != nil {
		return err
	}
	for _, fn := range prog.Functions {
		fmt.Fprintf(out, "%s:\n", fn.Name)
		for _, ins := range fn.Instructions {
			fmt.Fprintln(out, "  "+ins.String())
		}
	}
	return nil
}

func runLL(filename, src string, out, errOut io.Writer) error {
	prog, err := buildHL(filename, src, errOut)
	if err != nil {
		return err
	}
	for _, fn := range prog.Functions {
		g := cfg.Build(fn)
		g.ComputeLiveness()
		optimize.Run(g)
		g.ComputeLiveness()
		regalloc.Allocate(fn, g)

		var flat []hlir.Instruction
		for _, b := range g.Blocks {
			if b.Kind == cfg.Interior {
				flat = append(flat, b.Instructions...)
			}
		}
		fn.Instructions = flat
	}
	fmt.Fprint(out, lltranslate.Translate(prog))
	return nil
}

// buildHL runs every pass up to and including HL-IR lowering, the shared
// prefix of the -h and default (LL) dump modes.
func buildHL(filename, src string, errOut io.Writer) (*hlir.Program, error) {
	prog, err := parseSource(filename, src)
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return nil, err
	}
	a := sema.New()
	if err := a.Analyze(prog); err != nil {
		reportError(filename, err, errOut)
		return nil, err
	}
	ctx := context.New()
	alloc := storage.New(ctx, a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		reportError(filename, err, errOut)
		return nil, err
	}
	out, err := hlir.New(ctx, a.Attrs(), alloc).Generate(prog)
	if err != nil {
		reportError(filename, err, errOut)
		return nil, err
	}
	return out, nil
}

// reportError prints err in spec §7's two formats: source-located
// (*sema.Error) diagnostics carry file:line:col, everything else (internal
// invariant failures from *corefail.Error) prints bare.
func reportError(filename string, err error, errOut io.Writer) {
	if se, ok := err.(*sema.Error); ok {
		fmt.Fprintf(errOut, "%s:%d:%d:Error: %s\n", filename, se.Loc.Line, se.Loc.Col, se.Msg)
		return
	}
	fmt.Fprintf(errOut, "%v\n", err)
}
