// Command loxvm is the CLI entry point: run a script, disassemble one,
// or drop into the REPL. It uses a run/repl/disassemble/version
// subcommand layout built on github.com/spf13/cobra rather than a
// hand-rolled os.Args switch, with a fixed exit-code contract: 0
// success, 64 usage error, 65 compile error, 70 runtime error, 74 I/O
// error reading source.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kristofer/loxvm/internal/chunk"
	"github.com/kristofer/loxvm/internal/compiler"
	"github.com/kristofer/loxvm/internal/repl"
	"github.com/kristofer/loxvm/internal/value"
	"github.com/kristofer/loxvm/internal/vm"
)

const version = "0.1.0"

// exitError carries the process exit code a command wants on failure,
// so Execute's single error-handling site in main can map it without
// each subcommand calling os.Exit directly.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, args ...interface{}) error {
	return &exitError{code: 64, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		os.Exit(code)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loxvm [script]",
		Short:         "A bytecode compiler and VM for a small dynamic scripting language",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usageErr("usage: loxvm [script]")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return repl.Run(os.Stdout, os.Stderr)
			}
			return runFile(args[0])
		},
	}

	root.AddCommand(
		newRunCmd(),
		newReplCmd(),
		newDisasmCmd(),
		newVersionCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "run <script>",
		Short:                 "Run a source file",
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0])
		},
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start the interactive read-eval-print loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return repl.Run(os.Stdout, os.Stderr)
		},
	}
}

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "disasm <script>",
		Aliases: []string{"disassemble"},
		Short:   "Compile a source file and print its bytecode",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disasmFile(args[0], cmd.OutOrStdout())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the loxvm version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "loxvm version %s\n", version)
			return nil
		},
	}
}

func runFile(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return &exitError{code: 74, err: err}
	}

	machine := vm.New()
	result, err := machine.Interpret(string(source))
	if err == nil {
		return nil
	}
	switch result {
	case vm.InterpretCompileError:
		return &exitError{code: 65, err: err}
	default:
		return &exitError{code: 70, err: err}
	}
}

// disasmFile compiles path without running it and prints its chunk,
// recursing into any nested function constants the way a clox-family
// debug dump walks OP_CLOSURE operands.
func disasmFile(path string, w io.Writer) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return &exitError{code: 74, err: err}
	}

	machine := vm.New()
	fn, err := compiler.Compile(string(source), machine)
	if err != nil {
		return &exitError{code: 65, err: err}
	}

	dumpFunction(w, fn, map[*value.FunctionObject]bool{})
	return nil
}

func dumpFunction(w io.Writer, fn *value.FunctionObject, visited map[*value.FunctionObject]bool) {
	if visited[fn] {
		return
	}
	visited[fn] = true

	name := "<script>"
	if fn.Name != nil {
		name = fn.Name.Chars
	}
	c := fn.Chunk.(*chunk.Chunk)
	chunk.Disassemble(w, c, name)

	for _, constVal := range c.Constants {
		if constVal.IsObject() {
			if nested, ok := constVal.AsObject().(*value.FunctionObject); ok {
				dumpFunction(w, nested, visited)
			}
		}
	}
}
