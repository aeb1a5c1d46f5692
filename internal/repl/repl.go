// Package repl implements loxvm's interactive read-eval-print loop. It
// keeps a single *vm.VM alive across lines so that globals declared on
// one line remain visible on the next, and hands line editing to
// github.com/chzyer/readline instead of a bare bufio.Scanner, picking up
// history and ctrl-C/ctrl-D handling for free.
package repl

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/kristofer/loxvm/internal/vm"
)

const prompt = "loxvm> "

// Run drives the loop until the user types "exit" or sends EOF
// (ctrl-D), returning nil in both cases — the caller always exits 0
// for a REPL session ending normally.
func Run(out, errOut io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
		Stderr:          errOut,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	machine := vm.New()
	machine.Stdout = out
	machine.Stderr = errOut

	fmt.Fprintln(out, "loxvm")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == "exit" {
			return nil
		}

		// Errors are reported and the loop continues with the same VM:
		// a bad line never tears down accumulated globals.
		machine.Interpret(line)
	}
}
