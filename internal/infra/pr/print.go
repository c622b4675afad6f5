// Package pr is a thin output wrapper for the interactive sql REPL.
// It initializes readline with a cancelable stdin, redirects stdout/stderr
// to its buffers, and exposes print helpers so the rest of the CLI never
// imports readline directly.
package pr

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chzyer/readline"
	"github.com/kr/pretty"
)

var (
	rl     *readline.Instance
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
	mu     sync.Mutex

	cancelableIn interface{ Close() error }
)

// Init sets up readline and points the package's output helpers at its
// stdout/stderr. Not safe to call twice.
func Init() error {
	cs := readline.NewCancelableStdin(os.Stdin)
	newRl, err := readline.NewEx(&readline.Config{Stdin: cs})
	if err != nil {
		_ = cs.Close()
		return err
	}
	rl = newRl

	mu.Lock()
	cancelableIn = cs
	out = rl.Stdout()
	errOut = rl.Stderr()
	mu.Unlock()

	return nil
}

// InterruptReadline closes the cancelable stdin so a blocked Readline() call
// returns io.EOF instead of hanging on shutdown.
func InterruptReadline() {
	if cancelableIn != nil {
		_ = cancelableIn.Close()
	}
}

func SetPrompt(prompt string) {
	rl.SetPrompt(prompt)
}

func Rl() *readline.Instance { return rl }

func Stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

func Stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

func Print(a ...any)   { fmt.Fprint(Stdout(), a...) }
func Println(a ...any) { fmt.Fprintln(Stdout(), a...) }

func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout(), format, a...)
}

func ErrPrint(a ...any)   { fmt.Fprint(Stderr(), a...) }
func ErrPrintln(a ...any) { fmt.Fprintln(Stderr(), a...) }

func ErrPrintf(format string, a ...any) {
	fmt.Fprintf(Stderr(), format, a...)
}

// PP pretty-prints a value to Stdout. Used by the sql REPL to render result
// rows without hand-rolling a table formatter.
func PP(v any) {
	fmt.Fprintf(Stdout(), "%# v\n", pretty.Formatter(v))
}
