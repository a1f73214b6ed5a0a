package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"

	"github.com/cheezgi/piccolo/compiler"
	"github.com/cheezgi/piccolo/vm"
)

const (
	historyFile = ".piccolo_history"
	promptMain  = "piccolo> "
	promptCont  = "     ... "
	replName    = "<repl>"
)

const replHelp = `Commands:
  :help          Show this help.
  :quit, :exit   Leave the REPL.
  :gc            Collect garbage and print heap statistics.
  :modules       List the installed modules.
  :load FILE     Run FILE in this session.
`

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func runREPL(v *vm.VM, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "piccolo %s  (:help for commands, Ctrl+D to quit)\n", version)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	session := &replSession{vm: v, stdout: stdout, stderr: stderr}
	for {
		src, ok := readInput(ln)
		if !ok {
			fmt.Fprintln(stdout)
			break
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		if session.handle(src) {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	} else {
		log.Warningf("could not save history: %s", err.Error())
	}
	return 0
}

// readInput reads lines until they form a complete unit. ok is false on
// EOF.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C drops the pending input.
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !incomplete(b.String()) {
			return b.String(), true
		}
	}
}

// incomplete reports whether src only fails to parse because more input is
// expected: an unclosed block, call or string.
func incomplete(src string) bool {
	if strings.HasPrefix(strings.TrimSpace(src), ":") {
		return false
	}
	_, err := compiler.Parse(replName, src)
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "end of input") || strings.Contains(msg, "unterminated string")
}

// replSession evaluates REPL input against one VM, so definitions persist
// between entries.
type replSession struct {
	vm     *vm.VM
	stdout io.Writer
	stderr io.Writer
}

// handle runs one entry and reports whether the REPL should exit.
func (s *replSession) handle(src string) bool {
	trimmed := strings.TrimSpace(src)
	if strings.HasPrefix(trimmed, ":") {
		return s.command(trimmed)
	}
	s.eval(replName, src)
	return false
}

func (s *replSession) eval(name, src string) {
	val, err := s.vm.RunSource(name, src)
	if err != nil {
		reportError(s.stderr, err, src)
		return
	}
	if !val.IsNil() {
		fmt.Fprintln(s.stdout, val.Repr())
	}
}

func (s *replSession) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":exit":
		return true
	case ":help":
		fmt.Fprint(s.stdout, replHelp)
	case ":gc":
		st := s.vm.Collect()
		fmt.Fprintf(s.stdout, "cycle %d: %d -> %d objects, %d bytes live, %d freed, next collection at %d bytes (%s)\n",
			st.Cycle, st.ObjectsBefore, st.ObjectsAfter, st.BytesAfter, st.Freed, st.Threshold, st.Duration)
	case ":modules":
		fmt.Fprintln(s.stdout, strings.Join(s.vm.Registry().Modules(), " "))
	case ":load":
		if len(fields) < 2 {
			fmt.Fprintln(s.stderr, "usage: :load FILE")
			return false
		}
		data, err := os.ReadFile(fields[1])
		if err != nil {
			fmt.Fprintf(s.stderr, "Error: %v\n", err)
			return false
		}
		s.eval(fields[1], string(data))
	default:
		fmt.Fprintf(s.stderr, "unknown command %s, try :help\n", fields[0])
	}
	return false
}
