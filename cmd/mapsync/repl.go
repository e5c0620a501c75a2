package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"mapsync/internal/entry"
	"mapsync/internal/tree"
)

// session is the part of *client.Client the REPL drives.
type session interface {
	Rename(e entry.Entry, name string) error
	ChangeDocs(e entry.Entry, docs string) error
	RemoveMapping(e entry.Entry) error
	MarkDeobfuscated(e entry.Entry, deobfuscated bool) error
	SendMessage(text string) error
	Users() []string
	Snapshot() *tree.EntryTree[entry.Mapping]
}

const replHelp = `Commands:
  rename <entry> <name>   map an entry to a new name
  docs <entry> [text]     set documentation (no text clears it)
  remove <entry>          drop the mapping of an entry
  mark <entry>            mark an entry as deobfuscated
  unmark <entry>          clear the deobfuscated mark
  say <text>              chat with everyone
  users                   list connected users
  show [entry]            print mappings, optionally under one entry
  help                    show this help
  quit                    disconnect

` + entrySpecHelp

// syncWriter serializes writes from the REPL and listener goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type repl struct {
	s   session
	out io.Writer
}

// run reads commands from in until quit, EOF, ctx cancellation or done
// closing.
func (r *repl) run(ctx context.Context, in io.Reader, done <-chan struct{}) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case line := <-lines:
			quit, err := r.exec(line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		case err := <-readErr:
			return err
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// exec runs one command line.
func (r *repl) exec(line string) (quit bool, err error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(r.out, replHelp)
		return false, nil
	case "say":
		if rest == "" {
			return false, fmt.Errorf("usage: say <text>")
		}
		return false, r.s.SendMessage(rest)
	case "users":
		fmt.Fprintln(r.out, strings.Join(r.s.Users(), ", "))
		return false, nil
	case "show":
		return false, r.show(rest)
	}

	spec, arg, _ := strings.Cut(rest, " ")
	arg = strings.TrimSpace(arg)
	if spec == "" {
		return false, fmt.Errorf("usage: %s <entry> ...", cmd)
	}
	e, err := parseEntry(spec)
	if err != nil {
		return false, err
	}

	switch cmd {
	case "rename":
		if arg == "" {
			return false, fmt.Errorf("usage: rename <entry> <name>")
		}
		return false, r.s.Rename(e, arg)
	case "docs":
		return false, r.s.ChangeDocs(e, arg)
	case "remove":
		return false, r.s.RemoveMapping(e)
	case "mark":
		return false, r.s.MarkDeobfuscated(e, true)
	case "unmark":
		return false, r.s.MarkDeobfuscated(e, false)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// show prints the replica in tree order, restricted to root and its
// descendants when a spec is given.
func (r *repl) show(spec string) error {
	var root entry.Entry
	if spec != "" {
		e, err := parseEntry(spec)
		if err != nil {
			return err
		}
		root = e
	}

	n := 0
	for e, m := range r.s.Snapshot().All() {
		if root != nil && !within(e, root) {
			continue
		}
		fmt.Fprintln(r.out, describeMapping(e, m))
		n++
	}
	if n == 0 {
		fmt.Fprintln(r.out, "no mappings")
	}
	return nil
}

func within(e, root entry.Entry) bool {
	if entry.Equal(e, root) {
		return true
	}
	for _, a := range entry.Ancestors(e) {
		if entry.Equal(a, root) {
			return true
		}
	}
	return false
}

func describeMapping(e entry.Entry, m entry.Mapping) string {
	var b strings.Builder
	b.WriteString(formatEntry(e))
	b.WriteString(" -> ")
	b.WriteString(entry.DisplayName(e, m))
	if m.Access != entry.AccessUnchanged {
		b.WriteString(" [" + m.Access.String() + "]")
	}
	if m.Docs != "" {
		b.WriteString(" // " + strings.ReplaceAll(m.Docs, "\n", " "))
	}
	return b.String()
}
