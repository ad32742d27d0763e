package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mesh-intelligence/metalens/internal/session"
	"github.com/mesh-intelligence/metalens/pkg/codec"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

const shellHelp = `Commands:
  open <path>                    load a file, replacing the current one
  close                          discard the current file
  show                           print the current record
  set <field> <value>            set name, mimeType, modifiedAt or description
  tag <keyword>                  add a keyword
  untag <keyword>                remove a keyword
  field add                      add an empty custom field and print its id
  field set <id> key|value <v>   change a custom field
  field rm <id>                  remove a custom field
  analyze                        start an analysis in the background
  wait                           wait for running analyses to finish
  export binary|sidecar [dir]    write an artifact
  help                           show this help
  quit                           leave the shell`

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

func newShellCmd(a *app) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Edit one file at a time interactively",
		Long: "Start an interactive session holding one file and its record.\n" +
			"Analyses run in the background; edits are accepted meanwhile, and a\n" +
			"result that arrives after the file was replaced is discarded.\n\n" + shellHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sh := &shell{
				app:     a,
				session: a.newSession(),
				out:     cmd.OutOrStdout(),
				ctx:     cmd.Context(),
				root:    root,
			}
			return sh.run(cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "directory opened files are selected from; sets their relative path")
	return cmd
}

// shell is the interactive front end over one session.
type shell struct {
	app     *app
	session *session.Session
	out     io.Writer
	ctx     context.Context
	root    string

	source  string // path of the active file
	pending []<-chan session.Outcome
}

func (s *shell) run(in io.Reader) error {
	interactive := isTerminal(in)
	scanner := bufio.NewScanner(in)

	for {
		if interactive {
			fmt.Fprint(s.out, "metalens> ")
		}
		if !scanner.Scan() {
			break
		}
		s.reap()

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.exec(line); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}

	s.drain()
	if err := scanner.Err(); err != nil {
		return sysError(fmt.Errorf("read input: %w", err))
	}
	return nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// cut splits off the first whitespace-delimited word.
func cut(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

func (s *shell) exec(line string) error {
	name, rest := cut(line)
	switch strings.ToLower(name) {
	case "open":
		return s.open(rest)
	case "close":
		s.session.Close()
		s.source = ""
		fmt.Fprintln(s.out, "closed")
		return nil
	case "show":
		return s.show()
	case "set":
		return s.set(rest)
	case "tag":
		return s.update(func(r types.Record) types.Record { return r.AddKeyword(rest) })
	case "untag":
		return s.update(func(r types.Record) types.Record { return r.RemoveKeyword(rest) })
	case "field":
		return s.field(rest)
	case "analyze":
		return s.analyze()
	case "wait":
		s.drain()
		return nil
	case "export":
		return s.export(rest)
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
		return nil
	case "quit", "exit":
		return errQuit
	}
	return fmt.Errorf("unknown command %q (try help)", name)
}

func (s *shell) open(path string) error {
	if path == "" {
		return errors.New("usage: open <path>")
	}
	h, err := loadHandle(path, s.root)
	if err != nil {
		return err
	}
	s.session.Open(h)
	s.source = path
	fmt.Fprintf(s.out, "opened %s (%s, %s)\n", h.OriginalName, codec.FormatByteCount(h.OriginalSize), h.OriginalMimeType)
	return nil
}

func (s *shell) show() error {
	r, err := s.session.Record()
	if err != nil {
		return err
	}
	if s.app.jsonMode {
		return printJSON(s.out, r)
	}
	printRecord(s.out, r)
	if s.session.InFlight() {
		fmt.Fprintln(s.out, "(analysis running)")
	}
	return nil
}

func (s *shell) set(args string) error {
	fieldName, value := cut(args)
	if fieldName == "" {
		return errors.New("usage: set <field> <value>")
	}
	field, err := types.ParseField(fieldName)
	if err != nil {
		return err
	}
	return s.update(func(r types.Record) types.Record { return r.Set(field, value) })
}

func (s *shell) update(fn func(types.Record) types.Record) error {
	_, err := s.session.Update(fn)
	return err
}

func (s *shell) field(args string) error {
	sub, rest := cut(args)
	switch sub {
	case "add":
		var id string
		_, err := s.session.Update(func(r types.Record) types.Record {
			r, id = r.AddCustomField()
			return r
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, id)
		return nil
	case "set":
		id, rest := cut(rest)
		attrName, value := cut(rest)
		if id == "" || attrName == "" {
			return errors.New("usage: field set <id> key|value <text>")
		}
		attr, err := types.ParseAttr(attrName)
		if err != nil {
			return err
		}
		r, err := s.session.Record()
		if err != nil {
			return err
		}
		if _, ok := r.CustomField(id); !ok {
			return fmt.Errorf("no custom field %q", id)
		}
		return s.update(func(r types.Record) types.Record { return r.UpdateCustomField(id, attr, value) })
	case "rm", "remove":
		if rest == "" {
			return errors.New("usage: field rm <id>")
		}
		return s.update(func(r types.Record) types.Record { return r.RemoveCustomField(rest) })
	}
	return errors.New("usage: field add | field set <id> key|value <text> | field rm <id>")
}

func (s *shell) analyze() error {
	done, err := s.session.AnalyzeAsync(s.ctx)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, done)
	fmt.Fprintln(s.out, "analysis started")
	return nil
}

// reap reports analyses that have finished without blocking.
func (s *shell) reap() {
	remaining := s.pending[:0]
	for _, ch := range s.pending {
		select {
		case o := <-ch:
			s.report(o)
		default:
			remaining = append(remaining, ch)
		}
	}
	s.pending = remaining
}

// drain blocks until every running analysis has reported.
func (s *shell) drain() {
	for _, ch := range s.pending {
		s.report(<-ch)
	}
	s.pending = nil
}

func (s *shell) report(o session.Outcome) {
	switch {
	case errors.Is(o.Err, session.ErrStaleAnalysis):
		fmt.Fprintln(s.out, "analysis discarded: the file was replaced")
	case o.Err != nil:
		fmt.Fprintf(s.out, "analysis failed: %v (record unchanged; run analyze to retry)\n", o.Err)
	default:
		fmt.Fprintln(s.out, "analysis merged")
		printResult(s.out, o.Result)
	}
}

func (s *shell) export(args string) error {
	kind, dir := cut(args)
	saver, err := s.app.newSaver(dir)
	if err != nil {
		return err
	}

	var written string
	switch kind {
	case "binary":
		art, err := s.session.ExportBinary()
		if err != nil {
			return err
		}
		if err := checkNotSource(saver, art.Filename, s.source); err != nil {
			return err
		}
		if written, err = saver.WriteBinary(art); err != nil {
			return err
		}
	case "sidecar":
		art, err := s.session.ExportSidecar()
		if err != nil {
			return err
		}
		if err := checkNotSource(saver, art.Filename, s.source); err != nil {
			return err
		}
		if written, err = saver.WriteSidecar(art); err != nil {
			return err
		}
	default:
		return errors.New("usage: export binary|sidecar [dir]")
	}
	fmt.Fprintf(s.out, "wrote %s\n", written)
	return nil
}
