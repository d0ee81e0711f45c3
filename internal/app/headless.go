package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"drafter/internal/eventbus"
	"drafter/internal/fraction"
)

const headlessHelp = `commands:
  far <v>        paper distance to the far line (e.g. 4, 3 1/2, 0.75)
  near <v>       paper distance to the near line
  progress <v>   real-world fraction from near (0) to far (1)
  steps <n>      number of intervals in the table
  notation <s>   fixed or fraction
  show           print the last result table
  flush          run scheduled work now
  history [n]    list saved sessions
  prune          prune history now
  stats          print counters
  quit           exit
`

// RunHeadless reads line commands from in and writes replies and results to
// out until quit, EOF or ctx ends. It returns the reason the loop ended.
func (a *App) RunHeadless(ctx context.Context, in io.Reader, out io.Writer) StopReason {
	w := &syncWriter{w: out}

	results, unsub := a.bus.Subscribe(16, eventbus.ResultReady)
	defer unsub()
	go func() {
		for e := range results {
			if res, ok := e.Data.(Result); ok {
				w.printf("%s\n", res.Summary())
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	w.printf("%s\n", a.LastResult().Summary())
	for {
		select {
		case <-ctx.Done():
			return StopSignal
		case <-a.Done():
			return StopFatalError
		case line, ok := <-lines:
			if !ok {
				return StopInputEOF
			}
			if quit := a.command(ctx, strings.TrimSpace(line), w); quit {
				return StopQuit
			}
		}
	}
}

// command executes one line and reports whether the loop should end.
func (a *App) command(ctx context.Context, line string, w *syncWriter) bool {
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit":
		return true
	case "help", "?":
		w.printf("%s", headlessHelp)
	case FieldFar, FieldNear, FieldProgress, FieldSteps, FieldNotation:
		if err := a.Set(name, arg); err != nil {
			w.printf("error: %v\n", err)
		}
	case "show":
		res := a.LastResult()
		if a.Pending() {
			w.printf("(recompute pending)\n")
		}
		w.printf("%s", renderTable(res))
	case "flush":
		a.Flush()
	case "stats":
		w.printf("%s", a.Stats().Format(a.clock.Now()))
	case "history":
		limit := 10
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				w.printf("error: history wants a positive count\n")
				return false
			}
			limit = n
		}
		a.printHistory(ctx, limit, w)
	case "prune":
		a.PruneNow()
	default:
		w.printf("unknown command %q (try help)\n", name)
	}
	return false
}

func (a *App) printHistory(ctx context.Context, limit int, w *syncWriter) {
	if a.store == nil {
		w.printf("storage disabled\n")
		return
	}
	entries, err := a.History(ctx, limit)
	if err != nil {
		w.printf("error: %v\n", err)
		return
	}
	now := a.clock.Now()
	n := a.Session().Notation
	for _, e := range entries {
		dist := "invalid"
		if e.Valid {
			dist = fraction.Format(e.Distance, n)
		}
		w.printf("%-16s far %s, near %s, progress %s -> %s\n",
			humanize.RelTime(e.At, now, "ago", "from now"),
			e.Session.Far, e.Session.Near, e.Session.Progress, dist)
	}
	if len(entries) == 0 {
		w.printf("no history\n")
	}
}

// Summary is the one-line form of a result.
func (r Result) Summary() string {
	if r.Seq == 0 {
		return "no result yet"
	}
	if r.Err != nil {
		return fmt.Sprintf("#%d error: %s", r.Seq, r.ErrText())
	}
	row, ok := r.Requested()
	if !ok {
		return fmt.Sprintf("#%d (empty)", r.Seq)
	}
	return fmt.Sprintf("#%d progress %s: distance %s, from near %s", r.Seq, row.Progress, row.Distance, row.FromNear)
}

func renderTable(res Result) string {
	if res.Seq == 0 {
		return "no result yet\n"
	}
	if res.Err != nil {
		return "error: " + res.ErrText() + "\n"
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(TableHeaders...).
		Rows(res.TableRows()...)
	return t.String() + "\n"
}

// ErrText flattens joined input errors into one line.
func (r Result) ErrText() string {
	err := r.Err
	if err == nil {
		return ""
	}
	var j interface{ Unwrap() []error }
	if errors.As(err, &j) {
		parts := make([]string, 0, len(j.Unwrap()))
		for _, e := range j.Unwrap() {
			parts = append(parts, e.Error())
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}
