package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"drafter/internal/app"
	logx "drafter/pkg/logx"
)

// Messages pushed into the program from outside the event loop.
type (
	resultMsg app.Result
	savedMsg  time.Time
	alertMsg  struct {
		level logx.Level
		line  string
	}
	reloadMsg []string
	tickMsg   time.Time
)

// Setter applies one edited field. It must not block.
type Setter func(field, raw string) error

type field struct {
	name  string
	label string
	input textinput.Model
}

// Model is the bubbletea model: three inputs above the result table and a
// status line.
type Model struct {
	set    Setter
	flush  func()
	styles Styles

	fields []field
	focus  int

	notation string
	result   app.Result
	pending  bool
	savedAt  time.Time
	now      time.Time

	status      string
	statusLevel logx.Level
	statusAt    time.Time

	width    int
	quitting bool
}

// statusTTL is how long an alert stays on the status line.
const statusTTL = 8 * time.Second

func NewModel(set Setter, flush func(), sess app.Session, last app.Result) Model {
	mk := func(name, label, value string) field {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 32
		ti.Width = 16
		ti.SetValue(value)
		return field{name: name, label: label, input: ti}
	}
	m := Model{
		set:    set,
		flush:  flush,
		styles: DefaultStyles(),
		fields: []field{
			mk(app.FieldFar, "far", sess.Far),
			mk(app.FieldNear, "near", sess.Near),
			mk(app.FieldProgress, "progress", sess.Progress),
		},
		notation: sess.Notation.Style.String(),
		result:   last,
		now:      last.At,
	}
	m.fields[0].input.Focus()
	return m
}

func doTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, doTick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.status != "" && m.now.Sub(m.statusAt) > statusTTL {
			m.status = ""
		}
		return m, doTick()

	case resultMsg:
		m.result = app.Result(msg)
		m.pending = false
		return m, nil

	case savedMsg:
		m.savedAt = time.Time(msg)
		return m, nil

	case alertMsg:
		m.status, m.statusLevel, m.statusAt = msg.line, msg.level, m.now
		return m, nil

	case reloadMsg:
		m.setStatus(logx.LevelInfo, "config reloaded: "+strings.Join(msg, ", "))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "tab", "down", "enter":
		return m.moveFocus(1), nil
	case "shift+tab", "up":
		return m.moveFocus(-1), nil
	case "ctrl+s":
		if m.flush != nil {
			m.flush()
		}
		return m, nil
	case "ctrl+n":
		next := "fixed"
		if m.notation == "fixed" {
			next = "fraction"
		}
		if err := m.set(app.FieldNotation, next); err != nil {
			m.setStatus(logx.LevelWarn, err.Error())
			return m, nil
		}
		m.notation = next
		m.pending = true
		return m, nil
	}

	f := &m.fields[m.focus]
	before := f.input.Value()
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	if after := f.input.Value(); after != before {
		if err := m.set(f.name, after); err != nil {
			m.setStatus(logx.LevelWarn, err.Error())
		} else {
			m.pending = true
		}
	}
	return m, cmd
}

func (m Model) moveFocus(delta int) Model {
	m.fields[m.focus].input.Blur()
	n := len(m.fields)
	m.focus = ((m.focus+delta)%n + n) % n
	m.fields[m.focus].input.Focus()
	return m
}

func (m *Model) setStatus(level logx.Level, line string) {
	m.status, m.statusLevel, m.statusAt = line, level, m.now
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("drafter: perspective divisions"))
	b.WriteString("\n\n")
	for i, f := range m.fields {
		label := m.styles.Label
		if i == m.focus {
			label = m.styles.LabelActive
		}
		b.WriteString(label.Render(f.label))
		b.WriteString(f.input.View())
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Label.Render("notation"))
	b.WriteString(m.styles.Muted.Render(m.notation + "  (ctrl+n)"))
	b.WriteString("\n\n")

	b.WriteString(m.renderResult())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m Model) renderResult() string {
	r := m.result
	switch {
	case r.Seq == 0:
		return m.styles.Muted.Render("waiting for input")
	case r.Err != nil:
		return m.styles.Error.Render(r.ErrText())
	}

	rows := r.TableRows()
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(m.styles.TableBorder).
		Headers(app.TableHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return m.styles.Header
			}
			if row >= 0 && row < len(r.Rows) && r.Rows[row].Requested {
				return m.styles.Requested
			}
			return m.styles.Cell
		})
	return t.String()
}

func (m Model) renderStatus() string {
	left := m.styles.Muted.Render("tab: next field  ctrl+s: apply now  esc: quit")
	if m.pending {
		left = m.styles.Muted.Render("recomputing...")
	}

	var right string
	if !m.savedAt.IsZero() {
		right = m.styles.Muted.Render("saved " + humanize.RelTime(m.savedAt, m.now, "ago", "from now"))
	}

	line := left
	if right != "" {
		line += "  " + right
	}
	if m.status != "" {
		st := m.styles.Status
		switch {
		case m.statusLevel >= logx.LevelError:
			st = m.styles.Error
		case m.statusLevel >= logx.LevelWarn:
			st = m.styles.Warning
		}
		line += "\n" + st.Render(m.status)
	}
	return line
}
