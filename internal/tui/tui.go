package tui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"drafter/internal/app"
	"drafter/internal/eventbus"
	logx "drafter/pkg/logx"
)

// UI runs the bubbletea program for an App.
//
// Results, saves and log alerts arrive on other goroutines. They are queued
// and handed to the program by a single goroutine, because Program.Send can
// block while the model is busy.
type UI struct {
	app     *app.App
	program *tea.Program

	msgQueue chan tea.Msg
	done     chan struct{}
	doneOnce sync.Once
}

func New(a *app.App) *UI {
	return &UI{
		app:      a,
		msgQueue: make(chan tea.Msg, 256),
		done:     make(chan struct{}),
	}
}

// send queues msg, dropping it when the queue is full or the UI is gone.
func (u *UI) send(msg tea.Msg) {
	select {
	case <-u.done:
	case u.msgQueue <- msg:
	default:
	}
}

// Run blocks until the user quits, ctx ends or the app fails.
func (u *UI) Run(ctx context.Context, opts ...tea.ProgramOption) error {
	a := u.app
	ctx, cancel := untilClosed(ctx, a.Done())
	defer cancel()

	model := NewModel(a.Set, a.Flush, a.Session(), a.LastResult())
	u.program = tea.NewProgram(model, append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)...)

	events, unsub := a.Bus().Subscribe(64, eventbus.ResultReady, eventbus.SessionSaved, eventbus.ConfigApplied)
	defer unsub()

	a.Logs().SetAlertFunc(func(level logx.Level, line string) {
		u.send(alertMsg{level: level, line: line})
	})
	defer a.Logs().SetAlertFunc(nil)

	go u.forward(events)
	go func() {
		for {
			select {
			case <-u.done:
				return
			case msg := <-u.msgQueue:
				u.program.Send(msg)
			}
		}
	}()

	_, err := u.program.Run()
	u.doneOnce.Do(func() { close(u.done) })
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// untilClosed returns a context that also ends when done is closed.
func untilClosed(parent context.Context, done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// forward converts bus events into model messages.
func (u *UI) forward(events <-chan eventbus.Event) {
	for {
		select {
		case <-u.done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case eventbus.ResultReady:
				if r, ok := e.Data.(app.Result); ok {
					u.send(resultMsg(r))
				}
			case eventbus.SessionSaved:
				u.send(savedMsg(e.Time))
			case eventbus.ConfigApplied:
				if sections, ok := e.Data.([]string); ok && len(sections) > 0 {
					u.send(reloadMsg(sections))
				}
			}
		}
	}
}

// Done is closed when the program has exited.
func (u *UI) Done() <-chan struct{} { return u.done }

// Quit asks the program to exit.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

