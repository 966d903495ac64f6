// Package progress shows a live counter of settled prop models.
package progress

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// UpdateMsg reports that done of total prop models have settled.
type UpdateMsg struct {
	Done  int
	Total int
}

// DoneMsg ends the counter.
type DoneMsg struct{}

// Model is the counter's bubbletea model.
type Model struct {
	label    string
	done     int
	total    int
	finished bool

	// updates feeds messages from a Reporter; nil for a standalone model.
	updates chan tea.Msg
}

// New returns a counter with the given label, e.g. "Loading props".
func New(label string) Model {
	return Model{label: label}
}

// listen waits for the next message from the Reporter.
func (m Model) listen() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	updates := m.updates
	return func() tea.Msg {
		return <-updates
	}
}

// Line formats a counter line.
func Line(label string, done, total int) string {
	return fmt.Sprintf("%s %d / %d", label, done, total)
}

func (m Model) Init() tea.Cmd {
	return m.listen()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case UpdateMsg:
		m.done, m.total = msg.Done, msg.Total
		return m, m.listen()
	case DoneMsg:
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.total == 0 && !m.finished {
		return m.label + "...\n"
	}
	return Line(m.label, m.done, m.total) + "\n"
}

// Reporter runs a counter program in the background. Messages go through a
// channel the model listens on, so senders never block once the program has
// exited.
type Reporter struct {
	program *tea.Program
	updates chan tea.Msg
	exited  chan struct{}
	err     error
}

// Start renders a counter to w until Stop is called.
func Start(w io.Writer, label string) *Reporter {
	m := New(label)
	m.updates = make(chan tea.Msg)

	r := &Reporter{
		program: tea.NewProgram(m, tea.WithOutput(w), tea.WithInput(strings.NewReader(""))),
		updates: m.updates,
		exited:  make(chan struct{}),
	}
	go func() {
		defer close(r.exited)
		_, r.err = r.program.StartReturningModel()
	}()
	return r
}

// Update reports progress. It matches the resolver's progress callback and
// is a no-op after the program has exited.
func (r *Reporter) Update(done, total int) {
	r.send(UpdateMsg{Done: done, Total: total})
}

// Stop ends the counter and waits for the final frame. Calling it again
// returns the same result.
func (r *Reporter) Stop() error {
	r.send(DoneMsg{})
	<-r.exited
	return r.err
}

func (r *Reporter) send(msg tea.Msg) {
	select {
	case r.updates <- msg:
	case <-r.exited:
	}
}
