package main

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/gfd/pkg/executor/headless"
)

// Messages sent into the progress program.
type (
	agentEventMsg string
	stateMsg      headless.State
	logLineMsg    string
	stopMsg       struct{}
)

// progressModel renders one live status line while the agent runs.
type progressModel struct {
	spinner   spinner.Model
	title     string
	state     headless.State
	lastEvent string
	events    int
	started   time.Time
	now       func() time.Time
	done      bool
}

func newProgressModel(title string, now func() time.Time) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return progressModel{
		spinner: s,
		title:   title,
		state:   headless.StatePreflight,
		started: now(),
		now:     now,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case agentEventMsg:
		m.events++
		m.lastEvent = string(msg)
		return m, nil
	case stateMsg:
		m.state = headless.State(msg)
		return m, nil
	case logLineMsg:
		return m, tea.Println(string(msg))
	case stopMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}

	elapsed := m.now().Sub(m.started).Round(time.Second)
	line := fmt.Sprintf("%s %s  %s  %s",
		m.spinner.View(),
		titleStyle.Render(m.title),
		stateStyle.Render(string(m.state)),
		mutedStyle.Render(fmt.Sprintf("%s · %d events", elapsed, m.events)),
	)
	if m.lastEvent != "" {
		line += "  " + eventStyle.Render(m.lastEvent)
	}
	return line + "\n"
}

// progress reports run progress. On a terminal it drives a bubbletea
// program; otherwise agent events go to the console logger.
type progress struct {
	program *tea.Program
	done    chan struct{}
	console *headless.Logger
	events  atomic.Int64
}

func newProgress(w io.Writer, interactive bool, title string, console *headless.Logger) *progress {
	p := &progress{console: console}
	if interactive {
		p.program = tea.NewProgram(newProgressModel(title, time.Now),
			tea.WithOutput(w),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		)
		p.done = make(chan struct{})
	}
	return p
}

// Interactive reports whether the live status line is in use.
func (p *progress) Interactive() bool {
	return p.program != nil
}

// Start launches the status line.
func (p *progress) Start() {
	if p.program == nil {
		return
	}
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
}

// Stop clears the status line and waits for the program to exit.
func (p *progress) Stop() {
	if p.program == nil {
		return
	}
	p.program.Send(stopMsg{})
	<-p.done
}

// Event is the invoker's stdout tap.
func (p *progress) Event(line string) {
	desc, ok := headless.DescribeEvent(line)
	if !ok {
		return
	}
	n := p.events.Add(1)
	if p.program != nil {
		p.program.Send(agentEventMsg(desc))
		return
	}
	p.console.AgentEvent(desc, int(n))
}

// Transition is the orchestrator's state observer.
func (p *progress) Transition(t headless.Transition) {
	if p.program != nil {
		p.program.Send(stateMsg(t.To))
	}
}

// Write prints console output above the status line.
func (p *progress) Write(b []byte) (int, error) {
	if p.program == nil {
		return len(b), nil
	}
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		p.program.Send(logLineMsg(line))
	}
	return len(b), nil
}
