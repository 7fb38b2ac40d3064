package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/module-bridge/host"
	"github.com/wippyai/module-bridge/module"
	"github.com/wippyai/module-bridge/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	argStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// owner runs closures on the goroutine that created the runtime. The TUI
// runs commands on goroutines of its own, and neither the interpreter nor
// the bridge may be used from those.
type owner struct {
	reqs chan func()
}

func (o *owner) do(fn func()) {
	done := make(chan struct{})
	o.reqs <- func() {
		defer close(done)
		fn()
	}
	<-done
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	rt       *runtime.Runtime
	owner    *owner
	opts     *options
	loaded   []string
	funcs    []runtime.FunctionInfo
	inputs   []textinput.Model
	result   string
	selected int
	focusIdx int
	state    modelState
	ready    bool
}

type loadedMsg struct {
	err    error
	loaded []string
	funcs  []runtime.FunctionInfo
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(opts *options, rt *runtime.Runtime, o *owner) *interactiveModel {
	return &interactiveModel{opts: opts, rt: rt, owner: o, state: stateSelectFunc}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModules
}

func (m *interactiveModel) loadModules() tea.Msg {
	var msg loadedMsg
	m.owner.do(func() {
		if err := m.rt.LoadAll(context.Background(), m.opts.load); err != nil {
			msg.err = err
			return
		}
		for _, mod := range m.rt.Bridge().Modules() {
			msg.loaded = append(msg.loaded, mod.Path)
		}
		msg.funcs = m.rt.Functions()
	})
	return msg
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
			return m, nil

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		m.ready = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.loaded = msg.loaded
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// prepareInputs creates one input per required and optional argument,
// plus one comma-separated input for &rest arguments.
func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	n := f.MaxArity
	if n == module.Variadic {
		n = f.MinArity + 1
	}
	m.inputs = make([]textinput.Model, n)
	for i := range m.inputs {
		ti := textinput.New()
		switch {
		case i < f.MinArity:
			ti.Prompt = fmt.Sprintf("ARG%d: ", i+1)
			ti.Placeholder = "required"
		case f.MaxArity == module.Variadic:
			ti.Prompt = "REST: "
			ti.Placeholder = "a, b, ..."
		default:
			ti.Prompt = fmt.Sprintf("ARG%d: ", i+1)
			ti.Placeholder = "optional"
		}
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// argValues returns the raw arguments typed so far. Empty optional inputs
// end the argument list.
func (m *interactiveModel) argValues() []string {
	f := m.funcs[m.selected]
	var raw []string
	for i, input := range m.inputs {
		v := strings.TrimSpace(input.Value())
		if i >= f.MinArity {
			if v == "" {
				break
			}
			if f.MaxArity == module.Variadic {
				raw = append(raw, splitList(v)...)
				break
			}
		}
		raw = append(raw, v)
	}
	return raw
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	raw := m.argValues()
	var msg callResultMsg
	m.owner.do(func() {
		result, err := m.rt.Call(f.Name, m.rt.ParseArgs(raw)...)
		if err != nil {
			msg.err = err
			return
		}
		msg.result = host.Print(result)
	})
	return msg
}

func (m *interactiveModel) View() string {
	if !m.ready {
		return "Loading modules..."
	}
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Module Bridge"))
	b.WriteString(" ")
	b.WriteString(strings.Join(m.loaded, ", "))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The loaded modules define no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + signature(f)))
			} else {
				b.WriteString("  " + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		if doc := m.funcs[m.selected].Doc; doc != "" {
			b.WriteString("\n")
			b.WriteString(helpStyle.Render(doc))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("42 integer • 1.5 float • 'sym symbol • \"text\" string"))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(f runtime.FunctionInfo) string {
	sig := signature(f)
	name, rest, _ := strings.Cut(strings.Trim(sig, "()"), " ")
	if rest == "" {
		return "(" + funcStyle.Render(name) + ")"
	}
	return "(" + funcStyle.Render(name) + " " + argStyle.Render(rest) + ")"
}

// runInteractive serves runtime requests from the TUI on the calling
// goroutine until the program exits.
func runInteractive(opts *options) error {
	ctx := context.Background()
	rt, err := runtime.New(ctx, opts.runtimeConfig())
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	o := &owner{reqs: make(chan func())}
	p := tea.NewProgram(newInteractiveModel(opts, rt, o), tea.WithAltScreen())
	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()
	for {
		select {
		case fn := <-o.reqs:
			fn()
		case err := <-done:
			return err
		}
	}
}
