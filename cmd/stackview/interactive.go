package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	rpcstack "github.com/wippyai/rpc-stack"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	filterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	sizeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	traceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	spec     string
	prevSpec string
	stack    *rpcstack.ChannelStack
	demos    []*demoFilter
	tl       *traceLog
	traceOut []string
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateSelectFilter modelState = iota
	stateAddFilter
	stateShowTrace
)

func newInteractiveModel(spec string) *interactiveModel {
	return &interactiveModel{
		spec:  spec,
		state: stateSelectFilter,
	}
}

type builtMsg struct {
	err   error
	stack *rpcstack.ChannelStack
	demos []*demoFilter
	tl    *traceLog
}

type traceMsg struct {
	err   error
	lines []string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.buildStack
}

func (m *interactiveModel) buildStack() tea.Msg {
	tl := &traceLog{}
	demos, err := parseFilterSpec(m.spec, tl)
	if err != nil {
		return builtMsg{err: err}
	}
	stack, err := rpcstack.NewBuilder().Append(filterList(demos)...).Build()
	if err != nil {
		return builtMsg{err: err}
	}
	return builtMsg{stack: stack, demos: demos, tl: tl}
}

func (m *interactiveModel) runTrace() tea.Msg {
	if m.selected >= m.stack.Count()-1 {
		return traceMsg{err: fmt.Errorf("element %d is the transport edge; cancel from an upstream element", m.selected)}
	}
	m.tl.reset()
	call := m.stack.NewCall(nil, nil)
	defer call.Destroy()
	call.Element(m.selected).SendCancel()
	return traceMsg{lines: m.tl.list()}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.stack != nil {
				m.stack.Destroy()
			}
			return m, tea.Quit

		case "q":
			if m.state != stateAddFilter {
				if m.stack != nil {
					m.stack.Destroy()
				}
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFilter && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFilter && m.selected < len(m.demos)-1 {
				m.selected++
			}

		case "a":
			if m.state == stateSelectFilter {
				m.prepareInputs()
				m.state = stateAddFilter
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelectFilter:
				if m.stack != nil {
					return m, m.runTrace
				}

			case stateAddFilter:
				return m.submitFilter()

			case stateShowTrace:
				m.state = stateSelectFilter
				m.traceOut = nil
				m.err = nil
			}

		case "tab":
			if m.state == stateAddFilter && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateAddFilter:
				m.state = stateSelectFilter
				m.inputs = nil
				m.err = nil
			case stateShowTrace:
				m.state = stateSelectFilter
				m.traceOut = nil
				m.err = nil
			}
		}

	case builtMsg:
		if msg.err != nil {
			m.err = msg.err
			// A rejected filter must not stay in the pipeline spec.
			if m.prevSpec != "" {
				m.spec = m.prevSpec
				m.prevSpec = ""
			}
			return m, nil
		}
		m.prevSpec = ""
		if m.stack != nil {
			m.stack.Destroy()
		}
		m.stack = msg.stack
		m.demos = msg.demos
		m.tl = msg.tl
		if m.selected >= len(m.demos) {
			m.selected = len(m.demos) - 1
		}
		m.state = stateSelectFilter
		m.inputs = nil
		m.err = nil

	case traceMsg:
		m.traceOut = msg.lines
		m.err = msg.err
		m.state = stateShowTrace
	}

	if m.state == stateAddFilter {
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

func (m *interactiveModel) prepareInputs() {
	labels := []struct{ prompt, placeholder string }{
		{"name: ", "compress"},
		{"channel bytes: ", "8"},
		{"call bytes: ", "4"},
	}
	m.inputs = make([]textinput.Model, len(labels))
	for i, l := range labels {
		ti := textinput.New()
		ti.Prompt = l.prompt
		ti.Placeholder = l.placeholder
		ti.Width = 20
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) submitFilter() (tea.Model, tea.Cmd) {
	name := strings.TrimSpace(m.inputs[0].Value())
	if name == "" || strings.ContainsAny(name, ":,") {
		m.err = fmt.Errorf("filter name must be non-empty without ':' or ','")
		return m, nil
	}
	chanSize, err := strconv.Atoi(strings.TrimSpace(m.inputs[1].Value()))
	if err != nil || chanSize < 0 {
		m.err = fmt.Errorf("channel size must be a non-negative integer")
		return m, nil
	}
	callSize, err := strconv.Atoi(strings.TrimSpace(m.inputs[2].Value()))
	if err != nil || callSize < 0 {
		m.err = fmt.Errorf("call size must be a non-negative integer")
		return m, nil
	}
	m.prevSpec = m.spec
	m.spec = fmt.Sprintf("%s,%s:%d:%d", m.spec, name, chanSize, callSize)
	m.err = nil
	return m, m.buildStack
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state == stateSelectFilter {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.stack == nil {
		return "Building pipeline..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("RPC Stack Inspector"))
	b.WriteString(" ")
	b.WriteString(m.spec)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFilter:
		b.WriteString(sizeStyle.Render(fmt.Sprintf("channel %d bytes • call %d bytes • %d filters",
			rpcstack.ChannelStackSize(filterList(m.demos)), m.stack.CallStackSize(), m.stack.Count())))
		b.WriteString("\n\n")
		regs := m.stack.Layout()
		for i, d := range m.demos {
			cursor := "  "
			line := m.formatFilter(d, regs[i+2])
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + line))
			} else {
				b.WriteString(cursor + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter cancel from element • a add filter • q quit"))

	case stateAddFilter:
		b.WriteString("Add a filter to the pipeline:\n\n")
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(m.err.Error()))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter add • esc back"))

	case stateShowTrace:
		b.WriteString(fmt.Sprintf("Cancel from element %d (%s):\n\n",
			m.selected, filterStyle.Render(m.demos[m.selected].name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			for _, line := range m.traceOut {
				b.WriteString(traceStyle.Render("  " + line))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFilter(d *demoFilter, r rpcstack.RegionInfo) string {
	return filterStyle.Render(d.name) +
		sizeStyle.Render(fmt.Sprintf("  chan=%dB call=%dB  @%d+%d", d.chanSize, d.callSize, r.Off, r.Size))
}

func runInteractive(spec string) error {
	p := tea.NewProgram(newInteractiveModel(spec), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
