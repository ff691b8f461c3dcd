package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/tsim/internal/engine"
	"grimm.is/tsim/internal/queryparse"
)

type viewState int

const (
	stateForm viewState = iota
	stateResult
	stateError
)

// formValues holds the raw form input; narrowing to a Query happens on
// submit with the same rules the CLI applies.
type formValues struct {
	Router     string
	Source     string
	SourcePort string
	Dest       string
	DestPort   string
	Protocol   string
	State      string
}

type evalDone struct {
	router string
	result engine.Result
}

type evalFailed struct{ err error }

// Model is the console's bubbletea model.
type Model struct {
	Backend Backend

	state  viewState
	form   *huh.Form
	values *formValues

	router string
	result engine.Result
	trace  table.Model
	err    error

	width  int
	height int
}

// NewModel builds the console over a backend. Listing routers happens up
// front so the form can offer them; an empty facts dir is an immediate
// error view.
func NewModel(backend Backend) Model {
	m := Model{Backend: backend}

	routers, err := backend.Routers()
	if err != nil {
		m.state = stateError
		m.err = err
		return m
	}
	if len(routers) == 0 {
		m.state = stateError
		m.err = fmt.Errorf("no facts files found")
		return m
	}

	m.values = &formValues{Protocol: "all", State: "NEW", Router: routers[0]}
	m.form = newQueryForm(m.values, routers)
	return m
}

func newQueryForm(v *formValues, routers []string) *huh.Form {
	routerOpts := make([]huh.Option[string], 0, len(routers))
	for _, r := range routers {
		routerOpts = append(routerOpts, huh.NewOption(r, r))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Router").
				Options(routerOpts...).
				Value(&v.Router),
			huh.NewInput().
				Title("Source").
				Description("IP, CIDR, range, or comma list").
				Value(&v.Source),
			huh.NewInput().
				Title("Source port").
				Value(&v.SourcePort),
			huh.NewInput().
				Title("Destination").
				Value(&v.Dest),
			huh.NewInput().
				Title("Destination port").
				Value(&v.DestPort),
			huh.NewSelect[string]().
				Title("Protocol").
				Options(
					huh.NewOption("all", "all"),
					huh.NewOption("tcp", "tcp"),
					huh.NewOption("udp", "udp"),
					huh.NewOption("icmp", "icmp"),
				).
				Value(&v.Protocol),
			huh.NewSelect[string]().
				Title("Connection state").
				Options(
					huh.NewOption("NEW", "NEW"),
					huh.NewOption("ESTABLISHED", "ESTABLISHED"),
					huh.NewOption("RELATED", "RELATED"),
					huh.NewOption("INVALID", "INVALID"),
				).
				Value(&v.State),
		),
	).WithTheme(huh.ThemeBase16())
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.form != nil {
		return m.form.Init()
	}
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case evalDone:
		m.state = stateResult
		m.router = msg.router
		m.result = msg.result
		m.trace = traceTable(msg.result.Steps, m.width)
		return m, nil

	case evalFailed:
		m.state = stateError
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.state == stateResult || m.state == stateError {
			switch msg.String() {
			case "q", "esc":
				return m, tea.Quit
			case "n":
				next := NewModel(m.Backend)
				next.width, next.height = m.width, m.height
				return next, next.Init()
			}
			if m.state == stateResult {
				var cmd tea.Cmd
				m.trace, cmd = m.trace.Update(msg)
				return m, cmd
			}
			return m, nil
		}
	}

	if m.state == stateForm && m.form != nil {
		form, cmd := m.form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.form = f
		}
		if m.form.State == huh.StateCompleted {
			return m, m.evaluate()
		}
		if m.form.State == huh.StateAborted {
			return m, tea.Quit
		}
		return m, cmd
	}
	return m, nil
}

// evaluate narrows the form input and asks the backend.
func (m Model) evaluate() tea.Cmd {
	v := *m.values
	backend := m.Backend
	return func() tea.Msg {
		q, err := queryparse.BuildQuery(v.Source, v.SourcePort, v.Dest, v.DestPort, v.Protocol, v.State, nil)
		if err != nil {
			return evalFailed{err: err}
		}
		res, err := backend.Evaluate(v.Router, q)
		if err != nil {
			return evalFailed{err: err}
		}
		return evalDone{router: v.Router, result: res}
	}
}

func traceTable(steps []engine.Step, width int) table.Model {
	columns := []table.Column{
		{Title: "Chain", Width: 24},
		{Title: "Line", Width: 5},
		{Title: "Target", Width: 14},
		{Title: "Step", Width: 8},
		{Title: "Detail", Width: 36},
	}

	rows := make([]table.Row, 0, len(steps))
	for _, s := range steps {
		line := ""
		if s.Line > 0 {
			line = strconv.Itoa(s.Line)
		}
		detail := s.Note
		if detail == "" && s.Criterion != "" {
			detail = "failed: " + s.Criterion
		}
		rows = append(rows, table.Row{s.Chain, line, s.Target, string(s.Kind), detail})
	}

	height := len(rows)
	if height > 14 {
		height = 14
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorDeep).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ColorIce).
		Background(ColorDeep).
		Bold(false)
	t.SetStyles(s)
	return t
}

// View implements tea.Model.
func (m Model) View() string {
	switch m.state {
	case stateError:
		return StyleError.Render("error: "+m.err.Error()) + "\n\n" +
			StyleHelp.Render("n new query · q quit") + "\n"

	case stateResult:
		banner := StyleDenied.Render("DENIED")
		if m.result.Allowed {
			banner = StyleAllowed.Render("ALLOWED")
		}
		return lipgloss.JoinVertical(lipgloss.Left,
			StyleTitle.Render("tsim · "+m.router),
			"",
			banner,
			StyleReason.Render(m.result.Reason),
			"",
			m.trace.View(),
			"",
			StyleHelp.Render("n new query · q quit"),
		) + "\n"

	default:
		if m.form == nil {
			return ""
		}
		return StyleTitle.Render("tsim · forwarding query") + "\n\n" + m.form.View()
	}
}
