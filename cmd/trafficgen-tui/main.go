package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

const (
	defaultStatusURL = "http://127.0.0.1:9095"
	pollRate         = time.Second
	maxOutcomes      = 20
	viewportHeight   = 20
)

var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	actionStyle = lipgloss.NewStyle().Width(18).Bold(true)
	classStyle  = lipgloss.NewStyle().Width(12)

	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// summaryResponse mirrors api.SummaryResponse; importing pkg/api would pull
// the SQLite driver (and cgo) into the TUI.
type summaryResponse struct {
	traffic.Summary
	Totals traffic.ActionStats `json:"totals"`
}

type tickMsg time.Time

type dataMsg struct {
	summary  summaryResponse
	outcomes []traffic.Outcome
	err      error
}

type model struct {
	baseURL  string
	client   *http.Client
	spinner  spinner.Model
	viewport viewport.Model
	summary  summaryResponse
	outcomes []traffic.Outcome
	err      error
	ready    bool
}

func initialModel(baseURL string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 500 * time.Millisecond},
		spinner:  s,
		viewport: newViewport(100),
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchData(m.client, m.baseURL),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchData(m.client, m.baseURL), tick())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.summary = msg.summary
			m.outcomes = msg.outcomes
			m.updateViewportContent()
		}
		m.ready = true

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
		m.ready = true
	}

	return m, tea.Batch(cmds...)
}

// updateViewportContent renders the outcome stream, newest first.
func (m *model) updateViewportContent() {
	var sb strings.Builder
	for _, o := range m.outcomes {
		style := passStyle
		switch {
		case o.Class == traffic.ClassSkipped:
			style = skipStyle
		case !o.Succeeded:
			style = failStyle
		}

		status := ""
		if o.HTTPStatus != 0 {
			status = fmt.Sprintf("HTTP %d ", o.HTTPStatus)
		}
		fmt.Fprintf(&sb, "%s %s %s %s%s %s\n",
			timeStyle.Render(o.At.Format("15:04:05")),
			actionStyle.Render(o.Action),
			classStyle.Render(style.Render(string(o.Class))),
			status,
			o.Latency.Round(time.Millisecond),
			subtleStyle.Render(o.Detail),
		)
	}
	m.viewport.SetContent(sb.String())
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting to %s...", m.spinner.View(), m.baseURL)
	}

	var stats strings.Builder
	stats.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Actions") + "\n\n")
	if len(m.summary.Actions) == 0 {
		stats.WriteString(subtleStyle.Render("No actions run yet."))
	} else {
		fmt.Fprintf(&stats, "%-18s %7s %7s %7s %7s %10s\n", "ACTION", "CALLS", "OK", "FAILED", "SKIPPED", "MEAN")
		for _, name := range m.summary.ActionNames() {
			a := m.summary.Actions[name]
			fmt.Fprintf(&stats, "%-18s %7d %7d %7d %7d %10s\n",
				name, a.Invocations, a.Succeeded, a.Failed, a.Skipped, a.MeanLatency().Round(time.Millisecond))
		}
	}
	topPane := paneStyle.Render(stats.String())

	header := headerStyle.Render(fmt.Sprintf("%s Recent Outcomes", m.spinner.View()))

	var status string
	switch {
	case m.err != nil:
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	case m.summary.Interrupted:
		status = errorStyle.Render(fmt.Sprintf("Run %s interrupted • %d actions", m.summary.RunID, m.summary.Iterations))
	default:
		status = okStyle.Render(fmt.Sprintf("Run %s • %d actions • %d failed",
			m.summary.RunID, m.summary.Iterations, m.summary.Totals.Failed))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, m.viewport.View(), footer)
}

func fetchData(c *http.Client, baseURL string) tea.Cmd {
	return func() tea.Msg {
		var sum summaryResponse
		if err := getJSON(c, baseURL+"/v1/summary", &sum); err != nil {
			return dataMsg{err: err}
		}
		var outcomes []traffic.Outcome
		if err := getJSON(c, fmt.Sprintf("%s/v1/outcomes?limit=%d", baseURL, maxOutcomes), &outcomes); err != nil {
			return dataMsg{err: err}
		}
		return dataMsg{summary: sum, outcomes: outcomes}
	}
}

func getJSON(c *http.Client, url string, v any) error {
	resp, err := c.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func newRootCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:          "trafficgen-tui",
		Short:        "Watch a running trafficgen through its status server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := tea.NewProgram(initialModel(addr), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err := p.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("TRAFFICGEN_STATUS_URL", defaultStatusURL), "status server base URL")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "trafficgen-tui: %v\n", err)
		os.Exit(1)
	}
}
