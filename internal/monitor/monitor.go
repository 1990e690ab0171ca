// Package monitor implements verticoctl monitor's live fleet
// dashboard: a bubbletea table refreshed on a short poll of the
// dispatcher's introspection HTTP endpoint (internal/dispatcher's
// ServeIntrospection). This never touches the framed wire protocol —
// it's a read-only operator view built on an endpoint added purely for
// this purpose.
package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vertico-systems/vertico/internal/fleetconfig"
)

// carRow mirrors dispatcher.CarSnapshot without importing internal/dispatcher,
// since the monitor only ever sees it across the introspection HTTP
// endpoint as JSON, never in-process.
type carRow struct {
	Name         string
	Lo, Hi       int
	CurrentFloor int
	Status       string
	Queue        []int
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	missingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	emergencyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// pollMsg carries the result of one introspection poll.
type pollMsg struct {
	rows []carRow
	err  error
}

type tickMsg time.Time

// Model is the bubbletea model driving verticoctl monitor.
type Model struct {
	endpoint string
	interval time.Duration
	fleet    *fleetconfig.Fleet
	table    table.Model
	err      error
}

// New builds a monitor Model polling endpoint (a dispatcherd
// introspection base URL, e.g. "http://127.0.0.1:3100") every interval.
// fleet, if non-nil, supplies the legend of expected car names.
func New(endpoint string, interval time.Duration, fleet *fleetconfig.Fleet) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	columns := []table.Column{
		{Title: "Car", Width: 12},
		{Title: "Range", Width: 10},
		{Title: "Floor", Width: 8},
		{Title: "Door", Width: 10},
		{Title: "Queue", Width: 24},
	}

	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(12))

	return Model{endpoint: endpoint, interval: interval, fleet: fleet, table: t}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.tick())
}

func (m Model) poll() tea.Cmd {
	endpoint := m.endpoint

	return func() tea.Msg {
		rows, err := fetchRows(endpoint)
		return pollMsg{rows: rows, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchRows(endpoint string) ([]carRow, error) {
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(strings.TrimRight(endpoint, "/") + "/cars")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rows []carRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	return rows, nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tickMsg:
		return m, tea.Batch(m.poll(), m.tick())

	case pollMsg:
		m.err = msg.err
		if msg.err == nil {
			m.table.SetRows(toTableRows(msg.rows))
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func toTableRows(rows []carRow) []table.Row {
	out := make([]table.Row, 0, len(rows))

	for _, r := range rows {
		queue := make([]string, len(r.Queue))
		for i, q := range r.Queue {
			queue[i] = fmt.Sprintf("%d", q)
		}

		out = append(out, table.Row{
			r.Name,
			fmt.Sprintf("[%d,%d]", r.Lo, r.Hi),
			fmt.Sprintf("%d", r.CurrentFloor),
			r.Status,
			strings.Join(queue, " "),
		})
	}

	return out
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("vertico fleet monitor"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(emergencyStyle.Render(fmt.Sprintf("poll failed: %v", m.err)))
		b.WriteString("\n\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	if missing := m.missingCars(); len(missing) > 0 {
		b.WriteString(missingStyle.Render("not yet registered: " + strings.Join(missing, ", ")))
		b.WriteString("\n")
	}

	b.WriteString("q to quit\n")

	return b.String()
}

func (m Model) missingCars() []string {
	if m.fleet == nil {
		return nil
	}

	registered := make(map[string]bool, len(m.table.Rows()))
	for _, row := range m.table.Rows() {
		registered[row[0]] = true
	}

	return m.fleet.Missing(registered)
}
