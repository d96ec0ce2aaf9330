package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hipot/internal/batch"
	"hipot/internal/channelmap"
	"hipot/internal/config"
	"hipot/internal/ipc"
	"hipot/internal/outcome"
	"hipot/internal/report"
)

const refreshInterval = 250 * time.Millisecond

// Controller is the daemon surface the console drives. *ipc.Client
// satisfies it.
type Controller interface {
	Status() (*ipc.StatusResponse, error)
	Start() (*ipc.StartResponse, error)
	Reset(closeReport bool) (*ipc.ResetResponse, error)
	EmergencyStop() (*ipc.EmergencyStopResponse, error)
}

type statusMsg struct {
	snapshot batch.Snapshot
	err      error
}

type commandMsg struct {
	action  string
	ok      bool
	message string
	err     error
}

// Model is the console state.
type Model struct {
	ctrl      Controller
	snapshot  batch.Snapshot
	connected bool
	statusErr error
	message   string
	stopped   bool
	progress  progress.Model
	width     int
}

// New builds a console model around ctrl.
func New(ctrl Controller) *Model {
	return &Model{
		ctrl:     ctrl,
		progress: progress.New(progress.WithDefaultGradient()),
		width:    80,
	}
}

// Run starts the console on the terminal and blocks until the operator quits.
func Run(ctrl Controller) error {
	_, err := tea.NewProgram(New(ctrl), tea.WithAltScreen()).Run()
	return err
}

// Init is called once when the program starts.
func (m *Model) Init() tea.Cmd {
	return m.fetchStatus()
}

// Update handles key presses, status polls, and command replies.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(20, min(60, msg.Width-20))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			return m, m.command("start", func() (bool, string, error) {
				resp, err := m.ctrl.Start()
				if err != nil {
					return false, "", err
				}
				return resp.Started, resp.Message, nil
			})
		case "r":
			closeReport := m.snapshot.ReportOpen
			return m, m.command("reset", func() (bool, string, error) {
				resp, err := m.ctrl.Reset(closeReport)
				if err != nil {
					return false, "", err
				}
				return resp.Reset, resp.Message, nil
			})
		case "E":
			return m, m.command("emergency stop", func() (bool, string, error) {
				resp, err := m.ctrl.EmergencyStop()
				if err != nil {
					return false, "", err
				}
				return resp.Accepted, "emergency stop sent", nil
			})
		}
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.connected = false
			m.statusErr = msg.err
		} else {
			m.connected = true
			m.statusErr = nil
			m.snapshot = msg.snapshot
		}
		if m.stopped && !m.connected {
			// The daemon exits after an emergency stop.
			return m, nil
		}
		return m, m.scheduleRefresh()

	case commandMsg:
		switch {
		case msg.err != nil:
			m.message = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		case !msg.ok:
			m.message = fmt.Sprintf("%s refused: %s", msg.action, msg.message)
		default:
			m.message = msg.message
		}
		if msg.action == "emergency stop" && msg.ok {
			m.stopped = true
		}
		return m, m.fetchStatus()
	}
	return m, nil
}

func (m *Model) fetchStatus() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return pollStatus(ctrl)
	}
}

func (m *Model) scheduleRefresh() tea.Cmd {
	ctrl := m.ctrl
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return pollStatus(ctrl)
	})
}

func pollStatus(ctrl Controller) statusMsg {
	resp, err := ctrl.Status()
	if err != nil {
		return statusMsg{err: err}
	}
	return statusMsg{snapshot: resp.Batch}
}

func (m *Model) command(action string, call func() (bool, string, error)) tea.Cmd {
	return func() tea.Msg {
		ok, message, err := call()
		return commandMsg{action: action, ok: ok, message: message, err: err}
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	faultStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	cellStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(16)
)

// View renders the console.
func (m *Model) View() string {
	sections := []string{titleStyle.Render("HIPOT STATION") + "  " + m.stateLine()}
	if !m.connected {
		detail := "connecting to daemon"
		if m.statusErr != nil {
			detail = fmt.Sprintf("daemon unavailable: %v", m.statusErr)
		}
		sections = append(sections, warnStyle.Render(detail))
	}

	sections = append(sections,
		m.progress.ViewAs(float64(m.snapshot.Progress)/100),
		m.grid(),
	)

	if r := m.snapshot.LastReport; r != nil && m.snapshot.ReportOpen {
		if summary := report.FaultSummary(*r); summary != "" {
			sections = append(sections, faultStyle.Render(strings.TrimRight(summary, "\n")))
		}
	}
	for _, w := range m.snapshot.Warnings {
		sections = append(sections, warnStyle.Render("! "+w))
	}
	if m.message != "" {
		sections = append(sections, messageStyle.Render(m.message))
	}
	sections = append(sections, hintStyle.Render("s start · r reset · E emergency stop · q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m *Model) stateLine() string {
	s := m.snapshot
	switch {
	case s.Stopping:
		return faultStyle.Render("EMERGENCY STOP")
	case s.Running:
		line := fmt.Sprintf("RUNNING cavity %d", s.CurrentCavity)
		if s.Stage != "" {
			line += " · " + report.Label(s.Stage)
		}
		return line
	case s.Fault:
		return faultStyle.Render("FAULT · reset required")
	case !s.CooldownUntil.IsZero():
		return "RESETTING"
	default:
		return "READY"
	}
}

// grid renders cavities 1-5 (bank 1) above cavities 6-10 (bank 2).
func (m *Model) grid() string {
	rows := make([]string, 0, len(channelmap.Banks))
	for _, bank := range channelmap.Banks {
		first := (int(bank)-1)*channelmap.CavitiesPerBank + 1
		cells := make([]string, 0, channelmap.CavitiesPerBank)
		for n := first; n < first+channelmap.CavitiesPerBank; n++ {
			cells = append(cells, m.cell(n))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m *Model) cell(n int) string {
	c, _ := m.snapshot.Cavity(n)
	settings := m.setting(n)

	style := cellStyle.BorderForeground(lipgloss.Color(borderColor(settings)))
	if m.snapshot.Running && m.snapshot.CurrentCavity == n {
		style = style.BorderForeground(lipgloss.Color("#5B8DEF"))
	}
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Cavity %d", n)),
		"Cont  " + outcomeText(c.Continuity),
		"Hypot " + outcomeText(c.Hypot),
		"Laser " + laserText(c.Laser, settings.LaserEnabled),
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m *Model) setting(n int) config.CavitySettings {
	for _, s := range m.snapshot.Settings {
		if s.Number == n {
			return s
		}
	}
	return config.CavitySettings{Number: n}
}

// borderColor shows the enable state: green when fully enabled, amber when
// the laser is off, gray when the cavity is not tested.
func borderColor(s config.CavitySettings) string {
	switch {
	case !s.RunEnabled:
		return "#444444"
	case !s.LaserEnabled:
		return "#E5C07B"
	default:
		return "#98C379"
	}
}

func outcomeText(o outcome.Outcome) string {
	switch o {
	case outcome.Pass:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")).Render("PASS")
	case outcome.Fail:
		return faultStyle.Render("FAIL")
	case outcome.Unset, "":
		return hintStyle.Render("-")
	default:
		return hintStyle.Render(strings.ToUpper(report.Label(string(o))))
	}
}

func laserText(l outcome.Laser, enabled bool) string {
	switch {
	case l == outcome.LaserMarked:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")).Render("OK")
	case l == outcome.LaserNone && !enabled:
		return hintStyle.Render("off")
	case l == outcome.LaserNone:
		return hintStyle.Render("-")
	default:
		return hintStyle.Render(strings.ToUpper(report.Label(string(l))))
	}
}
