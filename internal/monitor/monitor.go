package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"swarmlink/internal/packet"
	"swarmlink/internal/swarm"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a packet log line for the viewport.
type logMsg struct{ line string }

// packetMsg carries a decoded packet and its source address.
type packetMsg struct {
	pkt  packet.Packet
	from string
	at   time.Time
}

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"

	staleAfter = 3 * time.Second
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

// Monitor renders fleet packets using a bubbletea TUI.
type Monitor struct {
	program teaProgram
	done    chan struct{}
}

// New starts a bubbletea program and returns a Monitor. The returned
// done channel closes when the user quits the UI.
func New() *Monitor {
	m := &Monitor{done: make(chan struct{})}
	p := tea.NewProgram(newModel(), tea.WithAltScreen())
	m.program = p
	go func() {
		_, _ = p.Run()
		close(m.done)
	}()
	return m
}

// Feed forwards a decoded packet into the UI.
func (m *Monitor) Feed(p packet.Packet, from string, at time.Time) {
	m.program.Send(logMsg{line: formatPacket(p, from, at)})
	m.program.Send(packetMsg{pkt: p, from: from, at: at})
}

// Done closes when the UI has exited.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Close shuts down the TUI program and waits for cleanup.
func (m *Monitor) Close() error {
	if m.program != nil {
		m.program.Send(tea.Quit())
	}
	if m.done != nil {
		<-m.done
	}
	return nil
}

func formatPacket(p packet.Packet, from string, at time.Time) string {
	ts := fmt.Sprintf("%s[%s]%s", colorGray, at.Format(time.RFC3339), colorReset)
	switch p.Kind {
	case packet.KindCommand:
		return fmt.Sprintf("%s %sCMD%s %shw=%d%s %spos=%d%s %smission=%s%s %sstate=%s%s %strigger=%d%s %sfrom=%s%s",
			ts,
			colorRed, colorReset,
			colorBlue, p.HwID, colorReset,
			colorCyan, p.PosID, colorReset,
			colorMagenta, swarm.MissionCode(p.Mission), colorReset,
			colorYellow, swarm.AgentState(p.State), colorReset,
			colorGreen, p.TriggerTime, colorReset,
			colorGray, from, colorReset)
	default:
		line := fmt.Sprintf("%s %sTLM%s %shw=%d%s %spos=%d%s %smission=%s%s %sstate=%s%s %slat=%.6f%s %slon=%.6f%s %salt=%.1f%s %sbatt=%.1f%s %sfrom=%s%s",
			ts,
			colorCyan, colorReset,
			colorBlue, p.HwID, colorReset,
			colorCyan, p.PosID, colorReset,
			colorMagenta, swarm.MissionCode(p.Mission), colorReset,
			colorYellow, swarm.AgentState(p.State), colorReset,
			colorGreen, p.Lat, colorReset,
			colorYellow, p.Lon, colorReset,
			colorMagenta, p.AltMSL, colorReset,
			colorCyan, p.Battery, colorReset,
			colorGray, from, colorReset)
		if p.Follow != 0 {
			line += fmt.Sprintf(" %sfollow=%d%s", colorMagenta, p.Follow, colorReset)
		}
		return line
	}
}

// agentView is the per-agent row state accumulated from telemetry.
type agentView struct {
	pkt  packet.Packet
	from string
	seen time.Time
}

type model struct {
	table      table.Model
	vp         viewport.Model
	logs       []string
	agents     map[uint16]agentView
	wrap       bool
	autoscroll bool
	height     int
}

func newModel() model {
	cols := []table.Column{
		{Title: "HW", Width: 4},
		{Title: "Pos", Width: 4},
		{Title: "Mission", Width: 10},
		{Title: "State", Width: 9},
		{Title: "Trigger", Width: 10},
		{Title: "Lat", Width: 11},
		{Title: "Lon", Width: 11},
		{Title: "Alt", Width: 8},
		{Title: "Batt", Width: 5},
		{Title: "Age", Width: 6},
		{Title: "From", Width: 21},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(2))
	return model{
		table:      t,
		vp:         viewport.New(0, 0),
		agents:     make(map[uint16]agentView),
		autoscroll: true,
	}
}

func (m model) Init() tea.Cmd { return tick() }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		}
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > 500 {
			m.logs = m.logs[len(m.logs)-500:]
		}
		m.refreshViewport()
	case packetMsg:
		if msg.pkt.Kind == packet.KindTelemetry {
			m.agents[msg.pkt.HwID] = agentView{pkt: msg.pkt, from: msg.from, seen: msg.at}
			m.refreshTable()
			m.layout()
		}
	case tickMsg:
		// Keeps the age column moving between packets.
		m.refreshTable()
		return m, tick()
	}
	return m, nil
}

func (m *model) layout() {
	m.table.SetHeight(len(m.agents) + 1)
	used := 1 + m.table.Height() + 2
	h := m.height - used
	if h < 3 {
		h = 3
	}
	m.vp.Height = h
}

func (m *model) refreshTable() {
	ids := make([]uint16, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		a := m.agents[id]
		age := time.Since(a.seen).Round(time.Second)
		ageStr := age.String()
		if age > staleAfter {
			ageStr = "! " + ageStr
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", a.pkt.HwID),
			fmt.Sprintf("%d", a.pkt.PosID),
			swarm.MissionCode(a.pkt.Mission).String(),
			swarm.AgentState(a.pkt.State).String(),
			fmt.Sprintf("%d", a.pkt.TriggerTime),
			fmt.Sprintf("%.6f", a.pkt.Lat),
			fmt.Sprintf("%.6f", a.pkt.Lon),
			fmt.Sprintf("%.1f", a.pkt.AltMSL),
			fmt.Sprintf("%.0f", a.pkt.Battery),
			ageStr,
			a.from,
		})
	}
	m.table.SetRows(rows)
}

func (m *model) refreshViewport() {
	content := ""
	for i, l := range m.logs {
		if i > 0 {
			content += "\n"
		}
		if m.wrap && m.vp.Width > 0 {
			l = wordwrap.String(l, m.vp.Width)
		}
		content += l
	}
	m.vp.SetContent(content)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m model) View() string {
	header := headerStyle.Render(fmt.Sprintf("swarmlink monitor | %d agents | [q]uit [w]rap [s]croll", len(m.agents)))
	return lipgloss.JoinVertical(lipgloss.Left, header, m.table.View(), "", m.vp.View())
}
