package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/execstatefuzzer/execstatefuzzer/internal/fuzzloop"
)

// LogEntry is one activity-log line shown in the dashboard.
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
}

// Dashboard is the bubbletea model driving the campaign view. Unlike
// the teacher's Dashboard, it has no pause/resume/stop control plane:
// the Loop it observes is driven independently (by cmd/execstatefuzzer),
// so this is read-only telemetry, matching the same reasoning that kept
// internal/dashboard/web observation-only.
type Dashboard struct {
	width  int
	height int

	loop *fuzzloop.Loop

	logs    []LogEntry
	maxLogs int

	targetLabel string
	tickCount   int
}

// New builds a Dashboard observing loop.
func New(loop *fuzzloop.Loop, targetLabel string) *Dashboard {
	return &Dashboard{
		width:       80,
		height:      24,
		loop:        loop,
		logs:        make([]LogEntry, 0, 64),
		maxLogs:     50,
		targetLabel: targetLabel,
	}
}

// AddLog appends an activity-log entry, trimming to maxLogs.
func (d *Dashboard) AddLog(level, message string) {
	d.logs = append(d.logs, LogEntry{Time: time.Now(), Level: level, Message: message})
	if len(d.logs) > d.maxLogs {
		d.logs = d.logs[len(d.logs)-d.maxLogs:]
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.EnterAltScreen)
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return d, tea.Quit
		}

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height

	case tickMsg:
		d.tickCount++
		stats := d.loop.Stats()
		if !stats.LastInterestingAt.IsZero() && d.tickCount%4 == 0 {
			d.AddLog("INFO", fmt.Sprintf("corpus grew, last at %s", stats.LastInterestingAt.Format("15:04:05")))
		}
		return d, tickCmd()
	}
	return d, nil
}

func (d *Dashboard) View() string {
	if d.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(d.renderHeader())
	b.WriteString("\n")

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, d.renderStatsPanel(), d.renderLogPanel())
	b.WriteString(mainContent)
	b.WriteString("\n")
	b.WriteString(d.renderFooter())
	return b.String()
}

func (d *Dashboard) renderHeader() string {
	title := TitleStyle.Render("state-fuzz")
	status := RunningStyle.Render("● RUNNING")
	if d.loop.Tracker().IsCoveragePlateau() {
		status = PlateauStyle.Render("◐ PLATEAU")
	}

	target := ""
	if d.targetLabel != "" {
		target = LabelStyle.Render("target:") + " " + ValueStyle.Render(d.targetLabel)
	}

	left := title + "  " + status
	padding := d.width - lipgloss.Width(left) - lipgloss.Width(target) - 2
	if padding < 0 {
		padding = 0
	}
	return BoxStyle.Width(d.width - 2).Render(left + strings.Repeat(" ", padding) + target)
}

func (d *Dashboard) renderStatsPanel() string {
	stats := d.loop.Stats()
	corpus := d.loop.Tracker().Result()

	elapsed := time.Since(stats.StartTime).Truncate(time.Second)
	var execPerSec float64
	if elapsed > 0 {
		execPerSec = float64(stats.Executions) / elapsed.Seconds()
	}

	lines := []string{
		HeaderStyle.Render("campaign"),
		renderLabelValue("executions", fmt.Sprintf("%d", stats.Executions)),
		renderLabelValue("exec/sec", fmt.Sprintf("%.1f", execPerSec)),
		renderLabelValue("interesting", fmt.Sprintf("%d", stats.InterestingInputs)),
		renderLabelValue("crashes", crashText(stats.Crashes)),
		renderLabelValue("timeouts", fmt.Sprintf("%d", stats.Timeouts)),
		renderLabelValue("elapsed", elapsed.String()),
		"",
		HeaderStyle.Render("coverage"),
		renderLabelValue("edges", fmt.Sprintf("%d", corpus.TotalEdges)),
		renderLabelValue("branch sites", fmt.Sprintf("%d", corpus.TotalBranchSites)),
		renderLabelValue("unique instr", fmt.Sprintf("%d", corpus.TotalUniqueInstructions)),
		renderLabelValue("max path len", fmt.Sprintf("%d", corpus.MaxPathlenBlocks)),
		renderLabelValue("max call depth", fmt.Sprintf("%d", corpus.MaxCalldepth)),
	}
	return PanelStyle.Width(d.width/3).Render(strings.Join(lines, "\n"))
}

func crashText(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n > 0 {
		return CrashStyle.Render(s)
	}
	return s
}

func (d *Dashboard) renderLogPanel() string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("activity"))
	b.WriteString("\n\n")

	start := 0
	if len(d.logs) > 10 {
		start = len(d.logs) - 10
	}
	for i := start; i < len(d.logs); i++ {
		l := d.logs[i]
		b.WriteString(fmt.Sprintf("%s %-5s %s\n", HelpStyle.Render(l.Time.Format("15:04:05")), l.Level, l.Message))
	}
	return PanelStyle.Width(2 * d.width / 3).Render(b.String())
}

func (d *Dashboard) renderFooter() string {
	return FooterStyle.Render(renderHelp("q", "quit"))
}

// Run starts the TUI program in the foreground, blocking until quit.
func Run(d *Dashboard) error {
	p := tea.NewProgram(d, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
