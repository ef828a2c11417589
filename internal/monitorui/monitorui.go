// Package monitorui is the bubbletea model cmd/snic-monitor renders: a
// single-screen dashboard of one snic-device's TX/RX counters, MSI-X IRQ
// counts, and host CPU/memory, refreshed on a tick. Model/Init/Update/View
// shape, styles, and the resource-line gopsutil poll are adapted from
// internal/cli/ui/ui.go's Model and updateResourceData, trimmed from a
// multi-view menu app down to one status view.
package monitorui

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	psutilcpu "github.com/shirou/gopsutil/v3/cpu"
	psutilmem "github.com/shirou/gopsutil/v3/mem"

	"snic/internal/mgmtclient"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Padding(0, 2).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4B5563")).
			Padding(0, 2)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#34D399")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Italic(true)
	noticeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#10B981")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 2).
			Bold(true)
)

// pollInterval is how often Model re-fetches device info/metrics and host
// resource usage.
const pollInterval = time.Second

type deviceMsg struct {
	info    mgmtclient.DeviceInfo
	metrics mgmtclient.Metrics
	healthy bool
	err     error
}

type resourceMsg struct {
	text string
}

type hideNoticeMsg struct{}

// Model is the monitor's bubbletea model: it owns a connected client and the
// last-polled snapshot.
type Model struct {
	client *mgmtclient.Client
	addr   string

	info    mgmtclient.DeviceInfo
	metrics mgmtclient.Metrics
	healthy bool
	lastErr error

	resourceLine string
	width        int
	height       int

	showCopyNotice bool

	// errView scrolls long poll-failure messages, word-wrapped to the
	// terminal width, the way InitView scrolls startup logs in
	// internal/cli/ui/ui.go.
	errView viewport.Model
}

// New builds a monitor model against an already-connected client.
func New(client *mgmtclient.Client, addr string) Model {
	return Model{client: client, addr: addr, width: 80, height: 24, errView: viewport.New(76, 3)}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.pollResources())
}

func (m Model) poll() tea.Cmd {
	client := m.client
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		info, err := client.DeviceInfo(ctx)
		if err != nil {
			return deviceMsg{err: err}
		}
		metrics, err := client.Metrics(ctx)
		if err != nil {
			return deviceMsg{err: err}
		}
		return deviceMsg{info: info, metrics: metrics, healthy: client.Healthy(ctx)}
	})
}

func (m Model) pollResources() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		cpuPercent, _ := psutilcpu.Percent(0, false)
		memInfo, _ := psutilmem.VirtualMemory()
		cpu := 0.0
		if len(cpuPercent) > 0 {
			cpu = cpuPercent[0]
		}
		mem := 0.0
		if memInfo != nil {
			mem = memInfo.UsedPercent
		}
		return resourceMsg{text: fmt.Sprintf("host CPU: %.1f%% | host RAM: %.1f%% | %s", cpu, mem, runtime.Version())}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.errView.Width = m.width - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			snapshot := m.snapshotText()
			if err := clipboard.WriteAll(snapshot); err == nil {
				m.showCopyNotice = true
				return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg { return hideNoticeMsg{} })
			}
		}
		return m, nil

	case deviceMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			width := m.errView.Width
			if width <= 0 {
				width = 76
			}
			m.errView.SetContent(ansi.Wordwrap(msg.err.Error(), width, " \t"))
		} else {
			m.lastErr = nil
			m.info = msg.info
			m.metrics = msg.metrics
			m.healthy = msg.healthy
		}
		return m, m.poll()

	case resourceMsg:
		m.resourceLine = msg.text
		return m, m.pollResources()

	case hideNoticeMsg:
		m.showCopyNotice = false
		return m, nil
	}
	return m, nil
}

func (m Model) snapshotText() string {
	return fmt.Sprintf(
		"bar4_base=%#x device_id=%d tap=%s bound=%v uptime=%s bar0_magic=%s total_tx=%d total_rx=%d tx_errors=%d rx_drops=%d irqs_tx=%d irqs_rx=%d",
		m.info.BAR4Base, m.info.DeviceID, m.info.TapName, m.info.Bound, m.info.Uptime, m.info.BAR0.Magic,
		m.metrics.TotalTX, m.metrics.TotalRX, m.metrics.TXErrors, m.metrics.RXDrops, m.metrics.IRQsTX, m.metrics.IRQsRX,
	)
}

func (m Model) View() string {
	status := okStyle.Render("healthy")
	if !m.healthy {
		status = errStyle.Render("unreachable")
	}

	header := headerStyle.Width(m.width).Render(fmt.Sprintf(" snic-monitor | %s | %s", m.addr, status))

	var body strings.Builder
	if m.lastErr != nil {
		body.WriteString(errStyle.Render("poll failed:"))
		body.WriteString("\n")
		body.WriteString(m.errView.View())
	} else {
		fmt.Fprintf(&body, "BAR4 base:  %#x\n", m.info.BAR4Base)
		fmt.Fprintf(&body, "Device ID:  %d\n", m.info.DeviceID)
		fmt.Fprintf(&body, "Tap:        %s\n", m.info.TapName)
		fmt.Fprintf(&body, "Bound:      %v\n", m.info.Bound)
		fmt.Fprintf(&body, "Uptime:     %s\n", m.info.Uptime)
		fmt.Fprintf(&body, "BAR0:       magic=%s src=%s dst=%s\n", m.info.BAR0.Magic, m.info.BAR0.SrcIP, m.info.BAR0.DstIP)
		body.WriteString("\n")
		fmt.Fprintf(&body, "TX total:   %d    TX errors:  %d    TX IRQs:  %d\n", m.metrics.TotalTX, m.metrics.TXErrors, m.metrics.IRQsTX)
		fmt.Fprintf(&body, "RX total:   %d    RX drops:   %d    RX IRQs:  %d\n", m.metrics.TotalRX, m.metrics.RXDrops, m.metrics.IRQsRX)
	}

	box := boxStyle.Width(m.width - 4).Render(body.String())

	footerText := m.resourceLine
	if m.showCopyNotice {
		footerText += " " + noticeStyle.Render("copied snapshot to clipboard")
	}
	footer := footerStyle.Width(m.width).Render(footerText)

	help := helpStyle.Render(" q: quit   c: copy snapshot to clipboard")

	return lipgloss.JoinVertical(lipgloss.Left, header, box, help, footer)
}
