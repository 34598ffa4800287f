// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/feeflash/pkg/bootloader"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type flashModel struct {
	connInfo     string
	firmwarePath string
	imageSize    int
	recovery     bool

	phase      bootloader.Phase
	deviceID   int // -1 until known
	scanned    int
	scanTotal  int
	found      int
	attempts   int
	waiting    time.Duration
	stats      *transferStats
	eventLog   []logEntry
	maxEntries int

	progress progress.Model
	spinner  spinner.Model

	width    int
	height   int
	done     bool
	err      error
	quitting bool
	cancel   context.CancelFunc
}

// Messages
type tickMsg time.Time
type progressMsg bootloader.Progress
type flashDoneMsg struct {
	err error
}

func initialFlashModel(connInfo, firmwarePath string, imageSize int, recovery bool, cancel context.CancelFunc) flashModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return flashModel{
		connInfo:     connInfo,
		firmwarePath: firmwarePath,
		imageSize:    imageSize,
		recovery:     recovery,
		deviceID:     -1,
		stats:        newTransferStats(),
		eventLog:     make([]logEntry, 0),
		maxEntries:   100,
		progress:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		spinner:      sp,
		width:        80,
		height:       24,
		cancel:       cancel,
	}
}

func (m flashModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m flashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			// abort the session; flashDoneMsg follows
			m.quitting = true
			m.cancel()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(max(msg.Width-20, 10), 80)

	case tickMsg:
		m.stats.CalculateRates()
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.apply(bootloader.Progress(msg))

	case flashDoneMsg:
		m.done = true
		m.err = msg.err
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("FAILED: %v", msg.err), true)
		} else {
			m.phase = bootloader.PhaseComplete
			m.addLogEntry("Firmware flashed: "+m.stats.Summary(), false)
		}
		return m, tea.Quit
	}

	return m, nil
}

// apply folds a session progress event into the model
func (m *flashModel) apply(p bootloader.Progress) {
	if p.Phase != m.phase {
		m.addLogEntry(phaseMessage(p), false)
	}
	m.phase = p.Phase
	m.stats.Update(p)

	switch p.Phase {
	case bootloader.PhaseDiscover:
		m.scanned = p.Scanned
		m.scanTotal = p.ScanTotal
		m.found = p.Found
	case bootloader.PhaseReboot:
		m.deviceID = int(p.DeviceID)
	case bootloader.PhaseHandshake:
		m.attempts = p.Attempt
		m.waiting = p.Elapsed
	}
}

func phaseMessage(p bootloader.Progress) string {
	switch p.Phase {
	case bootloader.PhaseDiscover:
		if p.ScanTotal == 0 {
			return fmt.Sprintf("Pinging device id %d", p.DeviceID)
		}
		return "Scanning ids 0..253"
	case bootloader.PhaseReboot:
		return fmt.Sprintf("Rebooting device id %d into bootloader", p.DeviceID)
	case bootloader.PhaseHandshake:
		return "Sending magic sequence"
	case bootloader.PhaseInit:
		return "Bootloader acknowledged magic, sending init"
	case bootloader.PhaseTransfer:
		return fmt.Sprintf("Sending %d frames", p.Chunks)
	default:
		return string(p.Phase)
	}
}

func (m *flashModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxEntries:]
	}
}

func (m flashModel) View() string {
	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	mode := "Normal"
	if m.recovery {
		mode = "Recovery"
	}

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("FEEFLASH - FIRMWARE FLASH"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s (%d bytes) | Mode: %s | Press 'q' to abort",
		m.connInfo, m.firmwarePath, m.imageSize, mode)))
	s.WriteString("\n\n")

	// Status line
	status := strings.Builder{}
	switch {
	case m.done && m.err != nil:
		status.WriteString(errorStyle.Render("✗ Flash failed"))
	case m.done:
		status.WriteString(valueStyle.Render("✓ Flash complete"))
	case m.quitting:
		status.WriteString(warningStyle.Render("Aborting..."))
	case m.phase == "":
		status.WriteString(m.spinner.View() + " " + labelStyle.Render("STARTING"))
	default:
		status.WriteString(m.spinner.View() + " " + labelStyle.Render(strings.ToUpper(string(m.phase))))
	}
	status.WriteString("\n")

	if m.scanTotal > 0 {
		status.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("Scanned:"), valueStyle.Render(fmt.Sprintf("%d/%d", m.scanned, m.scanTotal)),
			labelStyle.Render("Found:"), valueStyle.Render(fmt.Sprintf("%d", m.found)),
		))
	}
	if m.deviceID >= 0 {
		status.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Device:"), valueStyle.Render(fmt.Sprintf("id %d", m.deviceID))))
	}
	if m.phase == bootloader.PhaseHandshake && m.recovery {
		status.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render("Waiting:"),
			warningStyle.Render(fmt.Sprintf("%d magic sequences, %s (power cycle the servo)", m.attempts, m.waiting.Round(time.Second))),
		))
	}

	// Transfer
	if m.stats.TotalBytes > 0 {
		status.WriteString("\n")
		status.WriteString(m.progress.ViewAs(m.stats.Percent()))
		status.WriteString("\n")
		naks := valueStyle.Render("0")
		if m.stats.Naks > 0 {
			naks = errorStyle.Render(fmt.Sprintf("%d", m.stats.Naks))
		}
		status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
			labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d/%d", m.stats.FramesSent, m.stats.TotalFrames)),
			labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f KiB/s", m.stats.ByteRate/1024)),
			labelStyle.Render("ETA:"), valueStyle.Render(m.stats.ETA().Round(time.Second).String()),
			labelStyle.Render("NAKs:"), naks,
		))
	}

	s.WriteString(boxStyle.Render(status.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Events:"))
	s.WriteString("\n")

	logHeight := max(m.height-16, 5)
	startIdx := max(len(m.eventLog)-logHeight, 0)

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
			}
		}
	}

	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(logContent.String()))
	s.WriteString("\n")

	return s.String()
}

// runFlashTUI runs the session in the background while the TUI shows progress
func runFlashTUI(ctx context.Context, conn Connection, connInfo, firmwarePath string, image []byte, target bootloader.Target) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialFlashModel(connInfo, firmwarePath, len(image), target.Recovery, cancel)
	p := tea.NewProgram(m)

	opts := append(flashOptions(), bootloader.WithProgress(func(pr bootloader.Progress) {
		p.Send(progressMsg(pr))
	}))

	result := make(chan error, 1)
	go func() {
		err := bootloader.NewFlasher(conn, opts...).Run(ctx, image, target)
		result <- err
		p.Send(flashDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		<-result
		return fmt.Errorf("TUI error: %w", err)
	}

	if fm, ok := final.(flashModel); ok && fm.done {
		return fm.err
	}

	// the UI exited before the session finished
	cancel()
	return <-result
}
