package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// state represents the current phase of a command.
type state int

const (
	stateInit       state = iota
	stateLoggingIn        // exchanging credentials
	stateRequesting       // API call in flight
	stateRefreshing       // refreshing after a 401
	stateUploading        // multipart upload in flight
	stateSuccess          // all done
	stateError            // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// maxStatusLines bounds the status log; older lines scroll off.
const maxStatusLines = 12

const progressWidth = 30

// Model is the BubbleTea model for fleetctl progress output.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	env      string
	baseURL  string
	activity string
	percent  int

	summary string
	errMsg  string
	expired bool

	statusLines []statusLine
}

var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleBar  = lipgloss.NewStyle().Foreground(lipgloss.Color("228"))
	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case MsgBanner:
		m.env = msg.Env
		m.baseURL = msg.BaseURL

	case MsgLoggingIn:
		m.state = stateLoggingIn
		m.activity = "Logging in as " + msg.Email

	case MsgLoggedIn:
		text := "Logged in as " + msg.User
		if !msg.ExpiresAt.IsZero() {
			text += fmt.Sprintf(" (expires in %s)", formatDuration(time.Until(msg.ExpiresAt)))
		}
		m.addStatus(statusOK, text)

	case MsgLoginFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Login failed: %v", msg.Err))

	case MsgLoggedOut:
		m.addStatus(statusOK, "Logged out, local tokens cleared")

	case MsgRequesting:
		m.state = stateRequesting
		m.activity = msg.What

	case MsgRetrying:
		m.addStatus(statusWarn,
			fmt.Sprintf("Attempt %d failed, retrying in %s", msg.Attempt+1, msg.Delay))

	case MsgRefreshing:
		m.state = stateRefreshing
		m.addStatus(statusInfo, "Access token rejected (401), refreshing...")

	case MsgRefreshOK:
		m.state = stateRequesting
		m.addStatus(statusOK, "Token refreshed, replaying request")

	case MsgRefreshFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Refresh failed: %v", msg.Err))

	case MsgSessionExpired:
		m.expired = true
		m.addStatus(statusWarn, "Session expired ("+msg.Reason+"), run 'fleetctl login'")

	case MsgUploadProgress:
		m.state = stateUploading
		m.percent = min(max(msg.Percent, 0), 100)

	case MsgTokenSaved:
		m.addStatus(statusOK, "Tokens saved to "+msg.Path)

	case MsgTokenSaveFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Warning: failed to save tokens: %v", msg.Err))

	case MsgDone:
		m.summary = msg.Summary
		m.state = stateSuccess
		return m, tea.Quit

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  fleetctl  "))
	if m.baseURL != "" {
		b.WriteString(" ")
		b.WriteString(styleDim.Render(m.env + " · " + m.baseURL))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateUploading:
		b.WriteString(m.spinner.View())
		b.WriteString(" Uploading ")
		b.WriteString(renderBar(m.percent, progressWidth))
		b.WriteString(fmt.Sprintf(" %3d%%\n", m.percent))

	case stateRefreshing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Refreshing access token...\n")

	case stateLoggingIn, stateRequesting:
		b.WriteString(m.spinner.View())
		b.WriteString(" " + m.activity + "...\n")

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Initializing...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

func (m Model) viewSuccess() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleOK.Render("  ✓ Done"))
	b.WriteString("\n")
	if m.summary != "" {
		b.WriteString("\n")
		b.WriteString(styleBold.Render("  " + m.summary))
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	if m.expired {
		b.WriteString(styleErr.Render("  ✗ Session expired, please log in again"))
	} else {
		b.WriteString(styleErr.Render("  ✗ Command failed"))
	}
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log, dropping the oldest past maxStatusLines.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
	if over := len(m.statusLines) - maxStatusLines; over > 0 {
		m.statusLines = m.statusLines[over:]
	}
}

// renderBar draws a fixed-width bar for percent.
func renderBar(percent, width int) string {
	filled := percent * width / 100
	return styleBar.Render(strings.Repeat("█", filled)) +
		styleDim.Render(strings.Repeat("░", width-filled))
}

// formatDuration formats a duration as "Xh Ym", "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
