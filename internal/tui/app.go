// Package tui provides the interactive request queue for TaskDesk.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	queueItemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	slaNeutralStyle = lipgloss.NewStyle().Foreground(successColor)
	slaWarningStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	slaDangerStyle  = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// App is the main TUI application model.
type App struct {
	client       *Client
	role         string
	requests     []RequestItem
	selectedIdx  int
	input        textinput.Model
	width        int
	height       int
	mode         string // "queue", "detail"
	current      *RequestDetail
	message      string
	filterIdx    int
	loading      bool
	daemonOnline bool
}

var statusFilters = []string{"", "pending", "approved", "rejected", "executed", "expired"}
var filterNames = []string{"ALL", "PENDING", "APPROVED", "REJECTED", "EXECUTED", "EXPIRED"}

// New creates a new TUI application acting under the given role.
func New(apiAddr, actorID, role string) *App {
	ti := textinput.New()
	ti.Placeholder = "Type: approve <note> | reject <reason> | execute <note> | msg <text>"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	return &App{
		client: NewClient(apiAddr, actorID, role),
		role:   role,
		input:  ti,
		mode:   "queue",
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchRequests(),
		a.checkDaemon(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.mode == "detail" {
				a.mode = "queue"
				a.current = nil
				return a, a.fetchRequests()
			}

		case "up", "k":
			if a.mode == "queue" && a.selectedIdx > 0 {
				a.selectedIdx--
			}

		case "down", "j":
			if a.mode == "queue" && a.selectedIdx < len(a.requests)-1 {
				a.selectedIdx++
			}

		case "tab":
			a.filterIdx = (a.filterIdx + 1) % len(statusFilters)
			return a, a.fetchRequests()

		case "enter":
			cmd := strings.TrimSpace(a.input.Value())
			if cmd != "" {
				a.input.SetValue("")
				return a, a.executeCommand(cmd)
			} else if a.mode == "queue" && len(a.requests) > 0 {
				req := a.requests[a.selectedIdx]
				a.mode = "detail"
				return a, a.fetchDetail(req.ID)
			}

		case "r":
			if a.mode == "queue" {
				return a, a.fetchRequests()
			}
			if a.mode == "detail" && a.current != nil {
				return a, a.fetchDetail(a.current.ID)
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 4

	case requestsLoadedMsg:
		a.loading = false
		a.requests = msg.requests
		if a.selectedIdx >= len(a.requests) {
			a.selectedIdx = max(0, len(a.requests)-1)
		}

	case detailLoadedMsg:
		a.current = msg.detail

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case commandResultMsg:
		a.message = msg.message
		if a.mode == "detail" && a.current != nil {
			return a, a.fetchDetail(a.current.ID)
		}
		return a, a.fetchRequests()

	case errMsg:
		a.message = "Error: " + msg.err.Error()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}

	header := titleStyle.Render("TASKDESK Request Queue")
	header += "  " + daemonStatus
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("[%s]", a.role))

	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	contentHeight := a.height - 8
	if contentHeight < 5 {
		contentHeight = 5
	}

	switch a.mode {
	case "queue":
		filterLabel := fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx])
		b.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render(filterLabel) + "\n")
		b.WriteString(a.renderQueue(contentHeight - 1))
	case "detail":
		b.WriteString(a.renderDetail())
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))
	b.WriteString("\n")

	var status string
	switch a.mode {
	case "queue":
		status = fmt.Sprintf(" Requests: %d | ↑↓:nav | Tab:filter | Enter:open | r:refresh | Ctrl+C:quit", len(a.requests))
	default:
		status = " Esc:back | r:refresh | Enter:command | Ctrl+C:quit"
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func (a *App) renderQueue(height int) string {
	if a.loading {
		return "\n  Loading requests...\n"
	}
	if len(a.requests) == 0 {
		return "\n  No modification requests in this view.\n"
	}

	var lines []string
	for i, req := range a.requests {
		badge := a.slaBadge(req)
		label := fmt.Sprintf("%-9s %-19s %s", req.RequestType, req.Origin, truncate(req.Reason, 40))

		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("▶ %s  %s", badge, label)))
		} else {
			lines = append(lines, queueItemStyle.Render(fmt.Sprintf("  %s  %s", badge, label)))
		}
	}

	if len(lines) > height {
		start := a.selectedIdx - height/2
		if start < 0 {
			start = 0
		}
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}

	return strings.Join(lines, "\n")
}

func (a *App) renderDetail() string {
	if a.current == nil {
		return "\n  Loading...\n"
	}

	var b strings.Builder
	d := a.current

	b.WriteString(fmt.Sprintf("\n  %s\n", lipgloss.NewStyle().Bold(true).Render(d.TaskTitle)))
	b.WriteString(fmt.Sprintf("  Request: %s (%s, %s)\n", short(d.ID), d.RequestType, d.Origin))
	b.WriteString(fmt.Sprintf("  Status: %s\n", a.slaBadge(d.RequestItem)))
	b.WriteString(fmt.Sprintf("  Reason: %s\n", d.Reason))
	if d.AssignedTo != "" {
		b.WriteString(fmt.Sprintf("  Assigned to: %s\n", d.AssignedTo))
	}
	if d.ExpiresAt != "" {
		b.WriteString(fmt.Sprintf("  Respond by: %s\n", d.ExpiresAt))
	}

	if len(d.Messages) > 0 {
		b.WriteString("\n  Discussion:\n")
		for _, m := range d.Messages {
			roleStyle := lipgloss.NewStyle().Foreground(cyanColor)
			if m.Role == "employee" {
				roleStyle = lipgloss.NewStyle().Foreground(warningColor)
			}
			b.WriteString(fmt.Sprintf("    %s %s\n", roleStyle.Render(m.Role+":"), truncate(m.Text, 70)))
		}
	}

	b.WriteString("\n  " + helpStyle.Render(a.commandHint()) + "\n")
	return b.String()
}

func (a *App) commandHint() string {
	if a.role == "admin" {
		return "Commands: approve <note> | reject <reason> | execute <note> | msg <text>"
	}
	return "Commands: accept <note> | decline <note> | msg <text>"
}

// slaBadge renders effective status with the SLA urgency color. Danger
// and expired read red, warning amber, everything else by status.
func (a *App) slaBadge(req RequestItem) string {
	status := strings.ToUpper(req.EffectiveStatus)
	switch req.EffectiveStatus {
	case "pending", "approved":
		remaining := formatRemaining(req.SLARemaining)
		switch req.SLALevel {
		case "danger":
			return slaDangerStyle.Render(fmt.Sprintf("● %s %s", status, remaining))
		case "warning":
			return slaWarningStyle.Render(fmt.Sprintf("● %s %s", status, remaining))
		default:
			return slaNeutralStyle.Render(fmt.Sprintf("● %s %s", status, remaining))
		}
	case "expired":
		return slaDangerStyle.Render("✗ EXPIRED")
	case "rejected":
		return offlineStyle.Render("✗ REJECTED")
	case "executed":
		return onlineStyle.Render("● EXECUTED")
	default:
		return status
	}
}

func (a *App) selectedRequestID() string {
	if a.mode == "detail" && a.current != nil {
		return a.current.ID
	}
	if len(a.requests) > 0 {
		return a.requests[a.selectedIdx].ID
	}
	return ""
}

func (a *App) fetchRequests() tea.Cmd {
	a.loading = true
	status := statusFilters[a.filterIdx]
	return func() tea.Msg {
		requests, err := a.client.ListRequests(status, "")
		if err != nil {
			return errMsg{err}
		}
		return requestsLoadedMsg{requests}
	}
}

func (a *App) fetchDetail(requestID string) tea.Cmd {
	markViewed := a.role == "employee"
	return func() tea.Msg {
		if markViewed {
			// Opening an admin-initiated request counts as seeing it.
			a.client.MarkViewed(requestID)
		}
		detail, err := a.client.GetRequest(requestID)
		if err != nil {
			return errMsg{err}
		}
		return detailLoadedMsg{detail}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ok, err := a.client.CheckHealth()
		return daemonStatusMsg{online: err == nil && ok}
	}
}

func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := parts[0]
	rest := strings.TrimSpace(strings.TrimPrefix(input, cmd))
	requestID := a.selectedRequestID()

	return func() tea.Msg {
		if requestID == "" && cmd != "q" && cmd != "quit" && cmd != "exit" {
			return commandResultMsg{"No request selected"}
		}

		switch cmd {
		case "approve":
			if rest == "" {
				return commandResultMsg{"Usage: approve <note>"}
			}
			if err := a.client.Approve(requestID, rest); err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{"✓ Request approved"}

		case "reject":
			if rest == "" {
				return commandResultMsg{"Usage: reject <reason>"}
			}
			if err := a.client.Reject(requestID, rest); err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{"✓ Request rejected"}

		case "accept":
			if rest == "" {
				return commandResultMsg{"Usage: accept <note>"}
			}
			if err := a.client.Respond(requestID, "approved", rest); err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{"✓ Response recorded"}

		case "decline":
			if rest == "" {
				return commandResultMsg{"Usage: decline <note>"}
			}
			if err := a.client.Respond(requestID, "rejected", rest); err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{"✓ Response recorded"}

		case "execute":
			if rest == "" {
				return commandResultMsg{"Usage: execute <note>"}
			}
			if err := a.client.Execute(requestID, rest); err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{"✓ Request executed"}

		case "msg":
			if rest == "" {
				return commandResultMsg{"Usage: msg <text>"}
			}
			if err := a.client.PostMessage(requestID, rest); err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{"✓ Message posted"}

		case "q", "quit", "exit":
			return tea.Quit()

		default:
			return commandResultMsg{fmt.Sprintf("Unknown: %s (try: approve, reject, execute, msg)", cmd)}
		}
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatRemaining(d time.Duration) string {
	if d < 0 {
		return "overdue"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type commandResultMsg struct {
	message string
}

type errMsg struct {
	err error
}

type requestsLoadedMsg struct {
	requests []RequestItem
}

type detailLoadedMsg struct {
	detail *RequestDetail
}

type daemonStatusMsg struct {
	online bool
}
