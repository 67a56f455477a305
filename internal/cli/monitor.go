package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"waysock.dev/go/waysock/internal/client"
	"waysock.dev/go/waysock/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "View daemon logs and live events",
	Long: `View the daemon's buffered logs and follow events live.

In interactive mode, use arrow keys to navigate, / to search,
1-5 to filter by level, and q to quit.

Examples:
  waysock monitor
  waysock monitor --level error
  waysock monitor --since 1h
  waysock monitor --follow
  waysock monitor --format json`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().String("level", "", "filter by level (debug, info, warn, error)")
	monitorCmd.Flags().String("since", "", "show logs since (e.g., 5m, 1h, 2025-01-15)")
	monitorCmd.Flags().Int("limit", 1000, "maximum entries to show")
	monitorCmd.Flags().String("format", "", "output format (tui, table, json; default tui on a terminal)")
	monitorCmd.Flags().Bool("follow", false, "follow new logs (like tail -f)")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	follow, _ := cmd.Flags().GetBool("follow")

	if format == "" {
		if tui.IsStdoutTerminal() {
			format = "tui"
		} else {
			format = "table"
		}
	}

	query := buildLogsQuery(cmd)

	switch format {
	case "json":
		return outputLogsJSON(query)
	case "table":
		if follow {
			return runMonitorFollow(query)
		}
		return outputLogsTable(query)
	case "tui":
		return runMonitorTUI(query)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func buildLogsQuery(cmd *cobra.Command) client.LogsQuery {
	q := client.LogsQuery{}

	q.Level, _ = cmd.Flags().GetString("level")
	q.Limit, _ = cmd.Flags().GetInt("limit")

	if since, _ := cmd.Flags().GetString("since"); since != "" {
		if t, err := parseTimeArg(since); err == nil {
			q.Since = t.Format(time.RFC3339)
		}
	}

	return q
}

func parseTimeArg(s string) (time.Time, error) {
	// Duration format first (e.g., "1h", "5m")
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}

	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid time format: %s", s)
}

// --- TUI Model ---

type monitorModel struct {
	client      *client.Client
	events      <-chan *client.Event
	entries     []client.LogEntry
	viewport    viewport.Model
	searchInput textinput.Model
	query       client.LogsQuery
	search      string
	width       int
	height      int
	searching   bool
	selected    int
	ready       bool
	err         error
}

func newMonitorModel(c *client.Client, events <-chan *client.Event, query client.LogsQuery) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.Width = 30

	return monitorModel{
		client:      c,
		events:      events,
		query:       query,
		searchInput: ti,
	}
}

type logsLoadedMsg struct {
	entries []client.LogEntry
	err     error
}

type liveEventMsg struct {
	event *client.Event
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.loadLogs, m.nextEvent)
}

func (m monitorModel) loadLogs() tea.Msg {
	result, err := m.client.Logs(m.query)
	if err != nil {
		return logsLoadedMsg{err: err}
	}
	return logsLoadedMsg{entries: result.Entries}
}

func (m monitorModel) nextEvent() tea.Msg {
	event, ok := <-m.events
	if !ok {
		return nil
	}
	return liveEventMsg{event: event}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
		m.viewport.SetContent(m.renderEntries())
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			switch msg.String() {
			case "enter":
				m.search = m.searchInput.Value()
				m.searching = false
				m.refresh()
				return m, nil
			case "esc":
				m.searching = false
				m.searchInput.SetValue("")
				return m, nil
			}
			var cmd tea.Cmd
			m.searchInput, cmd = m.searchInput.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "/":
			m.searching = true
			m.searchInput.Focus()
			return m, nil
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.refresh()
			}
		case "down", "j":
			if m.selected < len(m.visible())-1 {
				m.selected++
				m.refresh()
			}
		case "r":
			return m, m.loadLogs
		case "1":
			m.query.Level = ""
			return m, m.loadLogs
		case "2":
			m.query.Level = "debug"
			return m, m.loadLogs
		case "3":
			m.query.Level = "info"
			return m, m.loadLogs
		case "4":
			m.query.Level = "warn"
			return m, m.loadLogs
		case "5":
			m.query.Level = "error"
			return m, m.loadLogs
		case "esc":
			m.query.Level = ""
			m.search = ""
			return m, m.loadLogs
		case "pgup":
			m.viewport.ViewUp()
		case "pgdown":
			m.viewport.ViewDown()
		case "home":
			m.selected = 0
			m.refresh()
		case "end":
			if n := len(m.visible()); n > 0 {
				m.selected = n - 1
				m.refresh()
			}
		}

	case logsLoadedMsg:
		m.err = msg.err
		m.entries = msg.entries
		m.selected = 0
		m.refresh()
		return m, nil

	case liveEventMsg:
		if msg.event == nil {
			return m, nil
		}
		m.appendEvent(msg.event)
		m.refresh()
		m.viewport.GotoBottom()
		return m, m.nextEvent
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// appendEvent folds a live event into the entry list. Log events carry
// a LogEntry payload; connection events are rendered as synthetic
// entries so the stream reads as one timeline.
func (m *monitorModel) appendEvent(e *client.Event) {
	switch e.Event {
	case "log":
		var entry client.LogEntry
		if err := json.Unmarshal(e.Payload, &entry); err == nil {
			m.entries = append(m.entries, entry)
		}
	case "client-connected", "client-disconnected":
		var info client.ClientInfo
		msg := e.Event
		if err := json.Unmarshal(e.Payload, &info); err == nil {
			msg = fmt.Sprintf("%s %s", e.Event, shortID(info.ID))
		}
		m.entries = append(m.entries, client.LogEntry{
			Time:    time.Now(),
			Level:   "INFO",
			Message: msg,
		})
	case "shutdown":
		m.entries = append(m.entries, client.LogEntry{
			Time:    time.Now(),
			Level:   "WARN",
			Message: "daemon shutting down",
		})
	}
}

func (m *monitorModel) refresh() {
	if m.ready {
		m.viewport.SetContent(m.renderEntries())
	}
}

// visible applies the client-side search filter
func (m monitorModel) visible() []client.LogEntry {
	if m.search == "" {
		return m.entries
	}
	out := make([]client.LogEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if strings.Contains(strings.ToLower(e.Message), strings.ToLower(m.search)) {
			out = append(out, e)
		}
	}
	return out
}

func (m monitorModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	b.WriteString(sepStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(sepStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	if m.searching {
		b.WriteString("Search: ")
		b.WriteString(m.searchInput.View())
	} else {
		helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		b.WriteString(helpStyle.Render("[↑↓] Navigate  [/] Search  [1-5] Level  [r] Refresh  [q] Quit"))
	}

	return b.String()
}

func (m monitorModel) renderHeader() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	filterStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	levelStr := "ALL"
	if m.query.Level != "" {
		levelStr = strings.ToUpper(m.query.Level)
	}

	header := titleStyle.Render("waysock monitor") + "  "
	header += filterStyle.Render(fmt.Sprintf("Level: [%s]", levelStr))

	if m.search != "" {
		header += filterStyle.Render(fmt.Sprintf("  Search: [%s]", m.search))
	}
	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
		header += "  " + errStyle.Render(m.err.Error())
	}

	header += "  " + countStyle.Render(fmt.Sprintf("(%d entries)", len(m.visible())))

	return header
}

func (m monitorModel) renderEntries() string {
	entries := m.visible()
	if len(entries) == 0 {
		emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
		return emptyStyle.Render("No log entries match the current filters.")
	}

	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle := lipgloss.NewStyle().Background(lipgloss.Color("237"))

	var b strings.Builder
	for i, entry := range entries {
		line := timeStyle.Render(entry.Time.Format("15:04:05")) + "  "
		line += levelStyle(entry.Level).Render(fmt.Sprintf("%-5s", entry.Level)) + "  "
		line += entry.Message

		if attrs := formatAttrs(entry.Attrs); attrs != "" {
			line += "  " + timeStyle.Render(attrs)
		}

		if len(line) > m.width-2 && m.width > 5 {
			line = line[:m.width-5] + "..."
		}

		if i == m.selected {
			line = selectedStyle.Render(line)
		}

		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	case "WARN":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	case "ERROR":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	}
}

func formatAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attrs))
	for k, v := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

func runMonitorTUI(query client.LogsQuery) error {
	c, err := client.Connect()
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	defer c.Close()

	// Second connection for the live event stream, so calls and events
	// never interleave on one socket
	sub, err := client.Connect()
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	defer sub.Close()
	if err := sub.Subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	events := make(chan *client.Event, 64)
	go func() {
		defer close(events)
		for {
			event, err := sub.ReadEvent()
			if err != nil {
				return
			}
			events <- event
		}
	}()

	p := tea.NewProgram(newMonitorModel(c, events, query), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// --- JSON Output ---

func outputLogsJSON(query client.LogsQuery) error {
	c, err := client.Connect()
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	defer c.Close()

	result, err := c.Logs(query)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.Entries)
}

// --- Table Output ---

func outputLogsTable(query client.LogsQuery) error {
	c, err := client.Connect()
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	defer c.Close()

	result, err := c.Logs(query)
	if err != nil {
		return err
	}

	fmt.Printf("%-10s %-5s %s\n", "TIME", "LEVEL", "MESSAGE")
	fmt.Println(strings.Repeat("-", tui.Width(80)))

	for _, e := range result.Entries {
		msg := e.Message
		if attrs := formatAttrs(e.Attrs); attrs != "" {
			msg += "  " + attrs
		}
		fmt.Printf("%-10s %-5s %s\n", e.Time.Format("15:04:05"), e.Level, msg)
	}

	return nil
}

// --- Follow Mode ---

func runMonitorFollow(query client.LogsQuery) error {
	c, err := client.Connect()
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	defer c.Close()

	// Backfill from the buffer first
	result, err := c.Logs(query)
	if err != nil {
		return err
	}
	for _, e := range result.Entries {
		printFollowEntry(e)
	}

	fmt.Println("--- Following events (Ctrl+C to stop) ---")

	if err := c.Subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		event, err := c.ReadEvent()
		if err != nil {
			return nil
		}

		switch event.Event {
		case "log":
			var entry client.LogEntry
			if err := json.Unmarshal(event.Payload, &entry); err == nil {
				printFollowEntry(entry)
			}
		case "shutdown":
			fmt.Println("--- Daemon shut down ---")
			return nil
		default:
			fmt.Printf("%s  %-5s  %s\n", time.Now().Format("15:04:05"), "EVENT", event.Event)
		}
	}
}

func printFollowEntry(e client.LogEntry) {
	levelColor := ""
	switch strings.ToUpper(e.Level) {
	case "DEBUG":
		levelColor = "\033[90m" // gray
	case "INFO":
		levelColor = "\033[34m" // blue
	case "WARN":
		levelColor = "\033[33m" // yellow
	case "ERROR":
		levelColor = "\033[31m" // red
	}
	resetColor := "\033[0m"

	msg := e.Message
	if attrs := formatAttrs(e.Attrs); attrs != "" {
		msg += "  " + attrs
	}

	fmt.Printf("%s  %s%-5s%s  %s\n",
		e.Time.Format("15:04:05"), levelColor, e.Level, resetColor, msg)
}
