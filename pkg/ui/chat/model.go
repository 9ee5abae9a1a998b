package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bugtriage/pkg/conversation"
	"bugtriage/pkg/report"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type chatMessage struct {
	role    string
	content string
}

type savedMsg struct {
	note string
	err  error
}

type bootTickMsg struct{}

type model struct {
	ctx  context.Context
	conv Conversation
	save SaveFunc
	info Info

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []chatMessage
	width     int
	height    int
	isReady   bool
	isSaving  bool
	finished  bool
	cancelled bool
	lastErr   string
	booting   bool
	bootStep  int
	followLog bool
	state     conversation.State
	result    *report.BugReport
}

func newModel(ctx context.Context, conv Conversation, save SaveFunc, info Info) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Type your answer..."
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		ctx:       ctx,
		conv:      conv,
		save:      save,
		info:      info.withDefaults(),
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  vp,
		width:     100,
		height:    28,
		booting:   true,
		followLog: true,
		state:     conversation.InitialState,
	}
}

func (m *model) Init() tea.Cmd {
	return bootTickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}

		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}

		m.booting = false
		m.begin()
		return m, textinput.Blink
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			if !m.finished && !m.booting {
				m.conv.Cancel(m.info.UserID, m.info.ChannelID)
				m.cancelled = true
			}
			return m, tea.Quit
		}

		if m.booting {
			return m, nil
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			if m.isSaving {
				return m, nil
			}
			if m.finished {
				return m, tea.Quit
			}
			return m, m.submit(m.input.Value())
		}
	}

	m.input, cmd = m.input.Update(msg)

	switch typed := msg.(type) {
	case spinner.TickMsg:
		if !m.isSaving {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case savedMsg:
		m.isSaving = false
		m.finished = true
		if typed.err != nil {
			m.lastErr = typed.err.Error()
			m.messages = append(m.messages, chatMessage{role: "error", content: "Saving failed: " + typed.err.Error()})
		} else if typed.note != "" {
			m.messages = append(m.messages, chatMessage{role: "note", content: typed.note})
		}
		m.refreshViewport(true)
		return m, nil
	}

	return m, cmd
}

func (m *model) begin() {
	reply := m.conv.Start(m.info.UserID, m.info.ChannelID)
	m.state = reply.State
	m.messages = append(m.messages, chatMessage{role: "bot", content: reply.Text})
	m.refreshViewport(true)
}

// submit answers the current question. An empty line is a valid answer
// here, since the controller decides whether the field may be skipped.
func (m *model) submit(raw string) tea.Cmd {
	text := strings.TrimSpace(raw)
	if isExitCommand(text) {
		m.conv.Cancel(m.info.UserID, m.info.ChannelID)
		m.cancelled = true
		return tea.Quit
	}

	m.input.SetValue("")
	m.lastErr = ""
	m.followLog = true

	if isCancelCommand(text) {
		reply := m.conv.Cancel(m.info.UserID, m.info.ChannelID)
		m.messages = append(m.messages, chatMessage{role: "user", content: text}, chatMessage{role: "bot", content: reply.Text})
		m.cancelled = true
		m.finished = true
		m.refreshViewport(true)
		return nil
	}

	if text != "" {
		m.messages = append(m.messages, chatMessage{role: "user", content: text})
	} else {
		m.messages = append(m.messages, chatMessage{role: "user", content: "(skipped)"})
	}

	reply, err := m.conv.Submit(m.info.UserID, m.info.ChannelID, text)
	switch {
	case errors.Is(err, conversation.ErrEmptyRequiredAnswer):
		m.messages = append(m.messages, chatMessage{role: "reminder", content: reply.Text})
		m.refreshViewport(true)
		return nil
	case errors.Is(err, conversation.ErrNoActiveSession):
		m.begin()
		return nil
	case err != nil:
		m.lastErr = err.Error()
		m.messages = append(m.messages, chatMessage{role: "error", content: err.Error()})
		m.refreshViewport(true)
		return nil
	}

	m.state = reply.State
	m.messages = append(m.messages, chatMessage{role: "bot", content: reply.Text})
	m.refreshViewport(true)

	if !reply.Completed {
		return nil
	}

	m.result = reply.Report
	if m.save == nil {
		m.finished = true
		return nil
	}
	m.isSaving = true
	return tea.Batch(m.spinner.Tick, saveCmd(m.ctx, m.save, *reply.Report))
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render("🐛 Bug Report Walkthrough")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"reporter:%s · %s · answered:%d/%d",
		m.info.UserID,
		m.progressLabel(),
		answeredCount(m.state),
		len(conversation.Fields()),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter answer  ·  PgUp/PgDn scroll  ·  type cancel to discard  ·  🛑 Ctrl+C/Esc quit")
	switch {
	case m.isSaving:
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s 💾 saving report...", m.spinner.View()))
	case m.lastErr != "":
		status = m.theme.statusErr.Render("🚨 " + m.lastErr)
	case m.finished:
		status = m.theme.status.Render("✅ done  ·  Enter or Esc to exit")
	}

	parts := []string{header, meta, line, m.theme.viewport.Width(m.width - 2).Render(m.viewport.View()), status}

	if !m.finished {
		parts = append(parts,
			m.theme.inputLabel.Render("👤 You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
			m.theme.input.Width(m.width-2).Render(m.input.View()),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *model) progressLabel() string {
	if m.state.Terminal() {
		return "complete"
	}
	field, ok := m.state.Field()
	if !ok {
		return "n/a"
	}
	if field.Required {
		return "field:" + field.Name
	}
	return "field:" + field.Name + " (optional)"
}

// answeredCount is the number of questions behind the given state.
func answeredCount(state conversation.State) int {
	if state.Terminal() {
		return len(conversation.Fields())
	}
	field, ok := state.Field()
	if !ok {
		return 0
	}
	for i, f := range conversation.Fields() {
		if f.Name == field.Name {
			return i
		}
	}
	return 0
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	var sections []string
	for _, item := range m.messages {
		switch item.role {
		case "user":
			sections = append(sections, m.renderCard(
				m.theme.userTitle.Render("▛▚ [ 👤 ] ▞▜"),
				m.theme.userBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		case "bot":
			sections = append(sections, m.renderCard(
				m.theme.botTitle.Render("▛▚ [ 🐛 ] ▞▜"),
				m.theme.botBox.Width(m.viewport.Width).Render(renderMrkdwn(item.content)),
			))
		case "reminder":
			sections = append(sections, m.theme.reminder.Width(m.viewport.Width-4).Render("⚠ "+renderMrkdwn(item.content)))
		case "note":
			sections = append(sections, m.theme.note.Render("· "+renderMrkdwn(item.content)))
		case "error":
			sections = append(sections, m.renderCard(
				m.theme.errorTitle.Render("▛▚ [ERROR] ▞▜"),
				m.theme.errorBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render("🐛 Bug Report Walkthrough")
	meta := m.theme.headerMeta.Render("starting")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := 0; i < count; i++ {
		visible = append(visible, m.theme.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("✅ ready for your report"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] opening report form",
		"[BOOT] loading questions",
		"[BOOT] connecting report store",
	}
}

func saveCmd(ctx context.Context, save SaveFunc, r report.BugReport) tea.Cmd {
	return func() tea.Msg {
		note, err := save(ctx, r)
		return savedMsg{note: note, err: err}
	}
}

// renderMrkdwn strips Slack bold markers for terminal display.
func renderMrkdwn(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "*", ""))
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}

func isCancelCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "cancel", "stop", "nevermind", "never mind":
		return true
	default:
		return false
	}
}
