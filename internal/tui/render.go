package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashureev/ragchat/internal/domain"
	"github.com/ashureev/ragchat/internal/view"
)

type threadItem struct {
	t      domain.Thread
	active bool
}

func (i threadItem) Title() string {
	if i.active {
		return "● " + i.t.DisplayTitle()
	}
	return i.t.DisplayTitle()
}

func (i threadItem) Description() string {
	if i.t.CreatedAt.IsZero() {
		return ""
	}
	return i.t.CreatedAt.Local().Format("Jan 2 15:04")
}

func (i threadItem) FilterValue() string { return i.t.DisplayTitle() }

// refresh re-projects the screen and redraws the transcript. It runs inside
// Update so render failures reach the recovery boundary.
func (m *Model) refresh() {
	m.screen = view.Project(m.store.CurrentView(), m.dir.Snapshot())
	m.transcript.SetContent(m.renderTranscript())
}

func (m *Model) renderTranscript() string {
	if len(m.screen.Messages) == 0 {
		switch {
		case m.loading != 0:
			return mutedStyle.Render(m.spinner.View() + " Loading messages...")
		case m.screen.HasThread:
			return mutedStyle.Render("No messages yet.")
		default:
			return mutedStyle.Render("Start a new conversation by sending a message.")
		}
	}

	blocks := make([]string, 0, len(m.screen.Messages))
	for _, msg := range m.screen.Messages {
		blocks = append(blocks, m.renderMessage(msg))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg view.MessageItem) string {
	var b strings.Builder
	if msg.Role == domain.RoleUser {
		b.WriteString(userStyle.Render("You"))
	} else {
		b.WriteString(assistantStyle.Render("Assistant"))
	}
	if msg.Badge != nil {
		b.WriteString("  ")
		b.WriteString(m.renderBadge(*msg.Badge))
	}

	text := msg.Text
	if text == "" {
		return b.String()
	}
	b.WriteString("\n")
	switch {
	case msg.Role == domain.RoleUser:
		b.WriteString(lipgloss.NewStyle().Width(m.textWidth()).Render(text))
	case msg.Streaming:
		// Partial markdown is shown raw until the reply settles.
		b.WriteString(lipgloss.NewStyle().Width(m.textWidth()).Render(text))
	default:
		b.WriteString(m.markdown(msg.ID, text))
	}
	return b.String()
}

func (m *Model) renderBadge(badge view.Badge) string {
	icon := badge.Icon.Glyph()
	if badge.Icon.Animated() {
		icon = m.spinner.View()
	}
	label := fmt.Sprintf("%s %s", icon, badge.Message)
	if badge.Phase == domain.PhaseError {
		return errorBadgeStyle.Render(label)
	}
	return badgeStyle.Render(label)
}

func (m *Model) markdown(id int64, text string) string {
	if cached, ok := m.rendered[id]; ok && cached.text == text {
		return cached.out
	}
	if m.md == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.opts.GlamourStyle),
			glamour.WithWordWrap(m.textWidth()),
		)
		if err != nil {
			m.logger.Warn("Markdown renderer unavailable", "error", err)
			return text
		}
		m.md = r
	}
	out, err := m.md.Render(text)
	if err != nil {
		m.logger.Debug("Markdown render failed", "message_id", id, "error", err)
		return text
	}
	out = strings.Trim(out, "\n")
	m.rendered[id] = renderedText{text: text, out: out}
	return out
}

func (m *Model) textWidth() int {
	if m.transcript.Width <= 0 {
		return 80
	}
	return m.transcript.Width
}

// View draws the current route. A render panic shows the recovery panel.
func (m Model) View() (out string) {
	if appErr := m.boundary.Guard(func() { out = m.render() }); appErr != nil {
		m.appErr = appErr
		return m.recoveryView()
	}
	return out
}

func (m Model) render() string {
	switch m.route {
	case routeRecovery:
		return m.recoveryView()
	case routeLogin:
		return m.loginView()
	default:
		return m.mainView()
	}
}

func (m Model) loginView() string {
	lines := []string{
		titleStyle.Render("ragchat"),
		"",
		"Paste your access token to sign in.",
		"",
		m.login.View(),
	}
	if m.busy {
		lines = append(lines, "", m.spinner.View()+" Verifying...")
	}
	if n := m.noticeView(); n != "" {
		lines = append(lines, "", n)
	}
	lines = append(lines, "", mutedStyle.Render("enter sign in • ctrl+c quit"))
	return m.center(panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

func (m Model) recoveryView() string {
	msg := "unexpected error"
	if m.appErr != nil {
		msg = m.appErr.Message
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		errorBadgeStyle.Bold(true).Render("Something went wrong"),
		"",
		msg,
		"",
		mutedStyle.Render("r reload • ctrl+c quit"),
	)
	return m.center(panelStyle.Render(body))
}

func (m Model) mainView() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}
	left, right := m.paneWidths()
	bodyHeight := m.height - 4
	if bodyHeight < 8 {
		bodyHeight = 8
	}

	leftPane := paneStyle(m.focus == focusThreads).
		Width(left - 2).
		Height(bodyHeight).
		Render(m.threadList.View())

	right = right - 2
	column := lipgloss.JoinVertical(lipgloss.Left,
		m.header(right-4),
		m.transcript.View(),
		m.composer.View(),
	)
	rightPane := paneStyle(m.focus == focusComposer).
		Width(right).
		Height(bodyHeight).
		Render(column)

	body := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)
	footer := m.help.View(m.keys)
	if n := m.noticeView(); n != "" {
		footer = n + "  " + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

func (m Model) header(width int) string {
	title := titleStyle.Render(m.screen.Title)
	conn := connStyle(m.conn).Render("● " + m.conn.String())
	gap := width - lipgloss.Width(title) - lipgloss.Width(conn)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + conn
}

func (m Model) noticeView() string {
	if m.notice == "" {
		return ""
	}
	if m.noticeError {
		return errorNoticeStyle.Render(m.notice)
	}
	return noticeStyle.Render(m.notice)
}

func (m Model) center(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}
