package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/shared"
	"github.com/ashureev/ragchat/internal/transcript"
	"github.com/ashureev/ragchat/internal/view"
)

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.animating() {
			m.refresh()
		}
		return m, cmd

	case resumeDoneMsg:
		m.busy = false
		if token := m.opts.Session.Token(); token != "" {
			return m, m.enterMain(token)
		}
		m.enterLogin()
		if msg.err != nil {
			m.logger.Warn("Stored credential rejected", "error", msg.err)
			if shared.IsAuth(msg.err) {
				m.setStickyNotice("Your saved session is no longer valid. Please log in again.")
				return m, nil
			}
			return m, m.setNotice("Could not restore your session.", true)
		}
		return m, nil

	case loginDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.logger.Warn("Login failed", "error", msg.err)
			if shared.IsAuth(msg.err) {
				return m, m.setNotice("That token was rejected.", true)
			}
			return m, m.setNotice(loginFailureText(msg.err), true)
		}
		return m, m.enterMain(m.opts.Session.Token())

	case logoutDoneMsg:
		if msg.err != nil {
			m.logger.Warn("Logout failed", "error", msg.err)
		}
		if m.route == routeRecovery {
			m.resetWorkspace()
			m.busy = false
			return m, nil
		}
		m.enterLogin()
		if msg.reason != "" {
			m.setStickyNotice(msg.reason)
			return m, nil
		}
		return m, m.setNotice("Logged out.", false)

	case threadsLoadedMsg:
		if msg.err != nil {
			return m, m.handleErr(msg.err, "Failed to load threads.")
		}
		m.dir.Replace(msg.threads)
		m.syncThreadList()
		m.refresh()
		return m, nil

	case threadCreatedMsg:
		if msg.err != nil {
			return m, m.handleErr(msg.err, "Failed to create a thread.")
		}
		m.dir.Insert(msg.thread)
		return m, m.selectThread(msg.thread.ID)

	case snapshotMsg:
		return m, m.applySnapshot(msg)

	case sendDoneMsg:
		if msg.err != nil {
			// Restore the text so it can be resent.
			m.logger.Warn("Send failed", "error", msg.err)
			if m.composer.Value() == "" {
				m.composer.SetValue(msg.content)
				m.composer.CursorEnd()
			}
		}
		return m, nil

	case channelEventMsg:
		if msg.ch != m.ch {
			return m, nil
		}
		m.applyEvent(msg.ev)
		return m, waitChannel(m.ch)

	case channelStateMsg:
		if msg.ch != m.ch {
			return m, nil
		}
		m.conn = msg.state
		if m.opts.ConnObserver != nil {
			m.opts.ConnObserver.RecordConnState(msg.state)
		}
		m.logger.Debug("Channel state changed", "state", msg.state.String())
		return m, waitChannel(m.ch)

	case channelClosedMsg:
		if msg.ch == m.ch {
			m.conn = channel.StateClosed
		}
		return m, nil

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.clearNotice()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.login, cmd = m.login.Update(msg)
	cmds = append(cmds, cmd)
	m.composer, cmd = m.composer.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) applySnapshot(msg snapshotMsg) tea.Cmd {
	snap := msg.snap
	if m.loading == snap.ThreadID {
		m.loading = 0
	}
	if snap.Err != nil {
		return m.handleErr(snap.Err, "Failed to load messages.")
	}
	if err := m.store.Seed(snap.ThreadID, snap.Messages); err != nil {
		if errors.Is(err, transcript.ErrThreadMismatch) {
			m.logger.Debug("Discarded stale snapshot", "thread_id", snap.ThreadID)
			return nil
		}
		m.logger.Warn("Seed failed", "thread_id", snap.ThreadID, "error", err)
		return nil
	}
	m.refresh()
	m.transcript.GotoBottom()
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if key.Matches(msg, m.keys.Dismiss) && m.notice != "" {
		m.clearNotice()
		return m, nil
	}

	switch m.route {
	case routeRecovery:
		return m.handleRecoveryKey(msg)
	case routeLogin:
		return m.handleLoginKey(msg)
	default:
		return m.handleMainKey(msg)
	}
}

func (m Model) handleRecoveryKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Reload) && !m.busy {
		m.appErr = nil
		m.enterLogin()
		m.busy = true
		return m, m.resumeCmd()
	}
	return m, nil
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Enter) {
		if m.busy {
			return m, nil
		}
		token := strings.TrimSpace(m.login.Value())
		if token == "" {
			return m, m.setNotice("Paste your access token to continue.", true)
		}
		m.busy = true
		m.clearNotice()
		return m, m.loginCmd(token)
	}

	var cmd tea.Cmd
	m.login, cmd = m.login.Update(msg)
	return m, cmd
}

func (m Model) handleMainKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Logout):
		return m, m.logoutCmd("")
	case key.Matches(msg, m.keys.New):
		return m, m.createThreadCmd()
	case key.Matches(msg, m.keys.Refresh):
		cmds := []tea.Cmd{m.loadThreadsCmd()}
		if id, ok := m.dir.ActiveID(); ok {
			m.loading = id
			cmds = append(cmds, m.fetchSnapshotCmd(id))
		}
		return m, tea.Batch(cmds...)
	case key.Matches(msg, m.keys.Tab):
		if m.focus == focusComposer {
			m.focus = focusThreads
			m.composer.Blur()
			return m, nil
		}
		m.focus = focusComposer
		return m, m.composer.Focus()
	case key.Matches(msg, m.keys.PageUp):
		m.transcript.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.transcript.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == focusThreads {
		if key.Matches(msg, m.keys.Enter) {
			item, ok := m.threadList.SelectedItem().(threadItem)
			if !ok {
				return m, nil
			}
			return m, m.selectThread(item.t.ID)
		}
		m.threadList, cmd = m.threadList.Update(msg)
		return m, cmd
	}

	if key.Matches(msg, m.keys.Enter) {
		return m, m.send()
	}
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

// send submits the composer content. With no thread selected the server
// creates one and declares it back on the channel.
func (m *Model) send() tea.Cmd {
	c := view.Composer{Value: m.composer.Value()}
	if !c.CanSend() {
		return nil
	}
	if m.ch == nil {
		m.logger.Warn("Send without a channel")
		return nil
	}
	threadID, _ := m.dir.ActiveID()
	m.composer.SetValue("")
	return m.sendCmd(m.ch, channel.SendRequest{Content: c.Content(), ThreadID: threadID})
}

func (m Model) animating() bool {
	if m.busy || m.loading != 0 {
		return true
	}
	for _, msg := range m.screen.Messages {
		if msg.Badge != nil && msg.Badge.Icon.Animated() {
			return true
		}
	}
	return false
}

func loginFailureText(err error) string {
	var fetchErr *shared.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Notice()
	}
	return "Could not reach the server."
}
