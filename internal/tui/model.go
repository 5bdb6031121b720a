// Package tui is the terminal front end. Every mutation of the transcript
// store and the thread directory happens inside Update, so the UI loop is
// their single writer.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/recovery"
	"github.com/ashureev/ragchat/internal/shared"
	"github.com/ashureev/ragchat/internal/threads"
	"github.com/ashureev/ragchat/internal/transcript"
	"github.com/ashureev/ragchat/internal/view"
)

// Session is the authentication boundary the UI drives.
type Session interface {
	Resume(ctx context.Context) error
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context) error
	Token() string
	Channel() channel.Channel
}

// ConnObserver receives channel connection state changes.
type ConnObserver interface {
	RecordConnState(s channel.ConnState)
}

// Options wires the model to its collaborators.
type Options struct {
	Session Session
	// NewAPI returns a thread API authenticated with token.
	NewAPI         func(token string) threads.ThreadAPI
	Recorder       transcript.Recorder
	ConnObserver   ConnObserver
	GlamourStyle   string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

const sessionExpiredText = "Your session has expired. Please log in again."

type route int

const (
	routeLogin route = iota
	routeMain
	routeRecovery
)

type focus int

const (
	focusComposer focus = iota
	focusThreads
)

type renderedText struct {
	text string
	out  string
}

// Model is the bubbletea model for the whole client.
type Model struct {
	opts     Options
	logger   *slog.Logger
	boundary *recovery.Boundary
	// logoutPending is set by the recovery boundary and drained by Update,
	// which turns it into a logout command.
	logoutPending *bool

	route route
	focus focus
	busy  bool

	api     threads.ThreadAPI
	dir     *threads.Directory
	store   *transcript.Store
	ch      channel.Channel
	conn    channel.ConnState
	loading int64
	screen  view.Screen

	login      textinput.Model
	composer   textinput.Model
	threadList list.Model
	transcript viewport.Model
	spinner    spinner.Model
	help       help.Model
	keys       keyMap

	md       *glamour.TermRenderer
	mdWidth  int
	rendered map[int64]renderedText

	width  int
	height int

	notice      string
	noticeError bool
	noticeSeq   int
	appErr      *shared.ApplicationError
}

// New builds the model. Options.Session and Options.NewAPI are required.
func New(opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GlamourStyle == "" {
		opts.GlamourStyle = "dark"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 30, 20)
	l.Title = "Threads"
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	login := textinput.New()
	login.Placeholder = "Paste your access token"
	login.EchoMode = textinput.EchoPassword
	login.EchoCharacter = '•'
	login.Focus()

	composer := textinput.New()
	composer.Placeholder = "Ask something..."
	composer.Prompt = "› "

	sp := spinner.New()
	sp.Spinner = spinner.Points

	pending := new(bool)
	m := Model{
		opts:          opts,
		logger:        opts.Logger,
		boundary:      recovery.New(func() { *pending = true }, opts.Logger),
		logoutPending: pending,
		route:      routeLogin,
		busy:       true,
		conn:       channel.StateClosed,
		login:      login,
		composer:   composer,
		threadList: l,
		transcript: viewport.New(80, 20),
		spinner:    sp,
		help:       help.New(),
		keys:       defaultKeys(),
		rendered:   make(map[int64]renderedText),
	}
	m.resetWorkspace()
	return m
}

// Init resumes a stored credential if one exists.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, m.resumeCmd())
}

// Update routes msg and converts any panic into the recovery screen.
func (m Model) Update(msg tea.Msg) (result tea.Model, cmd tea.Cmd) {
	defer func() {
		if r := recover(); r != nil {
			m.appErr = m.boundary.Capture(r)
			m.route = routeRecovery
			m.busy = false
			result, cmd = m, m.drainRecoveryLogout()
		}
	}()
	next, cmd := m.update(msg)
	if logout := next.drainRecoveryLogout(); logout != nil {
		cmd = tea.Batch(cmd, logout)
	}
	return next, cmd
}

// drainRecoveryLogout returns the logout the recovery boundary asked for, if
// any. A failure caught in View is picked up by the next Update.
func (m *Model) drainRecoveryLogout() tea.Cmd {
	if m.logoutPending == nil || !*m.logoutPending {
		return nil
	}
	*m.logoutPending = false
	if m.route == routeRecovery {
		// Reload waits until the credential is gone.
		m.busy = true
	}
	return m.logoutCmd(sessionExpiredText)
}

// resetWorkspace drops everything bound to the previous credential.
func (m *Model) resetWorkspace() {
	m.api = nil
	m.dir = threads.NewDirectory(nil, m.logger)
	m.store = transcript.NewStore(m.dir, m.opts.Recorder, m.logger)
	m.ch = nil
	m.conn = channel.StateClosed
	m.loading = 0
	m.rendered = make(map[int64]renderedText)
	m.composer.SetValue("")
	m.syncThreadList()
	m.refresh()
}

func (m *Model) enterMain(token string) tea.Cmd {
	m.resetWorkspace()
	m.api = m.opts.NewAPI(token)
	m.dir = threads.NewDirectory(m.api, m.logger)
	m.store = transcript.NewStore(m.dir, m.opts.Recorder, m.logger)
	m.ch = m.opts.Session.Channel()
	m.conn = channel.StateConnecting
	m.route = routeMain
	m.busy = false

	m.login.SetValue("")
	m.login.Blur()
	m.focus = focusComposer
	m.composer.Focus()

	m.syncThreadList()
	m.refresh()
	m.logger.Info("Entered main view", "channel", m.ch != nil)
	return tea.Batch(m.loadThreadsCmd(), waitChannel(m.ch))
}

func (m *Model) enterLogin() {
	m.resetWorkspace()
	m.route = routeLogin
	m.busy = false
	m.composer.Blur()
	m.login.Focus()
}

func (m *Model) setNotice(text string, isError bool) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.noticeError = isError
	return expireNotice(m.noticeSeq)
}

// setStickyNotice shows text until the user dismisses it.
func (m *Model) setStickyNotice(text string) {
	m.noticeSeq++
	m.notice = text
	m.noticeError = true
}

func (m *Model) clearNotice() {
	m.noticeSeq++
	m.notice = ""
	m.noticeError = false
}

// handleErr surfaces a backend failure. Authorization failures end the
// session; fetch failures become a transient notice.
func (m *Model) handleErr(err error, fallback string) tea.Cmd {
	if shared.IsAuth(err) {
		m.logger.Warn("Authorization rejected, logging out", "error", err)
		m.enterLogin()
		m.setStickyNotice(sessionExpiredText)
		return m.logoutCmd(sessionExpiredText)
	}
	m.logger.Warn(fallback, "error", err)
	var fetchErr *shared.FetchError
	if errors.As(err, &fetchErr) {
		return m.setNotice(fetchErr.Notice(), true)
	}
	return m.setNotice(fallback, true)
}

func (m *Model) selectThread(id int64) tea.Cmd {
	if current, ok := m.dir.ActiveID(); ok && current == id {
		return nil
	}
	if err := m.dir.Select(id); err != nil {
		return m.setNotice("That thread is no longer available.", true)
	}
	// Live events for the new selection apply until the snapshot replaces them.
	if err := m.store.Seed(id, nil); err != nil {
		m.logger.Debug("Seed on select rejected", "thread_id", id, "error", err)
	}
	m.loading = id
	m.syncThreadList()
	m.refresh()
	return m.fetchSnapshotCmd(id)
}

func (m *Model) applyEvent(ev channel.Event) {
	switch e := ev.(type) {
	case channel.ThreadDeclaredEvent:
		if m.dir.OnThreadDeclared(e.ThreadID, e.Title, e.CreatedAt, e.IsNew) {
			if err := m.store.Seed(e.ThreadID, nil); err != nil {
				m.logger.Debug("Seed on promotion rejected", "thread_id", e.ThreadID, "error", err)
			}
		}
		m.syncThreadList()
	default:
		m.store.Apply(ev)
	}
	m.refresh()
	m.transcript.GotoBottom()
}

func (m *Model) syncThreadList() {
	snap := m.dir.Snapshot()
	items := make([]list.Item, 0, len(snap.Threads))
	selectIdx := -1
	for i, t := range snap.Threads {
		items = append(items, threadItem{t: t, active: t.ID == snap.ActiveID})
		if t.ID == snap.ActiveID {
			selectIdx = i
		}
	}
	current := m.threadList.Index()
	m.threadList.SetItems(items)
	switch {
	case selectIdx >= 0:
		m.threadList.Select(selectIdx)
	case current < len(items):
		m.threadList.Select(current)
	}
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	left, right := m.paneWidths()

	bodyHeight := m.height - 4
	if bodyHeight < 8 {
		bodyHeight = 8
	}

	m.threadList.SetSize(left-4, bodyHeight-2)
	m.transcript.Width = right - 4
	m.transcript.Height = bodyHeight - 3
	m.composer.Width = right - 8
	m.login.Width = 48
	m.help.Width = m.width

	if m.mdWidth != m.transcript.Width {
		m.md = nil
		m.mdWidth = m.transcript.Width
		m.rendered = make(map[int64]renderedText)
	}
}

func (m Model) paneWidths() (int, int) {
	left := 32
	if m.width < 80 {
		left = m.width / 3
	}
	right := m.width - left
	if right < 20 {
		right = 20
	}
	return left, right
}
