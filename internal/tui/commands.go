package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/domain"
	"github.com/ashureev/ragchat/internal/threads"
)

const noticeTTL = 5 * time.Second

type resumeDoneMsg struct{ err error }

type loginDoneMsg struct{ err error }

type logoutDoneMsg struct {
	reason string
	err    error
}

type threadsLoadedMsg struct {
	threads []domain.Thread
	err     error
}

type threadCreatedMsg struct {
	thread domain.Thread
	err    error
}

type snapshotMsg struct{ snap threads.MessageSnapshot }

type sendDoneMsg struct {
	content string
	err     error
}

type channelEventMsg struct {
	ch channel.Channel
	ev channel.Event
}

type channelStateMsg struct {
	ch    channel.Channel
	state channel.ConnState
}

type channelClosedMsg struct{ ch channel.Channel }

type noticeExpiredMsg struct{ seq int }

func (m Model) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.opts.RequestTimeout)
}

func (m Model) resumeCmd() tea.Cmd {
	sess := m.opts.Session
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		return resumeDoneMsg{err: sess.Resume(ctx)}
	}
}

func (m Model) loginCmd(token string) tea.Cmd {
	sess := m.opts.Session
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		return loginDoneMsg{err: sess.Login(ctx, token)}
	}
}

func (m Model) logoutCmd(reason string) tea.Cmd {
	sess := m.opts.Session
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		return logoutDoneMsg{reason: reason, err: sess.Logout(ctx)}
	}
}

func (m Model) loadThreadsCmd() tea.Cmd {
	api := m.api
	if api == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		list, err := api.ListThreads(ctx)
		return threadsLoadedMsg{threads: list, err: err}
	}
}

func (m Model) createThreadCmd() tea.Cmd {
	api := m.api
	if api == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		t, err := api.CreateThread(ctx)
		return threadCreatedMsg{thread: t, err: err}
	}
}

func (m Model) fetchSnapshotCmd(threadID int64) tea.Cmd {
	api := m.api
	if api == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		return snapshotMsg{snap: threads.FetchSnapshot(ctx, api, threadID)}
	}
}

func (m Model) sendCmd(ch channel.Channel, req channel.SendRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		return sendDoneMsg{content: req.Content, err: ch.Send(ctx, req)}
	}
}

// waitChannel blocks for the next event or state change on ch. Update
// re-arms it after every delivery until the channel closes.
func waitChannel(ch channel.Channel) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				return channelClosedMsg{ch: ch}
			}
			return channelEventMsg{ch: ch, ev: ev}
		case st, ok := <-ch.States():
			if !ok {
				return channelClosedMsg{ch: ch}
			}
			return channelStateMsg{ch: ch, state: st}
		}
	}
}

func expireNotice(seq int) tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}
