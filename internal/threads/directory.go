// Package threads keeps the list of known conversation threads and the one the
// user has selected.
package threads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ashureev/ragchat/internal/domain"
)

// ErrUnknownThread is returned when selecting a thread the directory does not hold.
var ErrUnknownThread = errors.New("unknown thread")

// ThreadAPI is the request-response boundary for threads and their messages.
type ThreadAPI interface {
	ListThreads(ctx context.Context) ([]domain.Thread, error)
	CreateThread(ctx context.Context) (domain.Thread, error)
	ListMessages(ctx context.Context, threadID int64) ([]domain.Message, error)
}

// Directory holds the known threads in display order plus the active selection.
// It is not safe for concurrent use; the UI loop owns it.
type Directory struct {
	api     ThreadAPI
	threads []domain.Thread
	active  int64
	logger  *slog.Logger
}

// NewDirectory creates an empty directory backed by api.
func NewDirectory(api ThreadAPI, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{api: api, logger: logger}
}

// Load fetches the thread list and replaces the directory contents.
func (d *Directory) Load(ctx context.Context) error {
	list, err := d.api.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	d.Replace(list)
	return nil
}

// Replace swaps in a fetched thread list. Duplicate ids keep their first
// occurrence. Threads known locally but missing from list, such as one the
// server declared after the list was requested, are kept after the fetched
// ones, so the selection always survives.
func (d *Directory) Replace(list []domain.Thread) {
	next := make([]domain.Thread, 0, len(list)+len(d.threads))
	seen := make(map[int64]struct{}, len(list)+len(d.threads))
	for _, t := range list {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		next = append(next, t)
	}
	for _, t := range d.threads {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		next = append(next, t)
		d.logger.Debug("Kept thread missing from fetched list", "thread_id", t.ID)
	}
	d.threads = next
}

// Create asks the backend for a new thread, adds it and selects it.
func (d *Directory) Create(ctx context.Context) (domain.Thread, error) {
	t, err := d.api.CreateThread(ctx)
	if err != nil {
		return domain.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	d.Insert(t)
	d.active = t.ID
	return t, nil
}

// Insert adds t unless a thread with the same id is present. It reports
// whether the directory changed.
func (d *Directory) Insert(t domain.Thread) bool {
	if d.index(t.ID) >= 0 {
		return false
	}
	d.threads = append(d.threads, t)
	return true
}

// Select makes id the active thread.
func (d *Directory) Select(id int64) error {
	if d.index(id) < 0 {
		return fmt.Errorf("select thread %d: %w", id, ErrUnknownThread)
	}
	d.active = id
	return nil
}

// ActiveID returns the selected thread id.
func (d *Directory) ActiveID() (int64, bool) {
	return d.active, d.active != 0
}

// OnThreadDeclared handles the server telling the client which thread a sent
// message went to. A new thread is added and, when nothing is selected,
// becomes the selection. It reports whether the selection changed.
func (d *Directory) OnThreadDeclared(id int64, title string, createdAt time.Time, isNew bool) bool {
	d.Insert(domain.Thread{ID: id, Title: title, CreatedAt: createdAt})
	if !isNew || d.active != 0 {
		return false
	}
	d.active = id
	d.logger.Info("Promoted server-created thread", "thread_id", id)
	return true
}

// Snapshot returns a copy of the directory for presentation.
func (d *Directory) Snapshot() Snapshot {
	return Snapshot{Threads: slices.Clone(d.threads), ActiveID: d.active}
}

// Len returns the number of known threads.
func (d *Directory) Len() int { return len(d.threads) }

func (d *Directory) index(id int64) int {
	return slices.IndexFunc(d.threads, func(t domain.Thread) bool { return t.ID == id })
}

// Snapshot is an immutable copy of the directory.
type Snapshot struct {
	Threads  []domain.Thread
	ActiveID int64
}

// MessageSnapshot is the result of fetching a thread's messages.
type MessageSnapshot struct {
	ThreadID int64
	Messages []domain.Message
	Err      error
}

// FetchSnapshot loads the messages of threadID. Rows come back without a
// thread id, so it is stamped here. It runs off the UI loop; the caller seeds
// the transcript with the result, which drops it if the selection moved on.
func FetchSnapshot(ctx context.Context, api ThreadAPI, threadID int64) MessageSnapshot {
	msgs, err := api.ListMessages(ctx, threadID)
	if err != nil {
		return MessageSnapshot{ThreadID: threadID, Err: fmt.Errorf("fetch thread %d: %w", threadID, err)}
	}
	for i := range msgs {
		msgs[i].ThreadID = threadID
	}
	return MessageSnapshot{ThreadID: threadID, Messages: msgs}
}
