package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"

	"github.com/dori/taskdeck/internal/logging"
	"github.com/dori/taskdeck/internal/model"
)

var (
	// ErrInFlight is returned when the same control already has a request running.
	ErrInFlight = errors.New("still working on the previous request")
	// ErrNotConfirmed is returned when a delete was never requested or was cancelled.
	ErrNotConfirmed = errors.New("delete was not confirmed")
)

var codec = sonic.ConfigStd

// ReloadError reports a mutation that succeeded on the server but whose
// follow-up reload failed. The board still shows the state before the change.
type ReloadError struct {
	Op  string
	Err error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("%s saved, but refreshing the board failed: %v", e.Op, e.Err)
}

func (e *ReloadError) Unwrap() error { return e.Err }

// API is the part of the task API the board uses.
type API interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, draft model.TaskDraft) error
	UpdateStatus(ctx context.Context, id string, status model.Status) error
	UpdateTask(ctx context.Context, id string, draft model.TaskDraft) error
	DeleteTask(ctx context.Context, id string) error
}

// Cache persists board snapshots between runs.
type Cache interface {
	SaveSnapshot(queryKey string, payload []byte, fetchedAt time.Time) error
	LoadSnapshot(queryKey string) ([]byte, time.Time, bool, error)
	DeleteSnapshot(queryKey string) error
}

// SessionEnder ends the session when the server rejects its token.
type SessionEnder interface {
	Teardown(reason string) error
}

// In-flight keys. One control, one key.
const KeyCreate = "create"

func StatusKey(id string) string { return "status:" + id }
func EditKey(id string) string   { return "edit:" + id }
func DeleteKey(id string) string { return "delete:" + id }

// PendingDelete is a delete that waits for confirmation.
type PendingDelete struct {
	ID    string
	Title string
}

// Synchronizer owns the board state.
type Synchronizer struct {
	api     API
	cache   Cache
	session SessionEnder
	logger  *log.Logger
	now     func() time.Time

	mu       sync.Mutex
	board    Board
	epoch    uint64 // bumped by Invalidate
	inflight map[string]bool
	pending  map[string]PendingDelete
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithCache persists every loaded board to c.
func WithCache(c Cache) Option {
	return func(s *Synchronizer) { s.cache = c }
}

// WithSession tears the session down on authentication failures.
func WithSession(e SessionEnder) Option {
	return func(s *Synchronizer) { s.session = e }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// New creates a synchronizer with an empty board.
func New(api API, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		api:      api,
		logger:   logging.Discard(),
		now:      time.Now,
		inflight: make(map[string]bool),
		pending:  make(map[string]PendingDelete),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current board.
func (s *Synchronizer) Snapshot() Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.clone()
}

// Busy reports whether a request for key is running.
func (s *Synchronizer) Busy(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[key]
}

// Restore loads the last persisted board, if any, so it can be shown before
// the first fetch completes.
func (s *Synchronizer) Restore() (Board, bool) {
	if s.cache == nil {
		return Board{}, false
	}
	payload, fetchedAt, ok, err := s.cache.LoadSnapshot(QueryKey)
	if err != nil {
		s.logger.Warn("load board snapshot", "err", err)
		return Board{}, false
	}
	if !ok {
		return Board{}, false
	}

	var b Board
	if err := codec.Unmarshal(payload, &b); err != nil {
		s.logger.Warn("unreadable board snapshot", "err", err)
		return Board{}, false
	}
	b.FetchedAt = fetchedAt

	s.mu.Lock()
	if s.board.IsZero() {
		s.board = b
	}
	b = s.board.clone()
	s.mu.Unlock()
	return b, true
}

// Load fetches the full task list and replaces the board with it. On failure
// the previous board is returned together with the error. A list that
// completes after Invalidate is discarded.
func (s *Synchronizer) Load(ctx context.Context) (Board, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	tasks, err := s.api.ListTasks(ctx)
	if err != nil {
		s.checkAuth(err)
		return s.Snapshot(), err
	}

	b := Board{Tasks: tasks, FetchedAt: s.now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.logger.Debug("board dropped after invalidate", "tasks", len(tasks))
		return s.board.clone(), nil
	}
	s.board = b
	s.persist(b)
	s.logger.Debug("board loaded", "tasks", len(tasks))
	return b.clone(), nil
}

// Create adds a task. The server assigns its id and the pending status.
func (s *Synchronizer) Create(ctx context.Context, draft model.TaskDraft) (Board, error) {
	draft = draft.Normalized()
	if err := draft.Validate(); err != nil {
		return s.Snapshot(), err
	}
	return s.mutate(ctx, KeyCreate, "create task", func() error {
		return s.api.CreateTask(ctx, draft)
	})
}

// ChangeStatus moves a task to another column. Any status may move to any other.
func (s *Synchronizer) ChangeStatus(ctx context.Context, id string, status model.Status) (Board, error) {
	if !status.Valid() {
		return s.Snapshot(), &model.ValidationError{Field: "status", Message: "unknown status " + string(status)}
	}
	return s.mutate(ctx, StatusKey(id), "change status", func() error {
		return s.api.UpdateStatus(ctx, id, status)
	})
}

// UpdateFields replaces a task's title, description and due date. Its status is untouched.
func (s *Synchronizer) UpdateFields(ctx context.Context, id string, draft model.TaskDraft) (Board, error) {
	draft = draft.Normalized()
	if err := draft.Validate(); err != nil {
		return s.Snapshot(), err
	}
	return s.mutate(ctx, EditKey(id), "update task", func() error {
		return s.api.UpdateTask(ctx, id, draft)
	})
}

// RequestDelete starts a delete. Nothing is sent until ConfirmDelete.
func (s *Synchronizer) RequestDelete(id string) (PendingDelete, error) {
	if id == "" {
		return PendingDelete{}, &model.ValidationError{Field: "id", Message: "task id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := PendingDelete{ID: id}
	if t, ok := s.board.Find(id); ok {
		p.Title = t.Title
	}
	s.pending[id] = p
	return p, nil
}

// CancelDelete drops a pending delete.
func (s *Synchronizer) CancelDelete(p PendingDelete) {
	s.mu.Lock()
	delete(s.pending, p.ID)
	s.mu.Unlock()
}

// ConfirmDelete sends a delete started with RequestDelete and reloads the board.
func (s *Synchronizer) ConfirmDelete(ctx context.Context, p PendingDelete) (Board, error) {
	s.mu.Lock()
	_, ok := s.pending[p.ID]
	if ok {
		delete(s.pending, p.ID)
	}
	s.mu.Unlock()
	if !ok {
		return s.Snapshot(), ErrNotConfirmed
	}
	return s.mutate(ctx, DeleteKey(p.ID), "delete task", func() error {
		return s.api.DeleteTask(ctx, p.ID)
	})
}

// Invalidate forgets the board and its persisted snapshot, e.g. when the session ends.
func (s *Synchronizer) Invalidate() {
	s.mu.Lock()
	s.board = Board{}
	s.epoch++
	s.pending = make(map[string]PendingDelete)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.DeleteSnapshot(QueryKey); err != nil {
			s.logger.Warn("delete board snapshot", "err", err)
		}
	}
}

// mutate runs call under the in-flight key and reloads the board when it
// succeeds. A failed call leaves the board as it was.
func (s *Synchronizer) mutate(ctx context.Context, key, op string, call func() error) (Board, error) {
	s.mu.Lock()
	if s.inflight[key] {
		s.mu.Unlock()
		return s.Snapshot(), ErrInFlight
	}
	s.inflight[key] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}()

	if err := call(); err != nil {
		s.checkAuth(err)
		s.logger.Warn(op+" failed", "key", key, "err", err)
		return s.Snapshot(), err
	}

	b, err := s.Load(ctx)
	if err != nil {
		return b, &ReloadError{Op: op, Err: err}
	}
	return b, nil
}

func (s *Synchronizer) checkAuth(err error) {
	if s.session == nil || !model.IsAuth(err) {
		return
	}
	if terr := s.session.Teardown("session rejected by server"); terr != nil {
		s.logger.Warn("teardown after auth failure", "err", terr)
	}
}

// persist runs with s.mu held so Invalidate cannot interleave.
func (s *Synchronizer) persist(b Board) {
	if s.cache == nil {
		return
	}
	payload, err := codec.Marshal(b)
	if err != nil {
		s.logger.Warn("encode board snapshot", "err", err)
		return
	}
	if err := s.cache.SaveSnapshot(QueryKey, payload, b.FetchedAt); err != nil {
		s.logger.Warn("save board snapshot", "err", err)
	}
}
