// Package session holds the signed-in state shared by every view and by every
// taskdeck process using the same data directory.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dori/taskdeck/internal/logging"
	"github.com/dori/taskdeck/internal/model"
)

// Storage keys of the persisted session.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

var codec = sonic.ConfigStd

// Session is a signed-in user.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Storage is the durable key/value store the session lives in. Every write
// bumps a revision shared by all processes.
type Storage interface {
	GetItems(keys ...string) (map[string]string, int64, error)
	SetItems(items map[string]string) (int64, error)
	RemoveItems(keys ...string) (int64, error)
	Revision() (int64, error)
}

// Locker serializes session writers across processes.
type Locker interface {
	Lock() error
	Unlock() error
}

// Publisher announces session changes to other processes.
type Publisher interface {
	Publish(ctx context.Context, n Notice) error
}

// EventKind says what happened to the session.
type EventKind int

const (
	EventEstablished EventKind = iota
	EventTornDown
)

func (k EventKind) String() string {
	if k == EventEstablished {
		return "established"
	}
	return "torn-down"
}

// Event is delivered to subscribers on every session change.
type Event struct {
	Kind EventKind
	// Nil when torn down
	Session *Session
	// Origin identifies the holder that made the change
	Origin string
	// External is set when the change was made by another process
	External bool
	Reason   string
}

// StorageWarning reports that a session change could not be persisted. The
// change still applies in memory for this process.
type StorageWarning struct {
	Err error
}

func (w *StorageWarning) Error() string {
	return fmt.Sprintf("session not saved: %v", w.Err)
}

func (w *StorageWarning) Unwrap() error { return w.Err }

// IsStorageWarning reports whether err is a StorageWarning.
func IsStorageWarning(err error) bool {
	var w *StorageWarning
	return errors.As(err, &w)
}

// Holder is the single source of truth for the current session.
type Holder struct {
	store     Storage
	lock      Locker
	publisher Publisher
	logger    *log.Logger
	origin    string

	mu       sync.Mutex
	current  *Session
	revision int64
	subs     map[int]func(Event)
	nextSub  int
}

// Option configures a Holder.
type Option func(*Holder)

// WithLocker serializes writes with l, typically a gofrs/flock file lock.
func WithLocker(l Locker) Option {
	return func(h *Holder) { h.lock = l }
}

// WithPublisher announces changes through p.
func WithPublisher(p Publisher) Option {
	return func(h *Holder) { h.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Holder) { h.logger = l }
}

// NewHolder loads the persisted session from store.
func NewHolder(store Storage, opts ...Option) (*Holder, error) {
	h := &Holder{
		store:  store,
		logger: logging.Discard(),
		origin: uuid.NewString(),
		subs:   make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(h)
	}

	s, rev, err := h.read()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	h.current = s
	h.revision = rev
	return h, nil
}

// Origin returns the id this holder stamps on its own changes.
func (h *Holder) Origin() string {
	return h.origin
}

// Current returns a copy of the session, if there is one.
func (h *Holder) Current() (Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return Session{}, false
	}
	return *h.current, true
}

// Token returns the bearer token, or "" when signed out.
func (h *Holder) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return ""
	}
	return h.current.Token
}

// Establish stores a new session and notifies every subscriber. A token that
// cannot be decoded is rejected. A storage failure is returned as a
// StorageWarning; the session is still active in this process.
func (h *Holder) Establish(token string, user *model.User) error {
	exp, err := DecodeExpiry(token)
	if err != nil {
		return err
	}
	s := &Session{Token: token, ExpiresAt: exp, User: user}

	items := map[string]string{KeyToken: token}
	if user != nil {
		data, err := codec.Marshal(user)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		items[KeyUser] = string(data)
	}

	rev, werr := h.write(func() (int64, error) {
		if user == nil {
			if _, err := h.store.RemoveItems(KeyUser); err != nil {
				return 0, err
			}
		}
		return h.store.SetItems(items)
	})

	h.mu.Lock()
	h.current = s
	if werr == nil {
		h.revision = rev
	}
	h.mu.Unlock()

	h.logger.Info("session established", "user", user.DisplayName(), "expires", exp)
	h.emit(Event{Kind: EventEstablished, Session: s, Origin: h.origin}, rev)

	if werr != nil {
		h.logger.Warn("session not persisted", "err", werr)
		return &StorageWarning{Err: werr}
	}
	return nil
}

// Teardown clears the session and notifies every subscriber.
func (h *Holder) Teardown(reason string) error {
	rev, werr := h.write(func() (int64, error) {
		return h.store.RemoveItems(KeyToken, KeyUser)
	})

	h.mu.Lock()
	had := h.current != nil
	h.current = nil
	if werr == nil {
		h.revision = rev
	}
	h.mu.Unlock()

	if had {
		h.logger.Info("session torn down", "reason", reason)
		h.emit(Event{Kind: EventTornDown, Origin: h.origin, Reason: reason}, rev)
	}

	if werr != nil {
		h.logger.Warn("session removal not persisted", "err", werr)
		return &StorageWarning{Err: werr}
	}
	return nil
}

// Sync re-reads storage when another process has changed it and notifies
// subscribers of the difference. It reports whether anything changed.
func (h *Holder) Sync() (bool, error) {
	rev, err := h.store.Revision()
	if err != nil {
		return false, fmt.Errorf("read session revision: %w", err)
	}

	h.mu.Lock()
	same := rev == h.revision
	h.mu.Unlock()
	if same {
		return false, nil
	}

	s, rev, err := h.read()
	if err != nil {
		return false, fmt.Errorf("reload session: %w", err)
	}

	h.mu.Lock()
	if rev <= h.revision {
		// A local write committed after this read; it is newer.
		h.mu.Unlock()
		return false, nil
	}
	prev := h.current
	h.current = s
	h.revision = rev
	h.mu.Unlock()

	switch {
	case s == nil && prev == nil:
		return false, nil
	case s == nil:
		h.logger.Info("session ended elsewhere")
		h.notify(Event{Kind: EventTornDown, External: true, Reason: "signed out in another window"})
	case prev == nil || prev.Token != s.Token:
		h.logger.Info("session started elsewhere", "user", s.User.DisplayName())
		h.notify(Event{Kind: EventEstablished, Session: s, External: true})
	default:
		return false, nil
	}
	return true, nil
}

// Subscribe registers fn for session events and returns a function that
// removes it. fn runs on the goroutine that made the change and must not block.
func (h *Holder) Subscribe(fn func(Event)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *Holder) write(fn func() (int64, error)) (int64, error) {
	if h.lock != nil {
		if err := h.lock.Lock(); err != nil {
			return 0, fmt.Errorf("lock session storage: %w", err)
		}
		defer func() {
			if err := h.lock.Unlock(); err != nil {
				h.logger.Warn("unlock session storage", "err", err)
			}
		}()
	}
	return fn()
}

func (h *Holder) read() (*Session, int64, error) {
	items, rev, err := h.store.GetItems(KeyToken, KeyUser)
	if err != nil {
		return nil, 0, err
	}
	token, ok := items[KeyToken]
	if !ok || token == "" {
		return nil, rev, nil
	}

	s := &Session{Token: token}
	// A malformed token is kept so the guard can tear it down on navigation.
	if exp, err := DecodeExpiry(token); err == nil {
		s.ExpiresAt = exp
	}
	if raw, ok := items[KeyUser]; ok && raw != "" {
		var u model.User
		if err := codec.UnmarshalFromString(raw, &u); err != nil {
			h.logger.Warn("stored user is unreadable", "err", err)
		} else {
			s.User = &u
		}
	}
	return s, rev, nil
}

// emit notifies local subscribers and announces the change to other processes.
func (h *Holder) emit(ev Event, rev int64) {
	h.notify(ev)
	if h.publisher == nil {
		return
	}
	n := Notice{Origin: h.origin, Kind: ev.Kind.String(), Revision: rev}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.publisher.Publish(ctx, n); err != nil {
		h.logger.Warn("publish session notice", "err", err)
	}
}

func (h *Holder) notify(ev Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
