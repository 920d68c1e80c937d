package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ErrPersistFailed is returned by [Store.Establish] when the pair could not be
// written. The in-memory session is left unchanged.
var ErrPersistFailed = errors.New("session persist failed")

// Reason labels why a [Change] happened.
type Reason string

const (
	// ReasonRestored marks a session read back from persistence at startup.
	ReasonRestored Reason = "restored"
	// ReasonEstablished marks a session created by login or registration.
	ReasonEstablished Reason = "established"
	// ReasonLogout marks an explicit logout.
	ReasonLogout Reason = "logout"
	// ReasonInvalidated marks a server-signaled rejection of the token.
	ReasonInvalidated Reason = "invalidated"
	// ReasonDiscarded marks persisted data rejected at startup.
	ReasonDiscarded Reason = "discarded"
)

// Change is delivered to observers after a transition has been applied.
type Change struct {
	Previous State
	Current  State
	Reason   Reason
	// User is the profile of the current session, zero when Anonymous.
	User User
}

// Observer is notified of every applied transition, in transition order. No store
// lock is held while an observer runs, so it may call back into the store; a
// transition it causes is delivered after it returns.
type Observer func(Change)

// ExpiryCheck reports whether token is known to be expired. Tokens it cannot
// interpret must be reported as not expired.
type ExpiryCheck func(token string) bool

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger used for discarded data and backend failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithExpiryCheck makes [Store.Restore] discard persisted sessions whose token
// check reports expired.
func WithExpiryCheck(check ExpiryCheck) Option {
	return func(s *Store) {
		s.expired = check
	}
}

// Store owns the single current session and its persisted copy.
//
// All methods are safe for concurrent use. Transitions are serialized; a
// transition's persistence effect is complete before the call returns and before
// observers see it.
type Store struct {
	persistence Persistence
	expired     ExpiryCheck
	logger      *slog.Logger

	mu      sync.Mutex
	current *Session
	// pending holds applied changes not yet delivered. Only the goroutine that
	// set delivering drains it.
	pending    []Change
	delivering bool

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextObsID uint64
}

// NewStore creates a [Store] in the Anonymous state backed by p.
func NewStore(p Persistence, opts ...Option) *Store {
	s := &Store{
		persistence: p,
		logger:      slog.New(slog.DiscardHandler),
		observers:   make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore reads the persisted pair and adopts it when both halves are present and
// parsable. It never fails: unreadable, partial, corrupt or expired data leaves the
// store Anonymous, and leftovers are cleared on a best-effort basis.
func (s *Store) Restore(ctx context.Context) State {
	s.mu.Lock()
	prev := s.current.State()

	next, reason := s.restoreLocked(ctx)
	s.current = next

	if next != nil {
		s.enqueueLocked(Change{Previous: prev, Current: next.State(), Reason: reason, User: next.User})
	} else if prev.Authenticated {
		s.enqueueLocked(Change{Previous: prev, Current: Anonymous, Reason: reason})
	}
	s.unlockAndDeliver()
	return next.State()
}

func (s *Store) restoreLocked(ctx context.Context) (*Session, Reason) {
	rec, err := s.persistence.Load(ctx)
	if err != nil {
		s.logger.Warn("session load failed, starting anonymous", "error", err)
		return nil, ReasonDiscarded
	}

	sess, err := Decode(rec)
	switch {
	case errors.Is(err, ErrNoSession):
		return nil, ReasonDiscarded
	case err != nil:
		s.logger.Warn("discarding persisted session", "error", err)
		s.discardLocked(ctx)
		return nil, ReasonDiscarded
	case s.expired != nil && s.expired(sess.Token):
		s.logger.Info("discarding expired persisted session", "user_id", sess.User.ID, "role", sess.User.Role)
		s.discardLocked(ctx)
		return nil, ReasonDiscarded
	}

	s.logger.Debug("session restored", "user_id", sess.User.ID, "role", sess.User.Role)
	return sess, ReasonRestored
}

func (s *Store) discardLocked(ctx context.Context) {
	if err := s.persistence.Clear(ctx); err != nil {
		s.logger.Warn("clearing discarded session failed", "error", err)
	}
}

// Establish persists sess and makes it current, replacing any existing session.
// On persistence failure nothing changes and [ErrPersistFailed] is returned.
func (s *Store) Establish(ctx context.Context, sess Session) error {
	rec, err := Encode(&sess)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	s.mu.Lock()
	if err := s.persistence.Save(ctx, rec); err != nil {
		// The backends write atomically, but restore the previous pair so a failed
		// replace never leaves storage and memory disagreeing.
		s.rollbackLocked(ctx)
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	prev := s.current.State()
	next := sess
	s.current = &next

	s.enqueueLocked(Change{Previous: prev, Current: next.State(), Reason: ReasonEstablished, User: next.User})
	s.unlockAndDeliver()
	return nil
}

func (s *Store) rollbackLocked(ctx context.Context) {
	if s.current == nil {
		s.discardLocked(ctx)
		return
	}
	rec, err := Encode(s.current)
	if err != nil {
		return
	}
	if err := s.persistence.Save(ctx, rec); err != nil {
		s.logger.Warn("restoring previous session after failed save failed", "error", err)
	}
}

// Clear drops the current session and its persisted copy. It is idempotent: the
// store ends Anonymous whatever the prior state, and the in-memory session is
// dropped even when the backend clear fails. It reports whether a session was
// dropped.
func (s *Store) Clear(ctx context.Context, reason Reason) (bool, error) {
	s.mu.Lock()
	dropped, err := s.clearLocked(ctx, reason)
	s.unlockAndDeliver()
	return dropped, err
}

// ClearIfToken is [Store.Clear] restricted to the session holding token. When no
// session is current, or the current one carries a different token, nothing is
// touched and it reports false.
func (s *Store) ClearIfToken(ctx context.Context, token string, reason Reason) (bool, error) {
	s.mu.Lock()
	if s.current == nil || s.current.Token != token {
		s.mu.Unlock()
		return false, nil
	}
	dropped, err := s.clearLocked(ctx, reason)
	s.unlockAndDeliver()
	return dropped, err
}

func (s *Store) clearLocked(ctx context.Context, reason Reason) (bool, error) {
	prev := s.current.State()
	s.current = nil

	err := s.persistence.Clear(ctx)
	if err != nil {
		s.logger.Warn("session clear failed", "reason", reason, "error", err)
		err = fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if prev.Authenticated {
		s.enqueueLocked(Change{Previous: prev, Current: Anonymous, Reason: reason})
	}
	return prev.Authenticated, err
}

// Current returns a copy of the current session.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Token returns the current bearer token.
func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", false
	}
	return s.current.Token, true
}

// State returns the current logical state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.State()
}

// Subscribe registers o and returns a function that removes it.
func (s *Store) Subscribe(o Observer) func() {
	if o == nil {
		return func() {}
	}

	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = o
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *Store) enqueueLocked(c Change) {
	s.pending = append(s.pending, c)
}

// unlockAndDeliver releases mu and, unless another call is already delivering,
// drains pending to the observers. It must be called with mu held.
func (s *Store) unlockAndDeliver() {
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		s.deliver(batch)
		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}

func (s *Store) deliver(batch []Change) {
	done := false
	defer func() {
		if !done {
			// An observer panicked; let the next transition deliver.
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
		}
	}()
	for _, c := range batch {
		s.publish(c)
	}
	done = true
}

func (s *Store) publish(c Change) {
	s.obsMu.RLock()
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	s.obsMu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		s.obsMu.RLock()
		o, ok := s.observers[id]
		s.obsMu.RUnlock()
		if ok {
			o(c)
		}
	}
}
