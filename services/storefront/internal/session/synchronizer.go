package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bookmart/pkg/domain"
	"bookmart/services/storefront/internal/authclient"
)

// Confirmer posts an auth event to the server confirmation endpoint.
// *authclient.Client satisfies it.
type Confirmer interface {
	Confirm(ctx context.Context, event domain.AuthEvent) error
}

// State is the snapshot published to the UI layer after a confirmed
// sign-in or sign-out. Session is nil when signed out.
type State struct {
	Session  *domain.Session
	SignedIn bool
}

// Config wires a synchronizer.
type Config struct {
	Confirmer Confirmer
	// InitialSession is the locally cached client session, if any.
	InitialSession *domain.Session
	// OnChange receives state snapshots after confirmed sign-ins,
	// sign-outs, and forced sign-outs. Calls are serialized.
	OnChange func(State)
	// EventTimeout bounds one event's confirmation round-trip,
	// including retries. Defaults to 30s.
	EventTimeout time.Duration
}

// Synchronizer serializes auth events into a confirmed server-side
// session. It keeps at most one confirmation in flight; a new event
// arriving while busy overwrites the single pending slot, so bursts
// collapse to "current, then most recent". Every error path lands in a
// fully signed-out state and nothing panics into the caller.
type Synchronizer struct {
	confirmer    Confirmer
	onChange     func(State)
	eventTimeout time.Duration

	mu      sync.Mutex
	busy    bool
	pending *domain.AuthEvent
	current *domain.Session
	// lastSynced is the token key of the last successfully confirmed
	// event; valid only while hasSynced is true.
	lastSynced domain.TokenKey
	hasSynced  bool

	wg sync.WaitGroup
}

// New builds a synchronizer holding the locally cached session.
func New(cfg Config) *Synchronizer {
	timeout := cfg.EventTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Synchronizer{
		confirmer:    cfg.Confirmer,
		onChange:     cfg.OnChange,
		eventTimeout: timeout,
		current:      cfg.InitialSession,
	}
}

// Reconcile compares the locally cached client session against an
// externally supplied, already-server-confirmed session. It must run
// once, before the event machine starts accepting events.
func (s *Synchronizer) Reconcile(ctx context.Context, server *domain.Session) {
	s.mu.Lock()
	local := s.current
	s.mu.Unlock()

	switch {
	case server == nil && local != nil:
		slog.Info("session reconcile: no server session, signing out locally")
		s.forceSignOut()
	case server == nil:
		// Nothing cached, nothing confirmed.
	case local != nil && local.Key() == server.Key():
		s.mu.Lock()
		s.lastSynced = server.Key()
		s.hasSynced = true
		s.mu.Unlock()
	default:
		// Tokens differ: adopt the server tokens.
		adopted := *server
		err := s.confirmer.Confirm(ctx, domain.AuthEvent{Kind: domain.EventTokenRefreshed, Session: &adopted})
		if err == nil {
			s.mu.Lock()
			s.current = &adopted
			s.lastSynced = adopted.Key()
			s.hasSynced = true
			s.mu.Unlock()
			return
		}
		if authclient.IsAuthInvalid(err) {
			slog.Warn("session reconcile: server tokens rejected, signing out", "err", err)
			s.forceSignOut()
			return
		}
		slog.Warn("session reconcile: adoption failed, keeping local session", "err", err)
	}
}

// Enqueue hands an auth event to the machine. It never blocks: while an
// event is being processed, the newest backlog event wins and the rest
// are dropped.
func (s *Synchronizer) Enqueue(event domain.AuthEvent) {
	s.mu.Lock()
	if s.busy {
		s.pending = &event
		s.mu.Unlock()
		return
	}
	s.busy = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(event)
}

// Wait blocks until the machine is idle with an empty pending slot.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// Current returns the confirmed local session, or nil when signed out.
func (s *Synchronizer) Current() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

func (s *Synchronizer) run(event domain.AuthEvent) {
	defer s.wg.Done()
	for {
		s.process(event)

		s.mu.Lock()
		if s.pending != nil {
			event = *s.pending
			s.pending = nil
			s.mu.Unlock()
			continue
		}
		s.busy = false
		s.mu.Unlock()
		return
	}
}

func (s *Synchronizer) process(event domain.AuthEvent) {
	key := event.Session.Key()

	// A sign-in or refresh without both tokens can never be confirmed;
	// don't contact the server at all.
	if event.Kind != domain.EventSignedOut && !event.Session.Complete() {
		slog.Warn("auth event missing tokens, forcing sign-out", "event", string(event.Kind))
		s.forceSignOut()
		return
	}

	// Idempotent event: same token key as the last confirmed sync.
	// Refreshes always go to the server because the point is the
	// server-side rotation, not the local state.
	s.mu.Lock()
	duplicate := s.hasSynced && key == s.lastSynced && event.Kind != domain.EventTokenRefreshed
	if duplicate {
		s.lastSynced = key
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.eventTimeout)
	defer cancel()
	err := s.confirmer.Confirm(ctx, event)
	if err == nil {
		s.mu.Lock()
		s.current = event.Session
		s.lastSynced = key
		s.hasSynced = true
		s.mu.Unlock()
		if event.Kind != domain.EventTokenRefreshed {
			s.notify()
		}
		return
	}

	if authclient.IsAuthInvalid(err) || authclient.IsRateLimited(err) {
		slog.Warn("session confirmation rejected, forcing sign-out", "event", string(event.Kind), "err", err)
		s.forceSignOut()
		return
	}

	// Transient or unclassified failure: log and keep the current
	// state; the caller is never crashed.
	slog.Error("session confirmation failed", "event", string(event.Kind), "err", err)
}

func (s *Synchronizer) forceSignOut() {
	s.mu.Lock()
	s.current = nil
	s.lastSynced = domain.TokenKey{}
	s.hasSynced = false
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) notify() {
	if s.onChange == nil {
		return
	}
	s.mu.Lock()
	var snapshot *domain.Session
	if s.current != nil {
		copied := *s.current
		snapshot = &copied
	}
	s.mu.Unlock()
	s.onChange(State{Session: snapshot, SignedIn: snapshot != nil})
}
