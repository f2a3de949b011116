package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maisonlune/storefront/internal/cart"
	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
	"github.com/maisonlune/storefront/internal/infra/config"
	"github.com/maisonlune/storefront/internal/infra/telemetry"
	"github.com/maisonlune/storefront/internal/observability"
)

const (
	sessionCookie = "cart_session"
	sessionMaxAge = 30 * 24 * time.Hour
)

// ErrSessionsClosed is returned by Get after CloseAll.
var ErrSessionsClosed = errors.New("sessions: closed")

// Session holds the carts of one browser session.
type Session struct {
	ID     string
	Remote *cart.RemoteCart
	Demo   *cart.LocalCart

	done chan struct{}

	// guarded by Sessions.mu
	lastUsed time.Time
	streams  int
}

// Done is closed once the session is evicted or the registry shuts down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Sessions lazily builds and caches the carts of each browser session.
// Sessions unused for the configured idle timeout are flushed and dropped.
type Sessions struct {
	cfg     config.CartConfig
	storage snapshotstore.Store
	creator cart.CheckoutCreator
	metrics *telemetry.StoreMetrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*Session
	closed  bool
}

// NewSessions constructs a registry. creator may be nil when no remote store
// is configured; remote checkouts then fail as unavailable.
func NewSessions(cfg config.CartConfig, storage snapshotstore.Store, creator cart.CheckoutCreator, metrics *telemetry.StoreMetrics) *Sessions {
	return &Sessions{
		cfg:     cfg,
		storage: storage,
		creator: creator,
		metrics: metrics,
		now:     time.Now,
		entries: make(map[string]*Session),
	}
}

// Get returns the session for id, restoring both carts from storage on first use.
func (s *Sessions) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionsClosed
	}
	if sess, ok := s.entries[id]; ok {
		sess.lastUsed = s.now()
		return sess, nil
	}

	opts := []cart.Option{
		cart.WithStorage(s.storage),
		cart.WithMetrics(s.metrics),
		cart.WithCheckoutTimeout(s.cfg.CheckoutTimeout),
		cart.WithDefaultCurrency(s.cfg.DefaultCurrency),
	}
	sess := &Session{
		ID:       id,
		Remote:   cart.NewRemote(storageKey(s.cfg.StorageKey, id), s.creator, opts...),
		Demo:     cart.NewLocal(storageKey(s.cfg.DemoStorageKey, id), opts...),
		done:     make(chan struct{}),
		lastUsed: s.now(),
	}
	if err := sess.Remote.Init(ctx); err != nil {
		return nil, fmt.Errorf("restore remote cart: %w", err)
	}
	if err := sess.Demo.Init(ctx); err != nil {
		return nil, fmt.Errorf("restore demo cart: %w", err)
	}
	s.entries[id] = sess
	return sess, nil
}

// Hold keeps sess from being evicted until the returned release is called.
func (s *Sessions) Hold(sess *Session) (release func()) {
	s.mu.Lock()
	sess.streams++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			sess.streams--
			sess.lastUsed = s.now()
			s.mu.Unlock()
		})
	}
}

// Len reports the number of cached sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// EvictIdle flushes and drops every unheld session idle for at least the
// idle timeout. It reports how many sessions were evicted. A later Get for an
// evicted id restores its carts from storage.
func (s *Sessions) EvictIdle(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cfg.SessionIdleTimeout <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.SessionIdleTimeout)
	var errList []error
	evicted := 0
	for id, sess := range s.entries {
		if sess.streams > 0 || sess.lastUsed.After(cutoff) {
			continue
		}
		delete(s.entries, id)
		errList = append(errList, closeSession(ctx, sess)...)
		evicted++
	}
	if evicted > 0 {
		observability.Log().Debug("evicted idle cart sessions",
			observability.F("evicted", evicted),
			observability.F("remaining", len(s.entries)))
	}
	return evicted, observability.AggregateErrors("evict sessions", errList,
		observability.F("evicted", evicted))
}

// Run evicts idle sessions every sweep interval until ctx is done.
func (s *Sessions) Run(ctx context.Context) {
	interval := s.cfg.SessionSweepInterval
	if interval <= 0 || s.cfg.SessionIdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.EvictIdle(ctx); err != nil {
				observability.Log().Error("session eviction failed", observability.F("error", err))
			}
		}
	}
}

// CloseAll flushes and closes every cached cart. Later Get calls fail.
func (s *Sessions) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	entries := s.entries
	s.entries = make(map[string]*Session)
	s.mu.Unlock()

	var errList []error
	for _, sess := range entries {
		errList = append(errList, closeSession(ctx, sess)...)
	}
	return observability.AggregateErrors("close sessions", errList,
		observability.F("sessions", len(entries)))
}

// closeSession must be called exactly once per session, after it has left
// the registry.
func closeSession(ctx context.Context, sess *Session) []error {
	close(sess.done)
	var errList []error
	if err := sess.Remote.Close(ctx); err != nil {
		errList = append(errList, err)
	}
	if err := sess.Demo.Close(ctx); err != nil {
		errList = append(errList, err)
	}
	return errList
}

func storageKey(base, session string) string {
	return base + ":" + session
}

// sessionID returns the caller's session id, issuing a new cookie when the
// request carries none or an invalid one.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionMaxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
