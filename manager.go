// Package tokenmanager implements spec.md's client-side OAuth/OIDC token
// manager: a library that persists, retrieves, expires, renews, and
// cross-process-synchronizes access/ID/refresh tokens on behalf of a host
// application. It has no CLI and reads no config files on its own —
// cmd/tokenmanagerdemo is ambient developer tooling built on top of it,
// not part of the library itself.
package tokenmanager

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hatchtoken/tokenmanager/internal/clock"
	"github.com/hatchtoken/tokenmanager/internal/crosstab"
	"github.com/hatchtoken/tokenmanager/internal/eventbus"
	"github.com/hatchtoken/tokenmanager/internal/observability"
	"github.com/hatchtoken/tokenmanager/internal/ratelimit"
	"github.com/hatchtoken/tokenmanager/internal/renew"
	"github.com/hatchtoken/tokenmanager/internal/scheduler"
	"github.com/hatchtoken/tokenmanager/internal/storage"
	"github.com/hatchtoken/tokenmanager/internal/tmerrors"
	"github.com/hatchtoken/tokenmanager/internal/token"
	"github.com/hatchtoken/tokenmanager/internal/tokenstore"
)

// Manager is the TokenManager facade (spec.md §2/§4.8): the single
// object a host application constructs and calls add/get/remove/renew
// against. One goroutine's worth of mutable state, guarded by mu;
// suspension points are context-bound network calls and time.Timer fires
// (spec.md §5, translated from JS's single-threaded event loop).
type Manager struct {
	cfg     Config
	clock   *clock.Clock
	backend storage.Backend
	store   *tokenstore.Store
	bus     eventbus.Bus
	sched   *scheduler.Scheduler
	coord   *renew.Coordinator
	limiter *ratelimit.Limiter
	sync    *crosstab.Synchronizer
	logger  *slog.Logger

	mu        sync.Mutex
	knownKeys map[string]struct{}
	hostURL   string

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
}

// Option customizes Manager construction beyond Config's plain fields.
type Option func(*managerOptions)

type managerOptions struct {
	customBackend  storage.Backend
	client         renew.TokenClient
	bus            eventbus.Bus
	crosstabSource crosstab.Source
	logger         *slog.Logger
}

// WithCustomBackend supplies the storage.Backend used when
// Config.StorageOption is "custom" (spec.md §4.1's caller-supplied
// provider — never auto-selected by the cascade).
func WithCustomBackend(b storage.Backend) Option {
	return func(o *managerOptions) { o.customBackend = b }
}

// WithTokenClient supplies the collaborator renew() delegates to
// (spec.md §6's TokenClient). Required if Config.AutoRenew is set or
// Renew is ever called.
func WithTokenClient(c renew.TokenClient) Option {
	return func(o *managerOptions) { o.client = c }
}

// WithEventBus lets a host application pass in its own bus
// implementation instead of the package's Default (spec.md §9's "binds
// to an existing SDK event bus" design note).
func WithEventBus(b eventbus.Bus) Option {
	return func(o *managerOptions) { o.bus = b }
}

// WithCrossTabSource overrides the notification source the
// CrossTabSynchronizer watches, instead of the default chosen for the
// selected backend type.
func WithCrossTabSource(s crosstab.Source) Option {
	return func(o *managerOptions) { o.crosstabSource = s }
}

// WithLogger overrides the *slog.Logger cascade warnings and internal
// diagnostics are written to.
func WithLogger(l *slog.Logger) Option {
	return func(o *managerOptions) { o.logger = l }
}

// New constructs a Manager: selects a storage backend per cfg (falling
// back through the cascade per spec.md §4.1), loads whatever tokens
// already exist there, arms the ExpirationScheduler against them, and
// starts cross-tab synchronization if configured. ctx governs the
// Manager's background goroutines; cancel it or call Close to tear them
// down.
func New(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &managerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = eventbus.New()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	backend, err := storage.Select(ctx, storage.Option(cfg.StorageOption), storage.Params{
		StateDir:       cfg.StateDir,
		Secure:         cfg.CookieSecure,
		KeyringService: cfg.KeyringService,
		KeyringUser:    cfg.StorageKey,
		Custom:         o.customBackend,
		Warn:           func(msg string) { o.logger.Warn(msg) },
	})
	if err != nil {
		return nil, err
	}

	store := tokenstore.New(backend, cfg.StorageKey)
	c := clock.New(cfg.LocalClockOffsetMillis)
	managerCtx, cancel := context.WithCancel(ctx)
	eg, _ := errgroup.WithContext(managerCtx)

	m := &Manager{
		cfg:       cfg,
		clock:     c,
		backend:   backend,
		store:     store,
		bus:       o.bus,
		limiter:   ratelimit.New(),
		logger:    o.logger,
		knownKeys: map[string]struct{}{},
		ctx:       managerCtx,
		cancel:    cancel,
		eg:        eg,
	}
	m.sched = scheduler.New(c, m.onExpired)

	if o.client != nil {
		m.coord = renew.New(store, o.bus, o.client, c, cfg.ExpireEarlySeconds)
	}

	initial, err := store.Load(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("tokenmanager: loading initial state: %w", err)
	}
	for key, t := range initial {
		m.knownKeys[key] = struct{}{}
		m.sched.Arm(key, t.EffectiveExpiry(cfg.ExpireEarlySeconds))
	}

	if cfg.CrossTabSync {
		source := o.crosstabSource
		if source == nil {
			source = defaultCrossTabSource(backend)
		}
		if source != nil {
			eventDelay := time.Duration(cfg.StorageEventDelayMillis) * time.Millisecond
			m.sync = crosstab.New(store, o.bus, m.sched, c, cfg.ExpireEarlySeconds, eventDelay, source)
			if err := m.sync.Start(managerCtx); err != nil {
				cancel()
				return nil, fmt.Errorf("tokenmanager: starting cross-tab sync: %w", err)
			}
		}
	}

	return m, nil
}

func defaultCrossTabSource(backend storage.Backend) crosstab.Source {
	switch b := backend.(type) {
	case *storage.Memory:
		return crosstab.NewMemorySource(b)
	case *storage.File:
		return crosstab.NewFileSource(b.Path())
	case *storage.Redis:
		return crosstab.NewRedisSource(b)
	default:
		return nil
	}
}

// Add stores t under key, validating it first (spec.md §4.8 "add"
// invariant 1), decoding any idToken's claims if the caller didn't supply
// its own, and arms its expiration timer.
func (m *Manager) Add(ctx context.Context, key string, t token.Token) error {
	if err := token.Validate(key, t); err != nil {
		return err
	}
	if err := t.DecodeIDTokenClaims(); err != nil {
		m.logger.Warn("tokenmanager: idToken claims decoding failed", "key", key, "error", err)
	}
	if err := m.store.SetOne(ctx, key, t); err != nil {
		return err
	}

	m.mu.Lock()
	m.knownKeys[key] = struct{}{}
	m.mu.Unlock()
	m.sched.Arm(key, t.EffectiveExpiry(m.cfg.ExpireEarlySeconds))
	m.bus.Emit("added", key, t)
	return nil
}

// SetHostURL records the URL the host application is currently serving,
// the Go analogue of a single-page app's window.location. Get consults
// it (only when Config.PKCEEnabled) to detect an in-progress OAuth
// callback; a host with no notion of "current URL" never needs to call
// this.
func (m *Manager) SetHostURL(rawURL string) {
	m.mu.Lock()
	m.hostURL = rawURL
	m.mu.Unlock()
}

// Get returns the token stored under key. A token that exists but is
// past its effective expiry is treated as absent (spec.md §4.8 "get"
// invariant 2 — an expired token is never handed back silently). When
// PKCEEnabled is set, Get first refuses with CallbackInProgress if the
// most recently recorded host URL (spec.md §4.8's "host URL") carries a
// "code" query parameter, matching an in-progress OAuth redirect.
func (m *Manager) Get(ctx context.Context, key string) (token.Token, bool, error) {
	if m.cfg.PKCEEnabled {
		m.mu.Lock()
		hostURL := m.hostURL
		m.mu.Unlock()
		if callbackInProgress(hostURL) {
			return token.Token{}, false, &tmerrors.CallbackInProgress{}
		}
	}

	t, ok, err := m.store.GetOne(ctx, key)
	if err != nil || !ok {
		return token.Token{}, false, err
	}
	if m.isExpired(t) {
		return token.Token{}, false, nil
	}
	return t, true, nil
}

// callbackInProgress reports whether rawURL carries a "code" query
// parameter, the signal spec.md §4.8 uses to detect a mid-flight OAuth
// redirect.
func callbackInProgress(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Has("code")
}

// Remove deletes the token stored under key and cancels its expiration
// timer, emitting "removed" if a token was actually present.
func (m *Manager) Remove(ctx context.Context, key string) error {
	m.sched.Cancel(key)

	old, existed, err := m.store.GetOne(ctx, key)
	if err != nil {
		return err
	}
	if err := m.store.DeleteOne(ctx, key); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.knownKeys, key)
	m.mu.Unlock()

	if existed {
		m.bus.Emit("removed", key, old)
	}
	return nil
}

// Clear removes every stored token and cancels every timer, matching
// localStorage.clear()'s same-tab silence: no per-key events fire.
func (m *Manager) Clear(ctx context.Context) error {
	m.sched.CancelAll()
	if err := m.store.ClearAll(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.knownKeys = map[string]struct{}{}
	m.mu.Unlock()
	return nil
}

// GetTokens returns the key-agnostic projection of every stored,
// unexpired token (spec.md §4.8 "getTokens").
func (m *Manager) GetTokens(ctx context.Context) (token.Bundle, error) {
	all, err := m.loadKnown(ctx)
	if err != nil {
		return token.Bundle{}, err
	}
	unexpired := map[string]token.Token{}
	for key, t := range all {
		if !m.isExpired(t) {
			unexpired[key] = t
		}
	}
	return token.BundleFromMap(unexpired), nil
}

// SetTokens overwrites the stored set with exactly b's entries in one
// logical operation (spec.md §4.8 "setTokens": "a single backend write"
// for blob backends), diffing against the prior known set to emit
// added/removed and re-arming every timer.
func (m *Manager) SetTokens(ctx context.Context, b token.Bundle) error {
	next := b.ToMap()
	for key, t := range next {
		if err := token.Validate(key, t); err != nil {
			return err
		}
	}

	prior, err := m.loadKnown(ctx)
	if err != nil {
		return err
	}

	if m.backend.Keyed() {
		for key := range prior {
			if _, keep := next[key]; !keep {
				if err := m.store.DeleteOne(ctx, key); err != nil {
					return err
				}
			}
		}
		for key, t := range next {
			if err := m.store.SetOne(ctx, key, t); err != nil {
				return err
			}
		}
	} else if err := m.store.WriteBundle(ctx, next); err != nil {
		return err
	}

	m.mu.Lock()
	m.knownKeys = map[string]struct{}{}
	for key := range next {
		m.knownKeys[key] = struct{}{}
	}
	m.mu.Unlock()

	m.sched.CancelAll()
	for key, t := range next {
		m.sched.Arm(key, t.EffectiveExpiry(m.cfg.ExpireEarlySeconds))
	}

	diffEmit(m.bus, prior, next)
	return nil
}

// Renew renews key via the configured TokenClient, deduplicating
// concurrent callers (spec.md §4.5), then re-arms its expiration timer.
func (m *Manager) Renew(ctx context.Context, key string) (token.Token, error) {
	if m.coord == nil {
		return token.Token{}, fmt.Errorf("tokenmanager: no TokenClient configured, pass WithTokenClient")
	}
	if _, existed, err := m.store.GetOne(ctx, key); err != nil {
		return token.Token{}, err
	} else if !existed {
		return token.Token{}, &tmerrors.NoTokenForKey{Key: key}
	}

	start := m.clock.Now()
	t, err := m.coord.Renew(ctx, key)
	observability.RenewDuration.Observe(m.clock.Now().Sub(start).Seconds())
	if err != nil {
		observability.RenewalsTotal.WithLabelValues("failure").Inc()
		return token.Token{}, err
	}
	observability.RenewalsTotal.WithLabelValues("success").Inc()

	m.mu.Lock()
	m.knownKeys[key] = struct{}{}
	m.mu.Unlock()
	m.sched.Arm(key, t.EffectiveExpiry(m.cfg.ExpireEarlySeconds))
	return t, nil
}

// HasExpired reports whether key's stored token is past its effective
// expiry, or true if no token is stored at all.
func (m *Manager) HasExpired(ctx context.Context, key string) (bool, error) {
	t, ok, err := m.store.GetOne(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return m.isExpired(t), nil
}

// On subscribes handler to event (spec.md §9's design note on exposing
// the same bus an enclosing SDK already has).
func (m *Manager) On(event string, handler eventbus.Handler) {
	m.bus.On(event, handler)
}

// Off unsubscribes handler from event. A nil handler clears every
// subscriber of event.
func (m *Manager) Off(event string, handler eventbus.Handler) {
	m.bus.Off(event, handler)
}

// Close tears the Manager down (spec.md §5's "Facade destruction"):
// cancels every scheduler timer, stops cross-tab watching, cancels the
// Manager's background context, and waits for any in-flight
// auto-renewal goroutines to finish.
func (m *Manager) Close(ctx context.Context) error {
	m.sched.CancelAll()
	if m.sync != nil {
		_ = m.sync.Close()
	}
	m.cancel()
	return m.eg.Wait()
}

func (m *Manager) isExpired(t token.Token) bool {
	return t.EffectiveExpiry(m.cfg.ExpireEarlySeconds) <= m.clock.Unix()
}

// loadKnown returns every token this process currently knows about. For
// keyed backends (cookies) this is necessarily limited to knownKeys — the
// backend itself exposes no enumeration primitive (the same documented
// limitation tokenstore.Load carries). knownKeys is filled only by Add,
// Renew, SetTokens and the initial load in New; Get does not add to it,
// and the CrossTabSynchronizer does not feed it. A key this process never
// wrote through one of those calls is not seen here.
func (m *Manager) loadKnown(ctx context.Context) (map[string]token.Token, error) {
	if !m.backend.Keyed() {
		return m.store.Load(ctx)
	}

	m.mu.Lock()
	keys := make([]string, 0, len(m.knownKeys))
	for k := range m.knownKeys {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	out := map[string]token.Token{}
	for _, key := range keys {
		t, ok, err := m.store.GetOne(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = t
		}
	}
	return out, nil
}

// onExpired is the ExpirationScheduler's fire callback. It always
// publishes "expired" first, then follows spec.md §2's three-way branch:
// AutoRenew (if a TokenClient is configured) asks the rate limiter
// whether this expired-driven attempt may proceed and, if so, renews key
// on a supervised background goroutine; otherwise AutoRemove (default
// true, spec.md §3) deletes the expired token so it stops being handed
// back by Get/GetTokens; if neither applies, "expired" was the only
// observable effect.
func (m *Manager) onExpired(key string) {
	observability.ExpiredTotal.WithLabelValues(key).Inc()
	m.bus.Emit("expired", key)

	if m.cfg.AutoRenew && m.coord != nil {
		allowed, tripped := m.limiter.Attempt(m.clock.Now())
		if tripped {
			observability.RateLimitedTotal.Inc()
			m.bus.Emit("error", &tmerrors.TooManyRenewRequests{
				WindowEvents: ratelimit.WindowSize,
				Span:         ratelimit.MinSpan.String(),
			})
			return
		}
		if !allowed {
			return
		}

		m.eg.Go(func() error {
			_, err := m.Renew(m.ctx, key)
			return err
		})
		return
	}

	if m.cfg.AutoRemove != nil && *m.cfg.AutoRemove {
		if err := m.Remove(m.ctx, key); err != nil {
			m.bus.Emit("error", err)
		}
	}
}

// diffEmit emits "added" for every key in next that's new or changed
// relative to prior, and "removed" for every key in prior that's gone
// from next.
func diffEmit(bus eventbus.Bus, prior, next map[string]token.Token) {
	for key, t := range next {
		if old, existed := prior[key]; !existed || !old.Equal(t) {
			bus.Emit("added", key, t)
		}
	}
	for key, t := range prior {
		if _, stillThere := next[key]; !stillThere {
			bus.Emit("removed", key, t)
		}
	}
}
