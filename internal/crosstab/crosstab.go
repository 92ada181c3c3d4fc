package crosstab

import (
	"context"
	"sync"
	"time"

	"github.com/hatchtoken/tokenmanager/internal/clock"
	"github.com/hatchtoken/tokenmanager/internal/eventbus"
	"github.com/hatchtoken/tokenmanager/internal/scheduler"
	"github.com/hatchtoken/tokenmanager/internal/token"
	"github.com/hatchtoken/tokenmanager/internal/tokenstore"
)

// Synchronizer reconciles this process's view of the token map with what
// a Source reports other processes have written, emitting "added" and
// "removed" for every key whose presence or value changed and re-arming
// the ExpirationScheduler against the reconciled set (spec.md §4.7).
type Synchronizer struct {
	store              *tokenstore.Store
	bus                eventbus.Bus
	sched              *scheduler.Scheduler
	clock              *clock.Clock
	expireEarlySeconds int
	eventDelay         time.Duration
	source             Source

	mu    sync.Mutex
	known map[string]token.Token
}

// New creates a Synchronizer. It does not start watching until Start is
// called. eventDelay is spec.md §3's `_storageEventDelay`: how long to
// wait, after a signal from source, before reloading and diffing — giving
// a lagging storage medium time to make its write visible to readers.
func New(store *tokenstore.Store, bus eventbus.Bus, sched *scheduler.Scheduler, c *clock.Clock, expireEarlySeconds int, eventDelay time.Duration, source Source) *Synchronizer {
	return &Synchronizer{
		store:              store,
		bus:                bus,
		sched:              sched,
		clock:              c,
		expireEarlySeconds: expireEarlySeconds,
		eventDelay:         eventDelay,
		source:             source,
		known:              map[string]token.Token{},
	}
}

// Start loads the current token map as this process's baseline, arms the
// scheduler against it, and begins watching source for changes made by
// other processes. ctx governs the watch goroutine's lifetime; cancel it
// (or call Close) to stop watching.
func (s *Synchronizer) Start(ctx context.Context) error {
	initial, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.known = initial
	s.mu.Unlock()
	s.rearmAll(initial)

	sig, err := s.source.Start(ctx)
	if err != nil {
		return err
	}
	go s.loop(ctx, sig)
	return nil
}

func (s *Synchronizer) loop(ctx context.Context, sig <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sig:
			if !ok {
				return
			}
			if s.eventDelay > 0 {
				select {
				case <-time.After(s.eventDelay):
				case <-ctx.Done():
					return
				}
			}
			s.reload(ctx)
		}
	}
}

// reload re-reads the backend, diffs it against this process's last known
// state, and emits added/removed for the difference. A latest map with a
// key absent that was previously present is a removal; a key present with
// no prior entry, or a changed value, is an addition — this also covers
// the "other process cleared everything" case, which surfaces here as
// every previously known key disappearing from latest.
func (s *Synchronizer) reload(ctx context.Context) {
	latest, err := s.store.Load(ctx)
	if err != nil {
		s.bus.Emit("error", err)
		return
	}

	s.mu.Lock()
	prior := s.known
	s.known = latest
	s.mu.Unlock()

	for key, newTok := range latest {
		if oldTok, existed := prior[key]; !existed || !oldTok.Equal(newTok) {
			s.bus.Emit("added", key, newTok)
		}
	}
	for key, oldTok := range prior {
		if _, stillPresent := latest[key]; !stillPresent {
			s.bus.Emit("removed", key, oldTok)
		}
	}

	s.rearmAll(latest)
}

func (s *Synchronizer) rearmAll(m map[string]token.Token) {
	s.sched.CancelAll()
	for key, t := range m {
		s.sched.Arm(key, t.EffectiveExpiry(s.expireEarlySeconds))
	}
}

// Known returns a snapshot of this process's current view of the token
// map, for tests and for the facade's own bookkeeping.
func (s *Synchronizer) Known() map[string]token.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]token.Token, len(s.known))
	for k, v := range s.known {
		out[k] = v
	}
	return out
}

// Close stops watching the underlying source.
func (s *Synchronizer) Close() error {
	return s.source.Close()
}
