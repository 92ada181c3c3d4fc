// Package renew implements spec.md §4.5's RenewCoordinator: single-flight
// deduplication of concurrent renew() calls for the same tokenKey, and the
// store/event choreography that follows a renewal's success or failure.
package renew

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/hatchtoken/tokenmanager/internal/clock"
	"github.com/hatchtoken/tokenmanager/internal/eventbus"
	"github.com/hatchtoken/tokenmanager/internal/tmerrors"
	"github.com/hatchtoken/tokenmanager/internal/token"
	"github.com/hatchtoken/tokenmanager/internal/tokenstore"
)

// TokenClient is the collaborator that actually talks to the identity
// provider. oauthclient.Client is the concrete implementation used in
// production; tests supply fakes.
type TokenClient interface {
	Renew(ctx context.Context, key string) (token.Token, error)
}

// Coordinator deduplicates overlapping renew(key) calls via singleflight:
// callers that arrive while a renewal for key is already in flight share
// its result; a renewal that fails clears its pending entry immediately,
// so the very next call starts a fresh attempt rather than replaying the
// failure (spec.md §4.5 invariant 2).
type Coordinator struct {
	sf                 singleflight.Group
	store              *tokenstore.Store
	bus                eventbus.Bus
	client             TokenClient
	clock              *clock.Clock
	expireEarlySeconds int
}

// New creates a Coordinator. expireEarlySeconds feeds Token.EffectiveExpiry
// when deciding whether a stored token is past its effective expiry for the
// failure-triggered removal path (spec.md §4.5 invariant 3).
func New(store *tokenstore.Store, bus eventbus.Bus, client TokenClient, c *clock.Clock, expireEarlySeconds int) *Coordinator {
	return &Coordinator{
		store:              store,
		bus:                bus,
		client:             client,
		clock:              c,
		expireEarlySeconds: expireEarlySeconds,
	}
}

// Renew renews key, deduplicating concurrent callers. On success it emits
// "renewed", "added", and (if a prior token existed) "removed", in that
// order. On failure it emits "error" with the tagged cause and, if the
// currently stored token (if any) is already past its effective expiry,
// removes it and emits "removed" first.
func (c *Coordinator) Renew(ctx context.Context, key string) (token.Token, error) {
	v, err, _ := c.sf.Do(key, func() (any, error) {
		return c.doRenew(ctx, key)
	})
	if err != nil {
		return token.Token{}, err
	}
	return v.(token.Token), nil
}

func (c *Coordinator) doRenew(ctx context.Context, key string) (token.Token, error) {
	newTok, err := c.client.Renew(ctx, key)
	if err != nil {
		return token.Token{}, c.handleFailure(ctx, key, err)
	}

	if verr := token.Validate(key, newTok); verr != nil {
		return token.Token{}, c.handleFailure(ctx, key, verr)
	}

	old, hadOld, err := c.store.GetOne(ctx, key)
	if err != nil {
		return token.Token{}, fmt.Errorf("renew: reading prior token for %q: %w", key, err)
	}

	if err := c.store.SetOne(ctx, key, newTok); err != nil {
		return token.Token{}, fmt.Errorf("renew: storing renewed token for %q: %w", key, err)
	}

	c.bus.Emit("renewed", key, newTok)
	c.bus.Emit("added", key, newTok)
	if hadOld {
		c.bus.Emit("removed", key, old)
	}

	return newTok, nil
}

func (c *Coordinator) handleFailure(ctx context.Context, key string, cause error) error {
	tagged := tmerrors.WithTokenKey(cause, key)

	if old, hadOld, storeErr := c.store.GetOne(ctx, key); storeErr == nil && hadOld && c.isExpired(old) {
		if delErr := c.store.DeleteOne(ctx, key); delErr == nil {
			c.bus.Emit("removed", key, old)
		}
	}

	c.bus.Emit("error", tagged)
	return tagged
}

func (c *Coordinator) isExpired(t token.Token) bool {
	return t.EffectiveExpiry(c.expireEarlySeconds) <= c.clock.Unix()
}
