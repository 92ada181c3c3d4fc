package renew

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hatchtoken/tokenmanager/internal/clock"
	"github.com/hatchtoken/tokenmanager/internal/eventbus"
	"github.com/hatchtoken/tokenmanager/internal/storage"
	"github.com/hatchtoken/tokenmanager/internal/tmerrors"
	"github.com/hatchtoken/tokenmanager/internal/token"
	"github.com/hatchtoken/tokenmanager/internal/tokenstore"
)

type fakeClient struct {
	mu       sync.Mutex
	calls    int32
	gate     chan struct{} // if non-nil, Renew blocks until closed
	tok      token.Token
	err      error
	perCall  func(call int32) (token.Token, error)
}

func (f *fakeClient) Renew(ctx context.Context, key string) (token.Token, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	if f.perCall != nil {
		return f.perCall(n)
	}
	return f.tok, f.err
}

func newHarness(client TokenClient) (*Coordinator, *tokenstore.Store, eventbus.Bus) {
	backend := storage.NewMemory()
	store := tokenstore.New(backend, "tm")
	bus := eventbus.New()
	c := clock.New(0)
	return New(store, bus, client, c, 0), store, bus
}

func validToken(expiresAt int64) token.Token {
	return token.Token{Scopes: []string{"a"}, ExpiresAt: expiresAt, AccessToken: "tok"}
}

func TestRenewSuccessEmitsRenewedThenAdded(t *testing.T) {
	client := &fakeClient{tok: validToken(1000)}
	coord, store, bus := newHarness(client)

	var events []string
	bus.On("renewed", func(args ...any) { events = append(events, "renewed") })
	bus.On("added", func(args ...any) { events = append(events, "added") })
	bus.On("removed", func(args ...any) { events = append(events, "removed") })

	got, err := coord.Renew(context.Background(), "access")
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if got.AccessToken != "tok" {
		t.Fatalf("got = %+v", got)
	}

	stored, ok, err := store.GetOne(context.Background(), "access")
	if err != nil || !ok || stored.AccessToken != "tok" {
		t.Fatalf("store state = %+v, %v, %v", stored, ok, err)
	}

	if len(events) != 2 || events[0] != "renewed" || events[1] != "added" {
		t.Fatalf("events = %v, want [renewed added] (no prior token)", events)
	}
}

func TestRenewSuccessWithPriorTokenEmitsRemovedLast(t *testing.T) {
	client := &fakeClient{tok: validToken(2000)}
	coord, store, bus := newHarness(client)
	store.SetOne(context.Background(), "access", validToken(1000))

	var events []string
	bus.On("renewed", func(args ...any) { events = append(events, "renewed") })
	bus.On("added", func(args ...any) { events = append(events, "added") })
	bus.On("removed", func(args ...any) { events = append(events, "removed") })

	if _, err := coord.Renew(context.Background(), "access"); err != nil {
		t.Fatalf("Renew: %v", err)
	}

	want := []string{"renewed", "added", "removed"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestConcurrentRenewCallsShareOneClientCall(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{tok: validToken(1000), gate: gate}
	coord, _, _ := newHarness(client)

	const n = 5
	var wg sync.WaitGroup
	results := make([]token.Token, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Renew(context.Background(), "access")
		}(i)
	}

	time.Sleep(20 * time.Millisecond) // let all goroutines enter singleflight.Do
	close(gate)
	wg.Wait()

	if atomic.LoadInt32(&client.calls) != 1 {
		t.Fatalf("client.calls = %d, want 1", client.calls)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil || results[i].AccessToken != "tok" {
			t.Fatalf("call %d: result=%+v err=%v", i, results[i], errs[i])
		}
	}
}

func TestSequentialCallsAfterFailureRetryIndependently(t *testing.T) {
	boom := errors.New("boom")
	callCount := int32(0)
	client := &fakeClient{perCall: func(n int32) (token.Token, error) {
		atomic.StoreInt32(&callCount, n)
		if n == 1 {
			return token.Token{}, boom
		}
		return validToken(1000), nil
	}}
	coord, _, _ := newHarness(client)

	if _, err := coord.Renew(context.Background(), "access"); err == nil {
		t.Fatal("expected first call to fail")
	}
	got, err := coord.Renew(context.Background(), "access")
	if err != nil {
		t.Fatalf("second Renew: %v", err)
	}
	if got.AccessToken != "tok" {
		t.Fatalf("got = %+v", got)
	}
	if callCount != 2 {
		t.Fatalf("callCount = %d, want 2 (no replay of the cleared failure)", callCount)
	}
}

func TestFailureTagsErrorWithTokenKey(t *testing.T) {
	client := &fakeClient{err: &tmerrors.OAuthError{ErrorCode: "invalid_grant", ErrorSummary: "refresh token revoked"}}
	coord, _, bus := newHarness(client)

	var emitted error
	bus.On("error", func(args ...any) { emitted = args[0].(error) })

	_, err := coord.Renew(context.Background(), "refresh")
	if err == nil {
		t.Fatal("expected error")
	}
	oauthErr, ok := err.(*tmerrors.OAuthError)
	if !ok || oauthErr.TokenKey != "refresh" {
		t.Fatalf("err = %#v, want tagged OAuthError", err)
	}
	if emitted == nil {
		t.Fatal("expected error event emission")
	}
}

func TestFailureRemovesAlreadyExpiredStoredToken(t *testing.T) {
	client := &fakeClient{err: errors.New("renewal failed")}
	coord, store, bus := newHarness(client)
	store.SetOne(context.Background(), "access", validToken(-1000)) // already expired

	var removedKey string
	bus.On("removed", func(args ...any) { removedKey = args[0].(string) })

	if _, err := coord.Renew(context.Background(), "access"); err == nil {
		t.Fatal("expected error")
	}

	if removedKey != "access" {
		t.Fatalf("removedKey = %q, want access", removedKey)
	}
	if _, ok, _ := store.GetOne(context.Background(), "access"); ok {
		t.Fatal("expected expired token to be removed from the store")
	}
}

func TestFailureLeavesUnexpiredStoredTokenAlone(t *testing.T) {
	client := &fakeClient{err: errors.New("renewal failed")}
	coord, store, bus := newHarness(client)
	store.SetOne(context.Background(), "access", validToken(9_999_999_999)) // far future

	removed := false
	bus.On("removed", func(args ...any) { removed = true })

	if _, err := coord.Renew(context.Background(), "access"); err == nil {
		t.Fatal("expected error")
	}

	if removed {
		t.Fatal("did not expect a removal for a still-valid stored token")
	}
	if _, ok, _ := store.GetOne(context.Background(), "access"); !ok {
		t.Fatal("expected unexpired token to remain stored")
	}
}
