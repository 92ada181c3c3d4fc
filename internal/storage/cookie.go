package storage

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// cookieFarFuture matches spec.md §4.1's far-future absolute expiry for
// cookie-backed records.
var cookieFarFuture = time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)

// Cookie is a keyed backend storing one record per token, the server-side
// analogue of the browser cookie jar spec.md §4.1/§6 describe: one cookie
// per tokenKey named "<storageKey>_<tokenKey>", far-future expiry,
// sameSite=None + Secure on HTTPS origins. Cookie attribute string
// formatting itself is explicitly out of this repository's scope
// (spec.md §1) — that's net/http.Cookie's job here, not ours.
type Cookie struct {
	mu      sync.RWMutex
	jar     map[string]string
	secure  bool
	path    string
}

var _ Backend = (*Cookie)(nil)

// NewCookie creates an empty Cookie backend. secure should be true when
// the serving origin is HTTPS, matching spec.md §3's "secure" default
// derived from window origin.
func NewCookie(secure bool) *Cookie {
	return &Cookie{
		jar:    map[string]string{},
		secure: secure,
		path:   "/",
	}
}

func (c *Cookie) Name() string { return "cookie" }
func (c *Cookie) Keyed() bool  { return true }

func (c *Cookie) GetItem(_ context.Context, subkey string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.jar[subkey]
	return v, ok, nil
}

func (c *Cookie) SetItem(_ context.Context, subkey string, value string) error {
	c.mu.Lock()
	c.jar[subkey] = value
	c.mu.Unlock()
	return nil
}

func (c *Cookie) RemoveItem(_ context.Context, subkey string) error {
	c.mu.Lock()
	delete(c.jar, subkey)
	c.mu.Unlock()
	return nil
}

func (c *Cookie) Clear(_ context.Context) error {
	c.mu.Lock()
	c.jar = map[string]string{}
	c.mu.Unlock()
	return nil
}

// LoadFromRequest hydrates the jar from an incoming HTTP request's
// cookies whose name starts with prefix+"_", stripping the prefix to
// recover the tokenKey. Call this once per request before the facade
// reads tokens, to make the cookie backend behave like a browser reading
// its own document.cookie.
func (c *Cookie) LoadFromRequest(r *http.Request, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := prefix + "_"
	for _, ck := range r.Cookies() {
		if len(ck.Name) > len(want) && ck.Name[:len(want)] == want {
			c.jar[ck.Name[len(want):]] = ck.Value
		}
	}
}

// Flush writes every record in the jar as a Set-Cookie header on w,
// using the far-future expiry and secure/sameSite attributes spec.md §6
// specifies for cookie storage.
func (c *Cookie) Flush(w http.ResponseWriter, prefix string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sameSite := http.SameSiteLaxMode
	if c.secure {
		sameSite = http.SameSiteNoneMode
	}
	for key, value := range c.jar {
		http.SetCookie(w, &http.Cookie{
			Name:     prefix + "_" + key,
			Value:    value,
			Path:     c.path,
			Expires:  cookieFarFuture,
			Secure:   c.secure,
			SameSite: sameSite,
		})
	}
}
