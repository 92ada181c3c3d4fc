package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCookieGetSetRemove(t *testing.T) {
	ctx := context.Background()
	c := NewCookie(true)

	if _, ok, _ := c.GetItem(ctx, "accessToken"); ok {
		t.Fatal("expected absent before first write")
	}

	if err := c.SetItem(ctx, "accessToken", "abc"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	v, ok, err := c.GetItem(ctx, "accessToken")
	if err != nil || !ok || v != "abc" {
		t.Fatalf("GetItem() = (%q, %v, %v)", v, ok, err)
	}

	if err := c.RemoveItem(ctx, "accessToken"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if _, ok, _ := c.GetItem(ctx, "accessToken"); ok {
		t.Fatal("expected absent after RemoveItem")
	}
}

func TestCookieIsKeyed(t *testing.T) {
	if !NewCookie(false).Keyed() {
		t.Fatal("cookie backend should report Keyed() == true")
	}
}

func TestCookieLoadFromRequestRecoversTokenKey(t *testing.T) {
	ctx := context.Background()
	c := NewCookie(true)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "tokenmanager_accessToken", Value: "from-request"})
	req.AddCookie(&http.Cookie{Name: "unrelated_cookie", Value: "ignored"})

	c.LoadFromRequest(req, "tokenmanager")

	v, ok, err := c.GetItem(ctx, "accessToken")
	if err != nil || !ok || v != "from-request" {
		t.Fatalf("GetItem() = (%q, %v, %v)", v, ok, err)
	}
	if _, ok, _ := c.GetItem(ctx, "unrelated_cookie"); ok {
		t.Fatal("cookie without the prefix should not have been loaded")
	}
}

func TestCookieFlushWritesSetCookieHeaders(t *testing.T) {
	c := NewCookie(true)
	if err := c.SetItem(context.Background(), "refreshToken", "rt-value"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}

	rec := httptest.NewRecorder()
	c.Flush(rec, "tokenmanager")

	resp := rec.Result()
	cookies := resp.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d Set-Cookie headers, want 1", len(cookies))
	}
	got := cookies[0]
	if got.Name != "tokenmanager_refreshToken" || got.Value != "rt-value" {
		t.Fatalf("cookie = %+v", got)
	}
	if !got.Secure || got.SameSite != http.SameSiteNoneMode {
		t.Fatalf("expected secure/SameSite=None on an HTTPS-origin cookie, got %+v", got)
	}
}

func TestCookieClearEmptiesJar(t *testing.T) {
	ctx := context.Background()
	c := NewCookie(false)
	_ = c.SetItem(ctx, "a", "1")
	_ = c.SetItem(ctx, "b", "2")

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := c.GetItem(ctx, "a"); ok {
		t.Fatal("expected a absent after Clear")
	}
	if _, ok, _ := c.GetItem(ctx, "b"); ok {
		t.Fatal("expected b absent after Clear")
	}
}
