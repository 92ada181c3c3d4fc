package token

import (
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		tok  Token
	}{
		{"no scopes", Token{ExpiresAt: 1000, AccessToken: "x"}},
		{"no expiry", Token{Scopes: []string{"openid"}, AccessToken: "x"}},
		{"no discriminant", Token{Scopes: []string{"openid"}, ExpiresAt: 1000}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := Validate("k", c.tok); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsWellFormedToken(t *testing.T) {
	tok := Token{Scopes: []string{"openid"}, ExpiresAt: 2000000000, AccessToken: "abc"}
	if err := Validate("k", tok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEffectiveExpiry(t *testing.T) {
	tok := Token{ExpiresAt: 1000}
	got := tok.EffectiveExpiry(30)
	want := int64(1000 - 30)
	if got != want {
		t.Fatalf("EffectiveExpiry() = %d, want %d", got, want)
	}
}

func TestEqualIgnoresExtra(t *testing.T) {
	a := Token{Scopes: []string{"a"}, ExpiresAt: 10, AccessToken: "x"}
	b := a
	b.Extra = map[string]json.RawMessage{"foo": json.RawMessage(`1`)}
	if !a.Equal(b) {
		t.Fatalf("tokens with identical envelope should be Equal regardless of Extra")
	}
}

func TestRoundTripPreservesUnknownFields(t *testing.T) {
	raw := `{"scopes":["openid"],"expiresAt":123,"accessToken":"tok","deviceId":"abc-123"}`
	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(tok.Extra) != 1 {
		t.Fatalf("expected deviceId preserved in Extra, got %v", tok.Extra)
	}

	out, err := json.Marshal(tok)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var roundTripped map[string]any
	if err := json.Unmarshal(out, &roundTripped); err != nil {
		t.Fatalf("unmarshal round trip: %v", err)
	}
	if roundTripped["deviceId"] != "abc-123" {
		t.Fatalf("deviceId not preserved through round trip: %v", roundTripped)
	}
}

func TestDecodeIDTokenClaimsPopulatesFromUnsignedJWT(t *testing.T) {
	claims := jwt.MapClaims{"sub": "user-123", "email": "a@example.com"}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("does-not-matter"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}

	tok := Token{Scopes: []string{"openid"}, ExpiresAt: 1000, IDToken: raw}
	if err := tok.DecodeIDTokenClaims(); err != nil {
		t.Fatalf("DecodeIDTokenClaims: %v", err)
	}

	if tok.Claims["sub"] != "user-123" {
		t.Fatalf("claims[sub] = %v, want user-123", tok.Claims["sub"])
	}
	if tok.Claims["email"] != "a@example.com" {
		t.Fatalf("claims[email] = %v, want a@example.com", tok.Claims["email"])
	}
}

func TestDecodeIDTokenClaimsNoopWithoutIDToken(t *testing.T) {
	tok := Token{Scopes: []string{"openid"}, ExpiresAt: 1000, AccessToken: "abc"}
	if err := tok.DecodeIDTokenClaims(); err != nil {
		t.Fatalf("DecodeIDTokenClaims: %v", err)
	}
	if tok.Claims != nil {
		t.Fatalf("expected Claims to stay nil, got %v", tok.Claims)
	}
}

func TestDecodeIDTokenClaimsRespectsCallerSuppliedClaims(t *testing.T) {
	tok := Token{
		Scopes:    []string{"openid"},
		ExpiresAt: 1000,
		IDToken:   "not-even-a-jwt",
		Claims:    map[string]any{"already": "set"},
	}
	if err := tok.DecodeIDTokenClaims(); err != nil {
		t.Fatalf("DecodeIDTokenClaims: %v", err)
	}
	if tok.Claims["already"] != "set" {
		t.Fatalf("expected caller-supplied Claims to be left alone, got %v", tok.Claims)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	access := Token{Scopes: []string{"openid"}, ExpiresAt: 100, AccessToken: "a"}
	id := Token{Scopes: []string{"openid"}, ExpiresAt: 100, IDToken: "i"}

	b := Bundle{AccessToken: &access, IDToken: &id}
	m := b.ToMap()
	if len(m) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m))
	}

	back := BundleFromMap(m)
	if back.AccessToken == nil || back.AccessToken.AccessToken != "a" {
		t.Fatalf("accessToken not recovered: %+v", back.AccessToken)
	}
	if back.IDToken == nil || back.IDToken.IDToken != "i" {
		t.Fatalf("idToken not recovered: %+v", back.IDToken)
	}
	if back.RefreshToken != nil {
		t.Fatalf("refreshToken should be absent")
	}
}
