// Package token defines the token manager's core data model (spec.md §3):
// the Token envelope, the key-agnostic Bundle projection used by
// getTokens/setTokens, and shape validation at the facade boundary.
package token

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hatchtoken/tokenmanager/internal/tmerrors"
)

var claimsParser = jwt.NewParser()

var validate = validator.New()

// Token is a tagged variant carrying exactly one of IDToken, AccessToken,
// or RefreshToken, plus a shared envelope of Scopes and ExpiresAt. Unknown
// fields encountered on read-modify-write (spec.md §6) are preserved in
// Extra.
type Token struct {
	Scopes      []string       `json:"scopes" validate:"required,min=1"`
	ExpiresAt   int64          `json:"expiresAt" validate:"required"`
	IDToken     string         `json:"idToken,omitempty"`
	AccessToken string         `json:"accessToken,omitempty"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	Claims      map[string]any `json:"claims,omitempty"`

	// Extra holds fields present on the wire that this type doesn't know
	// about, so a read-modify-write round trip doesn't silently drop
	// them (spec.md §6 "Unknown fields on tokens must be preserved").
	Extra map[string]json.RawMessage `json:"-"`
}

// Discriminant returns the name of the token field that is populated
// ("idToken", "accessToken", or "refreshToken"), or "" if none is.
func (t Token) Discriminant() string {
	switch {
	case t.IDToken != "":
		return "idToken"
	case t.AccessToken != "":
		return "accessToken"
	case t.RefreshToken != "":
		return "refreshToken"
	default:
		return ""
	}
}

// Equal reports whether two tokens are identical for the purposes of the
// idempotent-emission invariant (spec.md §3 invariant 5): same
// discriminant value, expiry, and scopes.
func (t Token) Equal(other Token) bool {
	if t.ExpiresAt != other.ExpiresAt {
		return false
	}
	if t.IDToken != other.IDToken || t.AccessToken != other.AccessToken || t.RefreshToken != other.RefreshToken {
		return false
	}
	if len(t.Scopes) != len(other.Scopes) {
		return false
	}
	for i := range t.Scopes {
		if t.Scopes[i] != other.Scopes[i] {
			return false
		}
	}
	return true
}

// Validate rejects tokens missing scopes, expiresAt, or all three token
// fields (spec.md §3 invariant 1). key is included in the returned error
// for diagnostics.
func Validate(key string, t Token) error {
	if err := validate.Struct(t); err != nil {
		return &tmerrors.InvalidToken{Key: key, Reason: err.Error()}
	}
	if t.Discriminant() == "" {
		return &tmerrors.InvalidToken{Key: key, Reason: "missing idToken, accessToken, and refreshToken"}
	}
	return nil
}

// MarshalJSON emits the envelope fields plus any preserved Extra fields,
// flattened into a single object.
func (t Token) MarshalJSON() ([]byte, error) {
	type alias struct {
		Scopes       []string       `json:"scopes"`
		ExpiresAt    int64          `json:"expiresAt"`
		IDToken      string         `json:"idToken,omitempty"`
		AccessToken  string         `json:"accessToken,omitempty"`
		RefreshToken string         `json:"refreshToken,omitempty"`
		Claims       map[string]any `json:"claims,omitempty"`
	}
	base, err := json.Marshal(alias{
		Scopes:       t.Scopes,
		ExpiresAt:    t.ExpiresAt,
		IDToken:      t.IDToken,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Claims:       t.Claims,
	})
	if err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return base, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range t.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON populates the envelope fields and stashes every other key
// into Extra so it survives a later read-modify-write.
func (t *Token) UnmarshalJSON(data []byte) error {
	type alias struct {
		Scopes       []string       `json:"scopes"`
		ExpiresAt    int64          `json:"expiresAt"`
		IDToken      string         `json:"idToken,omitempty"`
		AccessToken  string         `json:"accessToken,omitempty"`
		RefreshToken string         `json:"refreshToken,omitempty"`
		Claims       map[string]any `json:"claims,omitempty"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("token: %w", err)
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	for _, known := range []string{"scopes", "expiresAt", "idToken", "accessToken", "refreshToken", "claims"} {
		delete(raw, known)
	}

	t.Scopes = a.Scopes
	t.ExpiresAt = a.ExpiresAt
	t.IDToken = a.IDToken
	t.AccessToken = a.AccessToken
	t.RefreshToken = a.RefreshToken
	t.Claims = a.Claims
	if len(raw) > 0 {
		t.Extra = raw
	}
	return nil
}

// DecodeIDTokenClaims populates Claims from IDToken's payload when IDToken
// is set and Claims hasn't already been supplied by the caller. It parses
// the JWT without verifying its signature — signature verification is an
// explicit Non-goal (spec.md §3's "Claims decoding") — so a forged or
// expired idToken decodes just as readily as a genuine one; callers must
// not treat a populated Claims map as proof of authenticity.
func (t *Token) DecodeIDTokenClaims() error {
	if t.IDToken == "" || t.Claims != nil {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := claimsParser.ParseUnverified(t.IDToken, claims); err != nil {
		return fmt.Errorf("token: decoding idToken claims: %w", err)
	}
	t.Claims = claims
	return nil
}

// EffectiveExpiry returns expiresAt adjusted for early-expiry policy
// (spec.md §3 invariant 3):
//
//	expiresAt_effective = expiresAt - expireEarlySeconds
//
// Clock skew is deliberately not subtracted here: callers compare the
// result against a clock.Clock's Now()/Unix(), which already adds the
// configured local/server offset (clock.Clock.Now's doc comment).
// Subtracting the offset again here as well as there would apply it
// twice.
func (t Token) EffectiveExpiry(expireEarlySeconds int) int64 {
	return t.ExpiresAt - int64(expireEarlySeconds)
}

// Bundle is the key-agnostic projection returned by getTokens and
// accepted by setTokens (spec.md §4.8).
type Bundle struct {
	IDToken      *Token
	AccessToken  *Token
	RefreshToken *Token
}

// BundleFromMap selects, from an arbitrary key->Token mapping, one token
// per discriminant by presence of that discriminant field. When more than
// one stored token shares a discriminant, the last one encountered in
// map-iteration order wins — callers that care about determinism should
// use setTokens' explicit bundle instead.
func BundleFromMap(m map[string]Token) Bundle {
	var b Bundle
	for _, t := range m {
		switch t.Discriminant() {
		case "idToken":
			tc := t
			b.IDToken = &tc
		case "accessToken":
			tc := t
			b.AccessToken = &tc
		case "refreshToken":
			tc := t
			b.RefreshToken = &tc
		}
	}
	return b
}

// ToMap converts a Bundle into a key->Token mapping using the
// discriminant names as keys ("idToken", "accessToken", "refreshToken"),
// omitting absent entries.
func (b Bundle) ToMap() map[string]Token {
	m := map[string]Token{}
	if b.IDToken != nil {
		m["idToken"] = *b.IDToken
	}
	if b.AccessToken != nil {
		m["accessToken"] = *b.AccessToken
	}
	if b.RefreshToken != nil {
		m["refreshToken"] = *b.RefreshToken
	}
	return m
}
