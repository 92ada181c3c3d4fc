// Package oauthclient implements renew.TokenClient against a generic
// OAuth2/OIDC token endpoint, generalized from the teacher's
// Anthropic-specific token source into a provider-agnostic refresh-token
// grant. golang.org/x/oauth2 supplies the endpoint/token vocabulary;
// the actual exchange is hand-rolled because some providers (Anthropic's
// console API among them) expect a JSON request body rather than the
// form encoding oauth2.Config assumes.
package oauthclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/hatchtoken/tokenmanager/internal/clock"
	"github.com/hatchtoken/tokenmanager/internal/tmerrors"
	"github.com/hatchtoken/tokenmanager/internal/token"
	"github.com/hatchtoken/tokenmanager/internal/tokenstore"
)

// Config describes the identity provider this client renews against.
type Config struct {
	Endpoint oauth2.Endpoint
	ClientID string
	Scopes   []string
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithJSONTokenRequests makes the client POST the refresh-token grant as
// a JSON body (Content-Type: application/json) instead of the standard
// application/x-www-form-urlencoded form oauth2.Config assumes. Anthropic's
// own console token endpoint requires this.
func WithJSONTokenRequests() Option {
	return func(c *Client) { c.jsonRequests = true }
}

// WithHTTPClient overrides the client used for the token exchange.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// Client implements renew.TokenClient. refreshKey names the tokenstore
// key under which the refresh token bundle is stored (spec.md's
// discriminant key, typically "refreshToken"). Renew maps the renewed
// tokenKey to the Token field the response's corresponding value
// populates: "idToken" and "refreshToken" by name, any other key to
// AccessToken.
type Client struct {
	cfg          Config
	store        *tokenstore.Store
	clock        *clock.Clock
	refreshKey   string
	httpClient   *http.Client
	jsonRequests bool
}

// New creates a Client that reads the refresh token from store under
// refreshKey and posts refresh-token grants to cfg.Endpoint.TokenURL.
func New(cfg Config, store *tokenstore.Store, c *clock.Clock, refreshKey string, opts ...Option) *Client {
	cl := &Client{
		cfg:        cfg,
		store:      store,
		clock:      c,
		refreshKey: refreshKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	IDToken          string `json:"id_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Renew exchanges the stored refresh token for a new token and returns a
// Token populated according to key's discriminant ("accessToken",
// "idToken", or "refreshToken" — refresh-token rotation).
func (c *Client) Renew(ctx context.Context, key string) (token.Token, error) {
	refreshBundle, ok, err := c.store.GetOne(ctx, c.refreshKey)
	if err != nil {
		return token.Token{}, fmt.Errorf("oauthclient: loading refresh token: %w", err)
	}
	if !ok || refreshBundle.RefreshToken == "" {
		return token.Token{}, &tmerrors.OAuthError{
			TokenKey:     key,
			ErrorCode:    "invalid_grant",
			ErrorSummary: "no refresh token is stored",
		}
	}

	resp, err := c.exchange(ctx, refreshBundle.RefreshToken)
	if err != nil {
		return token.Token{}, err
	}

	scopes := c.cfg.Scopes
	if resp.Scope != "" {
		scopes = strings.Fields(resp.Scope)
	}

	newTok := token.Token{
		Scopes:    scopes,
		ExpiresAt: c.clock.Unix() + resp.ExpiresIn,
	}
	switch key {
	case "idToken":
		newTok.IDToken = resp.IDToken
	case "refreshToken":
		newTok.RefreshToken = resp.RefreshToken
	default:
		newTok.AccessToken = resp.AccessToken
	}
	return newTok, nil
}

func (c *Client) exchange(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	fields := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     c.cfg.ClientID,
	}

	req, err := c.buildRequest(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: building request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &tmerrors.AuthSdkError{ErrorCode: "network_error", ErrorSummary: err.Error()}
	}
	defer httpResp.Body.Close()

	var resp tokenResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &tmerrors.AuthSdkError{ErrorCode: "decode_error", ErrorSummary: err.Error()}
	}
	if httpResp.StatusCode >= 400 || resp.Error != "" {
		return nil, &tmerrors.OAuthError{ErrorCode: resp.Error, ErrorSummary: resp.ErrorDescription}
	}
	return &resp, nil
}

func (c *Client) buildRequest(ctx context.Context, fields map[string]string) (*http.Request, error) {
	if c.jsonRequests {
		body, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint.TokenURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}
