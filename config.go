package tokenmanager

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var configValidate = validator.New()

// defaultExpireEarlySeconds is spec.md §3's policy constant: outside a
// detected local-development environment, ExpireEarlySeconds is always
// this value, regardless of what was configured.
const defaultExpireEarlySeconds = 30

// Config is the token manager's typed, validated configuration, loadable
// the way the teacher's app.Config is: file, then environment, then
// built-in defaults for anything still unset. spec.md §6 excludes CLI/
// config bootstrapping for the *sample application*; the library's own
// config struct is not that bootstrapping.
type Config struct {
	// StorageOption selects the StorageBackend cascade's starting point:
	// one of "localStorage", "sessionStorage", "cookie", "memory",
	// "keyring", or "custom" (spec.md §4.1). Like memory and custom,
	// keyring is never auto-selected by the localStorage→sessionStorage→
	// cookie fallback cascade — it's always an explicit opt-in.
	StorageOption string `koanf:"storage_option" validate:"omitempty,oneof=localStorage sessionStorage cookie memory keyring custom"`

	// StorageKey is the blob-backend key / keyed-backend record prefix
	// under which this manager's tokens live (spec.md §3).
	StorageKey string `koanf:"storage_key" validate:"required"`

	// StateDir roots the localStorage File backend. Empty defers to
	// os.UserConfigDir(). The sessionStorage File backend always lives
	// under os.TempDir() and ignores StateDir.
	StateDir string `koanf:"state_dir"`

	// CookieSecure marks cookies issued by the cookie backend Secure.
	CookieSecure bool `koanf:"cookie_secure"`

	// KeyringService names the OS credential-store service record used
	// when StorageOption is "keyring" (spec.md §4.1's keyring variant).
	KeyringService string `koanf:"keyring_service"`

	// Environment names the deployment environment this process is
	// running in, the same "ENVIRONMENT env var, default development"
	// shape the teacher's own config carries. Only the literal value
	// "development" counts as the "detected local-development
	// environment" spec.md §3 carves an exception for; anything else
	// (including unset, which ApplyDefaults turns into "production") is
	// treated as production for the ExpireEarlySeconds clamp below.
	Environment string `koanf:"environment"`

	// ExpireEarlySeconds shifts expiresAt_effective earlier, the fixed
	// term in spec.md §3 invariant 3's effective-expiry formula. Default
	// 30; outside a local-development Environment the effective value is
	// always clamped to 30, regardless of what's configured here.
	ExpireEarlySeconds int `koanf:"expire_early_seconds" validate:"gte=0"`

	// LocalClockOffsetMillis is the caller-supplied offset between this
	// process's clock and the identity provider's, applied by
	// internal/clock.Clock.Now/Unix (not by EffectiveExpiry — every
	// expiry comparison reads "now" through that Clock, so applying the
	// offset a second time in EffectiveExpiry would double-count it).
	LocalClockOffsetMillis int64 `koanf:"local_clock_offset_millis"`

	// AutoRenew, when true, calls renew automatically when the
	// ExpirationScheduler fires "expired" for a key (spec.md §4.4/§4.5's
	// intended composition). When false, "expired" is only observable via
	// the event bus, and AutoRemove governs what happens to the token.
	AutoRenew bool `koanf:"auto_renew"`

	// AutoRemove, when true, deletes an expired token on timer fire
	// whenever AutoRenew didn't already handle it (spec.md §3: "default
	// true, effect only when autoRenew is false"). Exposed as a pointer
	// so ApplyDefaults can tell "unset" apart from an explicit false.
	AutoRemove *bool `koanf:"auto_remove"`

	// CrossTabSync, when true, starts a CrossTabSynchronizer against the
	// selected backend's default notification source (spec.md §4.7).
	CrossTabSync bool `koanf:"cross_tab_sync"`

	// PKCEEnabled, when true, makes Get refuse with CallbackInProgress
	// while the host application's most recently recorded URL (see
	// Manager.SetHostURL) carries a "code" query parameter (spec.md
	// §4.8's "host URL indicates an in-progress OAuth callback").
	PKCEEnabled bool `koanf:"pkce_enabled"`

	// StorageEventDelayMillis is spec.md §3's `_storageEventDelay`: how
	// long the CrossTabSynchronizer waits after a storage-change signal
	// before reloading and diffing, to give a lagging storage medium time
	// to make its write visible to readers. Default 0.
	StorageEventDelayMillis int64 `koanf:"storage_event_delay_millis" validate:"gte=0"`
}

// IsLocalDevelopment reports whether Environment names the one
// environment spec.md §3 allows ExpireEarlySeconds to be set arbitrarily
// in.
func (c Config) IsLocalDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// ApplyDefaults fills unset fields with the library's defaults, matching
// the teacher's Config.ApplyDefaults shape.
func (c *Config) ApplyDefaults() {
	if c.StorageOption == "" {
		c.StorageOption = "localStorage"
	}
	if c.StorageKey == "" {
		c.StorageKey = "tokenmanager"
	}
	if c.KeyringService == "" {
		c.KeyringService = "tokenmanager"
	}
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.AutoRemove == nil {
		t := true
		c.AutoRemove = &t
	}
	if c.ExpireEarlySeconds == 0 {
		c.ExpireEarlySeconds = defaultExpireEarlySeconds
	}
	if !c.IsLocalDevelopment() {
		c.ExpireEarlySeconds = defaultExpireEarlySeconds
	}
}

// Validate checks struct tags via go-playground/validator.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("tokenmanager: invalid config: %w", err)
	}
	return nil
}

// LoadConfig builds a Config by layering, lowest priority first: built-in
// defaults, an optional TOML file at path (skipped if path is empty), and
// TOKENMANAGER_-prefixed environment variables.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(configDefaultsMap(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("tokenmanager: loading config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Config{}, fmt.Errorf("tokenmanager: loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{Prefix: "TOKENMANAGER_"}), nil); err != nil {
		return Config{}, fmt.Errorf("tokenmanager: loading environment config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("tokenmanager: unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// configDefaultsMap seeds the lowest-priority koanf layer in LoadConfig.
func configDefaultsMap() map[string]any {
	return map[string]any{
		"storage_option":       "localStorage",
		"storage_key":          "tokenmanager",
		"keyring_service":      "tokenmanager",
		"environment":          "production",
		"auto_remove":          true,
		"expire_early_seconds": defaultExpireEarlySeconds,
	}
}
