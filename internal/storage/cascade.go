package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hatchtoken/tokenmanager/internal/tmerrors"
)

// Option names a configured storage variant (spec.md §3's storage enum).
type Option string

const (
	OptionLocalStorage   Option = "localStorage"
	OptionSessionStorage Option = "sessionStorage"
	OptionCookie         Option = "cookie"
	OptionMemory         Option = "memory"
	OptionKeyring        Option = "keyring"
	OptionCustom         Option = "custom"
)

// cascadeOrder is spec.md §4.1's fallback chain: configured backend →
// on unavailable/write-failure → next in this order. memory and custom
// are never auto-selected; they are always explicit opt-ins.
var cascadeOrder = []Option{OptionLocalStorage, OptionSessionStorage, OptionCookie}

// WarnFunc receives cascade downgrade warnings, matching spec.md §4.1's
// "emits a warning through the SDK's warn channel" — wired to the
// enclosing EventBus/logger by the facade.
type WarnFunc func(message string)

// Params configures backend construction for Select.
type Params struct {
	// StateDir roots the localStorage-equivalent File backend. Defaults
	// to os.UserConfigDir()/tokenmanager if empty.
	StateDir string
	// Secure controls the cookie backend's Secure/SameSite attributes.
	Secure bool
	// KeyringService and KeyringUser name the OS credential store record
	// used when Option is "keyring". Required in that case.
	KeyringService string
	KeyringUser    string
	// Custom is the caller-supplied backend used when Option is
	// "custom" (spec.md's CustomProvider). Its errors propagate
	// unchanged — it is never substituted by the cascade.
	Custom Backend
	// Warn receives cascade downgrade warnings. May be nil.
	Warn WarnFunc
}

func (p Params) warn(msg string) {
	if p.Warn != nil {
		p.Warn(msg)
	}
}

func (p Params) localStorageDir() (string, error) {
	if p.StateDir != "" {
		return p.StateDir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("storage: resolving state dir: %w", err)
	}
	return filepath.Join(dir, "tokenmanager"), nil
}

// build constructs the backend for a single cascade option, without
// attempting any fallback.
func build(ctx context.Context, opt Option, p Params) (Backend, error) {
	switch opt {
	case OptionLocalStorage:
		dir, err := p.localStorageDir()
		if err != nil {
			return nil, err
		}
		f, err := NewFile(filepath.Join(dir, "tokens.json"))
		if err != nil {
			return nil, err
		}
		if err := f.Probe(ctx); err != nil {
			return nil, err
		}
		return f, nil

	case OptionSessionStorage:
		f, err := NewFile(filepath.Join(os.TempDir(), "tokenmanager-session", "tokens.json"))
		if err != nil {
			return nil, err
		}
		if err := f.Probe(ctx); err != nil {
			return nil, err
		}
		return f, nil

	case OptionCookie:
		return NewCookie(p.Secure), nil

	case OptionMemory:
		return NewMemory(), nil

	case OptionKeyring:
		k, err := NewKeyring(p.KeyringService, p.KeyringUser)
		if err != nil {
			return nil, err
		}
		if err := k.Probe(ctx); err != nil {
			return nil, err
		}
		return k, nil

	case OptionCustom:
		if p.Custom == nil {
			return nil, fmt.Errorf("storage: custom storage option requires Params.Custom")
		}
		if prober, ok := p.Custom.(Prober); ok {
			if err := prober.Probe(ctx); err != nil {
				return nil, err
			}
		}
		return p.Custom, nil

	default:
		return nil, &tmerrors.UnrecognizedStorageOption{Option: string(opt)}
	}
}

// Select constructs the requested backend, cascading through
// localStorage → sessionStorage → cookie on unavailability, exactly as
// spec.md §4.1 specifies. memory and custom never participate in the
// fallback chain — if explicitly requested and they fail, Select returns
// the failure directly rather than cascading away from an explicit
// choice.
func Select(ctx context.Context, opt Option, p Params) (Backend, error) {
	if _, err := parseOption(opt); err != nil {
		return nil, err
	}

	if opt == OptionMemory || opt == OptionKeyring || opt == OptionCustom {
		b, err := build(ctx, opt, p)
		if err != nil {
			return nil, &tmerrors.StorageUnavailable{Tried: []string{string(opt)}, Cause: err}
		}
		return b, nil
	}

	start := indexOf(cascadeOrder, opt)
	if start < 0 {
		// Shouldn't happen given parseOption above, but fail closed.
		start = 0
	}

	var tried []string
	var lastErr error
	for i := start; i < len(cascadeOrder); i++ {
		candidate := cascadeOrder[i]
		tried = append(tried, string(candidate))
		b, err := build(ctx, candidate, p)
		if err == nil {
			if i > start {
				p.warn(fmt.Sprintf("This browser doesn't support %s. Switching to %s.", cascadeOrder[i-1], candidate))
			}
			return b, nil
		}
		lastErr = err
	}

	return nil, &tmerrors.StorageUnavailable{Tried: tried, Cause: lastErr}
}

func parseOption(opt Option) (Option, error) {
	switch opt {
	case OptionLocalStorage, OptionSessionStorage, OptionCookie, OptionMemory, OptionKeyring, OptionCustom:
		return opt, nil
	default:
		return "", &tmerrors.UnrecognizedStorageOption{Option: string(opt)}
	}
}

func indexOf(opts []Option, want Option) int {
	for i, o := range opts {
		if o == want {
			return i
		}
	}
	return -1
}
