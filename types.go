package tokenmanager

import (
	"github.com/hatchtoken/tokenmanager/internal/eventbus"
	"github.com/hatchtoken/tokenmanager/internal/storage"
	"github.com/hatchtoken/tokenmanager/internal/tmerrors"
	"github.com/hatchtoken/tokenmanager/internal/token"
)

// Token, Bundle, and Handler are re-exported from their defining internal
// packages so callers never need to import internal/* directly — Go only
// lets code inside this module import internal/oauthclient (the concrete
// TokenClient) and internal/observability (metrics/logging wiring), as
// cmd/tokenmanagerdemo does.
type (
	Token   = token.Token
	Bundle  = token.Bundle
	Handler = eventbus.Handler
)

// Error types, re-exported from internal/tmerrors (spec.md §7).
type (
	UnrecognizedStorageOption = tmerrors.UnrecognizedStorageOption
	StorageUnavailable        = tmerrors.StorageUnavailable
	UnparseableStorageError   = tmerrors.UnparseableStorageError
	InvalidToken              = tmerrors.InvalidToken
	NoTokenForKey             = tmerrors.NoTokenForKey
	TooManyRenewRequests      = tmerrors.TooManyRenewRequests
	OAuthError                = tmerrors.OAuthError
	AuthSdkError              = tmerrors.AuthSdkError
	CallbackInProgress        = tmerrors.CallbackInProgress
)

// StorageOption names a StorageBackend cascade entry point (spec.md
// §4.1), re-exported so Config.StorageOption can be built from named
// constants instead of bare strings.
type StorageOption = storage.Option

const (
	OptionLocalStorage   = storage.OptionLocalStorage
	OptionSessionStorage = storage.OptionSessionStorage
	OptionCookie         = storage.OptionCookie
	OptionMemory         = storage.OptionMemory
	OptionKeyring        = storage.OptionKeyring
	OptionCustom         = storage.OptionCustom
)
