package model

import "github.com/m-mizutani/goerr/v2"

// Error kinds surfaced to users. Subtypes wrap their parent kind so that
// errors.Is matches both.
var (
	ErrConfiguration = goerr.New("configuration error")
	ErrValidation    = goerr.New("validation error")
	ErrPrecondition  = goerr.New("precondition error")

	ErrMissingCredential  = goerr.Wrap(ErrConfiguration, "missing credential")
	ErrStoreUnavailable   = goerr.Wrap(ErrConfiguration, "store unavailable")
	ErrModelRequestFailed = goerr.New("model request failed")

	ErrTeamNotFound = goerr.New("team not found")
)
