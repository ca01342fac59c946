package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired is returned when an operation needs a
	// signed-in session and none exists.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrCredentialInvalid marks a credential the identity provider rejected.
	// Callers must discard the credential; retrying cannot succeed.
	ErrCredentialInvalid = errors.New("credential invalid")

	// ErrVerificationUnavailable marks a transient failure while resolving
	// the identity behind a credential. The credential is discarded anyway so
	// no ambiguous signed-in state survives.
	ErrVerificationUnavailable = errors.New("identity verification unavailable")

	// ErrDeviceFlowExpired indicates the operator did not approve the device
	// code before it expired.
	ErrDeviceFlowExpired = errors.New("device authorization expired")

	// ErrDeviceFlowDenied indicates the operator rejected the authorization
	// request.
	ErrDeviceFlowDenied = errors.New("device authorization denied")
)

// DeniedError reports a valid credential belonging to an account outside the
// allowlist. The observed login is carried for display; the credential itself
// is never retained.
type DeniedError struct {
	Login string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("account %q is not permitted to operate this pipeline", e.Login)
}
