// Package auth drives sign-in for the pipeline operator.
//
// The Authenticator implements the OAuth device authorization grant as a
// state machine: request a device/user code pair, poll the token endpoint on
// a cancellable cadence that only slows down, persist the in-progress flow so
// a restart resumes instead of restarting, and hand successful grants to the
// Verifier. The Verifier enforces a one-account allowlist: a valid credential
// belonging to any other login is reported as denied and never retained.
//
// Authentication failures always terminate the session; no partially
// signed-in state is ever observable.
package auth
