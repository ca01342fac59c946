// Package poll provides a cancellable repeating task used to drive the
// device-flow token poll. Cancellation is synchronous: once Cancel returns,
// the callback is guaranteed not to fire again. A stale poll firing after
// logout could resurrect a session from a discarded token, so this guarantee
// is load-bearing for the authenticator.
package poll
