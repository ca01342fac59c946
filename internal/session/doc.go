// Package session provides key/value persistence for authentication state.
//
// The FileStore backend survives process restarts so an interrupted device
// flow or a stored credential can be resumed; the MemStore backend backs
// tests. All values are opaque strings owned by the auth package.
package session
