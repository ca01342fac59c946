// Package journal keeps a local SQLite log of dispatched pipeline triggers.
package journal
