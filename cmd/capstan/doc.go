// Package main hosts the Capstan CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into device
// flow logins, repository_dispatch triggers, and status document views. It
// centralizes configuration resolution, session-store wiring, and structured
// logging setup so subcommands can focus on user experience.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
