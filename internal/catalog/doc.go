// Package catalog maps workflow kinds to repository_dispatch event types,
// client payload shapes, and advisory eligibility rules. It is pure policy
// data consumed by the dispatch orchestrator and the CLI.
package catalog
