// Package statusdoc models the pipeline status document maintained by the
// remote automation workflows. The document is authoritative and externally
// owned: this package only decodes it and answers read-only questions about
// per-video step progress. Nothing here writes the document back.
package statusdoc
