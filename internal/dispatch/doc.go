// Package dispatch orchestrates pipeline triggers against the target
// repository and tracks the remotely owned status document.
//
// Local state is always derived from the last successful fetch of the
// remote document. A dispatch never predicts its outcome; it triggers the
// remote workflow and refetches, so the view converges to whatever the
// automation eventually writes.
package dispatch
