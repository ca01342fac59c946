// Package github implements the HTTP surface Capstan needs from GitHub: the
// OAuth device authorization grant, the authenticated identity lookup,
// repository_dispatch triggers, and raw fetches of the pipeline status
// document. Endpoints and the HTTP backend are injectable so tests run
// against httptest servers.
package github
