// Package client contains Cobra CLI commands that drive a running
// StreamWeaver server over its HTTP API: session lifecycle, publishing,
// stats, and tailing a session's stream over SSE.
package client
