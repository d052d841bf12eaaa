// Package diag optionally exposes the live store snapshot for debugging.
// The exposure is opt-in twice over: the calldiag build tag compiles the
// server in, and a non-empty listen address turns it on. Nothing is ever
// attached to a shared global.
package diag

import "github.com/arvele/voicecall/internal/store"

// SnapshotFunc reads the current store state.
type SnapshotFunc func() store.Snapshot
