//go:build !calldiag

package diag

// Serve is compiled out unless the calldiag build tag is set.
func Serve(string, SnapshotFunc) {}
