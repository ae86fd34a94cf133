//go:build !unix

package toml

// Without flock only the in-process mutex serializes writers; use the sqlite
// or redis driver when several processes share one store on this platform.
func withFileLock(_ string, fn func() error) error {
	return fn()
}
