//go:build !unix

package store

// lockFile is a no-op where flock is unavailable; writes within one
// process are still serialized by the store mutex.
func lockFile(path string) (unlock func() error, err error) {
	return func() error { return nil }, nil
}
