//go:build !linux

package thread

// ID returns -1: thread identity is not tracked on this platform.
func ID() int {
	return -1
}
