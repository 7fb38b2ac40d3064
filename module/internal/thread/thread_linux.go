//go:build linux

// Package thread identifies the calling OS thread.
package thread

import "golang.org/x/sys/unix"

// ID returns the kernel thread id of the caller.
func ID() int {
	return unix.Gettid()
}
