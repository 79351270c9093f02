package nativetest

import "golang.org/x/sys/unix"

// threadID identifies the calling OS thread for the error slots
func threadID() int {
	return unix.Gettid()
}
