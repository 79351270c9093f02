//go:build !linux

package nativetest

// threadID returns one shared slot where the platform has no thread id in
// x/sys; concurrent failures may then read each other's text.
func threadID() int {
	return 0
}
