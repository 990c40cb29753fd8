//go:build !linux

package scanner

// statfsIsKernFS is a no-op outside Linux: kernfs exclusion is Linux-only
// per spec §4.2.
func statfsIsKernFS(path string) bool { return false }
