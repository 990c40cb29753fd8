//go:build linux

package scanner

import "golang.org/x/sys/unix"

// Known Linux pseudo-filesystem statfs magics (spec §4.2), from
// linux/magic.h.
const (
	magicBinfmtMisc = 0x42494e4d
	magicBPF        = 0xcafe4a11
	magicCgroup     = 0x27e0eb
	magicCgroup2    = 0x63677270
	magicDebugfs    = 0x64626720
	magicDevpts     = 0x1cd1
	magicProc       = 0x9fa0
	magicPstore     = 0x6165676c
	magicSecurityfs = 0x73636673
	magicSelinuxfs  = 0xf97cff8c
	magicSysfs      = 0x62656572
	magicTracefs    = 0x74726163
)

var kernfsMagics = map[int64]bool{
	magicBinfmtMisc: true,
	magicBPF:        true,
	magicCgroup:     true,
	magicCgroup2:    true,
	magicDebugfs:    true,
	magicDevpts:     true,
	magicProc:       true,
	magicPstore:     true,
	magicSecurityfs: true,
	magicSelinuxfs:  true,
	magicSysfs:      true,
	magicTracefs:    true,
}

func statfsIsKernFS(path string) bool {
	var buf unix.Statfs_t
	if err := unix.Statfs(path, &buf); err != nil {
		return false
	}
	return kernfsMagics[int64(buf.Type)]
}
