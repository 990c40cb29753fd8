//go:build windows

package scanner

import "os"

// rawStat is the scanner's compact projection of an OS stat result. On
// Windows, inode/device/nlink are unavailable through os.FileInfo, so
// hard-link accounting degenerates to treating every entry as unlinked.
type rawStat struct {
	Dev    uint64
	Ino    uint64
	Nlink  uint64
	Blocks uint64
	Size   uint64
	Mtime  int64
	UID    uint32
	GID    uint32
	Mode   uint16
}

func projectStat(fi os.FileInfo) rawStat {
	size := uint64(fi.Size())
	return rawStat{
		Size:   size,
		Blocks: (size + 511) / 512,
		Mtime:  fi.ModTime().Unix(),
	}
}
