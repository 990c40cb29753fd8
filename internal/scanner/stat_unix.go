//go:build !windows

package scanner

import (
	"os"
	"syscall"
)

// rawStat is the scanner's compact projection of an OS stat result (spec
// §4.2 "Stat projection"): blocks/dev/ino truncated or clamped to their
// target widths, with mtime/uid/gid/mode captured for Extended scans.
type rawStat struct {
	Dev    uint64
	Ino    uint64
	Nlink  uint64
	Blocks uint64 // 512-byte units, as reported by stat — not bytes
	Size   uint64
	Mtime  int64
	UID    uint32
	GID    uint32
	Mode   uint16
}

func projectStat(fi os.FileInfo) rawStat {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return rawStat{Size: uint64(fi.Size()), Mtime: fi.ModTime().Unix()}
	}
	return rawStat{
		Dev:    uint64(st.Dev),
		Ino:    st.Ino,
		Nlink:  uint64(st.Nlink),
		Blocks: uint64(st.Blocks),
		Size:   uint64(fi.Size()),
		Mtime:  fi.ModTime().Unix(),
		UID:    st.Uid,
		GID:    st.Gid,
		Mode:   uint16(st.Mode),
	}
}
