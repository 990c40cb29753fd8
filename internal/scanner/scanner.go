// Package scanner walks the filesystem and feeds a sink.Sink, applying
// exclusion rules, filesystem-boundary checks, and symlink policy (spec
// §4.2). It never touches model.Tree directly — model.Builder is the sink
// implementation the caller wires in.
package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/sadopc/qdu/internal/fnmatch"
	"github.com/sadopc/qdu/internal/sink"
)

// ErrNotADirectory is returned by ScanRoot when the resolved root path is
// not a directory.
var ErrNotADirectory = errors.New("scan root is not a directory")

// Options configures scanner behavior (spec §6.3).
type Options struct {
	// SameFS skips entries whose device differs from their parent dir's.
	SameFS bool
	// FollowSymlinks resolves non-directory symlink targets.
	FollowSymlinks bool
	// ExcludeCaches honors CACHEDIR.TAG.
	ExcludeCaches bool
	// ExcludeKernFS honors known Linux pseudo-filesystem statfs magics.
	ExcludeKernFS bool
	// ExcludePatterns is an ordered sequence of fnmatch globs.
	ExcludePatterns []string
	// Extended captures uid/gid/mode/mtime per entry.
	Extended bool

	// OnEntry is the cooperative yield point (spec §5): called once per
	// directory entry, non-blocking. Returning false requests the scan
	// stop as soon as possible. May be nil.
	OnEntry func() bool
}

// ScanRoot resolves path to an absolute path, stats it, and depth-first
// enumerates its contents into s. Fails with ErrNotADirectory if the
// resolved root is not a directory; other I/O errors encountered during
// recursion are non-fatal and recorded on the offending Entry instead.
func ScanRoot(path string, s sink.Sink, opts Options) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fi, err := os.Lstat(abs)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		followed, err := os.Stat(abs)
		if err != nil {
			return err
		}
		fi = followed
	}
	if !fi.IsDir() {
		return ErrNotADirectory
	}

	st := projectStat(fi)
	// The root entry's name is the full scanned path (not just its base),
	// so Entry.Path() reconstructs absolute paths for every descendant
	// without the caller needing to track the scan root separately.
	name := abs

	sc := &scanState{opts: opts, sink: s, kernfsCache: make(map[uint64]bool)}

	s.PushName([]byte(name))
	s.SetStat(toSinkStat(sink.KindDir, st, opts.Extended, fi.Mode()))
	s.EnterDir()
	sc.scanDir(abs, st.Dev)
	s.LeaveDir()
	return nil
}

type scanState struct {
	opts        Options
	sink        sink.Sink
	kernfsCache map[uint64]bool // dev -> is kernfs
}

// scanDir iterates one directory's entries and recurses into subdirs. It
// never returns an error: listing failures are reported to the sink via
// ListingError and the iteration simply stops for that directory, per
// spec §4.2 step 2 ("terminate iteration").
func (sc *scanState) scanDir(dirPath string, parentDev uint64) {
	f, err := os.Open(dirPath)
	if err != nil {
		sc.sink.ListingError()
		return
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	if err != nil {
		sc.sink.ListingError()
		return
	}
	// The scanner otherwise observes whatever order the OS iterator
	// returns (spec §5); tests want a reproducible order so we sort here,
	// which the UI's own sort pass would normalize anyway.
	sort.Strings(names)

	for _, name := range names {
		if sc.opts.OnEntry != nil && !sc.opts.OnEntry() {
			return
		}

		full := filepath.Join(dirPath, name)

		if fnmatch.MatchAny(sc.opts.ExcludePatterns, full) {
			sc.sink.PushName([]byte(name))
			sc.sink.SetSpecial(sink.SpecialExcluded)
			continue
		}

		sc.sink.PushName([]byte(name))

		lst, err := os.Lstat(full)
		if err != nil {
			sc.sink.SetSpecial(sink.SpecialErr)
			continue
		}

		st := projectStat(lst)
		mode := lst.Mode()

		if sc.opts.SameFS && st.Dev != parentDev {
			sc.sink.SetSpecial(sink.SpecialOtherFS)
			continue
		}

		if mode&os.ModeSymlink != 0 && sc.opts.FollowSymlinks {
			if followed, ferr := os.Stat(full); ferr == nil && !followed.IsDir() {
				fst := projectStat(followed)
				if fst.Dev != parentDev && fst.Nlink >= 2 {
					fst.Nlink = 1
				}
				st = fst
				mode = followed.Mode()
			}
			// A dangling symlink (stat failure) or a symlink to a directory
			// keeps the original lstat result: spec §4.2f only resolves
			// non-directory targets, so a dir symlink stays a symlink leaf
			// rather than being recursed into (also sidesteps a cycle through
			// a self-referential dir symlink).
		}

		if mode.IsDir() {
			if sc.opts.ExcludeKernFS && sc.isKernFS(full, st.Dev) {
				sc.sink.SetSpecial(sink.SpecialKernFS)
				continue
			}
			if sc.opts.ExcludeCaches && hasCacheDirTag(full) {
				sc.sink.SetSpecial(sink.SpecialExcluded)
				continue
			}
			sc.sink.SetStat(toSinkStat(sink.KindDir, st, sc.opts.Extended, mode))
			sc.sink.EnterDir()
			sc.scanDir(full, st.Dev)
			sc.sink.LeaveDir()
			continue
		}

		kind := sink.KindFile
		if st.Nlink > 1 {
			kind = sink.KindLink
		}
		sc.sink.SetStat(toSinkStat(kind, st, sc.opts.Extended, mode))
	}
}

func (sc *scanState) isKernFS(path string, dev uint64) bool {
	if v, ok := sc.kernfsCache[dev]; ok {
		return v
	}
	v := statfsIsKernFS(path)
	sc.kernfsCache[dev] = v
	return v
}

func toSinkStat(kind sink.Kind, st rawStat, extended bool, mode os.FileMode) sink.Stat {
	return sink.Stat{
		Kind:   kind,
		Blocks: st.Blocks,
		Size:   st.Size,
		Dev:    st.Dev,
		Ino:    st.Ino,
		Nlink:  uint32(st.Nlink),
		NotReg: !mode.IsRegular() && kind != sink.KindDir,
		HasExt: extended,
		Mtime:  st.Mtime,
		UID:    st.UID,
		GID:    st.GID,
		Mode:   st.Mode,
	}
}
