// Package sink defines the push interface shared by the scanner and the
// JSON importer to feed either the in-memory model or the JSON exporter.
package sink

// Kind discriminates the three entry shapes the sink can build.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindLink
)

// Special marks a pushed entry as not-normally-counted, per §7 of the spec.
type Special uint8

const (
	SpecialNone Special = iota
	SpecialErr
	SpecialOtherFS
	SpecialKernFS
	SpecialExcluded
)

// Stat is the compact, already-projected metadata the scanner or importer
// hands to a Sink for the entry most recently named with PushName.
type Stat struct {
	Kind Kind

	// Blocks is the 512-byte block count (conceptually 60 bits; saturates).
	Blocks uint64
	// Size is the apparent size in bytes (64 bits; saturates).
	Size uint64

	// Dev/Ino identify the device and inode; only meaningful when Kind is
	// KindDir (Dev) or KindLink (Dev+Ino).
	Dev uint64
	Ino uint64

	// Nlink is the OS-reported link count for a KindLink entry. 0 means
	// unknown/deferred — the caller must register the occurrence with the
	// model's LinkCountBuffer and the true count is patched in later.
	Nlink uint32

	NotReg bool

	HasExt bool
	Mtime  int64
	UID    uint32
	GID    uint32
	Mode   uint16
}

// Sink is the push API driven by the scanner (from a live filesystem walk)
// and by the JSON importer (from a dump), and implemented by the model
// builder (materializes a tree) and the JSON exporter (streams a dump).
type Sink interface {
	// PushName begins a new element with the given raw name bytes. The name
	// is never validated as UTF-8 text — the OS (or a dump file) may hand us
	// arbitrary bytes.
	PushName(name []byte)

	// SetStat terminates the current element with full metadata. If the
	// entry is a directory, the sink treats the element as open for
	// children until a matching LeaveDir.
	SetStat(st Stat)

	// SetSpecial terminates the current element as a special,
	// not-normally-counted entry instead of a stat-bearing one.
	SetSpecial(sp Special)

	// EnterDir is implicitly expected after a SetStat whose Kind is
	// KindDir; call sites open a new "current directory" scope.
	EnterDir()

	// LeaveDir closes the most recently entered directory scope.
	LeaveDir()

	// ListingError marks the currently open directory as having failed to
	// fully enumerate its contents.
	ListingError()
}
