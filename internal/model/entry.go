// Package model owns the in-memory disk-usage tree: Entry allocation,
// parent/sibling linking, and the hard-link-aware running aggregates that
// let every directory report its subtree's size without a second traversal.
package model

import (
	"path/filepath"
	"strings"
)

// Kind discriminates the three entry shapes the tree holds. Two bits would
// suffice on-disk; Go gets a byte for free.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindLink
)

// ExtMeta is the optional extended metadata attached to an Entry when a
// scan runs with Extended enabled. Kept as a pointer so entries scanned
// without it pay no extra memory.
type ExtMeta struct {
	Mtime int64
	UID   uint32
	GID   uint32
	Mode  uint16
}

// Entry is a single node in the tree: a Dir, a hardlinked File (Link), or
// any other File (including specials — see Excluded/OtherFS/KernFS/Err
// below). Rather than a packed variant struct with a raw-byte cast, fields
// for all three kinds live directly on Entry; see Design Notes §9 for why
// this is an explicitly sanctioned alternative to the packed layout.
type Entry struct {
	Kind Kind

	// Name holds the raw, NUL-free name bytes exactly as the OS (or a dump
	// file) handed them to us. Never validated or repaired as UTF-8 here —
	// see DisplayName for the one place lossy repair is permitted.
	Name []byte

	Size   uint64 // apparent size in bytes; saturates at 2^64-1
	Blocks uint64 // 512-byte block count; saturates at 2^60-1

	// OwnSize/OwnBlocks are the entry's own stat values, exactly as pushed
	// by SetStat — never touched by AddStats/DelStats, unlike Size/Blocks,
	// which AddStats mutates in place on every Dir ancestor as children are
	// folded in (so a Dir's Size/Blocks end up holding the own+descendants
	// aggregate, not the directory's own allocation). Exporting a Dir must
	// re-emit its own value (the dump format's dsize/asize are own values
	// that the importer re-aggregates on the way back in, per parseDir) —
	// these fields are what makes that recoverable without a second walk.
	OwnSize   uint64
	OwnBlocks uint64

	NextSibling *Entry
	Counted     bool // true once this entry's contribution is in every ancestor's totals

	HasExt bool
	Ext    *ExtMeta

	// Dir-only fields.
	FirstChild   *Entry
	Parent       *Entry
	SharedSize   uint64
	SharedBlocks uint64
	Items        uint64
	Device       DeviceID
	SubErr       bool

	// Link-only fields.
	Inode uint64
	Nlink uint32

	// File-only classification flags. Err is shared with Dir (a failed
	// stat/opendir on either kind).
	Err      bool
	Excluded bool
	OtherFS  bool
	KernFS   bool
	NotReg   bool
}

// IsDir reports whether entry is a directory node.
func (e *Entry) IsDir() bool { return e.Kind == KindDir }

// Children returns a snapshot slice of entry's children in their current
// linked-list order. Read-only — see spec §6.2; the UI is the only
// consumer that needs this instead of walking FirstChild/NextSibling by
// hand.
func (e *Entry) Children() []*Entry {
	if e.Kind != KindDir {
		return nil
	}
	var n int
	for c := e.FirstChild; c != nil; c = c.NextSibling {
		n++
	}
	out := make([]*Entry, 0, n)
	for c := e.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// DisplayName lossily repairs Name to valid UTF-8 for terminal rendering.
// This is the one place (per Design Notes "Non-UTF-8 names") where the
// byte-oriented model tolerates a text view; the underlying Name is never
// mutated.
func (e *Entry) DisplayName() string {
	return strings.ToValidUTF8(string(e.Name), "�")
}

// Path reconstructs the full display path by walking the parent chain.
func (e *Entry) Path() string {
	var parts []string
	for p := e; p != nil; p = p.Parent {
		parts = append(parts, p.DisplayName())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return filepath.Join(parts...)
}

// ApparentSize returns the entry's apparent size in bytes.
func (e *Entry) ApparentSize() uint64 { return e.Size }

// DiskUsage returns the entry's allocated disk usage in bytes, derived from
// its block count via BlocksToBytes.
func (e *Entry) DiskUsage() uint64 { return BlocksToBytes(e.Blocks) }

// Tree owns the arena of Entry values created during one scan/import, the
// DeviceTable and HardlinksMap used for hard-link accounting, and the root
// of the tree. Per Design Notes "Global mutable state", these would be
// process-wide statics in the source; here they're instance fields on a
// single aggregate so multiple scans/imports (e.g. in tests) don't share
// state.
type Tree struct {
	Root    *Entry
	Devices *DeviceTable
	LinkBuf *LinkCountBuffer

	// OOM is invoked when entry allocation cannot proceed. Go's allocator
	// does not hand back recoverable allocation failures the way C's
	// malloc does, so this hook is unreachable in practice; it exists for
	// parity with the sink contract in spec §6.2; callers typically leave
	// it nil.
	OOM func()
}

// NewTree creates an empty Tree with fresh device/hard-link bookkeeping.
func NewTree() *Tree {
	return &Tree{
		Devices: NewDeviceTable(),
		LinkBuf: NewLinkCountBuffer(),
	}
}

// Create allocates a zeroed Entry with a copy of name (never sharing the
// caller's backing array). Never returns a nil/error value for allocation
// failure — see the OOM field's doc comment.
func (t *Tree) Create(kind Kind, hasExt bool, name []byte) *Entry {
	e := &Entry{Kind: kind, HasExt: hasExt}
	if len(name) > 0 {
		e.Name = append([]byte(nil), name...)
	}
	if hasExt {
		e.Ext = &ExtMeta{}
	}
	return e
}

// Insert prepends entry to parent's child list and folds its contribution
// into every ancestor's running aggregates. A Dir entry being inserted
// must not already have children (it is freshly created).
func (t *Tree) Insert(entry, parent *Entry) {
	entry.Parent = parent
	entry.NextSibling = parent.FirstChild
	parent.FirstChild = entry
	t.AddStats(entry, parent)
}

// AddStats walks the ancestor chain from parent to the root, folding
// entry's size/blocks/mtime into each ancestor and performing hard-link
// accounting per spec §4.1. Idempotent: a no-op once entry.Counted is true.
func (t *Tree) AddStats(entry, parent *Entry) {
	if entry.Counted {
		return
	}

	linkDevice := parent.Device
	var newHL bool

	for p := parent; p != nil; p = p.Parent {
		if entry.HasExt && p.HasExt && entry.Ext != nil && p.Ext != nil {
			if entry.Ext.Mtime > p.Ext.Mtime {
				p.Ext.Mtime = entry.Ext.Mtime
			}
		}
		p.Items = satAddU64(p.Items, 1)

		addTotal := false
		switch {
		case entry.Kind == KindLink && p.Device != linkDevice:
			// Above the link's own device boundary: there is no per-device
			// HardlinksMap entry to consult here, so reuse whatever the
			// innermost same-device ancestor just decided.
			addTotal = newHL

		case entry.Kind == KindLink:
			dev := t.Devices.get(linkDevice)
			key := hlKey{inode: entry.Inode, dir: p}
			count, present := dev.Hardlinks[key]
			if !present {
				dev.Hardlinks[key] = 1
				p.SharedSize = satAddU64(p.SharedSize, entry.Size)
				p.SharedBlocks = satAddU64(p.SharedBlocks, entry.Blocks)
				addTotal = true
				newHL = true
			} else {
				count++
				dev.Hardlinks[key] = count
				if entry.Nlink != 0 && count == uint64(entry.Nlink) {
					p.SharedSize = satSubU64(p.SharedSize, entry.Size)
					p.SharedBlocks = satSubU64(p.SharedBlocks, entry.Blocks)
				}
				addTotal = false
				newHL = false
			}

		default:
			addTotal = true
		}

		if addTotal {
			p.Size = satAddU64(p.Size, entry.Size)
			p.Blocks = ClampBlocks60(satAddU64(p.Blocks, entry.Blocks))
		}
	}

	entry.Counted = true
}

// DelStats mirrors AddStats, reversing entry's contribution to every
// ancestor's totals. Two limitations are intentional (spec §4.1): shared_*
// on ancestors is not corrected here (fixing it requires a full subtree
// rescan), and saturation during the original AddStats may leave totals
// too low afterward. mtime on ancestors is never rolled back.
func (t *Tree) DelStats(entry, parent *Entry) {
	if !entry.Counted {
		return
	}

	linkDevice := parent.Device
	var wasNewHL bool

	for p := parent; p != nil; p = p.Parent {
		p.Items = satSubU64(p.Items, 1)

		subTotal := false
		switch {
		case entry.Kind == KindLink && p.Device != linkDevice:
			subTotal = wasNewHL

		case entry.Kind == KindLink:
			dev := t.Devices.get(linkDevice)
			key := hlKey{inode: entry.Inode, dir: p}
			count := dev.Hardlinks[key]
			if count <= 1 {
				delete(dev.Hardlinks, key)
				subTotal = true
				wasNewHL = true
			} else {
				dev.Hardlinks[key] = count - 1
				subTotal = false
				wasNewHL = false
			}

		default:
			subTotal = true
		}

		if subTotal {
			p.Size = satSubU64(p.Size, entry.Size)
			p.Blocks = satSubU64(p.Blocks, entry.Blocks)
		}
	}

	entry.Counted = false
}

// DelStatsRec is the tree's single delete entry point (spec §6.2): it
// post-order un-counts entry's whole subtree (children before the node
// itself), then unlinks entry from parent's child list. Safe to call on a
// File, Link, or Dir.
func (t *Tree) DelStatsRec(entry, parent *Entry) {
	if entry.Kind == KindDir {
		for c := entry.FirstChild; c != nil; {
			next := c.NextSibling
			t.DelStatsRec(c, entry)
			c = next
		}
	}
	t.DelStats(entry, parent)
	unlink(entry, parent)
}

// unlink removes entry from parent's singly linked child list.
func unlink(entry, parent *Entry) {
	if parent.FirstChild == entry {
		parent.FirstChild = entry.NextSibling
		entry.NextSibling = nil
		return
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.NextSibling == entry {
			c.NextSibling = entry.NextSibling
			entry.NextSibling = nil
			return
		}
	}
}

// SetErr marks entry as having failed to stat/list, then walks ancestors
// from parent upward marking SubErr — stopping at the first ancestor that
// already has it set, per spec §7.
func (t *Tree) SetErr(entry, parent *Entry) {
	entry.Err = true
	for p := parent; p != nil; p = p.Parent {
		if p.SubErr {
			break
		}
		p.SubErr = true
	}
}
