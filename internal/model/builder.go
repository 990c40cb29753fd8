package model

import "github.com/sadopc/qdu/internal/sink"

// Builder drives Tree construction from a push-style Sink feed. The
// scanner (live filesystem walk) and the JSON importer both target a
// Builder so they share one tree-building algorithm instead of each
// re-implementing hard-link accounting (spec §4.5).
type Builder struct {
	Tree *Tree

	stack       []*Entry // currently open directories; empty until root is pushed
	pendingName []byte
	lastEntry   *Entry
}

// NewBuilder returns a Builder that populates tree.
func NewBuilder(tree *Tree) *Builder {
	return &Builder{Tree: tree}
}

func (b *Builder) parent() *Entry {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

// PushName begins a new element with the given raw name bytes.
func (b *Builder) PushName(name []byte) {
	b.pendingName = append([]byte(nil), name...)
}

// SetStat allocates and inserts the pending element as a stat-bearing
// entry, folding its contribution into every ancestor via Tree.Insert.
func (b *Builder) SetStat(st sink.Stat) {
	kind := modelKind(st.Kind)
	entry := b.Tree.Create(kind, st.HasExt, b.pendingName)
	b.pendingName = nil

	entry.Size = st.Size
	entry.Blocks = ClampBlocks60(st.Blocks)
	entry.OwnSize = st.Size
	entry.OwnBlocks = entry.Blocks
	entry.NotReg = st.NotReg
	if st.HasExt {
		entry.Ext.Mtime = st.Mtime
		entry.Ext.UID = st.UID
		entry.Ext.GID = st.GID
		entry.Ext.Mode = st.Mode
	}

	parent := b.parent()

	switch kind {
	case KindDir:
		entry.Device = b.Tree.Devices.Lookup(st.Dev)
	case KindLink:
		entry.Inode = st.Ino
		entry.Nlink = st.Nlink
	}

	if parent == nil {
		b.Tree.Root = entry
	} else {
		b.Tree.Insert(entry, parent)
		if kind == KindLink && st.Nlink == 0 {
			b.Tree.LinkBuf.Add(parent.Device, entry.Inode, entry.Size, entry.Blocks)
		}
	}

	b.lastEntry = entry
}

// SetSpecial allocates and inserts the pending element as a classification
// flag entry (err/other-fs/kernfs/excluded) instead of a stat-bearing one.
func (b *Builder) SetSpecial(sp sink.Special) {
	entry := b.Tree.Create(KindFile, false, b.pendingName)
	b.pendingName = nil

	switch sp {
	case sink.SpecialOtherFS:
		entry.OtherFS = true
	case sink.SpecialKernFS:
		entry.KernFS = true
	case sink.SpecialExcluded:
		entry.Excluded = true
	}

	parent := b.parent()
	if parent == nil {
		b.Tree.Root = entry
	} else {
		b.Tree.Insert(entry, parent)
	}

	if sp == sink.SpecialErr {
		b.Tree.SetErr(entry, parent)
	}

	b.lastEntry = entry
}

// EnterDir opens the directory most recently produced by SetStat. Called
// by the driving traversal (scanner or importer) immediately after a
// dir-kind SetStat, per spec §4.5.
func (b *Builder) EnterDir() {
	if b.lastEntry != nil && b.lastEntry.Kind == KindDir {
		b.stack = append(b.stack, b.lastEntry)
	}
}

// LeaveDir closes the most recently entered directory.
func (b *Builder) LeaveDir() {
	if len(b.stack) > 0 {
		b.stack = b.stack[:len(b.stack)-1]
	}
}

// ListingError marks the currently open directory as having failed to
// fully enumerate its contents, and propagates SubErr to its ancestors.
func (b *Builder) ListingError() {
	if dir := b.parent(); dir != nil {
		b.Tree.SetErr(dir, dir.Parent)
	}
}

func modelKind(k sink.Kind) Kind {
	switch k {
	case sink.KindDir:
		return KindDir
	case sink.KindLink:
		return KindLink
	default:
		return KindFile
	}
}
