package model

// lcKey identifies one hardlinked inode on one device, for the purpose of
// tallying occurrences whose nlink was unknown at scan time.
type lcKey struct {
	device DeviceID
	inode  uint64
}

type sizePair struct{ size, blocks uint64 }

// LinkCountBuffer tallies occurrences of links reported with nlink unknown
// (0 — e.g. an imported dump whose entry omitted the "nlink" field). Once
// a scan/import finishes, FinalizeLinkCounts patches the true count into
// every such Link and corrects the one-time shared_* credit AddStats could
// not resolve without knowing the real total in advance.
type LinkCountBuffer struct {
	totals map[lcKey]uint32
	sample map[lcKey]sizePair
}

// NewLinkCountBuffer returns an empty buffer.
func NewLinkCountBuffer() *LinkCountBuffer {
	return &LinkCountBuffer{
		totals: make(map[lcKey]uint32),
		sample: make(map[lcKey]sizePair),
	}
}

// Add records one more occurrence of inode on device, keeping the size and
// block count for later use (all hardlinked occurrences of one inode share
// the same apparent size and block count by definition).
func (b *LinkCountBuffer) Add(device DeviceID, inode uint64, size, blocks uint64) {
	k := lcKey{device: device, inode: inode}
	b.totals[k]++
	b.sample[k] = sizePair{size: size, blocks: blocks}
}

// FinalizeLinkCounts depth-first walks the tree; for every Link entry with
// Nlink still 0, it writes the tallied occurrence count and, for every
// ancestor whose HardlinksMap entry for that inode now equals the final
// total (meaning every occurrence turned out to live inside that
// ancestor), removes the shared_* credit that AddStats was forced to apply
// on first sight because the true nlink wasn't known yet.
func (t *Tree) FinalizeLinkCounts() {
	for devID, dev := range t.Devices.devices {
		for key, count := range dev.Hardlinks {
			lk := lcKey{device: DeviceID(devID), inode: key.inode}
			total, ok := t.LinkBuf.totals[lk]
			if !ok || total == 0 || count != uint64(total) {
				continue
			}
			sp := t.LinkBuf.sample[lk]
			key.dir.SharedSize = satSubU64(key.dir.SharedSize, sp.size)
			key.dir.SharedBlocks = satSubU64(key.dir.SharedBlocks, sp.blocks)
		}
	}
	if t.Root != nil {
		t.patchDeferredNlink(t.Root)
	}
}

func (t *Tree) patchDeferredNlink(dir *Entry) {
	for c := dir.FirstChild; c != nil; c = c.NextSibling {
		if c.Kind == KindDir {
			t.patchDeferredNlink(c)
			continue
		}
		if c.Kind == KindLink && c.Nlink == 0 {
			if total, ok := t.LinkBuf.totals[lcKey{device: dir.Device, inode: c.Inode}]; ok {
				c.Nlink = total
			}
		}
	}
}
