package model

import (
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// SortField defines what to sort by.
type SortField int

const (
	SortBySize SortField = iota
	SortByName
	SortByCount
	SortByMtime
)

// SortOrder defines ascending or descending.
type SortOrder int

const (
	SortDesc SortOrder = iota
	SortAsc
)

// SortConfig holds sort preferences.
type SortConfig struct {
	Field SortField
	Order SortOrder
	// DirsFirst keeps directories before files regardless of sort.
	DirsFirst bool
}

// DefaultSort returns the default sort config (size descending, dirs first).
func DefaultSort() SortConfig {
	return SortConfig{
		Field:     SortBySize,
		Order:     SortDesc,
		DirsFirst: true,
	}
}

// SortChildren sorts a slice of *Entry in place according to cfg.
// useApparent selects apparent size over disk usage for SortBySize.
func SortChildren(children []*Entry, cfg SortConfig, useApparent bool) {
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i], children[j]

		// Dirs first
		if cfg.DirsFirst {
			aDir, bDir := a.IsDir(), b.IsDir()
			if aDir != bDir {
				return aDir
			}
		}

		// For descending order, swap a and b so the same less-than
		// comparisons produce the reverse result. This preserves
		// strict weak ordering (equal items return false, not true).
		if cfg.Order == SortDesc {
			a, b = b, a
		}

		var less bool
		switch cfg.Field {
		case SortBySize:
			var sa, sb uint64
			if useApparent {
				sa, sb = a.ApparentSize(), b.ApparentSize()
			} else {
				sa, sb = a.DiskUsage(), b.DiskUsage()
			}
			less = sa < sb
		case SortByName:
			less = natural.Less(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName()))
		case SortByCount:
			ca, cb := uint64(1), uint64(1)
			if a.IsDir() {
				ca = a.Items
			}
			if b.IsDir() {
				cb = b.Items
			}
			less = ca < cb
		case SortByMtime:
			less = entryMtime(a) < entryMtime(b)
		default:
			less = a.ApparentSize() < b.ApparentSize()
		}

		return less
	})
}

func entryMtime(e *Entry) int64 {
	if e.HasExt && e.Ext != nil {
		return e.Ext.Mtime
	}
	return 0
}
