package model

// DeviceID is a small dense id standing in for an OS st_dev value, so
// HardlinksMap keys (and Entry.Device) stay compact regardless of how
// large or sparse the raw device numbers are.
type DeviceID uint32

// hlKey identifies one (inode, containing-directory) pair inside a single
// device's HardlinksMap — spec §3: "(inode, Dir*) → occurrence_count".
type hlKey struct {
	inode uint64
	dir   *Entry
}

// device holds the per-device hard-link occurrence table. Device entries
// are never removed once created (spec §3).
type device struct {
	rawDev    uint64
	Hardlinks map[hlKey]uint64
}

// DeviceTable maps raw st_dev values to dense DeviceIDs and owns each
// device's HardlinksMap.
type DeviceTable struct {
	byDev   map[uint64]DeviceID
	devices []*device
}

// NewDeviceTable returns an empty device table.
func NewDeviceTable() *DeviceTable {
	return &DeviceTable{byDev: make(map[uint64]DeviceID)}
}

// Lookup returns the dense DeviceID for a raw OS device id, allocating a
// new one (with a fresh HardlinksMap) the first time dev is seen.
func (t *DeviceTable) Lookup(dev uint64) DeviceID {
	if id, ok := t.byDev[dev]; ok {
		return id
	}
	id := DeviceID(len(t.devices))
	t.devices = append(t.devices, &device{rawDev: dev, Hardlinks: make(map[hlKey]uint64)})
	t.byDev[dev] = id
	return id
}

// RawDev returns the raw OS device id a DeviceID was allocated for.
func (t *DeviceTable) RawDev(id DeviceID) uint64 {
	return t.devices[id].rawDev
}

func (t *DeviceTable) get(id DeviceID) *device {
	return t.devices[id]
}
