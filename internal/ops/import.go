package ops

import (
	"fmt"
	"io"
	"os"

	"github.com/sadopc/qdu/internal/sink"
)

// ErrUnsupportedMajor is returned when the dump's MAJOR version is not 1
// (spec §4.4: only MAJOR==1 dumps are accepted; MINOR may be anything).
var ErrUnsupportedMajor = fmt.Errorf("unsupported dump major version")

// Import reads an ncdu-compatible JSON dump from r and drives s with the
// same PushName/SetStat/SetSpecial/EnterDir/LeaveDir/ListingError sequence
// the scanner would produce for an equivalent live walk. It is a
// hand-written recursive-descent reader (see jsonscan.go) rather than
// encoding/json, because names may carry non-UTF-8 bytes encoding/json
// cannot round-trip, and because whole strings should not need buffering
// for very large dumps.
func Import(r io.Reader, s sink.Sink) error {
	jr := newJSONReader(r)
	imp := &importer{jr: jr, s: s}
	return imp.run()
}

// ImportFile opens path (or stdin when path is "-") and imports it into s.
func ImportFile(path string, s sink.Sink) error {
	if path == "-" {
		return Import(os.Stdin, s)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Import(f, s)
}

type importer struct {
	jr  *jsonReader
	s   sink.Sink
	dev []uint64 // raw dev of each currently open Dir, innermost last
}

func (imp *importer) run() error {
	if err := imp.jr.expect('['); err != nil {
		return err
	}
	major, err := imp.jr.parseUnsignedNumber()
	if err != nil {
		return fmt.Errorf("reading major version: %w", err)
	}
	if major != 1 {
		return fmt.Errorf("%w: got %d", ErrUnsupportedMajor, major)
	}
	if err := imp.jr.expect(','); err != nil {
		return err
	}
	if _, err := imp.jr.parseUnsignedNumber(); err != nil {
		return fmt.Errorf("reading minor version: %w", err)
	}
	if err := imp.jr.expect(','); err != nil {
		return err
	}
	// Metadata header: discarded structurally (progname/progver/timestamp
	// carry no semantic weight for the importer).
	if err := imp.jr.skipValue(); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if err := imp.jr.expect(','); err != nil {
		return err
	}

	if err := imp.parseElement(); err != nil {
		return err
	}

	// Tolerate and discard any trailing top-level elements, for forward
	// compatibility with future dump formats that append more fields.
	for {
		b, err := imp.jr.peekNonSpace()
		if err != nil {
			return fmt.Errorf("reading trailer: %w", err)
		}
		if b == ']' {
			imp.jr.readByte()
			return nil
		}
		if err := imp.jr.expect(','); err != nil {
			return err
		}
		if err := imp.jr.skipValue(); err != nil {
			return fmt.Errorf("reading trailing element: %w", err)
		}
	}
}

// parseElement parses one dump element: a "[" ... "]" array is a directory
// (its first element is the directory's own attribute object, followed by
// zero or more child elements), and a "{" ... "}" object is a leaf (File,
// Link, or special entry). Array-vs-object syntax is what distinguishes a
// Dir from everything else — there is no separate "kind" attribute.
func (imp *importer) parseElement() error {
	b, err := imp.jr.peekNonSpace()
	if err != nil {
		return err
	}
	switch b {
	case '[':
		return imp.parseDir()
	case '{':
		return imp.parseLeaf()
	default:
		return imp.jr.errorf("expected '[' or '{', got %q", b)
	}
}

func (imp *importer) parseDir() error {
	if err := imp.jr.expect('['); err != nil {
		return err
	}

	a, err := imp.parseObjectAttrs()
	if err != nil {
		return fmt.Errorf("reading directory header: %w", err)
	}
	if !a.sawName {
		return imp.jr.errorf("directory element missing required \"name\"")
	}

	parentDev := uint64(0)
	if len(imp.dev) > 0 {
		parentDev = imp.dev[len(imp.dev)-1]
	}
	dev := parentDev
	if a.hasDev {
		dev = a.dev
	}

	// Array syntax always means a genuine, successfully-stat'd directory —
	// excluded/other-fs/kernfs/unreadable entries are never opened as
	// directories at all, so they are always represented as plain leaf
	// objects instead (handled in parseLeaf). A directory whose own
	// listing failed is still emitted this way, with read_error on its
	// header object and no children.
	imp.s.PushName(a.name)
	imp.s.SetStat(sink.Stat{
		Kind: sink.KindDir, Blocks: a.dsize / 512, Size: a.asize,
		Dev: dev, NotReg: a.notreg, HasExt: a.hasExt,
		Mtime: a.mtime, UID: a.uid, GID: a.gid, Mode: a.mode,
	})
	imp.s.EnterDir()
	imp.dev = append(imp.dev, dev)
	if a.readError {
		imp.s.ListingError()
	}

	for {
		b, err := imp.jr.peekNonSpace()
		if err != nil {
			return err
		}
		if b == ']' {
			imp.jr.readByte()
			break
		}
		if err := imp.jr.expect(','); err != nil {
			return err
		}
		if err := imp.parseElement(); err != nil {
			return err
		}
	}

	imp.dev = imp.dev[:len(imp.dev)-1]
	imp.s.LeaveDir()
	return nil
}

func (imp *importer) parseLeaf() error {
	a, err := imp.parseObjectAttrs()
	if err != nil {
		return fmt.Errorf("reading entry: %w", err)
	}
	if !a.sawName {
		return imp.jr.errorf("element missing required \"name\"")
	}

	imp.s.PushName(a.name)
	if sp, ok := a.special(); ok {
		imp.s.SetSpecial(sp)
		return nil
	}

	kind := sink.KindFile
	if a.hlnkc {
		kind = sink.KindLink
	}
	imp.s.SetStat(sink.Stat{
		Kind: kind, Blocks: a.dsize / 512, Size: a.asize,
		Ino: a.ino, Nlink: a.nlink, NotReg: a.notreg, HasExt: a.hasExt,
		Mtime: a.mtime, UID: a.uid, GID: a.gid, Mode: a.mode,
	})
	return nil
}

// importAttrs stages one object's known fields as they are parsed, in
// whatever order the dump presents them.
type importAttrs struct {
	name         []byte
	sawName      bool
	asize, dsize uint64
	dev, ino     uint64
	hasDev       bool
	hlnkc        bool
	nlink        uint32
	notreg       bool
	excluded     string
	readError    bool
	hasExt       bool
	uid, gid     uint32
	mode         uint16
	mtime        int64
}

// special reports the Special classification implied by this object's
// attributes, if any (spec §4.3: excluded/read_error take priority over an
// otherwise-normal stat).
func (a importAttrs) special() (sink.Special, bool) {
	switch a.excluded {
	case "othfs":
		return sink.SpecialOtherFS, true
	case "kernfs":
		return sink.SpecialKernFS, true
	case "":
		// fall through to read_error check below
	default:
		return sink.SpecialExcluded, true
	}
	if a.readError {
		return sink.SpecialErr, true
	}
	return sink.SpecialNone, false
}

func (imp *importer) parseObjectAttrs() (importAttrs, error) {
	var a importAttrs
	if err := imp.jr.expect('{'); err != nil {
		return a, err
	}
	first := true
	for {
		b, err := imp.jr.peekNonSpace()
		if err != nil {
			return a, err
		}
		if b == '}' {
			imp.jr.readByte()
			return a, nil
		}
		if !first {
			if err := imp.jr.expect(','); err != nil {
				return a, err
			}
		}
		first = false

		key, err := imp.jr.parseString()
		if err != nil {
			return a, err
		}
		if err := imp.jr.expect(':'); err != nil {
			return a, err
		}

		switch string(key) {
		case "name":
			if a.sawName {
				return a, imp.jr.errorf("duplicate \"name\" key")
			}
			v, err := imp.jr.parseString()
			if err != nil {
				return a, err
			}
			a.name, a.sawName = v, true
		case "asize":
			v, err := imp.jr.parseUnsignedNumber()
			if err != nil {
				return a, err
			}
			a.asize = v
		case "dsize":
			v, err := imp.jr.parseUnsignedNumber()
			if err != nil {
				return a, err
			}
			a.dsize = v
		case "dev":
			v, err := imp.jr.parseUnsignedNumber()
			if err != nil {
				return a, err
			}
			a.dev, a.hasDev = v, true
		case "ino":
			v, err := imp.jr.parseUnsignedNumber()
			if err != nil {
				return a, err
			}
			a.ino = v
		case "hlnkc":
			v, err := imp.jr.skipBool()
			if err != nil {
				return a, err
			}
			a.hlnkc = v
		case "nlink":
			v, err := imp.jr.parseUnsignedNumber()
			if err != nil {
				return a, err
			}
			a.nlink = uint32(v)
		case "notreg":
			v, err := imp.jr.skipBool()
			if err != nil {
				return a, err
			}
			a.notreg = v
		case "read_error":
			v, err := imp.jr.skipBool()
			if err != nil {
				return a, err
			}
			a.readError = v
		case "excluded":
			v, err := imp.jr.parseString()
			if err != nil {
				return a, err
			}
			a.excluded = string(v)
		case "uid":
			v, err := imp.jr.parseUnsignedNumber()
			if err != nil {
				return a, err
			}
			a.uid, a.hasExt = uint32(v), true
		case "gid":
			v, err := imp.jr.parseUnsignedNumber()
			if err != nil {
				return a, err
			}
			a.gid, a.hasExt = uint32(v), true
		case "mode":
			v, err := imp.jr.parseUnsignedNumber()
			if err != nil {
				return a, err
			}
			a.mode, a.hasExt = uint16(v), true
		case "mtime":
			v, err := imp.jr.parseUnsignedNumber()
			if err != nil {
				return a, err
			}
			a.mtime, a.hasExt = int64(v), true
		default:
			// Unknown key: full structural skip so future dump fields never
			// break an older importer (spec §4.4).
			if err := imp.jr.skipValue(); err != nil {
				return a, err
			}
		}
	}
}
