package ops

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sadopc/qdu/internal/model"
	"github.com/sadopc/qdu/internal/sink"
)

// Exporter streams a tree dump in the ncdu-compatible format (spec §4.3)
// as it receives sink pushes. It is itself a sink.Sink, so it can be
// driven directly by the scanner during a live scan (never materializing
// the full tree) or by replaying an already-built model.Tree.
type Exporter struct {
	w           *bufio.Writer
	pendingName []byte
	stack       []*dirFrame
}

type dirFrame struct {
	attrs    objAttrs
	dev      uint64
	flushed  bool
	wroteAny bool
}

// NewExporter writes the document header ("[1, 2, {...},\n") and returns
// an Exporter ready to receive sink pushes for the root element.
func NewExporter(w io.Writer, progname, progver string, timestamp int64) (*Exporter, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	e := &Exporter{w: bw}
	if progname == "" {
		progname = "qdu"
	}
	if progver == "" {
		progver = "dev"
	}
	fmt.Fprintf(bw, "[1, 2, {\"progname\":%s,\"progver\":%s,\"timestamp\":%d},\n",
		quoteASCII(progname), quoteASCII(progver), timestamp)
	return e, bw.Flush()
}

// Finish closes the root element and the outer document array. The caller
// must have already driven a matching sequence of PushName/SetStat(Dir)
// .../LeaveDir calls for the root. Every write above goes through the
// buffered bufio.Writer, which remembers its first error internally and
// turns later writes into no-ops, so Flush's return value alone is a
// reliable signal for the whole stream.
func (e *Exporter) Finish() error {
	e.w.WriteString("\n]\n")
	return e.w.Flush()
}

func (e *Exporter) PushName(name []byte) {
	e.pendingName = append([]byte(nil), name...)
}

func (e *Exporter) SetStat(st sink.Stat) {
	name := e.pendingName
	e.pendingName = nil

	attrs := objAttrs{name: name, asize: st.Size, dsize: model.BlocksToBytes(model.ClampBlocks60(st.Blocks))}
	if len(e.stack) > 0 {
		top := e.stack[len(e.stack)-1]
		if st.Dev != top.dev {
			attrs.hasDev, attrs.dev = true, st.Dev
		}
	}
	if st.Kind != sink.KindDir {
		attrs.hasIno, attrs.ino = true, st.Ino
	}
	if st.Kind == sink.KindLink {
		attrs.hlnkc = true
		attrs.hasNlink, attrs.nlink = true, st.Nlink
	}
	attrs.notreg = st.NotReg
	if st.HasExt {
		attrs.hasExt = true
		attrs.uid, attrs.gid, attrs.mode, attrs.mtime = st.UID, st.GID, st.Mode, st.Mtime
	}

	e.writeChild(attrs, st.Kind == sink.KindDir, st.Dev)
}

func (e *Exporter) SetSpecial(sp sink.Special) {
	name := e.pendingName
	e.pendingName = nil

	attrs := objAttrs{name: name}
	switch sp {
	case sink.SpecialErr:
		attrs.readError = true
	case sink.SpecialOtherFS:
		attrs.excluded = "othfs"
	case sink.SpecialKernFS:
		attrs.excluded = "kernfs"
	case sink.SpecialExcluded:
		attrs.excluded = "pattern"
	}
	e.writeChild(attrs, false, 0)
}

func (e *Exporter) EnterDir() {}

func (e *Exporter) LeaveDir() {
	if len(e.stack) == 0 {
		return
	}
	top := e.stack[len(e.stack)-1]
	e.ensureFlushed(top)
	e.w.WriteString("]")
	e.stack = e.stack[:len(e.stack)-1]
}

func (e *Exporter) ListingError() {
	if len(e.stack) == 0 {
		return
	}
	top := e.stack[len(e.stack)-1]
	top.attrs.readError = true
	e.ensureFlushed(top)
}

func (e *Exporter) writeChild(attrs objAttrs, isDir bool, dev uint64) {
	if len(e.stack) > 0 {
		top := e.stack[len(e.stack)-1]
		e.ensureFlushed(top)
		if top.wroteAny {
			e.w.WriteString(",\n")
		}
		top.wroteAny = true
	}
	if isDir {
		e.stack = append(e.stack, &dirFrame{attrs: attrs, dev: dev})
		return
	}
	e.writeObj(attrs)
}

// ensureFlushed writes frame's opening "[dirObj" the first time it is
// needed: when its first child arrives, when ListingError fires, or when
// LeaveDir closes it with no children. Deferring this write is what lets
// a directory's eventual read_error attribute (known only after opendir
// is attempted) still land in the object that was already "written" in
// stream order.
func (e *Exporter) ensureFlushed(frame *dirFrame) {
	if frame.flushed {
		return
	}
	if len(e.stack) > 1 {
		parent := e.stack[len(e.stack)-2]
		if parent.wroteAny {
			e.w.WriteString(",\n")
		}
		parent.wroteAny = true
	}
	e.w.WriteString("[")
	e.writeObj(frame.attrs)
	frame.flushed = true
}

type objAttrs struct {
	name      []byte
	asize     uint64
	dsize     uint64
	hasDev    bool
	dev       uint64
	hasIno    bool
	ino       uint64
	hlnkc     bool
	hasNlink  bool
	nlink     uint32
	notreg    bool
	excluded  string
	readError bool
	hasExt    bool
	uid, gid  uint32
	mode      uint16
	mtime     int64
}

func (e *Exporter) writeObj(a objAttrs) {
	w := e.w
	w.WriteString(`{"name":`)
	writeJSONBytes(w, a.name)
	fmt.Fprintf(w, `,"asize":%d,"dsize":%d`, a.asize, a.dsize)
	if a.hasDev {
		fmt.Fprintf(w, `,"dev":%d`, a.dev)
	}
	if a.hasIno {
		fmt.Fprintf(w, `,"ino":%d`, a.ino)
	}
	if a.hlnkc {
		w.WriteString(`,"hlnkc":true`)
	}
	if a.hasNlink {
		fmt.Fprintf(w, `,"nlink":%d`, a.nlink)
	}
	if a.notreg {
		w.WriteString(`,"notreg":true`)
	}
	if a.excluded != "" {
		fmt.Fprintf(w, `,"excluded":%q`, a.excluded)
	}
	if a.readError {
		w.WriteString(`,"read_error":true`)
	}
	if a.hasExt {
		fmt.Fprintf(w, `,"uid":%d,"gid":%d,"mode":%d,"mtime":%d`, a.uid, a.gid, a.mode, a.mtime)
	}
	w.WriteString("}")
}

// writeJSONBytes writes raw name bytes as a quoted JSON string, escaping
// control bytes as \uXXXX and the five named escapes, and passing any
// other byte (including non-UTF-8) through verbatim per spec §4.3.
func writeJSONBytes(w *bufio.Writer, raw []byte) {
	w.WriteByte('"')
	for _, c := range raw {
		switch c {
		case '"':
			w.WriteString(`\"`)
		case '\\':
			w.WriteString(`\\`)
		case '\n':
			w.WriteString(`\n`)
		case '\r':
			w.WriteString(`\r`)
		case '\t':
			w.WriteString(`\t`)
		case '\b':
			w.WriteString(`\b`)
		case '\f':
			w.WriteString(`\f`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(w, `\u%04x`, c)
			} else {
				w.WriteByte(c)
			}
		}
	}
	w.WriteByte('"')
}

func quoteASCII(s string) string {
	return fmt.Sprintf("%q", s)
}

// ExportTree replays an already-built tree through a fresh Exporter. Used
// for saving a completed in-memory scan (as opposed to ExportScan, which
// streams straight from the scanner without ever building a tree).
func ExportTree(tree *model.Tree, w io.Writer, progver string) error {
	exp, err := NewExporter(w, "qdu", progver, time.Now().Unix())
	if err != nil {
		return err
	}
	walkEntry(tree, tree.Root, exp)
	return exp.Finish()
}

// ExportScan drives the scanner directly into a fresh Exporter, streaming
// the dump without ever materializing a model.Tree.
func ExportScan(rootPath string, scan func(sink.Sink) error, w io.Writer, progver string) error {
	exp, err := NewExporter(w, "qdu", progver, time.Now().Unix())
	if err != nil {
		return err
	}
	if err := scan(exp); err != nil {
		return err
	}
	return exp.Finish()
}

func walkEntry(tree *model.Tree, e *model.Entry, exp *Exporter) {
	exp.PushName(e.Name)

	if e.Kind == model.KindDir {
		exp.SetStat(entryToStat(tree, e))
		exp.EnterDir()
		if e.Err {
			exp.ListingError()
		} else {
			for _, c := range e.Children() {
				walkEntry(tree, c, exp)
			}
		}
		exp.LeaveDir()
		return
	}

	switch {
	case e.OtherFS:
		exp.SetSpecial(sink.SpecialOtherFS)
	case e.KernFS:
		exp.SetSpecial(sink.SpecialKernFS)
	case e.Excluded:
		exp.SetSpecial(sink.SpecialExcluded)
	case e.Err:
		exp.SetSpecial(sink.SpecialErr)
	default:
		exp.SetStat(entryToStat(tree, e))
	}
}

// entryToStat rebuilds the sink.Stat a live scan would have produced for e,
// using e's own size/blocks (OwnSize/OwnBlocks), not the running Size/Blocks
// aggregate AddStats folded descendants into — the dump format's asize/dsize
// are own values (see parseDir in import.go), and the importer re-derives
// the aggregate itself via the same AddStats folding on the way back in.
// Emitting the aggregate here would double-count every Dir on reimport.
func entryToStat(tree *model.Tree, e *model.Entry) sink.Stat {
	st := sink.Stat{Blocks: e.OwnBlocks, Size: e.OwnSize, NotReg: e.NotReg, HasExt: e.HasExt}
	switch e.Kind {
	case model.KindDir:
		st.Kind = sink.KindDir
		st.Dev = tree.Devices.RawDev(e.Device)
	case model.KindLink:
		st.Kind = sink.KindLink
		st.Ino = e.Inode
		st.Nlink = e.Nlink
	default:
		st.Kind = sink.KindFile
	}
	if e.HasExt && e.Ext != nil {
		st.Mtime, st.UID, st.GID, st.Mode = e.Ext.Mtime, e.Ext.UID, e.Ext.GID, e.Ext.Mode
	}
	return st
}

// ExportToFile calls write with either os.Stdout (path == "-") or a fresh
// temp file that is atomically renamed into place on success, so a
// partial export is never left behind after an error or crash.
func ExportToFile(path string, write func(io.Writer) error) (retErr error) {
	if path == "-" {
		return write(os.Stdout)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".qdu-export-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create export file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return err
		}
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("cannot replace export file %s: %w", path, err)
		}
		if err := os.Rename(tmpPath, path); err != nil {
			return err
		}
	}
	return nil
}
