package ops

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sadopc/qdu/internal/model"
	"github.com/sadopc/qdu/internal/sink"
)

func buildSimpleTree(t *testing.T) *model.Tree {
	t.Helper()
	tree := model.NewTree()
	b := model.NewBuilder(tree)

	b.PushName([]byte("root"))
	b.SetStat(sink.Stat{Kind: sink.KindDir, Dev: 1})
	b.EnterDir()

	b.PushName([]byte("file.txt"))
	b.SetStat(sink.Stat{Kind: sink.KindFile, Size: 12, Blocks: 8, Dev: 1})

	b.LeaveDir()
	return tree
}

func TestExportTree_Stdout(t *testing.T) {
	tree := buildSimpleTree(t)

	var buf bytes.Buffer
	if err := ExportTree(tree, &buf, "test-version"); err != nil {
		t.Fatalf("ExportTree: %v", err)
	}

	out := strings.TrimSpace(buf.String())
	if !strings.Contains(out, `"progver":"test-version"`) {
		t.Fatalf("expected version in export output, got:\n%s", out)
	}
	if !strings.Contains(out, `"name":"file.txt"`) {
		t.Fatalf("expected file entry in export output, got:\n%s", out)
	}
	if !strings.HasPrefix(out, "[1, 2,") {
		t.Fatalf("expected MAJOR=1 MINOR=2 header, got:\n%s", out)
	}
}

func TestExportTree_RoundTrip(t *testing.T) {
	tree := buildSimpleTree(t)

	var buf bytes.Buffer
	if err := ExportTree(tree, &buf, "test"); err != nil {
		t.Fatalf("export: %v", err)
	}

	reimported := model.NewTree()
	rb := model.NewBuilder(reimported)
	if err := Import(&buf, rb); err != nil {
		t.Fatalf("import: %v", err)
	}
	reimported.FinalizeLinkCounts()

	if reimported.Root.Size != tree.Root.Size {
		t.Fatalf("expected round-tripped size %d, got %d", tree.Root.Size, reimported.Root.Size)
	}
	children := reimported.Root.Children()
	if len(children) != 1 || children[0].DisplayName() != "file.txt" {
		t.Fatalf("expected round-tripped file.txt child, got %+v", children)
	}
}

func TestExportTree_DirReadErrorFlag(t *testing.T) {
	tree := model.NewTree()
	b := model.NewBuilder(tree)

	b.PushName([]byte("root"))
	b.SetStat(sink.Stat{Kind: sink.KindDir, Dev: 1})
	b.EnterDir()

	b.PushName([]byte("noperm"))
	b.SetStat(sink.Stat{Kind: sink.KindDir, Dev: 1})
	b.EnterDir()
	b.ListingError()
	b.LeaveDir()

	b.LeaveDir()

	var buf bytes.Buffer
	if err := ExportTree(tree, &buf, "test"); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(buf.String(), `"read_error":true`) {
		t.Fatalf("expected read_error flag in export: %s", buf.String())
	}
}

func TestExportToFile_AtomicNoPartialFile(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "output.json")

	tree := buildSimpleTree(t)
	err := ExportToFile(target, func(w io.Writer) error {
		return ExportTree(tree, w, "test")
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}

	// No stray temp files should be left behind in the target directory.
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "output.json" {
		t.Fatalf("expected exactly one file in %s, got %+v", tmp, entries)
	}
}

func TestExportToFile_OverwriteExistingFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "scan.json")

	treeA := model.NewTree()
	ba := model.NewBuilder(treeA)
	ba.PushName([]byte("root"))
	ba.SetStat(sink.Stat{Kind: sink.KindDir, Dev: 1})
	ba.EnterDir()
	ba.PushName([]byte("a.txt"))
	ba.SetStat(sink.Stat{Kind: sink.KindFile, Size: 1, Blocks: 1, Dev: 1})
	ba.LeaveDir()

	if err := ExportToFile(path, func(w io.Writer) error { return ExportTree(treeA, w, "test") }); err != nil {
		t.Fatalf("first export failed: %v", err)
	}

	treeB := model.NewTree()
	bb := model.NewBuilder(treeB)
	bb.PushName([]byte("root"))
	bb.SetStat(sink.Stat{Kind: sink.KindDir, Dev: 1})
	bb.EnterDir()
	bb.PushName([]byte("b.txt"))
	bb.SetStat(sink.Stat{Kind: sink.KindFile, Size: 7, Blocks: 1, Dev: 1})
	bb.LeaveDir()

	if err := ExportToFile(path, func(w io.Writer) error { return ExportTree(treeB, w, "test") }); err != nil {
		t.Fatalf("second export failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	reimported := model.NewTree()
	rb := model.NewBuilder(reimported)
	if err := Import(f, rb); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	reimported.FinalizeLinkCounts()

	children := reimported.Root.Children()
	if len(children) != 1 || children[0].DisplayName() != "b.txt" {
		t.Fatalf("expected overwritten export to contain b.txt, got %+v", children)
	}
}

func TestExportTree_NonUTF8NamePassesThroughVerbatim(t *testing.T) {
	tree := model.NewTree()
	b := model.NewBuilder(tree)
	b.PushName([]byte("root"))
	b.SetStat(sink.Stat{Kind: sink.KindDir, Dev: 1})
	b.EnterDir()
	badName := []byte{'b', 'a', 'd', 0xff, 0xfe, 'x'}
	b.PushName(badName)
	b.SetStat(sink.Stat{Kind: sink.KindFile, Size: 1, Blocks: 1, Dev: 1})
	b.LeaveDir()

	var buf bytes.Buffer
	if err := ExportTree(tree, &buf, "test"); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), badName) {
		t.Fatalf("expected raw non-UTF-8 bytes to appear verbatim in export, got:\n%s", buf.String())
	}
}

func TestExportTree_ControlBytesEscaped(t *testing.T) {
	tree := model.NewTree()
	b := model.NewBuilder(tree)
	b.PushName([]byte("root"))
	b.SetStat(sink.Stat{Kind: sink.KindDir, Dev: 1})
	b.EnterDir()
	b.PushName([]byte{'a', 0x01, 'b'})
	b.SetStat(sink.Stat{Kind: sink.KindFile, Size: 1, Blocks: 1, Dev: 1})
	b.LeaveDir()

	var buf bytes.Buffer
	if err := ExportTree(tree, &buf, "test"); err != nil {
		t.Fatalf("export: %v", err)
	}
	want := []byte(`\u0001`)
	if !bytes.Contains(buf.Bytes(), want) {
		t.Fatalf("expected control byte escaped as %s, got:\n%s", want, buf.String())
	}
}
