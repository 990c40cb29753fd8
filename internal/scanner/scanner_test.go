package scanner

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sadopc/qdu/internal/model"
)

func scanInto(t *testing.T, root string, opts Options) *model.Tree {
	t.Helper()
	tree := model.NewTree()
	b := model.NewBuilder(tree)
	if err := ScanRoot(root, b, opts); err != nil {
		t.Fatalf("ScanRoot: %v", err)
	}
	tree.FinalizeLinkCounts()
	return tree
}

func TestScanRoot_EmptyDir(t *testing.T) {
	root := t.TempDir()
	tree := scanInto(t, root, Options{})

	if tree.Root.Items != 0 {
		t.Fatalf("expected 0 items, got %d", tree.Root.Items)
	}
	if tree.Root.Size != 0 || tree.Root.Blocks != 0 {
		t.Fatalf("expected zero size/blocks, got size=%d blocks=%d", tree.Root.Size, tree.Root.Blocks)
	}
	if tree.Root.FirstChild != nil {
		t.Fatal("expected no children")
	}
}

func TestScanRoot_SingleFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	tree := scanInto(t, root, Options{})
	if tree.Root.Items != 1 {
		t.Fatalf("expected 1 item, got %d", tree.Root.Items)
	}
	children := tree.Root.Children()
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	if children[0].Size != 4096 {
		t.Fatalf("expected size 4096, got %d", children[0].Size)
	}
}

func TestScanRoot_ExcludePattern(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "node_modules", "x"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tree := scanInto(t, root, Options{ExcludePatterns: []string{"node_modules"}})
	children := tree.Root.Children()
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	if !children[0].Excluded {
		t.Fatal("expected excluded flag on matched directory")
	}
	if children[0].FirstChild != nil {
		t.Fatal("expected excluded directory not to be descended into")
	}
}

func TestScanRoot_CacheDirTag(t *testing.T) {
	root := t.TempDir()
	cdir := filepath.Join(root, "cache")
	if err := os.Mkdir(cdir, 0o755); err != nil {
		t.Fatal(err)
	}
	tag := "Signature: 8a477f597d28d172789f06886806bc55\r\n# more text"
	if err := os.WriteFile(filepath.Join(cdir, "CACHEDIR.TAG"), []byte(tag), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cdir, "data.bin"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	tree := scanInto(t, root, Options{ExcludeCaches: true})
	children := tree.Root.Children()
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	if children[0].Kind != model.KindFile || !children[0].Excluded {
		t.Fatalf("expected CACHEDIR.TAG'd dir to be an excluded File, got kind=%v excluded=%v", children[0].Kind, children[0].Excluded)
	}
}

func TestScanRoot_HardLinkSharedWithinTree(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hardlinks require POSIX semantics")
	}
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	if err := os.WriteFile(a, make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(a, b); err != nil {
		t.Skipf("hardlinks not supported: %v", err)
	}

	tree := scanInto(t, root, Options{})
	if tree.Root.SharedBlocks != 0 {
		t.Fatalf("expected shared_blocks 0 when both links are inside the tree, got %d", tree.Root.SharedBlocks)
	}
}

func TestScanRoot_NotADirectory(t *testing.T) {
	root := t.TempDir()
	f := filepath.Join(root, "file")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tree := model.NewTree()
	b := model.NewBuilder(tree)
	if err := ScanRoot(f, b, Options{}); err != ErrNotADirectory {
		t.Fatalf("expected ErrNotADirectory, got %v", err)
	}
}

func TestScanRoot_PermissionDeniedSetsErr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("chmod 0o000 not effective on Windows")
	}
	if os.Getuid() == 0 {
		t.Skip("running as root bypasses permission checks")
	}
	root := t.TempDir()
	denied := filepath.Join(root, "noperm")
	if err := os.Mkdir(denied, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(denied, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(denied, 0o755) })

	tree := scanInto(t, root, Options{})
	children := tree.Root.Children()
	var found *model.Entry
	for _, c := range children {
		if c.DisplayName() == "noperm" {
			found = c
		}
	}
	if found == nil {
		t.Fatal("expected noperm entry to be present")
	}
	if !found.Err {
		t.Fatal("expected Err set on unreadable directory")
	}
	if !tree.Root.SubErr {
		t.Fatal("expected SubErr propagated to root")
	}
}
