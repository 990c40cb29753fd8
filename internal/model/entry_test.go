package model

import "testing"

func TestBlocksToBytes_ScalesAndSaturates(t *testing.T) {
	if got := BlocksToBytes(0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := BlocksToBytes(1); got != 512 {
		t.Fatalf("expected 512, got %d", got)
	}
	if got := BlocksToBytes(1 << 55); got != ^uint64(0) {
		t.Fatalf("expected saturation at 2^55, got %d", got)
	}
	if got := BlocksToBytes((1 << 55) - 1); got != (1<<55-1)<<9 {
		t.Fatalf("expected exact shift just below the limit, got %d", got)
	}
}

func TestClampBlocks60_Saturates(t *testing.T) {
	if got := ClampBlocks60(MaxBlocks60); got != MaxBlocks60 {
		t.Fatalf("expected unchanged at the limit, got %d", got)
	}
	if got := ClampBlocks60(MaxBlocks60 + 1); got != MaxBlocks60 {
		t.Fatalf("expected clamp to MaxBlocks60, got %d", got)
	}
}

func TestSatAddU64_ClampsAtMax(t *testing.T) {
	if got := satAddU64(^uint64(0), 1); got != ^uint64(0) {
		t.Fatalf("expected saturation, got %d", got)
	}
	if got := satAddU64(1, 2); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestSatSubU64_ClampsAtZero(t *testing.T) {
	if got := satSubU64(1, 2); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := satSubU64(5, 2); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestEntry_DisplayName_RepairsInvalidUTF8(t *testing.T) {
	e := &Entry{Name: []byte{'a', 0xff, 'b'}}
	if got := e.DisplayName(); got != "a�b" {
		t.Fatalf("expected lossy repair, got %q", got)
	}
}

func TestEntry_Path_WalksParentChain(t *testing.T) {
	root := &Entry{Kind: KindDir, Name: []byte("root")}
	sub := &Entry{Kind: KindDir, Name: []byte("sub"), Parent: root}
	file := &Entry{Kind: KindFile, Name: []byte("a.txt"), Parent: sub}

	if got, want := file.Path(), "root/sub/a.txt"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTree_AddStats_FoldsIntoAncestors(t *testing.T) {
	tree := NewTree()
	root := tree.Create(KindDir, false, []byte("root"))
	tree.Root = root

	sub := tree.Create(KindDir, false, []byte("sub"))
	tree.Insert(sub, root)

	file := tree.Create(KindFile, false, []byte("a.txt"))
	file.Size = 100
	file.Blocks = 1
	tree.Insert(file, sub)

	if root.Size != 100 || root.Items != 2 {
		t.Fatalf("expected root size=100 items=2, got size=%d items=%d", root.Size, root.Items)
	}
	if sub.Size != 100 || sub.Items != 1 {
		t.Fatalf("expected sub size=100 items=1, got size=%d items=%d", sub.Size, sub.Items)
	}
}

func TestTree_AddStats_IsIdempotentOnceCounted(t *testing.T) {
	tree := NewTree()
	root := tree.Create(KindDir, false, []byte("root"))
	tree.Root = root

	file := tree.Create(KindFile, false, []byte("a.txt"))
	file.Size = 50
	file.Blocks = 1
	tree.Insert(file, root)

	// A second AddStats call (e.g. a buggy double-drive of the sink) must
	// not double-count: entry.Counted already guards it.
	tree.AddStats(file, root)

	if root.Size != 50 {
		t.Fatalf("expected size to be counted once, got %d", root.Size)
	}
}

func TestTree_DelStats_ReversesAddStats(t *testing.T) {
	tree := NewTree()
	root := tree.Create(KindDir, false, []byte("root"))
	tree.Root = root

	file := tree.Create(KindFile, false, []byte("a.txt"))
	file.Size = 200
	file.Blocks = 4
	tree.Insert(file, root)

	if root.Size != 200 || root.Items != 1 {
		t.Fatalf("setup: expected size=200 items=1, got size=%d items=%d", root.Size, root.Items)
	}

	tree.DelStats(file, root)

	if root.Size != 0 || root.Items != 0 {
		t.Fatalf("expected DelStats to fully reverse AddStats, got size=%d items=%d", root.Size, root.Items)
	}
	if file.Counted {
		t.Fatal("expected entry.Counted cleared after DelStats")
	}
}

func TestTree_DelStatsRec_UnlinksAndUncountsSubtree(t *testing.T) {
	tree := NewTree()
	root := tree.Create(KindDir, false, []byte("root"))
	tree.Root = root

	sub := tree.Create(KindDir, false, []byte("sub"))
	tree.Insert(sub, root)

	a := tree.Create(KindFile, false, []byte("a.txt"))
	a.Size, a.Blocks = 10, 1
	tree.Insert(a, sub)

	b := tree.Create(KindFile, false, []byte("b.txt"))
	b.Size, b.Blocks = 20, 1
	tree.Insert(b, sub)

	tree.DelStatsRec(sub, root)

	if root.Size != 0 || root.Items != 0 {
		t.Fatalf("expected root fully uncounted, got size=%d items=%d", root.Size, root.Items)
	}
	if root.FirstChild != nil {
		t.Fatal("expected sub unlinked from root's child list")
	}
}

func TestTree_Insert_PrependsToChildList(t *testing.T) {
	tree := NewTree()
	root := tree.Create(KindDir, false, []byte("root"))
	tree.Root = root

	first := tree.Create(KindFile, false, []byte("first"))
	tree.Insert(first, root)

	second := tree.Create(KindFile, false, []byte("second"))
	tree.Insert(second, root)

	children := root.Children()
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	// Insert prepends, so the most recently inserted entry comes first.
	if children[0].DisplayName() != "second" || children[1].DisplayName() != "first" {
		t.Fatalf("unexpected child order: %q, %q", children[0].DisplayName(), children[1].DisplayName())
	}
}

func TestTree_SetErr_PropagatesSubErrUpToFirstAlreadySet(t *testing.T) {
	tree := NewTree()
	root := tree.Create(KindDir, false, []byte("root"))
	tree.Root = root

	mid := tree.Create(KindDir, false, []byte("mid"))
	tree.Insert(mid, root)
	mid.SubErr = true

	leaf := tree.Create(KindDir, false, []byte("leaf"))
	tree.Insert(leaf, mid)

	file := tree.Create(KindFile, false, []byte("broken"))
	tree.SetErr(file, leaf)

	if !file.Err {
		t.Fatal("expected entry marked Err")
	}
	if !leaf.SubErr {
		t.Fatal("expected leaf marked SubErr")
	}
	// mid already had SubErr set, so SetErr should stop there; root must
	// be untouched by this call.
	if root.SubErr {
		t.Fatal("expected propagation to stop at the first already-set ancestor")
	}
}

func TestEntry_Children_ReturnsNilForFiles(t *testing.T) {
	file := &Entry{Kind: KindFile}
	if got := file.Children(); got != nil {
		t.Fatalf("expected nil children for a file entry, got %v", got)
	}
}

func TestEntry_ApparentSizeAndDiskUsage(t *testing.T) {
	e := &Entry{Size: 100, Blocks: 1}
	if got := e.ApparentSize(); got != 100 {
		t.Fatalf("expected apparent size 100, got %d", got)
	}
	if got := e.DiskUsage(); got != 512 {
		t.Fatalf("expected disk usage 512, got %d", got)
	}
}
