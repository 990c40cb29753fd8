package ops

import (
	"strings"
	"testing"

	"github.com/sadopc/qdu/internal/model"
)

func importString(t *testing.T, data string) (*model.Tree, error) {
	t.Helper()
	tree := model.NewTree()
	b := model.NewBuilder(tree)
	err := Import(strings.NewReader(data), b)
	if err == nil {
		tree.FinalizeLinkCounts()
	}
	return tree, err
}

func TestImport_Basic(t *testing.T) {
	data := `[1,2,{"progname":"qdu","progver":"dev","timestamp":0},
		[{"name":"/tmp/root","asize":0,"dsize":0},
			{"name":"ok.txt","asize":12,"dsize":4096}
		]]`

	tree, err := importString(t, data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if tree.Root.DisplayName() != "/tmp/root" {
		t.Fatalf("expected root name, got %q", tree.Root.DisplayName())
	}
	children := tree.Root.Children()
	if len(children) != 1 || children[0].DisplayName() != "ok.txt" {
		t.Fatalf("expected ok.txt child, got %+v", children)
	}
	if children[0].Size != 12 {
		t.Fatalf("expected size 12, got %d", children[0].Size)
	}
	if children[0].Blocks != 8 {
		t.Fatalf("expected 8 blocks (4096/512), got %d", children[0].Blocks)
	}
}

func TestImport_RejectsUnsupportedMajorVersion(t *testing.T) {
	data := `[2,0,{},[{"name":"/root"}]]`
	_, err := importString(t, data)
	if err == nil {
		t.Fatal("expected major-version mismatch to fail import")
	}
}

func TestImport_MissingNameIsError(t *testing.T) {
	data := `[1,2,{},[{"asize":0}]]`
	_, err := importString(t, data)
	if err == nil {
		t.Fatal("expected missing name to fail import")
	}
}

func TestImport_DuplicateNameIsError(t *testing.T) {
	data := `[1,2,{},[{"name":"/root","name":"/root2"}]]`
	_, err := importString(t, data)
	if err == nil {
		t.Fatal("expected duplicate name key to fail import")
	}
}

func TestImport_UnknownKeysAreSkipped(t *testing.T) {
	data := `[1,2,{},
		[{"name":"/root","futurefield":{"nested":[1,2,3]},"another":"x"},
			{"name":"f.txt","asize":1,"dsize":1,"somethingelse":[{"a":1}]}
		]]`
	tree, err := importString(t, data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	children := tree.Root.Children()
	if len(children) != 1 || children[0].DisplayName() != "f.txt" {
		t.Fatalf("expected f.txt child despite unknown keys, got %+v", children)
	}
}

func TestImport_ExcludedLeafDoesNotOpenArray(t *testing.T) {
	data := `[1,2,{},
		[{"name":"/root"},
			{"name":"node_modules","excluded":"pattern"}
		]]`
	tree, err := importString(t, data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	children := tree.Root.Children()
	if len(children) != 1 || !children[0].Excluded {
		t.Fatalf("expected excluded node_modules leaf, got %+v", children)
	}
}

func TestImport_ReadErrorPropagatesSubErr(t *testing.T) {
	data := `[1,2,{},
		[{"name":"/root"},
			[{"name":"noperm","read_error":true}]
		]]`
	tree, err := importString(t, data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !tree.Root.SubErr {
		t.Fatal("expected SubErr propagated to root from child dir read_error")
	}
}

func TestImport_NonUTF8NameRoundTrip(t *testing.T) {
	// \xff is not valid UTF-8 and must pass through the import byte-for-byte.
	data := "[1,2,{},[{\"name\":\"/root\"},{\"name\":\"bad\xffname\",\"asize\":1,\"dsize\":1}]]"
	tree, err := importString(t, data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	children := tree.Root.Children()
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	if string(children[0].Name) != "bad\xffname" {
		t.Fatalf("expected raw non-UTF-8 name preserved, got %q", children[0].Name)
	}
}

func TestImport_UnicodeEscape(t *testing.T) {
	data := `[1,2,{},[{"name":"/root"},{"name":"caf\u00e9.txt","asize":1,"dsize":1}]]`
	tree, err := importString(t, data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	children := tree.Root.Children()
	if len(children) != 1 || children[0].DisplayName() != "café.txt" {
		t.Fatalf("expected decoded unicode escape, got %+v", children)
	}
}

func TestImport_TrailingTopLevelElementsTolerated(t *testing.T) {
	data := `[1,2,{},[{"name":"/root"}],"future-extension"]`
	_, err := importString(t, data)
	if err != nil {
		t.Fatalf("expected trailing top-level elements to be tolerated, got: %v", err)
	}
}

func TestImport_HardlinkWithNlinkCloses(t *testing.T) {
	data := `[1,2,{},
		[{"name":"/root","dev":1},
			{"name":"a.txt","asize":100,"dsize":512,"ino":7,"hlnkc":true,"nlink":2},
			{"name":"b.txt","asize":100,"dsize":512,"ino":7,"hlnkc":true,"nlink":2}
		]]`
	tree, err := importString(t, data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	// Both links resolve within the tree, so shared_blocks should net to zero
	// once the second occurrence closes out the known nlink count.
	if tree.Root.SharedBlocks != 0 {
		t.Fatalf("expected shared_blocks 0 once all hardlink occurrences seen, got %d", tree.Root.SharedBlocks)
	}
	if tree.Root.Size != 100 {
		t.Fatalf("expected apparent size counted once (100) for a fully-resolved hardlink pair, got %d", tree.Root.Size)
	}
}
