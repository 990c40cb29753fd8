package ops

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sadopc/qdu/internal/model"
)

// Delete removes entry's filesystem target — a single file/link, or an
// entire subtree for a directory — and then folds the removal into tree's
// running aggregates via DelStatsRec, so the in-memory model and the
// filesystem never disagree about what still exists (spec §6.2).
//
// Symlinks themselves are safe to delete (os.Remove removes the link, not
// the target). However, paths that traverse through a symlinked directory
// are blocked to prevent deleting files outside the scan root.
func Delete(tree *model.Tree, entry *model.Entry, rootPath string) error {
	if entry == tree.Root {
		return fmt.Errorf("refusing to delete the scan root itself")
	}

	path := entry.Path()
	if err := deleteResolved(path, rootPath); err != nil {
		return err
	}

	tree.DelStatsRec(entry, entry.Parent)
	return nil
}

// resolveWithinRoot resolves path's parent directory through symlinks and
// confirms the result stays strictly inside rootPath, returning the
// resolved parent directory and final path component to remove.
func resolveWithinRoot(path, rootPath string) (realParent, baseName string, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return "", "", fmt.Errorf("cannot resolve root %s: %w", rootPath, err)
	}

	// Resolve symlinks on the PARENT dir to catch traversal attacks, while
	// keeping the final component lexical (safe to delete symlinks
	// themselves).
	realParent, err = filepath.EvalSymlinks(filepath.Dir(absPath))
	if err != nil {
		return "", "", fmt.Errorf("cannot resolve parent of %s: %w", absPath, err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", "", fmt.Errorf("cannot resolve root %s: %w", absRoot, err)
	}

	baseName = filepath.Base(absPath)
	realPath := filepath.Join(realParent, baseName)

	// Ensure the target is strictly inside the root (not the root itself).
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("refusing to delete %s: outside scan root %s", absPath, absRoot)
	}
	return realParent, baseName, nil
}

// deleteResolved removes path (resolved safely within rootPath) via the
// platform-specific deleteResolvedPath, which deletes by directory file
// descriptor (openat/unlinkat on Unix) to avoid a TOCTOU race between
// resolving symlinks and performing the removal.
func deleteResolved(path, rootPath string) error {
	realParent, baseName, err := resolveWithinRoot(path, rootPath)
	if err != nil {
		return err
	}
	if err := deleteResolvedPath(realParent, baseName); err != nil {
		return fmt.Errorf("cannot delete %s: %w", filepath.Join(realParent, baseName), err)
	}
	return nil
}
