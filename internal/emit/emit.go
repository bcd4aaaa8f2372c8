// Package emit turns rewritten trees back into files: import injection for
// rewritten artifacts, the shared module, and atomic writes.
package emit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"relaydedup/internal/tree"
)

// SharedEntry is one extraction as the shared module sees it.
type SharedEntry struct {
	Name    string
	Content *tree.Value
}

// CollectRefs gathers the distinct Reference names under v, sorted.
func CollectRefs(v *tree.Value) []string {
	seen := make(map[string]struct{})
	collectRefs(v, seen)
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

func collectRefs(v *tree.Value, seen map[string]struct{}) {
	switch v.Kind {
	case tree.Reference:
		seen[v.Text] = struct{}{}
	case tree.Array:
		for _, e := range v.Elems {
			collectRefs(e, seen)
		}
	case tree.Object:
		for _, e := range v.Entries {
			collectRefs(e.Val, seen)
		}
	}
}

// RenderFile reassembles a rewritten artifact: prelude + printed literal +
// postlude, with the shared-module import refreshed to match the References
// actually present in the tree.
func RenderFile(prelude, postlude []byte, root *tree.Value, sharedName string) string {
	content := string(prelude) + tree.Print(root) + string(postlude)
	return UpdateImports(content, CollectRefs(root), sharedName)
}

// UpdateImports drops any existing import from the shared module and, when
// refs is non-empty, inserts a single sorted import after the last leading
// import line and before the first statement.
func UpdateImports(content string, refs []string, sharedName string) string {
	importSource := "./" + strings.TrimSuffix(sharedName, filepath.Ext(sharedName))
	importMarker := `from "` + importSource + `"`

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !strings.Contains(line, importMarker) {
			kept = append(kept, line)
		}
	}
	lines = kept

	if len(refs) == 0 {
		return ensureTrailingNewline(strings.Join(lines, "\n"))
	}

	sorted := append([]string(nil), refs...)
	sort.Strings(sorted)
	importLine := fmt.Sprintf("import { %s } %s;", strings.Join(sorted, ", "), importMarker)

	// Place the import after the last leading import, or failing that after
	// the leading banner block, and always before the first statement.
	insertAt := 0
	sawImport := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") {
			insertAt = i + 1
			sawImport = true
			continue
		}
		if !sawImport && insertAt == i && isBannerLine(trimmed) {
			insertAt = i + 1
			continue
		}
		if strings.HasPrefix(trimmed, "export ") || strings.HasPrefix(trimmed, "const ") {
			break
		}
	}

	lines = append(lines, "")
	copy(lines[insertAt+1:], lines[insertAt:])
	lines[insertAt] = importLine
	return ensureTrailingNewline(strings.Join(lines, "\n"))
}

func isBannerLine(trimmed string) bool {
	return trimmed == "" ||
		strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*")
}

func ensureTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// SharedModule renders the shared module: one export per extraction in
// insertion order. The pass engine appends extractions in promotion order, so
// every reference inside an entry resolves to an earlier entry.
func SharedModule(entries []SharedEntry) string {
	var b strings.Builder
	b.WriteString("/**\n")
	b.WriteString(" * @generated - Do not edit manually\n")
	b.WriteString(" * Shared structures extracted from generated artifacts\n")
	b.WriteString(" */\n\n")
	for _, e := range entries {
		b.WriteString("export const ")
		b.WriteString(e.Name)
		b.WriteString(" = ")
		b.WriteString(tree.PrintCompact(e.Content))
		b.WriteString(";\n")
	}
	return b.String()
}

// WriteFileAtomic writes content to path via a temporary sibling and rename,
// so a failed write never leaves a half-written artifact behind.
func WriteFileAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("emit: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("emit: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("emit: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("emit: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("emit: rename %s: %w", path, err)
	}
	return nil
}
