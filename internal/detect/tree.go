// Package detect implements the detection engine (C3) and its family of
// framework detectors (C2) behind the C1 primitives defined in this file:
// file-presence checks, JSON/text parsing helpers, and dependency-set
// inspection over a walked file tree.
package detect

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Tree is a read-only view of a bundle's extracted file layout. Detection
// must be a pure function of this data — directory walks are sorted
// lexicographically so two bundles with identical file trees always
// produce the same Tree, satisfying the determinism invariant (§8.6).
type Tree struct {
	Root    string
	Files   []string // relative paths, sorted
	fileSet map[string]struct{}
}

// Walk builds a Tree by recursively listing root, skipping the directories
// that never inform detection (their contents are large and irrelevant:
// dependency caches, VCS metadata, build output).
func Walk(root string) (*Tree, error) {
	var files []string
	skipDirs := map[string]struct{}{
		"node_modules": {}, ".git": {}, "vendor": {}, "__pycache__": {},
		".venv": {}, "venv": {}, ".next": {}, ".nuxt": {}, "target": {},
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	t := &Tree{Root: root, Files: files}
	t.buildIndex()
	return t, nil
}

func (t *Tree) buildIndex() {
	t.fileSet = make(map[string]struct{}, len(t.Files))
	for _, f := range t.Files {
		t.fileSet[f] = struct{}{}
	}
}

// HasFile reports whether a relative path exists anywhere in the tree.
func (t *Tree) HasFile(path string) bool {
	if t.fileSet == nil {
		t.buildIndex()
	}
	_, ok := t.fileSet[path]
	return ok
}

// HasAnyFile reports whether at least one of the given relative paths
// exists.
func (t *Tree) HasAnyFile(paths ...string) bool {
	for _, p := range paths {
		if t.HasFile(p) {
			return true
		}
	}
	return false
}

// FirstExisting returns the first path in the candidate list that exists,
// or "" if none do. Used to pick among ordered fallbacks (e.g. app.go,
// then server.go).
func (t *Tree) FirstExisting(candidates ...string) string {
	for _, c := range candidates {
		if t.HasFile(c) {
			return c
		}
	}
	return ""
}

// FilesWithExtension returns every file matching the given extension
// (including the dot, e.g. ".py").
func (t *Tree) FilesWithExtension(ext string) []string {
	var out []string
	for _, f := range t.Files {
		if filepath.Ext(f) == ext {
			out = append(out, f)
		}
	}
	return out
}

// ReadFile reads a file's contents relative to the tree root.
func (t *Tree) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(t.Root, filepath.FromSlash(path)))
}

// ReadJSON reads and unmarshals a JSON file relative to the tree root into
// v. Malformed JSON is returned as an error, allowing the calling detector
// to fall through per the §4.1 error policy instead of panicking the
// engine.
func (t *Tree) ReadJSON(path string, v interface{}) error {
	raw, err := t.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// ReadLinesLower reads a text file relative to the tree root and returns its
// non-empty lines, lowercased for case-insensitive dependency scanning.
func (t *Tree) ReadLinesLower(path string) ([]string, error) {
	raw, err := t.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(strings.ToLower(line))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// ContainsDependency reports whether any line of a requirements-style text
// file contains the given (already-lowercase) needle.
func (t *Tree) ContainsDependency(path, needleLower string) bool {
	lines, err := t.ReadLinesLower(path)
	if err != nil {
		return false
	}
	for _, l := range lines {
		if strings.Contains(l, needleLower) {
			return true
		}
	}
	return false
}
