package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestWalkSkipsVendorDirs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":                  "package main",
		"node_modules/leftpad/index.js": "module.exports = {}",
		".git/HEAD":                "ref: refs/heads/main",
	})

	tree, err := Walk(root)
	require.NoError(t, err)
	require.Contains(t, tree.Files, "main.go")
	require.NotContains(t, tree.Files, "node_modules/leftpad/index.js")
	require.NotContains(t, tree.Files, ".git/HEAD")
}

func TestWalkIsDeterministicallySorted(t *testing.T) {
	root := writeTree(t, map[string]string{
		"z.txt": "z",
		"a.txt": "a",
		"m.txt": "m",
	})

	tree, err := Walk(root)
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt", "m.txt", "z.txt"}, tree.Files)
}

func TestContainsDependency(t *testing.T) {
	root := writeTree(t, map[string]string{
		"requirements.txt": "Flask==2.0\nFastAPI==0.1\n",
	})
	tree, err := Walk(root)
	require.NoError(t, err)
	require.True(t, tree.ContainsDependency("requirements.txt", "fastapi"))
	require.False(t, tree.ContainsDependency("requirements.txt", "django"))
}
