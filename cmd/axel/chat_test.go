package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axelhq/axel/provider"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveBackendURL(t *testing.T) {
	t.Setenv("AXEL_BACKEND_URL", "")
	assert.Equal(t, defaultBackendURL, resolveBackendURL(""))

	t.Setenv("AXEL_BACKEND_URL", "http://gateway:9999")
	assert.Equal(t, "http://gateway:9999", resolveBackendURL(""))

	// An explicit flag beats the environment.
	assert.Equal(t, "http://flag:1234", resolveBackendURL("http://flag:1234"))
}

func TestBuildMessages_NoContext(t *testing.T) {
	msgs, err := buildMessages("hello", nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, provider.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestBuildMessages_WithContextGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.go"), "package main")
	writeFile(t, filepath.Join(dir, "pkg", "util.go"), "package pkg")
	writeFile(t, filepath.Join(dir, "README.md"), "docs")

	msgs, err := buildMessages("explain this", []string{filepath.Join(dir, "**", "*.go")})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, provider.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "package main")
	assert.Contains(t, msgs[0].Content, "package pkg")
	assert.NotContains(t, msgs[0].Content, "docs")

	assert.Equal(t, provider.RoleUser, msgs[1].Role)
	assert.Equal(t, "explain this", msgs[1].Content)
}

func TestCollectContextFiles_Dedupes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a")

	files, err := collectContextFiles([]string{
		filepath.Join(dir, "*.go"),
		filepath.Join(dir, "a.go"),
	})
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestCollectContextFiles_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "a.go"), "package a")

	files, err := collectContextFiles([]string{filepath.Join(dir, "*")})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCollectContextFiles_BadPattern(t *testing.T) {
	_, err := collectContextFiles([]string{"[unclosed"})
	assert.Error(t, err)
}
