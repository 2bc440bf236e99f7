package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadFile(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteFileTool(dir)
	read := NewReadFileTool(dir)

	path := filepath.Join(dir, "notes", "hello.txt")
	out, err := write.Execute(context.Background(), map[string]interface{}{
		"path":    path,
		"content": "hello sandbox",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "hello.txt")

	got, err := read.Execute(context.Background(), map[string]interface{}{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "hello sandbox", got)
}

func TestReadFileMissingReturnsErrorText(t *testing.T) {
	dir := t.TempDir()
	read := NewReadFileTool(dir)

	out, err := read.Execute(context.Background(), map[string]interface{}{
		"path": filepath.Join(dir, "nope.txt"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error:"), "got %q", out)
}

func TestSandboxRefusesOutsidePath(t *testing.T) {
	dir := t.TempDir()

	for _, tool := range []Tool{
		NewReadFileTool(dir),
		NewWriteFileTool(dir),
		NewAppendFileTool(dir),
		NewEditFileTool(dir),
		NewListDirTool(dir),
	} {
		out, err := tool.Execute(context.Background(), map[string]interface{}{
			"path":     "/etc/passwd",
			"content":  "x",
			"old_text": "a",
			"new_text": "b",
		})
		require.NoError(t, err, tool.Name())
		assert.True(t, strings.HasPrefix(out, "Error:"), "%s returned %q", tool.Name(), out)
		assert.Contains(t, out, "outside the allowed workspace", tool.Name())
	}
}

func TestSandboxRefusesDotDotEscape(t *testing.T) {
	dir := t.TempDir()
	read := NewReadFileTool(dir)

	out, err := read.Execute(context.Background(), map[string]interface{}{
		"path": filepath.Join(dir, "..", "escape.txt"),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "outside the allowed workspace")
}

func TestNoSandboxWhenUnset(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteFileTool("")

	path := filepath.Join(dir, "free.txt")
	out, err := write.Execute(context.Background(), map[string]interface{}{
		"path":    path,
		"content": "anywhere",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "outside the allowed workspace")
}

func TestEditFileReplacesText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")

	write := NewWriteFileTool(dir)
	_, err := write.Execute(context.Background(), map[string]interface{}{
		"path":    path,
		"content": "the quick brown fox",
	})
	require.NoError(t, err)

	edit := NewEditFileTool(dir)
	_, err = edit.Execute(context.Background(), map[string]interface{}{
		"path":     path,
		"old_text": "brown",
		"new_text": "calico",
	})
	require.NoError(t, err)

	read := NewReadFileTool(dir)
	got, err := read.Execute(context.Background(), map[string]interface{}{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "the quick calico fox", got)
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteFileTool(dir)
	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := write.Execute(context.Background(), map[string]interface{}{
			"path":    filepath.Join(dir, name),
			"content": "x",
		})
		require.NoError(t, err)
	}

	list := NewListDirTool(dir)
	out, err := list.Execute(context.Background(), map[string]interface{}{"path": dir})
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "b.txt")
}
