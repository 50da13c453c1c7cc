package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("a/b/photo.JPG"))
	assert.True(t, IsImageFile("scan.webp"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile("noext"))
}

func TestCellFilename(t *testing.T) {
	got := CellFilename(BaseName("/in/photo.png"), "/out", "", "", "jpg", 0, 2)
	assert.Equal(t, filepath.Join("/out", "photo_1_3.jpg"), got)

	got = CellFilename("page", "out", "p-", "_cut", "webp", 4, 0)
	assert.Equal(t, filepath.Join("out", "p-page_5_1_cut.webp"), got)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "photo.old", BaseName("/x/photo.old.png"))
	assert.Equal(t, "image", BaseName(".png"))
}

func TestListImageFilesNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"img10.png", "img2.png", "img1.jpg", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "img1.jpg"),
		filepath.Join(dir, "img2.png"),
		filepath.Join(dir, "img10.png"),
	}, files)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename("a/b:c"))
	assert.Equal(t, "image", SanitizeFilename(" .. "))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, FileExists(dir))
}
