package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T, maxBytes int64) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(filepath.Join(t.TempDir(), "replies"), maxBytes)
	require.NoError(t, err)
	return store
}

func TestLocalStorageStoreAndOpen(t *testing.T) {
	store := newTestStorage(t, 1024)

	path, written, err := store.Store("reply-123", strings.NewReader("%PDF-1.4 brochure"), "Company Profile.PDF")
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF-1.4 brochure")), written)
	assert.True(t, strings.HasPrefix(path, "reply-123/company_profile_"), path)
	assert.True(t, strings.HasSuffix(path, ".pdf"), path)

	file, err := store.Open(path)
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 brochure", string(content))
}

func TestLocalStorageStoreSanitisesFolder(t *testing.T) {
	store := newTestStorage(t, 0)

	path, _, err := store.Store("../../etc", strings.NewReader("x"), "../../passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "etc/passwd_"), path)

	_, err = os.Stat(filepath.Join(store.Root(), filepath.FromSlash(path)))
	require.NoError(t, err)
}

func TestLocalStorageStoreRejectsOversizedStream(t *testing.T) {
	store := newTestStorage(t, 8)

	_, _, err := store.Store("reply-1", bytes.NewReader(make([]byte, 9)), "big.bin")
	require.ErrorIs(t, err, ErrFileTooLarge)

	files, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, files)
	_, err = os.Stat(filepath.Join(store.Root(), "reply-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorageDelete(t *testing.T) {
	store := newTestStorage(t, 0)
	path, _, err := store.Store("reply-9", strings.NewReader("data"), "notes.txt")
	require.NoError(t, err)

	require.NoError(t, store.Delete(path))
	require.ErrorIs(t, store.Delete(path), ErrFileNotFound)

	_, err = os.Stat(filepath.Join(store.Root(), "reply-9"))
	assert.True(t, os.IsNotExist(err), "empty reply folder should be removed")
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store := newTestStorage(t, 0)
	outside := filepath.Join(filepath.Dir(store.Root()), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	for _, p := range []string{"../secret.txt", "reply/../../secret.txt", outside, ""} {
		err := store.Delete(p)
		assert.ErrorIs(t, err, ErrOutsideRoot, p)
	}
	_, err := os.Stat(outside)
	require.NoError(t, err, "file outside root must survive")
}

func TestLocalStorageRejectsSymlinkEscape(t *testing.T) {
	store := newTestStorage(t, 0)
	outside := filepath.Join(filepath.Dir(store.Root()), "target.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "reply-1"), 0o755))
	link := filepath.Join(store.Root(), "reply-1", "link.txt")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	require.ErrorIs(t, store.Delete("reply-1/link.txt"), ErrOutsideRoot)
	_, err := store.Open("reply-1/link.txt")
	require.ErrorIs(t, err, ErrOutsideRoot)
	_, err = os.Stat(outside)
	require.NoError(t, err)
}

func TestLocalStorageRejectsDirectories(t *testing.T) {
	store := newTestStorage(t, 0)
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "reply-1"), 0o755))
	require.ErrorIs(t, store.Delete("reply-1"), ErrNotAFile)
}

func TestLocalStorageList(t *testing.T) {
	store := newTestStorage(t, 0)
	first, _, err := store.Store("a", strings.NewReader("1"), "one.txt")
	require.NoError(t, err)
	second, _, err := store.Store("b", strings.NewReader("22"), "two.txt")
	require.NoError(t, err)

	files, err := store.List()
	require.NoError(t, err)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{first, second}, paths)
}

func TestLocalStorageStageAndRestore(t *testing.T) {
	store := newTestStorage(t, 0)
	path, _, err := store.Store("reply-4", strings.NewReader("quote"), "quote.txt")
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.Root(), filepath.FromSlash(path)), old, old))

	staged, err := store.Stage(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(staged, ".trash/"), staged)
	_, err = store.Open(path)
	require.ErrorIs(t, err, ErrFileNotFound)

	files, err := store.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, staged, files[0].Path)
	assert.True(t, files[0].ModTime.After(old.Add(time.Hour)), "staged file should look fresh to the reconciler")

	require.NoError(t, store.Restore(staged, path))
	file, err := store.Open(path)
	require.NoError(t, err)
	content, err := io.ReadAll(file)
	require.NoError(t, file.Close())
	require.NoError(t, err)
	assert.Equal(t, "quote", string(content))
	_, err = os.Stat(filepath.Join(store.Root(), trashDir))
	assert.True(t, os.IsNotExist(err), "empty trash folder should be removed")

	staged, err = store.Stage(path)
	require.NoError(t, err)
	require.NoError(t, store.Delete(staged))
	files, err = store.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLocalStorageStageRejectsUnsafePaths(t *testing.T) {
	store := newTestStorage(t, 0)
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "reply-1"), 0o755))

	_, err := store.Stage("../secret.txt")
	require.ErrorIs(t, err, ErrOutsideRoot)
	_, err = store.Stage("reply-1")
	require.ErrorIs(t, err, ErrNotAFile)
	_, err = store.Stage("reply-1/missing.txt")
	require.ErrorIs(t, err, ErrFileNotFound)

	path, _, err := store.Store("reply-2", strings.NewReader("x"), "x.txt")
	require.NoError(t, err)
	staged, err := store.Stage(path)
	require.NoError(t, err)
	require.ErrorIs(t, store.Restore(staged, "../escaped.txt"), ErrOutsideRoot)
}

func TestGenerateFilename(t *testing.T) {
	name := GenerateFilename(`C:\Users\ops\Quote (final).DOCX`)
	assert.True(t, strings.HasPrefix(name, "quote__final_"), name)
	assert.True(t, strings.HasSuffix(name, ".docx"), name)

	name = GenerateFilename(".....")
	assert.True(t, strings.HasPrefix(name, "file_"), name)

	name = GenerateFilename("archive.tar.gz$$")
	assert.False(t, strings.Contains(name, "$"), name)
}

func TestSanitizeFolder(t *testing.T) {
	assert.Equal(t, "reply-1_a", SanitizeFolder("reply-1_a"))
	assert.Equal(t, "etc", SanitizeFolder("../etc/"))
	assert.Equal(t, "general", SanitizeFolder("../"))
}
