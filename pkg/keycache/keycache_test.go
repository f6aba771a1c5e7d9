package keycache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_WritesOwnerOnlyFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c := NewWithDir(dir)

	path, err := c.Store("dn/host1.example.com@EXAMPLE.COM", []byte("keytab-bytes"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("expected cached file under %s, got %s", dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(data) != "keytab-bytes" {
		t.Fatalf("unexpected cached content: %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat cached file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %o", info.Mode().Perm())
	}

	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat cache dir: %v", err)
	}
	if dirInfo.Mode().Perm() != 0o700 {
		t.Fatalf("expected cache dir mode 0700, got %o", dirInfo.Mode().Perm())
	}
}

func TestStore_NameIsHashedPrincipalPlusSalt(t *testing.T) {
	dir := t.TempDir()
	c := New(Config{
		Dir:  dir,
		Salt: func() string { return "12345" },
	})

	path, err := c.Store("hdfs@EXAMPLE.COM", []byte("data"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	sum := sha1.Sum([]byte("hdfs@EXAMPLE.COM12345"))
	want := filepath.Join(dir, hex.EncodeToString(sum[:]))
	if path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
}

func TestStore_FreshFilePerCall(t *testing.T) {
	salts := []string{"1", "2"}
	i := 0
	c := New(Config{
		Dir: t.TempDir(),
		Salt: func() string {
			s := salts[i]
			i++
			return s
		},
	})

	first, err := c.Store("hdfs", []byte("v1"))
	if err != nil {
		t.Fatalf("first Store failed: %v", err)
	}
	second, err := c.Store("hdfs", []byte("v2"))
	if err != nil {
		t.Fatalf("second Store failed: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct cache files for successive stores")
	}
}

func TestStore_Unconfigured(t *testing.T) {
	c := NewWithDir("")

	_, err := c.Store("hdfs", []byte("data"))
	if !errors.Is(err, ErrCacheUnconfigured) {
		t.Fatalf("expected ErrCacheUnconfigured, got %v", err)
	}
}

func TestStore_DirectoryCreationFailure(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "cache")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o600); err != nil {
		t.Fatalf("write blocker file: %v", err)
	}

	c := NewWithDir(blocker)
	_, err := c.Store("hdfs", []byte("data"))
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable when cache directory path is a file, got %v", err)
	}
}

func TestStore_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	c := New(Config{
		Dir:  dir,
		Salt: func() string { return "12345" },
	})

	// Occupy the exact cache file name with a directory so the write's
	// final rename cannot land.
	sum := sha1.Sum([]byte("hdfs@EXAMPLE.COM12345"))
	if err := os.Mkdir(filepath.Join(dir, hex.EncodeToString(sum[:])), 0o700); err != nil {
		t.Fatalf("mkdir blocker: %v", err)
	}

	_, err := c.Store("hdfs@EXAMPLE.COM", []byte("data"))
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable on write failure, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	c := NewWithDir(t.TempDir())

	path, err := c.Store("hdfs", []byte("data"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if err := c.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected cached file to be gone, got %v", err)
	}

	// Removing it again is a no-op.
	if err := c.Remove(path); err != nil {
		t.Fatalf("expected Remove of missing file to succeed, got %v", err)
	}
}

func TestList_SortedAndSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewWithDir(dir)

	if _, err := c.Store("b-principal", []byte("b")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := c.Store("a-principal", []byte("a")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "partial.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	entries, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Path >= entries[1].Path {
		t.Fatalf("expected sorted entries, got %s then %s", entries[0].Path, entries[1].Path)
	}
}

func TestList_MissingDirectory(t *testing.T) {
	c := NewWithDir(filepath.Join(t.TempDir(), "never-created"))

	entries, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestPurge(t *testing.T) {
	c := NewWithDir(t.TempDir())

	if _, err := c.Store("p1", []byte("1")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := c.Store("p2", []byte("2")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	removed, err := c.Purge()
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	entries, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty cache after purge, got %d entries", len(entries))
	}
}
