package mmap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestOpenBytes(t *testing.T) {
	t.Parallel()

	content := []byte("mapped content")
	m, err := Open(writeFile(t, "data", content))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer m.Release()

	if !bytes.Equal(m.Bytes(), content) {
		t.Fatalf("Bytes() = %q, want %q", m.Bytes(), content)
	}
	if m.Len() != len(content) {
		t.Fatalf("Len() = %d, want %d", m.Len(), len(content))
	}
}

func TestOpenEmptyFile(t *testing.T) {
	t.Parallel()

	m, err := Open(writeFile(t, "empty", nil))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
	if err := m.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Open(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("Open() error = nil, want not-exist error")
	}
}

func TestRetainKeepsMappingAlive(t *testing.T) {
	t.Parallel()

	content := []byte("shared")
	m, err := Open(writeFile(t, "data", content))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	m.Retain()
	if err := m.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	// One reference remains: the pages must still be mapped.
	if !bytes.Equal(m.Bytes(), content) {
		t.Fatalf("Bytes() after partial release = %q, want %q", m.Bytes(), content)
	}

	if err := m.Release(); err != nil {
		t.Fatalf("final Release() error = %v", err)
	}
	if m.Bytes() != nil {
		t.Fatal("Bytes() after final release should be nil")
	}
}
