package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRelativeBasePathResolvesThroughLink(t *testing.T) {
	// t.Chdir needs Go 1.24; replicate it on the 1.21 toolchain
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
	base := filepath.Join("logs", "bridged.log")

	w, err := NewRotatingWriter(base, 1<<20)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// the link and its target share a directory, so the link must carry the
	// bare file name; a directory component would make it dangle
	if dest, err := os.Readlink(base); err == nil {
		if strings.ContainsRune(dest, os.PathSeparator) {
			t.Fatalf("link destination %q must be a bare file name", dest)
		}
	}
	data, err := os.ReadFile(base)
	if err != nil {
		t.Fatalf("read through base path: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("base path resolves to %q, want the active log file", data)
	}
}

func TestSizeRolloverOpensNextFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "bridged.log")

	w, err := NewRotatingWriter(base, 10)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("12345678\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("12345678\n")); err != nil {
		t.Fatalf("Write after rollover: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	second := filepath.Join(dir, "bridged-"+day+"-2.log")
	if _, err := os.Stat(second); err != nil {
		t.Fatalf("expected rollover file %s: %v", second, err)
	}
	data, err := os.ReadFile(base)
	if err != nil {
		t.Fatalf("read through base path: %v", err)
	}
	if !strings.Contains(string(data), "12345678") {
		t.Fatalf("base path does not track the active file, got %q", data)
	}
}
