package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingWriter writes to log files that roll over on a new UTC day and when
// the current file would exceed MaxBytes.
//
// Given a base path like logs/bridged.log, output files are named
// bridged-YYYY-MM-DD.log, with -2, -3, ... suffixes for same-day size
// rollovers. The base path itself is kept as a symlink to the active file so
// `tail -F logs/bridged.log` keeps working across rotations.
type RotatingWriter struct {
	base     string
	maxBytes int64

	mu    sync.Mutex
	day   string
	index int
	file  *os.File
	size  int64
}

// NewRotatingWriter opens a rotating writer rooted at basePath. A basePath of
// "-" disables file output entirely and returns a discarding writer.
func NewRotatingWriter(basePath string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return discardCloser{}, nil
	}
	w := &RotatingWriter{base: basePath, maxBytes: maxBytes}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// roll opens a new file when the UTC day changed or when writing incoming
// bytes would push the current file past maxBytes. Callers hold w.mu.
func (w *RotatingWriter) roll(incoming int64) error {
	today := time.Now().UTC().Format("2006-01-02")
	switch {
	case w.file == nil || w.day != today:
		w.day = today
		w.index = 1
	case w.size+incoming > w.maxBytes:
		w.index++
	default:
		return nil
	}

	if w.file != nil {
		_ = w.file.Close()
	}
	dir := filepath.Dir(w.base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	ext := filepath.Ext(w.base)
	if ext == "" {
		ext = ".log"
	}
	stem := strings.TrimSuffix(filepath.Base(w.base), filepath.Ext(w.base))
	name := fmt.Sprintf("%s-%s%s", stem, w.day, ext)
	if w.index > 1 {
		name = fmt.Sprintf("%s-%s-%d%s", stem, w.day, w.index, ext)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file = f
	w.size = 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	w.relink(path)
	return nil
}

// relink points the base path at the active file. Symlinks can fail on some
// filesystems; a hard link or a plain pointer file is good enough then.
func (w *RotatingWriter) relink(target string) {
	// the link lives next to the target, so it must hold the bare file name:
	// embedding the full path would resolve relative to the link's own
	// directory and dangle for any base path with a directory component
	linkDest := filepath.Base(target)
	if info, err := os.Lstat(w.base); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, derr := os.Readlink(w.base); derr == nil && dest == linkDest {
				return
			}
		}
		_ = os.Remove(w.base)
	}
	if os.Symlink(linkDest, w.base) == nil {
		return
	}
	if os.Link(target, w.base) == nil {
		return
	}
	if f, err := os.OpenFile(w.base, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644); err == nil {
		_, _ = fmt.Fprintf(f, "current log file: %s\n", target)
		_ = f.Close()
	}
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }
