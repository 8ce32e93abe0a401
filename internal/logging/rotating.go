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

// RotatingFile writes log output to a dated file next to Path and starts a
// new file each UTC day or when MaxBytes would be exceeded.
//
// For Path logs/ioschedd.log the files are logs/ioschedd-2026-10-15.log,
// logs/ioschedd-2026-10-15.2.log and so on. Path itself is kept as a
// symlink to the active file where the filesystem allows it.
type RotatingFile struct {
	Path     string
	MaxBytes int64

	mu    sync.Mutex
	now   func() time.Time
	day   string
	seq   int
	file  *os.File
	bytes int64
}

// OpenRotating opens the current file for path. A path of "-" discards all
// output.
func OpenRotating(path string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(path) == "-" {
		return discard{}, nil
	}
	rf := &RotatingFile{Path: path, MaxBytes: maxBytes, now: time.Now}
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if err := rf.roll(0); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if err := rf.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := rf.file.Write(p)
	rf.bytes += int64(n)
	return n, err
}

func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

// roll switches files when the day changed or the pending write would push
// the current file past MaxBytes. Caller holds mu.
func (rf *RotatingFile) roll(pending int64) error {
	today := rf.now().UTC().Format("2006-01-02")
	switch {
	case rf.file == nil || rf.day != today:
		rf.day, rf.seq = today, 1
	case rf.MaxBytes > 0 && rf.bytes > 0 && rf.bytes+pending > rf.MaxBytes:
		rf.seq++
	default:
		return nil
	}
	return rf.open()
}

func (rf *RotatingFile) open() error {
	if rf.file != nil {
		_ = rf.file.Close()
		rf.file = nil
	}
	target := rf.filename()
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	rf.file = f
	rf.bytes = 0
	if st, err := f.Stat(); err == nil {
		rf.bytes = st.Size()
	}
	rf.link(target)
	return nil
}

func (rf *RotatingFile) filename() string {
	dir, name := filepath.Split(rf.Path)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	if rf.seq > 1 {
		return filepath.Join(dir, fmt.Sprintf("%s-%s.%d%s", base, rf.day, rf.seq, ext))
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", base, rf.day, ext))
}

// link points Path at the active file. Failures are ignored; the dated
// files are the source of truth.
func (rf *RotatingFile) link(target string) {
	if info, err := os.Lstat(rf.Path); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return
		}
		if dest, err := os.Readlink(rf.Path); err == nil && dest == filepath.Base(target) {
			return
		}
		_ = os.Remove(rf.Path)
	}
	_ = os.Symlink(filepath.Base(target), rf.Path)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Close() error                { return nil }
