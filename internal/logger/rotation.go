package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

const backupTimeFormat = "20060102-150405.000"

// RotatingWriter appends to a log file and moves it aside before a write
// would push it past maxSize. Backups older than maxAge are pruned after
// each rotation, and gzipped first when compress is set. It is safe for
// concurrent use.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	maxAge   time.Duration
	compress bool
	file     *os.File
	size     int64

	// background compress/prune jobs, awaited by Close
	jobs sync.WaitGroup
}

// NewRotatingWriter opens path for appending. maxSizeMB of 0 rotates before
// every write; maxAgeDays of 0 keeps every backup.
func NewRotatingWriter(path string, maxSizeMB int, maxAgeDays int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxAge:   time.Duration(maxAgeDays) * 24 * time.Hour,
		compress: compress,
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		w.prune()
	}()

	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would not fit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the log file and waits for pending compress jobs.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.jobs.Wait()
	return err
}

// rotate moves the current file to a timestamped backup. Caller holds mu.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	backup := w.backupName(time.Now())
	if err := os.Rename(w.path, backup); err != nil {
		if oerr := w.open(); oerr != nil {
			return oerr
		}
		return err
	}

	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		if w.compress {
			_ = compressFile(backup)
		}
		w.prune()
	}()

	return w.open()
}

// backupName returns an unused backup path for t.
func (w *RotatingWriter) backupName(t time.Time) string {
	base := w.path + "." + t.Format(backupTimeFormat)
	name := base
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			if _, err := os.Stat(name + ".gz"); os.IsNotExist(err) {
				return name
			}
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
}

// prune removes backups last modified before maxAge ago.
func (w *RotatingWriter) prune() {
	if w.maxAge <= 0 {
		return
	}

	backups, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-w.maxAge)
	for _, backup := range backups {
		info, err := os.Stat(backup)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		_ = os.Remove(backup)
		if !strings.HasSuffix(backup, ".gz") {
			_ = os.Remove(backup + ".gz")
		}
	}
}

// compressFile gzips path to path.gz and removes path. The .gz file only
// appears once it is complete.
func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	pr, pw := io.Pipe()
	go func() {
		gzw := gzip.NewWriter(pw)
		if _, err := io.Copy(gzw, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(gzw.Close())
	}()

	if err := atomic.WriteFile(path+".gz", pr); err != nil {
		pr.CloseWithError(err)
		return err
	}
	return os.Remove(path)
}
