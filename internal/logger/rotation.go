package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const rotatedTimeFormat = "20060102-150405.000"

// RotatingWriter is a size-bounded log file. When a write would push the file
// past maxSize it is renamed with a timestamp suffix, optionally gzipped, and
// rotated files older than maxAge days are pruned.
type RotatingWriter struct {
	filename string
	maxSize  int64 // bytes
	maxAge   int   // days
	compress bool

	mu   sync.Mutex
	file *os.File
	size int64

	// background compression; Close waits for it
	bg sync.WaitGroup
}

// NewRotatingWriter opens filename for appending. A maxSizeMB of zero
// disables rotation.
func NewRotatingWriter(filename string, maxSizeMB int, maxAge int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, size, err := openAppend(filename)
	if err != nil {
		return nil, err
	}

	rw := &RotatingWriter{
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxAge:   maxAge,
		compress: compress,
		file:     file,
		size:     size,
	}
	rw.prune(time.Now())

	return rw, nil
}

func openAppend(filename string) (*os.File, int64, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat log file: %w", err)
	}
	return file, info.Size(), nil
}

// Write appends p, rotating first when the size limit would be exceeded.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotateLocked(time.Now()); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close flushes pending compression and closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	file := w.file
	w.file = nil
	w.mu.Unlock()

	w.bg.Wait()
	if file == nil {
		return nil
	}
	return file.Close()
}

func (w *RotatingWriter) rotateLocked(now time.Time) error {
	if err := w.file.Close(); err != nil {
		return err
	}

	rotated := w.filename + "." + now.Format(rotatedTimeFormat)
	for i := 1; exists(rotated) || exists(rotated+".gz"); i++ {
		rotated = fmt.Sprintf("%s.%s-%d", w.filename, now.Format(rotatedTimeFormat), i)
	}
	if err := os.Rename(w.filename, rotated); err != nil {
		return err
	}

	file, _, err := openAppend(w.filename)
	if err != nil {
		return err
	}
	w.file = file
	w.size = 0

	if w.compress {
		w.bg.Add(1)
		go func() {
			defer w.bg.Done()
			if err := compressFile(rotated); err != nil {
				fmt.Fprintf(os.Stderr, "log rotation: compress %s: %v\n", rotated, err)
			}
		}()
	}
	w.prune(now)
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// compressFile gzips path into path.gz and removes the original.
func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		dst.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// prune removes rotated files last modified more than maxAge days ago.
func (w *RotatingWriter) prune(now time.Time) {
	if w.maxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(w.filename + ".*")
	if err != nil {
		return
	}

	cutoff := now.AddDate(0, 0, -w.maxAge)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(path)
	}
}
