package dump

import (
	"bufio"
	"os"
)

// Writer streams a dump to disk. Data goes to a tmp sibling of the target
// path; Finish flushes, fsyncs and renames it into place, so a partially
// written dump is never visible under a valid dump name.
type Writer struct {
	path     string
	tmpPath  string
	file     *os.File
	buf      *bufio.Writer
	written  int64
	finished bool
}

// CreateWriter opens a streaming writer for the given dump path
func (m *Manager) CreateWriter(path string) (*Writer, error) {
	tmpPath := path + tmpSuffix
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{
		path:    path,
		tmpPath: tmpPath,
		file:    file,
		buf:     bufio.NewWriter(file),
	}, nil
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.finished {
		return 0, ErrWriterFinished
	}
	n, err := w.buf.Write(p)
	w.written += int64(n)
	return n, err
}

// Size returns the number of bytes written so far
func (w *Writer) Size() int64 {
	return w.written
}

// Finish flushes and fsyncs the tmp file and renames it to the dump path
func (w *Writer) Finish() error {
	if w.finished {
		return ErrWriterFinished
	}
	w.finished = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return os.Rename(w.tmpPath, w.path)
}

// Discard aborts the write and removes the tmp file.
// It is a no-op after a successful Finish.
func (w *Writer) Discard() {
	if w.finished {
		return
	}
	w.finished = true
	w.file.Close()
	os.Remove(w.tmpPath)
}
