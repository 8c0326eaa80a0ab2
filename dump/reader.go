package dump

import (
	"bufio"
	"os"
)

// Reader streams a dump from disk
type Reader struct {
	path string
	file *os.File
	buf  *bufio.Reader
}

// CreateReader opens a streaming reader for the given dump path
func (m *Manager) CreateReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		path: path,
		file: file,
		buf:  bufio.NewReader(file),
	}, nil
}

// Read implements io.Reader
func (r *Reader) Read(p []byte) (int, error) {
	return r.buf.Read(p)
}

// Finish closes the underlying file
func (r *Reader) Finish() error {
	return r.file.Close()
}
