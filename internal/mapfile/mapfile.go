// Package mapfile exposes files as read-only memory-mapped byte views.
package mapfile

import (
	"fmt"
	"os"

	mmap "github.com/blevesearch/mmap-go"
)

// File is a read-only view of a file's content. The slice returned by Bytes
// is only valid until Close; it must never be written to.
type File struct {
	data mmap.MMap
	size int64
}

// Open maps path read-only. Empty files are represented without a mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return &File{}, nil
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &File{data: data, size: info.Size()}, nil
}

// Bytes returns the mapped content.
func (f *File) Bytes() []byte { return f.data }

// Size returns the file size observed when the mapping was created.
func (f *File) Size() int64 { return f.size }

// Close unmaps the file. It is safe to call more than once.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	err := f.data.Unmap()
	f.data = nil
	return err
}
