/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/

//go:build !unix

package objfile

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// mapFile reads r through a read-only mapping. Without unix.Mmap the
// mapping is only reachable as an io.ReaderAt, so the bytes are copied out.
func mapFile(r *os.File) ([]byte, func() error, error) {
	m, err := mmap.Open(r.Name())
	if err != nil {
		return nil, nil, errors.Wrap(err, "mmap")
	}
	defer m.Close()
	if m.Len() == 0 {
		return nil, nil, errors.New("empty file")
	}
	data := make([]byte, m.Len())
	if _, err := m.ReadAt(data, 0); err != nil {
		return nil, nil, errors.Wrap(err, "reading mapping")
	}
	return data, func() error { return nil }, nil
}
