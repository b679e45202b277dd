/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/

//go:build unix

package objfile

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mapFile maps r read-only. The mapping outlives r.
func mapFile(r *os.File) ([]byte, func() error, error) {
	fi, err := r.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := fi.Size()
	if size == 0 {
		return nil, nil, errors.New("empty file")
	}
	if int64(int(size)) != size {
		return nil, nil, errors.Errorf("file too large to map: %d bytes", size)
	}
	data, err := unix.Mmap(int(r.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mmap")
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
