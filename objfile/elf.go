/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/

// Parsing of ELF oat files.

package objfile

import (
	"bytes"
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/wyd20162016/ARTIST/oat"
)

// dex2oat exports these around the image in .rodata/.text.
const (
	symOatData     = "oatdata"
	symOatLastWord = "oatlastword"
)

func openElf(data []byte, o *options) (*File, error) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	syms, err := ef.DynamicSymbols()
	if err != nil {
		return nil, errors.Wrap(err, "reading dynamic symbols")
	}
	var start, last *elf.Symbol
	for i := range syms {
		switch syms[i].Name {
		case symOatData:
			start = &syms[i]
		case symOatLastWord:
			last = &syms[i]
		}
	}
	if start == nil || last == nil {
		return nil, errors.New("missing oatdata or oatlastword symbol")
	}
	if last.Value < start.Value {
		return nil, errors.Errorf("oatlastword %#x before oatdata %#x", last.Value, start.Value)
	}

	off, err := fileOffset(ef, start.Value)
	if err != nil {
		return nil, err
	}
	size := last.Value - start.Value + 4
	if off+size > uint64(len(data)) {
		return nil, errors.Errorf("image [%#x, %#x) runs past end of file", off, off+size)
	}

	return &File{
		kind:     KindELF,
		begin:    oat.Addr(o.base + start.Value),
		image:    data[off : off+size],
		imageOff: int(off),
	}, nil
}

// fileOffset maps a virtual address to its file offset through the loadable
// segment that contains it.
func fileOffset(ef *elf.File, va uint64) (uint64, error) {
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		if prog.Vaddr <= va && va <= prog.Vaddr+prog.Filesz-1 {
			return prog.Off + va - prog.Vaddr, nil
		}
	}
	return 0, errors.Errorf("no loadable segment holds %#x", va)
}
