/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oattest

import "encoding/binary"

// ELFOatData is the virtual address BuildELF links oatdata at.
const ELFOatData = 0x1000

// BuildELF wraps an image in a minimal 64-bit little-endian ELF shared
// object exporting oatdata and oatlastword the way dex2oat does. The image
// lives at file offset and virtual address ELFOatData.
func BuildELF(image []byte) []byte {
	const (
		ehdrSize    = 64
		phdrSize    = 56
		shdrSize    = 64
		symSize     = 24
		dynstrOff   = 0x100
		dynsymOff   = 0x200
		shstrtabOff = 0x300
	)
	le := binary.LittleEndian

	dynstr := []byte("\x00oatdata\x00oatlastword\x00")
	shstrtab := []byte("\x00.dynstr\x00.dynsym\x00.rodata\x00.shstrtab\x00")
	imageEnd := uint64(ELFOatData + len(image))
	shoff := (imageEnd + 7) &^ 7

	out := make([]byte, shoff+5*shdrSize)
	copy(out[dynstrOff:], dynstr)
	copy(out[shstrtabOff:], shstrtab)
	copy(out[ELFOatData:], image)

	// ELF header
	copy(out, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	le.PutUint16(out[16:], 3)   // ET_DYN
	le.PutUint16(out[18:], 183) // EM_AARCH64
	le.PutUint32(out[20:], 1)
	le.PutUint64(out[32:], ehdrSize)
	le.PutUint64(out[40:], shoff)
	le.PutUint16(out[52:], ehdrSize)
	le.PutUint16(out[54:], phdrSize)
	le.PutUint16(out[56:], 1)
	le.PutUint16(out[58:], shdrSize)
	le.PutUint16(out[60:], 5)
	le.PutUint16(out[62:], 4)

	// one read-only PT_LOAD mapping the file 1:1
	ph := out[ehdrSize:]
	le.PutUint32(ph[0:], 1)
	le.PutUint32(ph[4:], 4)
	le.PutUint64(ph[16:], 0)
	le.PutUint64(ph[24:], 0)
	le.PutUint64(ph[32:], imageEnd)
	le.PutUint64(ph[40:], imageEnd)
	le.PutUint64(ph[48:], 0x1000)

	// dynamic symbols: null, oatdata, oatlastword
	putSym := func(i int, name uint32, value, size uint64) {
		s := out[dynsymOff+i*symSize:]
		le.PutUint32(s[0:], name)
		s[4] = 0x11 // STB_GLOBAL, STT_OBJECT
		le.PutUint16(s[6:], 3)
		le.PutUint64(s[8:], value)
		le.PutUint64(s[16:], size)
	}
	putSym(1, 1, ELFOatData, uint64(len(image)))
	putSym(2, 9, imageEnd-4, 4)

	putShdr := func(i int, name, typ uint32, flags, off, size uint64, link, info uint32, align, entsize uint64) {
		s := out[shoff+uint64(i*shdrSize):]
		le.PutUint32(s[0:], name)
		le.PutUint32(s[4:], typ)
		le.PutUint64(s[8:], flags)
		if flags != 0 {
			le.PutUint64(s[16:], off)
		}
		le.PutUint64(s[24:], off)
		le.PutUint64(s[32:], size)
		le.PutUint32(s[40:], link)
		le.PutUint32(s[44:], info)
		le.PutUint64(s[48:], align)
		le.PutUint64(s[56:], entsize)
	}
	putShdr(1, 1, 3, 2, dynstrOff, uint64(len(dynstr)), 0, 0, 1, 0)
	putShdr(2, 9, 11, 2, dynsymOff, 3*symSize, 1, 1, 8, symSize)
	putShdr(3, 17, 1, 2, ELFOatData, uint64(len(image)), 0, 0, 0x1000, 0)
	putShdr(4, 25, 3, 0, shstrtabOff, uint64(len(shstrtab)), 0, 0, 1, 0)
	return out
}
