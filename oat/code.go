/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// CodePointerFunc turns an instruction-pointer value into the address of
// the first byte of machine code.
type CodePointerFunc func(Addr) Addr

// CodePointerTransform returns the transform for isa. Thumb2 entry points
// carry the mode in bit 0; every other target uses the address as is.
func CodePointerTransform(isa InstructionSet) CodePointerFunc {
	if isa == ISAThumb2 {
		return clearThumbBit
	}
	return identityCodePointer
}

func clearThumbBit(a Addr) Addr       { return a &^ 1 }
func identityCodePointer(a Addr) Addr { return a }

// QuickMethodHeaderSize is the size of the header that precedes every piece
// of compiled code.
const QuickMethodHeaderSize = 24

// QuickMethodHeader sits immediately before compiled code. Table offsets
// count backwards from the code start.
type QuickMethodHeader struct {
	MappingTableOffset uint32
	VmapTableOffset    uint32
	FrameSizeInBytes   uint32
	CoreSpillMask      uint32
	FpSpillMask        uint32
	CodeSize           uint32
}

// HasQuickCompiledCode reports whether the method was compiled ahead of time.
func (m *Method) HasQuickCompiledCode() bool {
	return m.offsets != nil
}

// EntryPoint is the address the runtime would jump to, image begin plus the
// code offset. ok is false for interpreted methods.
func (m *Method) EntryPoint() (Addr, bool) {
	if m.offsets == nil {
		return 0, false
	}
	return m.class.dexFile.image.begin + Addr(m.offsets.CodeOffset), true
}

// CodePointer is EntryPoint with any instruction-set tagging removed.
func (m *Method) CodePointer() (Addr, bool) {
	ep, ok := m.EntryPoint()
	if !ok {
		return 0, false
	}
	return m.class.dexFile.image.codePointer(ep), true
}

// QuickHeader decodes the header in front of the method's code.
func (m *Method) QuickHeader() (*QuickMethodHeader, error) {
	code, ok := m.CodePointer()
	if !ok {
		return nil, errors.Wrapf(ErrNoCompiledCode, "%s%s", m.Name(), m.Signature())
	}
	img := m.class.dexFile.image
	if code < img.begin+QuickMethodHeaderSize {
		return nil, &DecodeError{Op: "quick method header", Index: m.ClassMethodIndex(), Descriptor: m.class.descriptor, Addr: code, Err: ErrOutOfBounds}
	}
	b, err := img.bytesAt(code-QuickMethodHeaderSize, QuickMethodHeaderSize)
	if err != nil {
		return nil, &DecodeError{Op: "quick method header", Index: m.ClassMethodIndex(), Descriptor: m.class.descriptor, Addr: code, Err: err}
	}
	return &QuickMethodHeader{
		MappingTableOffset: binary.LittleEndian.Uint32(b[0:]),
		VmapTableOffset:    binary.LittleEndian.Uint32(b[4:]),
		FrameSizeInBytes:   binary.LittleEndian.Uint32(b[8:]),
		CoreSpillMask:      binary.LittleEndian.Uint32(b[12:]),
		FpSpillMask:        binary.LittleEndian.Uint32(b[16:]),
		CodeSize:           binary.LittleEndian.Uint32(b[20:]),
	}, nil
}

// Code returns the compiled machine code of the method, sized by its quick
// method header.
func (m *Method) Code() ([]byte, error) {
	hdr, err := m.QuickHeader()
	if err != nil {
		return nil, err
	}
	code, _ := m.CodePointer()
	b, err := m.class.dexFile.image.bytesAt(code, uint64(hdr.CodeSize))
	if err != nil {
		return nil, &DecodeError{Op: "compiled code", Index: m.ClassMethodIndex(), Descriptor: m.class.descriptor, Addr: code, Err: err}
	}
	return b, nil
}
