/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the fixed part of the header. The key-value
// store starts right after it.
const HeaderSize = 84

var (
	oatMagic          = []byte("oat\n")
	supportedVersions = [][]byte{[]byte("045\x00")}
)

// header field offsets
const (
	offMagic                           = 0x00
	offVersion                         = 0x04
	offChecksum                        = 0x08
	offInstructionSet                  = 0x0C
	offInstructionSetFeatures          = 0x10
	offDexFileCount                    = 0x14
	offExecutableOffset                = 0x18
	offInterpreterToInterpreterBridge  = 0x1C
	offInterpreterToCompiledCodeBridge = 0x20
	offJniDlsymLookup                  = 0x24
	offPortableImtConflictTrampoline   = 0x28
	offPortableResolutionTrampoline    = 0x2C
	offPortableToInterpreterBridge     = 0x30
	offQuickGenericJniTrampoline       = 0x34
	offQuickImtConflictTrampoline      = 0x38
	offQuickResolutionTrampoline       = 0x3C
	offQuickToInterpreterBridge        = 0x40
	offImagePatchDelta                 = 0x44
	offImageFileLocationOatChecksum    = 0x48
	offImageFileLocationOatDataBegin   = 0x4C
	offKeyValueStoreSize               = 0x50
)

// InstructionSet identifies the target the code in an image was compiled for.
type InstructionSet uint32

const (
	ISANone InstructionSet = iota
	ISAArm
	ISAArm64
	ISAThumb2
	ISAX86
	ISAX86_64
	ISAMips
	ISAMips64
)

func (isa InstructionSet) String() string {
	switch isa {
	case ISANone:
		return "none"
	case ISAArm:
		return "arm"
	case ISAArm64:
		return "arm64"
	case ISAThumb2:
		return "thumb2"
	case ISAX86:
		return "x86"
	case ISAX86_64:
		return "x86_64"
	case ISAMips:
		return "mips"
	case ISAMips64:
		return "mips64"
	}
	return fmt.Sprintf("InstructionSet(%d)", uint32(isa))
}

// IsValidHeader reports whether mem starts with the OAT magic and a
// version whose record layout this package understands. Nothing past the
// signature is looked at.
func IsValidHeader(mem []byte) bool {
	if len(mem) < offChecksum {
		return false
	}
	if !bytes.Equal(mem[offMagic:offVersion], oatMagic) {
		return false
	}
	for _, v := range supportedVersions {
		if bytes.Equal(mem[offVersion:offChecksum], v) {
			return true
		}
	}
	return false
}

// Header is a read-only view of the fixed header at the start of the
// mapped image. It is never copied out of the mapping.
type Header struct {
	b []byte
}

func (h Header) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(h.b[off:])
}

func (h Header) Magic() string   { return string(h.b[offMagic:offVersion]) }
func (h Header) Version() string { return string(bytes.TrimRight(h.b[offVersion:offChecksum], "\x00")) }

func (h Header) Checksum() uint32               { return h.u32(offChecksum) }
func (h Header) InstructionSet() InstructionSet { return InstructionSet(h.u32(offInstructionSet)) }
func (h Header) InstructionSetFeatures() uint32 { return h.u32(offInstructionSetFeatures) }
func (h Header) DexFileCount() uint32           { return h.u32(offDexFileCount) }
func (h Header) ExecutableOffset() uint32       { return h.u32(offExecutableOffset) }

func (h Header) InterpreterToInterpreterBridgeOffset() uint32 {
	return h.u32(offInterpreterToInterpreterBridge)
}

func (h Header) InterpreterToCompiledCodeBridgeOffset() uint32 {
	return h.u32(offInterpreterToCompiledCodeBridge)
}

func (h Header) JniDlsymLookupOffset() uint32 { return h.u32(offJniDlsymLookup) }

func (h Header) PortableImtConflictTrampolineOffset() uint32 {
	return h.u32(offPortableImtConflictTrampoline)
}

func (h Header) PortableResolutionTrampolineOffset() uint32 {
	return h.u32(offPortableResolutionTrampoline)
}

func (h Header) PortableToInterpreterBridgeOffset() uint32 {
	return h.u32(offPortableToInterpreterBridge)
}

func (h Header) QuickGenericJniTrampolineOffset() uint32 {
	return h.u32(offQuickGenericJniTrampoline)
}

func (h Header) QuickImtConflictTrampolineOffset() uint32 {
	return h.u32(offQuickImtConflictTrampoline)
}

func (h Header) QuickResolutionTrampolineOffset() uint32 {
	return h.u32(offQuickResolutionTrampoline)
}

func (h Header) QuickToInterpreterBridgeOffset() uint32 {
	return h.u32(offQuickToInterpreterBridge)
}

func (h Header) ImagePatchDelta() int32 { return int32(h.u32(offImagePatchDelta)) }

func (h Header) ImageFileLocationOatChecksum() uint32 {
	return h.u32(offImageFileLocationOatChecksum)
}

func (h Header) ImageFileLocationOatDataBegin() uint32 {
	return h.u32(offImageFileLocationOatDataBegin)
}

// KeyValueStoreSize is the byte length of the key-value region that
// follows the fixed header.
func (h Header) KeyValueStoreSize() uint32 { return h.u32(offKeyValueStoreSize) }
