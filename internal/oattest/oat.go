/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oattest

import "encoding/binary"

// Instruction set values as stored in the header.
const (
	ISANone uint32 = iota
	ISAArm
	ISAArm64
	ISAThumb2
	ISAX86
	ISAX86_64
	ISAMips
	ISAMips64
)

const (
	HeaderSize            = 84
	QuickMethodHeaderSize = 24

	offDexFileCount      = 0x14
	offExecutableOffset  = 0x18
	offKeyValueStoreSize = 0x50
)

// Default image base used by tests.
const Base = 0x70000000

// Dex is one dex file record.
type Dex struct {
	Location string
	Checksum uint32
	Classes  []Class
}

// Image describes a whole OAT image.
type Image struct {
	ISA       uint32
	KeyValues [][2]string
	Dex       []Dex
}

// Layout tells tests where the builder put things, so they can corrupt or
// check specific bytes. All values are file offsets.
type Layout struct {
	KeyValueStoreOffset uint32
	DexStreamOffset     uint32
	ExecutableOffset    uint32
	Dex                 []DexLayout
}

type DexLayout struct {
	RecordOffset       uint32
	ClassOffsetsOffset uint32 // offset of class_offsets[0]
	DexFileOffset      uint32
	DexSize            uint32
	Classes            []ClassLayout
}

type ClassLayout struct {
	Offset  uint32
	Type    uint16
	Methods []MethodLayout // by class method index
}

type MethodLayout struct {
	Compiled   bool
	SlotOffset uint32 // offset of the method offsets record
	CodeOffset uint32 // value stored in the record
	CodeStart  uint32 // first byte of code
}

// Build lays out img and returns its bytes.
func Build(img Image) ([]byte, *Layout) {
	le := binary.LittleEndian
	out := make([]byte, HeaderSize)
	lay := &Layout{KeyValueStoreOffset: HeaderSize}

	for _, kv := range img.KeyValues {
		out = append(out, kv[0]...)
		out = append(out, 0)
		out = append(out, kv[1]...)
		out = append(out, 0)
	}
	kvSize := uint32(len(out)) - HeaderSize
	lay.DexStreamOffset = uint32(len(out))

	dexBytes := make([][]byte, len(img.Dex))
	dexFileOffsetPos := make([]uint32, len(img.Dex))
	lay.Dex = make([]DexLayout, len(img.Dex))
	for i, d := range img.Dex {
		dexBytes[i] = BuildDex(d.Classes)
		dl := &lay.Dex[i]
		dl.RecordOffset = uint32(len(out))
		dl.DexSize = uint32(len(dexBytes[i]))
		out = le.AppendUint32(out, uint32(len(d.Location)))
		out = append(out, d.Location...)
		out = le.AppendUint32(out, d.Checksum)
		dexFileOffsetPos[i] = uint32(len(out))
		out = le.AppendUint32(out, 0)
		dl.ClassOffsetsOffset = uint32(len(out))
		out = append(out, make([]byte, 4*len(d.Classes))...)
	}

	for i := range img.Dex {
		out = align(out, 4)
		lay.Dex[i].DexFileOffset = uint32(len(out))
		le.PutUint32(out[dexFileOffsetPos[i]:], uint32(len(out)))
		out = append(out, dexBytes[i]...)
	}

	for i, d := range img.Dex {
		dl := &lay.Dex[i]
		dl.Classes = make([]ClassLayout, len(d.Classes))
		for j, c := range d.Classes {
			out = align(out, 4)
			cl := &dl.Classes[j]
			cl.Offset = uint32(len(out))
			le.PutUint32(out[dl.ClassOffsetsOffset+4*uint32(j):], cl.Offset)

			methods := c.Methods()
			cl.Methods = make([]MethodLayout, len(methods))
			compiled := 0
			for k, m := range methods {
				cl.Methods[k].Compiled = m.Compiled
				if m.Compiled {
					compiled++
				}
			}
			switch {
			case compiled == 0:
				cl.Type = 2
			case compiled == len(methods):
				cl.Type = 0
			default:
				cl.Type = 1
			}

			out = le.AppendUint16(out, uint16(c.Status))
			out = le.AppendUint16(out, cl.Type)
			if cl.Type == 1 {
				bitmap := make([]byte, (len(methods)+31)/32*4)
				for k, m := range methods {
					if m.Compiled {
						bitmap[k/8] |= 1 << (k % 8)
					}
				}
				out = le.AppendUint32(out, uint32(len(bitmap)))
				out = append(out, bitmap...)
			}
			if cl.Type == 2 {
				continue
			}
			for k := range methods {
				if !methods[k].Compiled {
					continue
				}
				cl.Methods[k].SlotOffset = uint32(len(out))
				out = append(out, make([]byte, 8)...)
			}
		}
	}

	out = align(out, 16)
	lay.ExecutableOffset = uint32(len(out))
	for i, d := range img.Dex {
		for j, c := range d.Classes {
			for k, m := range c.Methods() {
				if !m.Compiled {
					continue
				}
				code := m.Code
				if code == nil {
					code = DefaultCode
				}
				for (len(out)+QuickMethodHeaderSize)%16 != 0 {
					out = append(out, 0)
				}
				out = le.AppendUint32(out, 0) // mapping table
				out = le.AppendUint32(out, 0) // vmap table
				out = le.AppendUint32(out, m.FrameSize)
				out = le.AppendUint32(out, 0) // core spills
				out = le.AppendUint32(out, 0) // fp spills
				out = le.AppendUint32(out, uint32(len(code)))

				ml := &lay.Dex[i].Classes[j].Methods[k]
				ml.CodeStart = uint32(len(out))
				ml.CodeOffset = ml.CodeStart
				if img.ISA == ISAThumb2 {
					ml.CodeOffset |= 1
				}
				le.PutUint32(out[ml.SlotOffset:], ml.CodeOffset)
				out = append(out, code...)
			}
		}
	}

	copy(out, "oat\n045\x00")
	le.PutUint32(out[0x08:], 0x5eed0a7)
	le.PutUint32(out[0x0c:], img.ISA)
	le.PutUint32(out[offDexFileCount:], uint32(len(img.Dex)))
	le.PutUint32(out[offExecutableOffset:], lay.ExecutableOffset)
	le.PutUint32(out[offKeyValueStoreSize:], kvSize)
	return out, lay
}

// Mutate returns a copy of b with fn applied, leaving the original intact
// for other subtests.
func Mutate(b []byte, fn func([]byte)) []byte {
	c := append([]byte(nil), b...)
	fn(c)
	return c
}

// PutUint32 overwrites the u32 at off.
func PutUint32(b []byte, off, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}
