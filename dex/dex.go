/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/

// Package dex reads the parts of a Dalvik executable needed to locate
// classes and methods by name. See
// https://source.android.com/docs/core/runtime/dex-format for the format.
//
// A File is a read-only view over caller-owned bytes; every read is bounds
// checked, nothing is copied out of the input except decoded strings.
package dex

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrFormat      = errors.New("malformed dex file")
	ErrOutOfBounds = errors.New("dex read out of bounds")
	ErrIndex       = errors.New("dex index out of range")
	ErrNotFound    = errors.New("not found in dex file")
)

const (
	HeaderSize     = 0x70
	endianConstant = 0x12345678
	classDefSize   = 32
	methodIDSize   = 8
	protoIDSize    = 12

	// NoIndex marks an absent type or string reference.
	NoIndex = 0xffffffff
)

var magicPrefix = []byte("dex\n")

// Header is the fixed file header of a DEX module.
type Header struct {
	Magic         [8]byte
	Checksum      uint32
	Signature     [20]byte
	FileSize      uint32
	HeaderSize    uint32
	EndianTag     uint32
	LinkSize      uint32
	LinkOff       uint32
	MapOff        uint32
	StringIdsSize uint32
	StringIdsOff  uint32
	TypeIdsSize   uint32
	TypeIdsOff    uint32
	ProtoIdsSize  uint32
	ProtoIdsOff   uint32
	FieldIdsSize  uint32
	FieldIdsOff   uint32
	MethodIdsSize uint32
	MethodIdsOff  uint32
	ClassDefsSize uint32
	ClassDefsOff  uint32
	DataSize      uint32
	DataOff       uint32
}

// Version is the three digit format version from the magic, e.g. "035".
func (h *Header) Version() string {
	return string(h.Magic[4:7])
}

// File is an opened DEX module.
type File struct {
	data   []byte
	Header Header

	classIndexOnce sync.Once
	classIndex     map[string]uint32
	classIndexErr  error
}

// Open validates the header of data and returns a view over it. data is
// truncated to the file size the header declares.
func Open(data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, errors.Wrapf(ErrOutOfBounds, "header needs %d bytes, have %d", HeaderSize, len(data))
	}
	if !bytes.Equal(data[:4], magicPrefix) || data[7] != 0 {
		return nil, errors.Wrapf(ErrFormat, "bad magic %q", data[:8])
	}

	f := &File{}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &f.Header); err != nil {
		return nil, errors.Wrap(err, "decoding dex header")
	}
	if f.Header.EndianTag != endianConstant {
		return nil, errors.Wrapf(ErrFormat, "unsupported endian tag %#x", f.Header.EndianTag)
	}
	if f.Header.FileSize < HeaderSize || uint64(f.Header.FileSize) > uint64(len(data)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "file size %d, have %d bytes", f.Header.FileSize, len(data))
	}
	f.data = data[:f.Header.FileSize]
	return f, nil
}

// Bytes returns the module's bytes.
func (f *File) Bytes() []byte { return f.data }

func (f *File) NumClassDefs() uint32 { return f.Header.ClassDefsSize }

func (f *File) bytesAt(off uint32, n uint64) ([]byte, error) {
	if uint64(off)+n > uint64(len(f.data)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "%d bytes at %#x", n, off)
	}
	return f.data[off : uint64(off)+n], nil
}

func (f *File) u32At(off uint32) (uint32, error) {
	b, err := f.bytesAt(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// tableEntry returns entry idx of a table of size entries of width bytes
// starting at off.
func (f *File) tableEntry(what string, off, size, idx uint32, width uint64) ([]byte, error) {
	if idx >= size {
		return nil, errors.Wrapf(ErrIndex, "%s %d of %d", what, idx, size)
	}
	return f.bytesAt(off, (uint64(idx)+1)*width)
}

// String returns string_ids[idx].
func (f *File) String(idx uint32) (string, error) {
	entry, err := f.tableEntry("string", f.Header.StringIdsOff, f.Header.StringIdsSize, idx, 4)
	if err != nil {
		return "", err
	}
	dataOff := binary.LittleEndian.Uint32(entry[4*idx:])
	if uint64(dataOff) >= uint64(len(f.data)) {
		return "", errors.Wrapf(ErrOutOfBounds, "string data at %#x", dataOff)
	}
	return decodeStringData(f.data[dataOff:])
}

// TypeDescriptor returns the descriptor of type_ids[idx], e.g. "Ljava/lang/Object;".
func (f *File) TypeDescriptor(idx uint32) (string, error) {
	entry, err := f.tableEntry("type", f.Header.TypeIdsOff, f.Header.TypeIdsSize, idx, 4)
	if err != nil {
		return "", err
	}
	return f.String(binary.LittleEndian.Uint32(entry[4*idx:]))
}

// MethodID is a decoded method_id_item.
type MethodID struct {
	ClassIdx uint16
	ProtoIdx uint16
	NameIdx  uint32
}

func (f *File) methodID(idx uint32) (MethodID, error) {
	entry, err := f.tableEntry("method", f.Header.MethodIdsOff, f.Header.MethodIdsSize, idx, methodIDSize)
	if err != nil {
		return MethodID{}, err
	}
	b := entry[methodIDSize*uint64(idx):]
	return MethodID{
		ClassIdx: binary.LittleEndian.Uint16(b),
		ProtoIdx: binary.LittleEndian.Uint16(b[2:]),
		NameIdx:  binary.LittleEndian.Uint32(b[4:]),
	}, nil
}

// ProtoSignature renders proto_ids[idx] as "(params)return", e.g. "(ILjava/lang/String;)V".
func (f *File) ProtoSignature(idx uint32) (string, error) {
	entry, err := f.tableEntry("proto", f.Header.ProtoIdsOff, f.Header.ProtoIdsSize, idx, protoIDSize)
	if err != nil {
		return "", err
	}
	b := entry[protoIDSize*uint64(idx):]
	ret, err := f.TypeDescriptor(binary.LittleEndian.Uint32(b[4:]))
	if err != nil {
		return "", err
	}
	params, err := f.typeList(binary.LittleEndian.Uint32(b[8:]))
	if err != nil {
		return "", err
	}

	var sb bytes.Buffer
	sb.WriteByte('(')
	for _, p := range params {
		sb.WriteString(p)
	}
	sb.WriteByte(')')
	sb.WriteString(ret)
	return sb.String(), nil
}

// typeList decodes the type_list at off. Offset 0 is the empty list.
func (f *File) typeList(off uint32) ([]string, error) {
	if off == 0 {
		return nil, nil
	}
	n, err := f.u32At(off)
	if err != nil {
		return nil, err
	}
	b, err := f.bytesAt(off+4, 2*uint64(n))
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = f.TypeDescriptor(uint32(binary.LittleEndian.Uint16(b[2*i:]))); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ClassDef is a decoded class_def_item.
type ClassDef struct {
	ClassIdx        uint32
	AccessFlags     AccessFlags
	SuperclassIdx   uint32
	InterfacesOff   uint32
	SourceFileIdx   uint32
	AnnotationsOff  uint32
	ClassDataOff    uint32
	StaticValuesOff uint32
}

func (f *File) classDef(idx uint32) (ClassDef, error) {
	var cd ClassDef
	entry, err := f.tableEntry("class def", f.Header.ClassDefsOff, f.Header.ClassDefsSize, idx, classDefSize)
	if err != nil {
		return cd, err
	}
	err = binary.Read(bytes.NewReader(entry[classDefSize*uint64(idx):]), binary.LittleEndian, &cd)
	return cd, errors.Wrap(err, "decoding class def")
}

// Class returns class_defs[idx] with its methods decoded.
func (f *File) Class(idx uint32) (*Class, error) {
	cd, err := f.classDef(idx)
	if err != nil {
		return nil, err
	}
	return f.newClass(idx, cd)
}

// FindClass returns the class defined with descriptor. The descriptor index
// is built on first use.
func (f *File) FindClass(descriptor string) (*Class, error) {
	f.classIndexOnce.Do(f.buildClassIndex)
	if f.classIndexErr != nil {
		return nil, f.classIndexErr
	}
	idx, ok := f.classIndex[descriptor]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "class %s", descriptor)
	}
	return f.Class(idx)
}

func (f *File) buildClassIndex() {
	f.classIndex = make(map[string]uint32, f.Header.ClassDefsSize)
	for i := uint32(0); i < f.Header.ClassDefsSize; i++ {
		cd, err := f.classDef(i)
		if err != nil {
			f.classIndexErr = err
			return
		}
		desc, err := f.TypeDescriptor(cd.ClassIdx)
		if err != nil {
			f.classIndexErr = errors.Wrapf(err, "class def %d", i)
			return
		}
		if _, dup := f.classIndex[desc]; !dup {
			f.classIndex[desc] = i
		}
	}
}
