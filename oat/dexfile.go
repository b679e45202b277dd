/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// offsets into the header of an embedded DEX module
const (
	dexHeaderSize        = 0x70
	dexFileSizeOffset    = 0x20
	dexClassDefsSizeOffs = 0x60
)

// DexFile is one decoded record of the dex file stream. It borrows from
// the Image it was decoded from and is valid as long as that Image is.
type DexFile struct {
	image *Image
	index uint32

	location         string
	locationChecksum uint32
	dexFileOffset    uint32
	dexAddr          Addr
	dexBytes         []byte
	classOffsets     []byte // one little-endian u32 per class def

	moduleOnce sync.Once
	module     DexModule
	moduleErr  error
}

func (df *DexFile) Image() *Image            { return df.image }
func (df *DexFile) Index() uint32            { return df.index }
func (df *DexFile) Location() string         { return df.location }
func (df *DexFile) LocationChecksum() uint32 { return df.locationChecksum }
func (df *DexFile) DexFileOffset() uint32    { return df.dexFileOffset }
func (df *DexFile) DexAddr() Addr            { return df.dexAddr }
func (df *DexFile) DexBytes() []byte         { return df.dexBytes }

// Module parses the embedded DEX module on first use. A malformed module
// only affects class lookups in this record; the walk itself never parses.
func (df *DexFile) Module() (DexModule, error) {
	df.moduleOnce.Do(func() {
		df.module, df.moduleErr = df.image.dexParser.Parse(df.dexBytes)
		if df.moduleErr != nil {
			df.image.log.WithFields(logrus.Fields{
				"index":    df.index,
				"location": df.location,
			}).WithError(df.moduleErr).Error("error parsing dex module")
		}
	})
	return df.module, df.moduleErr
}

// NumClassDefs is the length of the class offset table, which is the class
// def count of the embedded module.
func (df *DexFile) NumClassDefs() uint32 {
	return uint32(len(df.classOffsets) / 4)
}

// ClassOffset returns the file offset of the class record for a class def.
func (df *DexFile) ClassOffset(classDefIndex uint32) (uint32, error) {
	if classDefIndex >= df.NumClassDefs() {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "class def %d of %d", classDefIndex, df.NumClassDefs())
	}
	return binary.LittleEndian.Uint32(df.classOffsets[4*classDefIndex:]), nil
}

// decodeDexFile reads the record at *cursor and advances *cursor past it.
// The cursor is left untouched on failure.
func decodeDexFile(img *Image, cursor *Addr, index uint32) (*DexFile, error) {
	start := *cursor
	df := &DexFile{image: img, index: index}
	fail := func(err error) (*DexFile, error) {
		return nil, &DecodeError{Op: "oat dex file", Index: index, Location: df.location, Addr: start, Err: err}
	}

	a := start
	locSize, err := img.u32At(a)
	if err != nil {
		return fail(err)
	}
	a += 4
	loc, err := img.bytesAt(a, uint64(locSize))
	if err != nil {
		return fail(err)
	}
	df.location = string(loc)
	a += Addr(locSize)

	if df.locationChecksum, err = img.u32At(a); err != nil {
		return fail(err)
	}
	a += 4
	if df.dexFileOffset, err = img.u32At(a); err != nil {
		return fail(err)
	}
	a += 4

	dexAddr, ok := img.Resolve(df.dexFileOffset)
	if !ok {
		return fail(errors.Wrap(ErrZeroOffset, "dex file offset"))
	}
	dexHeader, err := img.bytesAt(dexAddr, dexHeaderSize)
	if err != nil {
		return fail(err)
	}
	df.dexAddr = dexAddr
	if df.dexBytes, err = img.bytesAt(dexAddr, uint64(binary.LittleEndian.Uint32(dexHeader[dexFileSizeOffset:]))); err != nil {
		return fail(err)
	}

	numClassDefs := uint64(binary.LittleEndian.Uint32(dexHeader[dexClassDefsSizeOffs:]))
	if df.classOffsets, err = img.bytesAt(a, 4*numClassDefs); err != nil {
		return fail(err)
	}
	a += Addr(4 * numClassDefs)

	*cursor = a
	return df, nil
}

// DexFileIterator produces the records of the dex file stream in order.
// Records have no index: each one's length is only known once it has been
// decoded, so the only way to reach record n is through records 0..n-1.
// After a decode error the iterator keeps returning that error.
type DexFileIterator struct {
	img    *Image
	cursor Addr
	next   uint32
	err    error
}

// DexFiles starts a new walk at the beginning of the dex file stream.
func (img *Image) DexFiles() *DexFileIterator {
	return &DexFileIterator{img: img, cursor: img.dexFileStreamStart}
}

// Next decodes the next record. It returns io.EOF once DexFileCount
// records have been produced.
func (it *DexFileIterator) Next() (*DexFile, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.next >= it.img.header.DexFileCount() {
		return nil, io.EOF
	}
	df, err := decodeDexFile(it.img, &it.cursor, it.next)
	if err != nil {
		it.img.log.WithFields(logrus.Fields{"index": it.next}).WithError(err).Error("error decoding oat dex file")
		it.err = err
		return nil, err
	}
	it.next++
	return df, nil
}

// Cursor is the address the next record will be decoded from.
func (it *DexFileIterator) Cursor() Addr { return it.cursor }

// Reset rewinds the iterator to the start of the stream.
func (it *DexFileIterator) Reset() {
	it.cursor = it.img.dexFileStreamStart
	it.next = 0
	it.err = nil
}

// DexFile returns the record at index. Cost is linear in index; nothing is
// cached between calls, so callers doing many lookups should use
// AllDexFiles once instead.
func (img *Image) DexFile(index uint32) (*DexFile, error) {
	if count := img.header.DexFileCount(); index >= count {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "dex file %d of %d", index, count)
	}
	it := img.DexFiles()
	for {
		df, err := it.Next()
		if err != nil {
			return nil, err
		}
		if df.index == index {
			return df, nil
		}
	}
}

// FindDexFile returns the first record whose location is exactly location.
// A malformed record before a match is an error, not ErrNotFound: nothing
// can be said about the records behind it.
func (img *Image) FindDexFile(location string) (*DexFile, error) {
	it := img.DexFiles()
	for {
		df, err := it.Next()
		if err == io.EOF {
			return nil, errors.Wrapf(ErrNotFound, "dex file %q", location)
		}
		if err != nil {
			return nil, err
		}
		if df.location == location {
			return df, nil
		}
	}
}

// AllDexFiles walks the stream once and returns every record.
func (img *Image) AllDexFiles() ([]*DexFile, error) {
	var out []*DexFile
	it := img.DexFiles()
	for {
		df, err := it.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, df)
	}
}
