/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/

// Package oat navigates a memory-mapped Android Runtime OAT image: it walks
// the packed directory of embedded DEX modules, resolves class and method
// metadata inside them and locates ahead-of-time compiled machine code.
//
// Every lookup is a pure function of the mapped bytes. The caller owns the
// mapping and must keep it alive for as long as any Image or record derived
// from it is in use.
package oat

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Addr is an absolute address inside (or computed relative to) the mapped
// image.
type Addr uint64

// Image is the context every lookup runs against. It is immutable once
// NewImage returns and safe for concurrent readers.
type Image struct {
	begin  Addr
	end    Addr
	mem    []byte
	header Header

	keyValueStoreStart Addr
	dexFileStreamStart Addr

	log         logrus.FieldLogger
	dexParser   DexParser
	codePointer CodePointerFunc
}

// Option configures an Image.
type Option func(*Image)

// WithLogger routes diagnostics to l. Without it nothing is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(img *Image) {
		img.log = l
	}
}

// WithDexParser replaces the DEX parser used to interpret embedded DEX modules.
func WithDexParser(p DexParser) Option {
	return func(img *Image) {
		img.dexParser = p
	}
}

// WithCodePointerFunc overrides the instruction-pointer to code-pointer
// transform that would otherwise be picked from the header's instruction set.
func WithCodePointerFunc(fn CodePointerFunc) Option {
	return func(img *Image) {
		img.codePointer = fn
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// NewImage records the layout of the image mapped at begin. mem holds the
// bytes of [begin, begin+len(mem)).
//
// NewImage does not check the signature (use IsValidHeader first) and does
// not check that the regions described by the header fit inside mem: a bad
// size field surfaces the first time a record is decoded through it.
func NewImage(begin Addr, mem []byte, opts ...Option) (*Image, error) {
	if begin == 0 || len(mem) == 0 {
		return nil, ErrInvalidRange
	}
	end := begin + Addr(len(mem))
	if end <= begin || uint64(len(mem)) > math.MaxUint64-uint64(begin) {
		return nil, ErrInvalidRange
	}
	if len(mem) < HeaderSize {
		return nil, &DecodeError{Op: "header", Addr: begin, Err: ErrOutOfBounds}
	}

	img := &Image{
		begin:  begin,
		end:    end,
		mem:    mem,
		header: Header{b: mem[:HeaderSize]},
	}
	img.keyValueStoreStart = begin + HeaderSize
	img.dexFileStreamStart = img.keyValueStoreStart + Addr(img.header.KeyValueStoreSize())

	for _, opt := range opts {
		opt(img)
	}
	if img.log == nil {
		img.log = discardLogger()
	}
	if img.dexParser == nil {
		img.dexParser = DefaultDexParser
	}
	if img.codePointer == nil {
		img.codePointer = CodePointerTransform(img.header.InstructionSet())
	}
	return img, nil
}

func (img *Image) Begin() Addr    { return img.begin }
func (img *Image) End() Addr      { return img.end }
func (img *Image) Header() Header { return img.header }
func (img *Image) Bytes() []byte  { return img.mem }

func (img *Image) KeyValueStoreStart() Addr { return img.keyValueStoreStart }
func (img *Image) DexFileStreamStart() Addr { return img.dexFileStreamStart }

// Resolve turns a file-relative offset into an absolute address. Offset 0
// is reserved for "absent" and resolves to nothing; it would otherwise
// alias the header. The result is not bounds checked, that is left to
// whoever reads through it.
func (img *Image) Resolve(offset uint32) (Addr, bool) {
	if offset == 0 {
		return 0, false
	}
	return img.begin + Addr(offset), true
}

// Contains reports whether a lies inside [begin, end).
func (img *Image) Contains(a Addr) bool {
	return a >= img.begin && a < img.end
}

// bytesAt returns the n bytes at a, failing if any of them lie outside the
// image.
func (img *Image) bytesAt(a Addr, n uint64) ([]byte, error) {
	if a < img.begin || a > img.end {
		return nil, errors.Wrapf(ErrOutOfBounds, "address %#x", uint64(a))
	}
	off := uint64(a - img.begin)
	if n > uint64(len(img.mem))-off {
		return nil, errors.Wrapf(ErrOutOfBounds, "%d bytes at %#x", n, uint64(a))
	}
	return img.mem[off : off+n], nil
}

func (img *Image) u32At(a Addr) (uint32, error) {
	b, err := img.bytesAt(a, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
