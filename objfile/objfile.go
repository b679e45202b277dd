/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/

// Package objfile finds OAT images inside files: ELF shared objects as
// written by dex2oat, and raw memory dumps that contain an image somewhere.
package objfile

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wyd20162016/ARTIST/oat"
)

// DefaultRawBase is where a raw dump's image is placed when no base is
// given. dex2oat links oatdata at this address.
const DefaultRawBase = 0x1000

type Kind int

const (
	KindELF Kind = iota
	KindRaw
)

func (k Kind) String() string {
	if k == KindELF {
		return "elf"
	}
	return "raw"
}

// A File is an opened file with an OAT image located in it.
type File struct {
	name    string
	kind    Kind
	data    []byte
	release func() error

	begin     oat.Addr
	image     []byte
	imageOff  int
	candidate []oat.HeaderCandidate
}

type options struct {
	base   uint64
	offset int
	log    logrus.FieldLogger
}

type Option func(*options)

// WithBase sets the address the image is placed at. For ELF files it is a
// load bias added to the oatdata symbol; for raw dumps it is the absolute
// begin address.
func WithBase(base uint64) Option {
	return func(o *options) { o.base = base }
}

// WithOffset skips the signature scan of a raw dump and takes the image at
// off.
func WithOffset(off int) Option {
	return func(o *options) { o.offset = off }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

type opener func(data []byte, o *options) (*File, error)

var openers = []opener{
	openElf,
	openRaw,
}

// Open maps the named file and locates the OAT image in it.
// The caller must call f.Close when the file is no longer needed.
func Open(name string, opts ...Option) (*File, error) {
	data, release, err := Map(name)
	if err != nil {
		return nil, err
	}
	f, err := OpenBytes(data, opts...)
	if err != nil {
		release()
		return nil, errors.Wrapf(err, "open %s", name)
	}
	f.name = name
	f.release = release
	return f, nil
}

// Map maps the named file read-only without looking for an image in it.
// The bytes are valid until release is called.
func Map(name string) (data []byte, release func() error, err error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	if data, release, err = mapFile(r); err != nil {
		return nil, nil, errors.Wrapf(err, "mapping %s", name)
	}
	return data, release, nil
}

// OpenBytes locates the OAT image in data. data must outlive the File.
func OpenBytes(data []byte, opts ...Option) (*File, error) {
	o := &options{offset: -1}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}

	var errs []error
	for _, try := range openers {
		f, err := try(data, o)
		if err == nil {
			f.data = data
			o.log.WithFields(logrus.Fields{
				"kind":   f.kind.String(),
				"begin":  uint64(f.begin),
				"offset": f.imageOff,
				"size":   len(f.image),
			}).Debug("found oat image")
			return f, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Errorf("no oat image found: %v", errs)
}

func (f *File) Close() error {
	if f.release == nil {
		return nil
	}
	release := f.release
	f.release = nil
	return release()
}

func (f *File) Name() string  { return f.name }
func (f *File) Kind() Kind    { return f.kind }
func (f *File) Bytes() []byte { return f.data }

// Begin is the address the image is mapped at.
func (f *File) Begin() oat.Addr { return f.begin }

// ImageBytes returns the bytes of the image alone.
func (f *File) ImageBytes() []byte { return f.image }

// ImageOffset is the file offset of the image's header.
func (f *File) ImageOffset() int { return f.imageOff }

// Candidates lists every signature a raw scan saw, supported or not.
func (f *File) Candidates() []oat.HeaderCandidate { return f.candidate }

// Image builds the navigation context for the located image.
func (f *File) Image(opts ...oat.Option) (*oat.Image, error) {
	if !oat.IsValidHeader(f.image) {
		return nil, errors.Errorf("unsupported oat header at offset %#x", f.imageOff)
	}
	return oat.NewImage(f.begin, f.image, opts...)
}

func openRaw(data []byte, o *options) (*File, error) {
	f := &File{kind: KindRaw, begin: DefaultRawBase}
	if o.base != 0 {
		f.begin = oat.Addr(o.base)
	}

	if o.offset >= 0 {
		if o.offset >= len(data) {
			return nil, errors.Errorf("offset %#x past end of %d bytes", o.offset, len(data))
		}
		f.imageOff = o.offset
		f.image = data[o.offset:]
		return f, nil
	}

	f.candidate = oat.FindHeaders(data)
	for _, c := range f.candidate {
		if c.Supported {
			f.imageOff = c.Offset
			f.image = data[c.Offset:]
			return f, nil
		}
		o.log.WithFields(logrus.Fields{"offset": c.Offset, "version": c.Version}).Warn("skipping unsupported oat header")
	}
	return nil, errors.New("no supported oat header in raw data")
}
