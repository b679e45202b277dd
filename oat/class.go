/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ClassType says which of a class's methods have compiled code.
type ClassType uint16

const (
	ClassAllCompiled ClassType = iota
	ClassSomeCompiled
	ClassNoneCompiled
)

func (t ClassType) String() string {
	switch t {
	case ClassAllCompiled:
		return "all-compiled"
	case ClassSomeCompiled:
		return "some-compiled"
	case ClassNoneCompiled:
		return "none-compiled"
	}
	return fmt.Sprintf("ClassType(%d)", uint16(t))
}

// ClassStatus is the verification state dex2oat reached for a class.
type ClassStatus int16

const (
	StatusRetired ClassStatus = iota - 2
	StatusError
	StatusNotReady
	StatusIdx
	StatusLoaded
	StatusResolving
	StatusResolved
	StatusVerifying
	StatusRetryVerificationAtRuntime
	StatusVerifyingAtRuntime
	StatusVerified
	StatusInitializing
	StatusInitialized
)

var classStatusNames = map[ClassStatus]string{
	StatusRetired:                    "retired",
	StatusError:                      "error",
	StatusNotReady:                   "not-ready",
	StatusIdx:                        "idx",
	StatusLoaded:                     "loaded",
	StatusResolving:                  "resolving",
	StatusResolved:                   "resolved",
	StatusVerifying:                  "verifying",
	StatusRetryVerificationAtRuntime: "retry-verification-at-runtime",
	StatusVerifyingAtRuntime:         "verifying-at-runtime",
	StatusVerified:                   "verified",
	StatusInitializing:               "initializing",
	StatusInitialized:                "initialized",
}

func (s ClassStatus) String() string {
	if name, ok := classStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ClassStatus(%d)", int16(s))
}

const methodOffsetsSize = 8

// classData is the decoded class record.
type classData struct {
	status      ClassStatus
	typ         ClassType
	bitmap      []byte
	methodsAddr Addr
}

// decodeClassData reads the class record at a, checking every read against
// the end of the image.
func decodeClassData(img *Image, a Addr) (classData, error) {
	var cd classData
	b, err := img.bytesAt(a, 4)
	if err != nil {
		return cd, err
	}
	cd.status = ClassStatus(int16(binary.LittleEndian.Uint16(b)))
	cd.typ = ClassType(binary.LittleEndian.Uint16(b[2:]))
	p := a + 4

	switch cd.typ {
	case ClassSomeCompiled:
		size, err := img.u32At(p)
		if err != nil {
			return cd, err
		}
		p += 4
		if cd.bitmap, err = img.bytesAt(p, uint64(size)); err != nil {
			return cd, err
		}
		p += Addr(size)
		cd.methodsAddr = p
	case ClassAllCompiled:
		cd.methodsAddr = p
	case ClassNoneCompiled:
	default:
		return cd, errors.Wrapf(ErrUnknownClassType, "type %d", uint16(cd.typ))
	}
	return cd, nil
}

// methodOffsetsIndex maps a class method index to its slot in the method
// offsets array. ok is false when the method was not compiled.
func (cd *classData) methodOffsetsIndex(methodIndex uint32) (uint32, bool) {
	switch cd.typ {
	case ClassAllCompiled:
		return methodIndex, true
	case ClassSomeCompiled:
		byteIdx, bit := methodIndex/8, methodIndex%8
		if byteIdx >= uint32(len(cd.bitmap)) || cd.bitmap[byteIdx]&(1<<bit) == 0 {
			return 0, false
		}
		n := 0
		for _, v := range cd.bitmap[:byteIdx] {
			n += bits.OnesCount8(v)
		}
		n += bits.OnesCount8(cd.bitmap[byteIdx] & (1<<bit - 1))
		return uint32(n), true
	}
	return 0, false
}

// Class is a class resolved inside a DexFile.
type Class struct {
	dexFile       *DexFile
	dexClass      DexClass
	descriptor    string
	classDefIndex uint32
	offset        uint32
	addr          Addr
	data          classData
}

func (c *Class) DexFile() *DexFile     { return c.dexFile }
func (c *Class) DexClass() DexClass    { return c.dexClass }
func (c *Class) Descriptor() string    { return c.descriptor }
func (c *Class) ClassDefIndex() uint32 { return c.classDefIndex }
func (c *Class) Status() ClassStatus   { return c.data.status }
func (c *Class) Type() ClassType       { return c.data.typ }

// Offset is the file offset the class record was decoded from.
func (c *Class) Offset() uint32 { return c.offset }
func (c *Class) Addr() Addr     { return c.addr }

// NumCompiledMethods is the number of method offset records, or -1 for
// all-compiled classes where the count lives only in the DEX module.
func (c *Class) NumCompiledMethods() int {
	switch c.data.typ {
	case ClassNoneCompiled:
		return 0
	case ClassSomeCompiled:
		n := 0
		for _, v := range c.data.bitmap {
			n += bits.OnesCount8(v)
		}
		return n
	}
	return -1
}

// MethodOffsets returns the compiled-code record for the method at
// methodIndex. ok is false, with a nil error, when the method is left to
// the interpreter.
func (c *Class) MethodOffsets(methodIndex uint32) (MethodOffsets, bool, error) {
	slot, ok := c.data.methodOffsetsIndex(methodIndex)
	if !ok {
		return MethodOffsets{}, false, nil
	}
	b, err := c.dexFile.image.bytesAt(c.data.methodsAddr+Addr(slot)*methodOffsetsSize, methodOffsetsSize)
	if err != nil {
		return MethodOffsets{}, false, err
	}
	return MethodOffsets{
		CodeOffset:  binary.LittleEndian.Uint32(b),
		GcMapOffset: binary.LittleEndian.Uint32(b[4:]),
	}, true, nil
}

// FindClass resolves the class with the given type descriptor, for example
// "Ljava/lang/Object;". It returns ErrNotFound when the DEX module has no
// such class and a *DecodeError when the class record cannot be read.
func (df *DexFile) FindClass(descriptor string) (*Class, error) {
	module, err := df.Module()
	if err != nil {
		return nil, &DecodeError{Op: "dex module", Index: df.index, Location: df.location, Descriptor: descriptor, Addr: df.dexAddr, Err: err}
	}
	dc, classDefIndex, err := module.FindClass(descriptor)
	if err != nil {
		if IsNotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "class %s in %s", descriptor, df.location)
		}
		return nil, &DecodeError{Op: "dex class", Location: df.location, Descriptor: descriptor, Err: err}
	}
	return df.resolveClass(dc, classDefIndex, descriptor)
}

// Class resolves the class at a class-def index without a descriptor search.
func (df *DexFile) Class(classDefIndex uint32) (*Class, error) {
	module, err := df.Module()
	if err != nil {
		return nil, &DecodeError{Op: "dex module", Index: df.index, Location: df.location, Addr: df.dexAddr, Err: err}
	}
	dc, err := module.Class(classDefIndex)
	if err != nil {
		return nil, &DecodeError{Op: "dex class", Index: classDefIndex, Location: df.location, Err: err}
	}
	return df.resolveClass(dc, classDefIndex, dc.Descriptor())
}

func (df *DexFile) resolveClass(dc DexClass, classDefIndex uint32, descriptor string) (*Class, error) {
	img := df.image
	fail := func(a Addr, err error) (*Class, error) {
		img.log.WithFields(logrus.Fields{
			"descriptor": descriptor,
			"index":      classDefIndex,
			"location":   df.location,
		}).WithError(err).Error("error decoding oat class data")
		return nil, &DecodeError{Op: "oat class", Index: classDefIndex, Location: df.location, Descriptor: descriptor, Addr: a, Err: err}
	}

	offset, err := df.ClassOffset(classDefIndex)
	if err != nil {
		return fail(0, err)
	}
	a, ok := img.Resolve(offset)
	if !ok {
		return fail(0, ErrZeroOffset)
	}
	data, err := decodeClassData(img, a)
	if err != nil {
		return fail(a, err)
	}
	return &Class{
		dexFile:       df,
		dexClass:      dc,
		descriptor:    descriptor,
		classDefIndex: classDefIndex,
		offset:        offset,
		addr:          a,
		data:          data,
	}, nil
}

// FindClass looks for descriptor in every dex file of the image in order
// and returns the first match. A decode error in any dex file ends the
// search.
func (img *Image) FindClass(descriptor string) (*DexFile, *Class, error) {
	it := img.DexFiles()
	for {
		df, err := it.Next()
		if err == io.EOF {
			return nil, nil, errors.Wrapf(ErrNotFound, "class %s", descriptor)
		}
		if err != nil {
			return nil, nil, err
		}
		c, err := df.FindClass(descriptor)
		if err == nil {
			return df, c, nil
		}
		if !IsNotFound(err) {
			return nil, nil, err
		}
	}
}
