/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"github.com/pkg/errors"

	"github.com/wyd20162016/ARTIST/dex"
)

// The DEX bytecode format itself is interpreted by a DexParser. The
// interfaces below are everything the resolvers need from one; the
// default implementation is backed by package dex.

// DexParser opens the DEX module embedded in a dex file record.
type DexParser interface {
	Parse(data []byte) (DexModule, error)
}

// DexParserFunc adapts a function to a DexParser.
type DexParserFunc func(data []byte) (DexModule, error)

func (f DexParserFunc) Parse(data []byte) (DexModule, error) { return f(data) }

// DexModule is one parsed DEX module.
type DexModule interface {
	NumClassDefs() uint32
	// FindClass returns the class with the given type descriptor and its
	// index in the module's class-def order, or ErrNotFound.
	FindClass(descriptor string) (DexClass, uint32, error)
	// Class returns the class at a class-def index. Range checking is the
	// module's job.
	Class(classDefIndex uint32) (DexClass, error)
}

type DexClass interface {
	Descriptor() string
	FindDirectMethod(name, signature string) (DexMethod, error)
	FindVirtualMethod(name, signature string) (DexMethod, error)
}

type DexMethod interface {
	Name() string
	Signature() string
	// ClassMethodIndex is the method's position in its class, direct
	// methods first. It indexes the class's compiled-code offsets.
	ClassMethodIndex() uint32
}

// DefaultDexParser parses modules with package dex.
var DefaultDexParser DexParser = DexParserFunc(func(data []byte) (DexModule, error) {
	f, err := dex.Open(data)
	if err != nil {
		return nil, fromDexError(err)
	}
	return dexModule{f}, nil
})

type dexModule struct {
	f *dex.File
}

func (m dexModule) NumClassDefs() uint32 { return m.f.NumClassDefs() }

func (m dexModule) FindClass(descriptor string) (DexClass, uint32, error) {
	c, err := m.f.FindClass(descriptor)
	if err != nil {
		return nil, 0, fromDexError(err)
	}
	return dexClass{c}, c.Index(), nil
}

func (m dexModule) Class(classDefIndex uint32) (DexClass, error) {
	c, err := m.f.Class(classDefIndex)
	if err != nil {
		return nil, fromDexError(err)
	}
	return dexClass{c}, nil
}

type dexClass struct {
	c *dex.Class
}

func (c dexClass) Descriptor() string { return c.c.Descriptor() }

func (c dexClass) FindDirectMethod(name, signature string) (DexMethod, error) {
	m, err := c.c.FindDirectMethod(name, signature)
	if err != nil {
		return nil, fromDexError(err)
	}
	return m, nil
}

func (c dexClass) FindVirtualMethod(name, signature string) (DexMethod, error) {
	m, err := c.c.FindVirtualMethod(name, signature)
	if err != nil {
		return nil, fromDexError(err)
	}
	return m, nil
}

// fromDexError maps package dex sentinels onto ours so callers only need
// to test against this package.
func fromDexError(err error) error {
	switch {
	case errors.Is(err, dex.ErrNotFound):
		return errors.WithMessage(ErrNotFound, err.Error())
	case errors.Is(err, dex.ErrOutOfBounds):
		return errors.WithMessage(ErrOutOfBounds, err.Error())
	case errors.Is(err, dex.ErrIndex):
		return errors.WithMessage(ErrIndexOutOfRange, err.Error())
	}
	return err
}
