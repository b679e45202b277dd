/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/

// Package oattest synthesizes DEX modules and OAT images for tests. The
// builders panic on malformed input; they are only meant to be fed literals.
package oattest

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/adler32"
)

const (
	dexHeaderSize = 0x70
	noIndex       = 0xffffffff
)

// Method describes one method of a synthesized class.
type Method struct {
	Name        string
	Signature   string // e.g. "(I)V"
	AccessFlags uint32

	// Compiled methods get a method offsets record and a code blob.
	Compiled  bool
	Code      []byte // defaults to DefaultCode
	FrameSize uint32
}

// DefaultCode is an arm64 "ret".
var DefaultCode = []byte{0xc0, 0x03, 0x5f, 0xd6}

// Class describes one class definition. Direct methods get class method
// indexes 0..len(Direct)-1, virtual methods follow.
type Class struct {
	Descriptor string
	Superclass string
	Status     int16
	Direct     []Method
	Virtual    []Method
}

// Methods returns the methods in class method index order.
func (c *Class) Methods() []Method {
	return append(append([]Method(nil), c.Direct...), c.Virtual...)
}

type proto struct {
	shorty uint32
	ret    uint32
	params []uint32
}

type methodID struct {
	class uint16
	proto uint16
	name  uint32
}

type dexBuilder struct {
	strings   []string
	stringIdx map[string]uint32
	types     []uint32
	typeIdx   map[string]uint32
	protos    []proto
	protoIdx  map[string]uint32
	methods   []methodID
}

func (b *dexBuilder) str(s string) uint32 {
	if i, ok := b.stringIdx[s]; ok {
		return i
	}
	i := uint32(len(b.strings))
	b.strings = append(b.strings, s)
	b.stringIdx[s] = i
	return i
}

func (b *dexBuilder) typ(desc string) uint32 {
	if i, ok := b.typeIdx[desc]; ok {
		return i
	}
	i := uint32(len(b.types))
	b.types = append(b.types, b.str(desc))
	b.typeIdx[desc] = i
	return i
}

func (b *dexBuilder) proto(sig string) uint32 {
	if i, ok := b.protoIdx[sig]; ok {
		return i
	}
	params, ret := SplitSignature(sig)
	p := proto{ret: b.typ(ret)}
	shorty := shortyChar(ret)
	for _, d := range params {
		p.params = append(p.params, b.typ(d))
		shorty += shortyChar(d)
	}
	p.shorty = b.str(shorty)
	i := uint32(len(b.protos))
	b.protos = append(b.protos, p)
	b.protoIdx[sig] = i
	return i
}

func shortyChar(desc string) string {
	if desc[0] == 'L' || desc[0] == '[' {
		return "L"
	}
	return desc[:1]
}

// SplitSignature splits "(ILjava/lang/String;)V" into its parameter and
// return type descriptors.
func SplitSignature(sig string) ([]string, string) {
	if len(sig) < 3 || sig[0] != '(' {
		panic(fmt.Sprintf("bad signature %q", sig))
	}
	var params []string
	i := 1
	for sig[i] != ')' {
		n := descriptorLen(sig[i:])
		params = append(params, sig[i:i+n])
		i += n
	}
	ret := sig[i+1:]
	if descriptorLen(ret) != len(ret) {
		panic(fmt.Sprintf("bad return type in %q", sig))
	}
	return params, ret
}

func descriptorLen(s string) int {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		panic(fmt.Sprintf("bad descriptor %q", s))
	}
	if s[i] != 'L' {
		return i + 1
	}
	for j := i; j < len(s); j++ {
		if s[j] == ';' {
			return j + 1
		}
	}
	panic(fmt.Sprintf("unterminated descriptor %q", s))
}

type classEntry struct {
	typ, super uint32
	directIDs  []uint32
	virtualIDs []uint32
	direct     []Method
	virtual    []Method
}

// BuildDex produces a DEX module defining classes in the given order.
func BuildDex(classes []Class) []byte {
	b := &dexBuilder{
		stringIdx: map[string]uint32{},
		typeIdx:   map[string]uint32{},
		protoIdx:  map[string]uint32{},
	}

	entries := make([]classEntry, len(classes))
	for i, c := range classes {
		e := &entries[i]
		e.typ = b.typ(c.Descriptor)
		e.super = noIndex
		if c.Superclass != "" {
			e.super = b.typ(c.Superclass)
		}
		e.direct, e.virtual = c.Direct, c.Virtual
		for _, m := range c.Direct {
			e.directIDs = append(e.directIDs, b.method(e.typ, m))
		}
		for _, m := range c.Virtual {
			e.virtualIDs = append(e.virtualIDs, b.method(e.typ, m))
		}
	}

	le := binary.LittleEndian
	stringIdsOff := uint32(dexHeaderSize)
	typeIdsOff := stringIdsOff + 4*uint32(len(b.strings))
	protoIdsOff := typeIdsOff + 4*uint32(len(b.types))
	methodIdsOff := protoIdsOff + 12*uint32(len(b.protos))
	classDefsOff := methodIdsOff + 8*uint32(len(b.methods))
	dataOff := classDefsOff + 32*uint32(len(entries))
	out := make([]byte, dataOff)

	for i, p := range b.protos {
		o := protoIdsOff + 12*uint32(i)
		le.PutUint32(out[o:], p.shorty)
		le.PutUint32(out[o+4:], p.ret)
		if len(p.params) > 0 {
			out = align(out, 4)
			le.PutUint32(out[o+8:], uint32(len(out)))
			out = le.AppendUint32(out, uint32(len(p.params)))
			for _, t := range p.params {
				out = le.AppendUint16(out, uint16(t))
			}
		}
	}

	for i, m := range b.methods {
		o := methodIdsOff + 8*uint32(i)
		le.PutUint16(out[o:], m.class)
		le.PutUint16(out[o+2:], m.proto)
		le.PutUint32(out[o+4:], m.name)
	}

	for i, e := range entries {
		o := classDefsOff + 32*uint32(i)
		le.PutUint32(out[o:], e.typ)
		le.PutUint32(out[o+4:], 0x1) // public
		le.PutUint32(out[o+8:], e.super)
		le.PutUint32(out[o+16:], noIndex)
		if len(e.direct)+len(e.virtual) == 0 {
			continue
		}
		le.PutUint32(out[o+24:], uint32(len(out)))
		out = binary.AppendUvarint(out, 0)
		out = binary.AppendUvarint(out, 0)
		out = binary.AppendUvarint(out, uint64(len(e.direct)))
		out = binary.AppendUvarint(out, uint64(len(e.virtual)))
		out = appendEncodedMethods(out, e.directIDs, e.direct)
		out = appendEncodedMethods(out, e.virtualIDs, e.virtual)
	}

	for i, s := range b.strings {
		le.PutUint32(out[stringIdsOff+4*uint32(i):], uint32(len(out)))
		out = binary.AppendUvarint(out, uint64(len(s)))
		out = append(out, s...)
		out = append(out, 0)
	}
	for i, t := range b.types {
		le.PutUint32(out[typeIdsOff+4*uint32(i):], t)
	}

	out = align(out, 4)
	copy(out, "dex\n035\x00")
	le.PutUint32(out[0x20:], uint32(len(out)))
	le.PutUint32(out[0x24:], dexHeaderSize)
	le.PutUint32(out[0x28:], 0x12345678)
	for i, v := range []uint32{
		uint32(len(b.strings)), stringIdsOff,
		uint32(len(b.types)), typeIdsOff,
		uint32(len(b.protos)), protoIdsOff,
		0, 0,
		uint32(len(b.methods)), methodIdsOff,
		uint32(len(entries)), classDefsOff,
		uint32(len(out)) - dataOff, dataOff,
	} {
		le.PutUint32(out[0x38+4*i:], v)
	}
	sig := sha1.Sum(out[32:])
	copy(out[12:], sig[:])
	le.PutUint32(out[8:], adler32.Checksum(out[12:]))
	return out
}

func (b *dexBuilder) method(class uint32, m Method) uint32 {
	i := uint32(len(b.methods))
	b.methods = append(b.methods, methodID{
		class: uint16(class),
		proto: uint16(b.proto(m.Signature)),
		name:  b.str(m.Name),
	})
	return i
}

func appendEncodedMethods(out []byte, idx []uint32, methods []Method) []byte {
	prev := uint32(0)
	for i, id := range idx {
		out = binary.AppendUvarint(out, uint64(id-prev))
		out = binary.AppendUvarint(out, uint64(methods[i].AccessFlags))
		out = binary.AppendUvarint(out, 0)
		prev = id
	}
	return out
}

func align(b []byte, n int) []byte {
	for len(b)%n != 0 {
		b = append(b, 0)
	}
	return b
}
