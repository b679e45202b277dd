/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package dex

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Class is a class definition with its method list.
type Class struct {
	file       *File
	index      uint32
	def        ClassDef
	descriptor string

	numDirect int
	methods   []Method // direct methods, then virtual
}

// Method is an entry of a class's encoded_method lists.
type Method struct {
	MethodIdx   uint32
	AccessFlags AccessFlags
	CodeOff     uint32

	name             string
	signature        string
	classMethodIndex uint32
}

func (m *Method) Name() string      { return m.name }
func (m *Method) Signature() string { return m.signature }

// ClassMethodIndex is the method's position among all methods of its
// class, counting the direct methods first.
func (m *Method) ClassMethodIndex() uint32 { return m.classMethodIndex }

// IsDirect reports whether the method was listed in direct_methods.
func (m *Method) IsDirect(c *Class) bool { return int(m.classMethodIndex) < c.numDirect }

func (c *Class) File() *File        { return c.file }
func (c *Class) Index() uint32      { return c.index }
func (c *Class) Def() ClassDef      { return c.def }
func (c *Class) Descriptor() string { return c.descriptor }

// Superclass returns the superclass descriptor, or "" for java.lang.Object.
func (c *Class) Superclass() (string, error) {
	if c.def.SuperclassIdx == NoIndex {
		return "", nil
	}
	return c.file.TypeDescriptor(c.def.SuperclassIdx)
}

// Interfaces returns the descriptors of the directly implemented interfaces.
func (c *Class) Interfaces() ([]string, error) {
	return c.file.typeList(c.def.InterfacesOff)
}

func (c *Class) DirectMethods() []Method  { return c.methods[:c.numDirect] }
func (c *Class) VirtualMethods() []Method { return c.methods[c.numDirect:] }

// Methods returns every method in class method index order.
func (c *Class) Methods() []Method { return c.methods }

func (c *Class) FindDirectMethod(name, signature string) (*Method, error) {
	return c.find(c.DirectMethods(), "direct", name, signature)
}

func (c *Class) FindVirtualMethod(name, signature string) (*Method, error) {
	return c.find(c.VirtualMethods(), "virtual", name, signature)
}

func (c *Class) find(methods []Method, kind, name, signature string) (*Method, error) {
	for i := range methods {
		if methods[i].name == name && methods[i].signature == signature {
			return &methods[i], nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s method %s%s in %s", kind, name, signature, c.descriptor)
}

func (f *File) newClass(idx uint32, def ClassDef) (*Class, error) {
	c := &Class{file: f, index: idx, def: def}
	var err error
	if c.descriptor, err = f.TypeDescriptor(def.ClassIdx); err != nil {
		return nil, errors.Wrapf(err, "class def %d", idx)
	}
	// marker interfaces and the like carry no class data
	if def.ClassDataOff == 0 {
		return c, nil
	}
	if uint64(def.ClassDataOff) >= uint64(len(f.data)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "class data of %s at %#x", c.descriptor, def.ClassDataOff)
	}
	if err := c.decodeClassData(f.data[def.ClassDataOff:]); err != nil {
		return nil, errors.Wrapf(err, "class data of %s", c.descriptor)
	}
	return c, nil
}

type ulebReader struct {
	data []byte
	err  error
}

func (r *ulebReader) next() uint32 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data)
	if n <= 0 || v > 0xffffffff {
		r.err = errors.Wrap(ErrOutOfBounds, "uleb128")
		return 0
	}
	r.data = r.data[n:]
	return uint32(v)
}

func (c *Class) decodeClassData(b []byte) error {
	r := &ulebReader{data: b}
	numStatic := r.next()
	numInstance := r.next()
	numDirect := r.next()
	numVirtual := r.next()
	if r.err != nil {
		return r.err
	}

	// fields are skipped, but the only way past them is to decode them
	for i := uint64(0); i < uint64(numStatic)+uint64(numInstance); i++ {
		r.next()
		r.next()
		if r.err != nil {
			return r.err
		}
	}

	total := uint64(numDirect) + uint64(numVirtual)
	if total > uint64(len(r.data)) {
		return errors.Wrapf(ErrOutOfBounds, "%d methods", total)
	}
	c.numDirect = int(numDirect)
	c.methods = make([]Method, 0, total)

	var methodIdx uint32
	for i := uint64(0); i < total; i++ {
		delta := r.next()
		if i == 0 || i == uint64(numDirect) {
			methodIdx = delta
		} else {
			methodIdx += delta
		}
		access := r.next()
		codeOff := r.next()
		if r.err != nil {
			return r.err
		}

		id, err := c.file.methodID(methodIdx)
		if err != nil {
			return err
		}
		m := Method{
			MethodIdx:        methodIdx,
			AccessFlags:      AccessFlags(access),
			CodeOff:          codeOff,
			classMethodIndex: uint32(i),
		}
		if m.name, err = c.file.String(id.NameIdx); err != nil {
			return err
		}
		if m.signature, err = c.file.ProtoSignature(uint32(id.ProtoIdx)); err != nil {
			return err
		}
		c.methods = append(c.methods, m)
	}
	return nil
}
