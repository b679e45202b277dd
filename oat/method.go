/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MethodOffsets is the per-method compiled-code record of a class.
type MethodOffsets struct {
	CodeOffset  uint32
	GcMapOffset uint32
}

// Method is a method resolved inside a Class. A Method without offsets is
// not an error: the method was left to the interpreter.
type Method struct {
	class     *Class
	dexMethod DexMethod
	offsets   *MethodOffsets
}

func (m *Method) Class() *Class            { return m.class }
func (m *Method) DexMethod() DexMethod     { return m.dexMethod }
func (m *Method) Name() string             { return m.dexMethod.Name() }
func (m *Method) Signature() string        { return m.dexMethod.Signature() }
func (m *Method) ClassMethodIndex() uint32 { return m.dexMethod.ClassMethodIndex() }

// Offsets returns the compiled-code record, if the method has one.
func (m *Method) Offsets() (MethodOffsets, bool) {
	if m.offsets == nil {
		return MethodOffsets{}, false
	}
	return *m.offsets, true
}

type methodLookup func(name, signature string) (DexMethod, error)

// FindDirectMethod resolves a direct (static, private or constructor)
// method by name and signature, e.g. "main", "([Ljava/lang/String;)V".
func (c *Class) FindDirectMethod(name, signature string) (*Method, error) {
	return c.findMethod("direct", c.dexClass.FindDirectMethod, name, signature)
}

// FindVirtualMethod resolves a virtual method by name and signature.
func (c *Class) FindVirtualMethod(name, signature string) (*Method, error) {
	return c.findMethod("virtual", c.dexClass.FindVirtualMethod, name, signature)
}

// FindMethod tries the direct methods, then the virtual ones.
func (c *Class) FindMethod(name, signature string) (*Method, error) {
	m, err := c.FindDirectMethod(name, signature)
	if err == nil || !IsNotFound(err) {
		return m, err
	}
	m, err = c.FindVirtualMethod(name, signature)
	if err != nil && IsNotFound(err) {
		c.dexFile.image.log.WithFields(logrus.Fields{
			"class":     c.descriptor,
			"method":    name,
			"signature": signature,
		}).Debug("could not find method")
	}
	return m, err
}

func (c *Class) findMethod(kind string, lookup methodLookup, name, signature string) (*Method, error) {
	log := c.dexFile.image.log.WithFields(logrus.Fields{
		"class":     c.descriptor,
		"method":    name,
		"signature": signature,
	})
	log.Debugf("looking up %s oat method", kind)

	dm, err := lookup(name, signature)
	if err != nil {
		if IsNotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s method %s%s in %s", kind, name, signature, c.descriptor)
		}
		return nil, &DecodeError{Op: kind + " method", Index: c.classDefIndex, Location: c.dexFile.location, Descriptor: c.descriptor, Err: err}
	}

	offsets, ok, err := c.MethodOffsets(dm.ClassMethodIndex())
	if err != nil {
		log.WithError(err).Error("error decoding oat method offsets")
		return nil, &DecodeError{Op: "method offsets", Index: dm.ClassMethodIndex(), Location: c.dexFile.location, Descriptor: c.descriptor, Addr: c.addr, Err: err}
	}
	m := &Method{class: c, dexMethod: dm}
	if ok {
		m.offsets = &offsets
	} else {
		log.Debug("method has no compiled code")
	}
	return m, nil
}
