/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package dex

import "strings"

type AccessFlags uint32

const (
	AccPublic AccessFlags = 1 << iota
	AccPrivate
	AccProtected
	AccStatic
	AccFinal
	AccSynchronized
	AccVolatile  // bridge, for methods
	AccTransient // varargs, for methods
	AccNative
	AccInterface
	AccAbstract
	AccStrict
	AccSynthetic
	AccAnnotation
	AccEnum
	_
	AccConstructor
	AccDeclaredSynchronized
)

var accessNames = []struct {
	flag AccessFlags
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccSynchronized, "synchronized"},
	{AccNative, "native"},
	{AccInterface, "interface"},
	{AccAbstract, "abstract"},
	{AccSynthetic, "synthetic"},
	{AccConstructor, "constructor"},
}

// String lists the set flags in source order, e.g. "public static".
func (af AccessFlags) String() string {
	var parts []string
	for _, n := range accessNames {
		if af&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}

// PrettyDescriptor turns a type descriptor into Java source form:
// "[Ljava/lang/String;" becomes "java.lang.String[]" and "I" becomes "int".
// Unrecognised input is returned unchanged.
func PrettyDescriptor(d string) string {
	dims := 0
	for dims < len(d) && d[dims] == '[' {
		dims++
	}
	if dims == len(d) {
		return d
	}

	var base string
	switch c := d[dims]; c {
	case 'L':
		if !strings.HasSuffix(d, ";") {
			return d
		}
		base = strings.ReplaceAll(d[dims+1:len(d)-1], "/", ".")
	case 'B':
		base = "byte"
	case 'C':
		base = "char"
	case 'D':
		base = "double"
	case 'F':
		base = "float"
	case 'I':
		base = "int"
	case 'J':
		base = "long"
	case 'S':
		base = "short"
	case 'Z':
		base = "boolean"
	case 'V':
		base = "void"
	default:
		return d
	}
	if c := d[dims]; c != 'L' && len(d) != dims+1 {
		return d
	}
	return base + strings.Repeat("[]", dims)
}
