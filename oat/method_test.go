/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyd20162016/ARTIST/internal/oattest"
)

func findTestClass(t *testing.T, img *Image, descriptor string) *Class {
	t.Helper()
	_, c, err := img.FindClass(descriptor)
	require.NoError(t, err)
	return c
}

func TestFindMethod(t *testing.T) {
	img, _, lay := buildAppImage(t)
	app := findTestClass(t, img, "Lcom/example/App;")
	methods := lay.Dex[0].Classes[0].Methods

	tests := []struct {
		name, sig string
		index     uint32
		compiled  bool
	}{
		{"<init>", "()V", 0, true},
		{"helper", "(I)I", 1, false},
		{"onCreate", "(Landroid/os/Bundle;)V", 2, true},
		{"toString", "()Ljava/lang/String;", 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := app.FindMethod(tt.name, tt.sig)
			require.NoError(t, err)
			assert.Equal(t, tt.name, m.Name())
			assert.Equal(t, tt.sig, m.Signature())
			assert.Equal(t, tt.index, m.ClassMethodIndex())
			assert.Same(t, app, m.Class())
			assert.Equal(t, tt.compiled, m.HasQuickCompiledCode())

			ep, ok := m.EntryPoint()
			assert.Equal(t, tt.compiled, ok)
			if !tt.compiled {
				assert.Equal(t, Addr(0), ep)
				_, err := m.QuickHeader()
				assert.ErrorIs(t, err, ErrNoCompiledCode)
				var de *DecodeError
				assert.NotErrorAs(t, err, &de)
				return
			}
			k := methods[tt.index].CodeOffset
			assert.Equal(t, testBase+Addr(k), ep)
			offsets, ok := m.Offsets()
			require.True(t, ok)
			assert.Equal(t, k, offsets.CodeOffset)
		})
	}
}

func TestDirectAndVirtualTables(t *testing.T) {
	img, _, _ := buildAppImage(t)
	app := findTestClass(t, img, "Lcom/example/App;")

	_, err := app.FindDirectMethod("<init>", "()V")
	assert.NoError(t, err)
	_, err = app.FindVirtualMethod("<init>", "()V")
	assert.True(t, IsNotFound(err))

	_, err = app.FindVirtualMethod("onCreate", "(Landroid/os/Bundle;)V")
	assert.NoError(t, err)
	_, err = app.FindDirectMethod("onCreate", "(Landroid/os/Bundle;)V")
	assert.True(t, IsNotFound(err))

	for _, tt := range [][2]string{
		{"onCreate", "()V"},
		{"oncreate", "(Landroid/os/Bundle;)V"},
		{"missing", "()V"},
	} {
		_, err := app.FindMethod(tt[0], tt[1])
		assert.True(t, IsNotFound(err), "%s%s", tt[0], tt[1])
		var de *DecodeError
		assert.NotErrorAs(t, err, &de)
	}
}

func TestUncompiledMethodIsFound(t *testing.T) {
	img, _, _ := buildAppImage(t)
	slow := findTestClass(t, img, "Lcom/example/Slow;")

	m, err := slow.FindMethod("run", "()V")
	require.NoError(t, err)
	assert.False(t, m.HasQuickCompiledCode())
	_, ok := m.EntryPoint()
	assert.False(t, ok)
	_, ok = m.CodePointer()
	assert.False(t, ok)
	_, ok = m.Offsets()
	assert.False(t, ok)
}

func TestAllCompiledClass(t *testing.T) {
	img, _, lay := buildAppImage(t)
	fast := findTestClass(t, img, "Lcom/example/Fast;")

	b, err := fast.FindMethod("b", "(J)V")
	require.NoError(t, err)
	ep, ok := b.EntryPoint()
	require.True(t, ok)
	assert.Equal(t, testBase+Addr(lay.Dex[0].Classes[1].Methods[1].CodeOffset), ep)

	code, err := b.Code()
	require.NoError(t, err)
	assert.Equal(t, oattest.DefaultCode, code)
}

func TestFindMethodIdempotent(t *testing.T) {
	img, _, _ := buildAppImage(t)
	app := findTestClass(t, img, "Lcom/example/App;")

	for _, tt := range [][2]string{{"onCreate", "(Landroid/os/Bundle;)V"}, {"helper", "(I)I"}} {
		m1, err := app.FindMethod(tt[0], tt[1])
		require.NoError(t, err)
		m2, err := app.FindMethod(tt[0], tt[1])
		require.NoError(t, err)

		assert.Equal(t, m1, m2)
		assert.Equal(t, m1.DexMethod(), m2.DexMethod())
		assert.Equal(t, m1.HasQuickCompiledCode(), m2.HasQuickCompiledCode())
		o1, ok1 := m1.Offsets()
		o2, ok2 := m2.Offsets()
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, o1, o2)
	}
}

func TestQuickHeaderAndCode(t *testing.T) {
	img, _, _ := buildAppImage(t)
	app := findTestClass(t, img, "Lcom/example/App;")
	m, err := app.FindMethod("onCreate", "(Landroid/os/Bundle;)V")
	require.NoError(t, err)

	hdr, err := m.QuickHeader()
	require.NoError(t, err)
	assert.Equal(t, uint32(64), hdr.FrameSizeInBytes)
	assert.Equal(t, uint32(12), hdr.CodeSize)

	code, err := m.Code()
	require.NoError(t, err)
	assert.Equal(t, appImage.Dex[0].Classes[0].Virtual[0].Code, code)
}

func TestMethodOffsetsPastEnd(t *testing.T) {
	data, lay := oattest.Build(appImage)
	// cut the image just after the class record of Fast, before its
	// second method offsets record
	cut := lay.Dex[0].Classes[1].Methods[1].SlotOffset + 4
	img, _ := newTestImage(t, data[:cut])

	fast := findTestClass(t, img, "Lcom/example/Fast;")
	_, err := fast.FindMethod("a", "()V")
	assert.NoError(t, err)

	_, err = fast.FindMethod("b", "(J)V")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "method offsets", de.Op)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.False(t, IsNotFound(err))
}

func TestThumb2CodePointer(t *testing.T) {
	thumb := appImage
	thumb.ISA = oattest.ISAThumb2
	data, lay := oattest.Build(thumb)
	img, _ := newTestImage(t, data)
	assert.Equal(t, ISAThumb2, img.Header().InstructionSet())

	app := findTestClass(t, img, "Lcom/example/App;")
	m, err := app.FindMethod("<init>", "()V")
	require.NoError(t, err)

	ml := lay.Dex[0].Classes[0].Methods[0]
	ep, ok := m.EntryPoint()
	require.True(t, ok)
	assert.Equal(t, testBase+Addr(ml.CodeOffset), ep)
	assert.Equal(t, Addr(1), ep&1, "entry point keeps the mode bit")

	cp, ok := m.CodePointer()
	require.True(t, ok)
	assert.Equal(t, testBase+Addr(ml.CodeStart), cp)

	code, err := m.Code()
	require.NoError(t, err)
	assert.Equal(t, oattest.DefaultCode, code)
}

func TestCodePointerTransform(t *testing.T) {
	tests := []struct {
		isa  InstructionSet
		in   Addr
		want Addr
	}{
		{ISAThumb2, 0x70001001, 0x70001000},
		{ISAThumb2, 0x70001000, 0x70001000},
		{ISAArm, 0x70001001, 0x70001001},
		{ISAArm64, 0x70001001, 0x70001001},
		{ISAX86, 0x70001003, 0x70001003},
		{ISAX86_64, 0x70001000, 0x70001000},
		{ISAMips, 0x70001001, 0x70001001},
		{ISANone, 0x70001001, 0x70001001},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodePointerTransform(tt.isa)(tt.in), "%s %#x", tt.isa, uint64(tt.in))
	}
}

func TestCodePointerOverride(t *testing.T) {
	data, lay := oattest.Build(appImage)
	img, _ := newTestImage(t, data, WithCodePointerFunc(func(a Addr) Addr { return a + 0x10 }))

	app := findTestClass(t, img, "Lcom/example/App;")
	m, err := app.FindMethod("<init>", "()V")
	require.NoError(t, err)
	cp, ok := m.CodePointer()
	require.True(t, ok)
	assert.Equal(t, testBase+Addr(lay.Dex[0].Classes[0].Methods[0].CodeOffset)+0x10, cp)
}

func TestMethodLookupLogging(t *testing.T) {
	data, _ := oattest.Build(appImage)
	img, hook := newTestImage(t, data)
	app := findTestClass(t, img, "Lcom/example/App;")

	_, err := app.FindMethod("helper", "(I)I")
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "method has no compiled code", hook.LastEntry().Message)
	assert.Equal(t, "helper", hook.LastEntry().Data["method"])
}
