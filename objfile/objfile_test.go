/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package objfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyd20162016/ARTIST/internal/oattest"
	"github.com/wyd20162016/ARTIST/oat"
)

var smallImage = oattest.Image{
	ISA:       oattest.ISAArm64,
	KeyValues: [][2]string{{"pic", "true"}},
	Dex: []oattest.Dex{{
		Location: "/data/app/com.example-1/base.apk",
		Checksum: 0xcafef00d,
		Classes: []oattest.Class{{
			Descriptor: "Lcom/example/Main;",
			Superclass: "Ljava/lang/Object;",
			Direct: []oattest.Method{
				{Name: "main", Signature: "([Ljava/lang/String;)V", Compiled: true},
			},
		}},
	}},
}

func findMain(t *testing.T, f *File) *oat.Method {
	t.Helper()
	img, err := f.Image()
	require.NoError(t, err)
	_, class, err := img.FindClass("Lcom/example/Main;")
	require.NoError(t, err)
	m, err := class.FindMethod("main", "([Ljava/lang/String;)V")
	require.NoError(t, err)
	return m
}

func TestOpenELF(t *testing.T) {
	image, lay := oattest.Build(smallImage)
	data := oattest.BuildELF(image)

	f, err := OpenBytes(data)
	require.NoError(t, err)
	assert.Equal(t, KindELF, f.Kind())
	assert.Equal(t, oat.Addr(oattest.ELFOatData), f.Begin())
	assert.Equal(t, oattest.ELFOatData, f.ImageOffset())
	assert.Equal(t, image, f.ImageBytes())
	assert.Empty(t, f.Candidates())

	m := findMain(t, f)
	ep, ok := m.EntryPoint()
	require.True(t, ok)
	assert.Equal(t, oat.Addr(oattest.ELFOatData+lay.Dex[0].Classes[0].Methods[0].CodeOffset), ep)

	biased, err := OpenBytes(data, WithBase(0x7f000000))
	require.NoError(t, err)
	assert.Equal(t, oat.Addr(0x7f000000+oattest.ELFOatData), biased.Begin())
}

func TestOpenELFMissingSymbols(t *testing.T) {
	image, _ := oattest.Build(smallImage)
	data := oattest.BuildELF(image)
	// rename oatlastword so the lookup misses it; the raw scan still finds
	// the image inside the ELF file
	copy(data[0x100+9:], "oatlastwore")

	f, err := OpenBytes(data)
	require.NoError(t, err)
	assert.Equal(t, KindRaw, f.Kind())
	assert.Equal(t, oattest.ELFOatData, f.ImageOffset())
}

func TestOpenRaw(t *testing.T) {
	image, _ := oattest.Build(smallImage)
	dump := append(make([]byte, 0x200), image...)

	f, err := OpenBytes(dump)
	require.NoError(t, err)
	assert.Equal(t, KindRaw, f.Kind())
	assert.Equal(t, oat.Addr(DefaultRawBase), f.Begin())
	assert.Equal(t, 0x200, f.ImageOffset())
	require.Len(t, f.Candidates(), 1)
	assert.True(t, f.Candidates()[0].Supported)
	findMain(t, f)

	f, err = OpenBytes(dump, WithBase(oattest.Base))
	require.NoError(t, err)
	assert.Equal(t, oat.Addr(oattest.Base), f.Begin())

	f, err = OpenBytes(dump, WithOffset(0x200))
	require.NoError(t, err)
	assert.Equal(t, 0x200, f.ImageOffset())
	assert.Nil(t, f.Candidates())
	findMain(t, f)

	_, err = OpenBytes(dump, WithOffset(len(dump)))
	assert.Error(t, err)
}

func TestOpenRawSkipsUnsupported(t *testing.T) {
	image, _ := oattest.Build(smallImage)
	old := append([]byte(nil), image[:oattest.HeaderSize]...)
	copy(old[4:], "039\x00")
	dump := append(old, image...)

	logger, hook := test.NewNullLogger()
	f, err := OpenBytes(dump, WithLogger(logger))
	require.NoError(t, err)
	assert.Equal(t, oattest.HeaderSize, f.ImageOffset())
	require.Len(t, f.Candidates(), 2)
	assert.Equal(t, "039", f.Candidates()[0].Version)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "skipping unsupported oat header", entry.Message)
	assert.Equal(t, 0, entry.Data["offset"])
}

func TestOpenNoImage(t *testing.T) {
	_, err := OpenBytes([]byte("not an oat file at all"))
	assert.ErrorContains(t, err, "no oat image found")

	// an explicit offset bypasses the scan but the header is still checked
	f, err := OpenBytes(make([]byte, 128), WithOffset(0))
	require.NoError(t, err)
	_, err = f.Image()
	assert.ErrorContains(t, err, "unsupported oat header")
}

func TestOpenFile(t *testing.T) {
	image, _ := oattest.Build(smallImage)
	name := filepath.Join(t.TempDir(), "base.odex")
	require.NoError(t, os.WriteFile(name, oattest.BuildELF(image), 0o644))

	f, err := Open(name)
	require.NoError(t, err)
	assert.Equal(t, name, f.Name())
	assert.Equal(t, KindELF, f.Kind())
	findMain(t, f)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = Open(filepath.Join(t.TempDir(), "missing.odex"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.odex")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Open(empty)
	assert.Error(t, err)
}

func TestMap(t *testing.T) {
	image, _ := oattest.Build(smallImage)
	name := filepath.Join(t.TempDir(), "dump.bin")
	dump := append(make([]byte, 0x30), image...)
	require.NoError(t, os.WriteFile(name, dump, 0o644))

	data, release, err := Map(name)
	require.NoError(t, err)
	assert.Equal(t, dump, data)
	candidates := oat.FindHeaders(data)
	require.NoError(t, release())
	require.Len(t, candidates, 1)
	assert.Equal(t, 0x30, candidates[0].Offset)
	assert.Equal(t, "045", candidates[0].Version)

	_, _, err = Map(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, _, err = Map(empty)
	assert.ErrorContains(t, err, "empty file")
}
