/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyd20162016/ARTIST/dex"
	"github.com/wyd20162016/ARTIST/internal/oattest"
)

func TestDexFileByIndexMatchesWalk(t *testing.T) {
	img, _, lay := buildAppImage(t)

	all, err := img.AllDexFiles()
	require.NoError(t, err)
	require.Len(t, all, 2)

	for i, walked := range all {
		df, err := img.DexFile(uint32(i))
		require.NoError(t, err)
		assert.Equal(t, walked.Location(), df.Location())
		assert.Equal(t, uint32(i), df.Index())
		assert.Equal(t, testBase+Addr(lay.Dex[i].DexFileOffset), df.DexAddr())
		assert.Equal(t, lay.Dex[i].DexFileOffset, df.DexFileOffset())
		assert.Len(t, df.DexBytes(), int(lay.Dex[i].DexSize))
		assert.Equal(t, uint32(len(appImage.Dex[i].Classes)), df.NumClassDefs())
		assert.Equal(t, appImage.Dex[i].Checksum, df.LocationChecksum())
		assert.Same(t, img, df.Image())
	}

	_, err = img.DexFile(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.False(t, IsNotFound(err))
	var de *DecodeError
	assert.NotErrorAs(t, err, &de, "a bad index is not a decode failure")
}

func TestDexFileIterator(t *testing.T) {
	img, _, lay := buildAppImage(t)

	it := img.DexFiles()
	assert.Equal(t, img.DexFileStreamStart(), it.Cursor())

	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "classes.dex", first.Location())
	assert.Equal(t, testBase+Addr(lay.Dex[1].RecordOffset), it.Cursor())

	second, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "classes2.dex", second.Location())

	_, err = it.Next()
	assert.Equal(t, io.EOF, err)
	_, err = it.Next()
	assert.Equal(t, io.EOF, err)

	it.Reset()
	again, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, first.Location(), again.Location())
}

func TestFindDexFile(t *testing.T) {
	img, _, _ := buildAppImage(t)

	df, err := img.FindDexFile("classes.dex")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), df.Index())

	df, err = img.FindDexFile("classes2.dex")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), df.Index())

	for _, loc := range []string{"classes", "classes.de", "lasses.dex", "s2.dex", "CLASSES.DEX", "classes.dex\x00", ""} {
		_, err := img.FindDexFile(loc)
		assert.ErrorIs(t, err, ErrNotFound, "%q", loc)
		var de *DecodeError
		assert.NotErrorAs(t, err, &de, "%q", loc)
	}
}

func TestMalformedDexFileRecord(t *testing.T) {
	data, lay := oattest.Build(appImage)

	// the second record claims a location longer than the image
	bad := oattest.Mutate(data, func(b []byte) {
		oattest.PutUint32(b, lay.Dex[1].RecordOffset, uint32(len(b)))
	})
	img, hook := newTestImage(t, bad)

	df, err := img.DexFile(0)
	require.NoError(t, err, "records before the bad one still decode")
	assert.Equal(t, "classes.dex", df.Location())

	_, err = img.DexFile(1)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, uint32(1), de.Index)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = img.FindDexFile("classes2.dex")
	assert.ErrorAs(t, err, &de)
	assert.False(t, IsNotFound(err))

	_, err = img.FindDexFile("no-such.dex")
	assert.ErrorAs(t, err, &de, "absence behind a bad record cannot be decided")

	_, err = img.AllDexFiles()
	assert.ErrorAs(t, err, &de)

	it := img.DexFiles()
	_, err = it.Next()
	require.NoError(t, err)
	_, err1 := it.Next()
	_, err2 := it.Next()
	assert.Error(t, err1)
	assert.Equal(t, err1, err2, "a failed walk stays failed")

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "error decoding oat dex file", hook.LastEntry().Message)
}

func TestDexFileRecordZeroOffset(t *testing.T) {
	data, lay := oattest.Build(appImage)
	bad := oattest.Mutate(data, func(b []byte) {
		loc := uint32(len(appImage.Dex[0].Location))
		oattest.PutUint32(b, lay.Dex[0].RecordOffset+4+loc+4, 0)
	})
	img, _ := newTestImage(t, bad)

	_, err := img.DexFile(0)
	assert.ErrorIs(t, err, ErrZeroOffset)
}

func TestDexParserOverride(t *testing.T) {
	data, _ := oattest.Build(appImage)
	calls := 0
	parser := DexParserFunc(func(b []byte) (DexModule, error) {
		calls++
		return DefaultDexParser.Parse(b)
	})
	img, _ := newTestImage(t, data, WithDexParser(parser))

	all, err := img.AllDexFiles()
	require.NoError(t, err)
	assert.Zero(t, calls, "walking the stream does not parse modules")

	for _, df := range all {
		_, err := df.Class(0)
		require.NoError(t, err)
		_, err = df.FindClass("Lcom/example/Fast;")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls, "each module is parsed once per record")
}

func TestMalformedDexModule(t *testing.T) {
	data, lay := oattest.Build(appImage)
	bad := oattest.Mutate(data, func(b []byte) {
		b[lay.Dex[0].DexFileOffset] = 'X'
	})
	img, hook := newTestImage(t, bad)

	df, err := img.FindDexFile("classes2.dex")
	require.NoError(t, err)
	c, err := df.FindClass("Lcom/example/Second;")
	require.NoError(t, err)
	assert.Equal(t, "Lcom/example/Second;", c.Descriptor())

	df, err = img.DexFile(1)
	require.NoError(t, err)
	assert.Equal(t, "classes2.dex", df.Location())

	all, err := img.AllDexFiles()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint32(len(appImage.Dex[0].Classes)), all[0].NumClassDefs())

	_, err = all[0].FindClass("Lcom/example/App;")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "dex module", de.Op)
	assert.Equal(t, "classes.dex", de.Location)
	assert.ErrorIs(t, err, dex.ErrFormat)
	assert.False(t, IsNotFound(err))

	_, err = all[0].Class(0)
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, dex.ErrFormat)

	_, err = all[0].Module()
	assert.ErrorIs(t, err, dex.ErrFormat)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "error parsing dex module", hook.LastEntry().Message)
}
