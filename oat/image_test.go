/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyd20162016/ARTIST/internal/oattest"
)

func TestResolve(t *testing.T) {
	img, data, _ := buildAppImage(t)

	_, ok := img.Resolve(0)
	assert.False(t, ok, "offset 0 must not alias the header")

	for _, off := range []uint32{1, 4, HeaderSize, uint32(len(data)) - 1, uint32(len(data)), math.MaxUint32} {
		a, ok := img.Resolve(off)
		require.True(t, ok)
		assert.Equal(t, testBase+Addr(off), a, "offset %#x", off)
	}
	assert.False(t, img.Contains(testBase+Addr(len(data))))
	assert.True(t, img.Contains(testBase))
}

func TestNewImageRange(t *testing.T) {
	data, _ := oattest.Build(appImage)

	tests := []struct {
		name  string
		begin Addr
		mem   []byte
	}{
		{"null begin", 0, data},
		{"nil mem", testBase, nil},
		{"empty mem", testBase, data[:0]},
		{"wraps address space", Addr(math.MaxUint64 - 10), data},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewImage(tt.begin, tt.mem)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}

	t.Run("shorter than header", func(t *testing.T) {
		_, err := NewImage(testBase, data[:HeaderSize-1])
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.ErrorIs(t, err, ErrOutOfBounds)
		assert.NotErrorIs(t, err, ErrInvalidRange)
	})
}

func TestImageLayout(t *testing.T) {
	img, data, lay := buildAppImage(t)

	assert.Equal(t, testBase, img.Begin())
	assert.Equal(t, testBase+Addr(len(data)), img.End())
	assert.Equal(t, testBase+HeaderSize, img.KeyValueStoreStart())
	assert.Equal(t, testBase+Addr(lay.DexStreamOffset), img.DexFileStreamStart())

	h := img.Header()
	assert.Equal(t, "oat\n", h.Magic())
	assert.Equal(t, "045", h.Version())
	assert.Equal(t, ISAArm64, h.InstructionSet())
	assert.Equal(t, uint32(2), h.DexFileCount())
	assert.Equal(t, lay.ExecutableOffset, h.ExecutableOffset())
	assert.Equal(t, lay.DexStreamOffset-HeaderSize, h.KeyValueStoreSize())
}

func TestNewImageDoesNotValidateSizes(t *testing.T) {
	data, _ := oattest.Build(appImage)
	bad := oattest.Mutate(data, func(b []byte) {
		oattest.PutUint32(b, offKeyValueStoreSize, math.MaxUint32-HeaderSize)
	})

	img, _ := newTestImage(t, bad)
	assert.Greater(t, uint64(img.DexFileStreamStart()), uint64(img.End()))

	_, err := img.DexFile(0)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "oat dex file", de.Op)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestIsValidHeader(t *testing.T) {
	data, _ := oattest.Build(appImage)

	assert.True(t, IsValidHeader(data))
	assert.True(t, IsValidHeader(data[:offChecksum]), "only the signature is read")
	assert.False(t, IsValidHeader(data[:offChecksum-1]))
	assert.False(t, IsValidHeader(nil))
	assert.False(t, IsValidHeader(oattest.Mutate(data, func(b []byte) { b[0] = 'x' })))
	assert.False(t, IsValidHeader(oattest.Mutate(data, func(b []byte) { copy(b[offVersion:], "064\x00") })))
}

func TestInstructionSetString(t *testing.T) {
	assert.Equal(t, "arm64", ISAArm64.String())
	assert.Equal(t, "thumb2", ISAThumb2.String())
	assert.Equal(t, "x86_64", ISAX86_64.String())
	assert.Equal(t, "InstructionSet(42)", InstructionSet(42).String())
}

func TestKeyValueStore(t *testing.T) {
	img, data, _ := buildAppImage(t)

	kv, err := img.KeyValueStore()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"dex2oat-cmdline", "image-location", "pic"}, kv.Keys())

	v, err := img.StoreValue("image-location")
	require.NoError(t, err)
	assert.Equal(t, "/system/framework/boot.art", v)

	_, err = img.StoreValue("image")
	assert.True(t, IsNotFound(err))

	t.Run("unterminated", func(t *testing.T) {
		// drop the final NUL from the store
		bad := oattest.Mutate(data, func(b []byte) {
			size := img.Header().KeyValueStoreSize()
			oattest.PutUint32(b, offKeyValueStoreSize, size-1)
		})
		img, _ := newTestImage(t, bad)
		_, err := img.KeyValueStore()
		assert.ErrorIs(t, err, ErrOutOfBounds)
		assert.False(t, IsNotFound(err))
	})
}
