/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/wyd20162016/ARTIST/internal/oattest"
)

const testBase = Addr(oattest.Base)

// appImage has a some-compiled, an all-compiled and an interpreted-only
// class in its first dex file and a second dex file redefining one class.
var appImage = oattest.Image{
	ISA: oattest.ISAArm64,
	KeyValues: [][2]string{
		{"dex2oat-cmdline", "--dex-file=classes.dex --oat-file=base.odex"},
		{"image-location", "/system/framework/boot.art"},
		{"pic", "false"},
	},
	Dex: []oattest.Dex{
		{
			Location: "classes.dex",
			Checksum: 0x11111111,
			Classes: []oattest.Class{
				{
					Descriptor: "Lcom/example/App;",
					Superclass: "Landroid/app/Application;",
					Status:     int16(StatusInitialized),
					Direct: []oattest.Method{
						{Name: "<init>", Signature: "()V", Compiled: true},
						{Name: "helper", Signature: "(I)I"},
					},
					Virtual: []oattest.Method{
						{Name: "onCreate", Signature: "(Landroid/os/Bundle;)V", Compiled: true, FrameSize: 64,
							Code: []byte{0xfd, 0x7b, 0xbf, 0xa9, 0xfd, 0x7b, 0xc1, 0xa8, 0xc0, 0x03, 0x5f, 0xd6}},
						{Name: "toString", Signature: "()Ljava/lang/String;"},
					},
				},
				{
					Descriptor: "Lcom/example/Fast;",
					Superclass: "Ljava/lang/Object;",
					Status:     int16(StatusVerified),
					Direct: []oattest.Method{
						{Name: "a", Signature: "()V", Compiled: true},
						{Name: "b", Signature: "(J)V", Compiled: true},
					},
				},
				{
					Descriptor: "Lcom/example/Slow;",
					Superclass: "Ljava/lang/Object;",
					Status:     int16(StatusRetryVerificationAtRuntime),
					Virtual: []oattest.Method{
						{Name: "run", Signature: "()V"},
					},
				},
			},
		},
		{
			Location: "classes2.dex",
			Checksum: 0x22222222,
			Classes: []oattest.Class{
				{
					Descriptor: "Lcom/example/Second;",
					Superclass: "Ljava/lang/Object;",
					Virtual: []oattest.Method{
						{Name: "run", Signature: "()V", Compiled: true},
					},
				},
				{
					Descriptor: "Lcom/example/Fast;",
					Direct: []oattest.Method{
						{Name: "a", Signature: "()V"},
					},
				},
			},
		},
	},
}

// newTestImage maps data at testBase with a logger whose output the test can
// inspect.
func newTestImage(t *testing.T, data []byte, opts ...Option) (*Image, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	img, err := NewImage(testBase, data, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return img, hook
}

func buildAppImage(t *testing.T) (*Image, []byte, *oattest.Layout) {
	t.Helper()
	data, lay := oattest.Build(appImage)
	img, _ := newTestImage(t, data)
	return img, data, lay
}
