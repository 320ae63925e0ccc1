package tray

import (
	"bytes"
	"encoding/binary"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPNG(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(renderPNG(colorReady)))
	require.NoError(t, err)
	assert.Equal(t, iconSize, img.Bounds().Dx())

	r, g, b, _ := img.At(iconSize/2, iconSize/2).RGBA()
	assert.Equal(t, uint32(colorReady.R)*0x101, r)
	assert.Equal(t, uint32(colorReady.G)*0x101, g)
	assert.Equal(t, uint32(colorReady.B)*0x101, b)

	_, _, _, a := img.At(0, 0).RGBA()
	assert.Zero(t, a)
}

func TestIconForWindowsWrapsICO(t *testing.T) {
	raw := iconFor(colorError, "linux")
	ico := iconFor(colorError, "windows")

	require.Len(t, ico, len(raw)+22)
	assert.Equal(t, []byte{0, 0, 1, 0, 1, 0}, ico[:6])
	assert.Equal(t, uint32(len(raw)), binary.LittleEndian.Uint32(ico[14:18]))
	assert.Equal(t, uint32(22), binary.LittleEndian.Uint32(ico[18:22]))
	assert.Equal(t, raw, ico[22:])
}

func TestIconOf(t *testing.T) {
	assert.Equal(t, IconError(), iconOf(Status{}))
	assert.Equal(t, IconWarning(), iconOf(Status{SteamFound: true}))
	assert.Equal(t, IconReady(), iconOf(Status{SteamFound: true, DLLReady: true}))
}

func TestTooltip(t *testing.T) {
	tests := []struct {
		name string
		s    Status
		want string
	}{
		{"not found", Status{}, "GameLoader - Steam não encontrado"},
		{"closed", Status{SteamFound: true}, "GameLoader - Steam fechado"},
		{
			"running with user",
			Status{SteamFound: true, SteamRunning: true, Username: "Gaben", Address: "http://127.0.0.1:5000"},
			"GameLoader - Steam em execução (Gaben)\nhttp://127.0.0.1:5000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tooltip(tt.s))
		})
	}
}

func TestDLLLine(t *testing.T) {
	assert.Equal(t, "hid.dll: ok", dllLine(Status{DLLReady: true}))
	assert.Equal(t, "hid.dll: ausente", dllLine(Status{}))
}
