package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"sync"
)

const iconSize = 32

var (
	colorReady   = color.RGBA{R: 0x4c, G: 0xaf, B: 0x50, A: 0xff}
	colorWarning = color.RGBA{R: 0xff, G: 0xb3, B: 0x00, A: 0xff}
	colorError   = color.RGBA{R: 0xe5, G: 0x39, B: 0x35, A: 0xff}
	colorRing    = color.RGBA{R: 0x1b, G: 0x28, B: 0x38, A: 0xff}
)

var (
	iconMu    sync.Mutex
	iconCache = map[color.RGBA][]byte{}
)

// renderPNG draws a filled disc of fill inside a dark ring.
func renderPNG(fill color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	c := float64(iconSize-1) / 2
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			d := dx*dx + dy*dy
			switch {
			case d <= (c-3)*(c-3):
				img.SetRGBA(x, y, fill)
			case d <= c*c:
				img.SetRGBA(x, y, colorRing)
			}
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// wrapICO stores a PNG as the single image of an .ico file, which is the
// format the Windows tray expects.
func wrapICO(pngData []byte) []byte {
	var buf bytes.Buffer
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	// ICONDIRENTRY
	buf.Write([]byte{iconSize, iconSize, 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint16{1, 32})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint32{uint32(len(pngData)), 22})
	buf.Write(pngData)
	return buf.Bytes()
}

func iconFor(fill color.RGBA, goos string) []byte {
	iconMu.Lock()
	defer iconMu.Unlock()
	data, ok := iconCache[fill]
	if !ok {
		data = renderPNG(fill)
		iconCache[fill] = data
	}
	if goos == "windows" {
		return wrapICO(data)
	}
	return data
}

// IconReady is shown when Steam is found and hid.dll is in place.
func IconReady() []byte { return iconFor(colorReady, runtime.GOOS) }

// IconWarning is shown when Steam is found but hid.dll is missing.
func IconWarning() []byte { return iconFor(colorWarning, runtime.GOOS) }

// IconError is shown when no Steam installation was found.
func IconError() []byte { return iconFor(colorError, runtime.GOOS) }
