package stream

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestEncodeFrame_FixedSizeJPEG(t *testing.T) {
	url, err := EncodeFrame(solid(640, 480, color.RGBA{R: 200, A: 255}))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, FrameWidth, FrameHeight), img.Bounds())
}

func TestThumbDataURL_SwapsBGR(t *testing.T) {
	content := make([]int, ThumbSize*ThumbSize*3)
	for i := 0; i < len(content); i += 3 {
		content[i] = 10   // B
		content[i+1] = 20 // G
		content[i+2] = 30 // R
	}

	url, err := ThumbDataURL(content)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	r, g, b, _ := img.At(5, 7).RGBA()
	assert.Equal(t, uint32(30), r>>8)
	assert.Equal(t, uint32(20), g>>8)
	assert.Equal(t, uint32(10), b>>8)
}

func TestThumbDataURL_WrongSize(t *testing.T) {
	_, err := ThumbDataURL([]int{1, 2, 3})
	assert.ErrorIs(t, err, ErrContentSize)
}

func TestThumbDataURL_RejectsNonByteValues(t *testing.T) {
	for _, v := range []int{-1, 256, 1 << 20} {
		content := make([]int, ThumbSize*ThumbSize*3)
		content[len(content)-1] = v
		_, err := ThumbDataURL(content)
		assert.ErrorIs(t, err, ErrContentValue, "value %d", v)
	}

	content := make([]int, ThumbSize*ThumbSize*3)
	content[0] = 255
	_, err := ThumbDataURL(content)
	assert.NoError(t, err)
}

func TestCapture_PropagatesSourceError(t *testing.T) {
	_, err := Capture(StaticSource{})
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestOpenDir_CyclesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 2)
	writePNG(t, filepath.Join(dir, "a.png"), 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	src, err := OpenDir(dir)
	require.NoError(t, err)
	require.Equal(t, 2, src.Len())

	widths := []int{}
	for i := 0; i < 3; i++ {
		img, err := src.Frame()
		require.NoError(t, err)
		widths = append(widths, img.Bounds().Dx())
	}
	assert.Equal(t, []int{1, 2, 1}, widths)
}

func TestOpenDir_Empty(t *testing.T) {
	_, err := OpenDir(t.TempDir())
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestGate(t *testing.T) {
	s := NewState(1)
	assert.False(t, s.Gate(true, true).Open(), "video not ready")

	s.Ready = true
	assert.True(t, s.Gate(true, true).Open())
	assert.False(t, s.Gate(false, true).Open())
	assert.False(t, s.Gate(true, false).Open())

	s.Budget.End()
	assert.False(t, s.Gate(true, true).Open())
}

func writePNG(t *testing.T, path string, w int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, 1, color.White)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}
