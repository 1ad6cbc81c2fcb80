package stream

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	FrameWidth  = 400
	FrameHeight = 300
	JPEGQuality = 60

	// ThumbSize is the edge of the aligned face thumbnails the server
	// pushes in NEW_IMAGE.
	ThumbSize = 96
)

const (
	jpegPrefix = "data:image/jpeg;base64,"
	pngPrefix  = "data:image/png;base64,"
)

var (
	ErrContentSize  = errors.New("image content has wrong size")
	ErrContentValue = errors.New("image content value out of byte range")
)

// Source is the camera collaborator.
type Source interface {
	Frame() (image.Image, error)
}

// Capture grabs a frame from src and encodes it as a JPEG data URL.
func Capture(src Source) (string, error) {
	img, err := src.Frame()
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	return EncodeFrame(img)
}

// EncodeFrame scales img into the fixed frame bitmap and encodes it.
func EncodeFrame(img image.Image) (string, error) {
	dst := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return jpegPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ThumbDataURL turns the packed BGR bytes of a NEW_IMAGE thumbnail into
// a PNG data URL.
func ThumbDataURL(content []int) (string, error) {
	if len(content) != ThumbSize*ThumbSize*3 {
		return "", fmt.Errorf("%w: %d values", ErrContentSize, len(content))
	}
	for i, v := range content {
		if v < 0 || v > 255 {
			return "", fmt.Errorf("%w: %d at index %d", ErrContentValue, v, i)
		}
	}
	img := image.NewNRGBA(image.Rect(0, 0, ThumbSize, ThumbSize))
	for p := 0; p < ThumbSize*ThumbSize; p++ {
		t := p * 3
		img.Set(p%ThumbSize, p/ThumbSize, color.NRGBA{
			R: uint8(content[t+2]),
			G: uint8(content[t+1]),
			B: uint8(content[t]),
			A: 255,
		})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return pngPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
