package stream

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var ErrNoFrames = errors.New("no frames available")

// StaticSource returns the same image on every capture.
type StaticSource struct {
	Img image.Image
}

func (s StaticSource) Frame() (image.Image, error) {
	if s.Img == nil {
		return nil, ErrNoFrames
	}
	return s.Img, nil
}

// DirSource plays back the images of a directory in name order, looping.
// It stands in for a camera when the client runs headless.
type DirSource struct {
	frames []image.Image
	next   int
}

func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("frames dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	src := &DirSource{}
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		src.frames = append(src.frames, img)
	}
	if len(src.frames) == 0 {
		return nil, fmt.Errorf("frames dir %s: %w", dir, ErrNoFrames)
	}
	return src, nil
}

func (d *DirSource) Len() int { return len(d.frames) }

func (d *DirSource) Frame() (image.Image, error) {
	if len(d.frames) == 0 {
		return nil, ErrNoFrames
	}
	img := d.frames[d.next]
	d.next = (d.next + 1) % len(d.frames)
	return img, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
