package classifier

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	jpegQuality = 90

	// DefaultMaxPixels bounds width*height when no limit is configured
	DefaultMaxPixels = 40_000_000
)

// ErrTooManyPixels is returned for images whose dimensions exceed the limit
var ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")

// NormalizedImage is a decoded image flattened to three channels
type NormalizedImage struct {
	Width  int
	Height int
	// Format is the codec the source was decoded with
	Format string
	// RGB holds Width*Height pixels, three bytes each, row major
	RGB []byte
	// JPEG is a baseline encoding of the same pixels for remote oracles
	JPEG []byte
}

// Inspect reads only the image header and returns its dimensions and codec
func Inspect(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg, format, nil
}

// Normalize decodes data and converts it to RGB. Transparent pixels are
// composed onto white; palette and grayscale images are expanded. The header
// is checked against maxPixels before any pixel buffer is allocated; zero or
// less means DefaultMaxPixels.
func Normalize(data []byte, maxPixels int64) (*NormalizedImage, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	header, _, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	if header.Width <= 0 || header.Height <= 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	if int64(header.Width) > maxPixels/int64(header.Height) {
		return nil, fmt.Errorf("%w: %dx%d > %d", ErrTooManyPixels, header.Width, header.Height, maxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("image has no pixels")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Over)

	w, h := b.Dx(), b.Dy()
	rgb := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			rgb = append(rgb, row[x], row[x+1], row[x+2])
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode normalized image: %w", err)
	}

	return &NormalizedImage{
		Width:  w,
		Height: h,
		Format: format,
		RGB:    rgb,
		JPEG:   buf.Bytes(),
	}, nil
}
