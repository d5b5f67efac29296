package utils

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
)

// DefaultJPEGQuality matches the encoder default of the OpenCV toolchain.
const DefaultJPEGQuality = 95

// ErrTooManyPixels is returned by DecodeImageLimited for images whose declared
// dimensions exceed the pixel budget.
var ErrTooManyPixels = errors.New("image dimensions exceed limit")

// DecodeImageLimited reads the image header first and refuses images of more
// than maxPixels pixels before any pixel buffer is allocated. A non-positive
// maxPixels disables the check.
func DecodeImageLimited(data []byte, maxPixels int64) (image.Image, string, error) {
	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, "", err
		}
		if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
			return nil, "", fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
		}
	}
	return DecodeImage(data)
}

// DecodeImage decodes any registered format (JPEG, PNG, GIF).
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// ToGray converts img to a single-channel luminance image with the same bounds.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}

// ToRGBA returns a mutable copy of img.
func ToRGBA(img image.Image) *image.RGBA {
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}

// DrawRectangle outlines r on img with a stroke of the given thickness centred
// on the rectangle edges. Pixels outside the image are clipped.
func DrawRectangle(img *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	lo := -(thickness / 2)
	hi := lo + thickness

	// Horizontal edges.
	for _, y := range []int{r.Min.Y, r.Max.Y} {
		band := image.Rect(r.Min.X+lo, y+lo, r.Max.X+hi, y+hi)
		fill(img, band, c)
	}
	// Vertical edges.
	for _, x := range []int{r.Min.X, r.Max.X} {
		band := image.Rect(x+lo, r.Min.Y+lo, x+hi, r.Max.Y+hi)
		fill(img, band, c)
	}
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// EncodeJPEG re-encodes img as JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
