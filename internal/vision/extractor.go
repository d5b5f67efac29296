// Package vision finds the most prominent face in an uploaded photograph and
// marks it on the image.
package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"go.uber.org/zap"

	"celebdetect/internal/domain"
	"celebdetect/pkg/utils"
)

// ErrDecode is returned when the upload is not an image in a supported format
// or declares more pixels than the extractor accepts.
var ErrDecode = errors.New("invalid image")

// BoxThickness is the stroke width of the face annotation in pixels.
const BoxThickness = 3

// BoxColor is the annotation colour.
var BoxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Detector returns candidate face rectangles for a luminance image.
type Detector interface {
	Detect(gray *image.Gray) []image.Rectangle
}

// Extractor runs the decode, detect, annotate, encode pipeline.
type Extractor struct {
	detector  Detector
	maxPixels int64
	quality   int
	log       *zap.Logger
}

// NewExtractor builds an extractor that refuses images of more than maxPixels
// pixels. A non-positive maxPixels disables the limit.
func NewExtractor(detector Detector, maxPixels int64, log *zap.Logger) *Extractor {
	return &Extractor{
		detector:  detector,
		maxPixels: maxPixels,
		quality:   utils.DefaultJPEGQuality,
		log:       log,
	}
}

// Extract returns the annotated JPEG and the largest face. When no face is
// found the input bytes are returned untouched together with a nil region.
func (e *Extractor) Extract(raw []byte) ([]byte, *domain.FaceRegion, error) {
	img, format, err := utils.DecodeImageLimited(raw, e.maxPixels)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	gray := utils.ToGray(img)
	faces := e.detector.Detect(gray)

	e.log.Debug("Face detection finished",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
		zap.Int("faces", len(faces)))

	largest, ok := LargestRegion(faces)
	if !ok {
		return raw, nil, nil
	}

	canvas := utils.ToRGBA(img)
	utils.DrawRectangle(canvas, largest, BoxColor, BoxThickness)

	out, err := utils.EncodeJPEG(canvas, e.quality)
	if err != nil {
		return nil, nil, err
	}

	// Regions are reported relative to the image origin.
	region := regionOf(largest.Sub(img.Bounds().Min))
	return out, &region, nil
}

// LargestRegion picks the rectangle with the greatest area. Ties keep the
// earliest candidate so the choice is stable for identical detector output.
func LargestRegion(faces []image.Rectangle) (image.Rectangle, bool) {
	if len(faces) == 0 {
		return image.Rectangle{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if regionOf(f).Area() > regionOf(best).Area() {
			best = f
		}
	}
	return best, true
}

func regionOf(r image.Rectangle) domain.FaceRegion {
	return domain.FaceRegion{
		X:      r.Min.X,
		Y:      r.Min.Y,
		Width:  r.Dx(),
		Height: r.Dy(),
	}
}
