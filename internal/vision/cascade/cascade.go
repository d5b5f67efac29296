// Package cascade wraps the OpenCV Haar cascade frontal-face classifier.
package cascade

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"celebdetect/internal/config"
)

const defaultCascadeFile = "haarcascade_frontalface_default.xml"

// Locations searched when DETECTOR_CASCADE_PATH is not set.
var searchPaths = []string{
	filepath.Join("models", "haarcascades", defaultCascadeFile),
	defaultCascadeFile,
	"/usr/local/share/opencv4/haarcascades/" + defaultCascadeFile,
	"/usr/share/opencv4/haarcascades/" + defaultCascadeFile,
	"/usr/share/opencv/haarcascades/" + defaultCascadeFile,
	"/opt/homebrew/share/opencv4/haarcascades/" + defaultCascadeFile,
}

// Detector is safe for concurrent use. The classifier is loaded once and
// detection calls are serialised because CascadeClassifier is not reentrant.
type Detector struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	log          *zap.Logger
}

func New(cfg *config.DetectorConfig, log *zap.Logger) (*Detector, error) {
	classifier := gocv.NewCascadeClassifier()

	path, err := load(&classifier, cfg.CascadePath)
	if err != nil {
		classifier.Close()
		return nil, err
	}

	log.Info("Face cascade loaded",
		zap.String("path", path),
		zap.Float64("scale_factor", cfg.ScaleFactor),
		zap.Int("min_neighbors", cfg.MinNeighbors))

	return &Detector{
		classifier:   classifier,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		log:          log,
	}, nil
}

func load(classifier *gocv.CascadeClassifier, configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("cascade file %s: %w", configured, err)
		}
		if !classifier.Load(configured) {
			return "", fmt.Errorf("failed to load face cascade from %s", configured)
		}
		return configured, nil
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if classifier.Load(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("failed to find %s; set DETECTOR_CASCADE_PATH", defaultCascadeFile)
}

// Detect runs multi-scale detection on gray with the configured parameters.
func (d *Detector) Detect(gray *image.Gray) []image.Rectangle {
	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		d.log.Error("Failed to convert image for detection", zap.Error(err))
		return nil
	}
	defer mat.Close()

	d.mu.Lock()
	faces := d.classifier.DetectMultiScaleWithParams(
		mat,
		d.scaleFactor,
		d.minNeighbors,
		0,
		image.Point{},
		image.Point{},
	)
	d.mu.Unlock()

	origin := gray.Bounds().Min
	for i := range faces {
		faces[i] = faces[i].Add(origin)
	}
	return faces
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
