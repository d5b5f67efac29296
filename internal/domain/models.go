package domain

import (
	"time"
)

// FaceRegion is a detected face bounding box in pixel coordinates.
type FaceRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r FaceRegion) Area() int {
	return r.Width * r.Height
}

// Identification is a successful answer from the identification model.
type Identification struct {
	Info string `json:"info"`
	Name string `json:"name"`
}

// Detection is the archived record of one identified upload.
type Detection struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Info      string     `json:"info"`
	Face      FaceRegion `json:"face"`
	ImageKey  string     `json:"image_key"`
	CreatedAt time.Time  `json:"created_at"`
}
