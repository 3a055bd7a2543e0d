package models

import "fmt"

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// String renders the box as "x1,y1,x2,y2", the form the segmenter expects as a prompt.
func (b Box) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is a single detector hit. Transient, never persisted.
type Detection struct {
	Box        Box     `json:"box"`
	ClassID    int     `json:"classId"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}
