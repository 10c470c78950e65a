package models

import "image"

// DetectionResult is the wire form returned by the remote detection server.
// Box is normalized to [0,1] and ordered y1, x1, y2, x2.
type DetectionResult struct {
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

// ToDetection scales the normalized box to a width x height frame.
// ok is false when the box does not carry four coordinates.
func (r DetectionResult) ToDetection(width, height int) (d Detection, ok bool) {
	if len(r.Box) != 4 {
		return Detection{}, false
	}

	w := float32(width)
	h := float32(height)

	return Detection{
		Label:      r.Label,
		Confidence: r.Confidence,
		Box: Box{
			Y1: int(r.Box[0] * h),
			X1: int(r.Box[1] * w),
			Y2: int(r.Box[2] * h),
			X2: int(r.Box[3] * w),
		},
	}, true
}

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Detection is a single object found on a frame, in frame pixels.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}
