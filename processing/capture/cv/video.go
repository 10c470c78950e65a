package cv

import (
	"fmt"
	"image"
	"io"

	"treesight/processing/capture"

	"gocv.io/x/gocv"
)

var _ capture.Source = (*VideoSource)(nil)

// VideoSource reads frames through OpenCV's VideoCapture. Frames keep the
// video's own resolution; the detector resizes them.
type VideoSource struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Open is a capture.VideoOpener.
func Open(path string) (capture.Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}

	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open video %s: capture not opened", path)
	}

	return &VideoSource{vc: vc, mat: gocv.NewMat()}, nil
}

func (s *VideoSource) Read() (image.Image, error) {
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("frame to image: %w", err)
	}

	return img, nil
}

func (s *VideoSource) Close() error {
	s.mat.Close()
	return s.vc.Close()
}
