package detector

import (
	"errors"
	"fmt"
	"image"
	"time"

	"treesight/internal/config"
	"treesight/internal/models"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

var (
	ErrModelClosed  = errors.New("detection model closed")
	ErrCloseTimeout = errors.New("detection model still busy")
)

// Model runs inference on a prepared frame.
type Model interface {
	Predict(frame *image.RGBA, params InferenceParams) ([]models.Detection, error)
	Close() error
}

// Detector prepares frames and forwards them to a Model with parameters
// chosen from accelerator availability. It is safe to share.
type Detector struct {
	model       Model
	cfg         config.DetectorConfig
	accelerated func() bool

	width  int
	height int

	log *zap.Logger
}

func NewDetector(model Model, cfg *config.Config, log *zap.Logger) *Detector {
	w, h := cfg.GetFrameSize()
	device := cfg.Detector.Device

	return &Detector{
		model:       model,
		cfg:         cfg.Detector,
		accelerated: func() bool { return HasAccelerator(device) },
		width:       w,
		height:      h,
		log:         log,
	}
}

// WithAccelerator overrides the accelerator probe.
func (d *Detector) WithAccelerator(probe func() bool) *Detector {
	d.accelerated = probe
	return d
}

func (d *Detector) Params() InferenceParams {
	return SelectParams(d.cfg, d.accelerated())
}

// Detect resizes frame to the target resolution and runs the model on it.
func (d *Detector) Detect(frame image.Image) (*Result, error) {
	prepared := Prepare(frame, d.width, d.height)
	params := d.Params()

	start := time.Now()

	boxes, err := d.model.Predict(prepared, params)
	if err != nil {
		return nil, fmt.Errorf("predict (%s): %w", params, err)
	}

	d.log.Debug("frame detected",
		zap.Int("boxes", len(boxes)),
		zap.Stringer("params", params),
		zap.Duration("latency", time.Since(start)))

	return NewResult(prepared, boxes), nil
}

func (d *Detector) Close() error {
	return d.model.Close()
}

// CloseWithin closes the model but gives up after timeout, leaving the close
// running in the background.
func (d *Detector) CloseWithin(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- d.model.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return ErrCloseTimeout
	}
}

// Prepare scales img to width x height with nearest-neighbour sampling and
// returns it as RGBA.
func Prepare(img image.Image, width, height int) *image.RGBA {
	b := img.Bounds()

	var scaled image.Image = img
	if b.Dx() != width || b.Dy() != height {
		scaled = resize.Resize(uint(width), uint(height), img, resize.NearestNeighbor)
	}

	return ToRGBA(scaled)
}

// ToRGBA converts img to a zero-origin RGBA, copying unless it already is one.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	return out
}
