package detector

import (
	"fmt"
	"net/url"
	"strconv"

	"treesight/internal/config"
)

const DeviceCPU = "cpu"

// InferenceParams are forwarded to the model on every call.
type InferenceParams struct {
	ImageSize int
	IoU       float32
	Augment   bool
	Device    string
}

func (p InferenceParams) GPU() bool {
	return p.Device != DeviceCPU
}

func (p InferenceParams) String() string {
	return fmt.Sprintf("imgsz=%d iou=%.2f augment=%t device=%s", p.ImageSize, p.IoU, p.Augment, p.Device)
}

func (p InferenceParams) Query() url.Values {
	q := url.Values{}
	q.Set("imgsz", strconv.Itoa(p.ImageSize))
	q.Set("iou", strconv.FormatFloat(float64(p.IoU), 'f', -1, 32))
	q.Set("augment", strconv.FormatBool(p.Augment))
	q.Set("device", p.Device)
	return q
}

// SelectParams returns the larger-input first-GPU configuration when an
// accelerator is present and the smaller-input CPU one otherwise.
func SelectParams(cfg config.DetectorConfig, accelerated bool) InferenceParams {
	p := InferenceParams{
		IoU:     cfg.IoU,
		Augment: cfg.Augment,
	}

	if accelerated {
		p.ImageSize = cfg.GPUImageSize
		p.Device = "0"
	} else {
		p.ImageSize = cfg.CPUImageSize
		p.Device = DeviceCPU
	}

	return p
}
