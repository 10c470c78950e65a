package dnn

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"treesight/internal/models"
	"treesight/processing/detector"

	"gocv.io/x/gocv"
)

var ErrNoNet = errors.New("detection network not initialized")

var _ detector.Model = (*NetModel)(nil)

// NetModel runs a YOLO ONNX export through the OpenCV DNN module.
type NetModel struct {
	mu sync.Mutex

	net    gocv.Net
	labels []string
	conf   float32

	device string
	closed bool
}

type candidate struct {
	rect  image.Rectangle
	score float32
	class int
}

func NewNetModel(modelPath string, labels []string, conf float32) (*NetModel, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load %s: %w", modelPath, ErrNoNet)
	}

	return &NetModel{
		net:    net,
		labels: labels,
		conf:   conf,
	}, nil
}

func (m *NetModel) Predict(frame *image.RGBA, params detector.InferenceParams) ([]models.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, detector.ErrModelClosed
	}
	if m.net.Empty() {
		return nil, ErrNoNet
	}

	if err := m.setDevice(params); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("frame to mat: %w", err)
	}
	defer mat.Close()

	cands, err := m.forward(mat, params.ImageSize, false)
	if err != nil {
		return nil, err
	}

	if params.Augment {
		flipped := gocv.NewMat()
		defer flipped.Close()

		gocv.Flip(mat, &flipped, 1)

		more, err := m.forward(flipped, params.ImageSize, true)
		if err != nil {
			return nil, err
		}
		cands = append(cands, more...)
	}

	if len(cands) == 0 {
		return nil, nil
	}

	rects := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		rects[i] = c.rect
		scores[i] = c.score
	}

	keep := gocv.NMSBoxes(rects, scores, m.conf, params.IoU)

	out := make([]models.Detection, 0, len(keep))
	for _, i := range keep {
		c := cands[i]
		out = append(out, models.Detection{
			Label:      m.label(c.class),
			Confidence: c.score,
			Box:        models.BoxFromRect(c.rect),
		})
	}

	return out, nil
}

// forward decodes a YOLOv8-style head: [1, 4+classes, anchors] with
// cx, cy, w, h in input pixels followed by per-class scores.
func (m *NetModel) forward(mat gocv.Mat, size int, mirrored bool) ([]candidate, error) {
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")

	output := m.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}

	rows, anchors := dims[1], dims[2]

	table := output.Reshape(1, rows)
	defer table.Close()

	xFactor := float32(mat.Cols()) / float32(size)
	yFactor := float32(mat.Rows()) / float32(size)
	width := float32(mat.Cols())

	var cands []candidate

	for j := 0; j < anchors; j++ {
		best, class := float32(0), 0
		for r := 4; r < rows; r++ {
			if s := table.GetFloatAt(r, j); s > best {
				best, class = s, r-4
			}
		}

		if best < m.conf {
			continue
		}

		cx := table.GetFloatAt(0, j) * xFactor
		cy := table.GetFloatAt(1, j) * yFactor
		w := table.GetFloatAt(2, j) * xFactor
		h := table.GetFloatAt(3, j) * yFactor

		if mirrored {
			cx = width - cx
		}

		cands = append(cands, candidate{
			rect:  image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)),
			score: best,
			class: class,
		})
	}

	return cands, nil
}

func (m *NetModel) setDevice(params detector.InferenceParams) error {
	if params.Device == m.device {
		return nil
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if params.GPU() {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}

	if err := m.net.SetPreferableBackend(backend); err != nil {
		return fmt.Errorf("set backend: %w", err)
	}

	if err := m.net.SetPreferableTarget(target); err != nil {
		return fmt.Errorf("set target: %w", err)
	}

	m.device = params.Device
	return nil
}

func (m *NetModel) label(class int) string {
	if class >= 0 && class < len(m.labels) {
		return m.labels[class]
	}
	return fmt.Sprintf("class_%d", class)
}

// Close waits for an in-flight Predict and releases the network. Later
// Predict calls fail with detector.ErrModelClosed.
func (m *NetModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}
