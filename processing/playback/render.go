package playback

import (
	"image"

	"treesight/processing/detector"

	"github.com/nfnt/resize"
)

const (
	VideoCountFormat = "Trees count: %d"
	ImageCountFormat = "Number of trees: %d"
)

// Display is the pair of surfaces a session writes to.
type Display interface {
	ShowFrame(img image.Image)
	ShowCount(text string)
}

// Render annotates the result and scales it to width x height. A
// non-positive size leaves the annotated frame at full resolution.
func Render(res *detector.Result, width, height int) image.Image {
	plotted := res.Plot()

	if width <= 0 || height <= 0 {
		return plotted
	}

	return resize.Resize(uint(width), uint(height), plotted, resize.Bilinear)
}
