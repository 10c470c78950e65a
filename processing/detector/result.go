package detector

import (
	"fmt"
	"image"
	"image/color"

	"treesight/internal/models"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor   = color.RGBA{0, 255, 0, 255}
	labelColor = color.RGBA{255, 255, 255, 255}
)

const boxThickness = 3

// Result is the detector output for one prepared frame. The frame is never
// modified; Plot draws on a copy.
type Result struct {
	Frame *image.RGBA
	Boxes []models.Detection
}

func NewResult(frame *image.RGBA, boxes []models.Detection) *Result {
	return &Result{Frame: frame, Boxes: boxes}
}

func (r *Result) Count() int {
	return len(r.Boxes)
}

// Plot returns a copy of the frame with every box and its label drawn on it.
func (r *Result) Plot() *image.RGBA {
	bounds := r.Frame.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, r.Frame, bounds.Min, draw.Src)

	for _, d := range r.Boxes {
		drawRect(out, d.Box, boxColor)
		drawLabel(out, d)
	}

	return out
}

func drawRect(img *image.RGBA, b models.Box, col color.Color) {
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, col)
		}
	}

	for t := 0; t < boxThickness; t++ {
		for x := b.X1; x <= b.X2; x++ {
			setPixel(x, b.Y1+t)
			setPixel(x, b.Y2-t)
		}
		for y := b.Y1; y <= b.Y2; y++ {
			setPixel(b.X1+t, y)
			setPixel(b.X2-t, y)
		}
	}
}

func drawLabel(img *image.RGBA, d models.Detection) {
	text := fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
	face := basicfont.Face7x13

	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	// label sits on top of the box, or inside it when the box touches the top edge
	top := d.Box.Y1 - height
	if top < img.Bounds().Min.Y {
		top = d.Box.Y1
	}

	bg := image.Rect(d.Box.X1, top, d.Box.X1+width+4, top+height).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(boxColor), image.Point{}, draw.Src)

	drawer := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(d.Box.X1+2, top+face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(text)
}
