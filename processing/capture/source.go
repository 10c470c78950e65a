package capture

import (
	"image"
)

// Source yields decoded frames in order. Read returns io.EOF once the
// source is exhausted; any other error also ends the stream.
type Source interface {
	Read() (image.Image, error)
	Close() error
}

// VideoOpener opens a video file as a frame Source.
type VideoOpener func(path string) (Source, error)
