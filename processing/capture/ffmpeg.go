package capture

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
)

const bytesPerPixel = 4

// FFmpegSource decodes a video through an ffmpeg rawvideo pipe, scaled to
// width x height by ffmpeg itself.
type FFmpegSource struct {
	closeOnce sync.Once

	path string

	width  int
	height int

	// dimensions reported by ffprobe
	srcWidth  uint16
	srcHeight uint16

	cmd    *exec.Cmd
	stdout io.ReadCloser
	buffer []byte
}

// FFmpegOpener returns a VideoOpener producing width x height frames.
func FFmpegOpener(width, height int) VideoOpener {
	return func(path string) (Source, error) {
		return OpenFFmpeg(path, width, height)
	}
}

func OpenFFmpeg(path string, width, height int) (*FFmpegSource, error) {
	w, h, err := probeVideoDimensions(path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	fs := &FFmpegSource{
		path:      path,
		width:     width,
		height:    height,
		srcWidth:  w,
		srcHeight: h,
		buffer:    make([]byte, width*height*bytesPerPixel),
	}

	if err := fs.start(); err != nil {
		return nil, err
	}

	return fs, nil
}

// args builds the ffmpeg command line. The scale filter is left out when the
// video already has the requested size.
func (fs *FFmpegSource) args() []string {
	args := []string{"-v", "error", "-i", fs.path}

	if int(fs.srcWidth) != fs.width || int(fs.srcHeight) != fs.height {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d:flags=neighbor", fs.width, fs.height))
	}

	return append(args,
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)
}

func (fs *FFmpegSource) start() error {
	fs.cmd = exec.Command("ffmpeg", fs.args()...)

	stdout, err := fs.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := fs.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	fs.stdout = stdout

	return nil
}

func (fs *FFmpegSource) Read() (image.Image, error) {
	if _, err := io.ReadFull(fs.stdout, fs.buffer); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	pixelData := make([]byte, len(fs.buffer))
	copy(pixelData, fs.buffer)

	return &image.RGBA{
		Pix:    pixelData,
		Stride: fs.width * bytesPerPixel,
		Rect:   image.Rect(0, 0, fs.width, fs.height),
	}, nil
}

func (fs *FFmpegSource) Close() error {
	fs.closeOnce.Do(func() {
		fs.stdout.Close()
		if fs.cmd != nil && fs.cmd.Process != nil {
			fs.cmd.Process.Kill()
			fs.cmd.Wait()
		}
	})
	return nil
}

type probeData struct {
	Streams []struct {
		Width  uint16 `json:"width"`
		Height uint16 `json:"height"`
	} `json:"streams"`
}

func probeVideoDimensions(path string) (uint16, uint16, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, 0, err
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (uint16, uint16, error) {
	var data probeData
	if err := json.Unmarshal(output, &data); err != nil {
		return 0, 0, err
	}

	if len(data.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video streams found")
	}

	return data.Streams[0].Width, data.Streams[0].Height, nil
}
