package playback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"treesight/internal/config"
	"treesight/processing/capture"
	"treesight/processing/detector"

	"go.uber.org/zap"
)

const (
	DefaultReplayInterval = 17 * time.Millisecond

	// frames decoded ahead of the detector in interleaved mode
	frameQueue = 4
)

// Detector turns a frame into a Result.
type Detector interface {
	Detect(frame image.Image) (*detector.Result, error)
}

// Controller runs one session at a time: a video capture/playback or a single
// image. Starting a session cancels the previous one, and a cancelled
// session never reaches the display again.
type Controller struct {
	mu sync.Mutex

	state  State
	gen    uint64
	cancel context.CancelFunc
	buffer *Buffer

	wg sync.WaitGroup

	cfg       *config.Config
	det       Detector
	openVideo capture.VideoOpener
	loadImage func(path string) (image.Image, error)
	display   Display
	newTicker func(time.Duration) Ticker

	log *zap.Logger
}

func NewController(cfg *config.Config, det Detector, openVideo capture.VideoOpener, display Display, log *zap.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		det:       det,
		openVideo: openVideo,
		loadImage: capture.LoadImage,
		display:   display,
		newTicker: NewTimeTicker,
		log:       log,
	}
}

// WithTicker replaces the replay ticker factory.
func (c *Controller) WithTicker(f func(time.Duration) Ticker) *Controller {
	c.newTicker = f
	return c
}

// WithImageLoader replaces the still image decoder.
func (c *Controller) WithImageLoader(f func(path string) (image.Image, error)) *Controller {
	c.loadImage = f
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BufferLen is the size of the most recent buffered capture.
func (c *Controller) BufferLen() int {
	c.mu.Lock()
	b := c.buffer
	c.mu.Unlock()

	if b == nil {
		return 0
	}
	return b.Len()
}

// OpenVideo starts a video session. An empty path is ignored.
func (c *Controller) OpenVideo(path string) {
	if path == "" {
		return
	}

	mode := c.cfg.GetMode()
	ctx, gen := c.begin(StateCapturing)

	c.log.Info("opening video", zap.String("path", path), zap.String("mode", string(mode)))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.finish(gen)
		c.runVideo(ctx, gen, path, mode)
	}()
}

// OpenImage stops any running video and shows one annotated image. An empty
// path is ignored.
func (c *Controller) OpenImage(path string) {
	if path == "" {
		return
	}

	ctx, gen := c.begin(StateIdle)

	c.log.Info("opening image", zap.String("path", path))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.finish(gen)

		img, err := c.loadImage(path)
		if err != nil {
			c.log.Warn("image not loaded", zap.String("path", path), zap.Error(err))
			return
		}

		if ctx.Err() != nil {
			return
		}

		res, err := c.det.Detect(img)
		if err != nil {
			c.log.Error("detection failed", zap.String("path", path), zap.Error(err))
			return
		}

		c.render(gen, res, ImageCountFormat)
	}()
}

// Stop cancels the running session and returns to Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// Close stops the running session and waits for it to exit.
func (c *Controller) Close() {
	c.Stop()
	c.wg.Wait()
}

// Wait blocks until every started session has exited.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) reset() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.state = StateIdle
}

func (c *Controller) begin(state State) (context.Context, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reset()
	c.buffer = nil

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = state

	return ctx, c.gen
}

func (c *Controller) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateIdle
}

func (c *Controller) transition(gen uint64, from, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.state != from {
		return false
	}

	c.state = to
	return true
}

func (c *Controller) render(gen uint64, res *detector.Result, countFormat string) bool {
	w, h := c.cfg.Window.DisplaySize()
	img := Render(res, w, h)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}

	c.display.ShowFrame(img)
	c.display.ShowCount(fmt.Sprintf(countFormat, res.Count()))

	return true
}

func (c *Controller) runVideo(ctx context.Context, gen uint64, path string, mode config.PlaybackMode) {
	src, err := c.openVideo(path)
	if err != nil {
		c.log.Warn("video not opened", zap.String("path", path), zap.Error(err))
		return
	}

	if mode == config.ModeInterleaved {
		c.runInterleaved(ctx, gen, src)
		src.Close()
		return
	}

	buf := NewBuffer()

	c.mu.Lock()
	if c.gen == gen {
		c.buffer = buf
	}
	c.mu.Unlock()

	complete := c.capture(ctx, src, buf)
	src.Close()

	if !complete || ctx.Err() != nil {
		return
	}

	c.replay(ctx, gen, buf)
}

// runInterleaved pipes source frames through the detector straight to the
// display.
func (c *Controller) runInterleaved(ctx context.Context, gen uint64, src capture.Source) {
	ctx, stop := context.WithCancel(ctx)

	frames := make(chan image.Image, frameQueue)
	produced := make(chan struct{})

	go func() {
		defer close(produced)
		defer close(frames)

		for {
			img, err := src.Read()
			if err != nil {
				c.logReadEnd(err)
				return
			}

			if ctx.Err() != nil {
				return
			}

			select {
			case frames <- img:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer func() {
		stop()
		<-produced
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case img, ok := <-frames:
			if !ok {
				return
			}

			res, err := c.det.Detect(img)
			if err != nil {
				c.log.Error("detection failed", zap.Error(err))
				return
			}

			if !c.render(gen, res, VideoCountFormat) {
				return
			}
		}
	}
}

// capture detects every frame of src into buf and seals it. It reports false
// when detection failed, in which case the session ends without replay.
func (c *Controller) capture(ctx context.Context, src capture.Source, buf *Buffer) bool {
	defer buf.Seal()

	start := time.Now()
	complete := true

	for ctx.Err() == nil {
		img, err := src.Read()
		if err != nil {
			c.logReadEnd(err)
			break
		}

		res, err := c.det.Detect(img)
		if err != nil {
			c.log.Error("detection failed", zap.Int("frame", buf.Len()), zap.Error(err))
			complete = false
			break
		}

		if err := buf.Append(res); err != nil {
			c.log.Error("buffer append", zap.Error(err))
			complete = false
			break
		}
	}

	c.log.Info("capture finished",
		zap.Int("frames", buf.Len()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("interrupted", ctx.Err() != nil),
		zap.Bool("complete", complete))

	return complete
}

// replay shows one buffered result per tick until the buffer is exhausted.
func (c *Controller) replay(ctx context.Context, gen uint64, buf *Buffer) {
	if !buf.Sealed() {
		c.log.Error("replay of a buffer still capturing")
		return
	}

	if !c.transition(gen, StateCapturing, StatePlaying) {
		return
	}

	if buf.Len() == 0 {
		return
	}

	interval := c.cfg.GetReplayInterval()
	if interval <= 0 {
		interval = DefaultReplayInterval
	}

	ticker := c.newTicker(interval)
	defer ticker.Stop()

	for index := 0; index < buf.Len(); {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			res, err := buf.At(index)
			if err != nil {
				c.log.Error("replay", zap.Error(err))
				return
			}

			if !c.render(gen, res, VideoCountFormat) {
				return
			}
			index++
		}
	}
}

func (c *Controller) logReadEnd(err error) {
	if errors.Is(err, io.EOF) {
		c.log.Debug("video source exhausted")
		return
	}
	c.log.Warn("frame read failed", zap.Error(err))
}
