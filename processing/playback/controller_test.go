package playback

import (
	"errors"
	"image"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"treesight/internal/config"
	"treesight/internal/models"
	"treesight/processing/capture"
	"treesight/processing/detector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeDetector struct {
	calls atomic.Int32
	boxes int
	err   error

	// when positive, calls from this one on fail with err
	failFrom int32
}

func (d *fakeDetector) Detect(frame image.Image) (*detector.Result, error) {
	n := d.calls.Add(1)
	if d.err != nil && n >= d.failFrom {
		return nil, d.err
	}
	return detector.NewResult(detector.ToRGBA(frame), make([]models.Detection, d.boxes)), nil
}

type fakeSource struct {
	frames int
	read   int
	// when set, every read after the first waits for it to close
	gate   chan struct{}
	closed atomic.Bool
}

func (s *fakeSource) Read() (image.Image, error) {
	if s.gate != nil && s.read > 0 {
		<-s.gate
	}
	if s.read >= s.frames {
		return nil, io.EOF
	}
	s.read++
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeDisplay struct {
	mu     sync.Mutex
	frames []image.Image
	counts []string
}

func (d *fakeDisplay) ShowFrame(img image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, img)
}

func (d *fakeDisplay) ShowCount(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts = append(d.counts, text)
}

func (d *fakeDisplay) snapshot() ([]image.Image, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]image.Image(nil), d.frames...), append([]string(nil), d.counts...)
}

func (d *fakeDisplay) frameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	stopped  atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

type harness struct {
	ctrl    *Controller
	det     *fakeDetector
	src     *fakeSource
	display *fakeDisplay

	mu      sync.Mutex
	tickers []*fakeTicker
	opened  int
}

func newHarness(t *testing.T, mode config.PlaybackMode, frames int) *harness {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.SetMode(mode)
	cfg.Window = config.WindowConfig{Width: 20, Height: 10}

	h := &harness{
		det:     &fakeDetector{boxes: 2},
		src:     &fakeSource{frames: frames},
		display: &fakeDisplay{},
	}

	opener := func(path string) (capture.Source, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.opened++
		if strings.HasSuffix(path, "broken.mp4") {
			return nil, errors.New("cannot open")
		}
		return h.src, nil
	}

	h.ctrl = NewController(cfg, h.det, opener, h.display, zap.NewNop()).
		WithTicker(func(d time.Duration) Ticker {
			h.mu.Lock()
			defer h.mu.Unlock()
			ft := &fakeTicker{ch: make(chan time.Time), interval: d}
			h.tickers = append(h.tickers, ft)
			return ft
		}).
		WithImageLoader(func(path string) (image.Image, error) {
			if path == "missing.png" {
				return nil, errors.New("no such file")
			}
			return image.NewRGBA(image.Rect(0, 0, 16, 16)), nil
		})

	t.Cleanup(h.ctrl.Close)

	return h
}

func (h *harness) ticker(t *testing.T) *fakeTicker {
	t.Helper()

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.tickers, 1)
	return h.tickers[0]
}

func (h *harness) tickerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tickers)
}

func TestOpenImage_ShowsFrameAndCount(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 0)
	h.det.boxes = 3

	h.ctrl.OpenImage("forest.png")
	h.ctrl.Wait()

	frames, counts := h.display.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, image.Rect(0, 0, 20, 10), frames[0].Bounds())
	assert.Equal(t, []string{"Number of trees: 3"}, counts)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestOpen_EmptyPathIsNoop(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 3)

	h.ctrl.OpenImage("forest.png")
	h.ctrl.Wait()

	h.ctrl.OpenVideo("")
	h.ctrl.OpenImage("")
	h.ctrl.Wait()

	frames, counts := h.display.snapshot()
	assert.Len(t, frames, 1)
	assert.Equal(t, []string{"Number of trees: 2"}, counts)
	assert.Equal(t, 0, h.opened)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestOpenImage_LoadFailureKeepsDisplay(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 0)

	h.ctrl.OpenImage("missing.png")
	h.ctrl.Wait()

	assert.Equal(t, 0, h.display.frameCount())
	assert.Equal(t, int32(0), h.det.calls.Load())
}

func TestBuffered_ReplaysOneResultPerTick(t *testing.T) {
	const frames = 5
	h := newHarness(t, config.ModeBuffered, frames)

	h.ctrl.OpenVideo("forest.mp4")

	require.Eventually(t, func() bool { return h.ctrl.State() == StatePlaying }, waitFor, tick)
	require.Eventually(t, func() bool { return h.tickerCount() == 1 }, waitFor, tick)
	assert.Equal(t, frames, h.ctrl.BufferLen())
	assert.Equal(t, int32(frames), h.det.calls.Load())
	assert.Equal(t, 0, h.display.frameCount())
	assert.True(t, h.src.closed.Load())

	ft := h.ticker(t)
	assert.Equal(t, DefaultReplayInterval, ft.interval)

	for i := 1; i <= frames; i++ {
		ft.ch <- time.Now()
		require.Eventually(t, func() bool { return h.display.frameCount() == i }, waitFor, tick)
	}

	require.Eventually(t, func() bool { return h.ctrl.State() == StateIdle }, waitFor, tick)
	assert.True(t, ft.stopped.Load())

	select {
	case ft.ch <- time.Now():
		t.Fatal("replay kept consuming ticks after the buffer was exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	_, counts := h.display.snapshot()
	assert.Len(t, counts, frames)
	for _, c := range counts {
		assert.Equal(t, "Trees count: 2", c)
	}
}

func TestBuffered_EmptyVideoReturnsToIdle(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 0)

	h.ctrl.OpenVideo("empty.mp4")
	h.ctrl.Wait()

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, 0, h.ctrl.BufferLen())
	assert.Equal(t, 0, h.tickerCount())
}

func TestInterleaved_RendersEveryFrame(t *testing.T) {
	h := newHarness(t, config.ModeInterleaved, 4)

	h.ctrl.OpenVideo("forest.mp4")
	h.ctrl.Wait()

	frames, counts := h.display.snapshot()
	assert.Len(t, frames, 4)
	assert.Equal(t, "Trees count: 2", counts[3])
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.True(t, h.src.closed.Load())
	assert.Equal(t, 0, h.tickerCount())
}

func TestOpenVideo_OpenFailureIsSilent(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 3)

	h.ctrl.OpenVideo("broken.mp4")
	h.ctrl.Wait()

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, 0, h.display.frameCount())
	assert.Equal(t, int32(0), h.det.calls.Load())
}

func TestInterleaved_DetectorErrorEndsSession(t *testing.T) {
	h := newHarness(t, config.ModeInterleaved, 3)
	h.det.err = errors.New("inference failed")

	h.ctrl.OpenVideo("forest.mp4")
	h.ctrl.Wait()

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, 0, h.display.frameCount())
	assert.Equal(t, int32(1), h.det.calls.Load())
}

func TestBuffered_DetectorErrorEndsSession(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 5)
	h.det.err = errors.New("inference failed")
	h.det.failFrom = 2

	h.ctrl.OpenVideo("forest.mp4")
	h.ctrl.Wait()

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, int32(2), h.det.calls.Load())
	assert.Equal(t, 1, h.ctrl.BufferLen())
	assert.Equal(t, 0, h.tickerCount(), "partial capture must not be replayed")
	assert.Equal(t, 0, h.display.frameCount())
	assert.True(t, h.src.closed.Load())
}

func TestReplay_UnsealedBufferIsRefused(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 0)

	ctx, gen := h.ctrl.begin(StateCapturing)
	buf := NewBuffer()
	require.NoError(t, buf.Append(detector.NewResult(image.NewRGBA(image.Rect(0, 0, 4, 4)), nil)))

	h.ctrl.replay(ctx, gen, buf)

	assert.Equal(t, StateCapturing, h.ctrl.State())
	assert.Equal(t, 0, h.tickerCount())
	h.ctrl.Stop()
}

func TestOpenImage_InterruptsVideoCapture(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 10)
	h.src.gate = make(chan struct{})

	h.ctrl.OpenVideo("forest.mp4")
	require.Eventually(t, func() bool { return h.det.calls.Load() == 1 }, waitFor, tick)
	assert.Equal(t, StateCapturing, h.ctrl.State())

	h.ctrl.OpenImage("forest.png")
	require.Eventually(t, func() bool { return h.display.frameCount() == 1 }, waitFor, tick)
	assert.Equal(t, StateIdle, h.ctrl.State())

	close(h.src.gate)
	h.ctrl.Wait()

	_, counts := h.display.snapshot()
	assert.Equal(t, []string{"Number of trees: 2"}, counts)
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, 0, h.tickerCount(), "interrupted capture must not start replay")
}

func TestOpenImage_InterruptsReplay(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 3)

	h.ctrl.OpenVideo("forest.mp4")
	require.Eventually(t, func() bool { return h.ctrl.State() == StatePlaying }, waitFor, tick)
	require.Eventually(t, func() bool { return h.tickerCount() == 1 }, waitFor, tick)

	ft := h.ticker(t)
	ft.ch <- time.Now()
	require.Eventually(t, func() bool { return h.display.frameCount() == 1 }, waitFor, tick)

	h.ctrl.OpenImage("forest.png")
	h.ctrl.Wait()

	assert.True(t, ft.stopped.Load())
	_, counts := h.display.snapshot()
	assert.Equal(t, []string{"Trees count: 2", "Number of trees: 2"}, counts)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestStop_InterruptsInterleavedVideo(t *testing.T) {
	h := newHarness(t, config.ModeInterleaved, 10)
	h.src.gate = make(chan struct{})

	h.ctrl.OpenVideo("forest.mp4")
	require.Eventually(t, func() bool { return h.display.frameCount() == 1 }, waitFor, tick)

	h.ctrl.Stop()
	assert.Equal(t, StateIdle, h.ctrl.State())

	close(h.src.gate)
	h.ctrl.Wait()

	assert.Equal(t, 1, h.display.frameCount())
	assert.True(t, h.src.closed.Load())
}

func TestClose_EndsReplay(t *testing.T) {
	h := newHarness(t, config.ModeBuffered, 2)

	h.ctrl.OpenVideo("forest.mp4")
	require.Eventually(t, func() bool { return h.ctrl.State() == StatePlaying }, waitFor, tick)
	require.Eventually(t, func() bool { return h.tickerCount() == 1 }, waitFor, tick)

	h.ctrl.Close()

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.True(t, h.ticker(t).stopped.Load())
	assert.Equal(t, 0, h.display.frameCount())
}
