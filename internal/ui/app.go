package ui

import (
	"fmt"
	"image"
	"sync"
	"time"

	"treesight/internal/config"
	"treesight/internal/ui/cwidget"
	"treesight/processing/capture"
	"treesight/processing/playback"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"
)

type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config     *config.Config
	configPath string
	controller *playback.Controller
	log        *zap.Logger

	imageCanvas *canvas.Image
	countText   *canvas.Text
	countBox    *fyne.Container
	statusLabel *widget.Label

	statStop     chan struct{}
	shutdownOnce sync.Once
}

// CreateApp builds the viewer window. Settings are written back to cfgPath.
func CreateApp(cfg *config.Config, cfgPath string, det playback.Detector, openVideo capture.VideoOpener, log *zap.Logger) *DetectApp {
	a := app.New()
	a.Settings().SetTheme(newDarkTheme())

	return newDetectApp(a, cfg, cfgPath, det, openVideo, log)
}

func newDetectApp(fyneApp fyne.App, cfg *config.Config, cfgPath string, det playback.Detector, openVideo capture.VideoOpener, log *zap.Logger) *DetectApp {
	w := fyneApp.NewWindow(cfg.Window.Title)
	w.Resize(fyne.NewSize(float32(cfg.Window.Width), float32(cfg.Window.Height)))
	w.SetFixedSize(true)

	da := &DetectApp{
		fyneApp:    fyneApp,
		mainWin:    w,
		config:     cfg,
		configPath: cfgPath,
		log:        log,
		statStop:   make(chan struct{}),
	}

	da.controller = playback.NewController(cfg, det, openVideo, da, log)

	return da
}

// ShowFrame implements playback.Display.
func (a *DetectApp) ShowFrame(img image.Image) {
	fyne.Do(func() {
		a.imageCanvas.Image = img
		a.imageCanvas.Show()
		a.imageCanvas.Refresh()
	})
}

// ShowCount implements playback.Display.
func (a *DetectApp) ShowCount(text string) {
	fyne.Do(func() {
		a.countText.Text = text
		a.countBox.Show()
		a.countText.Refresh()
	})
}

func (a *DetectApp) Run() {
	a.mainWin.SetContent(a.buildContent())
	a.mainWin.SetCloseIntercept(a.closeWindow)

	go a.runStatLoop()

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func (a *DetectApp) buildContent() fyne.CanvasObject {
	dw, dh := a.config.Window.DisplaySize()

	a.imageCanvas = canvas.NewImageFromImage(nil)
	a.imageCanvas.FillMode = canvas.ImageFillContain
	a.imageCanvas.SetMinSize(fyne.NewSize(float32(dw), float32(dh)))
	a.imageCanvas.Hide()

	a.countText = canvas.NewText("", colorText)
	a.countText.TextSize = 32
	a.countText.Alignment = fyne.TextAlignCenter

	countBg := canvas.NewRectangle(colorPanel)
	countBg.CornerRadius = 5

	a.countBox = container.NewStack(countBg, container.NewPadded(a.countText))
	a.countBox.Hide()

	a.statusLabel = widget.NewLabel(a.formatStatus())

	openVideoBtn := widget.NewButtonWithIcon("Open Video", theme.MediaVideoIcon(), a.openVideoFile)
	openImageBtn := widget.NewButtonWithIcon("Open Image", theme.FileImageIcon(), a.openImageFile)
	stopBtn := widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), a.controller.Stop)

	buttons := container.NewGridWithColumns(2, openVideoBtn, openImageBtn)

	content := container.NewBorder(
		nil,
		container.NewVBox(buttons, a.countBox, a.setupPlaybackSettings(stopBtn)),
		nil, nil,
		container.NewCenter(a.imageCanvas),
	)

	return container.NewPadded(content)
}

// closeWindow ends the session and quits without waiting for it to exit.
func (a *DetectApp) closeWindow() {
	a.shutdown()
	a.fyneApp.Quit()
}

func (a *DetectApp) shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.statStop)
		a.controller.Stop()
		a.saveConfig()
	})
}

func (a *DetectApp) saveConfig() {
	if err := a.config.Save(a.configPath); err != nil {
		a.log.Warn("config not saved", zap.String("path", a.configPath), zap.Error(err))
	}
}

func (a *DetectApp) setupPlaybackSettings(stopBtn *widget.Button) fyne.CanvasObject {
	modeSelect := widget.NewSelect(config.ModesList[:], func(s string) {
		a.config.SetMode(config.PlaybackMode(s))
	})
	modeSelect.SetSelected(string(a.config.GetMode()))

	intervalInput := cwidget.NewIntInput(
		"Replay interval, ms",
		"Enter integer",
		int(a.config.GetReplayInterval().Milliseconds()),
		func(i int) {
			a.config.SetReplayIntervalMs(uint(i))
		},
	)

	intervalInput.OnSubmitted = func(int) {
		a.saveConfig()
	}

	return container.NewGridWithColumns(3,
		container.NewVBox(widget.NewLabel("Mode:"), modeSelect),
		intervalInput,
		container.NewVBox(a.statusLabel, stopBtn),
	)
}

func (a *DetectApp) openVideoFile() {
	a.showFileOpen(capture.VideoExtensions, a.controller.OpenVideo)
}

func (a *DetectApp) openImageFile() {
	a.showFileOpen(capture.ImageExtensions, a.controller.OpenImage)
}

func (a *DetectApp) showFileOpen(extensions []string, open func(string)) {
	d := dialog.NewFileOpen(a.fileChosen(open), a.mainWin)

	d.SetFilter(storage.NewExtensionFileFilter(extensions))
	d.Resize(fyne.NewSize(float32(a.config.Window.Width)*0.8, float32(a.config.Window.Height)*0.8))
	d.Show()
}

// fileChosen calls open with the chosen path. A cancelled or failed dialog
// does nothing.
func (a *DetectApp) fileChosen(open func(string)) func(fyne.URIReadCloser, error) {
	return func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			a.log.Warn("file dialog", zap.Error(err))
			return
		}
		if reader == nil {
			return
		}

		path := reader.URI().Path()
		reader.Close()

		open(path)
	}
}

func (a *DetectApp) runStatLoop() {
	uiTicker := time.NewTicker(time.Millisecond * 200)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			status := a.formatStatus()
			fyne.Do(func() {
				a.statusLabel.SetText(status)
			})
		case <-a.statStop:
			return
		}
	}
}

func (a *DetectApp) formatStatus() string {
	return formatStatus(a.controller.State(), a.controller.BufferLen())
}

func formatStatus(state playback.State, buffered int) string {
	switch state {
	case playback.StateCapturing, playback.StatePlaying:
		return fmt.Sprintf("State: %s (%d buffered)", state, buffered)
	default:
		return fmt.Sprintf("State: %s", state)
	}
}
