package main

import (
	"fmt"
	"os"
	"time"

	"treesight/internal/config"
	"treesight/internal/logger"
	"treesight/internal/ui"
	"treesight/processing/capture"
	"treesight/processing/capture/cv"
	"treesight/processing/detector"
	"treesight/processing/detector/dnn"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// how long exit waits for an in-flight inference before abandoning it
const shutdownGrace = time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfgPath := os.Getenv("TREES_CONFIG")
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath
	}

	cfg := config.LoadConfigFile(cfgPath)

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	model, err := newModel(cfg, log)
	if err != nil {
		log.Fatal("failed to load detection model", zap.Error(err))
	}

	det := detector.NewDetector(model, cfg, log)

	log.Info("detector ready",
		zap.String("backend", string(cfg.Detector.Backend)),
		zap.Stringer("params", det.Params()))

	app := ui.CreateApp(cfg, cfgPath, det, newVideoOpener(cfg), log)

	app.Run()

	if err := det.CloseWithin(shutdownGrace); err != nil {
		log.Warn("detector not closed", zap.Error(err))
	}
}

func newModel(cfg *config.Config, log *zap.Logger) (detector.Model, error) {
	switch cfg.Detector.Backend {
	case config.BackendRemote:
		timeout := time.Duration(cfg.Detector.TimeoutMs) * time.Millisecond
		return detector.NewRemoteModel(cfg.Detector.RemoteAddr, log).WithTimeout(timeout), nil
	case config.BackendNet:
		return dnn.NewNetModel(cfg.Detector.ModelPath, cfg.Detector.Labels, cfg.Detector.ConfThreshold)
	default:
		return nil, fmt.Errorf("unknown detector backend: %s", cfg.Detector.Backend)
	}
}

func newVideoOpener(cfg *config.Config) capture.VideoOpener {
	switch cfg.Decoder {
	case config.DecoderFFmpeg:
		w, h := cfg.GetFrameSize()
		return capture.FFmpegOpener(w, h)
	default:
		return cv.Open
	}
}
