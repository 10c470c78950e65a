package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, ModeBuffered, cfg.GetMode())
	assert.Equal(t, 17*time.Millisecond, cfg.GetReplayInterval())

	w, h := cfg.GetFrameSize()
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	dw, dh := cfg.Window.DisplaySize()
	assert.Equal(t, 780, dw)
	assert.Equal(t, 520, dh)

	assert.Equal(t, float32(0.2), cfg.Detector.IoU)
	assert.True(t, cfg.Detector.Augment)
	assert.Equal(t, []string{"tree"}, cfg.Detector.Labels)
	assert.Equal(t, uint(5000), cfg.Detector.TimeoutMs)
}

func TestLoad_FileOverridesKeepNestedDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"mode":"Interleaved","detector":{"iou":0.5,"device":"cpu"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeInterleaved, cfg.GetMode())
	assert.Equal(t, float32(0.5), cfg.Detector.IoU)
	assert.Equal(t, "cpu", cfg.Detector.Device)
	assert.Equal(t, 960, cfg.Detector.GPUImageSize)
	assert.Equal(t, DefaultModelPath, cfg.Detector.ModelPath)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("TREES_DETECTOR_DEVICE", "gpu")
	t.Setenv("TREES_REPLAY_INTERVAL_MS", "40")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "gpu", cfg.Detector.Device)
	assert.Equal(t, 40*time.Millisecond, cfg.GetReplayInterval())
}

func TestLoadConfigFile_BrokenFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	cfg := LoadConfigFile(path)
	assert.Equal(t, ModeBuffered, cfg.GetMode())
}

func TestSave_ThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := NewDefaultConfig()
	cfg.SetMode(ModeInterleaved)
	cfg.SetReplayIntervalMs(33)
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeInterleaved, loaded.GetMode())
	assert.Equal(t, 33*time.Millisecond, loaded.GetReplayInterval())
}
