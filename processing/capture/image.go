package capture

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

var (
	VideoExtensions = []string{".mp4", ".avi"}
	ImageExtensions = []string{".png", ".xpm", ".jpg", ".jpeg", ".bmp"}
)

// LoadImage decodes a still image. XPM is accepted by the open dialog but
// has no decoder and reports ErrUnsupportedFormat.
func LoadImage(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".xpm") {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
		}
		return nil, fmt.Errorf("decode %s (%s): %w", path, format, err)
	}

	return img, nil
}
