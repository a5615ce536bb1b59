package imaging

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/haithamq/visaflow/internal/core/domain"
)

// Inspector reads image headers for the photo rules: dimensions and
// whether the image carries color. Registered decoders cover the upload
// whitelist (jpeg, png, bmp, tiff).
type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

func (Inspector) Inspect(_ context.Context, filePath string) (domain.ImageInfo, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return domain.ImageInfo{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return domain.ImageInfo{}, fmt.Errorf("decode image config: %w", err)
	}

	return domain.ImageInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Color:  isColorModel(cfg.ColorModel),
	}, nil
}

func isColorModel(model color.Model) bool {
	switch model {
	case color.GrayModel, color.Gray16Model:
		return false
	default:
		return true
	}
}
