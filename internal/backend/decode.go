package backend

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrImageTooLarge = errors.New("image exceeds pixel limit")

// DecodeConfig is passed with every fetch instead of living in package state.
type DecodeConfig struct {
	// MaxPixels rejects images larger than width*height pixels, 0 disables the check.
	MaxPixels int
	// ExpectSize rejects images whose size differs from the requested one.
	ExpectSize bool
}

func decodeImage(data []byte, width, height int, cfg DecodeConfig) (image.Image, string, error) {
	header, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image header: %w", err)
	}

	if cfg.MaxPixels > 0 && header.Width*header.Height > cfg.MaxPixels {
		return nil, format, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, header.Width, header.Height)
	}
	if cfg.ExpectSize && (header.Width != width || header.Height != height) {
		return nil, format, fmt.Errorf("unexpected image size %dx%d, requested %dx%d",
			header.Width, header.Height, width, height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("failed to decode %s image: %w", format, err)
	}

	return img, format, nil
}
