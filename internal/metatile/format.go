package metatile

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Format is a tile encoding identified by its mime type.
type Format string

const (
	FormatPNG  Format = "image/png"
	FormatJPEG Format = "image/jpeg"
	FormatGIF  Format = "image/gif"
	FormatTIFF Format = "image/tiff"
	FormatBMP  Format = "image/bmp"
)

var formatAliases = map[string]Format{
	"png":        FormatPNG,
	"image/png":  FormatPNG,
	"jpg":        FormatJPEG,
	"jpeg":       FormatJPEG,
	"image/jpeg": FormatJPEG,
	"gif":        FormatGIF,
	"image/gif":  FormatGIF,
	"tif":        FormatTIFF,
	"tiff":       FormatTIFF,
	"image/tiff": FormatTIFF,
	"bmp":        FormatBMP,
	"image/bmp":  FormatBMP,
}

// ParseFormat accepts a mime type or a file extension.
func ParseFormat(s string) (Format, error) {
	f, ok := formatAliases[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))]
	if !ok {
		return "", fmt.Errorf("unsupported format %q", s)
	}
	return f, nil
}

func (f Format) MimeType() string {
	return string(f)
}

func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	default:
		return strings.TrimPrefix(string(f), "image/")
	}
}

type pngBufferPool struct {
	pool sync.Pool
}

func (p *pngBufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *pngBufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}

var pngEncoder = &png.Encoder{
	CompressionLevel: png.BestSpeed,
	BufferPool:       &pngBufferPool{},
}

// encode recovers encoder panics so a bad tile cannot take the process down.
func encode(w io.Writer, img image.Image, f Format) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s encoder panic: %v", f, p)
		}
	}()

	switch f {
	case FormatPNG:
		return pngEncoder.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case FormatGIF:
		return gif.Encode(w, img, nil)
	case FormatTIFF:
		return tiff.Encode(w, rebase(img), &tiff.Options{Compression: tiff.Deflate})
	case FormatBMP:
		return bmp.Encode(w, rebase(img))
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// rebase copies img to an RGBA whose bounds start at 0,0. The tiff and bmp
// encoders index pixel buffers from the origin and break on cropped views.
func rebase(img image.Image) image.Image {
	b := img.Bounds()
	if b.Min == (image.Point{}) {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
