package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// EmbeddedRasterizer returns the largest image embedded in a page.
type EmbeddedRasterizer struct {
	conf *model.Configuration
}

// NewEmbeddedRasterizer returns a pdfcpu backed rasterizer.
func NewEmbeddedRasterizer() *EmbeddedRasterizer {
	return &EmbeddedRasterizer{conf: model.NewDefaultConfiguration()}
}

// Rasterize extracts the page's images, keeps the one with the largest pixel
// area and re-encodes it as a grayscale PNG. dpi is ignored.
func (r *EmbeddedRasterizer) Rasterize(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error) {
	if pageIndex < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, pageIndex)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer f.Close()

	pages, err := api.ExtractImagesRaw(f, []string{strconv.Itoa(pageIndex + 1)}, r.conf)
	if err != nil {
		return nil, fmt.Errorf("%w: extract images: %v", ErrOpen, err)
	}

	var best image.Image
	var bestArea int
	for _, images := range pages {
		for _, img := range images {
			decoded, err := decodeImage(img)
			if err != nil {
				continue
			}
			b := decoded.Bounds()
			if area := b.Dx() * b.Dy(); area > bestArea {
				best, bestArea = decoded, area
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no decodable image on page %d", ErrInvalidPage, pageIndex+1)
	}
	return encodeGray(best)
}

func decodeImage(img model.Image) (image.Image, error) {
	data, err := io.ReadAll(img)
	if err != nil {
		return nil, err
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s (%s): %w", img.Name, img.FileType, err)
	}
	return decoded, nil
}

// encodeGray flattens img onto a grayscale canvas without alpha and encodes
// it as PNG.
func encodeGray(img image.Image) ([]byte, error) {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
