// Package upload turns pending image attachments into durable URLs.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/debemdeboas/the-folio/internal/editor"
	"github.com/debemdeboas/the-folio/internal/util"
)

const (
	jpegQuality   = 82
	nameHashChars = 12
	ContentType   = "image/jpeg"

	DefaultMaxPixels = 40_000_000
)

var (
	ErrNotAnImage = errors.New("attachment is not a supported image")
	ErrTooLarge   = errors.New("attachment exceeds the upload size limit")
)

type Uploader interface {
	Upload(ctx context.Context, att editor.Attachment) (string, error)
}

var uploadLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	uploadLogger = l
}

// Processor normalizes images before they are stored: at most MaxWidth pixels
// wide and JPEG encoded. Zero MaxWidth or MaxBytes disables that check. The
// pixel count is always bounded, by DefaultMaxPixels when MaxPixels is zero,
// since decoding allocates for the declared size, not the file size.
type Processor struct {
	MaxWidth  int
	MaxBytes  int
	MaxPixels int
}

// Processed is an image ready to be written under Name.
type Processed struct {
	Name   string
	Data   []byte
	Width  int
	Height int
}

func (p Processor) Process(att editor.Attachment) (Processed, error) {
	if p.MaxBytes > 0 && len(att.Data) > p.MaxBytes {
		return Processed{}, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(att.Data), p.MaxBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(att.Data))
	if err != nil {
		return Processed{}, fmt.Errorf("%w: %s: %v", ErrNotAnImage, att.Filename, err)
	}
	maxPixels := p.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return Processed{}, fmt.Errorf("%w: %dx%d pixels, limit %d", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(att.Data))
	if err != nil {
		return Processed{}, fmt.Errorf("%w: %s: %v", ErrNotAnImage, att.Filename, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if p.MaxWidth > 0 && w > p.MaxWidth {
		newH := max(1, h*p.MaxWidth/w)
		dst := image.NewRGBA(image.Rect(0, 0, p.MaxWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w, h = p.MaxWidth, newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Processed{}, fmt.Errorf("encode jpeg: %w", err)
	}

	name := string(att.BlockID) + "-" + util.ShortHash(buf.Bytes(), nameHashChars) + ".jpg"

	uploadLogger.Debug().
		Str("block_id", string(att.BlockID)).
		Str("source_format", format).
		Int("width", w).
		Int("height", h).
		Int("bytes", buf.Len()).
		Msg("Image processed")

	return Processed{Name: name, Data: buf.Bytes(), Width: w, Height: h}, nil
}

func joinURL(base, name string) string {
	if base == "" {
		return name
	}
	if base[len(base)-1] != '/' {
		base += "/"
	}
	return base + name
}
