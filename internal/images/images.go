// Package images turns uploaded files into observation photos: a full-size
// data URL plus a small JPEG thumbnail.
package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rpggio/biodata/internal/domain/observation"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultThumbnailWidth = 200
	DefaultQuality        = 70
)

// File is one uploaded file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Processor converts files to ImageData.
type Processor struct {
	thumbnailWidth int
	quality        int
	logger         *slog.Logger
	newID          func() string
}

// Option configures a Processor.
type Option func(*Processor)

// WithThumbnailWidth sets the maximum thumbnail width in pixels.
func WithThumbnailWidth(w int) Option {
	return func(p *Processor) { p.thumbnailWidth = w }
}

// WithQuality sets the thumbnail JPEG quality (1-100).
func WithQuality(q int) Option {
	return func(p *Processor) { p.quality = q }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a Processor.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		thumbnailWidth: DefaultThumbnailWidth,
		quality:        DefaultQuality,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:          newID,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.thumbnailWidth <= 0 {
		p.thumbnailWidth = DefaultThumbnailWidth
	}
	if p.quality < 1 || p.quality > 100 {
		p.quality = DefaultQuality
	}
	return p
}

// newID returns a time-ordered v7 id, falling back to v4.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Process converts files in order. Files that are not images are skipped.
// An image that cannot be decoded is kept without a thumbnail.
func (p *Processor) Process(ctx context.Context, files []File) ([]observation.ImageData, error) {
	out := make([]observation.ImageData, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		contentType := ContentType(f)
		if !strings.HasPrefix(contentType, "image/") {
			p.logger.Debug("skipping non-image upload", "name", f.Name, "content_type", contentType)
			continue
		}

		img := observation.ImageData{
			ID:      p.newID(),
			URL:     DataURL(contentType, f.Data),
			Caption: f.Name,
		}
		thumb, err := p.Thumbnail(f.Data)
		if err != nil {
			p.logger.Warn("thumbnail failed", "name", f.Name, "error", err)
		} else {
			img.Thumbnail = DataURL("image/jpeg", thumb)
		}
		out = append(out, img)
	}
	return out, nil
}

// Thumbnail scales data down to the configured width, keeping the aspect
// ratio, and encodes it as JPEG. Narrow images keep their size.
func (p *Processor) Thumbnail(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("decoding image: empty bounds")
	}
	if w > p.thumbnailWidth {
		h = h * p.thumbnailWidth / w
		w = p.thumbnailWidth
		if h < 1 {
			h = 1
		}
	}

	// JPEG has no alpha; flatten onto white.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentType returns the declared media type of f, sniffing the content
// when none was declared.
func ContentType(f File) string {
	if f.ContentType != "" {
		if mt, _, err := mime.ParseMediaType(f.ContentType); err == nil {
			return mt
		}
	}
	return http.DetectContentType(f.Data)
}

// DataURL encodes data as a base64 data URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
