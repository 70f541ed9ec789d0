// Package imageproc fits page bitmaps into a bounding box and re-encodes
// them for mailing.
package imageproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"runtime"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

const (
	MinQuality = 10
	MaxQuality = 100
)

// Format is an output encoding.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
)

// ParseFormat maps "jpeg", "jpg" or "png" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	}
	return "", fmt.Errorf("unsupported image format %q", s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == PNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == PNG {
		return "png"
	}
	return "jpg"
}

// ErrInvalidOptions is returned for out-of-range sizes or qualities.
var ErrInvalidOptions = errors.New("invalid image options")

// Options selects the bounding box and encoding.
type Options struct {
	MaxWidth  int
	MaxHeight int
	// Quality is 10-100. PNG output is lossless and ignores it.
	Quality int
	Format  Format
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.MaxWidth <= 0 || o.MaxHeight <= 0 {
		return fmt.Errorf("%w: bounding box %dx%d", ErrInvalidOptions, o.MaxWidth, o.MaxHeight)
	}
	if o.Quality < MinQuality || o.Quality > MaxQuality {
		return fmt.Errorf("%w: quality %d not in %d-%d", ErrInvalidOptions, o.Quality, MinQuality, MaxQuality)
	}
	if o.Format != JPEG && o.Format != PNG {
		return fmt.Errorf("%w: format %q", ErrInvalidOptions, o.Format)
	}
	return nil
}

// Page is one processed page image.
type Page struct {
	Number      int
	Width       int
	Height      int
	Data        []byte
	ContentType string
	Extension   string
}

// Filename returns "pageN.ext".
func (p Page) Filename() string {
	return fmt.Sprintf("page%d.%s", p.Number, p.Extension)
}

// Process downscales img to fit the bounding box, preserving aspect ratio
// and never upscaling, then encodes it. number is the 1-based page number.
func Process(img image.Image, number int, opts Options) (Page, error) {
	if err := opts.Validate(); err != nil {
		return Page{}, err
	}

	fitted := imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	var err error
	switch opts.Format {
	case PNG:
		err = imaging.Encode(&buf, fitted, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	default:
		err = imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(opts.Quality))
	}
	if err != nil {
		return Page{}, fmt.Errorf("failed to encode page %d: %w", number, err)
	}

	b := fitted.Bounds()
	return Page{
		Number:      number,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Data:        buf.Bytes(),
		ContentType: opts.Format.ContentType(),
		Extension:   opts.Format.Extension(),
	}, nil
}

// ProcessAll runs Process over every image and returns pages in input order.
func ProcessAll(ctx context.Context, imgs []image.Image, opts Options) ([]Page, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	pages := make([]Page, len(imgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, img := range imgs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			page, err := Process(img, i+1, opts)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}
