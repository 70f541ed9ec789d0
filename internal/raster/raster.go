// Package raster turns uploaded PDF documents into one bitmap per page using
// Poppler's pdftoppm.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// MaxUploadBytes is the largest accepted document, 50 MB.
const MaxUploadBytes int64 = 50 * 1024 * 1024

// DefaultDPI is the rendering resolution used when none is configured.
const DefaultDPI = 150

const pagePrefix = "page"

var (
	// ErrTooLarge is returned for documents over the size cap.
	ErrTooLarge = errors.New("PDF file too large")
	// ErrNotPDF is returned when the upload is not named *.pdf.
	ErrNotPDF = errors.New("only .pdf files are supported")
	// ErrInvalidPDF is returned for content Poppler cannot read.
	ErrInvalidPDF = errors.New("invalid PDF document")
	// ErrRendererUnavailable is returned when pdftoppm is not installed.
	ErrRendererUnavailable = errors.New("pdftoppm not found: please install poppler")
	// ErrNoPages is returned when rendering produced nothing.
	ErrNoPages = errors.New("PDF produced no pages")
)

// Renderer rasterizes a PDF into page images in page order.
type Renderer interface {
	Render(ctx context.Context, pdf []byte) ([]image.Image, error)
}

// Validate checks an upload before any rendering: the declared size against
// maxBytes, then the file extension. A non-positive maxBytes means
// MaxUploadBytes.
func Validate(filename string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, size, maxBytes)
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return fmt.Errorf("%w: %q", ErrNotPDF, filename)
	}
	return nil
}

// CheckContent rejects bytes that do not carry a PDF header.
func CheckContent(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidPDF)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("%w: missing %%PDF header", ErrInvalidPDF)
	}
	return nil
}

// CommandRunner runs an external command and returns what it wrote to stderr.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// Poppler renders pages by shelling out to pdftoppm.
type Poppler struct {
	binary   string
	dpi      int
	runner   CommandRunner
	lookPath func(string) (string, error)
	logger   *zap.Logger
}

// NewPoppler creates a renderer for the given pdftoppm binary and DPI.
func NewPoppler(binary string, dpi int, logger *zap.Logger) *Poppler {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Poppler{
		binary:   binary,
		dpi:      dpi,
		runner:   execRunner{},
		lookPath: exec.LookPath,
		logger:   logger,
	}
}

// Available reports whether the pdftoppm binary can be found.
func (p *Poppler) Available() error {
	if _, err := p.lookPath(p.binary); err != nil {
		return ErrRendererUnavailable
	}
	return nil
}

// Render writes pdf to a private temp dir, runs pdftoppm over it and decodes
// the resulting PNG pages. The temp dir is removed before returning.
func (p *Poppler) Render(ctx context.Context, pdf []byte) ([]image.Image, error) {
	if err := CheckContent(pdf); err != nil {
		return nil, err
	}

	bin, err := p.lookPath(p.binary)
	if err != nil {
		return nil, ErrRendererUnavailable
	}

	dir, err := os.MkdirTemp("", "pdf-mailer-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	stderr, err := p.runner.Run(ctx, bin,
		"-r", strconv.Itoa(p.dpi),
		"-png",
		input,
		filepath.Join(dir, pagePrefix),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidPDF, msg)
	}

	paths, err := pageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoPages
	}

	pages := make([]image.Image, 0, len(paths))
	for _, path := range paths {
		img, err := imaging.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to decode rendered page %s: %w", filepath.Base(path), err)
		}
		pages = append(pages, img)
	}

	if p.logger != nil {
		p.logger.Debug("rendered PDF",
			zap.Int("pages", len(pages)),
			zap.Int("dpi", p.dpi),
			zap.Int("bytes", len(pdf)),
		)
	}
	return pages, nil
}

// pageFiles lists pdftoppm outputs ("page-1.png", "page-01.png", ...)
// sorted by page number.
func pageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendered pages: %w", err)
	}

	type page struct {
		num  int
		path string
	}
	var pages []page
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, pagePrefix+"-") || filepath.Ext(name) != ".png" {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, pagePrefix+"-"), ".png"))
		if err != nil {
			continue
		}
		pages = append(pages, page{num: num, path: filepath.Join(dir, name)})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	out := make([]string, len(pages))
	for i, pg := range pages {
		out[i] = pg.path
	}
	return out, nil
}
