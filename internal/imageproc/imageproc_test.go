package imageproc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestProcess_FitsBoundingBox(t *testing.T) {
	t.Parallel()

	sizes := []struct{ w, h int }{
		{1275, 1650}, // US Letter at 150 DPI
		{1650, 1275},
		{2000, 2000},
		{4000, 300},
		{601, 600},
	}
	bounds := []int{600, 800, 1024, 1280}

	for _, s := range sizes {
		src := imaging.New(s.w, s.h, color.White)
		for _, b := range bounds {
			page, err := Process(src, 1, Options{MaxWidth: b, MaxHeight: b, Quality: 80, Format: JPEG})
			require.NoError(t, err)

			assert.LessOrEqual(t, page.Width, b, "%dx%d into %d", s.w, s.h, b)
			assert.LessOrEqual(t, page.Height, b, "%dx%d into %d", s.w, s.h, b)

			if s.w > b || s.h > b {
				// The longer side lands on the bound.
				assert.True(t, page.Width == b || page.Height == b, "%dx%d into %d gave %dx%d", s.w, s.h, b, page.Width, page.Height)
			}

			srcRatio := float64(s.w) / float64(s.h)
			gotRatio := float64(page.Width) / float64(page.Height)
			// One pixel of rounding on the short side.
			tolerance := srcRatio / float64(min(page.Width, page.Height))
			assert.InDelta(t, srcRatio, gotRatio, tolerance+0.01, "%dx%d into %d", s.w, s.h, b)
		}
	}
}

func TestProcess_NeverUpscales(t *testing.T) {
	t.Parallel()

	src := gradient(320, 240)
	page, err := Process(src, 1, Options{MaxWidth: 1280, MaxHeight: 1280, Quality: 75, Format: JPEG})
	require.NoError(t, err)
	assert.Equal(t, 320, page.Width)
	assert.Equal(t, 240, page.Height)
}

func TestProcess_JPEGEncoding(t *testing.T) {
	t.Parallel()

	src := gradient(900, 600)
	page, err := Process(src, 3, Options{MaxWidth: 600, MaxHeight: 600, Quality: 80, Format: JPEG})
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(page.Data))
	require.NoError(t, err)
	assert.Equal(t, 600, decoded.Bounds().Dx())
	assert.Equal(t, 400, decoded.Bounds().Dy())
	assert.Equal(t, "image/jpeg", page.ContentType)
	assert.Equal(t, "page3.jpg", page.Filename())
}

func TestProcess_QualityAffectsSize(t *testing.T) {
	t.Parallel()

	src := gradient(800, 800)
	low, err := Process(src, 1, Options{MaxWidth: 800, MaxHeight: 800, Quality: 10, Format: JPEG})
	require.NoError(t, err)
	high, err := Process(src, 1, Options{MaxWidth: 800, MaxHeight: 800, Quality: 100, Format: JPEG})
	require.NoError(t, err)

	assert.Less(t, len(low.Data), len(high.Data))
}

func TestProcess_Deterministic(t *testing.T) {
	t.Parallel()

	src := gradient(1000, 700)
	opts := Options{MaxWidth: 600, MaxHeight: 600, Quality: 75, Format: JPEG}
	a, err := Process(src, 1, opts)
	require.NoError(t, err)
	b, err := Process(src, 1, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestProcess_PNG(t *testing.T) {
	t.Parallel()

	page, err := Process(gradient(50, 40), 2, Options{MaxWidth: 600, MaxHeight: 600, Quality: 10, Format: PNG})
	require.NoError(t, err)

	_, err = png.Decode(bytes.NewReader(page.Data))
	require.NoError(t, err)
	assert.Equal(t, "image/png", page.ContentType)
	assert.Equal(t, "page2.png", page.Filename())
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	valid := Options{MaxWidth: 600, MaxHeight: 600, Quality: 75, Format: JPEG}
	assert.NoError(t, valid.Validate())

	for _, bad := range []Options{
		{MaxWidth: 0, MaxHeight: 600, Quality: 75, Format: JPEG},
		{MaxWidth: 600, MaxHeight: 600, Quality: 9, Format: JPEG},
		{MaxWidth: 600, MaxHeight: 600, Quality: 101, Format: JPEG},
		{MaxWidth: 600, MaxHeight: 600, Quality: 75, Format: "gif"},
	} {
		assert.ErrorIs(t, bad.Validate(), ErrInvalidOptions, "%+v", bad)
	}
}

func TestProcessAll_KeepsOrder(t *testing.T) {
	t.Parallel()

	imgs := []image.Image{gradient(100, 50), gradient(60, 120), gradient(30, 30), gradient(700, 70)}
	pages, err := ProcessAll(context.Background(), imgs, Options{MaxWidth: 600, MaxHeight: 600, Quality: 75, Format: JPEG})
	require.NoError(t, err)
	require.Len(t, pages, 4)

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 100, pages[0].Width)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, 120, pages[1].Height)
	assert.Equal(t, 3, pages[2].Number)
	assert.Equal(t, 4, pages[3].Number)
	assert.Equal(t, 600, pages[3].Width)
}

func TestProcessAll_InvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := ProcessAll(context.Background(), []image.Image{gradient(10, 10)}, Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("JPG")
	require.NoError(t, err)
	assert.Equal(t, JPEG, f)

	f, err = ParseFormat("png")
	require.NoError(t, err)
	assert.Equal(t, PNG, f)

	_, err = ParseFormat("tiff")
	assert.Error(t, err)
}
