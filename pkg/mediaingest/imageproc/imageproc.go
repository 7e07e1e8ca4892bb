// Package imageproc implements mediaingest.VariantGenerator on top of
// disintegration/imaging.
package imageproc

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/tendant/simple-media/pkg/mediaingest"
	_ "golang.org/x/image/webp" // decode-only WebP support
)

// DefaultJPEGQuality is used when no quality is configured
const DefaultJPEGQuality = 85

var contentTypes = map[imaging.Format]string{
	imaging.JPEG: "image/jpeg",
	imaging.PNG:  "image/png",
	imaging.GIF:  "image/gif",
	imaging.TIFF: "image/tiff",
	imaging.BMP:  "image/bmp",
}

// Generator resizes images on local disk.
type Generator struct {
	jpegQuality int
	filter      imaging.ResampleFilter
}

// Option configures a Generator
type Option func(*Generator)

// WithJPEGQuality sets the JPEG encoder quality (1-100)
func WithJPEGQuality(quality int) Option {
	return func(g *Generator) {
		if quality >= 1 && quality <= 100 {
			g.jpegQuality = quality
		}
	}
}

// WithFilter sets the resampling filter; Lanczos by default
func WithFilter(filter imaging.ResampleFilter) Option {
	return func(g *Generator) {
		g.filter = filter
	}
}

// New creates a new Generator
func New(opts ...Option) *Generator {
	g := &Generator{
		jpegQuality: DefaultJPEGQuality,
		filter:      imaging.Lanczos,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ mediaingest.VariantGenerator = (*Generator)(nil)

// Probe returns the dimensions of the source after EXIF orientation is applied
func (g *Generator) Probe(srcPath string) (int, int, error) {
	img, err := open(srcPath)
	if err != nil {
		return 0, 0, err
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

// Generate fits the source within longEdge x longEdge. Sources that already fit
// are written at their own size.
func (g *Generator) Generate(srcPath, dstPath string, longEdge int) (mediaingest.VariantResult, error) {
	if longEdge <= 0 {
		return mediaingest.VariantResult{}, fmt.Errorf("long edge must be positive, got %d", longEdge)
	}
	img, err := open(srcPath)
	if err != nil {
		return mediaingest.VariantResult{}, err
	}

	resized := imaging.Fit(img, longEdge, longEdge, g.filter)
	return g.save(resized, dstPath)
}

// Normalize writes the orientation-corrected source at full size
func (g *Generator) Normalize(srcPath, dstPath string) (mediaingest.VariantResult, error) {
	img, err := open(srcPath)
	if err != nil {
		return mediaingest.VariantResult{}, err
	}
	return g.save(img, dstPath)
}

func open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// save encodes by destination extension, falling back to JPEG for extensions
// imaging cannot write (webp, heic, none).
func (g *Generator) save(img image.Image, dstPath string) (mediaingest.VariantResult, error) {
	format, err := imaging.FormatFromFilename(dstPath)
	if err != nil {
		format = imaging.JPEG
	}

	file, err := os.Create(dstPath)
	if err != nil {
		return mediaingest.VariantResult{}, fmt.Errorf("create output: %w", err)
	}
	defer file.Close()

	if err := imaging.Encode(file, img, format, imaging.JPEGQuality(g.jpegQuality)); err != nil {
		return mediaingest.VariantResult{}, fmt.Errorf("encode %s: %w", format, err)
	}
	if err := file.Close(); err != nil {
		return mediaingest.VariantResult{}, fmt.Errorf("close output: %w", err)
	}

	info, err := os.Stat(dstPath)
	if err != nil {
		return mediaingest.VariantResult{}, fmt.Errorf("stat output: %w", err)
	}

	bounds := img.Bounds()
	return mediaingest.VariantResult{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		SizeBytes:   info.Size(),
		ContentType: contentTypes[format],
	}, nil
}
