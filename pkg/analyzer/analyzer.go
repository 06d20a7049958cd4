// Package analyzer decodes and encodes page rasters and reports basic image
// facts (dimensions, channel count) used for validation and result records.
package analyzer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/page-rectifier/pkg/failure"
)

// ImageAnalyzer loads, saves and inspects images
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the codec
type Config struct {
	DefaultQuality   int      `json:"default_quality" yaml:"default_quality"`
	SupportedFormats []string `json:"supported_formats" yaml:"supported_formats"`
	MinImageSize     int      `json:"min_image_size" yaml:"min_image_size"`
}

// DefaultConfig returns the codec defaults: high JPEG quality so re-encoding
// scans does not compound artifacts.
func DefaultConfig() Config {
	return Config{
		DefaultQuality:   95,
		SupportedFormats: []string{"jpeg", "png", "tiff", "bmp", "webp"},
		MinImageSize:     64,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// LoadImage loads an image from file
func (a *ImageAnalyzer) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.New(failure.IO, "open image", err)
	}

	img, err := a.LoadImageFromReader(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}

	// Some WebP variants are only understood by libwebp.
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
			return wimg, nil
		}
	}
	return nil, err
}

// LoadImageFromReader loads an image from an io.Reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	img, format, err := image.Decode(reader)
	if err != nil {
		return nil, failure.New(failure.IO, "decode image", err)
	}

	if !a.isFormatSupported(format) {
		return nil, failure.Newf(failure.IO, "decode image", "unsupported image format: %s", format)
	}

	return img, nil
}

// SaveImage saves an image to file; the encoder is chosen by extension.
// The file handle is always closed, and a partially written file is removed
// when encoding fails.
func (a *ImageAnalyzer) SaveImage(img image.Image, path string) (err error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !IsEncodable(ext) {
		return failure.Newf(failure.Configuration, "save image", "unsupported output format: %s", ext)
	}

	file, err := os.Create(path)
	if err != nil {
		return failure.New(failure.IO, "create output file", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = failure.New(failure.IO, "close output file", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if err := a.encode(file, img, ext); err != nil {
		return failure.New(failure.IO, "encode "+ext, err)
	}
	return nil
}

func (a *ImageAnalyzer) encode(w io.Writer, img image.Image, ext string) error {
	switch ext {
	case "jpg", "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(a.config.DefaultQuality))
	case "png":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		return enc.Encode(w, img)
	case "tif", "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: true, Quality: float32(a.config.DefaultQuality)})
	default:
		return fmt.Errorf("unsupported output format: %s", ext)
	}
}

// SaveWithRetry saves img and retries IO failures up to retries more times.
// Other failures, such as an unsupported format, are returned at once. The
// number of attempts made is returned alongside the last error.
func (a *ImageAnalyzer) SaveWithRetry(img image.Image, path string, retries int) (int, error) {
	attempts := 0
	var err error
	for attempts <= retries {
		attempts++
		if err = a.SaveImage(img, path); err == nil {
			return attempts, nil
		}
		if !failure.Is(err, failure.IO) {
			break
		}
	}
	return attempts, err
}

// IsEncodable reports whether SaveImage can write format (an extension
// without the dot).
func IsEncodable(format string) bool {
	switch strings.ToLower(format) {
	case "jpg", "jpeg", "png", "tif", "tiff", "webp":
		return true
	}
	return false
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:    width,
		Height:   height,
		Area:     width * height,
		Channels: Channels(img),
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
	Channels    int
}

// Channels returns 1 for single-channel rasters and 3 for color ones. Alpha
// is not counted.
func Channels(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	default:
		return 3
	}
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
		if strings.EqualFold(supported, "jpg") && strings.EqualFold(format, "jpeg") {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return failure.Newf(failure.IO, "validate image", "image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

// Quality returns the configured lossy encoding quality.
func (a *ImageAnalyzer) Quality() int {
	return a.config.DefaultQuality
}
