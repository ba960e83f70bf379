// internal/app/system/imaging/imaging.go
//
// Package imaging validates uploaded pictures against a Policy and turns
// them into a normalized JPEG plus a thumbnail.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"mime"
	"slices"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxBytes      = 5 << 20
	DefaultMinDimension  = 64
	DefaultMaxDimension  = 4096
	DefaultThumbnailSize = 150

	// OutputType is the mime type of everything Process produces.
	OutputType = "image/jpeg"

	fullQuality  = 90
	thumbQuality = 80
)

// DefaultAllowedTypes are the mime types accepted for upload.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// ValidationError reports an upload that breaks the policy. It is the
// caller's input that is wrong; it must not be retried as is.
type ValidationError struct {
	Field  string // "size", "type", "dimensions" or "image"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Policy holds the upload limits.
type Policy struct {
	MaxBytes     int64
	MinDimension int // both width and height must be at least this
	MaxDimension int // neither width nor height may exceed this
	AllowedTypes []string
}

// DefaultPolicy returns the limits used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:     DefaultMaxBytes,
		MinDimension: DefaultMinDimension,
		MaxDimension: DefaultMaxDimension,
		AllowedTypes: DefaultAllowedTypes,
	}
}

// Info describes a decoded image header.
type Info struct {
	MimeType string
	Width    int
	Height   int
}

// Inspect reads the image header without decoding pixels.
func Inspect(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, &ValidationError{Field: "image", Reason: "unrecognized or damaged image"}
	}
	return Info{MimeType: "image/" + format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Validate checks data against the policy. The size ceiling is checked
// before anything is decoded. The declared mime type must be allowed and
// must match the detected format.
func (p Policy) Validate(data []byte, mimeType string) (Info, error) {
	if len(data) == 0 {
		return Info{}, &ValidationError{Field: "size", Reason: "file is empty"}
	}
	if p.MaxBytes > 0 && int64(len(data)) > p.MaxBytes {
		return Info{}, &ValidationError{
			Field:  "size",
			Reason: fmt.Sprintf("%d bytes exceeds the limit of %d bytes", len(data), p.MaxBytes),
		}
	}

	declared := NormalizeType(mimeType)
	if !p.allows(declared) {
		return Info{}, &ValidationError{Field: "type", Reason: fmt.Sprintf("%q is not an allowed image type", mimeType)}
	}

	info, err := Inspect(data)
	if err != nil {
		return Info{}, err
	}
	if info.MimeType != declared {
		return Info{}, &ValidationError{
			Field:  "type",
			Reason: fmt.Sprintf("content is %s but was declared as %s", info.MimeType, declared),
		}
	}

	if info.Width < p.MinDimension || info.Height < p.MinDimension {
		return Info{}, &ValidationError{
			Field:  "dimensions",
			Reason: fmt.Sprintf("%dx%d is smaller than %dx%d", info.Width, info.Height, p.MinDimension, p.MinDimension),
		}
	}
	if p.MaxDimension > 0 && (info.Width > p.MaxDimension || info.Height > p.MaxDimension) {
		return Info{}, &ValidationError{
			Field:  "dimensions",
			Reason: fmt.Sprintf("%dx%d is larger than %dx%d", info.Width, info.Height, p.MaxDimension, p.MaxDimension),
		}
	}
	return info, nil
}

func (p Policy) allows(mimeType string) bool {
	allowed := p.AllowedTypes
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	return slices.Contains(allowed, mimeType)
}

// NormalizeType lowercases a mime type and drops its parameters.
// "image/jpg" is folded into "image/jpeg".
func NormalizeType(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if mt == "image/jpg" || mt == "image/pjpeg" {
		mt = "image/jpeg"
	}
	return mt
}

// Result is a processed picture.
type Result struct {
	Full      []byte // normalized JPEG at the original size
	Thumbnail []byte // JPEG fitted into a square of the thumbnail size
	Width     int
	Height    int
}

// Pipeline validates and processes uploads.
type Pipeline struct {
	Policy        Policy
	ThumbnailSize int
}

// NewPipeline returns a Pipeline with defaults filled in.
func NewPipeline(policy Policy, thumbnailSize int) *Pipeline {
	if policy.MaxBytes <= 0 {
		policy.MaxBytes = DefaultMaxBytes
	}
	if policy.MinDimension <= 0 {
		policy.MinDimension = DefaultMinDimension
	}
	if policy.MaxDimension <= 0 {
		policy.MaxDimension = DefaultMaxDimension
	}
	if thumbnailSize <= 0 {
		thumbnailSize = DefaultThumbnailSize
	}
	return &Pipeline{Policy: policy, ThumbnailSize: thumbnailSize}
}

// Validate applies the pipeline's policy.
func (p *Pipeline) Validate(data []byte, mimeType string) (Info, error) {
	return p.Policy.Validate(data, mimeType)
}

// Process decodes data and re-encodes it as a JPEG plus a thumbnail.
// Transparent areas are flattened onto white.
func (p *Pipeline) Process(data []byte) (Result, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, &ValidationError{Field: "image", Reason: "unrecognized or damaged image"}
	}

	full := flatten(src)
	b := full.Bounds()

	fullJPEG, err := encodeJPEG(full, fullQuality)
	if err != nil {
		return Result{}, err
	}

	tw, th := fit(b.Dx(), b.Dy(), p.ThumbnailSize)
	thumb := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), full, b, draw.Src, nil)

	thumbJPEG, err := encodeJPEG(thumb, thumbQuality)
	if err != nil {
		return Result{}, err
	}

	return Result{Full: fullJPEG, Thumbnail: thumbJPEG, Width: b.Dx(), Height: b.Dy()}, nil
}

func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales w x h to fit inside a size x size square, keeping the aspect
// ratio. Images already inside the square are not enlarged.
func fit(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return w, h
	}
	if w >= h {
		return size, max(1, h*size/w)
	}
	return max(1, w*size/h), size
}
