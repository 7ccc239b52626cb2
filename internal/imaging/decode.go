// Package imaging decodes uploaded camera frames.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	// Registered with image.Decode.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes caps a single frame upload.
const DefaultMaxBytes = 8 << 20

// DefaultMaxPixels caps the decoded size of a frame; 4096x4096 covers 4K cameras.
const DefaultMaxPixels = 4096 * 4096

// Sentinel errors for frame decoding.
var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrTooLarge      = errors.New("frame too large")
	ErrTooManyPixels = errors.New("frame dimensions too large")
)

// DecodeError reports a frame that could not be turned into an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode frame: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns encoded bytes into an image, returning the format name.
// Every failure is a *DecodeError.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimit(data, DefaultMaxPixels)
}

// DecodeLimit is Decode with an explicit pixel budget. The header is checked
// before any pixel data is allocated.
func DecodeLimit(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Err: ErrEmptyFrame}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", &DecodeError{Err: ErrEmptyFrame}
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", &DecodeError{Err: fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", &DecodeError{Err: ErrEmptyFrame}
	}
	return img, format, nil
}

// ReadLimited reads at most maxBytes from r; longer input is a *DecodeError wrapping ErrTooLarge.
func ReadLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, &DecodeError{Err: ErrTooLarge}
	}
	return data, nil
}

// EncodeJPEG re-encodes img for transport to a landmark model.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
