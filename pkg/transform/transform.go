package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"

	_ "image/gif" // decode-only support for uploaded GIFs
)

// Transform is the C9 façade: it turns original image bytes into a
// derivative according to Params. It is an interface so a deployment can
// substitute a codec-backed implementation (e.g. libvips) without the
// coordinator knowing the difference; Default provides a stdlib-only
// implementation sufficient for JPEG/PNG round-tripping and basic resize.
type Transform interface {
	// Apply reads the original from src and writes the encoded derivative
	// to dst. It returns the number of bytes written. If p.IsOriginal(),
	// Apply copies src to dst unchanged (still subject to StripMetadata,
	// which for the original transform is a no-op since Original() exists
	// purely to mean "no transform").
	Apply(ctx context.Context, src io.Reader, dst io.Writer, p Params) (int64, error)
}

// Default is the stdlib-backed Transform: image/jpeg and image/png for
// decode/encode, hand-written nearest-neighbour scaling for resize (no
// external resize library is available anywhere in the example corpus,
// so this is deliberately simple — good enough for thumbnails, not a
// photographic-quality resampler). Apply reads MaxWidth, MaxHeight,
// Format and the Sharpen/Equalise flags; it does not read Thumbnail,
// StripMetadata, LiquidRescale or CutinRatio.
type Default struct{}

var _ Transform = Default{}

func (Default) Apply(ctx context.Context, src io.Reader, dst io.Writer, p Params) (int64, error) {
	if p.IsOriginal() {
		n, err := io.Copy(dst, src)
		if err != nil {
			return n, fmt.Errorf("transform: copy original: %w", err)
		}
		return n, nil
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return 0, fmt.Errorf("transform: decode source: %w", err)
	}

	img = resizeToFit(img, p.MaxWidth, p.MaxHeight)

	if p.Enhance.Sharpen {
		img = sharpen(img)
	}
	if p.Enhance.Equalise {
		img = equalise(img)
	}

	var buf bytes.Buffer
	if err := encode(&buf, img, p.Format); err != nil {
		return 0, err
	}

	n, err := dst.Write(buf.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("transform: write derivative: %w", err)
	}
	return int64(n), nil
}

func encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatJPEG, "":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case FormatPNG:
		return png.Encode(w, img)
	default:
		// TIFF/MIFF have no stdlib encoder; a real deployment swaps in a
		// codec-backed Transform for those formats.
		return fmt.Errorf("transform: format %q not supported by default transform", f)
	}
}

// resizeToFit scales img so it fits within maxW x maxH, preserving aspect
// ratio. A zero bound on either axis leaves that axis unconstrained. If
// both bounds are zero or already satisfied, img is returned unchanged.
func resizeToFit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	scale := 1.0
	if maxW > 0 && w > maxW {
		s := float64(maxW) / float64(w)
		if s < scale {
			scale = s
		}
	}
	if maxH > 0 && h > maxH {
		s := float64(maxH) / float64(h)
		if s < scale {
			scale = s
		}
	}
	if scale >= 1.0 {
		return img
	}

	newW := maxInt(1, int(float64(w)*scale))
	newH := maxInt(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		srcY := b.Min.Y + y*h/newH
		for x := 0; x < newW; x++ {
			srcX := b.Min.X + x*w/newW
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}

// sharpen is a placeholder like equalise: it only normalizes the color
// model to RGBA and leaves pixel values untouched; no sharpening
// convolution is applied.
func sharpen(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// equalise is a placeholder histogram-equalisation pass; stdlib has no
// histogram primitives, so this currently only normalizes the color model
// to RGBA and leaves pixel values untouched. Real equalisation needs a
// codec-backed Transform.
func equalise(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
