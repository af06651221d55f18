// Package transform defines TransformParams, the canonical DerivativeKey
// encoding, and the Transform façade that turns original image bytes plus
// params into a ready-to-serve derivative.
package transform

import (
	"fmt"
)

// Format names an output image format. The set is open at the config
// layer (image_default_format / thumbnail_default_format name one of
// these), but the service only ever emits the formats it knows how to
// encode.
type Format string

const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatTIFF Format = "tiff"
	FormatMIFF Format = "miff"
)

// ValidFormat reports whether f is a format this service can encode.
func ValidFormat(f Format) bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatTIFF, FormatMIFF:
		return true
	default:
		return false
	}
}

// Enhance groups the thumbnail-enhancement knobs from spec.md §3.
type Enhance struct {
	Equalise bool
	Sharpen  bool

	// LiquidRescale enables content-aware (seam-carving style) resize when
	// the source-to-target aspect ratio mismatch exceeds CutinRatio;
	// otherwise a standard letterbox resize is used.
	LiquidRescale bool
	CutinRatio    float64
}

// Params is the TransformParams value record. The zero value is NOT the
// distinguished "original" request — use Original() for that, since a
// zero Params with StripMetadata=false would be ambiguous with an
// explicit no-strip request.
type Params struct {
	MaxWidth  int // 0 = unconstrained
	MaxHeight int // 0 = unconstrained
	Format    Format
	Thumbnail bool
	Enhance   Enhance

	// StripMetadata defaults to true per spec.md §3; Original() sets it
	// true as well, since stripping only governs derivative hygiene, not
	// whether a transform runs at all.
	StripMetadata bool

	// original marks the distinguished ∅ value: "no transform, deliver as
	// uploaded". It is unexported so only Original() can produce it, and
	// IsOriginal() is the only way to observe it.
	original bool
}

// Original returns the distinguished ∅ TransformParams value: deliver the
// upload as-is, no resize/reformat/thumbnail.
func Original() Params {
	return Params{StripMetadata: true, original: true}
}

// IsOriginal reports whether p is the ∅ "no transform" request.
func (p Params) IsOriginal() bool {
	return p.original
}

// WithDefaults returns a copy of p with StripMetadata forced true and an
// empty Format set to defaultFormat, unless p is already the
// distinguished original value (which carries its own semantics).
// spec.md §3: strip_metadata defaults to true.
func (p Params) WithDefaults(defaultFormat Format) Params {
	if p.original {
		return p
	}
	out := p
	out.StripMetadata = true
	if out.Format == "" {
		out.Format = defaultFormat
	}
	return out
}

// String renders Params for diagnostics; it is NOT the DerivativeKey
// encoding (see Key, below), just a human-readable summary.
func (p Params) String() string {
	if p.original {
		return "∅"
	}
	return fmt.Sprintf("{w=%d h=%d fmt=%s thumb=%v strip=%v}",
		p.MaxWidth, p.MaxHeight, p.Format, p.Thumbnail, p.StripMetadata)
}
