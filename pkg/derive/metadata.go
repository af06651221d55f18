package derive

// Metadata is the structured subset of embedded image metadata returned
// by Meta (spec.md §4.4): "a structured subset of embedded image
// metadata as a JSON-able record. Does not strip." A real deployment
// backs this with an EXIF/IPTC reader; this type defines the shape the
// coordinator promises to its callers.
type Metadata struct {
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Format      string            `json:"format"`
	SizeBytes   int64             `json:"size_bytes"`
	ExtraFields map[string]string `json:"extra_fields,omitempty"`
}
