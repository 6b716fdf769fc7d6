// Package retrieval keeps one document's text and image embeddings side by
// side, answers queries against both, and turns text hits into a
// page-ordered context for the generator.
package retrieval

import "errors"

var (
	// ErrLengthMismatch is returned by Ingest when metadata and vector batches differ in length.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrStaleReference means an index returned a position that has no
	// metadata behind it. The store never lets this happen on its own, so
	// seeing it indicates a broken index backend.
	ErrStaleReference = errors.New("stale reference")
)

// BBox is a block's bounding box on its page: x0, y0, x1, y1.
type BBox [4]float64

// Y0 returns the top edge of the box.
func (b BBox) Y0() float64 {
	return b[1]
}

// TextChunk is one extracted text block.
type TextChunk struct {
	Text string `json:"text"`
	Page int    `json:"page"` // 1-based
	BBox BBox   `json:"bbox"`
}

// ImageRecord points at an image extracted from the document.
// Page is 0-based, unlike TextChunk.Page.
type ImageRecord struct {
	Path string `json:"path"`
	Page int    `json:"page"`
	BBox BBox   `json:"bbox"`
}

// TextHit is a text search result.
type TextHit struct {
	Position int
	Distance float32
	Chunk    TextChunk
}

// ImageHit is an image search result.
type ImageHit struct {
	Position int
	Distance float32
	Record   ImageRecord
}

// Result holds the hits of both modalities, each nearest first.
type Result struct {
	Text   []TextHit
	Images []ImageHit
}

// Chunks returns the text hits' chunks in ranking order.
func (r *Result) Chunks() []TextChunk {
	out := make([]TextChunk, len(r.Text))
	for i, h := range r.Text {
		out[i] = h.Chunk
	}
	return out
}

// Records returns the image hits' records in ranking order.
func (r *Result) Records() []ImageRecord {
	out := make([]ImageRecord, len(r.Images))
	for i, h := range r.Images {
		out[i] = h.Record
	}
	return out
}

// Stats reports how much data the store holds.
type Stats struct {
	TextDim    int
	ImageDim   int
	TextCount  int
	ImageCount int
}
