package retrieval

import (
	"fmt"
)

// Query searches both modalities and resolves hit positions to metadata.
// A nil imageQuery skips the image modality. Hits come back nearest
// first, which is not page order; use Assemble to get a readable context.
func (s *Store) Query(textQuery, imageQuery []float32, k int) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := &Result{
		Text:   []TextHit{},
		Images: []ImageHit{},
	}

	hits, err := s.textIndex.Search(textQuery, k)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(s.chunks) {
			return nil, fmt.Errorf("%w: text position %d, %d chunks stored",
				ErrStaleReference, h.Position, len(s.chunks))
		}
		res.Text = append(res.Text, TextHit{
			Position: h.Position,
			Distance: h.Distance,
			Chunk:    s.chunks[h.Position],
		})
	}

	if imageQuery == nil {
		return res, nil
	}

	hits, err = s.imageIndex.Search(imageQuery, k)
	if err != nil {
		return nil, fmt.Errorf("image search: %w", err)
	}
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(s.images) {
			return nil, fmt.Errorf("%w: image position %d, %d images stored",
				ErrStaleReference, h.Position, len(s.images))
		}
		res.Images = append(res.Images, ImageHit{
			Position: h.Position,
			Distance: h.Distance,
			Record:   s.images[h.Position],
		})
	}

	return res, nil
}

// SearchText runs a text-only search and returns hit positions. It is the
// building block for fusing several query variants.
func (s *Store) SearchText(query []float32, k int) ([]TextHit, error) {
	res, err := s.Query(query, nil, k)
	if err != nil {
		return nil, err
	}
	return res.Text, nil
}

// ChunkAt returns the text chunk stored at pos.
func (s *Store) ChunkAt(pos int) (TextChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pos < 0 || pos >= len(s.chunks) {
		return TextChunk{}, fmt.Errorf("%w: text position %d, %d chunks stored",
			ErrStaleReference, pos, len(s.chunks))
	}
	return s.chunks[pos], nil
}
