package retrieval

import (
	"fmt"
	"sync"

	"github.com/perbu/omniquery/pkg/vectorindex"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIndexFactory swaps the index backend used for both modalities.
func WithIndexFactory(f vectorindex.Factory) StoreOption {
	return func(s *Store) {
		s.factory = f
	}
}

// Store owns a text index, an image index and the metadata behind their
// positions. It holds exactly one document at a time.
type Store struct {
	mu       sync.RWMutex
	factory  vectorindex.Factory
	textDim  int
	imageDim int

	textIndex  vectorindex.Index
	imageIndex vectorindex.Index
	chunks     []TextChunk
	images     []ImageRecord
}

// NewStore creates an empty store with fixed per-modality dimensions.
func NewStore(textDim, imageDim int, opts ...StoreOption) (*Store, error) {
	s := &Store{
		factory:  vectorindex.FlatFactory,
		textDim:  textDim,
		imageDim: imageDim,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.textIndex, err = s.factory(textDim); err != nil {
		return nil, fmt.Errorf("text index: %w", err)
	}
	if s.imageIndex, err = s.factory(imageDim); err != nil {
		return nil, fmt.Errorf("image index: %w", err)
	}
	return s, nil
}

// Ingest replaces the store's contents with a new document. Both indexes
// are built before anything is swapped in, so a failure in either modality
// leaves the previous document fully in place and queries never see a
// half-replaced store.
func (s *Store) Ingest(chunks []TextChunk, textVecs [][]float32, images []ImageRecord, imageVecs [][]float32) error {
	if len(chunks) != len(textVecs) {
		return fmt.Errorf("%w: %d text chunks, %d text vectors", ErrLengthMismatch, len(chunks), len(textVecs))
	}
	if len(images) != len(imageVecs) {
		return fmt.Errorf("%w: %d images, %d image vectors", ErrLengthMismatch, len(images), len(imageVecs))
	}

	textIndex, err := s.build(s.textDim, textVecs)
	if err != nil {
		return fmt.Errorf("text index: %w", err)
	}
	imageIndex, err := s.build(s.imageDim, imageVecs)
	if err != nil {
		return fmt.Errorf("image index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.textIndex = textIndex
	s.imageIndex = imageIndex
	s.chunks = append([]TextChunk(nil), chunks...)
	s.images = append([]ImageRecord(nil), images...)
	return nil
}

func (s *Store) build(dim int, vecs [][]float32) (vectorindex.Index, error) {
	idx, err := s.factory(dim)
	if err != nil {
		return nil, err
	}
	idx.Reset()
	if err := idx.Add(vecs); err != nil {
		return nil, err
	}
	return idx, nil
}

// Reset clears both modalities. Dimensions are kept.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.textIndex.Reset()
	s.imageIndex.Reset()
	s.chunks = nil
	s.images = nil
}

// Stats returns dimensions and counts for both modalities.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		TextDim:    s.textDim,
		ImageDim:   s.imageDim,
		TextCount:  len(s.chunks),
		ImageCount: len(s.images),
	}
}
