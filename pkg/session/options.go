package session

import (
	"go.uber.org/zap"

	"github.com/perbu/omniquery/internal/metrics"
	"github.com/perbu/omniquery/pkg/embedder"
	"github.com/perbu/omniquery/pkg/generator"
	"github.com/perbu/omniquery/pkg/vectorindex"
)

// Option configures a Session.
type Option func(*Session)

// WithImageEmbedder enables image retrieval.
func WithImageEmbedder(e embedder.ImageEmbedder) Option {
	return func(s *Session) { s.image = e }
}

// WithDescriber replaces the default image describer.
func WithDescriber(d Describer) Option {
	return func(s *Session) {
		if d != nil {
			s.describer = d
		}
	}
}

// WithGenerator sets the answer generator used by Ask.
func WithGenerator(g generator.Generator) Option {
	return func(s *Session) { s.gen = g }
}

// WithIndexFactory sets the vector index backend.
func WithIndexFactory(f vectorindex.Factory) Option {
	return func(s *Session) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithTopK sets how many hits each modality returns. Non-positive values
// are ignored.
func WithTopK(k int) Option {
	return func(s *Session) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithQueryFusion searches with both the raw and the enhanced question
// and fuses the text rankings with RRF using constant k.
func WithQueryFusion(enabled bool, k float64) Option {
	return func(s *Session) {
		s.fuseQueries = enabled
		if k > 0 {
			s.rrfK = k
		}
	}
}
