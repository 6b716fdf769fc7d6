// Package session ties the pipeline together for one uploaded document:
// embedding, storage, retrieval, context assembly and answer generation,
// plus the conversation history.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/perbu/omniquery/internal/logging"
	"github.com/perbu/omniquery/internal/metrics"
	"github.com/perbu/omniquery/pkg/embedder"
	"github.com/perbu/omniquery/pkg/generator"
	"github.com/perbu/omniquery/pkg/imagedesc"
	"github.com/perbu/omniquery/pkg/rankfusion"
	"github.com/perbu/omniquery/pkg/retrieval"
	"github.com/perbu/omniquery/pkg/vectorindex"
)

var (
	// ErrNoDocument is returned when asking before any document was ingested.
	ErrNoDocument = errors.New("no document ingested")

	// ErrNoGenerator is returned by Ask when the session has no generator.
	ErrNoGenerator = errors.New("no generator configured")
)

// Pipeline stage labels.
const (
	stageEmbed    = "embed"
	stageIngest   = "ingest"
	stageSearch   = "search"
	stageDescribe = "describe"
	stageGenerate = "generate"
)

// Describer produces prompt descriptions for image files.
type Describer interface {
	Describe(ctx context.Context, paths []string) []imagedesc.Image
}

// Document is one extracted PDF.
type Document struct {
	Text   []retrieval.TextChunk
	Images []retrieval.ImageRecord
}

// IngestReport summarises an Ingest call.
type IngestReport struct {
	TextChunks    int
	Images        int
	SkippedImages int
	Duration      time.Duration
}

// Retrieval is the outcome of searching the current document.
type Retrieval struct {
	Question  string
	Result    *retrieval.Result
	Assembled retrieval.Assembled
}

// Answer is a generated reply together with what it was based on.
type Answer struct {
	Question string
	Text     string
	Sources  []retrieval.PageText
	Images   []retrieval.ImageRecord
}

// Session holds one document at a time and the conversation about it.
// Ingest replaces the document; the history survives replacements.
type Session struct {
	id uuid.UUID

	text      embedder.TextEmbedder
	image     embedder.ImageEmbedder
	describer Describer
	gen       generator.Generator
	factory   vectorindex.Factory
	logger    *zap.Logger
	metrics   *metrics.Metrics

	topK        int
	rrfK        float64
	fuseQueries bool

	// mu guards store and serialises swaps against in-flight retrievals.
	mu    sync.RWMutex
	store *retrieval.Store

	histMu  sync.Mutex
	history []Message
}

// New creates a session that embeds text with text. Image retrieval is
// enabled with WithImageEmbedder.
func New(text embedder.TextEmbedder, opts ...Option) *Session {
	s := &Session{
		id:        uuid.New(),
		text:      text,
		describer: imagedesc.New(),
		factory:   vectorindex.FlatFactory,
		logger:    zap.NewNop(),
		topK:      vectorindex.DefaultK,
		rrfK:      rankfusion.DefaultK,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).With(zap.String("session", s.id.String()))
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id.String()
}

// Ingest embeds doc and makes it the session's document. Text and images
// are embedded concurrently. Images the image embedder cannot read are
// dropped; the rest keep their records. On error the previous document
// stays in place.
func (s *Session) Ingest(ctx context.Context, doc Document) (report *IngestReport, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.IngestsTotal.WithLabelValues(metrics.Status(err)).Inc()
			s.metrics.StageDuration.WithLabelValues(stageIngest).Observe(time.Since(start).Seconds())
		}
	}()

	texts := make([]string, len(doc.Text))
	for i, c := range doc.Text {
		texts[i] = c.Text
	}
	paths := make([]string, len(doc.Images))
	for i, img := range doc.Images {
		paths[i] = img.Path
	}

	textVecs := [][]float32{}
	imageVecs := [][]float32{}
	var kept []int

	g, gctx := errgroup.WithContext(ctx)
	if len(texts) > 0 {
		g.Go(func() error {
			v, err := s.text.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed text: %w", err)
			}
			textVecs = v
			return nil
		})
	}
	if s.image != nil && len(paths) > 0 {
		g.Go(func() error {
			v, k, err := s.image.EmbedImages(gctx, paths)
			if err != nil {
				return fmt.Errorf("embed images: %w", err)
			}
			imageVecs, kept = v, k
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(kept) != len(imageVecs) {
		return nil, fmt.Errorf("embed images: %d vectors for %d kept images", len(imageVecs), len(kept))
	}
	images := make([]retrieval.ImageRecord, 0, len(kept))
	for _, i := range kept {
		if i < 0 || i >= len(doc.Images) {
			return nil, fmt.Errorf("embed images: kept index %d out of range", i)
		}
		images = append(images, doc.Images[i])
	}

	skipped := 0
	if s.image != nil {
		skipped = len(doc.Images) - len(images)
	} else if len(doc.Images) > 0 {
		s.logger.Debug("image retrieval disabled, ignoring images", zap.Int("images", len(doc.Images)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store := s.store
	if store == nil {
		store, err = retrieval.NewStore(
			dimOf(textVecs, s.text.Dimension()),
			dimOf(imageVecs, s.imageDim()),
			retrieval.WithIndexFactory(s.factory),
		)
		if err != nil {
			return nil, fmt.Errorf("create store: %w", err)
		}
	}

	// A store is only published once it holds a document.
	if err := store.Ingest(doc.Text, textVecs, images, imageVecs); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	s.store = store

	report = &IngestReport{
		TextChunks:    len(doc.Text),
		Images:        len(images),
		SkippedImages: skipped,
		Duration:      time.Since(start),
	}

	if s.metrics != nil {
		s.metrics.SkippedImagesTotal.Add(float64(skipped))
		s.metrics.IndexedVectors.WithLabelValues(metrics.ModalityText).Set(float64(len(textVecs)))
		s.metrics.IndexedVectors.WithLabelValues(metrics.ModalityImage).Set(float64(len(imageVecs)))
	}

	s.logger.Info("document ingested",
		zap.Int("text_chunks", report.TextChunks),
		zap.Int("images", report.Images),
		zap.Int("skipped_images", report.SkippedImages),
		zap.Duration("took", report.Duration))

	return report, nil
}

// Reset drops the current document. The history is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		s.store.Reset()
	}
}

// Stats reports what the current document holds.
func (s *Session) Stats() (retrieval.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return retrieval.Stats{}, ErrNoDocument
	}
	return s.store.Stats(), nil
}

// imageDim is the image index dimension used when the first document
// brings no image vectors.
func (s *Session) imageDim() int {
	if s.image != nil {
		return s.image.Dimension()
	}
	return s.text.Dimension()
}

func dimOf(vecs [][]float32, fallback int) int {
	if len(vecs) > 0 && len(vecs[0]) > 0 {
		return len(vecs[0])
	}
	return fallback
}

func (s *Session) observe(stage string, start time.Time) {
	if s.metrics != nil {
		s.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
