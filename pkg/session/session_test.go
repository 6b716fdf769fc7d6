package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/omniquery/internal/metrics"
	"github.com/perbu/omniquery/pkg/embedder"
	"github.com/perbu/omniquery/pkg/imagedesc"
	"github.com/perbu/omniquery/pkg/retrieval"
)

// countingEmbedder wraps SimpleEmbedder and records single-text calls.
type countingEmbedder struct {
	*embedder.SimpleEmbedder
	mu    sync.Mutex
	texts []string
	err   error
}

func newCounting(dim int) *countingEmbedder {
	return &countingEmbedder{SimpleEmbedder: embedder.NewSimpleEmbedder(dim)}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	return c.SimpleEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.SimpleEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

// fakeImages embeds paths in a 2-d space and skips paths containing "bad".
type fakeImages struct{}

func (fakeImages) EmbedImages(_ context.Context, paths []string) ([][]float32, []int, error) {
	vecs := [][]float32{}
	kept := []int{}
	for i, p := range paths {
		if strings.Contains(p, "bad") {
			continue
		}
		vecs = append(vecs, []float32{float32(len(vecs)), 0})
		kept = append(kept, i)
	}
	return vecs, kept, nil
}

func (fakeImages) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{0, 0}, nil
}

func (fakeImages) Dimension() int { return 2 }

// wideImages reports a smaller dimension than the text queries it embeds.
type wideImages struct{}

func (wideImages) EmbedImages(context.Context, []string) ([][]float32, []int, error) {
	return [][]float32{}, []int{}, nil
}

func (wideImages) EmbedText(context.Context, string) ([]float32, error) {
	return make([]float32, 768), nil
}

func (wideImages) Dimension() int { return 512 }

// shortEmbedder drops the last vector of every batch.
type shortEmbedder struct {
	*embedder.SimpleEmbedder
}

func (e shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.SimpleEmbedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) == 0 {
		return vecs, err
	}
	return vecs[:len(vecs)-1], nil
}

type fakeDescriber struct{}

func (fakeDescriber) Describe(_ context.Context, paths []string) []imagedesc.Image {
	out := make([]imagedesc.Image, len(paths))
	for i, p := range paths {
		out[i] = imagedesc.Image{Path: p, Description: "desc of " + p}
	}
	return out
}

type fakeGenerator struct {
	question string
	context  string
	images   []imagedesc.Image
	err      error
}

func (g *fakeGenerator) Generate(_ context.Context, question, contextText string, images []imagedesc.Image) (string, error) {
	g.question, g.context, g.images = question, contextText, images
	if g.err != nil {
		return "", g.err
	}
	return "answer to " + question, nil
}

func testDoc() Document {
	return Document{
		Text: []retrieval.TextChunk{
			{Text: "bananas are a yellow tropical fruit", Page: 1, BBox: retrieval.BBox{0, 10, 100, 20}},
			{Text: "gradient descent optimizer converges quickly", Page: 2, BBox: retrieval.BBox{0, 50, 100, 60}},
			{Text: "the weather forecast promises sunshine", Page: 3, BBox: retrieval.BBox{0, 10, 100, 20}},
		},
		Images: []retrieval.ImageRecord{
			{Path: "assets/page_0_image_1.png", Page: 0},
			{Path: "assets/bad.png", Page: 1},
			{Path: "assets/page_2_image_3.png", Page: 2},
		},
	}
}

func TestSession_BeforeIngest(t *testing.T) {
	s := New(newCounting(256), WithGenerator(&fakeGenerator{}))

	_, err := s.Retrieve(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoDocument)

	_, err = s.Ask(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoDocument)

	_, err = s.Stats()
	assert.ErrorIs(t, err, ErrNoDocument)
	assert.Empty(t, s.History())
}

func TestSession_IngestAndRetrieve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := New(newCounting(256),
		WithImageEmbedder(fakeImages{}),
		WithMetrics(m),
		WithTopK(1),
	)

	report, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)
	assert.Equal(t, 3, report.TextChunks)
	assert.Equal(t, 2, report.Images)
	assert.Equal(t, 1, report.SkippedImages)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 256, stats.TextDim)
	assert.Equal(t, 2, stats.ImageDim)
	assert.Equal(t, 3, stats.TextCount)
	assert.Equal(t, 2, stats.ImageCount)

	ret, err := s.Retrieve(context.Background(), "gradient descent optimizer")
	require.NoError(t, err)
	require.Len(t, ret.Result.Text, 1)
	assert.Equal(t, 2, ret.Result.Text[0].Chunk.Page)
	assert.Equal(t, "Page 2: gradient descent optimizer converges quickly", ret.Assembled.Context)

	// The image query sits at the origin, so the first kept image wins.
	require.Len(t, ret.Result.Images, 1)
	assert.Equal(t, "assets/page_0_image_1.png", ret.Result.Images[0].Record.Path)

	assert.InDelta(t, 1, testutil.ToFloat64(m.IngestsTotal.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SkippedImagesTotal), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.IndexedVectors.WithLabelValues(metrics.ModalityText)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.IndexedVectors.WithLabelValues(metrics.ModalityImage)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("ok")), 0)
}

func TestSession_SkippedImagesKeepAlignment(t *testing.T) {
	s := New(newCounting(64), WithImageEmbedder(fakeImages{}), WithTopK(5))

	_, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)

	ret, err := s.Retrieve(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, []retrieval.ImageRecord{
		{Path: "assets/page_0_image_1.png", Page: 0},
		{Path: "assets/page_2_image_3.png", Page: 2},
	}, ret.Result.Records())
}

func TestSession_NoImageEmbedder(t *testing.T) {
	s := New(newCounting(64))

	report, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Images)
	assert.Equal(t, 0, report.SkippedImages)

	ret, err := s.Retrieve(context.Background(), "bananas")
	require.NoError(t, err)
	assert.Empty(t, ret.Result.Images)
	assert.NotEmpty(t, ret.Result.Text)
}

func TestSession_TextOnlyDocumentWithImageEmbedder(t *testing.T) {
	s := New(newCounting(64), WithImageEmbedder(wideImages{}), WithTopK(2))

	report, err := s.Ingest(context.Background(), Document{Text: testDoc().Text})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Images)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 512, stats.ImageDim)

	ret, err := s.Retrieve(context.Background(), "bananas tropical fruit")
	require.NoError(t, err)
	assert.Len(t, ret.Result.Text, 2)
	assert.Empty(t, ret.Result.Images)
}

func TestSession_FirstIngestFailureLeavesNoDocument(t *testing.T) {
	s := New(shortEmbedder{embedder.NewSimpleEmbedder(64)})

	_, err := s.Ingest(context.Background(), testDoc())
	require.ErrorIs(t, err, retrieval.ErrLengthMismatch)

	_, err = s.Retrieve(context.Background(), "bananas")
	assert.ErrorIs(t, err, ErrNoDocument)

	_, err = s.Stats()
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestSession_IngestFailureKeepsDocument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	emb := newCounting(64)
	s := New(emb, WithMetrics(m), WithTopK(1))

	_, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)

	emb.err = errors.New("rate limited")
	_, err = s.Ingest(context.Background(), Document{
		Text: []retrieval.TextChunk{{Text: "replacement text block here", Page: 9}},
	})
	require.ErrorContains(t, err, "rate limited")

	ret, err := s.Retrieve(context.Background(), "weather forecast sunshine")
	require.NoError(t, err)
	require.Len(t, ret.Result.Text, 1)
	assert.Equal(t, 3, ret.Result.Text[0].Chunk.Page)

	assert.InDelta(t, 1, testutil.ToFloat64(m.IngestsTotal.WithLabelValues("error")), 0)
}

func TestSession_IngestReplaces(t *testing.T) {
	s := New(newCounting(64), WithTopK(5))

	_, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)

	_, err = s.Ingest(context.Background(), Document{
		Text: []retrieval.TextChunk{{Text: "only block in the new document", Page: 4}},
	})
	require.NoError(t, err)

	ret, err := s.Retrieve(context.Background(), "new document")
	require.NoError(t, err)
	require.Len(t, ret.Result.Text, 1)
	assert.Equal(t, "Page 4: only block in the new document", ret.Assembled.Context)
}

func TestSession_EmptyDocument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := New(newCounting(16), WithMetrics(m))

	_, err := s.Ingest(context.Background(), Document{})
	require.NoError(t, err)

	ret, err := s.Retrieve(context.Background(), "anything at all")
	require.NoError(t, err)
	assert.True(t, ret.Assembled.Empty())
	assert.Equal(t, "", ret.Assembled.Context)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EmptyResultsTotal), 0)
}

func TestSession_Reset(t *testing.T) {
	s := New(newCounting(16))

	_, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)
	s.Reset()

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.TextCount)
}

func TestSession_Ask(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(newCounting(256),
		WithImageEmbedder(fakeImages{}),
		WithDescriber(fakeDescriber{}),
		WithGenerator(gen),
		WithTopK(1),
	)

	_, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)

	ans, err := s.Ask(context.Background(), "gradient descent optimizer")
	require.NoError(t, err)

	assert.Equal(t, "answer to gradient descent optimizer", ans.Text)
	assert.Equal(t, []retrieval.PageText{{Page: 2, Text: "gradient descent optimizer converges quickly"}}, ans.Sources)
	require.Len(t, ans.Images, 1)

	assert.Equal(t, "gradient descent optimizer", gen.question)
	assert.Equal(t, "Page 2: gradient descent optimizer converges quickly", gen.context)
	assert.Equal(t, []imagedesc.Image{
		{Path: "assets/page_0_image_1.png", Description: "desc of assets/page_0_image_1.png"},
	}, gen.images)

	hist := s.History()
	require.Len(t, hist, 2)
	assert.Equal(t, RoleUser, hist[0].Role)
	assert.Equal(t, "gradient descent optimizer", hist[0].Content)
	assert.Equal(t, RoleAssistant, hist[1].Role)
	assert.Equal(t, ans.Text, hist[1].Content)

	s.ClearHistory()
	assert.Empty(t, s.History())
}

func TestSession_AskWithoutGenerator(t *testing.T) {
	s := New(newCounting(16))
	_, err := s.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoGenerator)
}

func TestSession_AskGenerationError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream timeout")}
	s := New(newCounting(16), WithGenerator(gen))

	_, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "bananas")
	require.ErrorContains(t, err, "upstream timeout")

	// The question was asked, but no answer was recorded.
	hist := s.History()
	require.Len(t, hist, 1)
	assert.Equal(t, RoleUser, hist[0].Role)
}

func TestSession_QueryFusion(t *testing.T) {
	emb := newCounting(256)
	s := New(emb, WithQueryFusion(true, 60), WithTopK(2))

	_, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)

	ret, err := s.Retrieve(context.Background(), "gradient descent optimizer")
	require.NoError(t, err)

	calls := emb.calls()
	require.Len(t, calls, 2, "short questions are searched raw and enhanced")
	assert.Equal(t, "gradient descent optimizer", calls[0])
	assert.Contains(t, calls[1], "'gradient descent optimizer'")

	require.NotEmpty(t, ret.Result.Text)
	assert.LessOrEqual(t, len(ret.Result.Text), 2)
	pages := make([]int, len(ret.Result.Text))
	for i, h := range ret.Result.Text {
		pages[i] = h.Chunk.Page
	}
	assert.Contains(t, pages, 2, "the raw question's best hit survives fusion")
}

func TestSession_QueryFusionLongQuestion(t *testing.T) {
	emb := newCounting(64)
	s := New(emb, WithQueryFusion(true, 0))

	_, err := s.Ingest(context.Background(), testDoc())
	require.NoError(t, err)

	long := "what does the document say about how quickly the gradient descent optimizer converges"
	_, err = s.Retrieve(context.Background(), long)
	require.NoError(t, err)
	assert.Equal(t, []string{long}, emb.calls())
}

func TestSession_ID(t *testing.T) {
	a := New(newCounting(8))
	b := New(newCounting(8))
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
