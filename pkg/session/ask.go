package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/perbu/omniquery/internal/metrics"
	"github.com/perbu/omniquery/pkg/generator"
	"github.com/perbu/omniquery/pkg/rankfusion"
	"github.com/perbu/omniquery/pkg/retrieval"
)

// Retrieve searches the current document for question and assembles the
// text hits into a page-ordered context.
func (s *Session) Retrieve(ctx context.Context, question string) (ret *Retrieval, err error) {
	defer func() {
		if s.metrics != nil {
			s.metrics.QueriesTotal.WithLabelValues(metrics.Status(err)).Inc()
		}
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.store == nil {
		return nil, ErrNoDocument
	}

	start := time.Now()
	var textQuery, imageQuery []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.text.Embed(gctx, question)
		if err != nil {
			return fmt.Errorf("embed question: %w", err)
		}
		textQuery = v
		return nil
	})
	if s.image != nil {
		g.Go(func() error {
			v, err := s.image.EmbedText(gctx, question)
			if err != nil {
				return fmt.Errorf("embed question for images: %w", err)
			}
			imageQuery = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.observe(stageEmbed, start)

	start = time.Now()
	res, err := s.store.Query(textQuery, imageQuery, s.topK)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	if s.fuseQueries {
		if enhanced := generator.EnhanceQuestion(question); enhanced != question {
			fused, err := s.fuseText(ctx, textQuery, enhanced)
			if err != nil {
				return nil, err
			}
			res.Text = fused
		}
	}
	s.observe(stageSearch, start)

	ret = &Retrieval{
		Question:  question,
		Result:    res,
		Assembled: retrieval.Assemble(res.Chunks()),
	}

	if ret.Assembled.Empty() && s.metrics != nil {
		s.metrics.EmptyResultsTotal.Inc()
	}

	s.logger.Debug("retrieved",
		zap.Int("text_hits", len(res.Text)),
		zap.Int("image_hits", len(res.Images)),
		zap.Int("pages", len(ret.Assembled.Pages)))

	return ret, nil
}

// fuseText searches with the raw question vector and the enhanced
// question, then merges both text rankings with RRF. Must be called with
// s.mu held.
func (s *Session) fuseText(ctx context.Context, raw []float32, enhanced string) ([]retrieval.TextHit, error) {
	ev, err := s.text.Embed(ctx, enhanced)
	if err != nil {
		return nil, fmt.Errorf("embed enhanced question: %w", err)
	}

	best := make(map[int]retrieval.TextHit)
	lists := make([][]int, 0, 2)
	for _, q := range [][]float32{raw, ev} {
		hits, err := s.store.SearchText(q, s.topK)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		positions := make([]int, len(hits))
		for i, h := range hits {
			positions[i] = h.Position
			if prev, ok := best[h.Position]; !ok || h.Distance < prev.Distance {
				best[h.Position] = h
			}
		}
		lists = append(lists, positions)
	}

	ranked := rankfusion.IDs(rankfusion.Fuse(lists, s.rrfK))
	if len(ranked) > s.topK {
		ranked = ranked[:s.topK]
	}

	out := make([]retrieval.TextHit, 0, len(ranked))
	for _, pos := range ranked {
		hit := best[pos]
		chunk, err := s.store.ChunkAt(pos)
		if err != nil {
			return nil, err
		}
		hit.Chunk = chunk
		out = append(out, hit)
	}
	return out, nil
}

// Ask answers question from the current document and records the turn in
// the history. An empty retrieval is still sent to the generator, which is
// expected to say that the document does not cover the question.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	if s.gen == nil {
		return nil, ErrNoGenerator
	}

	ret, err := s.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	s.record(RoleUser, question)

	records := ret.Result.Records()
	paths := make([]string, len(records))
	for i, r := range records {
		paths[i] = r.Path
	}

	start := time.Now()
	described := s.describer.Describe(ctx, paths)
	s.observe(stageDescribe, start)

	start = time.Now()
	text, err := s.gen.Generate(ctx, question, ret.Assembled.Context, described)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	s.observe(stageGenerate, start)

	s.record(RoleAssistant, text)

	return &Answer{
		Question: question,
		Text:     text,
		Sources:  ret.Assembled.Pages,
		Images:   records,
	}, nil
}
