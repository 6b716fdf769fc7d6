package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/perbu/omniquery/internal/config"
	"github.com/perbu/omniquery/internal/logging"
	"github.com/perbu/omniquery/internal/metrics"
	"github.com/perbu/omniquery/pkg/embedder"
	"github.com/perbu/omniquery/pkg/generator"
	"github.com/perbu/omniquery/pkg/imagedesc"
	"github.com/perbu/omniquery/pkg/loader"
	"github.com/perbu/omniquery/pkg/session"
)

// offlineDimension is the SimpleEmbedder size used without an API key.
const offlineDimension = 256

// app is a configured session plus the resources behind it.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	session *session.Session
	metrics *http.Server
}

// newApp loads configuration, applies flag overrides and builds a
// session. needGenerator makes a missing API key fatal.
func newApp(opts *rootOptions, needGenerator bool) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.top > 0 {
		cfg.Retrieval.TopK = opts.top
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		a.serveMetrics(reg, cfg.Metrics.Addr)
	}

	sessOpts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithTopK(cfg.Retrieval.TopK),
		session.WithQueryFusion(cfg.Retrieval.FuseQueries, cfg.Retrieval.RRFK),
	}

	var text embedder.TextEmbedder
	if cfg.OpenAI.APIKey == "" {
		if needGenerator {
			return nil, errors.New("OPENAI_API_KEY is not set (use .env, the environment or openai.api_key)")
		}
		logger.Warn("no OpenAI API key, using offline hash embedder")
		text = embedder.NewSimpleEmbedder(offlineDimension)
	} else {
		text, err = embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.EmbeddingModel,
			Logger:  logger,
			Progress: func(done, total int) {
				logger.Debug("embedding progress", zap.Int("done", done), zap.Int("total", total))
			},
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.CLIP.URL != "" {
		clip, err := embedder.NewCLIPEmbedder(clipConfig(cfg, logger))
		if err != nil {
			return nil, err
		}
		sessOpts = append(sessOpts, session.WithImageEmbedder(clip))
	}

	descOpts := []imagedesc.Option{imagedesc.WithLogger(logger)}
	if cfg.OCR.Enabled {
		descOpts = append(descOpts, imagedesc.WithOCR(cfg.OCR.Command, imagedesc.ExecRunner{}))
	}
	sessOpts = append(sessOpts, session.WithDescriber(imagedesc.New(descOpts...)))

	if needGenerator {
		gen, err := generator.NewOpenAIGenerator(generator.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.ChatModel,
			Temperature: float32(cfg.OpenAI.Temperature),
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		sessOpts = append(sessOpts, session.WithGenerator(gen))
	}

	a.session = session.New(text, sessOpts...)
	return a, nil
}

func clipConfig(cfg *config.Config, logger *zap.Logger) embedder.CLIPConfig {
	return embedder.CLIPConfig{
		BaseURL:   cfg.CLIP.URL,
		Model:     cfg.CLIP.Model,
		Dimension: cfg.CLIP.Dimension,
		Timeout:   cfg.CLIP.Timeout,
		Logger:    logger,
	}
}

// load reads the manifest at path and ingests it.
func (a *app) load(ctx context.Context, path string) (*session.IngestReport, error) {
	m, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("manifest loaded",
		zap.String("path", path),
		zap.Int("text_blocks", len(m.Text)),
		zap.Int("images", len(m.Images)))

	return a.session.Ingest(ctx, session.Document{Text: m.Text, Images: m.Images})
}

func (a *app) serveMetrics(reg *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("serving metrics", zap.String("addr", addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// close stops the metrics server and flushes the logger.
func (a *app) close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
	_ = a.logger.Sync()
}
