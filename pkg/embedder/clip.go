package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/perbu/omniquery/internal/logging"
)

// Ensure CLIPEmbedder implements the interface.
var _ ImageEmbedder = (*CLIPEmbedder)(nil)

// Defaults for CLIPConfig.
const (
	DefaultCLIPModel     = "openai/clip-vit-base-patch32"
	DefaultCLIPDimension = 512
	DefaultCLIPTimeout   = 60 * time.Second
)

// CLIPConfig configures a CLIPEmbedder.
type CLIPConfig struct {
	// BaseURL of the inference server (required).
	BaseURL string

	// Model is passed through to the server.
	Model string

	// Dimension of the model's shared embedding space.
	Dimension int

	Timeout time.Duration
	Logger  *zap.Logger
}

// CLIPEmbedder talks to a CLIP inference server that exposes
// POST /embed/image and POST /embed/text, both answering with
// {"embeddings": [[...], ...]}.
type CLIPEmbedder struct {
	client  *http.Client
	baseURL string
	model   string
	dim     int
	logger  *zap.Logger
}

type clipImageRequest struct {
	Model  string   `json:"model,omitempty"`
	Images []string `json:"images"` // base64-encoded file contents
}

type clipTextRequest struct {
	Model string   `json:"model,omitempty"`
	Texts []string `json:"texts"`
}

type clipResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewCLIPEmbedder creates a CLIP client.
func NewCLIPEmbedder(cfg CLIPConfig) (*CLIPEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("clip: base URL is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultCLIPModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultCLIPDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCLIPTimeout
	}

	return &CLIPEmbedder{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		dim:     cfg.Dimension,
		logger:  logging.OrNop(cfg.Logger),
	}, nil
}

// EmbedImages reads and embeds every decodable image. Files that are
// missing or not images are logged and skipped.
func (c *CLIPEmbedder) EmbedImages(ctx context.Context, paths []string) ([][]float32, []int, error) {
	var (
		payload []string
		kept    []int
	)
	for i, path := range paths {
		data, err := readImage(path)
		if err != nil {
			c.logger.Warn("skipping invalid image", zap.String("path", path), zap.Error(err))
			continue
		}
		payload = append(payload, base64.StdEncoding.EncodeToString(data))
		kept = append(kept, i)
	}

	if len(payload) == 0 {
		return [][]float32{}, []int{}, nil
	}

	vecs, err := c.post(ctx, "/embed/image", clipImageRequest{Model: c.model, Images: payload})
	if err != nil {
		return nil, nil, err
	}
	if len(vecs) != len(payload) {
		return nil, nil, fmt.Errorf("clip: got %d embeddings for %d images", len(vecs), len(payload))
	}
	return vecs, kept, nil
}

// EmbedText embeds a query into the image space.
func (c *CLIPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.post(ctx, "/embed/text", clipTextRequest{Model: c.model, Texts: []string{text}})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("clip: got %d embeddings for 1 text", len(vecs))
	}
	return vecs[0], nil
}

// Dimension returns the embedding dimension.
func (c *CLIPEmbedder) Dimension() int {
	return c.dim
}

func (c *CLIPEmbedder) post(ctx context.Context, path string, body any) ([][]float32, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clip error (status %d): %s", resp.StatusCode, string(raw))
	}

	var out clipResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("clip error: %s", out.Error)
	}
	return out.Embeddings, nil
}

// readImage returns the file's bytes if it decodes as an image.
func readImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("not an image: %w", err)
	}
	return data, nil
}
