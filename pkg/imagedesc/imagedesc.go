// Package imagedesc builds short textual descriptions of image files for
// inclusion in prompts.
package imagedesc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/perbu/omniquery/internal/logging"
)

// ocrPreviewLen is the number of OCR characters kept in a description.
const ocrPreviewLen = 100

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Image is a described image file.
type Image struct {
	Path        string
	Description string
}

// Option configures a Describer.
type Option func(*Describer)

// WithOCR enables text extraction with the given command, which is invoked
// as `command <path> stdout`.
func WithOCR(command string, runner CommandRunner) Option {
	return func(d *Describer) {
		d.ocrCommand = command
		d.runner = runner
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Describer) { d.logger = logging.OrNop(l) }
}

// Describer turns image paths into descriptions.
type Describer struct {
	ocrCommand string
	runner     CommandRunner
	logger     *zap.Logger
}

// New creates a Describer. OCR is off unless WithOCR is given.
func New(opts ...Option) *Describer {
	d := &Describer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Describe returns one entry per readable image, in input order. Paths
// that do not exist or cannot be decoded are skipped.
func (d *Describer) Describe(ctx context.Context, paths []string) []Image {
	out := make([]Image, 0, len(paths))
	for _, p := range paths {
		desc, err := d.describe(ctx, p)
		if err != nil {
			d.logger.Debug("skipping image", zap.String("path", p), zap.Error(err))
			continue
		}
		out = append(out, Image{Path: p, Description: desc})
	}
	return out
}

func (d *Describer) describe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	desc := fmt.Sprintf("Image (%s, %dx%dpx)", strings.ToUpper(format), cfg.Width, cfg.Height)

	if text := d.ocr(ctx, path); text != "" {
		desc += " - Contains text: " + preview(text) + "..."
	}
	return desc, nil
}

// ocr returns the trimmed text found in the image, or "" when OCR is off
// or fails.
func (d *Describer) ocr(ctx context.Context, path string) string {
	if d.runner == nil || d.ocrCommand == "" {
		return ""
	}
	out, err := d.runner.Run(ctx, d.ocrCommand, path, "stdout")
	if err != nil {
		d.logger.Debug("ocr failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(string(out))
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > ocrPreviewLen {
		r = r[:ocrPreviewLen]
	}
	return string(r)
}
