// Package loader reads the output of the PDF extraction step: a JSON
// manifest with page-located text blocks and image files.
package loader

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/perbu/omniquery/pkg/retrieval"
)

// minWords is the smallest block, in words, kept after cleaning.
const minWords = 3

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Isolated single letters are usually extraction noise.
	strayLetterRe = regexp.MustCompile(`\s+[a-zA-Z]\s+`)
)

// Manifest is a document as produced by the extraction step.
//
//	{
//	  "text":   [{"text": "...", "page": 1, "bbox": [x0, y0, x1, y1]}],
//	  "images": [{"path": "assets/page_0_image_7.png", "page": 0, "bbox": [...]}]
//	}
//
// Text pages are 1-based; image pages are passed through as extracted.
type Manifest struct {
	Text   []retrieval.TextChunk   `json:"text"`
	Images []retrieval.ImageRecord `json:"images"`
}

// CleanText collapses whitespace and strips isolated single letters. Text
// with fewer than three words after cleaning is returned as "".
func CleanText(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strayLetterRe.ReplaceAllString(text, " ")
	if len(strings.Fields(text)) < minWords {
		return ""
	}
	return strings.TrimSpace(text)
}

// LoadManifest parses the manifest at name in fsys. Every text block is
// cleaned and blocks that clean to nothing are dropped.
func LoadManifest(fsys fs.FS, name string) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	kept := m.Text[:0]
	for _, c := range m.Text {
		c.Text = CleanText(c.Text)
		if c.Text == "" {
			continue
		}
		kept = append(kept, c)
	}
	m.Text = kept
	if m.Images == nil {
		m.Images = []retrieval.ImageRecord{}
	}
	return &m, nil
}

// LoadFile loads a manifest from disk. Relative image paths are resolved
// against the manifest's directory.
func LoadFile(path string) (*Manifest, error) {
	dir := filepath.Dir(path)
	m, err := LoadManifest(os.DirFS(dir), filepath.Base(path))
	if err != nil {
		return nil, err
	}
	for i, img := range m.Images {
		if img.Path != "" && !filepath.IsAbs(img.Path) {
			m.Images[i].Path = filepath.Join(dir, img.Path)
		}
	}
	return m, nil
}

// ImagePaths returns the image paths in manifest order.
func (m *Manifest) ImagePaths() []string {
	paths := make([]string, len(m.Images))
	for i, img := range m.Images {
		paths[i] = img.Path
	}
	return paths
}
