package retrieval

import (
	"fmt"
	"sort"
	"strings"
)

// PageText is one merged passage, used for citation display.
type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Assembled is the generator-facing context plus its per-page breakdown.
type Assembled struct {
	Context string
	Pages   []PageText
}

// Empty reports whether no text was retrieved.
func (a Assembled) Empty() bool {
	return len(a.Pages) == 0
}

// Assemble orders text hits by page and vertical position, merges runs of
// chunks that sit on the same page, and renders one "Page N: text" line per
// run. Merging only looks at the previous chunk in sorted order.
func Assemble(hits []TextChunk) Assembled {
	out := Assembled{Pages: []PageText{}}
	if len(hits) == 0 {
		return out
	}

	sorted := append([]TextChunk(nil), hits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Page != sorted[j].Page {
			return sorted[i].Page < sorted[j].Page
		}
		return sorted[i].BBox.Y0() < sorted[j].BBox.Y0()
	})

	var (
		page  = sorted[0].Page
		parts []string
	)
	flush := func() {
		out.Pages = append(out.Pages, PageText{
			Page: page,
			Text: strings.Join(parts, " "),
		})
	}

	for _, c := range sorted {
		if c.Page != page && len(parts) > 0 {
			flush()
			parts = parts[:0]
		}
		page = c.Page
		parts = append(parts, c.Text)
	}
	flush()

	lines := make([]string, len(out.Pages))
	for i, p := range out.Pages {
		lines[i] = fmt.Sprintf("Page %d: %s", p.Page, p.Text)
	}
	out.Context = strings.Join(lines, "\n")

	return out
}
