package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/omniquery/pkg/retrieval"
	"github.com/perbu/omniquery/pkg/session"
)

const noRelevantText = "No relevant text found in the document."

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <manifest.json> <question>...",
		Short: "Show the passages and images retrieved for a question",
		Long: `Ingest the manifest and print the page-ordered context and the image
hits for the question, without generating an answer.

Works without an OpenAI API key by falling back to an offline embedder.

Examples:
  omniquery search paper.json "what optimizer is used"
  omniquery search --top 10 paper.json training details`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.load(cmd.Context(), args[0]); err != nil {
				return err
			}

			ret, err := a.session.Retrieve(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printRetrieval(cmd.OutOrStdout(), ret)
			return nil
		},
	}
}

func printRetrieval(w io.Writer, ret *session.Retrieval) {
	if ret.Assembled.Empty() && len(ret.Result.Images) == 0 {
		fmt.Fprintln(w, "No results found")
		return
	}

	if ret.Assembled.Empty() {
		fmt.Fprintln(w, noRelevantText)
	} else {
		fmt.Fprintf(w, "Found %d passages on %d pages:\n\n", len(ret.Result.Text), len(ret.Assembled.Pages))
		fmt.Fprintln(w, ret.Assembled.Context)
	}

	if len(ret.Result.Images) > 0 {
		fmt.Fprintln(w)
		printImages(w, ret.Result.Records())
	}
}

func printImages(w io.Writer, images []retrieval.ImageRecord) {
	fmt.Fprintln(w, "Related Images:")
	for i, img := range images {
		fmt.Fprintf(w, "  [Image %d] %s (page index %d)\n", i+1, img.Path, img.Page)
	}
}
