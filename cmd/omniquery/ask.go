package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/omniquery/pkg/session"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <manifest.json> <question>...",
		Short: "Answer a question about the document",
		Long: `Ingest the manifest, retrieve the relevant passages and images and
ask the chat model to answer from them. Requires an OpenAI API key.

Examples:
  omniquery ask paper.json "summarise the evaluation"
  omniquery ask --verbose paper.json attention`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.load(cmd.Context(), args[0]); err != nil {
				return err
			}

			ans, err := a.session.Ask(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printAnswer(cmd.OutOrStdout(), ans)
			return nil
		},
	}
}

func printAnswer(w io.Writer, ans *session.Answer) {
	fmt.Fprintln(w, ans.Text)

	fmt.Fprintln(w, "\nSources:")
	if len(ans.Sources) == 0 {
		fmt.Fprintln(w, "  "+noRelevantText)
	}
	for _, p := range ans.Sources {
		fmt.Fprintf(w, "  Page %d: %s\n", p.Page, p.Text)
	}

	if len(ans.Images) > 0 {
		fmt.Fprintln(w)
		printImages(w, ans.Images)
	}
}
