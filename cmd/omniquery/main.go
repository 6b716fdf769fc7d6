// Package main implements the omniquery CLI: question answering over a
// PDF that has been extracted into a text and image manifest.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath  string
	verbose     bool
	top         int
	metricsAddr string
}

func main() {
	// Cancel in-flight embedding and generation requests on Ctrl-C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "omniquery",
		Short: "Ask questions about a PDF's text and images",
		Long: `omniquery answers questions about a single document. It reads the
extraction manifest of a PDF (text blocks with page and position, plus
extracted image files), embeds both modalities, retrieves the passages and
images closest to the question and has a chat model answer from them.

Settings come from omniquery.yaml, OMNIQUERY_* environment variables and a
.env file. OPENAI_API_KEY is honoured.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "omniquery.yaml", "config file")
	pf.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	pf.IntVar(&opts.top, "top", 0, "number of hits per modality (overrides retrieval.top_k)")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(newSearchCmd(opts))
	root.AddCommand(newAskCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "omniquery %s\n", version)
		},
	}
}
