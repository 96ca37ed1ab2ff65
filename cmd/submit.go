package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docpipe/internal/gateway"
	"github.com/ziadkadry99/docpipe/internal/pipeline"
	"github.com/ziadkadry99/docpipe/internal/progress"
	"github.com/ziadkadry99/docpipe/internal/walker"
)

var (
	submitGatewayURL string
	submitBatch      bool
	submitWait       bool
	submitBatchSize  int
	submitExclude    []string
)

var submitCmd = &cobra.Command{
	Use:   "submit <glob>...",
	Short: "Upload documents through the gateway",
	Long: `Expands the given globs (** is supported; directories are walked) and
uploads every matching file through the gateway. With --batch the texts are
submitted as one batch job instead; add --wait to follow it until the
embedding is ready.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg).With("command", "submit")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := walker.Walk(walker.Config{
			Patterns:    args,
			Exclude:     submitExclude,
			Extensions:  cfg.Gateway.AllowedExtensions,
			MaxFileSize: cfg.Gateway.MaxUploadBytes,
		})
		if err != nil {
			return err
		}
		for _, s := range res.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %s\n", s.Path, s.Reason)
		}
		if len(res.Files) == 0 {
			return fmt.Errorf("no files to submit")
		}

		baseURL := submitGatewayURL
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%d", cfg.Gateway.Port)
		}
		api := gateway.NewAPIClient(baseURL, clientOptions(cfg), logger)

		if submitBatch {
			return runBatchSubmit(ctx, cmd, api, res.Files)
		}
		return runUploads(ctx, cmd, api, res.Files)
	},
}

func runUploads(ctx context.Context, cmd *cobra.Command, api *gateway.APIClient, files []walker.File) error {
	reporter := progress.NewReporter(cmd.ErrOrStderr())
	reporter.Start(len(files))

	var failed int
	var lines []string
	for i, f := range files {
		name := filepath.Base(f.Path)
		content, err := os.ReadFile(f.Path)
		if err == nil {
			var out *gateway.ProcessResponse
			out, err = api.Upload(ctx, map[string][]byte{name: content})
			if err == nil {
				d := out.Documents[0]
				lines = append(lines, fmt.Sprintf("%s\t%s\t%d words", d.JobID, name, d.Stats.WordCount))
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				reporter.Finish()
				return ctx.Err()
			}
			failed++
			lines = append(lines, fmt.Sprintf("FAILED\t%s\t%v", name, err))
		}
		reporter.Update(i+1, name)
	}
	reporter.Finish()

	w := cmd.OutOrStdout()
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	fmt.Fprintf(w, "Submitted %d of %d files\n", len(files)-failed, len(files))
	if failed > 0 {
		return fmt.Errorf("%d uploads failed", failed)
	}
	return nil
}

func runBatchSubmit(ctx context.Context, cmd *cobra.Command, api *gateway.APIClient, files []walker.File) error {
	req := pipeline.BatchRequest{Documents: make([]string, 0, len(files))}
	if submitBatchSize > 0 {
		req.BatchSize = &submitBatchSize
	}
	for _, f := range files {
		content, err := os.ReadFile(f.Path)
		if err != nil {
			return err
		}
		req.Documents = append(req.Documents, string(content))
	}

	accepted, err := api.SubmitBatch(ctx, req)
	if err != nil {
		return fmt.Errorf("submitting batch: %w", err)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Batch job %s accepted (%d documents)\n", accepted.JobID, len(files))
	if !submitWait {
		return nil
	}

	msg, err := api.Watch(ctx, accepted.JobID, func(m gateway.WatchMessage) {
		fmt.Fprintf(cmd.ErrOrStderr(), "job %s: %s\n", m.JobID, m.Status)
	})
	if err != nil {
		return err
	}
	sizes := make([]string, len(msg.BatchSizes))
	for i, n := range msg.BatchSizes {
		sizes[i] = fmt.Sprint(n)
	}
	fmt.Fprintf(w, "Batch job %s completed in batches of [%s]\n", msg.JobID, strings.Join(sizes, ", "))
	for i, row := range msg.Embedding {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", filepath.Base(files[i].Path), row[0], row[1])
	}
	return nil
}

func init() {
	submitCmd.Flags().StringVar(&submitGatewayURL, "gateway", "", "gateway base URL (default http://localhost:<gateway.port>)")
	submitCmd.Flags().BoolVar(&submitBatch, "batch", false, "submit all files as one batch job")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "with --batch, wait for the embedding")
	submitCmd.Flags().IntVar(&submitBatchSize, "batch-size", 0, "documents per reduction batch (default from the processor)")
	submitCmd.Flags().StringSliceVar(&submitExclude, "exclude", nil, "glob patterns to leave out")
	rootCmd.AddCommand(submitCmd)
}
