package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agenthands/slp/cmd/slp/cli"
	"github.com/agenthands/slp/pkg/batch"
	"github.com/agenthands/slp/pkg/harness"
	"github.com/agenthands/slp/pkg/inference"
	"github.com/agenthands/slp/pkg/transform"
)

func init() {
	llamaBatchCmd.Flags().BoolVar(
		&llamaBatchCmdConfig.upload,
		"upload",
		false,
		"Upload the results and a run record to the filer")
	llamaBatchCmd.Flags().BoolVar(
		&llamaBatchCmdConfig.compress,
		"compress",
		false,
		"Compress uploaded results with zstd")
	llamaBatchCmd.Flags().IntVar(
		&llamaBatchCmdConfig.concurrency,
		"concurrency",
		0,
		"Number of prompts in flight (default batch.concurrency)")
	llamaBatchCmd.Flags().Float64Var(
		&llamaBatchCmdConfig.rate,
		"rate",
		0,
		"Maximum requests per second (default batch.rate_limit, 0 = unlimited)")

	RootCmd.AddCommand(llamaClientCmd)
	RootCmd.AddCommand(llamaBatchCmd)
}

var llamaBatchCmdConfig = struct {
	upload      bool
	compress    bool
	concurrency int
	rate        float64
}{}

func readPrompts(path string, defaultMax int) ([]batch.Prompt, error) {
	in, err := readInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	prompts, warnings, err := batch.ReadPrompts(in, defaultMax)
	for _, w := range warnings {
		cli.Stderr.Printf("warning: %s: %s", path, w)
	}
	return prompts, err
}

var llamaClientCmd = &cobra.Command{
	Use:   "llama-client <prompts.jsonl>",
	Short: "Send prompts to the inference server one at a time and print the answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lg, err := newLogger()
		if err != nil {
			return err
		}
		defer lg.Sync()

		prompts, err := readPrompts(args[0], cfg.Batch.MaxTokens)
		if err != nil {
			return err
		}
		client, err := inference.New(cfg.Inference, lg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		h := harness.New()
		failed := 0
		for i, p := range prompts {
			fmt.Fprintf(out, "[%d] prompt: %s\n", i+1, p.Text)
			fmt.Fprintf(out, "    max tokens: %d\n", p.MaxTokens)
			res, err := client.Complete(cmd.Context(), p.Text, p.MaxTokens)
			if err != nil {
				failed++
				fmt.Fprintf(out, "    error: %v\n", err)
				continue
			}
			h.Record(batch.OpCompletion, res.Elapsed)
			fmt.Fprintf(out, "    response: %s\n", strings.TrimSpace(res.Content))
			fmt.Fprintf(out, "    latency: %s\n", fmtMS(res.Elapsed))
		}
		printLatency(out, len(prompts), len(prompts)-failed, failed, h.Summary(batch.OpCompletion))
		return cmd.Context().Err()
	},
}

var llamaBatchCmd = &cobra.Command{
	Use:   "llama-batch <prompts.jsonl> <results.jsonl>",
	Short: "Run a prompts file through the inference server and write JSONL results",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		cfg := e.cfg
		if llamaBatchCmdConfig.concurrency > 0 {
			cfg.Batch.Concurrency = llamaBatchCmdConfig.concurrency
		}
		if llamaBatchCmdConfig.rate > 0 {
			cfg.Batch.RateLimit = llamaBatchCmdConfig.rate
		}
		if llamaBatchCmdConfig.compress {
			cfg.Batch.Compress = true
		}

		prompts, err := readPrompts(args[0], cfg.Batch.MaxTokens)
		if err != nil {
			return err
		}
		client, err := inference.New(cfg.Inference, e.lg)
		if err != nil {
			return err
		}

		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("error creating %q: %w", args[1], err)
		}
		defer f.Close()

		var results bytes.Buffer
		var w io.Writer = f
		if llamaBatchCmdConfig.upload {
			w = io.MultiWriter(f, &results)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "running %d prompt(s) against %s\n", len(prompts), cfg.Inference.URL)
		runner := batch.NewRunner(client, harness.New(), cfg.Batch, batch.WithLogger(e.lg))
		rep, err := runner.Run(cmd.Context(), prompts, w)
		if err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("error writing %q: %w", args[1], err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", rep.RunID)
		printLatency(cmd.OutOrStdout(), rep.Total, rep.Succeeded, rep.Failed, rep.Summary)
		fmt.Fprintf(cmd.OutOrStdout(), "results saved to %s\n", args[1])

		if !llamaBatchCmdConfig.upload {
			return nil
		}
		t := transform.NewNone()
		if cfg.Batch.Compress {
			if t, err = transform.NewZstd(cfg.Batch.ZstdLevel); err != nil {
				return err
			}
		}
		pub, err := batch.Publish(cmd.Context(), e.st, t, rep, filepath.Base(args[1])+t.Ext(), results.Bytes())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded results sha256=%s\n", pub.Results)
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded run record sha256=%s\n", pub.Record)
		return nil
	},
}

func printLatency(w io.Writer, total, succeeded, failed int, s harness.Summary) {
	fmt.Fprintf(w, "total prompts: %d\n", total)
	fmt.Fprintf(w, "successful:    %d\n", succeeded)
	fmt.Fprintf(w, "failed:        %d\n", failed)
	if s.Count == 0 {
		return
	}
	fmt.Fprintf(w, "latency mean %s, p50 %s, p95 %s, p99 %s\n", fmtMS(s.Mean), fmtMS(s.P50), fmtMS(s.P95), fmtMS(s.P99))
}
