package commands

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/slp/pkg/bench"
	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/harness"
)

const metricsNamespace = "slp"

func init() {
	benchStorageCmd.Flags().StringVar(
		&benchCmdConfig.metricsAddr,
		"metrics-addr",
		"",
		"After the run, serve the latency summaries on this address at /metrics until interrupted")
	RootCmd.AddCommand(benchStorageCmd)
}

var benchCmdConfig = struct {
	metricsAddr string
}{}

var benchStorageCmd = &cobra.Command{
	Use:   "bench-storage <size_mb> <iterations> <upload|download|roundtrip>",
	Short: "Measure filer upload and download latency",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sizeMB, err := strconv.ParseFloat(args[0], 64)
		if err != nil || sizeMB < 0 {
			return fmt.Errorf("%w: size_mb %q", core.ErrInvalidInput, args[0])
		}
		iters, err := strconv.Atoi(args[1])
		if err != nil || iters < 1 {
			return fmt.Errorf("%w: iterations %q", core.ErrInvalidInput, args[1])
		}
		op, err := bench.ParseOperation(args[2])
		if err != nil {
			return err
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		h := harness.New()
		p := bench.Params{
			SizeBytes:  int(sizeMB * 1024 * 1024),
			Iterations: iters,
			Operation:  op,
		}
		fmt.Fprintf(cmd.OutOrStdout(), "benchmarking %s: %d x %d bytes against %s\n", op, iters, p.SizeBytes, e.cfg.Store.BaseURL)

		rep, runErr := bench.Run(cmd.Context(), e.st, h, p, bench.WithLogger(e.lg))
		printBenchReport(cmd.OutOrStdout(), rep)
		if runErr != nil {
			return runErr
		}

		if benchCmdConfig.metricsAddr != "" {
			return serveMetrics(cmd, h, benchCmdConfig.metricsAddr, e.lg)
		}
		return nil
	},
}

func printBenchReport(w io.Writer, rep bench.Report) {
	fmt.Fprintf(w, "completed %d/%d iterations\n", rep.Completed, rep.Params.Iterations)
	for _, o := range rep.Ops {
		s := o.Summary
		fmt.Fprintf(w, "%s:\n", o.Op)
		fmt.Fprintf(w, "  samples:    %d\n", s.Count)
		fmt.Fprintf(w, "  mean:       %s\n", fmtMS(s.Mean))
		fmt.Fprintf(w, "  p50:        %s\n", fmtMS(s.P50))
		fmt.Fprintf(w, "  p95:        %s\n", fmtMS(s.P95))
		fmt.Fprintf(w, "  p99:        %s\n", fmtMS(s.P99))
		fmt.Fprintf(w, "  min/max:    %s / %s\n", fmtMS(s.Min), fmtMS(s.Max))
		fmt.Fprintf(w, "  throughput: %.2f MB/s\n", o.Throughput/(1024*1024))
	}
}

func fmtMS(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d.Microseconds())/1000)
}

func serveMetrics(cmd *cobra.Command, h *harness.Harness, addr string, lg *zap.Logger) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(h.Collector(metricsNamespace)); err != nil {
		return fmt.Errorf("error registering collector: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-cmd.Context().Done()
		_ = srv.Close()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on http://%s/metrics\n", addr)
	lg.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
