// Package batch sends a file of prompts to an inference server and writes one
// result line per prompt, in input order.
package batch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/harness"
	"github.com/agenthands/slp/pkg/inference"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// OpCompletion is the harness op successful completions are recorded under.
const OpCompletion = "completion"

// Completer is satisfied by *inference.Client.
type Completer interface {
	Complete(ctx context.Context, prompt string, nPredict int) (inference.Result, error)
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Total     int
	Succeeded int
	Failed    int
	// Summary covers the latencies of successful prompts of this run only.
	Summary harness.Summary
}

type Runner struct {
	client      Completer
	h           *harness.Harness
	concurrency int
	limiter     *rate.Limiter
	lg          *zap.Logger
	now         func() time.Time
}

type Option func(*Runner)

func WithLogger(lg *zap.Logger) Option {
	return func(r *Runner) { r.lg = lg }
}

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner builds a Runner from cfg. A nil harness gets a private one.
func NewRunner(c Completer, h *harness.Harness, cfg core.BatchConfig, opts ...Option) *Runner {
	if h == nil {
		h = harness.New()
	}
	r := &Runner{
		client:      c,
		h:           h,
		concurrency: cfg.Concurrency,
		lg:          zap.NewNop(),
		now:         time.Now,
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	if cfg.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.lg == nil {
		r.lg = zap.NewNop()
	}
	return r
}

// Run completes every prompt and writes the result lines to w. A failed
// completion is written as an error line and does not stop the run; a write
// error or a cancelled context does.
func (r *Runner) Run(ctx context.Context, prompts []Prompt, w io.Writer) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Started: r.now(), Total: len(prompts)}

	out := &orderedWriter{w: w, pending: make(map[int]Result)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, p := range prompts {
		if gctx.Err() != nil {
			break
		}
		i, p := i, p
		g.Go(func() error {
			if r.limiter != nil {
				if err := r.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			res := r.complete(gctx, p)
			return out.put(i, res)
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	var latencies []time.Duration
	for _, res := range out.done {
		if res.Success {
			rep.Succeeded++
			latencies = append(latencies, res.Elapsed)
		} else {
			rep.Failed++
		}
	}
	rep.Summary = harness.Summarize(latencies)
	rep.Finished = r.now()

	r.lg.Info("batch finished",
		zap.String("run_id", rep.RunID),
		zap.Int("total", rep.Total),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed),
		zap.Duration("p50", rep.Summary.P50))
	return rep, err
}

func (r *Runner) complete(ctx context.Context, p Prompt) Result {
	res := Result{Timestamp: r.now(), Prompt: p.Text, MaxTokens: p.MaxTokens}
	out, err := r.client.Complete(ctx, p.Text, p.MaxTokens)
	res.Elapsed = out.Elapsed.Truncate(time.Microsecond)
	if err != nil {
		res.Error = err.Error()
		r.lg.Warn("completion failed", zap.Int("line", p.Line), zap.Error(err))
		return res
	}
	res.Success = true
	res.Response = out.Content
	r.h.Record(OpCompletion, out.Elapsed)
	return res
}

// orderedWriter emits results in input order as soon as every earlier
// result has been written.
type orderedWriter struct {
	mu      sync.Mutex
	w       io.Writer
	next    int
	pending map[int]Result
	done    []Result
}

func (o *orderedWriter) put(i int, res Result) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending[i] = res
	for {
		res, ok := o.pending[o.next]
		if !ok {
			return nil
		}
		delete(o.pending, o.next)
		line := append(res.MarshalLine(), '\n')
		if _, err := o.w.Write(line); err != nil {
			return fmt.Errorf("writing result %d: %w", o.next, err)
		}
		o.done = append(o.done, res)
		o.next++
	}
}
