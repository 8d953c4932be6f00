// Package bench drives repeated uploads and downloads of random payloads
// through a store and reports their latency distribution.
package bench

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/harness"
	"github.com/agenthands/slp/pkg/store"
	"go.uber.org/zap"
)

type Operation string

const (
	Upload    Operation = "upload"
	Download  Operation = "download"
	Roundtrip Operation = "roundtrip"
)

// ParseOperation accepts upload, download or roundtrip.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case Upload, Download, Roundtrip:
		return op, nil
	}
	return "", fmt.Errorf("%w: unknown bench operation %q", core.ErrInvalidInput, s)
}

type Params struct {
	SizeBytes  int
	Iterations int
	Operation  Operation
	Category   core.Category // defaults to core.Bench
	Rand       io.Reader     // payload source, defaults to crypto/rand
}

// OpReport summarizes one timed operation.
type OpReport struct {
	Op         string
	Summary    harness.Summary
	Throughput float64 // bytes/sec at the median latency
}

type Report struct {
	Params    Params
	Completed int
	Ops       []OpReport
}

// IterationError reports the iteration that stopped a run.
type IterationError struct {
	Iteration int
	Op        string
	Err       error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("bench: iteration %d (%s): %v", e.Iteration, e.Op, e.Err)
}

func (e *IterationError) Unwrap() error { return e.Err }

type runOptions struct {
	lg *zap.Logger
}

type Option func(*runOptions)

func WithLogger(lg *zap.Logger) Option {
	return func(o *runOptions) { o.lg = lg }
}

// Run executes p.Iterations iterations of p.Operation against st, recording
// latencies into h. The first failed iteration stops the run; the returned
// report then covers the iterations that completed.
func Run(ctx context.Context, st store.Store, h *harness.Harness, p Params, opts ...Option) (Report, error) {
	o := runOptions{lg: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.lg == nil {
		o.lg = zap.NewNop()
	}
	if p.SizeBytes < 0 || p.Iterations < 1 {
		return Report{}, fmt.Errorf("%w: size %d, iterations %d", core.ErrInvalidInput, p.SizeBytes, p.Iterations)
	}
	if _, err := ParseOperation(string(p.Operation)); err != nil {
		return Report{}, err
	}
	if p.Category.Name == "" {
		p.Category = core.Bench
	}
	if p.Rand == nil {
		p.Rand = rand.Reader
	}

	r := &runner{st: st, h: h, p: p, lg: o.lg}
	err := r.run(ctx)
	return r.report(), err
}

type runner struct {
	st        store.Store
	h         *harness.Harness
	p         Params
	lg        *zap.Logger
	completed int
	ops       []string
}

func (r *runner) run(ctx context.Context) error {
	var fixed store.ObjectKey
	if r.p.Operation == Download {
		payload, err := r.payload()
		if err != nil {
			return &IterationError{Iteration: 0, Op: "prepare", Err: err}
		}
		if fixed, err = r.st.Put(ctx, r.p.Category, payload); err != nil {
			return &IterationError{Iteration: 0, Op: "prepare", Err: err}
		}
	}

	for i := 1; i <= r.p.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return &IterationError{Iteration: i, Op: string(r.p.Operation), Err: err}
		}

		var err error
		switch r.p.Operation {
		case Upload:
			_, err = r.upload(ctx, i)
		case Download:
			_, err = r.download(ctx, i, fixed)
		case Roundtrip:
			err = r.roundtrip(ctx, i)
		}
		if err != nil {
			r.lg.Warn("bench iteration failed", zap.Int("iteration", i), zap.Error(err))
			return err
		}
		r.completed++
	}
	return nil
}

func (r *runner) upload(ctx context.Context, i int) ([]byte, error) {
	payload, err := r.payload()
	if err != nil {
		return nil, &IterationError{Iteration: i, Op: string(Upload), Err: err}
	}
	_, err = r.time(string(Upload), func() error {
		_, err := r.st.Put(ctx, r.p.Category, payload)
		return err
	})
	if err != nil {
		return nil, &IterationError{Iteration: i, Op: string(Upload), Err: err}
	}
	return payload, nil
}

func (r *runner) download(ctx context.Context, i int, key store.ObjectKey) ([]byte, error) {
	var data []byte
	_, err := r.time(string(Download), func() error {
		var err error
		data, err = r.st.Get(ctx, r.p.Category, key)
		return err
	})
	if err != nil {
		return nil, &IterationError{Iteration: i, Op: string(Download), Err: err}
	}
	return data, nil
}

func (r *runner) roundtrip(ctx context.Context, i int) error {
	payload, err := r.payload()
	if err != nil {
		return &IterationError{Iteration: i, Op: string(Upload), Err: err}
	}
	var key store.ObjectKey
	_, err = r.time(string(Upload), func() error {
		var err error
		key, err = r.st.Put(ctx, r.p.Category, payload)
		return err
	})
	if err != nil {
		return &IterationError{Iteration: i, Op: string(Upload), Err: err}
	}

	data, err := r.download(ctx, i, key)
	if err != nil {
		return err
	}
	if !bytes.Equal(data, payload) {
		return &IterationError{Iteration: i, Op: string(Download), Err: fmt.Errorf("%w: downloaded bytes differ from upload", core.ErrIntegrityMismatch)}
	}
	return nil
}

func (r *runner) time(op string, fn func() error) (time.Duration, error) {
	r.seen(op)
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if err == nil {
		r.h.Record(op, elapsed)
	}
	return elapsed, err
}

func (r *runner) seen(op string) {
	for _, o := range r.ops {
		if o == op {
			return
		}
	}
	r.ops = append(r.ops, op)
}

func (r *runner) payload() ([]byte, error) {
	b := make([]byte, r.p.SizeBytes)
	if _, err := io.ReadFull(r.p.Rand, b); err != nil {
		return nil, fmt.Errorf("generating payload: %w", err)
	}
	return b, nil
}

func (r *runner) report() Report {
	rep := Report{Params: r.p, Completed: r.completed}
	for _, op := range r.ops {
		s := r.h.Summary(op)
		if s.Count == 0 {
			continue
		}
		rep.Ops = append(rep.Ops, OpReport{
			Op:         op,
			Summary:    s,
			Throughput: throughput(int64(r.p.SizeBytes), s.P50),
		})
	}
	return rep
}

func throughput(size int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return harness.Throughput(size, d)
}

// IsIterationError reports whether err stopped a run and at which iteration.
func IsIterationError(err error) (int, bool) {
	var ie *IterationError
	if errors.As(err, &ie) {
		return ie.Iteration, true
	}
	return 0, false
}
