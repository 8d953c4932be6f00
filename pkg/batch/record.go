package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/manifest"
	"github.com/agenthands/slp/pkg/store"
	"github.com/agenthands/slp/pkg/transform"
	"github.com/fxamacker/cbor/v2"
)

// Record is the persisted form of a Report. Durations are microseconds.
type Record struct {
	RunID       string         `cbor:"run_id"`
	Started     string         `cbor:"started"`
	Finished    string         `cbor:"finished"`
	Total       int            `cbor:"total"`
	Succeeded   int            `cbor:"succeeded"`
	Failed      int            `cbor:"failed"`
	MeanUS      int64          `cbor:"mean_us"`
	P50US       int64          `cbor:"p50_us"`
	P95US       int64          `cbor:"p95_us"`
	P99US       int64          `cbor:"p99_us"`
	Results     core.ObjectKey `cbor:"results,omitempty"`
	ResultsExt  string         `cbor:"results_ext,omitempty"`
	ResultsName string         `cbor:"results_name,omitempty"`
}

// Record converts rep for storage.
func (rep Report) Record() Record {
	return Record{
		RunID:     rep.RunID,
		Started:   rep.Started.UTC().Format(time.RFC3339),
		Finished:  rep.Finished.UTC().Format(time.RFC3339),
		Total:     rep.Total,
		Succeeded: rep.Succeeded,
		Failed:    rep.Failed,
		MeanUS:    rep.Summary.Mean.Microseconds(),
		P50US:     rep.Summary.P50.Microseconds(),
		P95US:     rep.Summary.P95.Microseconds(),
		P99US:     rep.Summary.P99.Microseconds(),
	}
}

var encMode, _ = cbor.CanonicalEncOptions().EncMode()

func EncodeRecord(rec Record) ([]byte, error) {
	return encMode.Marshal(rec)
}

func DecodeRecord(b []byte) (Record, error) {
	var rec Record
	if err := cbor.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: run record: %v", core.ErrInvalidInput, err)
	}
	return rec, nil
}

// Published holds the keys written by Publish.
type Published struct {
	Results core.ObjectKey
	Record  core.ObjectKey
}

// Publish uploads the result lines, encoded by t, together with their
// manifest, then the run record pointing at them.
func Publish(ctx context.Context, st store.Store, t transform.Transform, rep Report, name string, results []byte) (Published, error) {
	if t == nil {
		t = transform.NewNone()
	}
	stored, err := t.Encode(results)
	if err != nil {
		return Published{}, fmt.Errorf("encoding results: %w", err)
	}

	cat := core.Results.WithExt(core.Results.Ext + t.Ext())
	resultsKey, err := st.Put(ctx, cat, stored)
	if err != nil {
		return Published{}, err
	}
	if name == "" {
		name = rep.RunID + cat.Ext
	}
	m := manifest.Build(resultsKey, uint64(len(stored)), manifest.Now(), name)
	if err := st.PutManifest(ctx, cat, m); err != nil {
		return Published{}, err
	}

	rec := rep.Record()
	rec.Results = resultsKey
	rec.ResultsExt = cat.Ext
	rec.ResultsName = name
	b, err := EncodeRecord(rec)
	if err != nil {
		return Published{}, fmt.Errorf("encoding run record: %w", err)
	}
	recordKey, err := st.Put(ctx, core.Runs, b)
	if err != nil {
		return Published{}, err
	}
	return Published{Results: resultsKey, Record: recordKey}, nil
}
