package metadata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"focus-stacker/internal/workpool"
)

// DefaultBatchSize is the number of paths handed to one extractor call.
const DefaultBatchSize = 100

// BatchReader fans extraction out over a worker pool in fixed-size batches.
type BatchReader struct {
	extractor Extractor
	pool      *workpool.Pool
	batchSize int
	log       logr.Logger
}

// NewBatchReader returns a reader using pool for concurrency. A batchSize
// below 1 selects DefaultBatchSize.
func NewBatchReader(ex Extractor, pool *workpool.Pool, batchSize int, log logr.Logger) *BatchReader {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &BatchReader{extractor: ex, pool: pool, batchSize: batchSize, log: log}
}

// Result is the union of every successful batch.
type Result struct {
	Times         map[string]time.Time
	Batches       int
	FailedBatches int
	Errors        []error
}

// Read extracts timestamps for paths. A failed batch contributes nothing
// and is recorded in Result.Errors; it never stops sibling batches. The
// returned error is non-nil only when ctx ends before all batches ran.
func (r *BatchReader) Read(ctx context.Context, paths []string) (Result, error) {
	res := Result{Times: map[string]time.Time{}}
	if len(paths) == 0 {
		return res, nil
	}

	batches := Split(paths, r.batchSize)
	res.Batches = len(batches)

	var mu sync.Mutex
	err := r.pool.Run(ctx, len(batches), func(ctx context.Context, i int) {
		batch := batches[i]
		times, err := r.extractor.Extract(ctx, batch)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			var be *BatchError
			if errors.As(err, &be) {
				be.Index = i
			} else {
				err = &BatchError{Index: i, Size: len(batch), Err: err}
			}
			res.FailedBatches++
			res.Errors = append(res.Errors, err)
			r.log.Error(err, "metadata batch failed", "batch", i, "files", len(batch))
			return
		}
		for p, t := range times {
			res.Times[p] = t
		}
		r.log.V(1).Info("metadata batch done", "batch", i, "files", len(batch), "timestamps", len(times))
	})
	return res, err
}

// Split cuts paths into consecutive batches of at most size entries.
func Split(paths []string, size int) [][]string {
	if size < 1 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(paths); start += size {
		end := start + size
		if end > len(paths) {
			end = len(paths)
		}
		out = append(out, paths[start:end])
	}
	return out
}
