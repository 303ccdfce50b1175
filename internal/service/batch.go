package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultBatchSize bounds how many contributors are enriched at once.
const DefaultBatchSize = 5

// BatchFailure is one item that failed inside a batch.
type BatchFailure struct {
	ID  uuid.UUID
	Err error
}

// BatchResult lists every processed item as either succeeded or failed, in input order.
type BatchResult struct {
	Succeeded []uuid.UUID
	Failed    []BatchFailure
	Batches   int
}

// FailedIDs returns the ids of failed items as strings.
func (r BatchResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.ID.String())
	}
	return ids
}

// RunBatches calls fn for every id, at most size at a time. Batch N+1 starts only after every
// item of batch N has returned. An error or panic in fn fails that item only.
// If ctx is canceled between batches the remaining ids are failed with ctx.Err().
func RunBatches(ctx context.Context, ids []uuid.UUID, size int, fn func(context.Context, uuid.UUID) error) BatchResult {
	if size < 1 {
		size = DefaultBatchSize
	}

	result := BatchResult{
		Succeeded: make([]uuid.UUID, 0, len(ids)),
		Failed:    make([]BatchFailure, 0),
	}

	for start := 0; start < len(ids); start += size {
		if err := ctx.Err(); err != nil {
			for _, id := range ids[start:] {
				result.Failed = append(result.Failed, BatchFailure{ID: id, Err: err})
			}
			return result
		}

		batch := ids[start:min(start+size, len(ids))]
		errs := make([]error, len(batch))

		var wg sync.WaitGroup
		for i, id := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = runItem(ctx, id, fn)
			}()
		}
		wg.Wait()
		result.Batches++

		for i, id := range batch {
			if errs[i] != nil {
				result.Failed = append(result.Failed, BatchFailure{ID: id, Err: errs[i]})
				continue
			}
			result.Succeeded = append(result.Succeeded, id)
		}
	}

	return result
}

func runItem(ctx context.Context, id uuid.UUID, fn func(context.Context, uuid.UUID) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in batch item", "id", id, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(ctx, id)
}
