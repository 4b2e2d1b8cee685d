package query

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// ParallelConfig holds configuration for parallel query execution
type ParallelConfig struct {
	// MinDocsForParallel is the minimum number of documents to use parallel execution
	MinDocsForParallel int
	// MaxWorkers is the maximum number of parallel workers (0 = GOMAXPROCS)
	MaxWorkers int
	// ChunkSize is the number of documents per worker chunk (0 = auto-calculate)
	ChunkSize int
}

// DefaultParallelConfig returns a sensible default configuration
func DefaultParallelConfig() *ParallelConfig {
	return &ParallelConfig{
		MinDocsForParallel: 1000,
		MaxWorkers:         0,
		ChunkSize:          0,
	}
}

// ExecuteParallel evaluates the filter over chunks of the candidates
// concurrently. Matches keep candidate order, so the result equals Execute's.
func (e *Executor) ExecuteParallel(ctx context.Context, query *Query, config *ParallelConfig) ([]*document.Document, error) {
	if config == nil {
		config = DefaultParallelConfig()
	}
	if len(e.documents) < config.MinDocsForParallel {
		return e.Execute(query)
	}

	workers := config.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = (len(e.documents) + workers - 1) / workers
		// keep chunks large enough to amortize scheduling
		if chunkSize < 100 {
			chunkSize = 100
		}
	}

	results, err := e.parallelFilter(ctx, query.GetFilter(), workers, chunkSize)
	if err != nil {
		return nil, err
	}
	return finish(query, results), nil
}

func (e *Executor) parallelFilter(ctx context.Context, f *Filter, workers, chunkSize int) ([]*document.Document, error) {
	chunks := (len(e.documents) + chunkSize - 1) / chunkSize
	matched := make([][]*document.Document, chunks)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < chunks; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(e.documents))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			local, err := e.filter(f, e.documents[start:end])
			if err != nil {
				return err
			}
			matched[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, m := range matched {
		total += len(m)
	}
	results := make([]*document.Document, 0, total)
	for _, m := range matched {
		results = append(results, m...)
	}
	return results, nil
}
