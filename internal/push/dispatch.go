package push

import (
	"context"
	"sync"

	"github.com/nesttask/nesttask-push/internal/store"
)

// dispatch sends to every registration through a bounded worker pool and
// blocks until all outcomes are in. A per-registration failure never aborts
// the rest of the batch; isolation is the point of per-device outcomes.
// Outcome order is unspecified; aggregation is by identity, not arrival.
func dispatch(
	ctx context.Context,
	regs []store.Registration,
	workers int,
	send func(ctx context.Context, reg store.Registration) Outcome,
) []Outcome {
	if len(regs) == 0 {
		return nil
	}

	workers = normalizeWorkers(workers, len(regs))

	jobs := make(chan store.Registration, len(regs))
	results := make(chan Outcome, len(regs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for reg := range jobs {
				results <- send(ctx, reg)
			}
		}()
	}

	for _, reg := range regs {
		jobs <- reg
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]Outcome, 0, len(regs))
	for outcome := range results {
		out = append(out, outcome)
	}
	return out
}

// normalizeWorkers ensures worker count is between 1 and item count.
func normalizeWorkers(workers, itemCount int) int {
	if workers < 1 {
		workers = 1
	}
	if workers > itemCount {
		workers = itemCount
	}
	return workers
}
