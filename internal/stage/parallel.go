package stage

import "context"

// Worker executes one task.
type Worker func(ctx context.Context, t Task) Result

// RunStage runs every task with at most limit in flight and blocks until all
// started tasks have finished. Results are keyed by subpath. After ctx is
// canceled no new task starts, so the map may hold fewer entries than tasks.
func RunStage(ctx context.Context, tasks []Task, worker Worker, limit int) map[string]Result {
	results := runIndexedParallel(ctx, len(tasks), limit, func(i int) Result {
		r := worker(ctx, tasks[i])
		r.Subpath = tasks[i].Subpath
		if r.Tool == "" {
			r.Tool = tasks[i].Tool
		}
		return r
	})
	out := make(map[string]Result, len(results))
	for _, r := range results {
		out[r.Subpath] = r
	}
	return out
}
