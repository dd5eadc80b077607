package workitem

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/me/workprep/pkg/model"
)

// Result is the outcome of assembling one Inputs. Exactly one of Item and
// Err is set.
type Result struct {
	Index int
	Item  *model.WorkItem
	Err   error
}

// Setup assembles every input with at most workers running at once. A
// failing sample does not affect the others; results are returned in input
// order. Inputs not yet started when ctx is cancelled fail with ctx.Err().
func (a *Assembler) Setup(ctx context.Context, inputs []Inputs, workers int) []Result {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(inputs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, in := range inputs {
		g.Go(func() error {
			results[i].Index = i
			if err := ctx.Err(); err != nil {
				results[i].Err = &model.SampleError{Sample: in.Row.Description, Lane: in.Row.Lane, Err: err}
				return nil
			}
			results[i].Item, results[i].Err = a.Assemble(in)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	a.logger.Info("setup complete", "samples", len(inputs), "failed", failed, "workers", workers)
	return results
}

// Items returns the successfully assembled items of results, in order.
func Items(results []Result) []*model.WorkItem {
	out := make([]*model.WorkItem, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Item)
		}
	}
	return out
}
