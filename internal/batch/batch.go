// Package batch fans a per-entity task out over a fixed pool of workers with
// per-item failure isolation.
package batch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/healthmap/internal/model"
)

// DefaultWorkers is the pool size used when Runner.Workers is not positive.
const DefaultWorkers = 4

// ErrFailures is matched by errors.Is on the error returned by Result.Err.
var ErrFailures = eris.New("batch: one or more entities failed")

// Task processes one entity. It must depend only on its arguments.
type Task func(ctx context.Context, name string) error

// Runner executes a Task for many names.
type Runner struct {
	Workers int
}

// Failure is one entity that did not complete successfully.
type Failure struct {
	Name string
	Err  error
}

// Result summarizes a batch. Failures are in completion order.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// Names are the distinct names processed, in input order.
	Names     []string
	Succeeded int
	Failed    int
	Failures  []Failure
}

// Err returns a non-nil error when any entity failed.
func (r *Result) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return eris.Wrapf(ErrFailures, "%d of %d", r.Failed, len(r.Names))
}

// FailureFor returns the error recorded for name, or nil.
func (r *Result) FailureFor(name string) error {
	for _, f := range r.Failures {
		if f.Name == name {
			return f.Err
		}
	}
	return nil
}

// Run converts the result into a persisted run record.
func (r *Result) Run(kind model.RunKind) model.Run {
	run := model.Run{
		ID:         r.RunID,
		Kind:       kind,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
	}
	for _, f := range r.Failures {
		run.Failures = append(run.Failures, model.RunFailure{Name: f.Name, Error: f.Err.Error()})
	}
	return run
}

// Normalize trims names, drops blanks and keeps only the first name for each
// storage key, so "Aetna" and "aetna " run once.
func Normalize(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := model.StorageKey(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

// Run processes names with at most r.Workers tasks in flight. A failing or
// panicking task is recorded and never cancels its siblings.
func (r Runner) Run(ctx context.Context, names []string, task Task) *Result {
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	res := &Result{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Names:     Normalize(names),
	}
	log := zap.L().With(zap.String("run_id", res.RunID))
	log.Info("batch: starting",
		zap.Int("entities", len(res.Names)),
		zap.Int("workers", workers),
	)

	var mu sync.Mutex
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Failed++
			res.Failures = append(res.Failures, Failure{Name: name, Err: err})
			return
		}
		res.Succeeded++
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, name := range res.Names {
		g.Go(func() error {
			err := runTask(ctx, name, task)
			if err != nil {
				log.Error("batch: entity failed", zap.String("entity", name), zap.Error(err))
			} else {
				log.Info("batch: entity complete", zap.String("entity", name))
			}
			record(name, err)
			return nil
		})
	}
	_ = g.Wait()

	res.FinishedAt = time.Now().UTC()
	log.Info("batch: complete",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res
}

// runTask runs task, converting a panic into an error.
func runTask(ctx context.Context, name string, task Task) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return eris.Wrap(ctxErr, "batch: not started")
	}
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("batch: task panicked: %v", p)
		}
	}()
	return task(ctx, name)
}
