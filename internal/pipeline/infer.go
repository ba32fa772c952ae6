package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/model"
	"github.com/sells-group/healthmap/internal/store"
)

// Inferrer re-derives relationships across every stored entity in a single
// model call.
type Inferrer struct {
	enricher Enricher
	store    store.Store
	timeout  time.Duration
}

// NewInferrer creates an Inferrer. callTimeout bounds each collaborator call;
// zero disables the bound.
func NewInferrer(enricher Enricher, st store.Store, callTimeout time.Duration) *Inferrer {
	return &Inferrer{enricher: enricher, store: st, timeout: callTimeout}
}

// Run loads every record, asks the enricher for the updated set and saves
// each returned record verbatim under StorageKey(record.Name). Returned
// records replace what was stored; they are not merged. Records without a
// name are skipped. It returns the number of records written.
func (i *Inferrer) Run(ctx context.Context) (int, error) {
	log := zap.L().With(zap.String("phase", "infer"))

	records, err := call(ctx, i.timeout, i.store.LoadAll)
	if err != nil {
		return 0, &CollaboratorError{Stage: model.StageLoading, Err: err}
	}
	if len(records) == 0 {
		return 0, ErrNoEntities
	}
	log.Info("infer: analyzing relationships", zap.Int("entities", len(records)))

	updated, err := call(ctx, i.timeout, func(ctx context.Context) ([]model.EntityRecord, error) {
		return i.enricher.InferAll(ctx, records)
	})
	if err != nil {
		return 0, err
	}

	written := 0
	for _, rec := range updated {
		if rec.Name == "" {
			log.Warn("infer: skipping record without a name")
			continue
		}
		key := model.StorageKey(rec.Name)
		if _, err := call(ctx, i.timeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, i.store.Save(ctx, key, rec)
		}); err != nil {
			return written, &CollaboratorError{Stage: model.StagePersisting, Err: err}
		}
		written++
	}

	log.Info("infer: relationships updated", zap.Int("written", written), zap.Int("returned", len(updated)))
	return written, nil
}
