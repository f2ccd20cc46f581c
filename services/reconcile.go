package services

import (
	"context"
	"time"

	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/telemetry"
)

const defaultReconcileBatch = 200

// ReconcileReport counts what one sweep repaired
type ReconcileReport struct {
	Reindexed int
	Failed    int
	Purged    int
}

// Reconciler restores agreement between the document store and the vector index.
// It re-embeds committed chunks that never got a vector and deletes vectors of
// chunks that no longer exist.
type Reconciler struct {
	store     DocumentStore
	index     VectorIndex
	embedder  Embedder
	metrics   *telemetry.Metrics
	batchSize int
	timeout   time.Duration
}

func NewReconciler(store DocumentStore, index VectorIndex, embedder Embedder, metrics *telemetry.Metrics, batchSize int, timeout time.Duration) *Reconciler {
	if batchSize <= 0 {
		batchSize = defaultReconcileBatch
	}
	return &Reconciler{
		store:     store,
		index:     index,
		embedder:  embedder,
		metrics:   metrics,
		batchSize: batchSize,
		timeout:   timeout,
	}
}

// Run performs one sweep of at most one batch of tombstones and one batch of unindexed chunks
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	ctx, span := telemetry.Tracer("reconciler").Start(ctx, "reconcile.sweep")
	defer span.End()

	ids, err := r.store.PendingDeletions(ctx, r.batchSize)
	if err != nil {
		return report, fail(ErrPersistenceFailure, "list tombstones", err)
	}
	if len(ids) > 0 {
		dctx, cancel := withTimeout(ctx, r.timeout)
		err := r.index.Delete(dctx, ids...)
		cancel()
		if err != nil {
			r.metrics.RecordOrphanVectors(ctx, len(ids), "purge_failed")
			return report, upstream("delete orphan vectors", err)
		}
		if err := r.store.ClearDeletions(ctx, ids); err != nil {
			return report, fail(ErrPersistenceFailure, "clear tombstones", err)
		}
		report.Purged = len(ids)
	}

	chunks, err := r.store.UnindexedChunks(ctx, r.batchSize)
	if err != nil {
		return report, fail(ErrPersistenceFailure, "list unindexed chunks", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, errs := embedTexts(ctx, r.embedder, texts, r.timeout)

	indexed := make([]string, 0, len(chunks))
	for i, c := range chunks {
		err := errs[i]
		if err == nil {
			cctx, cancel := withTimeout(ctx, r.timeout)
			err = r.index.Upsert(cctx, c.ID, vecs[i])
			cancel()
		}
		if err != nil {
			report.Failed++
			logger.Warn("Reconcile could not index chunk", "document", c.DocumentName, "chunk", c.InternalID, "error", err)
			continue
		}
		indexed = append(indexed, c.ID)
	}
	if err := r.store.MarkIndexed(ctx, indexed); err != nil {
		return report, fail(ErrPersistenceFailure, "mark indexed", err)
	}
	report.Reindexed = len(indexed)

	if report.Purged+report.Reindexed+report.Failed > 0 {
		logger.Info("Reconcile sweep finished",
			"purged", report.Purged,
			"reindexed", report.Reindexed,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// Drain sweeps until a run repairs nothing, summing the reports. Chunks that keep
// failing are left for later sweeps.
func (r *Reconciler) Drain(ctx context.Context) (ReconcileReport, error) {
	var total ReconcileReport
	for {
		report, err := r.Run(ctx)
		total.Reindexed += report.Reindexed
		total.Purged += report.Purged
		total.Failed += report.Failed
		if err != nil {
			return total, err
		}
		if report.Reindexed+report.Purged == 0 {
			return total, nil
		}
	}
}
