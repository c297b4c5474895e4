package match

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/internal/domains/entities"
	"github.com/tempo-chess/tempo/internal/rules"
	"github.com/tempo-chess/tempo/internal/storage"
	"github.com/tempo-chess/tempo/pkg/logging"
)

// finishTask is a finalize (and, once finalized, score propagation) that
// failed its synchronous gate and must be retried until it sticks.
type finishTask struct {
	sessionId  string
	outcome    rules.Outcome
	tournament *entities.TournamentRef
	// finalized means the durable finalize already succeeded and only the
	// score propagation remains.
	finalized bool
}

// Reconciler closes the gap the async per-move writes leave open: it retries
// failed finalizes and periodically compares every live session's history
// against the durable record, repairing the record when it lags.
type Reconciler struct {
	coordinator *Coordinator
	interval    time.Duration

	mu      sync.Mutex
	dirty   map[string]struct{}
	pending []finishTask
}

func newReconciler(c *Coordinator, interval time.Duration) *Reconciler {
	return &Reconciler{
		coordinator: c,
		interval:    interval,
		dirty:       make(map[string]struct{}),
	}
}

func (r *Reconciler) markDirty(sessionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty[sessionId] = struct{}{}
}

func (r *Reconciler) enqueueFinish(task finishTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, task)
}

func (r *Reconciler) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

// pass retries pending finishes, resyncs sessions flagged by failed move
// writes, then sweeps every live session against its durable record.
func (r *Reconciler) pass(ctx context.Context) {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	dirty := r.dirty
	r.dirty = make(map[string]struct{})
	r.mu.Unlock()

	for _, task := range pending {
		r.retryFinish(ctx, task)
	}
	for sessionId := range dirty {
		if session, ok := r.coordinator.sessions.Get(sessionId); ok {
			r.resync(ctx, session)
		}
	}
	for _, session := range r.coordinator.sessions.All() {
		if session.Status() == entities.StatusLive {
			r.resync(ctx, session)
		}
	}
}

func (r *Reconciler) retryFinish(ctx context.Context, task finishTask) {
	if !task.finalized {
		err := r.coordinator.store.Finalize(
			ctx,
			task.sessionId,
			string(task.outcome.Result),
			string(task.outcome.Reason),
		)
		if err != nil {
			logging.Warn("finalize retry failed",
				zap.String("session_id", task.sessionId),
				zap.Error(err),
			)
			r.enqueueFinish(task)
			return
		}
		logging.Info("finalize retry succeeded", zap.String("session_id", task.sessionId))
	}
	r.coordinator.completeFinish(task.sessionId, task.outcome, task.tournament)
}

// resync overwrites the durable move list when it lags the live history.
// The live session is authoritative; the durable record only ever trails it.
func (r *Reconciler) resync(ctx context.Context, session *Session) {
	record, err := r.coordinator.store.ReadRecord(ctx, session.Id)
	if err != nil {
		if !errors.Is(err, storage.ErrRecordNotFound) {
			logging.Warn("resync read failed",
				zap.String("session_id", session.Id),
				zap.Error(err),
			)
		}
		return
	}

	moves := session.MovesSnapshot()
	if len(record.Moves) >= len(moves) {
		return
	}
	if err := r.coordinator.store.SyncMoves(ctx, session.Id, moves); err != nil {
		logging.Warn("resync write failed",
			zap.String("session_id", session.Id),
			zap.Error(err),
		)
		r.markDirty(session.Id)
		return
	}
	logging.Info("durable history resynced",
		zap.String("session_id", session.Id),
		zap.Int("durable_plies", len(record.Moves)),
		zap.Int("live_plies", len(moves)),
	)
}
