package canvas

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Scofieldfree/excalidraw-mcp/pkg/scene"
	"github.com/google/uuid"
)

// Batch is one staged skeleton batch awaiting client-side expansion.
// Unsynced batches are replayed to every connection that joins or reports
// ready, giving at-least-once delivery; the client merges by element id
// so replay is idempotent.
type Batch struct {
	ID        string
	Skeletons []*scene.Element
	CreatedAt time.Time
	Synced    bool
}

// batchLedger keeps a bounded per-session list of skeleton batches.
// Pruning drops the oldest synced entries first so an unsynced batch is
// never silently lost to the size cap.
type batchLedger struct {
	mu        sync.Mutex
	bySession map[string][]*Batch
	maxSize   int
	logger    *slog.Logger
}

func newBatchLedger(maxSize int, logger *slog.Logger) *batchLedger {
	return &batchLedger{
		bySession: make(map[string][]*Batch),
		maxSize:   maxSize,
		logger:    logger.With("component", "batch_ledger"),
	}
}

// add stages a new batch for the session and returns it.
func (l *batchLedger) add(sessionID string, skeletons []*scene.Element) *Batch {
	batch := &Batch{
		ID:        uuid.NewString(),
		Skeletons: skeletons,
		CreatedAt: time.Now(),
	}

	l.mu.Lock()
	l.bySession[sessionID] = l.pruneLocked(append(l.bySession[sessionID], batch), sessionID)
	l.mu.Unlock()

	return batch
}

// pruneLocked enforces the size cap: synced entries go first, oldest
// first; only when every remaining entry is unsynced does it drop the
// oldest unsynced one, loudly.
func (l *batchLedger) pruneLocked(batches []*Batch, sessionID string) []*Batch {
	for len(batches) > l.maxSize {
		dropped := -1
		for i, b := range batches {
			if b.Synced {
				dropped = i
				break
			}
		}
		if dropped == -1 {
			dropped = 0
			l.logger.Warn("dropping unsynced skeleton batch under pressure",
				"session_id", sessionID,
				"batch_id", batches[0].ID)
		}
		batches = append(batches[:dropped], batches[dropped+1:]...)
	}
	return batches
}

// markSynced flags a batch as applied by the client. Returns whether the
// batch was found and newly synced.
func (l *batchLedger) markSynced(sessionID, batchID string) bool {
	if batchID == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.bySession[sessionID] {
		if b.ID == batchID {
			if b.Synced {
				return false
			}
			b.Synced = true
			return true
		}
	}
	return false
}

// unsynced returns the batches still awaiting client confirmation, in
// creation order.
func (l *batchLedger) unsynced(sessionID string) []*Batch {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Batch
	for _, b := range l.bySession[sessionID] {
		if !b.Synced {
			out = append(out, b)
		}
	}
	return out
}

// drop discards every batch of a session. Used when the session itself
// is deleted.
func (l *batchLedger) drop(sessionID string) {
	l.mu.Lock()
	delete(l.bySession, sessionID)
	l.mu.Unlock()
}

// count returns the number of staged batches for a session.
func (l *batchLedger) count(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bySession[sessionID])
}
