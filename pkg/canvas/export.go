package canvas

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// exportOutcome is the terminal state of one export exchange.
type exportOutcome struct {
	data string // base64-encoded image payload
	err  error
}

// exportEntry is one pending export awaiting its export_result.
type exportEntry struct {
	ch    chan exportOutcome
	timer *time.Timer
}

// exportLedger correlates export request ids with pending continuations.
// An entry is removed the moment it resolves or rejects; late responses
// find no entry and are ignored as stale.
type exportLedger struct {
	mu      sync.Mutex
	pending map[string]*exportEntry
	timeout time.Duration
	logger  *slog.Logger
}

func newExportLedger(timeout time.Duration, logger *slog.Logger) *exportLedger {
	return &exportLedger{
		pending: make(map[string]*exportEntry),
		timeout: timeout,
		logger:  logger.With("component", "export_ledger"),
	}
}

// register adds a pending entry and arms its timeout.
func (l *exportLedger) register(requestID string) <-chan exportOutcome {
	entry := &exportEntry{ch: make(chan exportOutcome, 1)}
	entry.timer = time.AfterFunc(l.timeout, func() {
		l.finish(requestID, exportOutcome{err: ErrExportTimeout})
	})

	l.mu.Lock()
	l.pending[requestID] = entry
	l.mu.Unlock()

	return entry.ch
}

// resolve completes an export with its payload.
func (l *exportLedger) resolve(requestID, data string) {
	l.finish(requestID, exportOutcome{data: data})
}

// reject completes an export with a client-reported error.
func (l *exportLedger) reject(requestID, message string) {
	l.finish(requestID, exportOutcome{err: fmt.Errorf("%w: %s", ErrExportFailed, message)})
}

// finish removes the entry, stops its timer, and delivers the outcome.
// The timer stop covers both success and failure paths so no timer leaks.
func (l *exportLedger) finish(requestID string, outcome exportOutcome) {
	l.mu.Lock()
	entry, ok := l.pending[requestID]
	if ok {
		delete(l.pending, requestID)
	}
	l.mu.Unlock()

	if !ok {
		l.logger.Debug("stale export response ignored", "request_id", requestID)
		return
	}

	entry.timer.Stop()
	entry.ch <- outcome
}

// pendingCount returns the number of in-flight exports.
func (l *exportLedger) pendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
