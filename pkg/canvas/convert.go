package canvas

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ConversionResult is what a completed diagram conversion reports back.
type ConversionResult struct {
	SessionID    string
	ElementCount int
}

type convertOutcome struct {
	result ConversionResult
	err    error
}

// convertEntry is one pending diagram conversion. Unlike exports, a
// conversion may outlive the absence of clients: an entry created while
// the session has no connections stays undispatched and is delivered
// opportunistically when a client joins or signals ready.
type convertEntry struct {
	requestID  string
	sessionID  string
	diagram    string
	reset      bool
	dispatched bool
	createdAt  time.Time

	ch    chan convertOutcome
	timer *time.Timer
}

// convertLedger correlates conversion request ids with pending
// continuations and tracks dispatch state per session.
type convertLedger struct {
	mu      sync.Mutex
	pending map[string]*convertEntry
	timeout time.Duration
	logger  *slog.Logger
}

func newConvertLedger(timeout time.Duration, logger *slog.Logger) *convertLedger {
	return &convertLedger{
		pending: make(map[string]*convertEntry),
		timeout: timeout,
		logger:  logger.With("component", "convert_ledger"),
	}
}

// register adds a pending conversion and arms its timeout. The timeout
// runs whether or not the request has been dispatched: a session with no
// client for the full window still fails the caller.
func (l *convertLedger) register(requestID, sessionID, diagram string, reset bool) (*convertEntry, <-chan convertOutcome) {
	entry := &convertEntry{
		requestID: requestID,
		sessionID: sessionID,
		diagram:   diagram,
		reset:     reset,
		createdAt: time.Now(),
		ch:        make(chan convertOutcome, 1),
	}
	entry.timer = time.AfterFunc(l.timeout, func() {
		l.finish(requestID, convertOutcome{err: ErrConvertTimeout})
	})

	l.mu.Lock()
	l.pending[requestID] = entry
	l.mu.Unlock()

	return entry, entry.ch
}

// takeUndispatched atomically claims every undispatched request for a
// session, marking each dispatched so a request is handed out exactly
// once per delivery opportunity.
func (l *convertLedger) takeUndispatched(sessionID string) []*convertEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []*convertEntry
	for _, entry := range l.pending {
		if entry.sessionID == sessionID && !entry.dispatched {
			entry.dispatched = true
			entries = append(entries, entry)
		}
	}
	return entries
}

// markDispatched flags a single entry as delivered.
func (l *convertLedger) markDispatched(requestID string) {
	l.mu.Lock()
	if entry, ok := l.pending[requestID]; ok {
		entry.dispatched = true
	}
	l.mu.Unlock()
}

// markUndispatched reverts dispatch state for every pending request of a
// session. Called when the session's last connection drops, so the
// requests are redelivered once a client reappears.
func (l *convertLedger) markUndispatched(sessionID string) {
	l.mu.Lock()
	for _, entry := range l.pending {
		if entry.sessionID == sessionID {
			entry.dispatched = false
		}
	}
	l.mu.Unlock()
}

// resolve completes a conversion with its result.
// lookup returns the pending entry for a request id, or nil when the
// request has already completed or timed out.
func (l *convertLedger) lookup(requestID string) *convertEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending[requestID]
}

func (l *convertLedger) resolve(requestID string, result ConversionResult) {
	l.finish(requestID, convertOutcome{result: result})
}

// reject completes a conversion with the raw client error text. Callers
// classify the text into timeout / syntax / generic for display.
func (l *convertLedger) reject(requestID, message string) {
	l.finish(requestID, convertOutcome{err: errors.New(message)})
}

func (l *convertLedger) finish(requestID string, outcome convertOutcome) {
	l.mu.Lock()
	entry, ok := l.pending[requestID]
	if ok {
		delete(l.pending, requestID)
	}
	l.mu.Unlock()

	if !ok {
		l.logger.Debug("stale conversion response ignored", "request_id", requestID)
		return
	}

	entry.timer.Stop()
	entry.ch <- outcome
}

// pendingCount returns the number of in-flight conversions.
func (l *convertLedger) pendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
