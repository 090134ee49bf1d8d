package sapiom

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PollOutcome classifies how a wait for authorization resolved.
type PollOutcome int

const (
	// PollAuthorized means the transaction reached a terminal-positive state.
	PollAuthorized PollOutcome = iota
	// PollDenied means the transaction reached DENIED or CANCELLED.
	PollDenied
	// PollTimeout means the configured window elapsed while non-terminal.
	PollTimeout
)

// PollResult is the resolution of a WaitForAuthorization call. Transaction
// is the snapshot observed at resolution; nil on timeout.
type PollResult struct {
	Outcome     PollOutcome
	Transaction *Transaction
}

// TransactionPoller waits for transactions to leave their non-terminal
// states. Concurrent waiters on the same id share one underlying poll loop:
// the remote Get is issued once per tick regardless of how many callers are
// waiting. Distinct ids poll independently.
type TransactionPoller struct {
	api      TransactionsAPI
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	waiters map[string]*pollEntry
}

// pollEntry is the shared per-id wait state. refs counts live waiters;
// the entry is evicted when the last waiter releases it. done is closed
// exactly once, after result/err are set.
type pollEntry struct {
	refs    int
	done    chan struct{}
	cancel  context.CancelFunc
	started time.Time

	result PollResult
	err    error
}

// NewTransactionPoller creates a poller over api. Zero durations fall back
// to the package defaults (30s window, 1s interval).
func NewTransactionPoller(api TransactionsAPI, timeout, interval time.Duration, logger *zap.Logger) *TransactionPoller {
	if timeout <= 0 {
		timeout = DefaultAuthorizationTimeout
	}
	if interval <= 0 {
		interval = DefaultPollingInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionPoller{
		api:      api,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
		waiters:  make(map[string]*pollEntry),
	}
}

// WaitForAuthorization blocks until transaction id reaches a terminal state
// or the poll window elapses. A caller joining an in-progress poll shares
// its loop and inherits the remaining window, not a fresh one. Remote fetch
// errors propagate to every current waiter and are not retried here.
func (p *TransactionPoller) WaitForAuthorization(ctx context.Context, id string) (PollResult, error) {
	p.mu.Lock()
	entry, ok := p.waiters[id]
	if ok {
		entry.refs++
	} else {
		loopCtx, cancel := context.WithCancel(context.Background())
		entry = &pollEntry{
			refs:    1,
			done:    make(chan struct{}),
			cancel:  cancel,
			started: time.Now(),
		}
		p.waiters[id] = entry
		go p.run(loopCtx, id, entry)
	}
	p.mu.Unlock()

	defer p.release(id, entry)

	select {
	case <-entry.done:
		return entry.result, entry.err
	case <-ctx.Done():
		return PollResult{}, ctx.Err()
	}
}

// release drops one reference and evicts the entry once the count reaches
// zero. The current map state is re-read under the lock rather than trusted
// from the caller: two releases racing across wait boundaries must not
// delete a fresh entry registered for the same id in between.
func (p *TransactionPoller) release(id string, entry *pollEntry) {
	p.mu.Lock()
	entry.refs--
	if entry.refs <= 0 {
		if current, ok := p.waiters[id]; ok && current == entry {
			delete(p.waiters, id)
		}
		entry.cancel()
	}
	p.mu.Unlock()
}

// run is the single poll loop for one transaction id. It resolves the shared
// entry exactly once and never issues a fetch after the window has elapsed.
func (p *TransactionPoller) run(ctx context.Context, id string, entry *pollEntry) {
	deadline := entry.started.Add(p.timeout)

	for time.Now().Before(deadline) {
		tx, err := p.api.Get(ctx, id)
		if err != nil {
			// Fan the error out to all current waiters; callers decide
			// whether to retry.
			p.logger.Debug("transaction poll failed", zap.String("transaction_id", id), zap.Error(err))
			p.resolve(entry, PollResult{}, err)
			return
		}

		switch {
		case tx.Status.IsPositive():
			p.resolve(entry, PollResult{Outcome: PollAuthorized, Transaction: tx}, nil)
			return
		case tx.Status.IsNegative():
			p.resolve(entry, PollResult{Outcome: PollDenied, Transaction: tx}, nil)
			return
		}

		select {
		case <-time.After(p.interval):
		case <-ctx.Done():
			// Last waiter left; stop polling quietly.
			return
		}
	}

	p.logger.Debug("transaction poll timed out", zap.String("transaction_id", id), zap.Duration("timeout", p.timeout))
	p.resolve(entry, PollResult{Outcome: PollTimeout}, nil)
}

// resolve publishes the entry's result and wakes every waiter. Eviction is
// left to the waiters' release calls, so a caller arriving between
// resolution and the last release still observes the shared result instead
// of starting a redundant poll.
func (p *TransactionPoller) resolve(entry *pollEntry, result PollResult, err error) {
	p.mu.Lock()
	entry.result = result
	entry.err = err
	p.mu.Unlock()
	close(entry.done)
}
