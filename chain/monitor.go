// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package chain

import (
	"context"
	"time"

	"github.com/tern-wallet/tern/tern"
	"github.com/tern-wallet/tern/tern/wait"
)

// Poll speeds for the confirmation waiter. Early polls are frequent to catch
// fast confirmations, then the interval tapers off.
const (
	fastestConfCheck = 5 * time.Second
	slowestConfCheck = time.Minute

	// DefaultConfTimeout is the default bound on a confirmation wait.
	DefaultConfTimeout = time.Hour
)

// ConfResult is the result of a confirmation wait.
type ConfResult struct {
	Status *TxStatus
	Confs  uint64
	Err    error
}

// Monitor watches transactions for confirmations on a bounded, tapering poll
// schedule. There is no unbounded polling; every wait carries an expiration
// and fails with tern.ErrConfirmationTimeout when it passes.
type Monitor struct {
	client Client
	queue  *wait.TaperingTickerQueue
	log    tern.Logger
}

// NewMonitor creates a Monitor. Run must be called for waits to be serviced.
func NewMonitor(client Client, log tern.Logger) *Monitor {
	return &Monitor{
		client: client,
		queue:  wait.NewTaperingTickerQueue(fastestConfCheck, slowestConfCheck),
		log:    log,
	}
}

// Run services confirmation waits until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	m.queue.Run(ctx)
}

// WaitForConfirmation polls until txid has at least nConfs confirmations or
// the timeout passes. Exactly one ConfResult is sent on the returned channel.
// Transient status-fetch errors are logged and retried on the next tick, not
// surfaced.
func (m *Monitor) WaitForConfirmation(ctx context.Context, txid string, nConfs uint64, timeout time.Duration) <-chan *ConfResult {
	if timeout <= 0 {
		timeout = DefaultConfTimeout
	}
	resultC := make(chan *ConfResult, 1)
	m.queue.Wait(&wait.Waiter{
		Expiration: time.Now().Add(timeout),
		TryFunc: func() wait.TryDirective {
			status, err := m.client.TxStatus(ctx, txid)
			if err != nil {
				m.log.Warnf("error checking status of %s: %v", txid, err)
				return wait.TryAgain
			}
			if !status.Confirmed {
				return wait.TryAgain
			}
			tip, err := m.client.TipHeight(ctx)
			if err != nil {
				m.log.Warnf("error fetching tip height: %v", err)
				return wait.TryAgain
			}
			var confs uint64
			if status.BlockHeight > 0 && tip >= status.BlockHeight {
				confs = tip - status.BlockHeight + 1
			}
			if confs < nConfs {
				m.log.Debugf("transaction %s has %d of %d confirmations", txid, confs, nConfs)
				return wait.TryAgain
			}
			resultC <- &ConfResult{Status: status, Confs: confs}
			return wait.DontTryAgain
		},
		ExpireFunc: func() {
			resultC <- &ConfResult{Err: tern.NewError(tern.ErrConfirmationTimeout, txid)}
		},
	})
	return resultC
}
