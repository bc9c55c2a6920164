// Package settle moves money: winner payouts and deposit refunds. Every
// transfer is keyed to a durable record (one payout per match, one refund per
// deposit) so a crash or a duplicate enqueue never double-sends.
package settle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"triad-arena/server/internal/chain"
	"triad-arena/server/internal/money"
	"triad-arena/server/internal/store"
	"triad-arena/server/logging"
)

type jobKind int

const (
	jobPayout jobKind = iota
	jobRefund
)

type job struct {
	kind      jobKind
	recordID  string
	key       string // match id for payouts, deposit id for refunds
	recipient string
	amount    money.Amount
	reason    string
}

const (
	defaultQueueSize = 256
	defaultBackoff   = 500 * time.Millisecond
)

// Options bound the worker pool and the retry policy.
type Options struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// MinConfirmations a transfer must reach before its record turns sent.
	MinConfirmations uint64
}

// Coordinator runs the transfer pipeline. Enqueue methods are safe from any
// goroutine; the store record is created before the job is queued, so the
// work survives a restart via Resume.
type Coordinator struct {
	store   store.Store
	gateway chain.Gateway
	events  logging.Publisher
	opts    Options

	jobs chan job
	wg   sync.WaitGroup

	// sleep is swapped out by tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration)
}

func New(st store.Store, gateway chain.Gateway, events logging.Publisher, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoff
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = time.Minute
	}
	return &Coordinator{
		store:   st,
		gateway: gateway,
		events:  events,
		opts:    opts,
		jobs:    make(chan job, defaultQueueSize),
		sleep: func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
		},
	}
}

// Start launches the worker pool. Workers drain until ctx cancels.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-c.jobs:
					c.process(ctx, j)
				}
			}
		}()
	}
}

// Wait blocks until every worker has exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// EnqueuePayout records and queues the winner transfer for a match. A second
// call for the same match is a no-op.
func (c *Coordinator) EnqueuePayout(matchID, recipient string, amount money.Amount) {
	ctx := context.Background()
	err := c.store.CreatePayout(ctx, &store.Payout{
		ID:          uuid.NewString(),
		MatchID:     matchID,
		Recipient:   recipient,
		AmountMinor: int64(amount),
		State:       store.TransferPending,
	})
	if err != nil {
		c.storeError(ctx, "create payout", matchID)
		return
	}
	record, err := c.store.GetPayoutByMatch(ctx, matchID)
	if err != nil {
		c.storeError(ctx, "load payout", matchID)
		return
	}
	if record.State == store.TransferSent {
		return
	}
	c.enqueue(job{
		kind:      jobPayout,
		recordID:  record.ID,
		key:       matchID,
		recipient: record.Recipient,
		amount:    money.Amount(record.AmountMinor),
	})
}

// EnqueueRefund records and queues the return of a confirmed deposit. A
// second call for the same deposit is a no-op.
func (c *Coordinator) EnqueueRefund(depositID, recipient string, amount money.Amount, reason string) {
	ctx := context.Background()
	err := c.store.CreateRefund(ctx, &store.Refund{
		ID:          uuid.NewString(),
		DepositID:   depositID,
		Recipient:   recipient,
		AmountMinor: int64(amount),
		State:       store.TransferPending,
		Reason:      reason,
	})
	if err != nil {
		c.storeError(ctx, "create refund", depositID)
		return
	}
	record, err := c.store.GetRefundByDeposit(ctx, depositID)
	if err != nil {
		c.storeError(ctx, "load refund", depositID)
		return
	}
	if record.State == store.TransferSent {
		return
	}
	c.enqueue(job{
		kind:      jobRefund,
		recordID:  record.ID,
		key:       depositID,
		recipient: record.Recipient,
		amount:    money.Amount(record.AmountMinor),
		reason:    record.Reason,
	})
}

// Resume re-queues every pending transfer. Called once at boot, after store
// reconciliation.
func (c *Coordinator) Resume(ctx context.Context) error {
	payouts, err := c.store.ListPendingPayouts(ctx)
	if err != nil {
		return err
	}
	for _, p := range payouts {
		c.enqueue(job{
			kind:      jobPayout,
			recordID:  p.ID,
			key:       p.MatchID,
			recipient: p.Recipient,
			amount:    money.Amount(p.AmountMinor),
		})
	}
	refunds, err := c.store.ListPendingRefunds(ctx)
	if err != nil {
		return err
	}
	for _, r := range refunds {
		c.enqueue(job{
			kind:      jobRefund,
			recordID:  r.ID,
			key:       r.DepositID,
			recipient: r.Recipient,
			amount:    money.Amount(r.AmountMinor),
			reason:    r.Reason,
		})
	}
	return nil
}

func (c *Coordinator) enqueue(j job) {
	c.jobs <- j
}

// process drives one transfer to a terminal record state: sent once the
// transaction is confirmed on chain, or failed with the cause recorded. Only
// transient chain errors are retried.
func (c *Coordinator) process(ctx context.Context, j job) {
	if c.alreadySent(ctx, j) {
		return
	}

	if balance, err := c.gateway.StablecoinBalance(ctx); err == nil && balance < j.amount {
		c.events.Publish(ctx, logging.Event{
			Type:     logging.EventBalanceShort,
			Severity: logging.SeverityError,
			Category: logging.CategorySettlement,
			Actor:    logging.EntityRef{ID: c.gateway.OperatorAddress(), Kind: logging.EntityKindWallet},
			Extra: map[string]any{
				"have": balance.String(),
				"need": j.amount.String(),
			},
		})
		c.markFailed(ctx, j, "insufficient operator balance")
		return
	}

	txHash, ok := c.submit(ctx, j)
	if !ok {
		return
	}
	c.awaitConfirmation(ctx, j, txHash)
}

// submit pushes the transfer to the node, retrying transient failures. A
// terminal failure marks the record failed and returns ok false.
func (c *Coordinator) submit(ctx context.Context, j job) (string, bool) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		hash, err := c.gateway.Transfer(ctx, j.recipient, j.amount)
		if err == nil {
			return hash, true
		}
		lastErr = err
		if !chain.Transient(err) {
			break
		}
		c.chainError(ctx, j, attempt, err)
		if attempt == c.opts.MaxAttempts {
			break
		}
		c.sleep(ctx, c.backoff(attempt))
		if ctx.Err() != nil {
			return "", false
		}
	}
	c.markFailed(ctx, j, lastErr.Error())
	return "", false
}

// awaitConfirmation polls until the transfer is buried under the required
// confirmations, then marks the record sent. The transfer is never
// re-submitted from here: a revert or a confirmation that never arrives
// marks the record failed for operator review.
func (c *Coordinator) awaitConfirmation(ctx context.Context, j job, txHash string) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		err := c.gateway.ConfirmTransfer(ctx, txHash, c.opts.MinConfirmations)
		if err == nil {
			c.markSent(ctx, j, txHash)
			return
		}
		lastErr = err
		if !chain.Transient(err) {
			break
		}
		c.chainError(ctx, j, attempt, err)
		if attempt == c.opts.MaxAttempts {
			break
		}
		c.sleep(ctx, c.backoff(attempt))
		if ctx.Err() != nil {
			return
		}
	}
	c.markFailed(ctx, j, "transfer "+txHash+" unconfirmed: "+lastErr.Error())
}

func (c *Coordinator) chainError(ctx context.Context, j job, attempt int, err error) {
	c.events.Publish(ctx, logging.Event{
		Type:     logging.EventChainError,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySettlement,
		Actor:    logging.EntityRef{ID: j.recipient, Kind: logging.EntityKindWallet},
		Extra:    map[string]any{"attempt": attempt, "error": err.Error()},
	})
}

// alreadySent re-reads the record so a job resumed twice cannot double-send.
func (c *Coordinator) alreadySent(ctx context.Context, j job) bool {
	switch j.kind {
	case jobPayout:
		record, err := c.store.GetPayoutByMatch(ctx, j.key)
		return err == nil && record.State == store.TransferSent
	default:
		record, err := c.store.GetRefundByDeposit(ctx, j.key)
		return err == nil && record.State == store.TransferSent
	}
}

func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.opts.BackoffBase << (attempt - 1)
	if d > c.opts.BackoffCap || d <= 0 {
		return c.opts.BackoffCap
	}
	return d
}

func (c *Coordinator) markSent(ctx context.Context, j job, txHash string) {
	eventType := logging.EventPayoutSent
	kind := "payout"
	var err error
	if j.kind == jobPayout {
		err = c.store.MarkPayoutSent(ctx, j.recordID, txHash)
	} else {
		eventType = logging.EventRefundSent
		kind = "refund"
		err = c.store.MarkRefundSent(ctx, j.recordID, txHash)
	}
	if err != nil {
		c.storeError(ctx, "mark "+kind+" sent", j.key)
		return
	}
	c.events.Publish(ctx, logging.Event{
		Type:     eventType,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySettlement,
		Actor:    logging.EntityRef{ID: j.recipient, Kind: logging.EntityKindWallet},
		Extra: map[string]any{
			"amount": j.amount.String(),
			"txHash": txHash,
			"key":    j.key,
		},
	})
}

func (c *Coordinator) markFailed(ctx context.Context, j job, cause string) {
	eventType := logging.EventPayoutFailed
	if j.kind == jobPayout {
		c.store.MarkPayoutFailed(ctx, j.recordID, cause)
	} else {
		eventType = logging.EventRefundFailed
		c.store.MarkRefundFailed(ctx, j.recordID, cause)
	}
	c.events.Publish(ctx, logging.Event{
		Type:     eventType,
		Severity: logging.SeverityError,
		Category: logging.CategorySettlement,
		Actor:    logging.EntityRef{ID: j.recipient, Kind: logging.EntityKindWallet},
		Extra: map[string]any{
			"amount": j.amount.String(),
			"key":    j.key,
			"error":  cause,
		},
	})
}

func (c *Coordinator) storeError(ctx context.Context, op, key string) {
	c.events.Publish(ctx, logging.Event{
		Type:     logging.EventStoreError,
		Severity: logging.SeverityError,
		Category: logging.CategorySettlement,
		Actor:    logging.EntityRef{ID: key, Kind: logging.EntityKindSystem},
		Extra:    map[string]any{"op": op},
	})
}
