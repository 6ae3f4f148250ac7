package notifications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

var (
	ErrQueueFull   = errors.New("receipt queue is full")
	ErrQueueClosed = errors.New("receipt queue is closed")

	errUnknownSendingKey = errors.New("no notification for sending key")
)

const (
	DefaultReceiptQueueCapacity = 1000
	DefaultReceiptWorkers       = 2
	DefaultUnknownReceiptRetry  = 5 * time.Second
)

// Receipt is a delivery report as received from the gateway. It is never stored.
type Receipt struct {
	SendingKey   string
	StatusCode   ProviderStatus
	RawTimestamp string
	From         string
	To           string
	Success      string

	retried bool
}

type Policy string

const (
	// PolicyBlock makes Enqueue wait for room in the queue.
	PolicyBlock Policy = "block"
	// PolicyReject makes Enqueue fail with ErrQueueFull when the queue has no room.
	PolicyReject Policy = "reject"
)

func (p Policy) Valid() bool {
	return p == PolicyBlock || p == PolicyReject
}

func ParsePolicy(raw string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(raw)))
	if p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("invalid receipts policy %q: expected %q or %q", raw, PolicyBlock, PolicyReject)
}

type ReceiptQueueOptions struct {
	Capacity int
	Workers  int
	Policy   Policy
	// UnknownRetry is how long a receipt with an unknown sending key waits before it is
	// looked up a second and last time. The gateway may report before the dispatcher
	// stored the key. Zero means DefaultUnknownReceiptRetry, a negative value disables the retry.
	UnknownRetry time.Duration
	Now          func() time.Time
}

type ReceiptStats struct {
	Queued   int   `json:"queued"`
	Capacity int   `json:"capacity"`
	Workers  int   `json:"workers"`
	Applied  int64 `json:"applied"`
	Ignored  int64 `json:"ignored"`
	Retried  int64 `json:"retried"`
	Failed   int64 `json:"failed"`
}

// ReceiptQueue buffers delivery receipts and reconciles them on a fixed pool of workers.
type ReceiptQueue struct {
	store    Store
	options  ReceiptQueueOptions
	receipts chan Receipt
	logger   *logger.Logger

	mu      sync.RWMutex
	closed  bool
	done    sync.WaitGroup
	retries sync.WaitGroup
	stop    chan struct{}

	applied atomic.Int64
	ignored atomic.Int64
	retried atomic.Int64
	failed  atomic.Int64
}

func NewReceiptQueue(l *logger.Logger, store Store, options ReceiptQueueOptions) *ReceiptQueue {
	if options.Capacity <= 0 {
		options.Capacity = DefaultReceiptQueueCapacity
	}
	if options.Workers <= 0 {
		options.Workers = DefaultReceiptWorkers
	}
	if !options.Policy.Valid() {
		options.Policy = PolicyBlock
	}
	if options.UnknownRetry == 0 {
		options.UnknownRetry = DefaultUnknownReceiptRetry
	}
	if options.Now == nil {
		options.Now = func() time.Time { return time.Now().UTC() }
	}

	q := &ReceiptQueue{
		store:    store,
		options:  options,
		receipts: make(chan Receipt, options.Capacity),
		stop:     make(chan struct{}),
		logger:   l,
	}
	q.done.Add(options.Workers)
	for i := 0; i < options.Workers; i++ {
		go q.work(l.Fork("worker-%d", i))
	}
	l.Infof("started %d receipt workers, capacity %d, policy %s", options.Workers, options.Capacity, options.Policy)
	return q
}

// Enqueue hands a receipt to the workers. Under PolicyBlock it waits for room until ctx is done.
func (q *ReceiptQueue) Enqueue(ctx context.Context, r Receipt) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	if q.options.Policy == PolicyReject {
		select {
		case q.receipts <- r:
			return nil
		default:
			return ErrQueueFull
		}
	}

	select {
	case q.receipts <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting receipts and waits until the workers drained the queue.
// Receipts waiting for their retry are looked up again right away.
func (q *ReceiptQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.receipts)
	q.mu.Unlock()

	q.done.Wait()
	close(q.stop)
	q.retries.Wait()
	q.logger.Infof("receipt workers stopped: %d applied, %d ignored, %d failed", q.applied.Load(), q.ignored.Load(), q.failed.Load())
	return nil
}

func (q *ReceiptQueue) Stats() ReceiptStats {
	return ReceiptStats{
		Queued:   len(q.receipts),
		Capacity: q.options.Capacity,
		Workers:  q.options.Workers,
		Applied:  q.applied.Load(),
		Ignored:  q.ignored.Load(),
		Retried:  q.retried.Load(),
		Failed:   q.failed.Load(),
	}
}

func (q *ReceiptQueue) work(l *logger.Logger) {
	defer q.done.Done()
	for r := range q.receipts {
		q.handle(l, r)
	}
}

func (q *ReceiptQueue) handle(l *logger.Logger, r Receipt) {
	applied, err := q.reconcile(context.Background(), l, r)
	switch {
	case errors.Is(err, errUnknownSendingKey):
		if r.retried || q.options.UnknownRetry < 0 {
			l.Debugf("no notification for sending key %s, receipt %s dropped", r.SendingKey, r.StatusCode)
			q.ignored.Add(1)
			return
		}
		q.retryLater(l, r)
	case err != nil:
		q.failed.Add(1)
		l.Errorf("failed to reconcile receipt %s: %v", r.SendingKey, err)
	case applied:
		q.applied.Add(1)
	default:
		q.ignored.Add(1)
	}
}

// retryLater handles r once more after UnknownRetry, or as soon as the queue closes.
// It is only called by workers, before Close waits on retries.
func (q *ReceiptQueue) retryLater(l *logger.Logger, r Receipt) {
	r.retried = true
	q.retried.Add(1)
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(q.options.UnknownRetry)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-q.stop:
		}
		q.handle(l, r)
	}()
}

func (q *ReceiptQueue) reconcile(ctx context.Context, l *logger.Logger, r Receipt) (bool, error) {
	n, found, err := q.store.GetBySendingKey(ctx, r.SendingKey)
	if err != nil {
		return false, err
	}
	if !found {
		return false, errUnknownSendingKey
	}

	outcome := r.StatusCode.Outcome()
	if outcome == OutcomeIntermediate {
		if !r.StatusCode.Known() {
			l.Infof("unknown provider status %d for notification %s", int(r.StatusCode), n.ID)
		}
		return false, nil
	}
	if n.Status.Terminal() {
		l.Debugf("notification %s already %s, receipt %s ignored", n.ID, n.Status, r.StatusCode)
		return false, nil
	}

	change, changed := n.Reconcile(outcome, r.StatusCode.FailureReason(), q.receiptTime(r))
	if !changed {
		return false, nil
	}
	applied, err := q.store.Transition(ctx, n, change)
	if err != nil {
		return false, fmt.Errorf("failed to store %s for notification %s: %w", change.To, n.ID, err)
	}
	if applied {
		l.Debugf("notification %s: %s -> %s", n.ID, change.From, change.To)
	}
	return applied, nil
}

// receiptTime reads the gateway timestamp as unix seconds or RFC 3339, falling back to now.
func (q *ReceiptQueue) receiptTime(r Receipt) time.Time {
	if r.RawTimestamp != "" {
		if secs, err := strconv.ParseInt(r.RawTimestamp, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
		if t, err := time.Parse(time.RFC3339, r.RawTimestamp); err == nil {
			return t.UTC()
		}
	}
	return q.options.Now()
}
