// Package syncer drives periodic sync cycles: fetch from the provider, decode,
// reconcile into the store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/codec"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/provider"
	"github.com/vdavid/vchat/internal/reconcile"
	"github.com/vdavid/vchat/internal/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrBackoff          = errors.New("backing off after failed syncs")
	ErrStopping         = errors.New("sync is stopping")
	// ErrNotRecorded is the cycle error when the store's sync time didn't
	// advance even though no step reported a failure.
	ErrNotRecorded = errors.New("sync time was not recorded")
)

type Options struct {
	// Interval between periodic triggers.
	Interval time.Duration
	// BackoffBase and BackoffMax bound the wait after consecutive failures:
	// min(BackoffMax, BackoffBase * 2^(failures-1)).
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// FetchConcurrency and FetchQPS limit per-message fetches.
	FetchConcurrency int
	FetchQPS         float64
	// MaxMessages is how many recent message ids a cycle lists.
	MaxMessages int
}

func DefaultOptions() Options {
	return Options{
		Interval:         10 * time.Second,
		BackoffBase:      10 * time.Second,
		BackoffMax:       5 * time.Minute,
		FetchConcurrency: 8,
		FetchQPS:         10,
		MaxMessages:      100,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = d.BackoffBase
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = o.BackoffBase
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = d.FetchConcurrency
	}
	if o.FetchQPS <= 0 {
		o.FetchQPS = d.FetchQPS
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = d.MaxMessages
	}
	return o
}

// CycleResult reports one sync cycle.
type CycleResult struct {
	Started  time.Time
	Finished time.Time
	Manual   bool

	Listed         int
	Skipped        int
	Fetched        int
	FetchFailures  int
	DecodeFailures int

	Reconciled reconcile.Result
	Err        error
}

// ChangedKeys are the conversation keys the cycle touched.
func (r CycleResult) ChangedKeys() []string {
	return r.Reconciled.ChangedKeys
}

// Status is a snapshot of the orchestrator state.
type Status struct {
	Running     bool
	Failures    int
	LastSuccess time.Time
	LastAttempt time.Time
	LastError   string
}

type Orchestrator struct {
	provider   provider.Provider
	auth       provider.Authenticator
	store      *store.Store
	reconciler *reconcile.Reconciler
	opts       Options
	limiter    *rate.Limiter
	log        zerolog.Logger
	now        func() time.Time

	running  atomic.Bool
	inflight sync.WaitGroup
	events   chan CycleResult

	mu          sync.Mutex
	failures    int
	lastSuccess time.Time
	lastAttempt time.Time
	lastErr     error
	stop        context.CancelFunc
	loopDone    chan struct{}

	// stopping is set while Stop waits on inflight; no cycle may be
	// claimed meanwhile.
	stopping bool
}

func New(p provider.Provider, auth provider.Authenticator, st *store.Store, r *reconcile.Reconciler, opts Options, log zerolog.Logger) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		provider:   p,
		auth:       auth,
		store:      st,
		reconciler: r,
		opts:       opts,
		limiter:    rate.NewLimiter(rate.Limit(opts.FetchQPS), opts.FetchConcurrency),
		log:        log.With().Str("component", "sync").Logger(),
		now:        time.Now,
		events:     make(chan CycleResult, 16),
	}
}

// Events delivers a CycleResult after every cycle. Results are dropped when
// nobody keeps up.
func (o *Orchestrator) Events() <-chan CycleResult {
	return o.events
}

// Start begins periodic syncing with an immediate first attempt. It is a
// no-op when already started.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stop != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	o.stop = cancel
	o.loopDone = make(chan struct{})
	go o.loop(ctx, o.loopDone)
	o.log.Info().Dur("interval", o.opts.Interval).Msg("Sync started")
}

// Stop cancels the periodic trigger and waits for an in-flight cycle. A cycle
// past the fetch stage runs to completion.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.stop, o.loopDone
	o.stop, o.loopDone = nil, nil
	if cancel != nil {
		o.stopping = true
	}
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	o.inflight.Wait()

	o.mu.Lock()
	o.stopping = false
	o.mu.Unlock()
	o.log.Info().Msg("Sync stopped")
}

func (o *Orchestrator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(o.opts.Interval)
	defer ticker.Stop()

	o.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	if err := o.acquire(false); err != nil {
		if !errors.Is(err, ErrNotAuthenticated) {
			o.log.Debug().Err(err).Msg("Skipping periodic sync")
		}
		return
	}
	o.run(ctx, false)
}

// SyncNow runs a cycle immediately, ignoring backoff. It fails with
// ErrSyncInProgress when a cycle is already running.
func (o *Orchestrator) SyncNow(ctx context.Context) (CycleResult, error) {
	if err := o.acquire(true); err != nil {
		return CycleResult{}, err
	}
	res := o.run(ctx, true)
	return res, res.Err
}

// TriggerNow starts a manual cycle in the background. The guard is checked
// synchronously so the caller learns about ErrSyncInProgress.
func (o *Orchestrator) TriggerNow(ctx context.Context) error {
	if err := o.acquire(true); err != nil {
		return err
	}
	go o.run(context.WithoutCancel(ctx), true)
	return nil
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{
		Running:     o.running.Load(),
		Failures:    o.failures,
		LastSuccess: o.lastSuccess,
		LastAttempt: o.lastAttempt,
	}
	if o.lastErr != nil {
		s.LastError = o.lastErr.Error()
	}
	return s
}

// acquire claims the running flag. On success the caller must call run.
// The claim and the inflight count change together under mu so Stop never
// waits on a counter that is still growing.
func (o *Orchestrator) acquire(manual bool) error {
	if !o.auth.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if !manual {
		if wait := o.backoffRemaining(); wait > 0 {
			return fmt.Errorf("%w: %s left", ErrBackoff, wait.Round(time.Millisecond))
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopping {
		return ErrStopping
	}
	if !o.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	o.inflight.Add(1)
	return nil
}

// backoffRemaining is how much longer a periodic trigger has to wait. The
// wait counts from the last success, or from the last attempt when there
// never was one.
func (o *Orchestrator) backoffRemaining() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failures == 0 {
		return 0
	}

	threshold := backoff(o.opts.BackoffBase, o.opts.BackoffMax, o.failures)
	anchor := o.lastSuccess
	if anchor.IsZero() {
		anchor = o.lastAttempt
	}
	elapsed := o.now().Sub(anchor)
	if elapsed >= threshold {
		return 0
	}
	return threshold - elapsed
}

// backoff returns min(limit, base * 2^(failures-1)).
func backoff(base, limit time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= limit || d <= 0 {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

func (o *Orchestrator) run(ctx context.Context, manual bool) CycleResult {
	defer o.inflight.Done()
	defer o.running.Store(false)

	res := o.cycle(ctx)
	res.Manual = manual
	o.record(res)

	select {
	case o.events <- res:
	default:
		o.log.Debug().Msg("Dropping cycle event, nobody is listening")
	}
	return res
}

func (o *Orchestrator) record(res CycleResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastAttempt = res.Started
	o.lastErr = res.Err
	if res.Err != nil {
		o.failures++
		o.log.Warn().Err(res.Err).Int("failures", o.failures).Msg("Sync cycle failed")
		return
	}
	o.failures = 0
	o.lastSuccess = res.Finished
	o.log.Info().
		Int("listed", res.Listed).
		Int("fetched", res.Fetched).
		Int("inserted", res.Reconciled.Inserted).
		Int("echoes_replaced", res.Reconciled.EchoesReplaced).
		Int("changed_conversations", len(res.Reconciled.ChangedKeys)).
		Dur("took", res.Finished.Sub(res.Started)).
		Msg("Sync cycle finished")
}

// cycle fetches, decodes and reconciles. The fetch stage honors ctx; once
// the batch is assembled the rest runs to completion regardless.
func (o *Orchestrator) cycle(ctx context.Context) (res CycleResult) {
	res.Started = o.now()
	defer func() { res.Finished = o.now() }()

	profile, err := o.provider.Profile(ctx)
	if err != nil {
		res.Err = fmt.Errorf("failed to fetch profile: %w", err)
		return res
	}
	if rec, ok := o.auth.(provider.ProfileRecorder); ok {
		rec.SetProfile(*profile)
	}
	user := profile.Email
	if user == "" {
		user = o.auth.CurrentUserEmail()
	}

	ids, err := o.provider.ListMessageIDs(ctx, o.opts.MaxMessages)
	if err != nil {
		res.Err = fmt.Errorf("failed to list messages: %w", err)
		return res
	}
	res.Listed = len(ids)

	var fresh []string
	o.store.View(func(g *store.Graph) {
		for _, id := range ids {
			if !g.HasProviderID(id) {
				fresh = append(fresh, id)
			}
		}
	})
	res.Skipped = len(ids) - len(fresh)

	batch, err := o.fetch(ctx, fresh, &res)
	if err != nil {
		res.Err = fmt.Errorf("fetch aborted: %w", err)
		return res
	}

	before := o.store.LastSyncTime()
	syncedAt := o.now().UTC().Truncate(time.Microsecond)
	if !syncedAt.After(before) {
		syncedAt = before.Add(time.Microsecond)
	}

	err = o.store.Update(context.WithoutCancel(ctx), func(g *store.Graph) error {
		r, err := o.reconciler.Apply(g, batch, user)
		if err != nil {
			return err
		}
		res.Reconciled = r
		g.MarkSynced(syncedAt)
		return nil
	})
	if err != nil {
		res.Reconciled = reconcile.Result{}
		res.Err = fmt.Errorf("failed to reconcile: %w", err)
		return res
	}
	if !o.store.LastSyncTime().After(before) {
		res.Err = ErrNotRecorded
	}
	return res
}

// fetch downloads and decodes ids in parallel. Single-message failures are
// counted and skipped; only cancellation aborts. The batch is in
// chronological order.
func (o *Orchestrator) fetch(ctx context.Context, ids []string, res *CycleResult) ([]*models.Message, error) {
	decoded := make([]*models.Message, len(ids))
	var fetchFailures, decodeFailures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.FetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := o.limiter.Wait(gctx); err != nil {
				return err
			}
			pm, err := o.provider.GetMessage(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				fetchFailures.Add(1)
				o.log.Warn().Err(err).Str("message_id", id).Msg("Failed to fetch message, skipping")
				return nil
			}
			msg, err := codec.Decode(pm)
			if err != nil {
				decodeFailures.Add(1)
				o.log.Warn().Err(err).Str("message_id", id).Msg("Failed to decode message, skipping")
				return nil
			}
			decoded[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := make([]*models.Message, 0, len(decoded))
	for _, m := range decoded {
		if m != nil {
			batch = append(batch, m)
		}
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Timestamp.Before(batch[j].Timestamp)
	})

	res.Fetched = len(batch)
	res.FetchFailures = int(fetchFailures.Load())
	res.DecodeFailures = int(decodeFailures.Load())
	return batch, nil
}
