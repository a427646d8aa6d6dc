// Package orchestrator drives batches through the submission pipeline. A
// fixed-interval tick scans pending batches and fans out one status-step
// handler per batch, bounded by a semaphore.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/zkrollup-network/batch-submitter/x/batch"
	"github.com/zkrollup-network/batch-submitter/x/da"
	"github.com/zkrollup-network/batch-submitter/x/da/contracts"
	"github.com/zkrollup-network/batch-submitter/x/l1"
	"github.com/zkrollup-network/batch-submitter/x/prover"
	"github.com/zkrollup-network/batch-submitter/x/resilience"
	"github.com/zkrollup-network/batch-submitter/x/storage"
)

// Config tunes the tick loop.
type Config struct {
	// TickInterval is the pause between scans.
	TickInterval time.Duration
	// MaxConcurrency bounds the handler fan-out per tick.
	MaxConcurrency int
	// MaxAttempts dead-letters a batch once its attempt count reaches it.
	MaxAttempts uint32
	// ScanLimit caps how many pending batches one tick considers.
	ScanLimit int
	// ShutdownGrace bounds how long Stop waits for in-flight handlers.
	ShutdownGrace time.Duration
	// NotFoundGrace is how long a submitted transaction may stay invisible
	// before it is rebuilt and re-broadcast.
	NotFoundGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 8
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.ScanLimit <= 0 {
		c.ScanLimit = 50
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 30 * time.Second
	}
	if c.NotFoundGrace <= 0 {
		c.NotFoundGrace = 2 * time.Minute
	}
	return c
}

// TxSubmitter broadcasts a candidate and returns its hash.
type TxSubmitter interface {
	Submit(ctx context.Context, candidate *l1.Tx) (common.Hash, error)
}

var _ TxSubmitter = (*l1.Submitter)(nil)

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Store     storage.Store
	Prover    prover.ProofProvider
	Strategy  da.Strategy
	Bridge    *contracts.BridgeBinding
	Client    l1.Client
	Submitter TxSubmitter
	Breaker   *resilience.Breaker
	Backoff   resilience.Backoff
	Metrics   *Metrics
	// OnFatal is invoked when a step returns a fatal error. The app wires it
	// to trigger shutdown.
	OnFatal func(error)
}

// Orchestrator owns all storage writes for non-terminal batches. Exactly one
// instance runs per deployment.
type Orchestrator struct {
	cfg       Config
	store     storage.Store
	prover    prover.ProofProvider
	strategy  da.Strategy
	bridge    *contracts.BridgeBinding
	client    l1.Client
	submitter TxSubmitter
	breaker   *resilience.Breaker
	backoff   resilience.Backoff
	metrics   *Metrics
	onFatal   func(error)
	log       zerolog.Logger

	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs the orchestrator.
func New(cfg Config, deps Deps, log zerolog.Logger) *Orchestrator {
	if deps.Breaker == nil {
		deps.Breaker = resilience.NewBreaker(resilience.BreakerConfig{})
	}
	if deps.Backoff == (resilience.Backoff{}) {
		deps.Backoff = resilience.DefaultBackoff()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		store:     deps.Store,
		prover:    deps.Prover,
		strategy:  deps.Strategy,
		bridge:    deps.Bridge,
		client:    deps.Client,
		submitter: deps.Submitter,
		breaker:   deps.Breaker,
		backoff:   deps.Backoff,
		metrics:   deps.Metrics,
		onFatal:   deps.OnFatal,
		log:       log.With().Str("component", "orchestrator").Logger(),
		now:       time.Now,
	}
}

// Start launches the tick loop until the context is canceled or Stop is
// called.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.done != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go o.run(runCtx)
	return nil
}

// Stop cancels the loop and waits for in-flight handlers up to the shutdown
// grace.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.cancel == nil {
		return nil
	}
	o.cancel()
	o.cancel = nil

	select {
	case <-o.done:
		return nil
	case <-time.After(o.cfg.ShutdownGrace):
		return errors.New("shutdown grace elapsed with handlers in flight")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)

	o.log.Info().
		Dur("tick_interval", o.cfg.TickInterval).
		Int("max_concurrency", o.cfg.MaxConcurrency).
		Uint32("max_attempts", o.cfg.MaxAttempts).
		Msg("orchestrator started")

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		o.Tick(ctx)
		select {
		case <-ctx.Done():
			o.log.Info().Msg("orchestrator stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one scan-and-dispatch round and waits for every handler it
// launched. A batch advances at most one step per tick.
func (o *Orchestrator) Tick(ctx context.Context) {
	batches, err := o.store.ListPending(ctx, o.cfg.ScanLimit)
	if err != nil {
		o.log.Error().Err(err).Msg("listing pending batches")
		return
	}
	o.metrics.Pending.Set(float64(len(batches)))
	if len(batches) == 0 {
		return
	}

	sem := make(chan struct{}, o.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for _, b := range batches {
		if !o.retryDue(b) {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(b *batch.Batch) {
			defer wg.Done()
			defer func() { <-sem }()
			o.processBatch(ctx, b)
		}(b)
	}
	wg.Wait()
}

// retryDue holds a failed batch back until its backoff window elapsed.
func (o *Orchestrator) retryDue(b *batch.Batch) bool {
	if b.Attempts == 0 {
		return true
	}
	return o.now().Sub(b.UpdatedAt) >= o.backoff.Duration(b.Attempts-1)
}

func (o *Orchestrator) processBatch(ctx context.Context, b *batch.Batch) {
	start := o.now()
	var (
		step string
		err  error
	)

	switch b.Status {
	case batch.StatusDiscovered, batch.StatusProving:
		step, err = "prove", o.stepProve(ctx, b)
	case batch.StatusProved, batch.StatusSubmitting:
		step, err = "submit", o.stepSubmit(ctx, b)
	case batch.StatusSubmitted:
		step, err = "confirm", o.stepConfirm(ctx, b)
	default:
		return
	}

	o.metrics.StepDuration.WithLabelValues(step).Observe(o.now().Sub(start).Seconds())
	if err != nil {
		o.handleFailure(ctx, b, err)
	}
}

// stepProve requests a proof over daCommitment || oldRoot || newRoot and
// persists the Proved batch. Re-entry in Proving re-requests the proof.
func (o *Orchestrator) stepProve(ctx context.Context, b *batch.Batch) error {
	if b.Status == batch.StatusDiscovered {
		if err := o.transition(ctx, b, batch.StatusProving); err != nil {
			return err
		}
	}

	commitment, err := o.strategy.Commitment(b)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("computing da commitment: %w", err))
	}
	oldRoot, err := o.bridge.StateRoot(ctx, o.client)
	if err != nil {
		return resilience.Transient(fmt.Errorf("reading bridge state root: %w", err))
	}

	inputs := PublicInputs(commitment, oldRoot, b.NewRoot)

	var proof []byte
	err = o.breaker.Do(ctx, func(ctx context.Context) error {
		var perr error
		proof, perr = o.prover.GetProof(ctx, b.ID, inputs)
		return perr
	})
	if err != nil {
		return err
	}

	b.Proof = proof
	b.Attempts = 0
	return o.transition(ctx, b, batch.StatusProved)
}

// stepSubmit builds the DA transaction and broadcasts it. Re-entry in
// Submitting first checks whether a previously recorded hash already landed.
func (o *Orchestrator) stepSubmit(ctx context.Context, b *batch.Batch) error {
	if b.Status == batch.StatusProved {
		if err := o.transition(ctx, b, batch.StatusSubmitting); err != nil {
			return err
		}
	} else if prior, ok := b.TxHashValue(); ok {
		conf, err := o.strategy.CheckConfirmation(ctx, prior)
		if err != nil {
			return err
		}
		if conf.State == da.ConfirmationMined || conf.State == da.ConfirmationPending {
			o.log.Info().
				Str("batch_id", b.ID.String()).
				Str("tx_hash", prior.Hex()).
				Msg("prior broadcast already landed, skipping re-send")
			b.Attempts = 0
			return o.transition(ctx, b, batch.StatusSubmitted)
		}
	}

	if len(b.Proof) == 0 {
		return resilience.Permanent(errors.New("no proof recorded for submission"))
	}

	tx, err := o.strategy.BuildTx(ctx, b)
	if err != nil {
		return err
	}
	hash, err := o.submitter.Submit(ctx, tx)
	if err != nil {
		return err
	}

	b.TxHash = hash.Bytes()
	b.Attempts = 0
	o.metrics.TxSubmitted.WithLabelValues(string(b.DAMode)).Inc()
	if err := o.transition(ctx, b, batch.StatusSubmitted); err != nil {
		return err
	}

	o.archive(ctx, b, tx)
	return nil
}

// stepConfirm interprets the receipt of the recorded transaction.
func (o *Orchestrator) stepConfirm(ctx context.Context, b *batch.Batch) error {
	hash, ok := b.TxHashValue()
	if !ok {
		return o.transition(ctx, b, batch.StatusSubmitting)
	}

	conf, err := o.strategy.CheckConfirmation(ctx, hash)
	if err != nil {
		return err
	}

	switch {
	case conf.Confirmed():
		if err := o.transition(ctx, b, batch.StatusConfirmed); err != nil {
			return err
		}
		o.metrics.BatchDuration.Observe(o.now().Sub(b.CreatedAt).Seconds())
		o.log.Info().
			Str("batch_id", b.ID.String()).
			Str("tx_hash", hash.Hex()).
			Uint64("confirmations", conf.Confirmations).
			Msg("batch confirmed")
		return nil

	case conf.State == da.ConfirmationReverted:
		b.TxHash = nil
		if err := o.transition(ctx, b, batch.StatusSubmitting); err != nil {
			return err
		}
		return resilience.Transient(fmt.Errorf("transaction %s reverted", hash.Hex()))

	case conf.State == da.ConfirmationNotFound:
		if o.now().Sub(b.UpdatedAt) < o.cfg.NotFoundGrace {
			return nil
		}
		b.TxHash = nil
		if err := o.transition(ctx, b, batch.StatusSubmitting); err != nil {
			return err
		}
		return resilience.Transient(fmt.Errorf("transaction %s not found after grace period", hash.Hex()))

	default:
		o.log.Debug().
			Str("batch_id", b.ID.String()).
			Uint64("confirmations", conf.Confirmations).
			Msg("awaiting confirmation depth")
		return nil
	}
}

// archive posts blob data off-chain, best effort.
func (o *Orchestrator) archive(ctx context.Context, b *batch.Batch, tx *l1.Tx) {
	archiver, ok := o.strategy.(da.BlobArchiver)
	if !ok || !tx.IsBlob() {
		return
	}
	if err := archiver.Archive(ctx, tx); err != nil {
		o.metrics.ArchivePosts.WithLabelValues("error").Inc()
		o.log.Warn().
			Err(err).
			Str("batch_id", b.ID.String()).
			Msg("archiving blobs failed")
		return
	}
	o.metrics.ArchivePosts.WithLabelValues("ok").Inc()
}

// transition moves the batch along a legal edge and persists it.
func (o *Orchestrator) transition(ctx context.Context, b *batch.Batch, to batch.Status) error {
	from := b.Status
	if err := b.Transition(to); err != nil {
		return resilience.Permanent(fmt.Errorf("batch %s: %s -> %s: %w", b.ID, from, to, err))
	}
	if err := o.store.Upsert(ctx, b); err != nil {
		return resilience.Transient(fmt.Errorf("persisting %s: %w", b.ID, err))
	}
	o.metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	o.log.Debug().
		Str("batch_id", b.ID.String()).
		Str("from_status", string(from)).
		Str("to_status", string(to)).
		Msg("batch transitioned")
	return nil
}

// handleFailure applies the error taxonomy: busy defers without consuming an
// attempt, transient retries up to the limit, permanent and exhausted batches
// dead-letter, fatal stops the process through the wired callback.
func (o *Orchestrator) handleFailure(ctx context.Context, b *batch.Batch, err error) {
	kind := resilience.Classify(err)
	stage := string(b.Status)

	switch kind {
	case resilience.KindBusy:
		o.log.Debug().
			Str("batch_id", b.ID.String()).
			Str("stage", stage).
			Err(err).
			Msg("dependency busy, deferring")
		return
	case resilience.KindFatal:
		o.log.Error().
			Str("batch_id", b.ID.String()).
			Str("stage", stage).
			Err(err).
			Msg("fatal error")
		if o.onFatal != nil {
			o.onFatal(err)
		}
		return
	}

	o.metrics.Failures.WithLabelValues(stage).Inc()
	b.RecordFailure(err.Error())

	if kind == resilience.KindPermanent || b.Attempts >= o.cfg.MaxAttempts {
		o.deadLetter(ctx, b, err)
		return
	}

	o.log.Warn().
		Str("batch_id", b.ID.String()).
		Str("stage", stage).
		Uint32("attempt", b.Attempts).
		Uint32("max_attempts", o.cfg.MaxAttempts).
		Err(err).
		Msg("step failed, will retry")
	if uerr := o.store.Upsert(ctx, b); uerr != nil {
		o.log.Error().Err(uerr).Str("batch_id", b.ID.String()).Msg("persisting failure state")
	}
}

func (o *Orchestrator) deadLetter(ctx context.Context, b *batch.Batch, cause error) {
	from := b.Status
	if err := o.store.MarkFailed(ctx, b.ID, cause.Error()); err != nil {
		o.log.Error().Err(err).Str("batch_id", b.ID.String()).Msg("dead-lettering batch")
		return
	}
	b.Status = batch.StatusFailed
	o.metrics.DeadLettered.Inc()
	o.metrics.Transitions.WithLabelValues(string(from), string(batch.StatusFailed)).Inc()
	o.log.Warn().
		Str("batch_id", b.ID.String()).
		Uint32("attempts", b.Attempts).
		Err(cause).
		Msg("batch dead-lettered")
}
