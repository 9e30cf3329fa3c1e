package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/slab-engine/internal/blob"
	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/export"
	"github.com/kursadbilgin/slab-engine/internal/lifecycle"
	"github.com/kursadbilgin/slab-engine/internal/observability"
	"github.com/kursadbilgin/slab-engine/internal/ratelimit"
	"github.com/kursadbilgin/slab-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultItemDelay    = 100 * time.Millisecond
	defaultMaxBatchSize = 1000
	exportKeyPrefix     = "exports/"
)

var errOrchestratorClosed = fmt.Errorf("%w: orchestrator is shutting down", domain.ErrConflict)

// BatchRequest describes one batch run. The operation kind comes from the payload.
type BatchRequest struct {
	Title     string
	TargetIDs []string
	Payload   domain.BatchPayload
}

func (r BatchRequest) Validate(maxSize int) error {
	if r.Payload == nil {
		return fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if err := r.Payload.Validate(); err != nil {
		return err
	}
	if maxSize > 0 && len(r.TargetIDs) > maxSize {
		return fmt.Errorf("%w: batch of %d items exceeds limit of %d", domain.ErrValidation, len(r.TargetIDs), maxSize)
	}
	for _, id := range r.TargetIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: target ids must not be blank", domain.ErrValidation)
		}
	}
	return nil
}

// Artifact is the rendered document of an export run.
type Artifact struct {
	Key         string
	Format      domain.ExportFormat
	ContentType string
	Data        []byte
}

// Result summarizes a finished run. Success is true only for a completed run without failures.
type Result struct {
	OperationID string
	Status      domain.RunStatus
	Success     bool
	Completed   int
	Failed      int
	Errors      []string
	Results     []domain.ItemResult
	Artifact    *Artifact
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Errors = append([]string(nil), r.Errors...)
	out.Results = append([]domain.ItemResult(nil), r.Results...)
	return &out
}

// Subscriber receives a snapshot of every tracked operation after each state change.
type Subscriber func(ops []domain.BatchOperation)

// RunNotifier is told about every run that reaches a terminal state.
type RunNotifier interface {
	NotifyRunFinished(ctx context.Context, op domain.BatchOperation) error
}

// TransitionPublisher announces status changes to other systems.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, t domain.Transition) error
}

// Run is a handle to a submitted batch run.
type Run struct {
	ID    string
	state *runState
}

// Done is closed once the run has reached a terminal state and its result is available.
func (r *Run) Done() <-chan struct{} {
	return r.state.done
}

// Wait blocks until the run finishes or ctx is done. Cancelling ctx does not stop the run.
func (r *Run) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.state.done:
		return r.state.result.clone(), nil
	}
}

type runState struct {
	op     domain.BatchOperation
	cancel context.CancelFunc
	done   chan struct{}
	result *Result
}

// Orchestrator applies batch operations to slabs one item at a time and tracks every run until dismissed.
type Orchestrator struct {
	store       repository.SlabStore
	engine      *lifecycle.Engine
	transitions repository.TransitionRepository
	events      TransitionPublisher
	artifacts   blob.Store
	rateLimiter ratelimit.RateLimiter
	notifiers   []RunNotifier
	logger      *zap.Logger
	metrics     *observability.Metrics

	itemDelay    time.Duration
	maxBatchSize int
	now          func() time.Time
	newID        func() string
	sleep        func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	runs    map[string]*runState
	order   []string
	closed  bool
	version uint64

	subMu       sync.Mutex
	subscribers map[uint64]*subscription
	nextSubID   uint64

	wg sync.WaitGroup
}

func NewOrchestrator(store repository.SlabStore, engine *lifecycle.Engine, logger *zap.Logger) *Orchestrator {
	if engine == nil {
		engine = lifecycle.NewEngine()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		store:        store,
		engine:       engine,
		logger:       logger,
		itemDelay:    defaultItemDelay,
		maxBatchSize: defaultMaxBatchSize,
		now:          time.Now,
		newID:        uuid.NewString,
		sleep:        sleepContext,
		runs:         make(map[string]*runState),
		subscribers:  make(map[uint64]*subscription),
	}
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

func (o *Orchestrator) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if o == nil {
		return
	}
	o.rateLimiter = limiter
}

func (o *Orchestrator) SetTransitionRepository(repo repository.TransitionRepository) {
	if o == nil {
		return
	}
	o.transitions = repo
}

func (o *Orchestrator) SetTransitionPublisher(publisher TransitionPublisher) {
	if o == nil {
		return
	}
	o.events = publisher
}

func (o *Orchestrator) SetArtifactStore(store blob.Store) {
	if o == nil {
		return
	}
	o.artifacts = store
}

// SetItemDelay sets the pause between items. Zero disables it.
func (o *Orchestrator) SetItemDelay(d time.Duration) {
	if o == nil || d < 0 {
		return
	}
	o.itemDelay = d
}

func (o *Orchestrator) SetMaxBatchSize(n int) {
	if o == nil || n <= 0 {
		return
	}
	o.maxBatchSize = n
}

func (o *Orchestrator) AddNotifier(n RunNotifier) {
	if o == nil || n == nil {
		return
	}
	o.notifiers = append(o.notifiers, n)
}

// Subscribe registers fn for progress snapshots and returns a function that removes it.
func (o *Orchestrator) Subscribe(fn Subscriber) func() {
	if fn == nil {
		return func() {}
	}

	o.subMu.Lock()
	o.nextSubID++
	id := o.nextSubID
	o.subscribers[id] = &subscription{fn: fn}
	o.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subscribers, id)
			o.subMu.Unlock()
		})
	}
}

// Execute submits req and waits for its result.
func (o *Orchestrator) Execute(ctx context.Context, req BatchRequest) (*Result, error) {
	run, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return run.Wait(ctx)
}

// Submit starts a run in the background. The run outlives ctx but keeps its values.
func (o *Orchestrator) Submit(ctx context.Context, req BatchRequest) (*Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := req.Validate(o.maxBatchSize); err != nil {
		return nil, err
	}

	kind := req.Payload.Kind()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultTitle(kind, len(req.TargetIDs))
	}

	workCtx := context.WithoutCancel(ctx)
	yieldCtx, cancel := context.WithCancel(workCtx)

	state := &runState{
		op: domain.BatchOperation{
			ID:        o.newID(),
			Kind:      kind,
			Title:     title,
			TargetIDs: append([]string(nil), req.TargetIDs...),
			Total:     len(req.TargetIDs),
			Status:    domain.RunStatusRunning,
			StartTime: o.now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return nil, errOrchestratorClosed
	}
	o.runs[state.op.ID] = state
	o.order = append(o.order, state.op.ID)
	o.wg.Add(1)
	o.mu.Unlock()

	o.metrics.IncBatchRunsInFlight(kind.String())
	observability.WithContextLogger(o.logger, ctx).Info("batch run started",
		zap.String("operationId", state.op.ID),
		zap.String("kind", kind.String()),
		zap.Int("total", state.op.Total),
	)
	o.notify()

	go o.run(workCtx, yieldCtx, state, req.Payload)

	return &Run{ID: state.op.ID, state: state}, nil
}

// Cancel stops a running operation at its next yield point. It is a no-op for terminal operations.
func (o *Orchestrator) Cancel(id string) (domain.BatchOperation, error) {
	o.mu.Lock()
	state, ok := o.runs[id]
	if !ok {
		o.mu.Unlock()
		return domain.BatchOperation{}, operationNotFound(id)
	}
	if state.op.Status != domain.RunStatusRunning {
		snapshot := state.op.Clone()
		o.mu.Unlock()
		return snapshot, nil
	}

	end := o.now().UTC()
	state.op.Status = domain.RunStatusCancelled
	state.op.EndTime = &end
	snapshot := state.op.Clone()
	o.mu.Unlock()

	state.cancel()
	o.logger.Info("batch run cancelled",
		zap.String("operationId", id),
		zap.Int("completed", snapshot.Completed),
		zap.Int("failed", snapshot.Failed),
	)
	o.notify()
	return snapshot, nil
}

// Dismiss removes a terminal operation from tracking. Running operations are rejected with ErrConflict.
func (o *Orchestrator) Dismiss(id string) error {
	o.mu.Lock()
	state, ok := o.runs[id]
	if !ok {
		o.mu.Unlock()
		return operationNotFound(id)
	}
	if state.op.Status == domain.RunStatusRunning {
		o.mu.Unlock()
		return fmt.Errorf("%w: operation %s is still running", domain.ErrConflict, id)
	}

	delete(o.runs, id)
	for i, existing := range o.order {
		if existing == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	o.notify()
	return nil
}

// List returns snapshots of every tracked operation in submission order.
func (o *Orchestrator) List() []domain.BatchOperation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) Get(id string) (domain.BatchOperation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.runs[id]
	if !ok {
		return domain.BatchOperation{}, operationNotFound(id)
	}
	return state.op.Clone(), nil
}

// Shutdown rejects new runs, cancels running ones and waits for their workers to exit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	running := make([]string, 0)
	for _, id := range o.order {
		if o.runs[id].op.Status == domain.RunStatusRunning {
			running = append(running, id)
		}
	}
	o.mu.Unlock()

	for _, id := range running {
		_, _ = o.Cancel(id)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (o *Orchestrator) run(workCtx, yieldCtx context.Context, state *runState, payload domain.BatchPayload) {
	defer o.wg.Done()
	defer close(state.done)

	opID := state.op.ID
	kind := state.op.Kind
	targets := state.op.TargetIDs
	logger := observability.WithContextLogger(o.logger, workCtx).With(
		zap.String("operationId", opID),
		zap.String("kind", kind.String()),
	)
	processor := &itemProcessor{o: o}

	var results []domain.ItemResult
	var abortErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				abortErr = fmt.Errorf("%v", r)
			}
		}()

		for i, slabID := range targets {
			if i > 0 {
				o.yield(yieldCtx, kind, logger)
			}
			if !o.isRunning(state) {
				return
			}

			res, err := o.processItem(workCtx, processor, payload, slabID)
			if !o.recordItem(state, slabID, err) {
				return
			}
			if err != nil {
				logger.Debug("batch item failed", zap.String("slabId", slabID), zap.Error(err))
				continue
			}
			results = append(results, res)
		}
	}()

	var artifact *Artifact
	if p, ok := payload.(domain.ExportPayload); ok && abortErr == nil && o.isRunning(state) {
		artifact = o.buildArtifact(workCtx, opID, p, results, logger)
	}

	result := o.finish(state, results, artifact, abortErr)
	if abortErr != nil {
		logger.Error("batch run aborted", zap.Error(abortErr))
	}

	snapshot := o.snapshotOf(state)
	duration := time.Duration(0)
	if snapshot.EndTime != nil {
		duration = snapshot.EndTime.Sub(snapshot.StartTime)
	}
	o.metrics.DecBatchRunsInFlight(kind.String())
	o.metrics.IncBatchRun(kind.String(), snapshot.Status.String())
	o.metrics.ObserveBatchRunDuration(kind.String(), duration)

	logger.Info("batch run finished",
		zap.String("status", snapshot.Status.String()),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("total", snapshot.Total),
	)

	o.notify()
	o.notifyFinished(workCtx, snapshot, logger)
}

func (o *Orchestrator) processItem(
	ctx context.Context,
	processor *itemProcessor,
	payload domain.BatchPayload,
	slabID string,
) (res domain.ItemResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected panic: %v", r)
		}
	}()

	slab, err := o.store.GetByID(ctx, slabID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return res, &domain.UnitNotFoundError{ID: slabID}
		}
		return res, err
	}
	if slab == nil {
		return res, &domain.UnitNotFoundError{ID: slabID}
	}

	return payload.Accept(ctx, *slab, processor)
}

// yield pauses between items. Cancellation interrupts the pause; limiter errors only log.
func (o *Orchestrator) yield(ctx context.Context, kind domain.OperationKind, logger *zap.Logger) {
	if o.rateLimiter != nil {
		if err := o.rateLimiter.Wait(ctx, ratelimit.KeyForKind(kind)); err != nil && ctx.Err() == nil {
			logger.Warn("batch rate limiter wait failed", zap.Error(err))
		}
	}
	if ctx.Err() != nil {
		return
	}
	_ = o.sleep(ctx, o.itemDelay)
}

// recordItem stores one item outcome. It reports false once the run is no longer running.
// Counters freeze when the run turns terminal, so an item that finished after Cancel is logged
// but never counted even though its store write already landed.
func (o *Orchestrator) recordItem(state *runState, slabID string, itemErr error) bool {
	outcome := "completed"
	if itemErr != nil {
		outcome = "failed"
	}

	o.mu.Lock()
	if state.op.Status != domain.RunStatusRunning {
		status := state.op.Status
		opID := state.op.ID
		o.mu.Unlock()
		o.logger.Info("batch item outcome dropped after run stopped",
			zap.String("operationId", opID),
			zap.String("slabId", slabID),
			zap.String("outcome", outcome),
			zap.String("status", status.String()),
		)
		return false
	}
	if itemErr != nil {
		state.op.Failed++
		state.op.Errors = append(state.op.Errors, fmt.Sprintf("Item %s: %v", slabID, itemErr))
	} else {
		state.op.Completed++
	}
	kind := state.op.Kind
	o.mu.Unlock()

	o.metrics.IncBatchItem(kind.String(), outcome)
	o.notify()
	return true
}

func (o *Orchestrator) finish(state *runState, results []domain.ItemResult, artifact *Artifact, abortErr error) *Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	op := &state.op
	if op.Status == domain.RunStatusRunning {
		end := o.now().UTC()
		op.EndTime = &end
		switch {
		case abortErr != nil:
			op.Status = domain.RunStatusFailed
			op.Errors = append(op.Errors, fmt.Sprintf("Run aborted: %v", abortErr))
		case op.Failed == 0:
			op.Status = domain.RunStatusCompleted
		default:
			op.Status = domain.RunStatusFailed
		}
	}

	state.result = &Result{
		OperationID: op.ID,
		Status:      op.Status,
		Success:     op.Status == domain.RunStatusCompleted && op.Failed == 0,
		Completed:   op.Completed,
		Failed:      op.Failed,
		Errors:      append([]string(nil), op.Errors...),
		Results:     results,
		Artifact:    artifact,
	}
	state.cancel()
	return state.result
}

func (o *Orchestrator) buildArtifact(
	ctx context.Context,
	opID string,
	p domain.ExportPayload,
	results []domain.ItemResult,
	logger *zap.Logger,
) *Artifact {
	slabs := make([]domain.Slab, 0, len(results))
	for _, res := range results {
		if res.Slab != nil {
			slabs = append(slabs, *res.Slab)
		}
	}

	data, err := export.Render(p.Format, slabs, export.Options{
		IncludeImages:  p.IncludeImages,
		IncludeHistory: p.IncludeHistory,
	}, o.now().UTC())
	if err != nil {
		logger.Error("export render failed", zap.Error(err))
		return nil
	}

	artifact := &Artifact{
		Format:      p.Format,
		ContentType: export.ContentType(p.Format),
		Data:        data,
	}

	if o.artifacts == nil {
		return artifact
	}

	key := exportKeyPrefix + opID + "." + export.Extension(p.Format)
	if err := o.artifacts.Put(ctx, key, data, artifact.ContentType); err != nil {
		logger.Warn("failed to store export artifact", zap.String("key", key), zap.Error(err))
		return artifact
	}
	artifact.Key = key
	return artifact
}

func (o *Orchestrator) isRunning(state *runState) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return state.op.Status == domain.RunStatusRunning
}

func (o *Orchestrator) snapshotOf(state *runState) domain.BatchOperation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return state.op.Clone()
}

func (o *Orchestrator) snapshotLocked() []domain.BatchOperation {
	out := make([]domain.BatchOperation, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.runs[id].op.Clone())
	}
	return out
}

// notify delivers a versioned snapshot to every subscriber. A panicking subscriber is logged and skipped.
func (o *Orchestrator) notify() {
	o.mu.Lock()
	o.version++
	version := o.version
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	o.subMu.Lock()
	subs := make([]*subscription, 0, len(o.subscribers))
	for _, sub := range o.subscribers {
		subs = append(subs, sub)
	}
	o.subMu.Unlock()

	for _, sub := range subs {
		ops := make([]domain.BatchOperation, len(snapshot))
		for i := range snapshot {
			ops[i] = snapshot[i].Clone()
		}
		sub.offer(version, ops, o.deliver)
	}
}

// subscription orders deliveries to one subscriber. Snapshots arrive in version order and a
// snapshot older than one already queued is dropped, so the last delivery always matches List.
// A notify raised from inside the callback is queued and delivered after the callback returns.
type subscription struct {
	fn Subscriber

	mu         sync.Mutex
	queued     uint64
	pending    [][]domain.BatchOperation
	delivering bool
}

func (s *subscription) offer(version uint64, ops []domain.BatchOperation, deliver func(Subscriber, []domain.BatchOperation)) {
	s.mu.Lock()
	if version <= s.queued {
		s.mu.Unlock()
		return
	}
	s.queued = version
	s.pending = append(s.pending, ops)
	if s.delivering {
		s.mu.Unlock()
		return
	}

	s.delivering = true
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()

		deliver(s.fn, next)

		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}

func (o *Orchestrator) deliver(fn Subscriber, ops []domain.BatchOperation) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("batch subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(ops)
}

func (o *Orchestrator) notifyFinished(ctx context.Context, op domain.BatchOperation, logger *zap.Logger) {
	for _, n := range o.notifiers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("run notifier panicked", zap.Any("panic", r))
				}
			}()
			if err := n.NotifyRunFinished(ctx, op); err != nil {
				logger.Warn("run notifier failed", zap.Error(err))
			}
		}()
	}
}

// recordTransition persists and announces a transition. Failures are logged, never returned.
func (o *Orchestrator) recordTransition(ctx context.Context, t domain.Transition) {
	o.metrics.IncSlabTransition(t.FromStatus.String(), t.ToStatus.String())

	if o.transitions != nil {
		if err := o.transitions.Create(ctx, &t); err != nil {
			o.logger.Warn("failed to record transition", zap.String("slabId", t.SlabID), zap.Error(err))
		}
	}
	if o.events != nil {
		if err := o.events.PublishTransition(ctx, t); err != nil {
			o.logger.Warn("failed to publish transition", zap.String("slabId", t.SlabID), zap.Error(err))
		}
	}
}

func operationNotFound(id string) error {
	return fmt.Errorf("%w: operation %s", domain.ErrNotFound, id)
}

func defaultTitle(kind domain.OperationKind, n int) string {
	label := strings.ToLower(strings.ReplaceAll(kind.String(), "_", " "))
	return fmt.Sprintf("%s of %d units", label, n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
