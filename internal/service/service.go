// Package service runs catalog imports in the background. Each run gets an
// id, holds a limiter slot while it works and keeps its progress and report
// for later queries.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/CatalogImport/internal/config"
	"github.com/JonMunkholm/CatalogImport/internal/core"
	"github.com/JonMunkholm/CatalogImport/internal/logging"
	"github.com/JonMunkholm/CatalogImport/internal/source"
)

var (
	// ErrRunNotFound is returned for unknown or expired run ids.
	ErrRunNotFound = errors.New("import not found")

	// ErrInvalidRequest wraps problems with the submitted file or options.
	ErrInvalidRequest = errors.New("invalid import request")
)

// DefaultRetention is how long a finished run stays queryable.
const DefaultRetention = 30 * time.Minute

// Phase is the lifecycle state of a run.
type Phase string

const (
	PhaseQueued    Phase = "queued"
	PhaseLoading   Phase = "loading"
	PhaseImporting Phase = "importing"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Done reports whether the phase is final.
func (p Phase) Done() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// Progress is the live state of a run.
type Progress struct {
	RunID           string        `json:"run_id"`
	FileName        string        `json:"file_name"`
	Behavior        core.Behavior `json:"behavior"`
	Phase           Phase         `json:"phase"`
	Bunches         int           `json:"bunches"`
	RowsProcessed   int           `json:"rows_processed"`
	RowsRejected    int           `json:"rows_rejected"`
	EntitiesCreated int           `json:"entities_created"`
	EntitiesUpdated int           `json:"entities_updated"`
	EntitiesDeleted int           `json:"entities_deleted"`
	CriticalErrors  int           `json:"critical_errors"`
	Warnings        int           `json:"warnings"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
}

// Result is the outcome of a finished run.
type Result struct {
	RunID    string      `json:"run_id"`
	FileName string      `json:"file_name"`
	Phase    Phase       `json:"phase"`
	Error    string      `json:"error,omitempty"`
	Message  string      `json:"message,omitempty"`
	Code     string      `json:"code,omitempty"`
	Report   core.Report `json:"report"`
}

// Request describes an import to start. Empty options fall back to the
// configured defaults.
type Request struct {
	FileName          string
	Data              []byte
	Behavior          string
	Strategy          string
	AllowedErrorCount *int
}

// SnapshotLoader reads the catalog state a run starts from.
type SnapshotLoader func(ctx context.Context) (*core.Snapshot, error)

// TypeInfo describes a registered product type.
type TypeInfo struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	TracksQty bool   `json:"tracks_qty"`
}

// Service starts and tracks import runs.
type Service struct {
	cfg       config.ImportConfig
	load      SnapshotLoader
	deps      core.Dependencies
	limiter   *RunLimiter
	retention time.Duration

	mu   sync.RWMutex
	runs map[string]*run
}

// New returns a service building each run's importer from a fresh snapshot
// and the shared collaborators in deps. Attributes and Stores of deps are
// replaced by the snapshot's.
func New(cfg config.ImportConfig, load SnapshotLoader, deps core.Dependencies) *Service {
	return &Service{
		cfg:       cfg,
		load:      load,
		deps:      deps,
		limiter:   NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		retention: DefaultRetention,
		runs:      make(map[string]*run),
	}
}

type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	mu        sync.RWMutex
	progress  Progress
	result    *Result
	importer  *core.Importer
	listeners []chan Progress
}

// update applies fn to the progress and sends the new state to listeners.
// Slow listeners miss intermediate updates.
func (r *run) update(fn func(p *Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.progress)
	for _, ch := range r.listeners {
		select {
		case ch <- r.progress:
		default:
		}
	}
}

func (r *run) closeListeners() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.listeners {
		close(ch)
	}
	r.listeners = nil
}

// Start validates the request, opens the file and starts the run in the
// background. It waits for a limiter slot and returns the run id.
func (s *Service) Start(ctx context.Context, req Request) (string, error) {
	opts, err := s.options(req)
	if err != nil {
		return "", err
	}

	src, err := source.Open(req.FileName, bytes.NewReader(req.Data), s.cfg.BatchSize)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		src.Close()
		return "", err
	}

	id := uuid.New().String()
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), s.cfg.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}

	r := &run{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logging.ForRun(ctx, id, req.FileName),
		progress: Progress{
			RunID:     id,
			FileName:  req.FileName,
			Behavior:  opts.Behavior,
			Phase:     PhaseQueued,
			StartedAt: time.Now(),
		},
	}
	opts.Logger = r.logger

	s.mu.Lock()
	s.runs[id] = r
	s.mu.Unlock()

	r.logger.Info("import started", "behavior", opts.Behavior, "strategy", opts.Strategy)

	go func() {
		defer s.limiter.Release()
		defer src.Close()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("panic in import", "panic", p)
				s.finish(r, core.Report{}, fmt.Errorf("internal error: %v", p))
			}
		}()
		report, err := s.execute(runCtx, r, src, opts)
		s.finish(r, report, err)
	}()

	return id, nil
}

func (s *Service) options(req Request) (core.Options, error) {
	behavior := req.Behavior
	if behavior == "" {
		behavior = s.cfg.Behavior
	}
	b, err := core.ParseBehavior(behavior)
	if err != nil {
		return core.Options{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = s.cfg.ValidationStrategy
	}
	st, err := core.ParseStrategy(strategy)
	if err != nil {
		return core.Options{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	allowed := s.cfg.AllowedErrorCount
	if req.AllowedErrorCount != nil {
		if *req.AllowedErrorCount < 0 {
			return core.Options{}, fmt.Errorf("%w: allowed error count must not be negative", ErrInvalidRequest)
		}
		allowed = *req.AllowedErrorCount
	}

	return core.Options{
		Behavior:          b,
		Strategy:          st,
		AllowedErrorCount: allowed,
		ValueSeparator:    s.cfg.ValueSeparator,
		PriceIsGlobal:     s.cfg.PriceIsGlobal,
		URLSuffix:         s.cfg.URLSuffix,
		EntityLimit:       s.cfg.EntityLimit,
	}, nil
}

func (s *Service) execute(ctx context.Context, r *run, src core.BunchSource, opts core.Options) (core.Report, error) {
	defer r.cancel()

	r.update(func(p *Progress) { p.Phase = PhaseLoading })
	snap, err := s.load(ctx)
	if err != nil {
		return core.Report{}, fmt.Errorf("load catalog: %w", err)
	}

	deps := s.deps
	deps.Attributes = snap.Attributes
	deps.Stores = snap.Stores
	observers := core.Observers{&progressObserver{run: r}}
	if s.deps.Observer != nil {
		observers = append(observers, s.deps.Observer)
	}
	deps.Observer = observers

	imp, err := core.NewImporter(opts, deps, snap.Seed)
	if err != nil {
		return core.Report{}, err
	}

	r.mu.Lock()
	r.importer = imp
	r.mu.Unlock()
	r.update(func(p *Progress) { p.Phase = PhaseImporting })

	return imp.Run(ctx, src)
}

// finish records the outcome, releases listeners and schedules removal.
func (s *Service) finish(r *run, report core.Report, err error) {
	phase := PhaseCompleted
	msg := ""
	switch {
	case errors.Is(err, context.Canceled):
		phase = PhaseCancelled
		msg = err.Error()
	case err != nil:
		phase = PhaseFailed
		msg = err.Error()
	}

	now := time.Now()
	r.update(func(p *Progress) {
		p.Phase = phase
		p.Error = msg
		p.FinishedAt = &now
		p.RowsProcessed = report.RowsProcessed
		p.RowsRejected = report.RowsInvalid
		p.Bunches = report.Bunches
		p.EntitiesCreated = report.EntitiesCreated
		p.EntitiesUpdated = report.EntitiesUpdated
		p.EntitiesDeleted = report.EntitiesDeleted
		p.CriticalErrors = report.CriticalErrors
		p.Warnings = report.NotCriticalCount
	})

	r.mu.Lock()
	r.result = &Result{
		RunID:    r.id,
		FileName: r.progress.FileName,
		Phase:    phase,
		Error:    msg,
		Report:   report,
	}
	if ue := core.NewUserError(err); ue != nil && phase == PhaseFailed {
		r.result.Message = ue.User.Message
		r.result.Code = ue.User.Code
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("import run ended", "phase", phase, "error", err)
	} else {
		r.logger.Info("import run ended", "phase", phase)
	}

	r.closeListeners()
	close(r.done)
	time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		delete(s.runs, r.id)
		s.mu.Unlock()
	})
}

func (s *Service) get(id string) (*run, error) {
	s.mu.RLock()
	r, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, nil
}

// Progress returns the current state of a run.
func (s *Service) Progress(id string) (Progress, error) {
	r, err := s.get(id)
	if err != nil {
		return Progress{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress, nil
}

// Subscribe returns a channel of progress updates, starting with the
// current state. The channel is closed when the run finishes.
func (s *Service) Subscribe(id string) (<-chan Progress, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 10)
	r.mu.Lock()
	defer r.mu.Unlock()
	ch <- r.progress
	if r.progress.Phase.Done() {
		close(ch)
		return ch, nil
	}
	r.listeners = append(r.listeners, ch)
	return ch, nil
}

// Cancel stops a run. Bunches already saved stay saved.
func (s *Service) Cancel(id string) error {
	r, err := s.get(id)
	if err != nil {
		return err
	}
	r.logger.Info("import cancel requested")
	r.cancel()
	return nil
}

// Result waits for a run to finish and returns its outcome.
func (s *Service) Result(ctx context.Context, id string) (*Result, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result, nil
}

// Errors returns the row errors recorded so far. It does not wait for the
// run to finish.
func (s *Service) Errors(id string) ([]core.RowError, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case r.result != nil:
		return r.result.Report.Errors, nil
	case r.importer != nil:
		return r.importer.Errors().Report().Errors, nil
	default:
		return nil, nil
	}
}

// ProductTypes lists the product types runs accept.
func (s *Service) ProductTypes() []TypeInfo {
	defs := s.deps.Types
	if defs == nil {
		defs = core.Types()
	}
	out := make([]TypeInfo, len(defs))
	for i, def := range defs {
		out[i] = TypeInfo{ID: def.ID, Label: def.Label, TracksQty: def.TracksQty}
	}
	return out
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Shutdown cancels every active run and waits for them to stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.RUnlock()
	return s.limiter.WaitForDrain(ctx)
}

// progressObserver feeds bunch summaries into a run's progress.
type progressObserver struct {
	run *run
}

func (o *progressObserver) BunchSaved(_ context.Context, sum core.BunchSummary) {
	o.run.mu.RLock()
	imp := o.run.importer
	o.run.mu.RUnlock()
	critical, warnings := 0, 0
	if imp != nil {
		critical = imp.Errors().ErrorsCount(core.SeverityCritical)
		warnings = imp.Errors().ErrorsCount(core.SeverityNotCritical)
	}

	o.run.update(func(p *Progress) {
		p.CriticalErrors = critical
		p.Warnings = warnings
		p.Bunches++
		p.RowsProcessed += sum.Rows
		p.RowsRejected += sum.Rejected
		p.EntitiesCreated += sum.EntitiesCreated
		p.EntitiesUpdated += sum.EntitiesUpdated
		p.EntitiesDeleted += sum.EntitiesDeleted
	})
	o.run.logger.Debug("bunch saved", "bunch", sum.Index, "rows", sum.Rows, "rejected", sum.Rejected)
}

func (o *progressObserver) ImportFinished(context.Context, core.Report) {}
