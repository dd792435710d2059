package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ErrTerminated is returned by Run when the validation strategy stopped the
// run before every row was taken.
var ErrTerminated = errors.New("import terminated")

// Options configures one run.
type Options struct {
	Behavior          Behavior
	Strategy          ValidationStrategy
	AllowedErrorCount int
	ValueSeparator    string
	PriceIsGlobal     bool
	URLSuffix         string

	// EntityLimit caps the number of entities a run may create. Zero means
	// no limit.
	EntityLimit int

	Logger *slog.Logger
}

// Importer runs one import. It is not safe for concurrent use; Report and
// Errors may be read while Run is in progress.
type Importer struct {
	opts   Options
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time

	errs      *ErrorAggregator
	skus      *SkuRegistry
	urlKeys   *URLKeyRegistry
	types     *typeSet
	validator *RowValidator
	resolver  *AttributeResolver
	stock     *StockSynchronizer

	mediaAttrID int

	statsMu       sync.RWMutex
	rowsProcessed int
	bunches       int
	created       int
	updated       int
	deleted       int
}

type noopObserver struct{}

func (noopObserver) BunchSaved(context.Context, BunchSummary) {}
func (noopObserver) ImportFinished(context.Context, Report)   {}

// NewImporter creates the registries of a run from seed.
func NewImporter(opts Options, deps Dependencies, seed Seed) (*Importer, error) {
	if deps.Attributes == nil || deps.Stores == nil || deps.Writer == nil {
		return nil, errors.New("importer requires attributes, stores and writer")
	}
	if opts.Behavior == "" {
		opts.Behavior = BehaviorAppend
	}
	if opts.ValueSeparator == "" {
		opts.ValueSeparator = ","
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.StockState == nil {
		deps.StockState = DefaultStockState{}
	}
	if deps.Transforms == nil {
		deps.Transforms = DefaultTransforms()
	}
	if deps.Types == nil {
		deps.Types = Types()
	}
	if ru, ok := deps.Uploader.(RunUploader); ok {
		deps.Uploader = ru.ForRun()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	attrSets := seed.AttributeSets
	if attrSets == nil {
		attrSets = make(map[string]int)
	}

	errs := NewErrorAggregator(opts.Strategy, opts.AllowedErrorCount)
	skus := NewSkuRegistry(seed.ExistingSKUs)
	urlKeys := NewURLKeyRegistry()
	types := newTypeSet(deps.Types, HandlerContext{
		Attributes:    deps.Attributes,
		AttributeSets: attrSets,
		Errors:        errs,
		Separator:     opts.ValueSeparator,
	})

	imp := &Importer{
		opts:    opts,
		deps:    deps,
		logger:  opts.Logger,
		now:     now,
		errs:    errs,
		skus:    skus,
		urlKeys: urlKeys,
		types:   types,
		validator: &RowValidator{
			behavior:      opts.Behavior,
			urlSuffix:     opts.URLSuffix,
			priceIsGlobal: opts.PriceIsGlobal,
			errs:          errs,
			skus:          skus,
			urlKeys:       urlKeys,
			stores:        deps.Stores,
			attrSets:      attrSets,
			types:         types,
			structural:    deps.Structural,
			options:       deps.Options,
			validated:     make(map[int]bool),
		},
		resolver: NewAttributeResolver(deps.Attributes, deps.Stores, deps.Transforms, errs),
	}
	if deps.Stock != nil {
		imp.stock = &StockSynchronizer{
			registry: deps.Stock,
			state:    deps.StockState,
			skus:     skus,
			types:    types,
			now:      now,
		}
	}
	if attr, ok := deps.Attributes.ByCode(mediaGalleryCode); ok {
		imp.mediaAttrID = attr.ID
	}
	return imp, nil
}

// Errors returns the run's error aggregator.
func (i *Importer) Errors() *ErrorAggregator {
	return i.errs
}

// SKUs returns the run's SKU registry.
func (i *Importer) SKUs() *SkuRegistry {
	return i.skus
}

// ValidateRow validates one row. Repeated calls with the same row number
// return the first verdict.
func (i *Importer) ValidateRow(row *Row) bool {
	return i.validator.Validate(row)
}

// Run processes every bunch of src and returns the run report. The context
// is checked between bunches. A fatal error stops the run and is returned;
// a run stopped by the validation strategy returns ErrTerminated.
func (i *Importer) Run(ctx context.Context, src BunchSource) (Report, error) {
	start := time.Now()
	for i.errs.Fatal() == nil {
		if err := ctx.Err(); err != nil {
			i.errs.AddFatal(fmt.Errorf("import cancelled: %w", err))
			break
		}
		bunch, err := src.NextBunch(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			i.errs.AddFatal(fmt.Errorf("read bunch: %w", err))
			break
		}
		if _, err := i.ProcessBunch(ctx, bunch); err != nil {
			i.errs.AddFatal(err)
		}
	}

	report := i.Report()
	i.deps.Observer.ImportFinished(ctx, report)
	i.logger.Info("import finished",
		"rows", report.RowsProcessed,
		"bunches", report.Bunches,
		"created", report.EntitiesCreated,
		"updated", report.EntitiesUpdated,
		"deleted", report.EntitiesDeleted,
		"critical_errors", report.CriticalErrors,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := i.errs.Fatal(); err != nil {
		return report, err
	}
	if report.Terminated {
		return report, ErrTerminated
	}
	return report, nil
}

// ProcessBunch validates, transforms and saves one bunch, then syncs its
// stock. Termination is checked once per row before validation; rows
// accepted before it tripped are still saved.
func (i *Importer) ProcessBunch(ctx context.Context, bunch *Bunch) (BunchSummary, error) {
	start := time.Now()
	summary := BunchSummary{Index: bunch.Index, Rows: len(bunch.Rows)}
	i.statsMu.Lock()
	i.bunches++
	i.rowsProcessed += len(bunch.Rows)
	i.statsMu.Unlock()

	accepted := make([]*Row, 0, len(bunch.Rows))
	for _, row := range bunch.Rows {
		if i.errs.HasToBeTerminated() {
			i.errs.MarkRowSkipped(row.Num)
			summary.Skipped++
			continue
		}
		if i.validator.Validate(row) {
			accepted = append(accepted, row)
			continue
		}
		summary.Rejected++
		i.logger.Debug("row rejected", "row", row.Num, "sku", row.SKU, "errors", rowErrorKinds(i.errs.RowErrors(row.Num)))
	}
	summary.Accepted = len(accepted)

	if i.opts.Behavior == BehaviorDelete {
		n, err := i.deleteEntities(ctx, accepted)
		if err != nil {
			return summary, err
		}
		summary.EntitiesDeleted = n
	} else {
		ws, err := i.transform(ctx, accepted)
		if err != nil {
			return summary, err
		}
		res, err := ws.flush(ctx, i.deps.Writer, i.skus, i.opts.Behavior == BehaviorReplace)
		if err != nil {
			return summary, err
		}
		i.statsMu.Lock()
		i.created += res.created
		i.updated += res.updated
		i.statsMu.Unlock()
		summary.EntitiesCreated = res.created
		summary.EntitiesUpdated = res.updated

		n, err := i.SyncStock(ctx, bunch)
		if err != nil {
			return summary, err
		}
		summary.StockItems = n
	}

	summary.Duration = time.Since(start)
	i.deps.Observer.BunchSaved(ctx, summary)
	i.logger.Info("bunch saved",
		"bunch", summary.Index,
		"rows", summary.Rows,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"skipped", summary.Skipped,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

func (i *Importer) deleteEntities(ctx context.Context, rows []*Row) (int, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, row := range rows {
		if ResolveScope(row) != ScopeDefault {
			continue
		}
		info, ok := i.skus.Get(row.SKU)
		if !ok || info.EntityID == 0 || seen[info.EntityID] {
			continue
		}
		seen[info.EntityID] = true
		ids = append(ids, info.EntityID)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := i.deps.Writer.DeleteEntities(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete entities: %w", err)
	}
	i.statsMu.Lock()
	i.deleted += len(ids)
	i.statsMu.Unlock()
	return len(ids), nil
}

// transform builds the write set of the accepted rows.
func (i *Importer) transform(ctx context.Context, rows []*Row) (*bunchWriteSet, error) {
	existing, err := i.existingImages(ctx, rows)
	if err != nil {
		return nil, err
	}
	ws := newBunchWriteSet(newMediaCollector(i.deps.Uploader, i.opts.ValueSeparator, i.mediaAttrID, existing))
	now := i.now().UTC()

	for _, row := range rows {
		scope := ResolveScope(row)
		info, _ := i.skus.Get(row.SKU)
		isNew := !info.Existing

		// Rows reaching this point passed validation; only an unknown tier
		// website can still stop them, and that ends the run.
		prices, malformed, err := parseTierPrices(row, i.deps.Stores, i.opts.PriceIsGlobal)
		if err != nil {
			return nil, err
		}
		if malformed != nil {
			return nil, fmt.Errorf("row %d: tier prices changed after validation: %w", row.Num, malformed)
		}

		if scope == ScopeDefault && !i.addEntity(ws, row, info, now) {
			continue
		}
		if ws.limited[row.SKU] {
			continue
		}

		if err := collectWebsites(row, i.deps.Stores, i.opts.ValueSeparator, ws.websites); err != nil {
			return nil, err
		}
		if err := collectCategories(ctx, row, i.deps.Categories, i.opts.ValueSeparator, i.errs, ws.categories); err != nil {
			return nil, err
		}
		ws.tierPrices = append(ws.tierPrices, prices...)

		ws.media.collect(ctx, row, i.errs)
		i.resolveTaxClass(ctx, row)

		typeID, ok := i.resolver.RowType(row, scope)
		if !ok {
			continue
		}
		handler, ok := i.types.handler(typeID)
		if !ok {
			continue
		}
		if i.opts.Behavior == BehaviorAppend || !row.Has(ColSKU) {
			row = handler.ClearEmptyData(row)
		}
		prepared := handler.PrepareAttributesWithDefaults(row, isNew)
		if err := i.resolver.Resolve(row, scope, isNew, prepared, ws.attributes); err != nil {
			return nil, fmt.Errorf("row %d: %w", row.Num, err)
		}
	}
	return ws, nil
}

// addEntity records the entity write of a default row. It returns false
// when the entity limit stops the SKU from being created.
func (i *Importer) addEntity(ws *bunchWriteSet, row *Row, info SkuInfo, now time.Time) bool {
	if ws.limited[row.SKU] {
		return false
	}
	if ws.touched[row.SKU] {
		return true
	}
	if info.Existing || info.EntityID != 0 {
		ws.touched[row.SKU] = true
		ws.updates = append(ws.updates, EntityUpdate{EntityID: info.EntityID, SKU: row.SKU, UpdatedAt: now})
		return true
	}

	i.statsMu.RLock()
	created := i.created
	i.statsMu.RUnlock()
	if limit := i.opts.EntityLimit; limit > 0 && created+len(ws.inserts) >= limit {
		i.errs.AddRowError(KindEntityLimitReached, row.Num, ColSKU, row.SKU)
		i.errs.MarkRowSkipped(row.Num)
		ws.limited[row.SKU] = true
		// Later bunches orphan the SKU's remaining rows at validation.
		i.skus.MarkInvalid(row.SKU)
		return false
	}

	hasOptions, _ := ParseFlag(row.Value(ColHasOptions))
	ws.touched[row.SKU] = true
	ws.inserts = append(ws.inserts, EntityInsert{
		SKU:        row.SKU,
		AttrSetID:  info.AttrSetID,
		TypeID:     info.TypeID,
		HasOptions: hasOptions || row.Has(ColCustomOptions),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return true
}

// resolveTaxClass replaces tax_class_name with the id of the tax class.
func (i *Importer) resolveTaxClass(ctx context.Context, row *Row) {
	name := row.Value(ColTaxClassName)
	if name == "" || i.deps.TaxClasses == nil {
		return
	}
	id, err := i.deps.TaxClasses.UpsertTaxClass(ctx, name)
	if err != nil {
		i.errs.AddRowError(KindTaxClassNotResolved, row.Num, ColTaxClassName, name)
		return
	}
	row.Set(ColTaxClassID, strconv.Itoa(id))
}

func (i *Importer) existingImages(ctx context.Context, rows []*Row) (map[string]map[string]bool, error) {
	if i.deps.Images == nil {
		return nil, nil
	}
	seen := make(map[string]bool)
	var skus []string
	for _, row := range rows {
		info, _ := i.skus.Get(row.SKU)
		if !info.Existing || seen[row.SKU] || !hasImages(row) {
			continue
		}
		seen[row.SKU] = true
		skus = append(skus, row.SKU)
	}
	if len(skus) == 0 {
		return nil, nil
	}
	existing, err := i.deps.Images.ExistingImages(ctx, skus)
	if err != nil {
		return nil, fmt.Errorf("load existing images: %w", err)
	}
	return existing, nil
}

// SyncStock saves the stock records of the bunch's rows that are allowed to
// import and returns how many were written.
func (i *Importer) SyncStock(ctx context.Context, bunch *Bunch) (int, error) {
	if i.stock == nil {
		return 0, nil
	}
	items, err := i.stock.Sync(ctx, bunch.Rows, i.allowedToImport)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := i.deps.Writer.SaveStock(ctx, items); err != nil {
		return 0, fmt.Errorf("save stock: %w", err)
	}
	return len(items), nil
}

func (i *Importer) allowedToImport(row *Row) bool {
	verdict, ok := i.validator.Verdict(row.Num)
	return ok && verdict && !i.errs.IsRowInvalid(row.Num) && row.SKU != ""
}

// Report returns the run report so far.
func (i *Importer) Report() Report {
	r := i.errs.Report()
	i.statsMu.RLock()
	defer i.statsMu.RUnlock()
	r.RowsProcessed = i.rowsProcessed
	r.Bunches = i.bunches
	r.EntitiesCreated = i.created
	r.EntitiesUpdated = i.updated
	r.EntitiesDeleted = i.deleted
	return r
}

func rowErrorKinds(errs []RowError) []ErrorKind {
	kinds := make([]ErrorKind, len(errs))
	for n, e := range errs {
		kinds[n] = e.Kind
	}
	return kinds
}
