package core

// collaborators.go declares everything the pipeline consumes but does not
// implement: row supply, metadata, storage, uploads and categories.

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownAttribute is returned when a prepared attribute code has no
// metadata. It is a configuration problem and stops the run.
var ErrUnknownAttribute = errors.New("unknown attribute")

// ErrUnknownWebsite is returned when a website code cannot be resolved.
var ErrUnknownWebsite = errors.New("unknown website")

// BunchSource supplies bunches in order. NextBunch returns io.EOF after the
// last bunch.
type BunchSource interface {
	NextBunch(ctx context.Context) (*Bunch, error)
}

// Seed is the persisted state a run starts from.
type Seed struct {
	// ExistingSKUs maps every persisted SKU to its entity.
	ExistingSKUs map[string]SkuInfo

	// AttributeSets maps attribute set codes to ids.
	AttributeSets map[string]int
}

// AttributeCatalog looks up attribute metadata.
type AttributeCatalog interface {
	ByCode(code string) (*Attribute, bool)
	ForAttributeSet(setID int) []*Attribute
}

// StoreResolver maps store and website codes to ids.
type StoreResolver interface {
	StoreID(code string) (int, bool)
	WebsiteID(code string) (int, bool)
	// StoreCodes returns every store view code with its id.
	StoreCodes() map[string]int
	// WebsiteStoreIDs returns every store id of the website owning storeID.
	WebsiteStoreIDs(storeID int) []int
}

// StructuralValidator performs column-level checks that do not depend on
// other rows.
type StructuralValidator interface {
	Validate(row *Row) []ValidationMessage
}

// ValidationMessage is one problem reported by a StructuralValidator.
type ValidationMessage struct {
	Kind   ErrorKind
	Column string
}

// OptionValidator checks a row's custom options. Problems are recorded in
// errs; the result reports whether the row is still usable.
type OptionValidator interface {
	ValidateRow(row *Row, errs *ErrorAggregator) bool
}

// CategoryFailure is a category path that could not be created.
type CategoryFailure struct {
	Path string
	Err  error
}

// CategoryProcessor turns a category path list into category ids, creating
// missing categories.
type CategoryProcessor interface {
	UpsertCategories(ctx context.Context, paths, separator string) ([]int, []CategoryFailure, error)
}

// Uploader stores an image and returns the reference to persist.
type Uploader interface {
	Upload(ctx context.Context, rawRef string) (string, error)
}

// RunUploader is an Uploader whose per-reference state must not outlive a
// run. Each importer uploads through its own ForRun instance.
type RunUploader interface {
	Uploader
	ForRun() Uploader
}

// ImageIndex returns, per SKU, the image references already stored.
type ImageIndex interface {
	ExistingImages(ctx context.Context, skus []string) (map[string]map[string]bool, error)
}

// StockRegistry reads persisted stock configuration and records.
type StockRegistry interface {
	DefaultScopeID() int
	StockID(ctx context.Context, websiteID int) (int, error)
	StockItems(ctx context.Context, entityIDs []int64, websiteID int) (map[int64]StockItem, error)
}

// StockStateEvaluator decides in-stock status and low-stock notification.
type StockStateEvaluator interface {
	VerifyStock(item StockItem) bool
	VerifyNotification(item StockItem) bool
}

// TaxClassResolver maps a tax class name to its id, creating it when needed.
type TaxClassResolver interface {
	UpsertTaxClass(ctx context.Context, name string) (int, error)
}

// Writer persists finished write-sets. Every method is an idempotent upsert;
// errors stop the run.
type Writer interface {
	// SaveEntities inserts new entities and touches existing ones. It returns
	// the entity id of every inserted SKU.
	SaveEntities(ctx context.Context, inserts []EntityInsert, updates []EntityUpdate) (map[string]int64, error)
	// ClearRelations removes website, category, tier price and gallery links
	// of the given entities. Used by the replace behavior.
	ClearRelations(ctx context.Context, entityIDs []int64) error
	SaveWebsites(ctx context.Context, links []WebsiteLink) error
	SaveCategories(ctx context.Context, links []CategoryLink) error
	SaveTierPrices(ctx context.Context, prices []TierPrice) error
	SaveMediaGallery(ctx context.Context, entries []MediaEntry) error
	SaveAttributes(ctx context.Context, values []AttributeValue) error
	SaveStock(ctx context.Context, items []StockItem) error
	DeleteEntities(ctx context.Context, entityIDs []int64) error
}

// Observer receives run progress. It replaces event dispatch after each
// bunch and before the run finishes.
type Observer interface {
	BunchSaved(ctx context.Context, summary BunchSummary)
	ImportFinished(ctx context.Context, report Report)
}

// Observers fans out to several observers.
type Observers []Observer

func (o Observers) BunchSaved(ctx context.Context, summary BunchSummary) {
	for _, obs := range o {
		obs.BunchSaved(ctx, summary)
	}
}

func (o Observers) ImportFinished(ctx context.Context, report Report) {
	for _, obs := range o {
		obs.ImportFinished(ctx, report)
	}
}

// Dependencies bundles the collaborators of a run. Attributes, Stores and
// Writer are required; the rest fall back to a no-op or built-in default.
type Dependencies struct {
	Attributes AttributeCatalog
	Stores     StoreResolver
	Writer     Writer

	Structural StructuralValidator
	Options    OptionValidator
	Categories CategoryProcessor
	Uploader   Uploader
	Images     ImageIndex
	Stock      StockRegistry
	StockState StockStateEvaluator
	TaxClasses TaxClassResolver
	Observer   Observer

	// Transforms overrides the built-in backend transforms.
	Transforms map[string]BackendTransform

	// Types overrides the registered product types.
	Types []TypeDefinition

	// Now overrides the clock used for entity timestamps.
	Now func() time.Time
}
