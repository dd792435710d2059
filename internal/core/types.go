package core

// types.go defines the rows, scopes and write-set records the pipeline
// passes between its phases and the Writer.

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Column names understood by the pipeline. Any other column is either an
// attribute code or ignored.
const (
	ColSKU           = "sku"
	ColStore         = "store_view_code"
	ColAttrSet       = "attribute_set_code"
	ColType          = "product_type"
	ColWebsites      = "product_websites"
	ColCategories    = "categories"
	ColName          = "name"
	ColURLKey        = "url_key"
	ColVisibility    = "visibility"
	ColTierPrices    = "tier_prices"
	ColHasOptions    = "has_options"
	ColTaxClassName  = "tax_class_name"
	ColTaxClassID    = "tax_class_id"
	ColCustomOptions = "custom_options"
	ColMediaDisabled = "_media_is_disabled"
	ColMediaImage    = "additional_images"
)

// VisibilityNotVisible is the visibility label that exempts a row from
// URL-key checks.
const VisibilityNotVisible = "Not Visible Individually"

// ValueAll marks a tier price that applies to every website or group.
const ValueAll = "ALL"

// imageColumns lists the image columns in gallery order. Labels live in
// "<column>_label".
var imageColumns = []string{"image", "small_image", "thumbnail", "swatch_image", ColMediaImage}

// RowView is read access to a row's raw cells.
type RowView interface {
	Get(column string) (string, bool)
}

// Row is one data row of the import file.
type Row struct {
	// Num is the row's position in the file, unique within a run.
	Num int

	// Data maps column name to raw cell value.
	Data map[string]string

	// SKU is the row's SKU. Rows that leave the column empty inherit the SKU
	// of their entity block during validation.
	SKU string

	// Orphan marks a row whose entity block failed.
	Orphan bool
}

// NewRow builds a row and takes its SKU from the sku column.
func NewRow(num int, data map[string]string) *Row {
	if data == nil {
		data = make(map[string]string)
	}
	return &Row{Num: num, Data: data, SKU: strings.TrimSpace(data[ColSKU])}
}

// Get returns the raw cell and whether the column exists.
func (r *Row) Get(column string) (string, bool) {
	v, ok := r.Data[column]
	return v, ok
}

// Value returns the trimmed cell, empty when absent.
func (r *Row) Value(column string) string {
	return strings.TrimSpace(r.Data[column])
}

// Has reports whether the column holds a non-blank value.
func (r *Row) Has(column string) bool {
	return r.Value(column) != ""
}

// Set overwrites a cell.
func (r *Row) Set(column, value string) {
	r.Data[column] = value
}

// Clone returns a copy whose Data can be modified independently.
func (r *Row) Clone() *Row {
	data := make(map[string]string, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return &Row{Num: r.Num, Data: data, SKU: r.SKU, Orphan: r.Orphan}
}

// Bunch is an ordered batch of rows.
type Bunch struct {
	Index int
	Rows  []*Row
}

// Scope is the applicability level of a row.
type Scope int

const (
	ScopeDefault Scope = iota
	ScopeWebsite
	ScopeStore
	ScopeNull
)

func (s Scope) String() string {
	switch s {
	case ScopeDefault:
		return "default"
	case ScopeWebsite:
		return "website"
	case ScopeStore:
		return "store"
	default:
		return "null"
	}
}

// Behavior is the run mode.
type Behavior string

const (
	BehaviorAppend  Behavior = "append"
	BehaviorReplace Behavior = "replace"
	BehaviorDelete  Behavior = "delete"
)

// ParseBehavior converts a config or request value to a Behavior.
func ParseBehavior(s string) (Behavior, error) {
	switch b := Behavior(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BehaviorAppend, nil
	case BehaviorAppend, BehaviorReplace, BehaviorDelete:
		return b, nil
	default:
		return "", fmt.Errorf("unknown behavior %q", s)
	}
}

// ValidationStrategy decides whether critical errors stop a run.
type ValidationStrategy string

const (
	StrategySkipErrors  ValidationStrategy = "skip-errors"
	StrategyStopOnError ValidationStrategy = "stop-on-error"
)

// ParseStrategy converts a config or request value to a ValidationStrategy.
func ParseStrategy(s string) (ValidationStrategy, error) {
	switch v := ValidationStrategy(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return StrategySkipErrors, nil
	case StrategySkipErrors, StrategyStopOnError:
		return v, nil
	default:
		return "", fmt.Errorf("unknown validation strategy %q", s)
	}
}

// SkuInfo is what the run knows about a SKU.
type SkuInfo struct {
	EntityID    int64
	TypeID      string
	AttrSetID   int
	AttrSetCode string
	Existing    bool
}

// AttributeScope is the level an attribute value is stored at.
type AttributeScope int

const (
	AttrScopeStore AttributeScope = iota
	AttrScopeGlobal
	AttrScopeWebsite
)

// Attribute describes one product attribute.
type Attribute struct {
	ID            int
	Code          string
	FrontendInput string
	BackendType   string
	Scope         AttributeScope
	Table         string

	// Transform names a BackendTransform applied before the value is stored.
	Transform string

	Required     bool
	DefaultValue string

	// Options maps lowercased option labels to option ids for select,
	// multiselect and boolean inputs.
	Options map[string]int
}

// IsStatic reports whether the attribute is a column of the entity table.
func (a *Attribute) IsStatic() bool {
	return a.BackendType == "static"
}

// IsMultiselect reports whether the attribute holds several option ids.
func (a *Attribute) IsMultiselect() bool {
	return a.FrontendInput == "multiselect"
}

// ValueType is the type used for value checks: the option-based frontend
// input when there is one, the backend type otherwise.
func (a *Attribute) ValueType() string {
	switch a.FrontendInput {
	case "select", "multiselect", "boolean":
		return a.FrontendInput
	}
	return a.BackendType
}

// AttributeKey identifies one attribute cell in a bunch.
type AttributeKey struct {
	Table       string
	SKU         string
	AttributeID int
	StoreID     int
}

// EntityInsert creates a new product entity.
type EntityInsert struct {
	SKU        string
	AttrSetID  int
	TypeID     string
	HasOptions bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntityUpdate touches an existing entity.
type EntityUpdate struct {
	EntityID  int64
	SKU       string
	UpdatedAt time.Time
}

// WebsiteLink assigns an entity to a website.
type WebsiteLink struct {
	EntityID  int64
	WebsiteID int
}

// CategoryLink assigns an entity to a category.
type CategoryLink struct {
	EntityID   int64
	CategoryID int
}

// TierPrice is one quantity price rule.
type TierPrice struct {
	EntityID        int64
	AllGroups       bool
	CustomerGroupID int
	Qty             decimal.Decimal
	Value           decimal.Decimal
	WebsiteID       int
}

// MediaEntry is one gallery image.
type MediaEntry struct {
	EntityID    int64
	AttributeID int
	Label       string
	Position    int
	Disabled    bool
	Value       string
}

// AttributeValue is one resolved attribute cell ready for storage.
type AttributeValue struct {
	Table       string
	EntityID    int64
	AttributeID int
	StoreID     int
	Value       string
}

// StockItem is an inventory record.
type StockItem struct {
	EntityID  int64
	StockID   int
	WebsiteID int

	Qty                     decimal.Decimal
	MinQty                  decimal.Decimal
	UseConfigMinQty         bool
	IsQtyDecimal            bool
	Backorders              int
	UseConfigBackorders     bool
	MinSaleQty              decimal.Decimal
	UseConfigMinSaleQty     bool
	MaxSaleQty              decimal.Decimal
	UseConfigMaxSaleQty     bool
	IsInStock               bool
	NotifyStockQty          decimal.Decimal
	UseConfigNotifyStockQty bool
	ManageStock             bool
	UseConfigManageStock    bool
	LowStockDate            *time.Time
	StockStatusChangedAuto  bool
}

// BunchSummary is passed to the Observer after a bunch is saved.
type BunchSummary struct {
	Index           int
	Rows            int
	Accepted        int
	Rejected        int
	Skipped         int
	EntitiesCreated int
	EntitiesUpdated int
	EntitiesDeleted int
	StockItems      int
	Duration        time.Duration
}
