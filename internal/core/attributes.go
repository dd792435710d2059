package core

// attributes.go resolves attribute values per scope and records them in the
// bunch's write map. The first value recorded for a cell wins; later rows of
// the same bunch never overwrite it.

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// canonicalDateTime is the stored form of datetime attribute values.
const canonicalDateTime = "2006-01-02 15:04:05"

// BackendTransform converts a prepared value before it is stored. It must
// not keep state between calls.
type BackendTransform func(attr *Attribute, row RowView, value string) (string, error)

// DefaultTransforms returns the built-in backend transforms by name.
func DefaultTransforms() map[string]BackendTransform {
	return map[string]BackendTransform{
		"price":   transformDecimal(4),
		"weight":  transformDecimal(4),
		"decimal": transformDecimal(4),
		"boolean": transformBoolean,
		"trim":    transformTrim,
		"array":   transformOptionList,
	}
}

func transformDecimal(places int32) BackendTransform {
	return func(attr *Attribute, _ RowView, value string) (string, error) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("%s: %w", attr.Code, err)
		}
		return d.StringFixed(places), nil
	}
}

func transformBoolean(attr *Attribute, _ RowView, value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "yes", "true", "y":
		return "1", nil
	case "0", "no", "false", "n", "":
		return "0", nil
	}
	return "", fmt.Errorf("%s: not a boolean: %q", attr.Code, value)
}

func transformTrim(_ *Attribute, _ RowView, value string) (string, error) {
	return strings.TrimSpace(value), nil
}

// transformOptionList sorts and dedupes a comma separated option id list.
func transformOptionList(_ *Attribute, _ RowView, value string) (string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range strings.Split(value, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ","), nil
}

// AttributeWriteMap holds the resolved attribute cells of one bunch.
type AttributeWriteMap struct {
	values map[AttributeKey]string
	order  []AttributeKey
}

// NewAttributeWriteMap returns an empty map.
func NewAttributeWriteMap() *AttributeWriteMap {
	return &AttributeWriteMap{values: make(map[AttributeKey]string)}
}

// Has reports whether the cell is already set.
func (m *AttributeWriteMap) Has(key AttributeKey) bool {
	_, ok := m.values[key]
	return ok
}

// SetOnce records value unless the cell is already set. It reports whether
// the value was recorded.
func (m *AttributeWriteMap) SetOnce(key AttributeKey, value string) bool {
	if _, ok := m.values[key]; ok {
		return false
	}
	m.values[key] = value
	m.order = append(m.order, key)
	return true
}

// Get returns the value of a cell.
func (m *AttributeWriteMap) Get(key AttributeKey) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of cells.
func (m *AttributeWriteMap) Len() int {
	return len(m.values)
}

// Keys returns the cells in the order they were recorded.
func (m *AttributeWriteMap) Keys() []AttributeKey {
	out := make([]AttributeKey, len(m.order))
	copy(out, m.order)
	return out
}

// AttributeResolver turns prepared row values into write map cells. It keeps
// the product type and attribute set of the last rows that named them.
type AttributeResolver struct {
	catalog    AttributeCatalog
	stores     StoreResolver
	transforms map[string]BackendTransform
	errs       *ErrorAggregator

	prevType    string
	prevAttrSet string
}

// NewAttributeResolver creates a resolver for one run.
func NewAttributeResolver(catalog AttributeCatalog, stores StoreResolver, transforms map[string]BackendTransform, errs *ErrorAggregator) *AttributeResolver {
	return &AttributeResolver{
		catalog:    catalog,
		stores:     stores,
		transforms: transforms,
		errs:       errs,
	}
}

// RowType returns the product type a row is prepared with. Null rows take
// the type and attribute set of the previous rows; ok is false when a Null
// row has nothing to inherit.
func (r *AttributeResolver) RowType(row *Row, scope Scope) (string, bool) {
	typeID := row.Value(ColType)
	if typeID != "" {
		r.prevType = typeID
	}
	if set := row.Value(ColAttrSet); set != "" {
		r.prevAttrSet = set
	}
	if scope != ScopeNull {
		return typeID, typeID != ""
	}

	if r.prevAttrSet != "" {
		row.Set(ColAttrSet, r.prevAttrSet)
	}
	if typeID == "" {
		typeID = r.prevType
	}
	return typeID, typeID != ""
}

// Resolve records the prepared values of row into ws.
func (r *AttributeResolver) Resolve(row *Row, scope Scope, isNewSKU bool, prepared map[string]string, ws *AttributeWriteMap) error {
	rowStore := 0
	if scope == ScopeStore {
		rowStore, _ = r.stores.StoreID(row.Value(ColStore))
	}

	codes := make([]string, 0, len(prepared))
	for code := range prepared {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		attr, ok := r.catalog.ByCode(code)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAttribute, code)
		}
		if attr.IsStatic() {
			continue
		}
		if (scope == ScopeNull || scope == ScopeWebsite) && !attr.IsMultiselect() {
			continue
		}

		value, err := r.value(attr, row, prepared[code])
		if err != nil {
			r.errs.AddRowError(KindInvalidAttributeValue, row.Num, code, code, err.Error())
			continue
		}

		for _, storeID := range r.targetStores(attr, scope, rowStore, row.SKU, isNewSKU, ws) {
			ws.SetOnce(AttributeKey{Table: attr.Table, SKU: row.SKU, AttributeID: attr.ID, StoreID: storeID}, value)
		}
	}
	return nil
}

// value normalizes datetime values or applies the attribute's backend
// transform. Datetime attributes never go through a transform.
func (r *AttributeResolver) value(attr *Attribute, row *Row, value string) (string, error) {
	if attr.BackendType == "datetime" {
		if t, ok := ParseDateTime(value); ok {
			value = t.UTC().Format(canonicalDateTime)
		}
		return value, nil
	}
	if attr.Transform == "" {
		return value, nil
	}
	fn, ok := r.transforms[attr.Transform]
	if !ok {
		return value, nil
	}
	return fn(attr, row, value)
}

// targetStores returns the store ids a value is written to.
func (r *AttributeResolver) targetStores(attr *Attribute, scope Scope, rowStore int, sku string, isNewSKU bool, ws *AttributeWriteMap) []int {
	ids := []int{0}
	if scope != ScopeStore {
		return ids
	}

	switch attr.Scope {
	case AttrScopeWebsite:
		key := AttributeKey{Table: attr.Table, SKU: sku, AttributeID: attr.ID, StoreID: rowStore}
		if !ws.Has(key) {
			ids = r.stores.WebsiteStoreIDs(rowStore)
		}
	case AttrScopeStore:
		ids = []int{rowStore}
	}
	if isNewSKU {
		ids = append(ids, 0)
	}
	return ids
}

// ParseDateTime parses the date and datetime layouts accepted in import
// files.
func ParseDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
