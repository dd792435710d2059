package core

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	tableVarchar  = "catalog_product_entity_varchar"
	tableInt      = "catalog_product_entity_int"
	tableDecimal  = "catalog_product_entity_decimal"
	tableDatetime = "catalog_product_entity_datetime"
	tableText     = "catalog_product_entity_text"

	defaultSetID = 4
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testAttributes() []*Attribute {
	return []*Attribute{
		{ID: 73, Code: "name", FrontendInput: "text", BackendType: "varchar", Scope: AttrScopeStore, Table: tableVarchar, Required: true},
		{ID: 77, Code: "price", FrontendInput: "price", BackendType: "decimal", Scope: AttrScopeWebsite, Table: tableDecimal, Transform: "price"},
		{ID: 80, Code: "color", FrontendInput: "multiselect", BackendType: "varchar", Scope: AttrScopeStore, Table: tableVarchar, Transform: "array",
			Options: map[string]int{"red": 11, "blue": 12, "green": 13}},
		{ID: 94, Code: "news_from_date", FrontendInput: "date", BackendType: "datetime", Scope: AttrScopeGlobal, Table: tableDatetime},
		{ID: 97, Code: "status", FrontendInput: "select", BackendType: "int", Scope: AttrScopeWebsite, Table: tableInt,
			Options: map[string]int{"enabled": 1, "disabled": 2}, DefaultValue: "1"},
		{ID: 75, Code: "description", FrontendInput: "textarea", BackendType: "text", Scope: AttrScopeStore, Table: tableText},
		{ID: 87, Code: "image", FrontendInput: "media_image", BackendType: "varchar", Scope: AttrScopeStore, Table: tableVarchar},
		{ID: 132, Code: "tax_class_id", FrontendInput: "select", BackendType: "int", Scope: AttrScopeWebsite, Table: tableInt},
		{ID: 121, Code: "url_key", FrontendInput: "text", BackendType: "varchar", Scope: AttrScopeStore, Table: tableVarchar},
		{ID: 90, Code: "media_gallery", FrontendInput: "gallery", BackendType: "static"},
		{ID: 74, Code: "sku", FrontendInput: "text", BackendType: "static"},
	}
}

func testCatalog() *AttributeIndex {
	attrs := testAttributes()
	codes := make([]string, 0, len(attrs))
	for _, a := range attrs {
		codes = append(codes, a.Code)
	}
	return NewAttributeIndex(attrs, map[int][]string{defaultSetID: codes})
}

func testStores() *StoreIndex {
	return NewStoreIndex([]Store{
		{ID: 0, Code: "admin", WebsiteID: 0},
		{ID: 1, Code: "default", WebsiteID: 1},
		{ID: 2, Code: "french", WebsiteID: 1},
		{ID: 3, Code: "german", WebsiteID: 2},
	}, map[string]int{"base": 1, "eu": 2})
}

// testHandler is a minimal product type: required attributes on new default
// rows, multiselect labels mapped to option ids.
type testHandler struct {
	ctx HandlerContext
}

func newTestHandler(ctx HandlerContext) TypeHandler {
	return &testHandler{ctx: ctx}
}

func (h *testHandler) attrs(row *Row) []*Attribute {
	setID, ok := h.ctx.AttributeSets[row.Value(ColAttrSet)]
	if !ok {
		return nil
	}
	return h.ctx.Attributes.ForAttributeSet(setID)
}

func (h *testHandler) IsRowValid(row *Row, isNewSKU bool) bool {
	if isNewSKU && ResolveScope(row) == ScopeDefault {
		for _, a := range h.attrs(row) {
			if a.Required && !row.Has(a.Code) {
				h.ctx.Errors.AddRowError(KindValueIsRequired, row.Num, a.Code, a.Code)
			}
		}
	}
	return !h.ctx.Errors.IsRowInvalid(row.Num)
}

func (h *testHandler) ClearEmptyData(row *Row) *Row {
	out := row.Clone()
	for k, v := range out.Data {
		if k != ColSKU && strings.TrimSpace(v) == "" {
			delete(out.Data, k)
		}
	}
	return out
}

func (h *testHandler) PrepareAttributesWithDefaults(row *Row, isNewSKU bool) map[string]string {
	out := make(map[string]string)
	for _, a := range h.attrs(row) {
		if a.IsStatic() {
			continue
		}
		v, ok := row.Get(a.Code)
		if !ok {
			if isNewSKU && a.DefaultValue != "" {
				out[a.Code] = a.DefaultValue
			}
			continue
		}
		if a.IsMultiselect() {
			var ids []string
			for _, label := range SplitValues(v, h.ctx.Separator) {
				if id, ok := a.Options[strings.ToLower(label)]; ok {
					ids = append(ids, strconv.Itoa(id))
				}
			}
			v = strings.Join(ids, ",")
		}
		out[a.Code] = v
	}
	return out
}

func testTypes() []TypeDefinition {
	return []TypeDefinition{
		{ID: "simple", Label: "Simple Product", TracksQty: true, New: newTestHandler},
		{ID: "configurable", Label: "Configurable Product", New: newTestHandler},
	}
}

// fakeWriter records every write.
type fakeWriter struct {
	nextID     int64
	inserts    []EntityInsert
	updates    []EntityUpdate
	cleared    []int64
	websites   []WebsiteLink
	categories []CategoryLink
	tierPrices []TierPrice
	media      []MediaEntry
	attributes []AttributeValue
	stock      []StockItem
	deleted    []int64

	failOn string
}

func (w *fakeWriter) fail(op string) error {
	if w.failOn == op {
		return errors.New("connection reset by peer")
	}
	return nil
}

func (w *fakeWriter) SaveEntities(_ context.Context, inserts []EntityInsert, updates []EntityUpdate) (map[string]int64, error) {
	if err := w.fail("entities"); err != nil {
		return nil, err
	}
	if w.nextID == 0 {
		w.nextID = 1000
	}
	ids := make(map[string]int64, len(inserts))
	for _, in := range inserts {
		ids[in.SKU] = w.nextID
		w.nextID++
	}
	w.inserts = append(w.inserts, inserts...)
	w.updates = append(w.updates, updates...)
	return ids, nil
}

func (w *fakeWriter) ClearRelations(_ context.Context, ids []int64) error {
	w.cleared = append(w.cleared, ids...)
	return w.fail("clear")
}

func (w *fakeWriter) SaveWebsites(_ context.Context, links []WebsiteLink) error {
	w.websites = append(w.websites, links...)
	return w.fail("websites")
}

func (w *fakeWriter) SaveCategories(_ context.Context, links []CategoryLink) error {
	w.categories = append(w.categories, links...)
	return w.fail("categories")
}

func (w *fakeWriter) SaveTierPrices(_ context.Context, prices []TierPrice) error {
	w.tierPrices = append(w.tierPrices, prices...)
	return w.fail("tier")
}

func (w *fakeWriter) SaveMediaGallery(_ context.Context, entries []MediaEntry) error {
	w.media = append(w.media, entries...)
	return w.fail("media")
}

func (w *fakeWriter) SaveAttributes(_ context.Context, values []AttributeValue) error {
	w.attributes = append(w.attributes, values...)
	return w.fail("attributes")
}

func (w *fakeWriter) SaveStock(_ context.Context, items []StockItem) error {
	w.stock = append(w.stock, items...)
	return w.fail("stock")
}

func (w *fakeWriter) DeleteEntities(_ context.Context, ids []int64) error {
	w.deleted = append(w.deleted, ids...)
	return w.fail("delete")
}

// attribute returns the stored value of a cell.
func (w *fakeWriter) attribute(entityID int64, attrID, storeID int) (string, bool) {
	for _, v := range w.attributes {
		if v.EntityID == entityID && v.AttributeID == attrID && v.StoreID == storeID {
			return v.Value, true
		}
	}
	return "", false
}

// attributeStores returns the store ids a cell was written to.
func (w *fakeWriter) attributeStores(entityID int64, attrID int) []int {
	var ids []int
	for _, v := range w.attributes {
		if v.EntityID == entityID && v.AttributeID == attrID {
			ids = append(ids, v.StoreID)
		}
	}
	sort.Ints(ids)
	return ids
}

type sliceSource struct {
	bunches []*Bunch
	pos     int
}

func (s *sliceSource) NextBunch(context.Context) (*Bunch, error) {
	if s.pos >= len(s.bunches) {
		return nil, io.EOF
	}
	b := s.bunches[s.pos]
	s.pos++
	return b, nil
}

// rows builds rows numbered from first.
func rows(first int, data ...map[string]string) []*Row {
	out := make([]*Row, len(data))
	for i, d := range data {
		out[i] = NewRow(first+i, d)
	}
	return out
}

type fakeStockRegistry struct {
	existing map[int64]StockItem
}

func (f *fakeStockRegistry) DefaultScopeID() int { return 0 }

func (f *fakeStockRegistry) StockID(context.Context, int) (int, error) { return 1, nil }

func (f *fakeStockRegistry) StockItems(_ context.Context, ids []int64, _ int) (map[int64]StockItem, error) {
	out := make(map[int64]StockItem)
	for _, id := range ids {
		if item, ok := f.existing[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

type fakeUploader struct {
	calls map[string]int
	fail  map[string]bool
}

func (u *fakeUploader) Upload(_ context.Context, ref string) (string, error) {
	if u.calls == nil {
		u.calls = make(map[string]int)
	}
	u.calls[ref]++
	if u.fail[ref] {
		return "", errors.New("not found")
	}
	name := ref[strings.LastIndex(ref, "/")+1:]
	return "/" + name[:1] + "/" + name[1:2] + "/" + name, nil
}

// runUploader hands each run its own fakeUploader.
type runUploader struct {
	runs []*fakeUploader
}

func (u *runUploader) Upload(context.Context, string) (string, error) {
	return "", errors.New("shared uploader used")
}

func (u *runUploader) ForRun() Uploader {
	run := &fakeUploader{}
	u.runs = append(u.runs, run)
	return run
}

type fakeCategories struct {
	ids  map[string]int
	next int
}

func (c *fakeCategories) UpsertCategories(_ context.Context, paths, sep string) ([]int, []CategoryFailure, error) {
	var ids []int
	var failures []CategoryFailure
	for _, p := range SplitValues(paths, sep) {
		if strings.Contains(p, "//") {
			failures = append(failures, CategoryFailure{Path: p, Err: errors.New("empty name")})
			continue
		}
		id, ok := c.ids[p]
		if !ok {
			c.next++
			id = 100 + c.next
			c.ids[p] = id
		}
		ids = append(ids, id)
	}
	return ids, failures, nil
}

type fakeTaxClasses struct{}

func (fakeTaxClasses) UpsertTaxClass(_ context.Context, name string) (int, error) {
	if name == "Broken" {
		return 0, errors.New("deadlock detected")
	}
	return 2, nil
}

type recordingObserver struct {
	bunches  []BunchSummary
	finished []Report
}

func (o *recordingObserver) BunchSaved(_ context.Context, s BunchSummary) {
	o.bunches = append(o.bunches, s)
}

func (o *recordingObserver) ImportFinished(_ context.Context, r Report) {
	o.finished = append(o.finished, r)
}

// newTestImporter builds an importer over the test fixtures. existing maps
// SKU to entity id of simple products in the default set.
func newTestImporter(opts Options, w *fakeWriter, existing map[string]int64, extra func(*Dependencies)) *Importer {
	seed := Seed{
		ExistingSKUs:  make(map[string]SkuInfo),
		AttributeSets: map[string]int{"Default": defaultSetID},
	}
	for sku, id := range existing {
		seed.ExistingSKUs[sku] = SkuInfo{EntityID: id, TypeID: "simple", AttrSetID: defaultSetID, AttrSetCode: "Default"}
	}
	deps := Dependencies{
		Attributes: testCatalog(),
		Stores:     testStores(),
		Writer:     w,
		Options:    CustomOptionValidator{},
		Types:      testTypes(),
		Now:        func() time.Time { return testNow },
	}
	if extra != nil {
		extra(&deps)
	}
	if opts.ValueSeparator == "" {
		opts.ValueSeparator = ","
	}
	imp, err := NewImporter(opts, deps, seed)
	if err != nil {
		panic(err)
	}
	return imp
}
