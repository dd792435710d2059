package core

// validator.go implements row validation. Validation is idempotent per row
// number, fills the SKU and URL-key registries and tracks the entity block
// that rows without a SKU belong to.

import "sort"

// entityBlock is the most recent default row and whether it failed.
type entityBlock struct {
	sku    string
	active bool
	orphan bool
}

// RowValidator validates rows for one run.
type RowValidator struct {
	behavior      Behavior
	urlSuffix     string
	priceIsGlobal bool
	errs          *ErrorAggregator
	skus          *SkuRegistry
	urlKeys       *URLKeyRegistry
	stores        StoreResolver
	attrSets      map[string]int
	types         *typeSet
	structural    StructuralValidator
	options       OptionValidator

	validated map[int]bool
	block     entityBlock
}

// Validate reports whether row may be used downstream. A row number that was
// validated before returns its cached verdict without side effects.
func (v *RowValidator) Validate(row *Row) bool {
	if verdict, ok := v.validated[row.Num]; ok {
		return verdict
	}
	verdict := v.validate(row)
	v.validated[row.Num] = verdict
	return verdict
}

// Verdict returns the cached verdict of a row.
func (v *RowValidator) Verdict(rowNum int) (bool, bool) {
	verdict, ok := v.validated[rowNum]
	return verdict, ok
}

func (v *RowValidator) validate(row *Row) bool {
	scope := ResolveScope(row)
	v.attachToBlock(row, scope)

	if v.behavior == BehaviorDelete {
		if scope == ScopeDefault && !v.skus.IsExisting(row.SKU) {
			v.errs.AddRowError(KindSkuNotFoundToDelete, row.Num, ColSKU)
			return false
		}
		return true
	}

	if v.structural != nil {
		for _, m := range v.structural.Validate(row) {
			v.errs.AddRowError(m.Kind, row.Num, m.Column, m.Column)
		}
	}

	switch {
	case row.Orphan:
		v.errs.AddRowError(KindRowIsOrphan, row.Num, ColSKU)
		return false
	case row.SKU == "":
		v.errs.AddRowError(KindSkuIsEmpty, row.Num, ColSKU)
		return false
	case scope == ScopeStore:
		if _, ok := v.stores.StoreID(row.Value(ColStore)); !ok {
			v.errs.AddRowError(KindInvalidStore, row.Num, ColStore)
		}
	}

	info, ok := v.checkSKU(row)
	if ok && !v.errs.IsRowInvalid(row.Num) {
		v.fillFromRegistry(row, info)
		if h, found := v.types.handler(info.TypeID); found {
			h.IsRowValid(row, !info.Existing)
		}
	}

	if v.options != nil {
		v.options.ValidateRow(row, v.errs)
	}

	if !v.errs.IsRowInvalid(row.Num) {
		v.checkTierPrices(row)
	}

	if !v.errs.IsRowInvalid(row.Num) && needsURLKeyCheck(row) {
		v.checkURLKey(row)
	}

	valid := !v.errs.IsRowInvalid(row.Num)
	if scope == ScopeDefault {
		v.block.orphan = !valid
		if valid {
			v.skus.MarkValid(row.SKU)
		} else {
			v.skus.MarkInvalid(row.SKU)
		}
	}
	return valid
}

// attachToBlock starts a new entity block on default rows and lets rows
// without a SKU inherit the block's SKU and verdict.
func (v *RowValidator) attachToBlock(row *Row, scope Scope) {
	if scope == ScopeDefault {
		v.block = entityBlock{sku: row.SKU, active: true, orphan: row.Orphan}
		return
	}
	if row.SKU == "" {
		if v.block.active {
			row.SKU = v.block.sku
			row.Orphan = row.Orphan || v.block.orphan
		}
		return
	}
	if v.skus.IsInvalid(row.SKU) {
		row.Orphan = true
	}
}

// checkSKU resolves the row's SKU against the registry, registering new
// SKUs once.
func (v *RowValidator) checkSKU(row *Row) (SkuInfo, bool) {
	sku := row.SKU
	if info, ok := v.skus.Get(sku); ok {
		if _, supported := v.types.handler(info.TypeID); !supported {
			v.errs.AddRowError(KindTypeUnsupported, row.Num, ColType)
			v.block.orphan = true
			v.skus.MarkInvalid(sku)
			return SkuInfo{}, false
		}
		return info, true
	}

	typeID := row.Value(ColType)
	if _, ok := v.types.handler(typeID); !ok {
		v.errs.AddRowError(KindInvalidType, row.Num, ColType)
		return SkuInfo{}, false
	}
	setCode := row.Value(ColAttrSet)
	setID, ok := v.attrSets[setCode]
	if !ok {
		v.errs.AddRowError(KindInvalidAttrSet, row.Num, ColAttrSet)
		return SkuInfo{}, false
	}

	info := SkuInfo{TypeID: typeID, AttrSetID: setID, AttrSetCode: setCode}
	v.skus.Add(sku, info)
	return info, true
}

// fillFromRegistry gives rows without type or attribute set the values of
// their SKU so handlers and the attribute phase see them.
func (v *RowValidator) fillFromRegistry(row *Row, info SkuInfo) {
	if !row.Has(ColType) {
		row.Set(ColType, info.TypeID)
	}
	if !row.Has(ColAttrSet) && info.AttrSetCode != "" {
		row.Set(ColAttrSet, info.AttrSetCode)
	}
}

// checkTierPrices rejects a row whose tier_prices cell cannot be parsed, so
// nothing of the row is written. Unknown websites stay fatal and surface
// when the row is transformed.
func (v *RowValidator) checkTierPrices(row *Row) {
	if !row.Has(ColTierPrices) {
		return
	}
	if _, malformed, _ := parseTierPrices(row, v.stores, v.priceIsGlobal); malformed != nil {
		v.errs.AddRowError(KindInvalidTierPrice, row.Num, ColTierPrices, malformed.Error())
	}
}

// checkURLKey claims the row's url path in every targeted store.
func (v *RowValidator) checkURLKey(row *Row) {
	key := urlKeyFor(row)
	if key == "" {
		return
	}
	path := key + v.urlSuffix
	stores := v.urlStores(row)

	for _, storeID := range stores {
		if owner, _, ok := v.urlKeys.Owner(storeID, path); ok && owner != row.SKU {
			v.errs.AddRowError(KindDuplicateURLKey, row.Num, ColURLKey, key, owner)
			return
		}
	}
	for _, storeID := range stores {
		v.urlKeys.Claim(storeID, path, row.SKU, row.Num)
	}
}

// urlStores returns the row's store view, or every known store.
func (v *RowValidator) urlStores(row *Row) []int {
	if row.Has(ColStore) {
		if id, ok := v.stores.StoreID(row.Value(ColStore)); ok {
			return []int{id}
		}
		return nil
	}
	ids := make([]int, 0, len(v.stores.StoreCodes()))
	for _, id := range v.stores.StoreCodes() {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
