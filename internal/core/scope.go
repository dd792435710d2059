package core

// ResolveScope classifies a row by the columns it fills.
//
//   - store_view_code set: ScopeStore
//   - sku set: ScopeDefault
//   - only product_websites set: ScopeWebsite
//   - anything else: ScopeNull
func ResolveScope(row *Row) Scope {
	switch {
	case row.Has(ColStore):
		return ScopeStore
	case row.Has(ColSKU):
		return ScopeDefault
	case row.Has(ColWebsites):
		return ScopeWebsite
	default:
		return ScopeNull
	}
}
