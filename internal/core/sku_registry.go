package core

// SkuRegistry is the run-wide map of SKUs to entities. It starts with the
// persisted SKUs; new SKUs are added once and never overwritten.
type SkuRegistry struct {
	entries map[string]SkuInfo
	invalid map[string]bool
	added   int
}

// NewSkuRegistry seeds a registry with persisted entities.
func NewSkuRegistry(existing map[string]SkuInfo) *SkuRegistry {
	entries := make(map[string]SkuInfo, len(existing))
	for sku, info := range existing {
		info.Existing = true
		entries[sku] = info
	}
	return &SkuRegistry{
		entries: entries,
		invalid: make(map[string]bool),
	}
}

// Get returns the entry for sku.
func (r *SkuRegistry) Get(sku string) (SkuInfo, bool) {
	info, ok := r.entries[sku]
	return info, ok
}

// IsExisting reports whether sku was persisted before the run.
func (r *SkuRegistry) IsExisting(sku string) bool {
	info, ok := r.entries[sku]
	return ok && info.Existing
}

// Add registers a new SKU. It returns false, leaving the entry untouched,
// when the SKU is already known.
func (r *SkuRegistry) Add(sku string, info SkuInfo) bool {
	if _, ok := r.entries[sku]; ok {
		return false
	}
	info.Existing = false
	r.entries[sku] = info
	r.added++
	return true
}

// SetEntityID records the id the Writer assigned to a new SKU.
func (r *SkuRegistry) SetEntityID(sku string, id int64) {
	if info, ok := r.entries[sku]; ok {
		info.EntityID = id
		r.entries[sku] = info
	}
}

// MarkInvalid flags a SKU whose default row failed; rows that reference it
// later are orphans.
func (r *SkuRegistry) MarkInvalid(sku string) {
	r.invalid[sku] = true
}

// MarkValid clears the invalid flag after a later default row succeeds.
func (r *SkuRegistry) MarkValid(sku string) {
	delete(r.invalid, sku)
}

// IsInvalid reports whether sku was flagged by MarkInvalid.
func (r *SkuRegistry) IsInvalid(sku string) bool {
	return r.invalid[sku]
}

// Len returns the number of entries, persisted ones included.
func (r *SkuRegistry) Len() int {
	return len(r.entries)
}

// Added returns how many new SKUs were registered during the run.
func (r *SkuRegistry) Added() int {
	return r.added
}
