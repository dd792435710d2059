package core

import (
	"sort"
	"strings"
)

// AttributeIndex is an in-memory AttributeCatalog.
type AttributeIndex struct {
	byCode map[string]*Attribute
	bySet  map[int][]*Attribute
}

// NewAttributeIndex indexes attrs and the attribute codes of each set.
// Codes in sets that are not in attrs are ignored.
func NewAttributeIndex(attrs []*Attribute, sets map[int][]string) *AttributeIndex {
	idx := &AttributeIndex{
		byCode: make(map[string]*Attribute, len(attrs)),
		bySet:  make(map[int][]*Attribute, len(sets)),
	}
	for _, a := range attrs {
		idx.byCode[a.Code] = a
	}
	for setID, codes := range sets {
		members := make([]*Attribute, 0, len(codes))
		for _, code := range codes {
			if a, ok := idx.byCode[code]; ok {
				members = append(members, a)
			}
		}
		sort.Slice(members, func(i, j int) bool { return members[i].Code < members[j].Code })
		idx.bySet[setID] = members
	}
	return idx
}

// ByCode implements AttributeCatalog.
func (idx *AttributeIndex) ByCode(code string) (*Attribute, bool) {
	a, ok := idx.byCode[code]
	return a, ok
}

// ForAttributeSet implements AttributeCatalog.
func (idx *AttributeIndex) ForAttributeSet(setID int) []*Attribute {
	return idx.bySet[setID]
}

// Len returns the number of attributes.
func (idx *AttributeIndex) Len() int {
	return len(idx.byCode)
}

// Store is one store view.
type Store struct {
	ID        int
	Code      string
	WebsiteID int
}

// StoreIndex is an in-memory StoreResolver. Store id 0 is the admin store
// and belongs to no website.
type StoreIndex struct {
	stores   map[string]Store
	websites map[string]int
	byID     map[int]Store
}

// NewStoreIndex indexes stores and website codes. Codes are matched
// case-insensitively.
func NewStoreIndex(stores []Store, websites map[string]int) *StoreIndex {
	idx := &StoreIndex{
		stores:   make(map[string]Store, len(stores)),
		websites: make(map[string]int, len(websites)),
		byID:     make(map[int]Store, len(stores)),
	}
	for _, s := range stores {
		idx.stores[strings.ToLower(s.Code)] = s
		idx.byID[s.ID] = s
	}
	for code, id := range websites {
		idx.websites[strings.ToLower(code)] = id
	}
	return idx
}

// StoreID implements StoreResolver.
func (idx *StoreIndex) StoreID(code string) (int, bool) {
	s, ok := idx.stores[strings.ToLower(strings.TrimSpace(code))]
	return s.ID, ok
}

// WebsiteID implements StoreResolver.
func (idx *StoreIndex) WebsiteID(code string) (int, bool) {
	id, ok := idx.websites[strings.ToLower(strings.TrimSpace(code))]
	return id, ok
}

// StoreCodes implements StoreResolver. The admin store is excluded.
func (idx *StoreIndex) StoreCodes() map[string]int {
	out := make(map[string]int, len(idx.stores))
	for _, s := range idx.stores {
		if s.ID != 0 {
			out[s.Code] = s.ID
		}
	}
	return out
}

// WebsiteStoreIDs implements StoreResolver.
func (idx *StoreIndex) WebsiteStoreIDs(storeID int) []int {
	owner, ok := idx.byID[storeID]
	if !ok || owner.ID == 0 {
		return []int{storeID}
	}
	var ids []int
	for _, s := range idx.byID {
		if s.WebsiteID == owner.WebsiteID && s.ID != 0 {
			ids = append(ids, s.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

// Snapshot is the persisted metadata a run is built from.
type Snapshot struct {
	Seed       Seed
	Attributes *AttributeIndex
	Stores     *StoreIndex
}
