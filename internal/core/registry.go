package core

import (
	"fmt"
	"sort"
	"sync"
)

// TypeHandler validates and prepares rows of one product type.
type TypeHandler interface {
	// IsRowValid runs attribute and type specific checks, recording problems
	// in the run's ErrorAggregator.
	IsRowValid(row *Row, isNewSKU bool) bool
	// ClearEmptyData returns a copy of row without empty attribute cells.
	ClearEmptyData(row *Row) *Row
	// PrepareAttributesWithDefaults returns the attribute values to store,
	// keyed by attribute code. Option labels are converted to option ids and
	// new SKUs receive attribute defaults.
	PrepareAttributesWithDefaults(row *Row, isNewSKU bool) map[string]string
}

// HandlerContext is what a handler gets from the run that builds it.
type HandlerContext struct {
	TypeID        string
	Attributes    AttributeCatalog
	AttributeSets map[string]int
	Errors        *ErrorAggregator
	Separator     string
}

// TypeDefinition registers a product type.
type TypeDefinition struct {
	ID        string
	Label     string
	TracksQty bool
	New       func(HandlerContext) TypeHandler
}

var (
	typeRegistry   = make(map[string]TypeDefinition)
	typeRegistryMu sync.RWMutex
)

// RegisterType adds a product type to the registry.
// Panics if a type with the same id is already registered.
func RegisterType(def TypeDefinition) {
	typeRegistryMu.Lock()
	defer typeRegistryMu.Unlock()

	if def.New == nil {
		panic(fmt.Sprintf("product type %s has no handler constructor", def.ID))
	}
	if _, exists := typeRegistry[def.ID]; exists {
		panic(fmt.Sprintf("product type already registered: %s", def.ID))
	}
	typeRegistry[def.ID] = def
}

// Types returns all registered product types sorted by id.
func Types() []TypeDefinition {
	typeRegistryMu.RLock()
	defer typeRegistryMu.RUnlock()

	result := make([]TypeDefinition, 0, len(typeRegistry))
	for _, def := range typeRegistry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// typeSet is the run's snapshot of product types with their handlers.
type typeSet struct {
	defs     map[string]TypeDefinition
	handlers map[string]TypeHandler
}

func newTypeSet(defs []TypeDefinition, ctx HandlerContext) *typeSet {
	ts := &typeSet{
		defs:     make(map[string]TypeDefinition, len(defs)),
		handlers: make(map[string]TypeHandler, len(defs)),
	}
	for _, def := range defs {
		hctx := ctx
		hctx.TypeID = def.ID
		ts.defs[def.ID] = def
		ts.handlers[def.ID] = def.New(hctx)
	}
	return ts
}

func (ts *typeSet) handler(typeID string) (TypeHandler, bool) {
	h, ok := ts.handlers[typeID]
	return h, ok
}

func (ts *typeSet) tracksQty(typeID string) bool {
	return ts.defs[typeID].TracksQty
}
