package producttypes

import "github.com/JonMunkholm/CatalogImport/internal/core"

func init() {
	registerSimple()
	registerVirtual()
}

func registerSimple() {
	core.RegisterType(core.TypeDefinition{
		ID:        "simple",
		Label:     "Simple Product",
		TracksQty: true,
		New:       newHandler(),
	})
}

func registerVirtual() {
	core.RegisterType(core.TypeDefinition{
		ID:        "virtual",
		Label:     "Virtual Product",
		TracksQty: true,
		New:       newHandler(checkNoWeight),
	})
}

// checkNoWeight rejects a weight on products that are never shipped.
func checkNoWeight(h *handler, row *core.Row, _ bool) {
	if row.Has("weight") {
		h.invalidData(row, "weight", "virtual products have no weight")
	}
}
