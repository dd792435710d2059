package producttypes

import (
	"strings"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

const colAssociatedSKUs = "associated_skus"

func init() {
	core.RegisterType(core.TypeDefinition{
		ID:    "grouped",
		Label: "Grouped Product",
		New:   newHandler(checkAssociated),
	})
}

// checkAssociated validates "SKU1=2,SKU2" where the optional number is
// the default quantity.
func checkAssociated(h *handler, row *core.Row, _ bool) {
	for _, item := range core.SplitValues(row.Value(colAssociatedSKUs), ",") {
		sku, qty, hasQty := strings.Cut(item, "=")
		if strings.TrimSpace(sku) == "" {
			h.invalidData(row, colAssociatedSKUs, "empty sku")
			return
		}
		if !hasQty {
			continue
		}
		if d, ok := core.ParseDecimal(qty); !ok || d.IsNegative() {
			h.invalidData(row, colAssociatedSKUs, "invalid qty for "+strings.TrimSpace(sku))
			return
		}
	}
}
