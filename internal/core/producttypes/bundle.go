package producttypes

import (
	"strings"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

const colBundleValues = "bundle_values"

// bundleDynamicColumns hold dynamic or fixed.
var bundleDynamicColumns = []string{"bundle_price_type", "bundle_sku_type", "bundle_weight_type"}

var bundleOptionTypes = map[string]bool{
	"select":   true,
	"radio":    true,
	"checkbox": true,
	"multi":    true,
}

func init() {
	core.RegisterType(core.TypeDefinition{
		ID:    "bundle",
		Label: "Bundle Product",
		New:   newHandler(checkBundle),
	})
}

// checkBundle validates the dynamic/fixed columns and the bundle
// selections in "name=...,type=...,sku=...|..." form.
func checkBundle(h *handler, row *core.Row, _ bool) {
	for _, column := range bundleDynamicColumns {
		switch strings.ToLower(row.Value(column)) {
		case "", "dynamic", "fixed":
		default:
			h.invalidData(row, column, "must be dynamic or fixed")
		}
	}

	value := row.Value(colBundleValues)
	if value == "" {
		return
	}
	entries, bad := parseEntries(value)
	if bad != "" {
		h.invalidData(row, colBundleValues, "malformed pair \""+bad+"\"")
		return
	}
	for _, e := range entries {
		switch {
		case e["name"] == "":
			h.invalidData(row, colBundleValues, "name is required")
		case !bundleOptionTypes[strings.ToLower(e["type"])]:
			h.invalidData(row, colBundleValues, "unknown option type \""+e["type"]+"\"")
		case e["sku"] == "":
			h.invalidData(row, colBundleValues, "sku is required")
		default:
			continue
		}
		return
	}
}
