package producttypes

import (
	"strings"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

const colConfigurableVariations = "configurable_variations"

func init() {
	core.RegisterType(core.TypeDefinition{
		ID:    "configurable",
		Label: "Configurable Product",
		New:   newHandler(checkVariations),
	})
}

// checkVariations validates "sku=...,color=red|sku=...,color=blue". Every
// key besides sku must be a global select attribute and every value one
// of its options.
func checkVariations(h *handler, row *core.Row, _ bool) {
	value := row.Value(colConfigurableVariations)
	if value == "" {
		return
	}
	entries, bad := parseEntries(value)
	if bad != "" {
		h.invalidData(row, colConfigurableVariations, "malformed pair \""+bad+"\"")
		return
	}

	for _, e := range entries {
		if e["sku"] == "" {
			h.invalidData(row, colConfigurableVariations, "sku is required")
			return
		}
		for code, label := range e {
			if code == "sku" {
				continue
			}
			attr, ok := h.Attributes.ByCode(code)
			if !ok || attr.Scope != core.AttrScopeGlobal || attr.FrontendInput != "select" {
				h.invalidData(row, colConfigurableVariations, "\""+code+"\" is not a global select attribute")
				return
			}
			if _, ok := attr.Options[strings.ToLower(label)]; !ok {
				h.invalidData(row, colConfigurableVariations, "unknown "+code+" option \""+label+"\"")
				return
			}
		}
	}
}
