package producttypes

import "github.com/JonMunkholm/CatalogImport/internal/core"

const (
	colDownloadableLinks   = "downloadable_links"
	colDownloadableSamples = "downloadable_samples"
)

func init() {
	core.RegisterType(core.TypeDefinition{
		ID:        "downloadable",
		Label:     "Downloadable Product",
		TracksQty: true,
		New:       newHandler(checkNoWeight, checkDownloadable),
	})
}

// checkDownloadable validates link and sample entries. New products need
// at least one link.
func checkDownloadable(h *handler, row *core.Row, isNewSKU bool) {
	links := row.Value(colDownloadableLinks)
	if links == "" {
		if isNewSKU && core.ResolveScope(row) == core.ScopeDefault {
			h.invalidData(row, colDownloadableLinks, "at least one link is required")
		}
	} else {
		checkDownloadableEntries(h, row, colDownloadableLinks, links)
	}

	if samples := row.Value(colDownloadableSamples); samples != "" {
		checkDownloadableEntries(h, row, colDownloadableSamples, samples)
	}
}

func checkDownloadableEntries(h *handler, row *core.Row, column, value string) {
	entries, bad := parseEntries(value)
	if bad != "" {
		h.invalidData(row, column, "malformed pair \""+bad+"\"")
		return
	}
	for _, e := range entries {
		if e["title"] == "" {
			h.invalidData(row, column, "title is required")
			return
		}
		if e["url"] == "" && e["file"] == "" {
			h.invalidData(row, column, "url or file is required")
			return
		}
	}
}
