package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type urlPathKey struct {
	storeID int
	path    string
}

type urlClaim struct {
	sku    string
	rowNum int
}

// URLKeyRegistry tracks which SKU claimed each url path per store.
type URLKeyRegistry struct {
	claims map[urlPathKey]urlClaim
}

// NewURLKeyRegistry returns an empty registry.
func NewURLKeyRegistry() *URLKeyRegistry {
	return &URLKeyRegistry{claims: make(map[urlPathKey]urlClaim)}
}

// Claim assigns path in storeID to sku. It fails, returning the current
// owner, when another SKU holds the path. Reclaiming by the same SKU
// succeeds and keeps the original row number.
func (r *URLKeyRegistry) Claim(storeID int, path, sku string, rowNum int) (string, bool) {
	key := urlPathKey{storeID: storeID, path: path}
	if c, ok := r.claims[key]; ok {
		return c.sku, c.sku == sku
	}
	r.claims[key] = urlClaim{sku: sku, rowNum: rowNum}
	return sku, true
}

// Owner returns the SKU and row holding path in storeID.
func (r *URLKeyRegistry) Owner(storeID int, path string) (string, int, bool) {
	c, ok := r.claims[urlPathKey{storeID: storeID, path: path}]
	return c.sku, c.rowNum, ok
}

// Len returns the number of claimed paths.
func (r *URLKeyRegistry) Len() int {
	return len(r.claims)
}

// FormatURLKey turns a product name into a url key: accents folded,
// lowercased, runs of other characters collapsed to a single dash.
func FormatURLKey(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// urlKeyFor returns the key a row claims: url_key lowercased, or the
// formatted name.
func urlKeyFor(row *Row) string {
	if key := row.Value(ColURLKey); key != "" {
		return strings.ToLower(key)
	}
	return FormatURLKey(row.Value(ColName))
}

// needsURLKeyCheck reports whether a row claims a url path.
func needsURLKeyCheck(row *Row) bool {
	if !row.Has(ColURLKey) && !row.Has(ColName) {
		return false
	}
	return row.Value(ColVisibility) != VisibilityNotVisible
}
