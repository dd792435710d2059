package core

// relations.go collects website, category and tier price relations of the
// rows in a bunch. Website and category links are per-SKU sets; tier prices
// keep file order.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// idSet is a set of ids per SKU.
type idSet map[string]map[int]struct{}

func (s idSet) add(sku string, id int) {
	ids, ok := s[sku]
	if !ok {
		ids = make(map[int]struct{})
		s[sku] = ids
	}
	ids[id] = struct{}{}
}

// collectWebsites adds the row's websites to the SKU's set. An unknown code
// is fatal.
func collectWebsites(row *Row, stores StoreResolver, sep string, into idSet) error {
	for _, code := range SplitValues(row.Value(ColWebsites), sep) {
		id, ok := stores.WebsiteID(code)
		if !ok {
			return fmt.Errorf("row %d: %w %q", row.Num, ErrUnknownWebsite, code)
		}
		into.add(row.SKU, id)
	}
	return nil
}

// collectCategories resolves the row's category paths and adds them to the
// SKU's set. Paths that cannot be created are not-critical row errors.
func collectCategories(ctx context.Context, row *Row, proc CategoryProcessor, sep string, errs *ErrorAggregator, into idSet) error {
	paths := row.Value(ColCategories)
	if paths == "" || proc == nil {
		return nil
	}
	ids, failures, err := proc.UpsertCategories(ctx, paths, sep)
	if err != nil {
		return fmt.Errorf("row %d: categories: %w", row.Num, err)
	}
	for _, f := range failures {
		reason := ""
		if f.Err != nil {
			reason = f.Err.Error()
		}
		errs.AddRowError(KindCategoryNotCreated, row.Num, ColCategories, f.Path, reason)
	}
	for _, id := range ids {
		into.add(row.SKU, id)
	}
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type tierPriceEntry struct {
	Website       flexString `json:"website"`
	CustomerGroup flexString `json:"customer_group"`
	Qty           flexString `json:"qty"`
	Price         flexString `json:"price"`
}

// tierPriceDraft is a parsed tier price still keyed by SKU.
type tierPriceDraft struct {
	sku   string
	price TierPrice
}

// parseTierPrices parses the tier_prices cell. A malformed cell returns a
// descriptive error and no prices; an unknown website code is fatal and
// reported through fatal.
func parseTierPrices(row *Row, stores StoreResolver, priceIsGlobal bool) (prices []tierPriceDraft, malformed error, fatal error) {
	raw := row.Value(ColTierPrices)
	if raw == "" {
		return nil, nil, nil
	}

	var entries []tierPriceEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err), nil
	}

	for i, e := range entries {
		qty, ok := ParseDecimal(string(e.Qty))
		if !ok || !qty.IsPositive() {
			return nil, fmt.Errorf("entry %d: qty must be a positive number", i+1), nil
		}
		value, ok := ParseDecimal(string(e.Price))
		if !ok || value.IsNegative() {
			return nil, fmt.Errorf("entry %d: price must be a non-negative number", i+1), nil
		}

		group := strings.TrimSpace(string(e.CustomerGroup))
		allGroups := strings.EqualFold(group, ValueAll)
		groupID := 0
		if !allGroups {
			id, err := strconv.Atoi(group)
			if err != nil || id < 0 {
				return nil, fmt.Errorf("entry %d: customer_group must be %s or a group id", i+1, ValueAll), nil
			}
			groupID = id
		}

		website := strings.TrimSpace(string(e.Website))
		websiteID := 0
		if !priceIsGlobal && !strings.EqualFold(website, ValueAll) {
			id, ok := stores.WebsiteID(website)
			if !ok {
				return nil, nil, fmt.Errorf("row %d: %w %q", row.Num, ErrUnknownWebsite, website)
			}
			websiteID = id
		}

		prices = append(prices, tierPriceDraft{
			sku: row.SKU,
			price: TierPrice{
				AllGroups:       allGroups,
				CustomerGroupID: groupID,
				Qty:             qty.Round(4),
				Value:           value.Round(4),
				WebsiteID:       websiteID,
			},
		})
	}
	return prices, nil, nil
}
