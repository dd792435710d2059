package core

import (
	"context"
	"fmt"
	"sort"
)

// bunchWriteSet accumulates everything one bunch writes. It is flushed
// before ProcessBunch returns.
type bunchWriteSet struct {
	inserts    []EntityInsert
	updates    []EntityUpdate
	touched    map[string]bool
	limited    map[string]bool
	websites   idSet
	categories idSet
	tierPrices []tierPriceDraft
	media      *mediaCollector
	attributes *AttributeWriteMap
}

func newBunchWriteSet(media *mediaCollector) *bunchWriteSet {
	return &bunchWriteSet{
		touched:    make(map[string]bool),
		limited:    make(map[string]bool),
		websites:   make(idSet),
		categories: make(idSet),
		media:      media,
		attributes: NewAttributeWriteMap(),
	}
}

// flushResult counts what a flush changed.
type flushResult struct {
	created int
	updated int
}

// flush persists the write set phase by phase. Entity ids assigned by the
// writer are recorded in skus before relations are resolved; relations of
// SKUs without an entity id are dropped.
func (ws *bunchWriteSet) flush(ctx context.Context, w Writer, skus *SkuRegistry, replace bool) (flushResult, error) {
	var res flushResult
	if len(ws.inserts) > 0 || len(ws.updates) > 0 {
		ids, err := w.SaveEntities(ctx, ws.inserts, ws.updates)
		if err != nil {
			return res, fmt.Errorf("save entities: %w", err)
		}
		for sku, id := range ids {
			skus.SetEntityID(sku, id)
		}
		res.created = len(ws.inserts)
		res.updated = len(ws.updates)
	}

	entityID := func(sku string) int64 {
		info, _ := skus.Get(sku)
		return info.EntityID
	}

	if replace {
		var ids []int64
		for _, u := range ws.updates {
			ids = append(ids, u.EntityID)
		}
		if len(ids) > 0 {
			if err := w.ClearRelations(ctx, ids); err != nil {
				return res, fmt.Errorf("clear relations: %w", err)
			}
		}
	}

	if links := websiteLinks(ws.websites, entityID); len(links) > 0 {
		if err := w.SaveWebsites(ctx, links); err != nil {
			return res, fmt.Errorf("save websites: %w", err)
		}
	}

	if links := categoryLinks(ws.categories, entityID); len(links) > 0 {
		if err := w.SaveCategories(ctx, links); err != nil {
			return res, fmt.Errorf("save categories: %w", err)
		}
	}

	var prices []TierPrice
	for _, d := range ws.tierPrices {
		if id := entityID(d.sku); id != 0 {
			p := d.price
			p.EntityID = id
			prices = append(prices, p)
		}
	}
	if len(prices) > 0 {
		if err := w.SaveTierPrices(ctx, prices); err != nil {
			return res, fmt.Errorf("save tier prices: %w", err)
		}
	}

	if ws.media != nil {
		var entries []MediaEntry
		for _, d := range ws.media.entries {
			if id := entityID(d.sku); id != 0 {
				e := d.entry
				e.EntityID = id
				entries = append(entries, e)
			}
		}
		if len(entries) > 0 {
			if err := w.SaveMediaGallery(ctx, entries); err != nil {
				return res, fmt.Errorf("save media gallery: %w", err)
			}
		}
	}

	var values []AttributeValue
	for _, key := range ws.attributes.Keys() {
		id := entityID(key.SKU)
		if id == 0 {
			continue
		}
		v, _ := ws.attributes.Get(key)
		values = append(values, AttributeValue{
			Table:       key.Table,
			EntityID:    id,
			AttributeID: key.AttributeID,
			StoreID:     key.StoreID,
			Value:       v,
		})
	}
	if len(values) > 0 {
		if err := w.SaveAttributes(ctx, values); err != nil {
			return res, fmt.Errorf("save attributes: %w", err)
		}
	}
	return res, nil
}

func websiteLinks(set idSet, entityID func(string) int64) []WebsiteLink {
	var links []WebsiteLink
	for _, sku := range sortedSKUs(set) {
		id := entityID(sku)
		if id == 0 {
			continue
		}
		for _, websiteID := range sortedIDs(set[sku]) {
			links = append(links, WebsiteLink{EntityID: id, WebsiteID: websiteID})
		}
	}
	return links
}

func categoryLinks(set idSet, entityID func(string) int64) []CategoryLink {
	var links []CategoryLink
	for _, sku := range sortedSKUs(set) {
		id := entityID(sku)
		if id == 0 {
			continue
		}
		for _, categoryID := range sortedIDs(set[sku]) {
			links = append(links, CategoryLink{EntityID: id, CategoryID: categoryID})
		}
	}
	return links
}

func sortedSKUs(set idSet) []string {
	skus := make([]string, 0, len(set))
	for sku := range set {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

func sortedIDs(ids map[int]struct{}) []int {
	out := make([]int, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
