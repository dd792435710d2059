package core

// stock.go derives inventory records. Values are merged from built-in
// defaults, the persisted record, the row and the computed ids, in that
// order of precedence.

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Backorder modes.
const (
	BackordersNo = 0
)

// DefaultStockItem returns the built-in stock values.
func DefaultStockItem() StockItem {
	return StockItem{
		Qty:                     decimal.Zero,
		MinQty:                  decimal.Zero,
		UseConfigMinQty:         true,
		Backorders:              BackordersNo,
		UseConfigBackorders:     true,
		MinSaleQty:              decimal.NewFromInt(1),
		UseConfigMinSaleQty:     true,
		MaxSaleQty:              decimal.NewFromInt(10000),
		UseConfigMaxSaleQty:     true,
		IsInStock:               true,
		NotifyStockQty:          decimal.NewFromInt(1),
		UseConfigNotifyStockQty: true,
		ManageStock:             true,
		UseConfigManageStock:    true,
	}
}

// applyRow overwrites the fields the row supplies. Unparsable cells are
// left alone; the structural validator reports them.
func (s *StockItem) applyRow(row *Row) {
	decimals := map[string]*decimal.Decimal{
		"qty":              &s.Qty,
		"min_qty":          &s.MinQty,
		"min_sale_qty":     &s.MinSaleQty,
		"max_sale_qty":     &s.MaxSaleQty,
		"notify_stock_qty": &s.NotifyStockQty,
	}
	for col, field := range decimals {
		if d, ok := ParseDecimal(row.Value(col)); ok {
			*field = d
		}
	}

	flags := map[string]*bool{
		"use_config_min_qty":          &s.UseConfigMinQty,
		"is_qty_decimal":              &s.IsQtyDecimal,
		"use_config_backorders":       &s.UseConfigBackorders,
		"use_config_min_sale_qty":     &s.UseConfigMinSaleQty,
		"use_config_max_sale_qty":     &s.UseConfigMaxSaleQty,
		"is_in_stock":                 &s.IsInStock,
		"use_config_notify_stock_qty": &s.UseConfigNotifyStockQty,
		"manage_stock":                &s.ManageStock,
		"use_config_manage_stock":     &s.UseConfigManageStock,
	}
	for col, field := range flags {
		if b, ok := ParseFlag(row.Value(col)); ok {
			*field = b
		}
	}

	if d, ok := ParseDecimal(row.Value("backorders")); ok {
		s.Backorders = int(d.IntPart())
	}
}

// DefaultStockState implements StockStateEvaluator with the standard rules.
type DefaultStockState struct{}

// VerifyStock reports whether the item can be sold.
func (DefaultStockState) VerifyStock(item StockItem) bool {
	if item.Backorders == BackordersNo && item.Qty.LessThanOrEqual(item.MinQty) {
		return false
	}
	return true
}

// VerifyNotification reports whether the item is below its notify level.
func (DefaultStockState) VerifyNotification(item StockItem) bool {
	return item.Qty.LessThan(item.NotifyStockQty)
}

// StockSynchronizer builds stock rows for saved entities.
type StockSynchronizer struct {
	registry StockRegistry
	state    StockStateEvaluator
	skus     *SkuRegistry
	types    *typeSet
	now      func() time.Time
}

// Sync returns the stock rows of the allowed rows in bunch. Only the first
// allowed row of a SKU produces a record.
func (s *StockSynchronizer) Sync(ctx context.Context, rows []*Row, allowed func(*Row) bool) ([]StockItem, error) {
	websiteID := s.registry.DefaultScopeID()
	stockID, err := s.registry.StockID(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("stock id for website %d: %w", websiteID, err)
	}

	type pending struct {
		row  *Row
		info SkuInfo
	}
	var queue []pending
	seen := make(map[string]bool)
	var ids []int64
	for _, row := range rows {
		if row.SKU == "" || seen[row.SKU] || !allowed(row) {
			continue
		}
		info, ok := s.skus.Get(row.SKU)
		if !ok || info.EntityID == 0 {
			continue
		}
		seen[row.SKU] = true
		queue = append(queue, pending{row: row, info: info})
		ids = append(ids, info.EntityID)
	}
	if len(queue) == 0 {
		return nil, nil
	}

	existing, err := s.registry.StockItems(ctx, ids, websiteID)
	if err != nil {
		return nil, fmt.Errorf("load stock items: %w", err)
	}

	items := make([]StockItem, 0, len(queue))
	for _, p := range queue {
		item := DefaultStockItem()
		if cur, ok := existing[p.info.EntityID]; ok {
			item = cur
		}
		item.applyRow(p.row)
		item.EntityID = p.info.EntityID
		item.WebsiteID = websiteID
		item.StockID = stockID

		if s.types.tracksQty(p.info.TypeID) {
			inStock := s.state.VerifyStock(item)
			item.IsInStock = inStock
			if s.state.VerifyNotification(item) {
				now := s.now().UTC()
				item.LowStockDate = &now
			}
			item.StockStatusChangedAuto = !inStock
		} else {
			item.Qty = decimal.Zero
		}
		items = append(items, item)
	}
	return items, nil
}
