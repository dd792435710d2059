package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// defaultStockScope is the website id stock is kept under.
const defaultStockScope = 0

// StockRegistry implements core.StockRegistry.
type StockRegistry struct {
	db DB

	mu     sync.Mutex
	stocks map[int]int
}

// NewStockRegistry returns a registry reading from db.
func NewStockRegistry(db DB) *StockRegistry {
	return &StockRegistry{db: db, stocks: make(map[int]int)}
}

// DefaultScopeID returns the admin website id.
func (r *StockRegistry) DefaultScopeID() int { return defaultStockScope }

// StockID returns the stock assigned to a website. Lookups are cached for
// the life of the registry.
func (r *StockRegistry) StockID(ctx context.Context, websiteID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.stocks[websiteID]; ok {
		return id, nil
	}

	var id int
	err := r.db.QueryRow(ctx, `SELECT stock_id FROM cataloginventory_stock WHERE website_id = $1`, websiteID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("no stock for website %d", websiteID)
	}
	if err != nil {
		return 0, fmt.Errorf("load stock: %w", err)
	}
	r.stocks[websiteID] = id
	return id, nil
}

// StockItems returns the persisted stock items of the given entities.
// Entities without a record are absent from the result.
func (r *StockRegistry) StockItems(ctx context.Context, entityIDs []int64, websiteID int) (map[int64]core.StockItem, error) {
	out := make(map[int64]core.StockItem)
	if len(entityIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT product_id, stock_id, website_id, qty::text, min_qty::text, use_config_min_qty, is_qty_decimal,
		       backorders, use_config_backorders, min_sale_qty::text, use_config_min_sale_qty,
		       max_sale_qty::text, use_config_max_sale_qty, is_in_stock, notify_stock_qty::text,
		       use_config_notify_stock_qty, manage_stock, use_config_manage_stock,
		       low_stock_date, stock_status_changed_auto
		FROM cataloginventory_stock_item
		WHERE product_id = ANY($1) AND website_id = $2`, entityIDs, websiteID)
	if err != nil {
		return nil, fmt.Errorf("load stock items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item core.StockItem
		var qty, minQty, minSale, maxSale, notify string
		var lowStock *time.Time
		if err := rows.Scan(&item.EntityID, &item.StockID, &item.WebsiteID, &qty, &minQty, &item.UseConfigMinQty,
			&item.IsQtyDecimal, &item.Backorders, &item.UseConfigBackorders, &minSale, &item.UseConfigMinSaleQty,
			&maxSale, &item.UseConfigMaxSaleQty, &item.IsInStock, &notify,
			&item.UseConfigNotifyStockQty, &item.ManageStock, &item.UseConfigManageStock,
			&lowStock, &item.StockStatusChangedAuto); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		item.LowStockDate = lowStock

		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&item.Qty, qty},
			{&item.MinQty, minQty},
			{&item.MinSaleQty, minSale},
			{&item.MaxSaleQty, maxSale},
			{&item.NotifyStockQty, notify},
		} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, fmt.Errorf("stock item %d: %w", item.EntityID, err)
			}
			*f.dst = d
		}
		out[item.EntityID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load stock items: %w", err)
	}
	return out, nil
}
