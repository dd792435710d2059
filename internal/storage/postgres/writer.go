package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// Writer implements core.Writer. Each call runs in its own transaction and
// sends its statements as one pgx batch.
type Writer struct {
	db DB
}

// NewWriter returns a writer over db.
func NewWriter(db DB) *Writer {
	return &Writer{db: db}
}

// inTx runs fn in a transaction that is committed when fn succeeds.
func (w *Writer) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// execBatch sends b and checks every statement.
func execBatch(ctx context.Context, tx pgx.Tx, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

const insertEntitySQL = `
	INSERT INTO catalog_product_entity (sku, attribute_set_id, type_id, has_options, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (sku) DO UPDATE SET updated_at = EXCLUDED.updated_at
	RETURNING entity_id`

const updateEntitySQL = `UPDATE catalog_product_entity SET updated_at = $2 WHERE entity_id = $1`

// SaveEntities inserts new entities and touches existing ones. A SKU that
// was created concurrently is treated as an update and its id returned.
func (w *Writer) SaveEntities(ctx context.Context, inserts []core.EntityInsert, updates []core.EntityUpdate) (map[string]int64, error) {
	ids := make(map[string]int64, len(inserts))
	err := w.inTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, in := range inserts {
			b.Queue(insertEntitySQL, in.SKU, in.AttrSetID, in.TypeID, in.HasOptions, in.CreatedAt, in.UpdatedAt)
		}
		for _, u := range updates {
			b.Queue(updateEntitySQL, u.EntityID, u.UpdatedAt)
		}

		br := tx.SendBatch(ctx, b)
		for _, in := range inserts {
			var id int64
			if err := br.QueryRow().Scan(&id); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert %s: %w", in.SKU, err)
			}
			ids[in.SKU] = id
		}
		for _, u := range updates {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("update %s: %w", u.SKU, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// relationTables hold the links the replace behavior clears.
var relationTables = []struct {
	table  string
	column string
}{
	{"catalog_product_website", "product_id"},
	{"catalog_category_product", "product_id"},
	{"catalog_product_entity_tier_price", "entity_id"},
	{"catalog_product_entity_media_gallery", "entity_id"},
}

// ClearRelations deletes website, category, tier price and gallery links.
func (w *Writer) ClearRelations(ctx context.Context, entityIDs []int64) error {
	return w.inTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, rel := range relationTables {
			b.Queue(fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1)", rel.table, rel.column), entityIDs)
		}
		return execBatch(ctx, tx, b)
	})
}

// SaveWebsites links entities to websites.
func (w *Writer) SaveWebsites(ctx context.Context, links []core.WebsiteLink) error {
	return w.inTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, l := range links {
			b.Queue(`INSERT INTO catalog_product_website (product_id, website_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, l.EntityID, l.WebsiteID)
		}
		return execBatch(ctx, tx, b)
	})
}

// SaveCategories links entities to categories.
func (w *Writer) SaveCategories(ctx context.Context, links []core.CategoryLink) error {
	return w.inTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, l := range links {
			b.Queue(`INSERT INTO catalog_category_product (category_id, product_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, l.CategoryID, l.EntityID)
		}
		return execBatch(ctx, tx, b)
	})
}

// SaveTierPrices upserts tier prices keyed by entity, group, qty and website.
func (w *Writer) SaveTierPrices(ctx context.Context, prices []core.TierPrice) error {
	return w.inTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, p := range prices {
			b.Queue(`INSERT INTO catalog_product_entity_tier_price
				(entity_id, all_groups, customer_group_id, qty, value, website_id)
				VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6)
				ON CONFLICT (entity_id, all_groups, customer_group_id, qty, website_id)
				DO UPDATE SET value = EXCLUDED.value`,
				p.EntityID, p.AllGroups, p.CustomerGroupID, p.Qty.String(), p.Value.String(), p.WebsiteID)
		}
		return execBatch(ctx, tx, b)
	})
}

// SaveMediaGallery upserts gallery images.
func (w *Writer) SaveMediaGallery(ctx context.Context, entries []core.MediaEntry) error {
	return w.inTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, e := range entries {
			b.Queue(`INSERT INTO catalog_product_entity_media_gallery
				(entity_id, attribute_id, value, label, position, disabled)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (entity_id, attribute_id, value)
				DO UPDATE SET label = EXCLUDED.label, position = EXCLUDED.position, disabled = EXCLUDED.disabled`,
				e.EntityID, e.AttributeID, e.Value, e.Label, e.Position, e.Disabled)
		}
		return execBatch(ctx, tx, b)
	})
}

// valueCasts converts the text parameter to each table's column type.
var valueCasts = map[string]string{
	"catalog_product_entity_varchar":  "$4::text",
	"catalog_product_entity_text":     "$4::text",
	"catalog_product_entity_int":      "$4::text::integer",
	"catalog_product_entity_decimal":  "$4::text::numeric",
	"catalog_product_entity_datetime": "$4::text::timestamp",
}

// SaveAttributes upserts attribute values. An empty value deletes the
// stored one.
func (w *Writer) SaveAttributes(ctx context.Context, values []core.AttributeValue) error {
	return w.inTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, v := range values {
			cast, ok := valueCasts[v.Table]
			if !ok {
				return fmt.Errorf("unknown attribute table %q", v.Table)
			}
			if v.Value == "" {
				b.Queue(fmt.Sprintf("DELETE FROM %s WHERE entity_id = $1 AND attribute_id = $2 AND store_id = $3", v.Table),
					v.EntityID, v.AttributeID, v.StoreID)
				continue
			}

			value := v.Value
			if v.Table == "catalog_product_entity_datetime" {
				t, ok := core.ParseDateTime(value)
				if !ok {
					return fmt.Errorf("attribute %d of entity %d: invalid date %q", v.AttributeID, v.EntityID, value)
				}
				value = t.Format("2006-01-02 15:04:05")
			}
			b.Queue(fmt.Sprintf(`INSERT INTO %s (entity_id, attribute_id, store_id, value)
				VALUES ($1, $2, $3, %s)
				ON CONFLICT (entity_id, attribute_id, store_id) DO UPDATE SET value = EXCLUDED.value`, v.Table, cast),
				v.EntityID, v.AttributeID, v.StoreID, value)
		}
		return execBatch(ctx, tx, b)
	})
}

const upsertStockSQL = `
	INSERT INTO cataloginventory_stock_item (
		product_id, stock_id, website_id, qty, min_qty, use_config_min_qty, is_qty_decimal,
		backorders, use_config_backorders, min_sale_qty, use_config_min_sale_qty,
		max_sale_qty, use_config_max_sale_qty, is_in_stock, notify_stock_qty,
		use_config_notify_stock_qty, manage_stock, use_config_manage_stock,
		low_stock_date, stock_status_changed_auto)
	VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6, $7, $8, $9, $10::text::numeric, $11,
		$12::text::numeric, $13, $14, $15::text::numeric, $16, $17, $18, $19, $20)
	ON CONFLICT (product_id, website_id) DO UPDATE SET
		stock_id = EXCLUDED.stock_id,
		qty = EXCLUDED.qty,
		min_qty = EXCLUDED.min_qty,
		use_config_min_qty = EXCLUDED.use_config_min_qty,
		is_qty_decimal = EXCLUDED.is_qty_decimal,
		backorders = EXCLUDED.backorders,
		use_config_backorders = EXCLUDED.use_config_backorders,
		min_sale_qty = EXCLUDED.min_sale_qty,
		use_config_min_sale_qty = EXCLUDED.use_config_min_sale_qty,
		max_sale_qty = EXCLUDED.max_sale_qty,
		use_config_max_sale_qty = EXCLUDED.use_config_max_sale_qty,
		is_in_stock = EXCLUDED.is_in_stock,
		notify_stock_qty = EXCLUDED.notify_stock_qty,
		use_config_notify_stock_qty = EXCLUDED.use_config_notify_stock_qty,
		manage_stock = EXCLUDED.manage_stock,
		use_config_manage_stock = EXCLUDED.use_config_manage_stock,
		low_stock_date = EXCLUDED.low_stock_date,
		stock_status_changed_auto = EXCLUDED.stock_status_changed_auto`

// SaveStock upserts stock items keyed by product and website.
func (w *Writer) SaveStock(ctx context.Context, items []core.StockItem) error {
	return w.inTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, s := range items {
			b.Queue(upsertStockSQL,
				s.EntityID, s.StockID, s.WebsiteID, s.Qty.String(), s.MinQty.String(), s.UseConfigMinQty,
				s.IsQtyDecimal, s.Backorders, s.UseConfigBackorders, s.MinSaleQty.String(), s.UseConfigMinSaleQty,
				s.MaxSaleQty.String(), s.UseConfigMaxSaleQty, s.IsInStock, s.NotifyStockQty.String(),
				s.UseConfigNotifyStockQty, s.ManageStock, s.UseConfigManageStock,
				s.LowStockDate, s.StockStatusChangedAuto)
		}
		return execBatch(ctx, tx, b)
	})
}

// DeleteEntities removes entities; values and links go with them.
func (w *Writer) DeleteEntities(ctx context.Context, entityIDs []int64) error {
	return w.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM catalog_product_entity WHERE entity_id = ANY($1)`, entityIDs)
		return err
	})
}
