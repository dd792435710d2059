package postgres

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// attributeTables maps backend types to their value tables.
var attributeTables = map[string]string{
	"varchar":  "catalog_product_entity_varchar",
	"text":     "catalog_product_entity_text",
	"int":      "catalog_product_entity_int",
	"decimal":  "catalog_product_entity_decimal",
	"datetime": "catalog_product_entity_datetime",
}

// LoadSnapshot reads everything a run needs up front. The independent
// queries run concurrently on separate pool connections.
func LoadSnapshot(ctx context.Context, db DB) (*core.Snapshot, error) {
	var (
		skus     map[string]core.SkuInfo
		sets     map[string]int
		attrs    []*core.Attribute
		members  map[int][]string
		stores   []core.Store
		websites map[string]int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		skus, err = loadSKUs(ctx, db)
		return err
	})
	g.Go(func() (err error) {
		sets, err = loadAttributeSets(ctx, db)
		return err
	})
	g.Go(func() (err error) {
		attrs, err = loadAttributes(ctx, db)
		return err
	})
	g.Go(func() (err error) {
		members, err = loadSetMembers(ctx, db)
		return err
	})
	g.Go(func() (err error) {
		stores, websites, err = loadStores(ctx, db)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	setCodes := make(map[int]string, len(sets))
	for code, id := range sets {
		setCodes[id] = code
	}
	for sku, info := range skus {
		info.AttrSetCode = setCodes[info.AttrSetID]
		skus[sku] = info
	}

	return &core.Snapshot{
		Seed:       core.Seed{ExistingSKUs: skus, AttributeSets: sets},
		Attributes: core.NewAttributeIndex(attrs, members),
		Stores:     core.NewStoreIndex(stores, websites),
	}, nil
}

func loadSKUs(ctx context.Context, db DB) (map[string]core.SkuInfo, error) {
	rows, err := db.Query(ctx, `SELECT entity_id, sku, type_id, attribute_set_id FROM catalog_product_entity`)
	if err != nil {
		return nil, fmt.Errorf("load skus: %w", err)
	}
	defer rows.Close()

	out := make(map[string]core.SkuInfo)
	for rows.Next() {
		var sku string
		info := core.SkuInfo{Existing: true}
		if err := rows.Scan(&info.EntityID, &sku, &info.TypeID, &info.AttrSetID); err != nil {
			return nil, fmt.Errorf("scan sku: %w", err)
		}
		out[sku] = info
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load skus: %w", err)
	}
	return out, nil
}

func loadAttributeSets(ctx context.Context, db DB) (map[string]int, error) {
	rows, err := db.Query(ctx, `SELECT attribute_set_id, attribute_set_name FROM eav_attribute_set`)
	if err != nil {
		return nil, fmt.Errorf("load attribute sets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan attribute set: %w", err)
		}
		out[name] = id
	}
	return out, rows.Err()
}

func loadAttributes(ctx context.Context, db DB) ([]*core.Attribute, error) {
	rows, err := db.Query(ctx, `
		SELECT a.attribute_id, a.attribute_code, a.frontend_input, a.backend_type, a.scope,
		       a.is_required, a.default_value, a.transform, o.option_id, o.label
		FROM eav_attribute a
		LEFT JOIN eav_attribute_option o ON o.attribute_id = a.attribute_id
		ORDER BY a.attribute_id, o.option_id`)
	if err != nil {
		return nil, fmt.Errorf("load attributes: %w", err)
	}
	defer rows.Close()

	var out []*core.Attribute
	var current *core.Attribute
	for rows.Next() {
		var (
			a        core.Attribute
			scope    int16
			optionID *int
			label    *string
		)
		if err := rows.Scan(&a.ID, &a.Code, &a.FrontendInput, &a.BackendType, &scope,
			&a.Required, &a.DefaultValue, &a.Transform, &optionID, &label); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		if current == nil || current.ID != a.ID {
			a.Scope = core.AttributeScope(scope)
			a.Table = attributeTables[a.BackendType]
			current = &a
			out = append(out, current)
		}
		if optionID != nil && label != nil {
			if current.Options == nil {
				current.Options = make(map[string]int)
			}
			current.Options[strings.ToLower(*label)] = *optionID
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load attributes: %w", err)
	}
	return out, nil
}

func loadSetMembers(ctx context.Context, db DB) (map[int][]string, error) {
	rows, err := db.Query(ctx, `
		SELECT ea.attribute_set_id, a.attribute_code
		FROM eav_entity_attribute ea
		JOIN eav_attribute a ON a.attribute_id = ea.attribute_id`)
	if err != nil {
		return nil, fmt.Errorf("load attribute set members: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]string)
	for rows.Next() {
		var setID int
		var code string
		if err := rows.Scan(&setID, &code); err != nil {
			return nil, fmt.Errorf("scan attribute set member: %w", err)
		}
		out[setID] = append(out[setID], code)
	}
	return out, rows.Err()
}

func loadStores(ctx context.Context, db DB) ([]core.Store, map[string]int, error) {
	rows, err := db.Query(ctx, `SELECT store_id, code, website_id FROM store`)
	if err != nil {
		return nil, nil, fmt.Errorf("load stores: %w", err)
	}
	var stores []core.Store
	for rows.Next() {
		var s core.Store
		if err := rows.Scan(&s.ID, &s.Code, &s.WebsiteID); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("load stores: %w", err)
	}

	rows, err = db.Query(ctx, `SELECT website_id, code FROM store_website`)
	if err != nil {
		return nil, nil, fmt.Errorf("load websites: %w", err)
	}
	defer rows.Close()

	websites := make(map[string]int)
	for rows.Next() {
		var id int
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, nil, fmt.Errorf("scan website: %w", err)
		}
		websites[code] = id
	}
	return stores, websites, rows.Err()
}
