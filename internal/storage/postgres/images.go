package postgres

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// ImageIndex implements core.ImageIndex over the media gallery.
type ImageIndex struct {
	db DB
}

// NewImageIndex returns an index reading from db.
func NewImageIndex(db DB) *ImageIndex {
	return &ImageIndex{db: db}
}

// ExistingImages returns the gallery values stored for each SKU.
func (x *ImageIndex) ExistingImages(ctx context.Context, skus []string) (map[string]map[string]bool, error) {
	out := make(map[string]map[string]bool)
	if len(skus) == 0 {
		return out, nil
	}

	rows, err := x.db.Query(ctx, `
		SELECT e.sku, g.value
		FROM catalog_product_entity_media_gallery g
		JOIN catalog_product_entity e ON e.entity_id = g.entity_id
		WHERE e.sku = ANY($1)`, skus)
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sku, value string
		if err := rows.Scan(&sku, &value); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		if out[sku] == nil {
			out[sku] = make(map[string]bool)
		}
		out[sku][value] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	return out, nil
}

var _ core.ImageIndex = (*ImageIndex)(nil)
