package postgres

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/CatalogImport/internal/category"
)

// CategoryStore implements category.Store.
type CategoryStore struct {
	db DB
}

// NewCategoryStore returns a store over db.
func NewCategoryStore(db DB) *CategoryStore {
	return &CategoryStore{db: db}
}

// Categories returns every category.
func (s *CategoryStore) Categories(ctx context.Context) ([]category.Category, error) {
	rows, err := s.db.Query(ctx, `SELECT entity_id, parent_id, name FROM catalog_category_entity ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	var out []category.Category
	for rows.Next() {
		var c category.Category
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a child of parentID. A category created
// concurrently under the same name is returned instead.
func (s *CategoryStore) CreateCategory(ctx context.Context, parentID int, name string) (int, error) {
	var id int
	err := s.db.QueryRow(ctx, `
		INSERT INTO catalog_category_entity (parent_id, name) VALUES ($1, $2)
		ON CONFLICT (parent_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING entity_id`, parentID, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	return id, nil
}
