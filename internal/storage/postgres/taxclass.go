package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
)

const productTaxClass = "PRODUCT"

// TaxClassResolver implements core.TaxClassResolver, creating product tax
// classes on first use.
type TaxClassResolver struct {
	db DB

	mu    sync.Mutex
	cache map[string]int
}

// NewTaxClassResolver returns a resolver over db.
func NewTaxClassResolver(db DB) *TaxClassResolver {
	return &TaxClassResolver{db: db, cache: make(map[string]int)}
}

// UpsertTaxClass returns the id of the product tax class name, creating it
// when it does not exist. Names are matched case-insensitively within a run.
func (r *TaxClassResolver) UpsertTaxClass(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("empty tax class name")
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.cache[key]; ok {
		return id, nil
	}

	var id int
	err := r.db.QueryRow(ctx, `
		INSERT INTO tax_class (class_name, class_type) VALUES ($1, $2)
		ON CONFLICT (class_name, class_type) DO NOTHING
		RETURNING class_id`, name, productTaxClass).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = r.db.QueryRow(ctx,
			`SELECT class_id FROM tax_class WHERE class_name = $1 AND class_type = $2`,
			name, productTaxClass).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert tax class %q: %w", name, err)
	}
	r.cache[key] = id
	return id, nil
}
