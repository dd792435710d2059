package structural

import (
	"strings"
	"testing"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

func TestValidate(t *testing.T) {
	v, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name  string
		cells map[string]string
		want  []core.ValidationMessage
	}{
		{
			name:  "valid row",
			cells: map[string]string{"sku": "A-1", "price": "$1,299.00", "is_in_stock": "yes", "visibility": "Catalog, Search", "news_from_date": "2026-01-31"},
		},
		{
			name:  "empty cells are skipped",
			cells: map[string]string{"sku": "A-1", "price": "", "visibility": " "},
		},
		{
			name:  "negative price",
			cells: map[string]string{"sku": "A-1", "price": "-5"},
			want:  []core.ValidationMessage{{Kind: core.KindInvalidAttributeType, Column: "price"}},
		},
		{
			name:  "text price",
			cells: map[string]string{"sku": "A-1", "price": "free"},
			want:  []core.ValidationMessage{{Kind: core.KindInvalidAttributeType, Column: "price"}},
		},
		{
			name:  "negative qty is allowed",
			cells: map[string]string{"sku": "A-1", "qty": "-2"},
		},
		{
			name:  "long sku",
			cells: map[string]string{"sku": strings.Repeat("X", 65)},
			want:  []core.ValidationMessage{{Kind: core.KindInvalidValue, Column: "sku"}},
		},
		{
			name:  "unknown visibility",
			cells: map[string]string{"sku": "A-1", "visibility": "Everywhere"},
			want:  []core.ValidationMessage{{Kind: core.KindInvalidValue, Column: "visibility"}},
		},
		{
			name:  "several columns in column order",
			cells: map[string]string{"sku": "A-1", "weight": "heavy", "backorders": "often", "manage_stock": "maybe"},
			want: []core.ValidationMessage{
				{Kind: core.KindInvalidAttributeType, Column: "backorders"},
				{Kind: core.KindInvalidAttributeType, Column: "manage_stock"},
				{Kind: core.KindInvalidAttributeType, Column: "weight"},
			},
		},
		{
			name:  "bad date",
			cells: map[string]string{"sku": "A-1", "special_price_to_date": "31/31/2026"},
			want:  []core.ValidationMessage{{Kind: core.KindInvalidAttributeType, Column: "special_price_to_date"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(core.NewRow(1, tt.cells))
			if len(got) != len(tt.want) {
				t.Fatalf("Validate() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Validate()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNew_CustomRules(t *testing.T) {
	v, err := New(map[string]string{"ean": "numeric,len=13"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := v.Validate(core.NewRow(1, map[string]string{"ean": "4006381333931"})); len(got) != 0 {
		t.Errorf("Validate() = %v, want none", got)
	}
	got := v.Validate(core.NewRow(1, map[string]string{"ean": "40063"}))
	if len(got) != 1 || got[0].Column != "ean" || got[0].Kind != core.KindInvalidValue {
		t.Errorf("Validate() = %v, want one invalidValue for ean", got)
	}
	if got := v.Validate(core.NewRow(1, map[string]string{"price": "-1"})); len(got) != 0 {
		t.Errorf("custom rules kept default price rule: %v", got)
	}
}

func TestNew_InvalidRule(t *testing.T) {
	if _, err := New(map[string]string{"price": "no_such_tag"}); err == nil {
		t.Error("New() error = nil, want error for unknown tag")
	}
}
